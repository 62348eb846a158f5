package pipeline

import (
	"errors"
	"testing"

	"procparse/internal"
	"procparse/internal/extract"
)

var (
	productNames = []string{
		"Кабель ВВГнг-LS 3х2,5",
		"Кабель АВБбШв 4х50",
		"Провод ПуГВ 1х6 белый",
		"Провод СИП-2 3х35",
		"Кабель КГ 3х4+1х2,5",
		"Провод ПВС 2х0,75",
	}
	noiseNames = []string{
		"Гарантийное обслуживание оборудования",
		"Монтажные приспособления комплектные",
		"Согласование графика поставки",
		"Копорское шоссе склад",
		"Цены указанные действуют",
	}
)

func result(strategy string, names ...string) extract.StrategyResult {
	r := extract.StrategyResult{Strategy: strategy}
	for i, name := range names {
		r.Items = append(r.Items, item(name, float64(10+i), 100))
	}
	return r
}

func TestProductLike(t *testing.T) {
	a := NewArbiter()
	tests := []struct {
		name string
		want bool
	}{
		{"Кабель ВВГнг-LS 3х2,5", true},
		{"Провод СИП-2 3х35", true},
		{"Изолятор штыревой ШФ-20 10 кг", true},
		{"Доставка до объекта", true},
		{"Кабель", false},
		{"Гарантийное обслуживание оборудования", false},
		{"Копорское шоссе, кабель", false},
		{"Кабель ВВГ, НДС 20%", false},
		{"Сорок семь рублей", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.ProductLike(internal.LineItem{Name: tt.name}); got != tt.want {
				t.Fatalf("ProductLike(%q)=%v want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestArbitrationZeroesNoisyStrategy(t *testing.T) {
	competitive := result("competitive", append(append([]string{}, productNames[:4]...), noiseNames...)...)
	universal := result("universal", productNames[0], productNames[1], productNames[2], noiseNames[0])
	precise := result(PreciseStrategy, productNames[5])

	d := NewArbiter().Select([]extract.StrategyResult{competitive, universal, precise})
	if d.Best != "universal" {
		t.Fatalf("best=%q evaluations=%+v", d.Best, d.Evaluations)
	}
	if len(d.Items) != 3 {
		t.Fatalf("items=%d", len(d.Items))
	}

	comp := d.Evaluations[0]
	if !comp.Zeroed || comp.Score != 0 || comp.Raw != 9 || len(comp.Items) != 4 {
		t.Fatalf("competitive=%+v", comp)
	}
	if d.Evaluations[1].Score != 3 {
		t.Fatalf("universal score=%v", d.Evaluations[1].Score)
	}
	if d.Evaluations[2].Score != 2 {
		t.Fatalf("precise score=%v", d.Evaluations[2].Score)
	}
	if s := d.Evaluations[0].Summary; s.ValidCount != 4 || s.Score != 0 || s.Count != 9 {
		t.Fatalf("summary=%+v", s)
	}
}

func TestArbitrationCountsShareAfterDedup(t *testing.T) {
	// table rows repeated by the text layer, plus one distinct non-product line
	universal := result("universal", productNames[0], productNames[1])
	universal.Items = append(universal.Items, universal.Items...)
	universal.Items = append(universal.Items, item("Монтаж оборудования", 1, 5000))

	d := NewArbiter().Select([]extract.StrategyResult{universal})
	ev := d.Evaluations[0]
	if ev.Zeroed || ev.Score != 2 {
		t.Fatalf("evaluation=%+v", ev)
	}
	if ev.Raw != 5 || ev.Valid != 3 {
		t.Fatalf("raw=%d valid=%d", ev.Raw, ev.Valid)
	}
	if d.Best != "universal" || len(d.Items) != 2 {
		t.Fatalf("best=%q items=%d", d.Best, len(d.Items))
	}
}

func TestArbitrationDoublesPreciseTable(t *testing.T) {
	universal := result("universal", productNames[0], productNames[1], productNames[2])
	precise := result(PreciseStrategy, productNames[3], productNames[4])

	d := NewArbiter().Select([]extract.StrategyResult{universal, precise})
	if d.Best != PreciseStrategy || len(d.Items) != 2 {
		t.Fatalf("best=%q items=%d", d.Best, len(d.Items))
	}
	if d.Evaluations[1].Score != 4 {
		t.Fatalf("precise score=%v", d.Evaluations[1].Score)
	}
}

func TestArbitrationTieKeepsEarlierStrategy(t *testing.T) {
	d := NewArbiter().Select([]extract.StrategyResult{
		result("commercial", productNames[0], productNames[1]),
		result("invoice", productNames[2], productNames[3]),
	})
	if d.Best != "commercial" {
		t.Fatalf("best=%q", d.Best)
	}
}

func TestArbitrationFailedStrategyScoresZero(t *testing.T) {
	failed := result("commercial", productNames...)
	failed.Err = errors.New("boom")

	d := NewArbiter().Select([]extract.StrategyResult{failed, result("universal", productNames[0])})
	if d.Best != "universal" {
		t.Fatalf("best=%q", d.Best)
	}
	ev := d.Evaluations[0]
	if ev.Score != 0 || ev.Err == nil || ev.Summary.Error == "" {
		t.Fatalf("failed evaluation=%+v", ev)
	}
}

func TestArbitrationNothingFound(t *testing.T) {
	d := NewArbiter().Select([]extract.StrategyResult{result("universal"), result("competitive", noiseNames...)})
	if d.Best != "" {
		t.Fatalf("best=%q", d.Best)
	}
	if d.Items == nil || len(d.Items) != 0 {
		t.Fatalf("items=%v", d.Items)
	}
}
