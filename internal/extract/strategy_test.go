package extract

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"procparse/internal"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustStrategy(t *testing.T, name string) *Strategy {
	t.Helper()
	s, err := Compile(mustDescriptor(t, name), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

func TestBuiltinDescriptorsCompile(t *testing.T) {
	parsers, err := BuiltinParsers(nil, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("BuiltinParsers: %v", err)
	}
	if len(parsers) != len(StrategyOrder) {
		t.Fatalf("got %d parsers want %d", len(parsers), len(StrategyOrder))
	}
	for i, p := range parsers {
		if p.Name() != StrategyOrder[i] {
			t.Fatalf("parser %d is %s want %s", i, p.Name(), StrategyOrder[i])
		}
	}
}

func TestCompileRejectsUnknownPredicate(t *testing.T) {
	d, err := ParseDescriptor([]byte(`
name: custom
filters:
  - {kind: regex_match, field: name, values: ['x']}
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := Compile(d); !errors.Is(err, ErrUnknownPredicate) {
		t.Fatalf("err=%v want ErrUnknownPredicate", err)
	}
}

func TestCompileRejectsBadDescriptors(t *testing.T) {
	cases := []struct {
		name string
		d    Descriptor
	}{
		{name: "layout column outside width", d: Descriptor{Name: "x", Layouts: []Layout{{MinColumns: 4, Fields: map[internal.Field]int{internal.FieldName: 5}}}}},
		{name: "positive on text field", d: Descriptor{Name: "x", Validators: []Predicate{{Kind: KindPositive, Field: internal.FieldName}}}},
		{name: "unknown regex group", d: Descriptor{Name: "x", Text: TextRules{Enabled: true, Patterns: []LinePattern{{Regex: `(?P<colour>\w+)`}}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Compile(tc.d); !errors.Is(err, ErrBadDescriptor) {
				t.Fatalf("err=%v want ErrBadDescriptor", err)
			}
		})
	}
	if _, err := ParseDescriptor([]byte("synonyms: {}")); !errors.Is(err, ErrBadDescriptor) {
		t.Fatalf("descriptor without name: err=%v", err)
	}
}

func TestFreeTextLine(t *testing.T) {
	const line = "Кабель ВВГ 3х2.5 100 шт 150.50"

	for _, name := range []string{"competitive", "universal"} {
		t.Run(name, func(t *testing.T) {
			res := mustStrategy(t, name).Parse(line, nil)
			if res.Err != nil {
				t.Fatalf("err: %v", res.Err)
			}
			if len(res.Items) != 1 {
				t.Fatalf("items=%d outcomes=%+v", len(res.Items), res.Outcomes)
			}
			it := res.Items[0]
			if it.Name != "Кабель ВВГ 3х2.5" {
				t.Fatalf("name=%q", it.Name)
			}
			if it.QtyValue() != 100 || it.Unit != "шт" || it.PriceValue() != 150.50 {
				t.Fatalf("qty=%v unit=%q price=%v", it.QtyValue(), it.Unit, it.PriceValue())
			}
			if !it.TotalComputed || math.Abs(it.TotalValue()-15050) > 1e-6 {
				t.Fatalf("total=%v computed=%v", it.TotalValue(), it.TotalComputed)
			}
			if it.Currency != internal.DefaultCurrency {
				t.Fatalf("currency=%q", it.Currency)
			}
		})
	}
}

func overSegmentedTable() internal.Table {
	return internal.Table{
		Header: []string{"№", "Наимен", "ование", "", "", "Кол-во", "Ед. изм.", "Срок поставки", "Цена (б", "ез НДС)", "Сумма (с НДС)", "", ""},
		Rows: [][]string{
			{"1", "Кабель силовой", "ВВГнг-LS", "3х2,5", "", "100", "шт", "10 дней", "150,50", "", "15 050,00", "", ""},
			{"2", "Провод", "ПуГВ", "1х6", "", "200", "м", "", "45,20", "", "9 040,00", "", ""},
			{"", "Итого:", "", "", "", "", "", "", "", "", "24 090,00", "", ""},
		},
	}
}

func TestPreciseTableReassemblesName(t *testing.T) {
	res := mustStrategy(t, "precise_table").Parse("", []internal.Table{overSegmentedTable()})
	if len(res.Items) != 2 {
		t.Fatalf("items=%d outcomes=%+v", len(res.Items), res.Outcomes)
	}

	first := res.Items[0]
	if first.Name != "Кабель силовой ВВГнг-LS 3х2,5" {
		t.Fatalf("name=%q", first.Name)
	}
	if first.QtyValue() != 100 || first.PriceValue() != 150.5 || first.TotalValue() != 15050 {
		t.Fatalf("qty=%v price=%v total=%v", first.QtyValue(), first.PriceValue(), first.TotalValue())
	}
	if first.TotalComputed {
		t.Fatal("explicit total must be kept")
	}
	if first.Source != "table_0_row_0" || first.Confidence != 0.95 {
		t.Fatalf("source=%q confidence=%v", first.Source, first.Confidence)
	}
	if res.Items[1].Name != "Провод ПуГВ 1х6" || res.Items[1].Unit != "м" {
		t.Fatalf("second=%+v", res.Items[1])
	}
	if n := res.Skipped(SkipService); n != 1 {
		t.Fatalf("service skips=%d want 1", n)
	}
}

func TestRowOutcomesCarryReasons(t *testing.T) {
	table := internal.Table{
		Rows: [][]string{
			{"№", "Наименование", "Кол-во", "Ед.", "Цена", "Сумма"},
			{"1", "Кабель ВВГ 3х2,5", "100", "шт", "150,50", "15050"},
			{"", "", "", "", "", ""},
			{"2", "Провод без цены", "10", "м", "", ""},
			{"", "Итого", "", "", "", "15050"},
		},
	}
	res := mustStrategy(t, "table_extractor").Parse("", []internal.Table{table})

	want := []SkipReason{SkipNone, SkipEmpty, SkipMissingFields, SkipService}
	if len(res.Outcomes) != len(want) {
		t.Fatalf("outcomes=%+v", res.Outcomes)
	}
	for i, o := range res.Outcomes {
		if o.Reason != want[i] {
			t.Fatalf("row %d reason=%q want %q", o.Row, o.Reason, want[i])
		}
	}
	if !res.Outcomes[0].Accepted() || res.Outcomes[0].Item.TotalValue() != 15050 {
		t.Fatalf("first row should be accepted: %+v", res.Outcomes[0])
	}
	if res.Outcomes[3].Detail != "итого" {
		t.Fatalf("detail=%q", res.Outcomes[3].Detail)
	}
}

func TestCustomClassifierServiceWords(t *testing.T) {
	table := internal.Table{
		Rows: [][]string{
			{"№", "Наименование", "Кол-во", "Ед.", "Цена", "Сумма"},
			{"1", "Кабель ВВГ 3х2,5", "100", "шт", "150,50", "15050"},
			{"2", "Упаковка барабан", "1", "шт", "900", "900"},
		},
	}
	words := append(append([]string{}, DefaultServiceWords...), "упаковка")
	c := NewClassifierWith(DefaultHeaderMarkers, words, DefaultLineHeaders)
	s, err := Compile(mustDescriptor(t, "table_extractor"), WithLogger(quietLogger()), WithClassifier(c))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	res := s.Parse("", []internal.Table{table})
	if len(res.Items) != 1 || res.Items[0].Name != "Кабель ВВГ 3х2,5" {
		t.Fatalf("items=%+v", res.Items)
	}
	if res.Outcomes[1].Reason != SkipService {
		t.Fatalf("reason=%q", res.Outcomes[1].Reason)
	}
}

func TestStructuredBlocks(t *testing.T) {
	text := "Наименование: Кабель АВВГ 4х16\nКоличество: 250\nЕдиница: м\nЦена: 88,40\n\nНаименование: Без цены\nКоличество: 3"
	res := mustStrategy(t, "competitive").Parse(text, nil)

	var blocks []RowOutcome
	for _, o := range res.Outcomes {
		if o.Origin == OriginBlock {
			blocks = append(blocks, o)
		}
	}
	if len(blocks) != 2 {
		t.Fatalf("blocks=%+v", blocks)
	}
	if !blocks[0].Accepted() {
		t.Fatalf("first block: %+v", blocks[0])
	}
	it := blocks[0].Item
	if it.Name != "Кабель АВВГ 4х16" || it.QtyValue() != 250 || it.PriceValue() != 88.4 || it.Confidence != 0.9 {
		t.Fatalf("item=%+v", it)
	}
	if blocks[1].Reason != SkipMissingFields {
		t.Fatalf("second block reason=%q", blocks[1].Reason)
	}
}

func TestConfidenceBoostIsCapped(t *testing.T) {
	d := Descriptor{
		Name:            "boosted",
		FixedMapping:    map[internal.Field]int{internal.FieldName: 0, internal.FieldQty: 1, internal.FieldPrice: 2},
		TableConfidence: 0.95,
		ConfidenceBoost: 0.1,
	}
	s, err := Compile(d, WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	res := s.Parse("", []internal.Table{{Rows: [][]string{{"Кабель ВВГ 3х2,5", "10", "5"}}}})
	if len(res.Items) != 1 || res.Items[0].Confidence != 1 {
		t.Fatalf("items=%+v", res.Items)
	}
}

func TestSummary(t *testing.T) {
	res := StrategyResult{
		Strategy: "x",
		Items: []internal.LineItem{
			{Name: "a", Total: floatPtr(10), Confidence: 0.8},
			{Name: "b", Total: floatPtr(30), Confidence: 0.6},
		},
	}
	s := res.Summary()
	if s.Count != 2 || s.TotalCost != 40 || math.Abs(s.AvgConfidence-0.7) > 1e-9 {
		t.Fatalf("summary=%+v", s)
	}

	failed := StrategyResult{Strategy: "y", Err: ErrStrategyFailed}
	if failed.Summary().Error == "" {
		t.Fatal("error marker missing")
	}
}

func floatPtr(v float64) *float64 { return &v }
