package pipeline

import (
	"testing"

	"procparse/internal"
)

func TestDedupKeepsFirstOccurrence(t *testing.T) {
	a := item("Кабель ВВГнг 3х2,5", 100, 150.5)
	a.Source = "first"
	b := item("кабель  ВВГНГ 3х2,5", 100, 150.5)
	b.Source = "second"
	c := item("Кабель ВВГнг 3х2,5", 200, 150.5)

	got := Dedup([]internal.LineItem{a, b, c})
	if len(got) != 2 {
		t.Fatalf("len=%d", len(got))
	}
	if got[0].Source != "first" || got[1].QtyValue() != 200 {
		t.Fatalf("got=%+v", got)
	}
	if again := Dedup(got); len(again) != len(got) {
		t.Fatalf("dedup not idempotent: %d != %d", len(again), len(got))
	}
}

func TestDedupTreatsMissingValuesAsEqual(t *testing.T) {
	a := internal.LineItem{Name: "Провод ПуГВ 1х6"}
	b := internal.LineItem{Name: "Провод ПуГВ 1х6"}
	if got := Dedup([]internal.LineItem{a, b}); len(got) != 1 {
		t.Fatalf("len=%d", len(got))
	}
}

func TestValidatorCheck(t *testing.T) {
	v := NewValidator()
	noQty := item("Кабель ВВГнг 3х2,5", 1, 10)
	noQty.Qty = nil
	zeroPrice := item("Кабель ВВГнг 3х2,5", 1, 0)

	tests := []struct {
		name string
		it   internal.LineItem
		ok   bool
	}{
		{"product", item("Кабель ВВГнг 3х2,5", 100, 150.5), true},
		{"short name", item("Каб", 1, 1), false},
		{"digits only", item("12345 678", 1, 1), false},
		{"missing qty", noQty, false},
		{"zero price", zeroPrice, false},
		{"negative qty", item("Кабель ВВГнг 3х2,5", -1, 10), false},
		{"service word", item("Итого по счету", 1, 100), false},
		{"short service word as part of word", item("Провод медный отожженный", 5, 10), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason := v.Check(tt.it)
			if (reason == "") != tt.ok {
				t.Fatalf("check=%q want ok=%v", reason, tt.ok)
			}
			if again := v.Check(tt.it); again != reason {
				t.Fatalf("second check=%q first=%q", again, reason)
			}
		})
	}
}

func TestValidatorFilter(t *testing.T) {
	v := NewValidator()
	got := v.Filter([]internal.LineItem{
		item("Кабель ВВГнг 3х2,5", 100, 150.5),
		item("Всего к оплате", 1, 100),
		item("Провод ПуГВ 1х6", 200, 45.2),
	})
	if len(got) != 2 || got[1].Name != "Провод ПуГВ 1х6" {
		t.Fatalf("got=%+v", got)
	}
}
