package pipeline

import (
	"testing"

	"procparse/internal"
)

func TestAssessQuality(t *testing.T) {
	good := internal.Table{
		Header: []string{"Товар", "Кол-во", "Цена"},
		Rows:   [][]string{{"Кабель", "1", "10"}, {"Провод", "2", "20"}},
	}
	q := AssessQuality("Товар, цена, количество, сумма, итого", []internal.Table{good})
	if q.TextQuality != 1 || q.TableQuality != 1 || q.Overall != 1 {
		t.Fatalf("quality=%+v", q)
	}
	if len(q.Issues) != 0 || len(q.Recommendations) != 0 {
		t.Fatalf("unexpected issues %v", q.Issues)
	}

	poor := internal.Table{Rows: [][]string{{"a", "b"}}}
	q = AssessQuality("товар", []internal.Table{poor})
	if q.TextQuality != 0.2 || q.TableQuality != 0 {
		t.Fatalf("quality=%+v", q)
	}
	if len(q.Issues) != 2 || len(q.Recommendations) != 2 {
		t.Fatalf("issues=%v recommendations=%v", q.Issues, q.Recommendations)
	}
}

func TestAssessQualityEmpty(t *testing.T) {
	q := AssessQuality("", nil)
	if q.Overall != 0 || len(q.Issues) != 0 {
		t.Fatalf("quality=%+v", q)
	}
}
