package extract

import (
	"procparse/internal"
)

// SkipReason tells why a row or line produced no item.
type SkipReason string

const (
	SkipNone          SkipReason = ""
	SkipHeader        SkipReason = "header"
	SkipService       SkipReason = "service"
	SkipEmpty         SkipReason = "empty"
	SkipUnmapped      SkipReason = "unmapped"
	SkipMissingFields SkipReason = "missing_fields"
	SkipInvalid       SkipReason = "invalid"
	SkipPredicate     SkipReason = "predicate"
	SkipNoPattern     SkipReason = "no_pattern"
	SkipShortLine     SkipReason = "short_line"
)

type Origin string

const (
	OriginTable Origin = "table"
	OriginLine  Origin = "line"
	OriginBlock Origin = "block"
)

// RowOutcome records what happened to one table row, text line or text block.
// Exactly one of Item and Reason is set.
type RowOutcome struct {
	Origin Origin
	Table  int
	Row    int
	Item   *internal.LineItem
	Reason SkipReason
	Detail string
}

func (o RowOutcome) Accepted() bool { return o.Item != nil }

func accepted(origin Origin, table, row int, it internal.LineItem) RowOutcome {
	return RowOutcome{Origin: origin, Table: table, Row: row, Item: &it}
}

func skipped(origin Origin, table, row int, reason SkipReason, detail string) RowOutcome {
	return RowOutcome{Origin: origin, Table: table, Row: row, Reason: reason, Detail: detail}
}

// StrategyResult is what one strategy produced for one document.
type StrategyResult struct {
	Strategy   string
	Items      []internal.LineItem
	Outcomes   []RowOutcome
	Err        error
	SupplierID string
}

// Skipped counts outcomes with the given reason.
func (r StrategyResult) Skipped(reason SkipReason) int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.Accepted() && o.Reason == reason {
			n++
		}
	}
	return n
}

// Summary reports count, total cost and average confidence of the raw items.
func (r StrategyResult) Summary() internal.StrategySummary {
	s := internal.StrategySummary{Name: r.Strategy, Count: len(r.Items)}
	if r.Err != nil {
		s.Error = r.Err.Error()
		return s
	}
	conf := 0.0
	for _, it := range r.Items {
		s.TotalCost += it.TotalValue()
		conf += it.Confidence
	}
	if len(r.Items) > 0 {
		s.AvgConfidence = conf / float64(len(r.Items))
	}
	return s
}
