package pipeline

import (
	"fmt"
	"strings"

	"procparse/internal"
	"procparse/internal/extract"
	"procparse/internal/util"
)

const minNameLength = 5

// Dedup drops repeated items keyed by normalized name, qty and price. The first
// occurrence wins and order is preserved.
func Dedup(items []internal.LineItem) []internal.LineItem {
	seen := map[string]struct{}{}
	out := make([]internal.LineItem, 0, len(items))
	for _, it := range items {
		key := dedupKey(it)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, it)
	}
	return out
}

func dedupKey(it internal.LineItem) string {
	return strings.ToLower(util.NormalizeSpaces(it.Name)) + "|" + numKey(it.Qty) + "|" + numKey(it.Price)
}

func numKey(v *float64) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%g", *v)
}

// Validator rejects items that cannot be product rows.
type Validator struct {
	service *extract.WordSet
}

func NewValidator() *Validator {
	return &Validator{service: extract.NewWordSet(extract.DefaultServiceWords)}
}

// Check returns an empty string for a valid item, otherwise the reason it fails.
func (v *Validator) Check(it internal.LineItem) string {
	name := util.NormalizeSpaces(it.Name)
	switch {
	case len([]rune(name)) < minNameLength:
		return "name too short"
	case !util.HasLetterRun(name):
		return "name has no letters"
	case it.Qty == nil || *it.Qty <= 0:
		return "qty not positive"
	case it.Price == nil || *it.Price <= 0:
		return "price not positive"
	}
	if w := v.service.Find(name); w != "" {
		return "service word " + w
	}
	return ""
}

func (v *Validator) Valid(it internal.LineItem) bool {
	return v.Check(it) == ""
}

func (v *Validator) Filter(items []internal.LineItem) []internal.LineItem {
	out := make([]internal.LineItem, 0, len(items))
	for _, it := range items {
		if v.Valid(it) {
			out = append(out, it)
		}
	}
	return out
}
