package extract

import (
	"fmt"
	"strings"

	"procparse/internal"
)

type PredicateKind string

const (
	KindContainsKeyword PredicateKind = "contains_keyword"
	KindPositive        PredicateKind = "positive"
	KindMinLength       PredicateKind = "min_length"
)

// Predicate is a named, serializable check applied to an extracted item.
type Predicate struct {
	Kind          PredicateKind  `yaml:"kind"`
	Field         internal.Field `yaml:"field"`
	Values        []string       `yaml:"values,omitempty"`
	Value         float64        `yaml:"value,omitempty"`
	CaseSensitive bool           `yaml:"case_sensitive,omitempty"`
	Negate        bool           `yaml:"negate,omitempty"`
}

func (p Predicate) String() string {
	s := string(p.Kind) + "(" + string(p.Field)
	switch p.Kind {
	case KindContainsKeyword:
		s += ", " + strings.Join(p.Values, "|")
	case KindMinLength:
		s += fmt.Sprintf(", %g", p.Value)
	}
	s += ")"
	if p.Negate {
		return "not " + s
	}
	return s
}

type compiledPredicate struct {
	desc string
	test func(internal.LineItem) bool
}

func compilePredicate(p Predicate) (compiledPredicate, error) {
	field := p.Field
	if field == "" {
		field = internal.FieldName
	}

	var test func(internal.LineItem) bool
	switch p.Kind {
	case KindContainsKeyword:
		if field.Numeric() {
			return compiledPredicate{}, fmt.Errorf("%w: %s on numeric field %s", ErrBadDescriptor, p.Kind, field)
		}
		if len(p.Values) == 0 {
			return compiledPredicate{}, fmt.Errorf("%w: %s without values", ErrBadDescriptor, p.Kind)
		}
		values := make([]string, 0, len(p.Values))
		for _, v := range p.Values {
			if !p.CaseSensitive {
				v = strings.ToLower(v)
			}
			values = append(values, v)
		}
		test = func(it internal.LineItem) bool {
			s := textField(it, field)
			if !p.CaseSensitive {
				s = strings.ToLower(s)
			}
			for _, v := range values {
				if strings.Contains(s, v) {
					return true
				}
			}
			return false
		}
	case KindPositive:
		if !field.Numeric() {
			return compiledPredicate{}, fmt.Errorf("%w: %s on text field %s", ErrBadDescriptor, p.Kind, field)
		}
		test = func(it internal.LineItem) bool {
			v := numberField(it, field)
			return v != nil && *v > 0
		}
	case KindMinLength:
		if field.Numeric() {
			return compiledPredicate{}, fmt.Errorf("%w: %s on numeric field %s", ErrBadDescriptor, p.Kind, field)
		}
		minLen := int(p.Value)
		test = func(it internal.LineItem) bool {
			return len([]rune(strings.TrimSpace(textField(it, field)))) >= minLen
		}
	default:
		return compiledPredicate{}, fmt.Errorf("%w: %q", ErrUnknownPredicate, p.Kind)
	}

	if p.Negate {
		inner := test
		test = func(it internal.LineItem) bool { return !inner(it) }
	}
	return compiledPredicate{desc: p.String(), test: test}, nil
}

func compilePredicates(ps []Predicate) ([]compiledPredicate, error) {
	out := make([]compiledPredicate, 0, len(ps))
	for _, p := range ps {
		cp, err := compilePredicate(p)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

func textField(it internal.LineItem, f internal.Field) string {
	switch f {
	case internal.FieldName:
		return it.Name
	case internal.FieldNumber:
		return it.Number
	case internal.FieldArticle:
		return it.Article
	case internal.FieldUnit:
		return it.Unit
	case internal.FieldCurrency:
		return it.Currency
	case internal.FieldSupplier:
		return it.Supplier
	default:
		return ""
	}
}

func numberField(it internal.LineItem, f internal.Field) *float64 {
	switch f {
	case internal.FieldQty:
		return it.Qty
	case internal.FieldPrice:
		return it.Price
	case internal.FieldTotal:
		return it.Total
	default:
		return nil
	}
}
