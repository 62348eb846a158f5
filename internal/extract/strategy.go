package extract

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"procparse/internal"
)

// Parser is the contract every strategy fulfils.
type Parser interface {
	Name() string
	Parse(text string, tables []internal.Table) StrategyResult
}

type Option func(*options)

type options struct {
	logger     *slog.Logger
	classifier *Classifier
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithClassifier(c *Classifier) Option {
	return func(o *options) { o.classifier = c }
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.classifier == nil {
		o.classifier = NewClassifier()
	}
	return o
}

type linePattern struct {
	re         *regexp.Regexp
	confidence float64
}

// Strategy runs one compiled Descriptor. It is immutable after Compile and safe for
// concurrent use.
type Strategy struct {
	desc           Descriptor
	ident          *Identifier
	classifier     *Classifier
	headerPatterns []*regexp.Regexp
	patterns       []linePattern
	filters        []compiledPredicate
	validators     []compiledPredicate
	logger         *slog.Logger
}

func Compile(d Descriptor, opts ...Option) (*Strategy, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	s := &Strategy{
		desc:       d,
		ident:      NewIdentifier(d),
		classifier: o.classifier,
		logger:     o.logger,
	}
	for _, p := range d.HeaderPatterns {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: header pattern %q: %v", ErrBadDescriptor, d.Name, p, err)
		}
		s.headerPatterns = append(s.headerPatterns, re)
	}
	for i, p := range d.Text.Patterns {
		re, err := compilePattern(p.Regex)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: text pattern %d: %v", ErrBadDescriptor, d.Name, i, err)
		}
		s.patterns = append(s.patterns, linePattern{re: re, confidence: p.Confidence})
	}
	var err error
	if s.filters, err = compilePredicates(d.Filters); err != nil {
		return nil, fmt.Errorf("%s: filters: %w", d.Name, err)
	}
	if s.validators, err = compilePredicates(d.Validators); err != nil {
		return nil, fmt.Errorf("%s: validators: %w", d.Name, err)
	}
	return s, nil
}

func (s *Strategy) Name() string { return s.desc.Name }

func (s *Strategy) Descriptor() Descriptor { return s.desc }

// Parse never fails the caller: a panic on odd data becomes StrategyResult.Err.
func (s *Strategy) Parse(text string, tables []internal.Table) (res StrategyResult) {
	res.Strategy = s.desc.Name
	res.SupplierID = s.desc.SupplierID
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("strategy failed", "strategy", s.desc.Name, "panic", r)
			res.Items = nil
			res.Err = fmt.Errorf("%w: %s: %v", ErrStrategyFailed, s.desc.Name, r)
		}
	}()

	for ti, t := range tables {
		res.Outcomes = append(res.Outcomes, s.parseTable(ti, t)...)
	}
	if s.desc.Text.Enabled && strings.TrimSpace(text) != "" {
		res.Outcomes = append(res.Outcomes, s.parseText(text)...)
	}

	for _, o := range res.Outcomes {
		if o.Accepted() {
			res.Items = append(res.Items, *o.Item)
			continue
		}
		s.logger.Debug("row skipped", "strategy", s.desc.Name, "origin", o.Origin,
			"table", o.Table, "row", o.Row, "reason", o.Reason, "detail", o.Detail)
	}
	return res
}

// finish applies the total rule, predicates and provenance to a raw item.
func (s *Strategy) finish(it internal.LineItem, confidence float64, source string) (internal.LineItem, SkipReason, string) {
	if it.Currency == "" {
		it.Currency = s.desc.currency()
	}
	if it.Total == nil && it.Qty != nil && it.Price != nil {
		total := *it.Qty * *it.Price
		it.Total = &total
		it.TotalComputed = true
	}
	for _, p := range s.filters {
		if !p.test(it) {
			return it, SkipPredicate, "filter " + p.desc
		}
	}
	for _, p := range s.validators {
		if !p.test(it) {
			return it, SkipPredicate, "validator " + p.desc
		}
	}
	confidence += s.desc.ConfidenceBoost
	if confidence > 1 {
		confidence = 1
	}
	it.Confidence = confidence
	it.Source = source
	if s.desc.SupplierID != "" {
		it.SupplierID = s.desc.SupplierID
		if it.Supplier == "" {
			it.Supplier = s.desc.SupplierName
		}
	}
	return it, SkipNone, ""
}

// normalizeCurrency maps the currency marks seen in documents to ISO codes.
func normalizeCurrency(raw string) string {
	c := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case c == "":
		return ""
	case strings.HasPrefix(c, "руб"), c == "р", c == "р.", c == "₽", c == "rub", c == "rur":
		return "RUB"
	case strings.HasPrefix(c, "долл"), c == "usd", c == "$":
		return "USD"
	case strings.HasPrefix(c, "евро"), c == "eur", c == "€":
		return "EUR"
	default:
		return strings.ToUpper(c)
	}
}
