package pipeline

import (
	"regexp"
	"strings"

	"procparse/internal"
	"procparse/internal/extract"
	"procparse/internal/util"
)

const (
	// PreciseStrategy's score is doubled in arbitration.
	PreciseStrategy = "precise_table"

	minProductNameLength = 10
	minFilteredShare     = 0.5
	preciseMultiplier    = 2
)

var productKeywords = []string{
	"кабель", "сип", "провод", "ввг", "ппг", "перевозка", "транспорт", "доставка", "услуги", "работы",
}

var extraServiceWords = []string{
	"ндс", "четыре", "миллио", "на восе", "мьдесят", "ве тысячи", "шестьсот", "ьдесят", "семь ру",
	"блей", "копеек", "копорское", "шоссе", "указанные", "цены", "скидки", "действуют", "апреля",
	"в течение", "дн",
}

var reDimensions = []*regexp.Regexp{
	regexp.MustCompile(`\d+(?:[.,]\d+)?\s*[хx×*]\s*\d+`),
	regexp.MustCompile(`(?i)\d+(?:[.,]\d+)?\s?(?:мм|кв|м|кг|л|шт|к)(?:$|[^\p{L}])`),
}

// Evaluation is one strategy's standing in arbitration. Raw counts the items the
// strategy emitted; Valid counts them after dedup and validation, which is the base of
// the product-share rule.
type Evaluation struct {
	Strategy string
	Raw      int
	Valid    int
	Items    []internal.LineItem
	Score    float64
	Zeroed   bool
	Err      error
	Summary  internal.StrategySummary
}

// Decision is the arbitration outcome. Best is empty when no strategy scored.
type Decision struct {
	Best        string
	Items       []internal.LineItem
	Evaluations []Evaluation
}

type Arbiter struct {
	validator *Validator
	service   *extract.WordSet
	products  *extract.WordSet
}

func NewArbiter() *Arbiter {
	words := append(append([]string{}, extract.DefaultServiceWords...), extraServiceWords...)
	return &Arbiter{
		validator: NewValidator(),
		service:   extract.NewWordSet(words),
		products:  extract.NewWordSet(productKeywords),
	}
}

// ProductLike is the secondary filter: a long lettered name without boilerplate that
// mentions a product keyword or a dimension.
func (a *Arbiter) ProductLike(it internal.LineItem) bool {
	name := strings.TrimSpace(it.Name)
	if len([]rune(name)) <= minProductNameLength || !util.HasLetter(name) {
		return false
	}
	if a.service.Contains(name) {
		return false
	}
	if a.products.Contains(name) {
		return true
	}
	for _, re := range reDimensions {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// Evaluate dedups, validates and filters one strategy's output and scores it.
func (a *Arbiter) Evaluate(r extract.StrategyResult) Evaluation {
	ev := Evaluation{Strategy: r.Strategy, Raw: len(r.Items), Err: r.Err, Summary: r.Summary()}
	if r.Err != nil {
		return ev
	}

	valid := a.validator.Filter(Dedup(r.Items))
	ev.Valid = len(valid)
	for _, it := range valid {
		if a.ProductLike(it) {
			ev.Items = append(ev.Items, it)
		}
	}

	ev.Score = float64(len(ev.Items))
	if ev.Valid > 0 && float64(len(ev.Items)) < minFilteredShare*float64(ev.Valid) {
		ev.Score = 0
		ev.Zeroed = true
	}
	if r.Strategy == PreciseStrategy {
		ev.Score *= preciseMultiplier
	}

	ev.Summary.ValidCount = len(ev.Items)
	ev.Summary.Score = ev.Score
	return ev
}

// Select evaluates results in the order given and keeps the first strictly highest
// score. Failed strategies score zero.
func (a *Arbiter) Select(results []extract.StrategyResult) Decision {
	d := Decision{Evaluations: make([]Evaluation, 0, len(results))}
	best := 0.0
	for _, r := range results {
		ev := a.Evaluate(r)
		d.Evaluations = append(d.Evaluations, ev)
		if ev.Score > best {
			best = ev.Score
			d.Best = ev.Strategy
			d.Items = ev.Items
		}
	}
	if d.Items == nil {
		d.Items = []internal.LineItem{}
	}
	return d
}
