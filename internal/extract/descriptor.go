package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"procparse/internal"
	"procparse/internal/util"
)

var (
	ErrBadDescriptor    = errors.New("bad strategy descriptor")
	ErrUnknownPredicate = errors.New("unknown predicate kind")
	ErrStrategyFailed   = errors.New("strategy failed")
)

// Descriptor is the declarative form of one parsing strategy.
type Descriptor struct {
	Name string `yaml:"name"`

	Synonyms              map[internal.Field][]string `yaml:"synonyms"`
	Layouts               []Layout                    `yaml:"layouts"`
	ForceLayoutMinColumns int                         `yaml:"force_layout_min_columns"`
	ContentAnalysis       bool                        `yaml:"content_analysis"`
	ContentRows           int                         `yaml:"content_rows"`
	FixedMapping          map[internal.Field]int      `yaml:"fixed_mapping"`
	HeaderPatterns        []string                    `yaml:"header_patterns"`

	RowRequires       []internal.Field `yaml:"row_requires"`
	RowRequiresAny    []internal.Field `yaml:"row_requires_any"`
	NameContinuation  int              `yaml:"name_continuation"`
	UnitFromNextCell  bool             `yaml:"unit_from_next_cell"`
	TableConfidence   float64          `yaml:"table_confidence"`
	ContentConfidence float64          `yaml:"content_confidence"`
	SourceFormat      string           `yaml:"source_format"`
	ContentSource     string           `yaml:"content_source_format"`

	Text TextRules `yaml:"text"`

	Filters         []Predicate `yaml:"filters"`
	Validators      []Predicate `yaml:"validators"`
	ConfidenceBoost float64     `yaml:"confidence_boost"`
	Currency        string      `yaml:"currency"`

	SupplierID   string `yaml:"-"`
	SupplierName string `yaml:"-"`
}

type TextRules struct {
	Enabled          bool          `yaml:"enabled"`
	MinLineLength    int           `yaml:"min_line_length"`
	Patterns         []LinePattern `yaml:"patterns"`
	SourceFormat     string        `yaml:"source_format"`
	StructuredBlocks *TextFallback `yaml:"structured_blocks"`
	TokenFallback    *TextFallback `yaml:"token_fallback"`
}

// LinePattern is a regexp with named groups named after fields. The placeholders
// {num}, {unit} and {cur} expand to the shared number, unit and currency fragments.
type LinePattern struct {
	Regex      string  `yaml:"regex"`
	Confidence float64 `yaml:"confidence"`
}

type TextFallback struct {
	Confidence   float64 `yaml:"confidence"`
	SourceFormat string  `yaml:"source_format"`
}

// ParseDescriptor decodes one YAML descriptor.
func ParseDescriptor(data []byte) (Descriptor, error) {
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("%w: %v", ErrBadDescriptor, err)
	}
	if strings.TrimSpace(d.Name) == "" {
		return Descriptor{}, fmt.Errorf("%w: missing name", ErrBadDescriptor)
	}
	return d, nil
}

const currencyPattern = `(?:руб(?:лей|ля|\.)?|р\.|₽|rub|usd|eur|\$|€)`

var placeholders = strings.NewReplacer(
	"{num}", "(?:"+util.NumberToken()+")",
	"{unit}", util.UnitPattern+`\.?`,
	"{cur}", currencyPattern,
)

func compilePattern(expr string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(`(?i)` + placeholders.Replace(expr))
	if err != nil {
		return nil, err
	}
	known := map[string]bool{"": true}
	for _, f := range internal.FieldOrder {
		known[string(f)] = true
	}
	for _, name := range re.SubexpNames() {
		if !known[name] {
			return nil, fmt.Errorf("unknown group %q", name)
		}
	}
	return re, nil
}

func (d Descriptor) validate() error {
	for _, l := range d.Layouts {
		if l.MinColumns <= 0 {
			return fmt.Errorf("%w: %s: layout min_columns must be positive", ErrBadDescriptor, d.Name)
		}
		for f, c := range l.Fields {
			if c < 0 || c >= l.MinColumns {
				return fmt.Errorf("%w: %s: layout %d puts %s at column %d", ErrBadDescriptor, d.Name, l.MinColumns, f, c)
			}
		}
	}
	for f, c := range d.FixedMapping {
		if c < 0 {
			return fmt.Errorf("%w: %s: fixed mapping %s=%d", ErrBadDescriptor, d.Name, f, c)
		}
	}
	if d.ConfidenceBoost < 0 || d.ConfidenceBoost > 1 {
		return fmt.Errorf("%w: %s: confidence_boost out of range", ErrBadDescriptor, d.Name)
	}
	return nil
}

func (d Descriptor) tableSource() string {
	if d.SourceFormat != "" {
		return d.SourceFormat
	}
	return "table_{table}_row_{row}"
}

func (d Descriptor) contentSource() string {
	if d.ContentSource != "" {
		return d.ContentSource
	}
	return d.tableSource()
}

func (d Descriptor) currency() string {
	if d.Currency != "" {
		return d.Currency
	}
	return internal.DefaultCurrency
}

func formatSource(format string, vars map[string]any) string {
	out := format
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{"+k+"}", fmt.Sprint(v))
	}
	return out
}
