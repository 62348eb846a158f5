package extract

import (
	"sort"
	"strings"

	"procparse/internal"
	"procparse/internal/util"
)

// ColumnMapping associates fields with column indexes of one table.
type ColumnMapping map[internal.Field]int

// Acceptable reports whether the mapping has a name and at least one numeric field.
func (m ColumnMapping) Acceptable() bool {
	if _, ok := m[internal.FieldName]; !ok {
		return false
	}
	for _, f := range []internal.Field{internal.FieldQty, internal.FieldPrice, internal.FieldTotal} {
		if _, ok := m[f]; ok {
			return true
		}
	}
	return false
}

// FieldAt returns the field mapped to column col.
func (m ColumnMapping) FieldAt(col int) (internal.Field, bool) {
	for f, c := range m {
		if c == col {
			return f, true
		}
	}
	return "", false
}

type MappingMethod string

const (
	MethodFixed    MappingMethod = "fixed"
	MethodSynonyms MappingMethod = "synonyms"
	MethodLayout   MappingMethod = "layout"
	MethodContent  MappingMethod = "content"
)

// Layout is a canonical column arrangement for tables at least MinColumns wide.
type Layout struct {
	MinColumns int                    `yaml:"min_columns"`
	Fields     map[internal.Field]int `yaml:"fields"`
}

// Identifier infers a ColumnMapping: fixed map, header synonyms, width layouts, then
// row content.
type Identifier struct {
	synonyms        map[internal.Field][]string
	layouts         []Layout
	forceMinColumns int
	contentAnalysis bool
	contentRows     int
	fixed           ColumnMapping
}

func NewIdentifier(d Descriptor) *Identifier {
	id := &Identifier{
		synonyms:        map[internal.Field][]string{},
		forceMinColumns: d.ForceLayoutMinColumns,
		contentAnalysis: d.ContentAnalysis,
		contentRows:     d.ContentRows,
	}
	if id.contentRows <= 0 {
		id.contentRows = 5
	}
	for f, words := range d.Synonyms {
		for _, w := range words {
			if n := util.NormalizeLabel(w); n != "" {
				id.synonyms[f] = append(id.synonyms[f], n)
			}
		}
	}
	id.layouts = append(id.layouts, d.Layouts...)
	sort.SliceStable(id.layouts, func(i, j int) bool { return id.layouts[i].MinColumns > id.layouts[j].MinColumns })
	if len(d.FixedMapping) > 0 {
		id.fixed = ColumnMapping{}
		for f, c := range d.FixedMapping {
			id.fixed[f] = c
		}
	}
	return id
}

// Identify returns the mapping and how it was found; ok is false when no step yields an
// acceptable mapping.
func (id *Identifier) Identify(t internal.Table) (ColumnMapping, MappingMethod, bool) {
	if id.fixed != nil {
		return id.fixed, MethodFixed, id.fixed.Acceptable()
	}

	width := t.Width()
	if id.forceMinColumns > 0 && width >= id.forceMinColumns {
		if m := id.ByLayout(width); m.Acceptable() {
			return m, MethodLayout, true
		}
	}
	if len(t.Header) > 0 {
		if m := id.BySynonyms(t.Header); m.Acceptable() {
			return m, MethodSynonyms, true
		}
	}
	if m := id.ByLayout(width); m.Acceptable() {
		return m, MethodLayout, true
	}
	if id.contentAnalysis {
		if m := id.ByContent(t.Rows); m.Acceptable() {
			return m, MethodContent, true
		}
	}
	return nil, "", false
}

// BySynonyms scans header cells left to right; each column goes to the first field in
// FieldOrder that is still free and has a matching synonym.
func (id *Identifier) BySynonyms(headers []string) ColumnMapping {
	out := ColumnMapping{}
	for col, h := range headers {
		label := util.NormalizeLabel(h)
		if label == "" {
			continue
		}
		for _, f := range internal.FieldOrder {
			if _, taken := out[f]; taken {
				continue
			}
			if id.matches(label, f) {
				out[f] = col
				break
			}
		}
	}
	return out
}

func (id *Identifier) matches(label string, f internal.Field) bool {
	tokens := strings.Fields(label)
	for _, syn := range id.synonyms[f] {
		if len([]rune(syn)) > 3 {
			if strings.Contains(label, syn) {
				return true
			}
			continue
		}
		if label == syn {
			return true
		}
		for _, tok := range tokens {
			if tok == syn {
				return true
			}
		}
		if len(tokens) > 0 && len([]rune(syn)) > 1 && strings.HasPrefix(tokens[0], syn) {
			return true
		}
	}
	return false
}

// ByLayout picks the widest layout the table can hold.
func (id *Identifier) ByLayout(width int) ColumnMapping {
	for _, l := range id.layouts {
		if width < l.MinColumns {
			continue
		}
		out := ColumnMapping{}
		for f, c := range l.Fields {
			if c < width {
				out[f] = c
			}
		}
		return out
	}
	return ColumnMapping{}
}

// ByContent inspects the first data rows and returns the first acceptable guess.
func (id *Identifier) ByContent(rows [][]string) ColumnMapping {
	limit := id.contentRows
	if limit > len(rows) {
		limit = len(rows)
	}
	for _, row := range rows[:limit] {
		if m := guessRow(row); m.Acceptable() {
			return m
		}
	}
	return ColumnMapping{}
}

func guessRow(row []string) ColumnMapping {
	out := ColumnMapping{}
	nameCol, nameLen := -1, 0
	for col, cell := range row {
		cell = strings.TrimSpace(cell)
		if !util.HasLetterRun(cell) || util.IsUnit(cell) {
			continue
		}
		if n := len([]rune(cell)); n > 5 && n > nameLen {
			nameCol, nameLen = col, n
		}
	}
	if nameCol < 0 {
		return out
	}
	out[internal.FieldName] = nameCol

	for col := 0; col < nameCol; col++ {
		if isAllDigits(row[col]) {
			out[internal.FieldNumber] = col
			break
		}
	}

	numeric := []internal.Field{internal.FieldQty, internal.FieldPrice, internal.FieldTotal}
	next := 0
	for col := nameCol + 1; col < len(row); col++ {
		cell := strings.TrimSpace(row[col])
		switch {
		case cell == "":
		case util.IsUnit(cell):
			if _, ok := out[internal.FieldUnit]; !ok {
				out[internal.FieldUnit] = col
			}
		case util.LooksNumeric(cell) && next < len(numeric):
			out[numeric[next]] = col
			next++
		}
	}
	return out
}

func isAllDigits(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
