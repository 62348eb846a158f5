package extract

import (
	"strings"

	"procparse/internal"
	"procparse/internal/util"
)

func (s *Strategy) parseTable(ti int, t internal.Table) []RowOutcome {
	if len(t.Rows) == 0 {
		return nil
	}

	rows := t.Rows
	if len(t.Header) == 0 && s.classifier.IsHeaderRow(rows[0]) {
		t.Header = rows[0]
		rows = rows[1:]
	}

	if len(s.headerPatterns) > 0 && !s.headerCompatible(t.Header) {
		return []RowOutcome{skipped(OriginTable, ti, -1, SkipUnmapped, "header does not match")}
	}

	mapping, method, ok := s.ident.Identify(t)
	if !ok {
		return []RowOutcome{skipped(OriginTable, ti, -1, SkipUnmapped, "no column mapping")}
	}
	s.logger.Debug("table mapped", "strategy", s.desc.Name, "table", ti, "method", method, "columns", t.Width())

	out := make([]RowOutcome, 0, len(rows))
	for ri, row := range rows {
		out = append(out, s.parseRow(ti, ri, row, mapping, method))
	}
	return out
}

func (s *Strategy) headerCompatible(header []string) bool {
	joined := strings.ToLower(util.NormalizeSpaces(strings.Join(header, " ")))
	if joined == "" {
		return false
	}
	for _, re := range s.headerPatterns {
		if re.MatchString(joined) {
			return true
		}
	}
	return false
}

func (s *Strategy) parseRow(ti, ri int, row []string, mapping ColumnMapping, method MappingMethod) RowOutcome {
	if rowEmpty(row) {
		return skipped(OriginTable, ti, ri, SkipEmpty, "")
	}
	if s.classifier.IsHeaderRow(row) {
		return skipped(OriginTable, ti, ri, SkipHeader, "")
	}
	if w := s.classifier.ServiceWord(row); w != "" {
		return skipped(OriginTable, ti, ri, SkipService, w)
	}

	cell := func(f internal.Field) string {
		c, ok := mapping[f]
		if !ok || c >= len(row) {
			return ""
		}
		return util.NormalizeSpaces(row[c])
	}

	it := internal.LineItem{
		Name:     cell(internal.FieldName),
		Number:   cell(internal.FieldNumber),
		Article:  cell(internal.FieldArticle),
		Qty:      util.ParseNumber(cell(internal.FieldQty)),
		Price:    util.ParseNumber(cell(internal.FieldPrice)),
		Total:    util.ParseNumber(cell(internal.FieldTotal)),
		Currency: normalizeCurrency(cell(internal.FieldCurrency)),
		Supplier: cell(internal.FieldSupplier),
	}
	if it.Name != "" && s.desc.NameContinuation > 0 {
		it.Name = s.continueName(row, mapping, it.Name)
	}
	if unit := cell(internal.FieldUnit); unit != "" {
		it.Unit = util.NormalizeUnit(unit)
	} else if s.desc.UnitFromNextCell {
		it.Unit = s.unitFromNextCell(row, mapping)
	}

	if missing := s.missingFields(it); missing != "" {
		return skipped(OriginTable, ti, ri, SkipMissingFields, missing)
	}
	if !util.HasLetterRun(it.Name) {
		return skipped(OriginTable, ti, ri, SkipInvalid, "name has no letters")
	}

	confidence, format := s.desc.TableConfidence, s.desc.tableSource()
	if method == MethodContent {
		confidence, format = s.desc.ContentConfidence, s.desc.contentSource()
	}
	source := formatSource(format, map[string]any{"table": ti, "row": ri, "profile": s.desc.SupplierID})
	it, reason, detail := s.finish(it, confidence, source)
	if reason != SkipNone {
		return skipped(OriginTable, ti, ri, reason, detail)
	}
	return accepted(OriginTable, ti, ri, it)
}

// continueName appends name fragments that over-segmented headers spread across the
// following unmapped cells.
func (s *Strategy) continueName(row []string, mapping ColumnMapping, name string) string {
	start := mapping[internal.FieldName]
	parts := []string{name}
	for c := start + 1; c <= start+s.desc.NameContinuation && c < len(row); c++ {
		if _, mapped := mapping.FieldAt(c); mapped {
			break
		}
		v := util.NormalizeSpaces(row[c])
		if len([]rune(v)) > 2 && !util.LooksNumeric(v) {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

func (s *Strategy) unitFromNextCell(row []string, mapping ColumnMapping) string {
	c, ok := mapping[internal.FieldUnit]
	if !ok {
		return ""
	}
	c++
	if c >= len(row) {
		return ""
	}
	if _, mapped := mapping.FieldAt(c); mapped {
		return ""
	}
	v := util.NormalizeSpaces(row[c])
	if v == "" || len([]rune(v)) > 5 || util.LooksNumeric(v) {
		return ""
	}
	return util.NormalizeUnit(v)
}

func (s *Strategy) missingFields(it internal.LineItem) string {
	required := s.desc.RowRequires
	anyOf := s.desc.RowRequiresAny
	if len(required) == 0 && len(anyOf) == 0 {
		required = []internal.Field{internal.FieldName, internal.FieldQty, internal.FieldPrice}
	}
	var missing []string
	for _, f := range required {
		if !present(it, f) {
			missing = append(missing, string(f))
		}
	}
	if len(anyOf) > 0 {
		found := false
		for _, f := range anyOf {
			if present(it, f) {
				found = true
				break
			}
		}
		if !found {
			names := make([]string, len(anyOf))
			for i, f := range anyOf {
				names[i] = string(f)
			}
			missing = append(missing, strings.Join(names, "|"))
		}
	}
	return strings.Join(missing, ",")
}

func present(it internal.LineItem, f internal.Field) bool {
	if f.Numeric() {
		return numberField(it, f) != nil
	}
	return textField(it, f) != ""
}

func rowEmpty(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
