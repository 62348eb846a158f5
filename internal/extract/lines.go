package extract

import (
	"regexp"
	"strings"
	"unicode"

	"procparse/internal"
	"procparse/internal/util"
)

const defaultMinLength = 10

var (
	reBlockSplit    = regexp.MustCompile(`\n\s*\n`)
	rePlainNumber   = regexp.MustCompile(`^\d[\d.,]*$`)
	reCurrencyExact = regexp.MustCompile(`(?i)^` + currencyPattern + `$`)
)

// blockKeys maps "key: value" captions to fields; earlier entries win.
var blockKeys = []struct {
	field internal.Field
	words []string
}{
	{internal.FieldName, []string{"наименование", "название", "товар"}},
	{internal.FieldQty, []string{"количество", "кол-во", "кол", "объем"}},
	{internal.FieldPrice, []string{"цена", "стоимость", "тариф"}},
	{internal.FieldUnit, []string{"единица", "ед.изм", "ед"}},
	{internal.FieldCurrency, []string{"валюта", "currency"}},
	{internal.FieldTotal, []string{"сумма", "итого", "общая"}},
	{internal.FieldSupplier, []string{"поставщик", "supplier", "компания"}},
}

func (s *Strategy) parseText(text string) []RowOutcome {
	clean := util.CleanText(text)
	var out []RowOutcome
	if sb := s.desc.Text.StructuredBlocks; sb != nil {
		out = append(out, s.parseBlocks(clean, *sb)...)
	}

	minLen := s.desc.Text.MinLineLength
	if minLen <= 0 {
		minLen = defaultMinLength
	}
	for li, raw := range strings.Split(clean, "\n") {
		line := util.NormalizeSpaces(raw)
		switch {
		case line == "":
			out = append(out, skipped(OriginLine, -1, li, SkipEmpty, ""))
		case len([]rune(line)) < minLen:
			out = append(out, skipped(OriginLine, -1, li, SkipShortLine, ""))
		case !util.HasLetter(line):
			out = append(out, skipped(OriginLine, -1, li, SkipInvalid, "no letters"))
		case s.classifier.IsHeaderLine(line):
			out = append(out, skipped(OriginLine, -1, li, SkipHeader, ""))
		default:
			out = append(out, s.parseLine(li, line))
		}
	}
	return out
}

func (s *Strategy) parseLine(li int, line string) RowOutcome {
	format := s.desc.Text.SourceFormat
	if format == "" {
		format = "text_line_{line}"
	}
	for _, p := range s.patterns {
		m := p.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		it := itemFromGroups(p.re, m)
		if it.Name == "" || !util.HasLetterRun(it.Name) || it.Qty == nil || it.Price == nil {
			continue
		}
		return s.emitLine(li, it, p.confidence, formatSource(format, map[string]any{"line": li, "profile": s.desc.SupplierID}))
	}

	if fb := s.desc.Text.TokenFallback; fb != nil {
		if it, ok := tokenItem(line); ok {
			f := fb.SourceFormat
			if f == "" {
				f = "table_line_{line}"
			}
			return s.emitLine(li, it, fb.Confidence, formatSource(f, map[string]any{"line": li}))
		}
	}
	return skipped(OriginLine, -1, li, SkipNoPattern, "")
}

func (s *Strategy) emitLine(li int, it internal.LineItem, confidence float64, source string) RowOutcome {
	if w := s.classifier.service.Find(it.Name); w != "" {
		return skipped(OriginLine, -1, li, SkipService, w)
	}
	it, reason, detail := s.finish(it, confidence, source)
	if reason != SkipNone {
		return skipped(OriginLine, -1, li, reason, detail)
	}
	return accepted(OriginLine, -1, li, it)
}

func itemFromGroups(re *regexp.Regexp, m []string) internal.LineItem {
	var it internal.LineItem
	for i, group := range re.SubexpNames() {
		if group == "" || i >= len(m) {
			continue
		}
		v := strings.TrimSpace(m[i])
		if v == "" {
			continue
		}
		switch internal.Field(group) {
		case internal.FieldName:
			it.Name = util.NormalizeSpaces(strings.Trim(v, " -,;:"))
		case internal.FieldNumber:
			it.Number = v
		case internal.FieldArticle:
			it.Article = v
		case internal.FieldQty:
			it.Qty = util.ParseNumber(v)
		case internal.FieldUnit:
			it.Unit = util.NormalizeUnit(v)
		case internal.FieldPrice:
			it.Price = util.ParseNumber(v)
		case internal.FieldTotal:
			it.Total = util.ParseNumber(v)
		case internal.FieldCurrency:
			it.Currency = normalizeCurrency(v)
		case internal.FieldSupplier:
			it.Supplier = v
		}
	}
	return it
}

// tokenItem splits a line on whitespace: words form the name, the first two plain
// numbers are qty and price.
func tokenItem(line string) (internal.LineItem, bool) {
	tokens := strings.Fields(line)
	if len(tokens) < 3 {
		return internal.LineItem{}, false
	}
	var it internal.LineItem
	var name, numbers []string
	for _, tok := range tokens {
		first := []rune(tok)[0]
		switch {
		case reCurrencyExact.MatchString(tok):
			if it.Currency == "" {
				it.Currency = normalizeCurrency(tok)
			}
		case util.IsUnit(tok):
			if it.Unit == "" {
				it.Unit = util.NormalizeUnit(tok)
			}
		case unicode.IsLetter(first):
			name = append(name, tok)
		case rePlainNumber.MatchString(tok):
			numbers = append(numbers, tok)
		}
	}
	if len(name) == 0 || len(numbers) < 2 {
		return internal.LineItem{}, false
	}
	it.Name = strings.Join(name, " ")
	it.Qty = util.ParseNumber(numbers[0])
	it.Price = util.ParseNumber(numbers[1])
	if it.Qty == nil || it.Price == nil || !util.HasLetterRun(it.Name) {
		return internal.LineItem{}, false
	}
	return it, true
}

func (s *Strategy) parseBlocks(text string, rules TextFallback) []RowOutcome {
	format := rules.SourceFormat
	if format == "" {
		format = "structured_text"
	}
	var out []RowOutcome
	for bi, block := range reBlockSplit.Split(text, -1) {
		it, pairs := blockItem(block)
		if pairs == 0 {
			continue
		}
		if missing := missingBlockFields(it); missing != "" {
			out = append(out, skipped(OriginBlock, -1, bi, SkipMissingFields, missing))
			continue
		}
		if w := s.classifier.service.Find(it.Name); w != "" {
			out = append(out, skipped(OriginBlock, -1, bi, SkipService, w))
			continue
		}
		it, reason, detail := s.finish(it, rules.Confidence, formatSource(format, map[string]any{"block": bi}))
		if reason != SkipNone {
			out = append(out, skipped(OriginBlock, -1, bi, reason, detail))
			continue
		}
		out = append(out, accepted(OriginBlock, -1, bi, it))
	}
	return out
}

func blockItem(block string) (internal.LineItem, int) {
	var it internal.LineItem
	pairs := 0
	for _, line := range strings.Split(block, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		for _, bk := range blockKeys {
			if !containsAny(key, bk.words) {
				continue
			}
			pairs++
			switch bk.field {
			case internal.FieldName:
				it.Name = util.NormalizeSpaces(value)
			case internal.FieldQty:
				it.Qty = util.ParseNumber(value)
			case internal.FieldUnit:
				it.Unit = util.NormalizeUnit(value)
			case internal.FieldPrice:
				it.Price = util.ParseNumber(value)
			case internal.FieldCurrency:
				it.Currency = normalizeCurrency(value)
			case internal.FieldTotal:
				it.Total = util.ParseNumber(value)
			case internal.FieldSupplier:
				it.Supplier = value
			}
			break
		}
	}
	return it, pairs
}

func missingBlockFields(it internal.LineItem) string {
	var missing []string
	if it.Name == "" {
		missing = append(missing, "name")
	}
	if it.Qty == nil {
		missing = append(missing, "qty")
	}
	if it.Price == nil {
		missing = append(missing, "price")
	}
	return strings.Join(missing, ",")
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
