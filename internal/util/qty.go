package util

import (
	"regexp"
	"strings"
)

// UnitPattern matches the unit abbreviations seen in supplier documents.
// Longer alternatives come first so that "м2" wins over "м".
const UnitPattern = `(?:штук[аи]?|шт|компл(?:ект)?|упак|уп|пог\.?\s?м|п\.м|кв\.?\s?м|м2|м3|км|кг|метр(?:ов|а)?|м|тн|т|л|рул|бухт[аы]?|ед|усл(?:уга)?|рейс|час|pcs|pc|kg|m)`

var (
	unitPattern    = regexp.MustCompile(`(?i)(?:^|[\s\d])(` + UnitPattern + `)\.?(?:$|[\s,;])`)
	numberToken    = `\d{1,3}(?:[ \x{00A0}]\d{3})+(?:[.,]\d+)?|\d+(?:[.,]\d+)?`
	reNumericCell  = regexp.MustCompile(`^-?(?:` + numberToken + `)\s*(?:руб\.?|р\.|₽|rub|usd|eur|\$|€)?$`)
	qtyWithUnit    = regexp.MustCompile(`(?i)(?:^|[^0-9.,])(` + numberToken + `)\s*(` + UnitPattern + `)\.?(?:$|[^\p{L}])`)
	numberAnywhere = regexp.MustCompile(`(?:^|[^0-9.,])(` + numberToken + `)`)
	unitExact      = regexp.MustCompile(`(?i)^` + UnitPattern + `\.?$`)
)

// NumberToken is the regexp fragment for one number with optional thousands groups.
func NumberToken() string { return numberToken }

type ParsedQty struct {
	Qty    *float64
	Unit   *string
	QtyRaw *string
}

// ParseQty finds the quantity in a free-text line: the last number followed by a unit,
// or else the last number at all.
func ParseQty(input string) ParsedQty {
	line := strings.ReplaceAll(input, "\u00A0", " ")

	qtyRaw := ""
	qtyToken := ""
	unit := ""
	if wm := qtyWithUnit.FindAllStringSubmatch(line, -1); len(wm) > 0 {
		last := wm[len(wm)-1]
		qtyRaw = strings.TrimSpace(last[1] + " " + last[2])
		qtyToken = last[1]
		unit = last[2]
	} else if nm := numberAnywhere.FindAllStringSubmatch(line, -1); len(nm) > 0 {
		last := nm[len(nm)-1]
		qtyRaw = strings.TrimSpace(last[1])
		qtyToken = last[1]
	}

	out := ParsedQty{}
	if qtyToken != "" {
		out.Qty = ParseNumber(qtyToken)
		out.QtyRaw = StringPtr(qtyRaw)
	}
	if unit == "" {
		if um := unitPattern.FindStringSubmatch(line); len(um) > 1 {
			unit = um[1]
		}
	}
	if unit != "" {
		out.Unit = StringPtr(NormalizeUnit(unit))
	}
	return out
}

// IsUnit reports whether the whole token is a unit abbreviation.
func IsUnit(token string) bool {
	return unitExact.MatchString(strings.TrimSpace(token))
}

func NormalizeUnit(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	u = strings.TrimSuffix(u, ".")
	switch u {
	case "шт", "штук", "штука", "штуки", "pcs", "pc":
		return "шт"
	case "м", "метр", "метров", "метра", "m":
		return "м"
	case "kg", "кг":
		return "кг"
	case "уп", "упак":
		return "уп"
	case "компл", "комплект":
		return "компл"
	case "бухта", "бухты":
		return "бухт"
	default:
		return u
	}
}
