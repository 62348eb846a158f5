package util

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ParseNumber reads a locale-ambiguous numeric string.
// When both separators occur the comma groups thousands; a single comma followed by at
// most two digits is a decimal point; any other comma groups thousands.
// It returns nil when nothing numeric remains.
func ParseNumber(input string) *float64 {
	var b strings.Builder
	for _, r := range input {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	// separators left over from abbreviations such as "руб." carry no value; a leading
	// one is kept when digits follow it directly (",5" is 0.5)
	s := strings.TrimRight(strings.TrimSpace(b.String()), " .,")
	for len(s) > 1 && (s[0] == '.' || s[0] == ',') && s[1] == ' ' {
		s = strings.TrimLeft(s[1:], " ")
	}

	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")
	switch {
	case hasComma && hasDot:
		s = strings.ReplaceAll(s, ",", "")
	case hasComma:
		parts := strings.Split(s, ",")
		if len(parts) == 2 && len(strings.TrimSpace(parts[1])) <= 2 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// NumberFromCell accepts native numbers as-is and strings through ParseNumber.
func NumberFromCell(v any) *float64 {
	switch t := v.(type) {
	case nil:
		return nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
		return FloatPtr(t)
	case float32:
		return NumberFromCell(float64(t))
	case int:
		return FloatPtr(float64(t))
	case int64:
		return FloatPtr(float64(t))
	case string:
		return ParseNumber(t)
	default:
		return nil
	}
}

// LooksNumeric reports whether the whole cell is a number, optionally with
// thousands groups, a decimal part and a trailing currency mark.
func LooksNumeric(input string) bool {
	return reNumericCell.MatchString(strings.TrimSpace(input))
}
