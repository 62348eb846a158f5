package util

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	reQuotes     = regexp.MustCompile(`["'` + "`" + `«»]`)
	reNonAllowed = regexp.MustCompile(`[^A-ZА-Я0-9X\-/\s.]`)
	reSpaces     = regexp.MustCompile(`\s+`)
	reLetterRun  = regexp.MustCompile(`\p{L}{2,}`)
	reLetter     = regexp.MustCompile(`\p{L}`)
)

// CleanText folds text to NFC and unifies line endings and no-break spaces.
// PDF text layers often carry decomposed "й" and "ё".
func CleanText(input string) string {
	s := norm.NFC.String(input)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.ReplaceAll(s, "\u00A0", " ")
}

func NormalizeSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

// NormalizeLabel lowercases a header cell, turns punctuation into spaces and collapses
// whitespace. Symbols such as "№" survive.
func NormalizeLabel(input string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(norm.NFC.String(input)) {
		switch {
		case r == 'ё':
			b.WriteRune('е')
		case unicode.IsPunct(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return NormalizeSpaces(b.String())
}

// HasLetterRun reports whether s contains two consecutive letters.
func HasLetterRun(s string) bool {
	return reLetterRun.MatchString(s)
}

func HasLetter(s string) bool {
	return reLetter.MatchString(s)
}

// NormalizeName is the catalog form of a product name used for exact and fuzzy matching.
func NormalizeName(input string) string {
	s := strings.ToUpper(input)
	s = strings.ReplaceAll(s, "Ё", "Е")
	repl := strings.NewReplacer("×", "X", "Х", "X", "х", "X", "*", "X", "ММ²", "MM2", "КВ.ММ", "MM2", "КВ ММ", "MM2", "MM²", "MM2")
	s = repl.Replace(s)
	s = reQuotes.ReplaceAllString(s, " ")
	s = reNonAllowed.ReplaceAllString(s, " ")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func NormalizeCode(input string) string {
	s := strings.ToUpper(input)
	repl := strings.NewReplacer("×", "X", "Х", "X", "х", "X", "*", "X")
	s = repl.Replace(s)
	s = strings.ReplaceAll(s, " ", "")
	out := strings.Builder{}
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= 'А' && r <= 'Я') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '/' || r == '.' {
			out.WriteRune(r)
		}
	}
	return out.String()
}

func Tokenize(input string) []string {
	parts := strings.Split(NormalizeName(input), " ")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if len([]rune(p)) >= 2 {
			out = append(out, p)
		}
	}
	return out
}

func LooksLikeCode(input string) bool {
	if len(strings.TrimSpace(input)) < 3 {
		return false
	}
	hasLetter, hasDigit := false, false
	for _, r := range input {
		if unicode.IsLetter(r) {
			hasLetter = true
		}
		if r >= '0' && r <= '9' {
			hasDigit = true
		}
	}
	return hasLetter && hasDigit && !strings.Contains(strings.TrimSpace(input), " ")
}

// DiceCoefficient is the Sørensen–Dice similarity over rune bigrams.
func DiceCoefficient(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	pairs := func(s string) []string {
		r := []rune(s)
		if len(r) < 2 {
			return nil
		}
		out := make([]string, 0, len(r)-1)
		for i := 0; i < len(r)-1; i++ {
			out = append(out, string(r[i:i+2]))
		}
		return out
	}

	aPairs := pairs(a)
	bPairs := pairs(b)
	if len(aPairs) == 0 || len(bPairs) == 0 {
		return 0
	}

	bCount := map[string]int{}
	for _, p := range bPairs {
		bCount[p]++
	}
	inter := 0
	for _, p := range aPairs {
		if bCount[p] > 0 {
			inter++
			bCount[p]--
		}
	}

	return float64(2*inter) / float64(len(aPairs)+len(bPairs))
}

func StringPtr(v string) *string { return &v }

func FloatPtr(v float64) *float64 { return &v }

func IntPtr(v int) *int { return &v }

func DerefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
