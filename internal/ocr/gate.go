package ocr

import (
	"fmt"
	"strings"

	"procparse/internal"
)

// DomainKeywords are expected in any readable procurement document.
var DomainKeywords = []string{"товар", "цена", "количество", "сумма", "итого", "ндс"}

const (
	MinTextLength  = 100
	MinKeywordHits = 2
)

type Decision struct {
	NeedsOCR    bool
	Reasons     []string
	TextLength  int
	KeywordHits int
	ValidTables int
}

// NeedsOCR decides whether the text layer looks too poor to trust on its own.
func NeedsOCR(text string, tables []internal.Table) Decision {
	d := Decision{TextLength: len([]rune(strings.TrimSpace(text)))}

	if d.TextLength < MinTextLength {
		d.Reasons = append(d.Reasons, fmt.Sprintf("text layer has %d characters", d.TextLength))
	}

	lower := strings.ToLower(text)
	for _, kw := range DomainKeywords {
		if strings.Contains(lower, kw) {
			d.KeywordHits++
		}
	}
	if d.KeywordHits < MinKeywordHits {
		d.Reasons = append(d.Reasons, fmt.Sprintf("only %d domain keywords", d.KeywordHits))
	}

	for _, t := range tables {
		if ValidTable(t) {
			d.ValidTables++
		}
	}
	if len(tables) > 0 && d.ValidTables == 0 {
		d.Reasons = append(d.Reasons, "no table has more than one row and two columns")
	}

	d.NeedsOCR = len(d.Reasons) > 0
	return d
}

// ValidTable reports whether a table has more than one row and more than two columns.
func ValidTable(t internal.Table) bool {
	return len(t.Rows) > 1 && t.Width() > 2
}
