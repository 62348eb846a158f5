package pipeline

import (
	"strings"

	"procparse/internal"
)

var documentKeywords = map[internal.DocumentType][]string{
	internal.DocInvoice: {
		"счет", "счет-фактура", "invoice", "bill", "оплата", "платеж",
		"ндс", "итого", "сумма", "к оплате", "банковские реквизиты",
	},
	internal.DocCommercial: {
		"коммерческое предложение", "commercial proposal", "предложение",
		"условия поставки", "сроки поставки", "гарантия", "спецификация",
	},
	internal.DocCompetitive: {
		"конкурс", "тендер", "аукцион", "заявка", "предложение",
		"техническое задание", "тз", "спецификация",
	},
	internal.DocContract: {
		"договор", "контракт", "соглашение", "contract", "agreement",
		"стороны", "обязательства", "ответственность", "форс-мажор",
	},
}

// ClassifyDocument scores text against the per-type keyword sets. Each keyword
// present counts once and the scores are normalized by the total.
func ClassifyDocument(text string) internal.DocumentTypeEstimate {
	lower := strings.ReplaceAll(strings.ToLower(text), "ё", "е")
	scores := make(map[internal.DocumentType]float64, len(internal.DocumentTypes))
	total := 0.0
	for _, dt := range internal.DocumentTypes {
		hits := 0.0
		for _, kw := range documentKeywords[dt] {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		scores[dt] = hits
		total += hits
	}
	if total > 0 {
		for dt := range scores {
			scores[dt] /= total
		}
	}
	return internal.DocumentTypeEstimate{Scores: scores, Dominant: dominant(scores)}
}

// dominant picks the top score; ties keep the DocumentTypes order.
func dominant(scores map[internal.DocumentType]float64) internal.DocumentType {
	best, bestScore := internal.DocUnknown, 0.0
	for _, dt := range internal.DocumentTypes {
		if scores[dt] > bestScore {
			best, bestScore = dt, scores[dt]
		}
	}
	return best
}

type DetectResult struct {
	IsProcurement bool
	Score         float64
	Reason        string
}

var requestKeywords = []string{"заявк", "кп", "коммерческ", "счет", "спецификац", "прошу", "кол-во", "qty", "цена"}

// DetectProcurement decides whether an incoming message is worth running through the
// extraction pipeline.
func DetectProcurement(subject, text string, attachmentNames []string, tables int) DetectResult {
	subject = strings.ToLower(subject)
	text = strings.ToLower(text)

	score := 0.0
	for _, kw := range requestKeywords {
		if strings.Contains(subject, kw) {
			score += 0.2
		}
		if strings.Contains(text, kw) {
			score += 0.1
		}
	}

	qtyHits := countNumberRuns(text)
	if qtyHits >= 2 {
		score += 0.4
	} else if qtyHits == 1 {
		score += 0.2
	}

	for _, name := range attachmentNames {
		if SupportedExtension(name) && !strings.HasSuffix(strings.ToLower(name), ".txt") {
			score += 0.25
			break
		}
	}
	if tables > 0 {
		score += 0.25
	}
	if score > 1 {
		score = 1
	}

	ok := score >= 0.45
	reason := "rules_negative"
	if ok {
		reason = "rules_positive"
	}
	return DetectResult{IsProcurement: ok, Score: score, Reason: reason}
}

func countNumberRuns(text string) int {
	count := 0
	for i := 0; i < len(text); i++ {
		if text[i] >= '0' && text[i] <= '9' {
			count++
			for i+1 < len(text) && text[i+1] >= '0' && text[i+1] <= '9' {
				i++
			}
		}
	}
	return count
}
