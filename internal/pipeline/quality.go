package pipeline

import (
	"strings"

	"procparse/internal"
	"procparse/internal/ocr"
)

var qualityKeywords = []string{"товар", "цена", "количество", "сумма", "итого"}

const (
	minTextQuality  = 0.6
	minTableQuality = 0.5
)

// AssessQuality rates how much of the expected vocabulary and table structure the
// extraction recovered.
func AssessQuality(text string, tables []internal.Table) internal.QualityReport {
	var q internal.QualityReport
	if text != "" {
		lower := strings.ToLower(text)
		found := 0
		for _, kw := range qualityKeywords {
			if strings.Contains(lower, kw) {
				found++
			}
		}
		q.TextQuality = float64(found) / float64(len(qualityKeywords))
		if q.TextQuality < minTextQuality {
			q.Issues = append(q.Issues, "low text layer quality")
			q.Recommendations = append(q.Recommendations, "try OCR to improve the text layer")
		}
	}
	if len(tables) > 0 {
		valid := 0
		for _, t := range tables {
			if ocr.ValidTable(t) {
				valid++
			}
		}
		q.TableQuality = float64(valid) / float64(len(tables))
		if q.TableQuality < minTableQuality {
			q.Issues = append(q.Issues, "table extraction problems")
			q.Recommendations = append(q.Recommendations, "check the document table structure")
		}
	}
	q.Overall = (q.TextQuality + q.TableQuality) / 2
	return q
}
