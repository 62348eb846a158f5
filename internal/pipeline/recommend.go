package pipeline

import (
	"procparse/internal"
)

const (
	MsgNoProductRows       = "no parser found product rows; check document format"
	competitiveNoisyCount  = 10
	lowConfidenceThreshold = 0.7
	highConfidence         = 0.9
)

var typeStrategy = map[internal.DocumentType]string{
	internal.DocCommercial:  "commercial",
	internal.DocInvoice:     "invoice",
	internal.DocCompetitive: "competitive",
}

// Recommend turns the arbitration outcome into human readable hints for the reviewer.
func Recommend(res internal.ArbitrationResult) []string {
	counts := map[string]int{}
	for _, s := range res.Strategies {
		if s.Error == "" {
			counts[s.Name] = s.Count
		}
	}

	var out []string
	dt := res.DocumentType.Dominant
	if name, ok := typeStrategy[dt]; ok {
		if counts[name] > 0 {
			out = append(out, "document parsed by the "+name+" strategy")
		} else {
			out = append(out, string(dt)+" without product rows for the "+name+" strategy")
		}
	}
	if counts["universal"] > 0 {
		out = append(out, "universal strategy found items")
	}
	if counts["competitive"] > competitiveNoisyCount {
		out = append(out, "competitive strategy matched many rows; false positives are likely")
	}

	if res.BestStrategy != "" && len(res.BestItems) > 0 {
		conf := 0.0
		for _, it := range res.BestItems {
			conf += it.Confidence
		}
		switch avg := conf / float64(len(res.BestItems)); {
		case avg < lowConfidenceThreshold:
			out = append(out, "low parsing confidence; manual check recommended")
		case avg > highConfidence:
			out = append(out, "high parsing confidence")
		}
	}

	o := res.Quality.OCR
	switch {
	case o.TimedOut:
		out = append(out, "OCR budget exhausted; recognized text is partial")
	case o.Requested && o.NeedsOCR && !o.Available:
		out = append(out, "OCR needed but unavailable; install tesseract or check OCR settings")
	}
	out = append(out, res.Quality.Recommendations...)

	if res.BestStrategy == "" {
		out = append(out, MsgNoProductRows)
	}
	return out
}
