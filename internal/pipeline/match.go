package pipeline

import (
	"context"
	"sort"

	"procparse/internal"
	"procparse/internal/catalog"
	"procparse/internal/util"
)

const maxCandidates = 5

type MatchThresholds struct {
	Auto    float64
	Suggest float64
	Gap     float64
}

func DefaultMatchThresholds() MatchThresholds {
	return MatchThresholds{Auto: 0.90, Suggest: 0.70, Gap: 0.08}
}

// Matcher maps extracted items to catalog products. The index comes from an injected
// cache so a catalog sync can invalidate it.
type Matcher struct {
	th    MatchThresholds
	cache *catalog.Cache
}

func NewMatcher(th MatchThresholds, cache *catalog.Cache) *Matcher {
	return &Matcher{th: th, cache: cache}
}

func (m *Matcher) MatchAll(ctx context.Context, items []internal.LineItem) ([]internal.MatchResult, error) {
	index, err := m.cache.Index(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]internal.MatchResult, 0, len(items))
	for _, it := range items {
		out = append(out, m.match(index, it))
	}
	return out, nil
}

func (m *Matcher) Match(ctx context.Context, item internal.LineItem) (internal.MatchResult, error) {
	index, err := m.cache.Index(ctx)
	if err != nil {
		return internal.MatchResult{}, err
	}
	return m.match(index, item), nil
}

func (m *Matcher) match(index *catalog.Index, item internal.LineItem) internal.MatchResult {
	codes := []string{item.Article}
	if util.LooksLikeCode(item.Name) {
		codes = append(codes, item.Name)
	}
	for _, code := range codes {
		norm := util.NormalizeCode(code)
		if norm == "" {
			continue
		}
		byCode := index.ByCode[norm]
		if len(byCode) == 1 {
			return m.adjustForInvalidQty(item, internal.MatchResult{
				Status:     internal.MatchAuto,
				Confidence: 0.99,
				Reason:     internal.ReasonCode,
				Product:    toCandidate(byCode[0], 0.99),
				Candidates: toCandidates(byCode, 0.99),
			})
		}
		if len(byCode) > 1 {
			return internal.MatchResult{
				Status:     internal.MatchSuggest,
				Confidence: 0.80,
				Reason:     internal.ReasonCode,
				Candidates: toCandidates(byCode, 0.80),
			}
		}
	}

	normalized := util.NormalizeName(item.Name)
	exact := index.ByName[normalized]
	if len(exact) == 1 {
		return m.adjustForInvalidQty(item, internal.MatchResult{
			Status:     internal.MatchAuto,
			Confidence: 0.95,
			Reason:     internal.ReasonHeader,
			Product:    toCandidate(exact[0], 0.95),
			Candidates: toCandidates(exact, 0.95),
		})
	}
	if len(exact) > 1 {
		return internal.MatchResult{
			Status:     internal.MatchSuggest,
			Confidence: 0.78,
			Reason:     internal.ReasonHeader,
			Candidates: toCandidates(exact, 0.78),
		}
	}

	candidates := rankCandidates(index, normalized)
	if len(candidates) == 0 {
		return internal.MatchResult{Status: internal.MatchNotFound, Reason: internal.ReasonNone, Candidates: []internal.MatchCandidate{}}
	}

	top := candidates[0]
	gap := top.Score
	if len(candidates) > 1 {
		gap = top.Score - candidates[1].Score
	}

	var result internal.MatchResult
	switch {
	case top.Score >= m.th.Auto && gap >= m.th.Gap:
		result = internal.MatchResult{Status: internal.MatchAuto, Confidence: top.Score, Reason: internal.ReasonFuzzy, Product: &top, Candidates: candidates}
	case top.Score >= m.th.Suggest:
		result = internal.MatchResult{Status: internal.MatchSuggest, Confidence: top.Score, Reason: internal.ReasonFuzzy, Product: &top, Candidates: candidates}
	default:
		result = internal.MatchResult{Status: internal.MatchNotFound, Confidence: top.Score, Reason: internal.ReasonNone, Candidates: candidates}
	}
	return m.adjustForInvalidQty(item, result)
}

// adjustForInvalidQty downgrades automatic matches of rows without a usable quantity.
func (m *Matcher) adjustForInvalidQty(item internal.LineItem, base internal.MatchResult) internal.MatchResult {
	if item.Qty != nil && *item.Qty > 0 || base.Status == internal.MatchNotFound {
		return base
	}
	base.Status = internal.MatchSuggest
	if base.Confidence > 0.7 {
		base.Confidence = 0.7
	}
	return base
}

func rankCandidates(index *catalog.Index, query string) []internal.MatchCandidate {
	queryTokens := util.Tokenize(query)
	ids := map[int]struct{}{}
	for _, token := range queryTokens {
		for id := range index.TokenToProductIDs[token] {
			ids[id] = struct{}{}
		}
	}
	if len(ids) == 0 {
		return nil
	}

	out := make([]internal.MatchCandidate, 0, len(ids))
	for id := range ids {
		name := index.NormalizedNameByID[id]
		score := scoreName(query, name, queryTokens, util.Tokenize(name))
		out = append(out, *toCandidate(index.ProductsByID[id], score))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > maxCandidates {
		out = out[:maxCandidates]
	}
	return out
}

// scoreName blends bigram similarity with the share of query tokens found.
func scoreName(query, candidate string, queryTokens, candidateTokens []string) float64 {
	dice := util.DiceCoefficient(query, candidate)
	if len(queryTokens) == 0 || len(candidateTokens) == 0 {
		return dice
	}

	set := map[string]struct{}{}
	for _, t := range candidateTokens {
		set[t] = struct{}{}
	}
	overlap := 0
	for _, t := range queryTokens {
		if _, ok := set[t]; ok {
			overlap++
		}
	}
	return 0.65*dice + 0.35*float64(overlap)/float64(len(queryTokens))
}

func toCandidate(p internal.ProductRecord, score float64) *internal.MatchCandidate {
	return &internal.MatchCandidate{ID: p.ID, SKU: p.SKU, Name: p.Name, Score: score}
}

func toCandidates(products []internal.ProductRecord, score float64) []internal.MatchCandidate {
	limit := min(len(products), maxCandidates)
	out := make([]internal.MatchCandidate, 0, limit)
	for _, p := range products[:limit] {
		out = append(out, *toCandidate(p, score))
	}
	return out
}
