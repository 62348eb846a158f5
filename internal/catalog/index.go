package catalog

import (
	"procparse/internal"
	"procparse/internal/util"
)

type Index struct {
	ProductsByID       map[int]internal.ProductRecord
	ByCode             map[string][]internal.ProductRecord
	ByName             map[string][]internal.ProductRecord
	TokenToProductIDs  map[string]map[int]struct{}
	NormalizedNameByID map[int]string
}

func BuildIndex(products []internal.ProductRecord) *Index {
	idx := &Index{
		ProductsByID:       map[int]internal.ProductRecord{},
		ByCode:             map[string][]internal.ProductRecord{},
		ByName:             map[string][]internal.ProductRecord{},
		TokenToProductIDs:  map[string]map[int]struct{}{},
		NormalizedNameByID: map[int]string{},
	}

	for _, p := range products {
		idx.ProductsByID[p.ID] = p
		normName := util.NormalizeName(p.Name)
		idx.NormalizedNameByID[p.ID] = normName
		idx.ByName[normName] = append(idx.ByName[normName], p)

		addCode := func(code string) {
			norm := util.NormalizeCode(code)
			if norm == "" {
				return
			}
			idx.ByCode[norm] = append(idx.ByCode[norm], p)
		}

		addCode(p.SKU)
		addCode(util.DerefString(p.Article))
		for _, code := range p.Codes {
			addCode(code)
		}

		for _, token := range util.Tokenize(p.Name) {
			if _, ok := idx.TokenToProductIDs[token]; !ok {
				idx.TokenToProductIDs[token] = map[int]struct{}{}
			}
			idx.TokenToProductIDs[token][p.ID] = struct{}{}
		}
	}

	return idx
}

func (idx *Index) Len() int { return len(idx.ProductsByID) }
