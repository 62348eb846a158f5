package pipeline

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"procparse/internal"
)

var ExportHeaders = []string{
	"ordinal", "name", "article", "qty", "unit", "price", "currency", "total", "total_computed",
	"confidence", "source", "supplier",
	"match_status", "match_score", "match_reason", "product_sku", "product_name",
	"candidate2_name", "candidate2_score",
}

const runSheet = "run"

// ExportRows pairs best items with their matches; matches may be nil.
func ExportRows(items []internal.LineItem, matches []internal.MatchResult) []internal.ExportRow {
	out := make([]internal.ExportRow, 0, len(items))
	for i, it := range items {
		row := internal.ExportRow{Ordinal: i + 1, Item: it}
		if i < len(matches) {
			m := matches[i]
			row.MatchStatus = string(m.Status)
			row.MatchScore = m.Confidence
			row.MatchReason = string(m.Reason)
			if m.Product != nil {
				sku, name := m.Product.SKU, m.Product.Name
				row.ProductSKU, row.ProductName = &sku, &name
			}
			if len(m.Candidates) > 1 {
				name, score := m.Candidates[1].Name, m.Candidates[1].Score
				row.Candidate2, row.Candidate2Sc = &name, &score
			}
		}
		out = append(out, row)
	}
	return out
}

// ExportRowsToXLSX writes one row per item. When run is set a second sheet carries the
// run summary and recommendations.
func ExportRowsToXLSX(rows []internal.ExportRow, run *internal.RunRow, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	for i, h := range ExportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, row := range rows {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		it := row.Item
		set(1, row.Ordinal)
		set(2, it.Name)
		set(3, it.Article)
		set(4, derefFloat(it.Qty))
		set(5, it.Unit)
		set(6, derefFloat(it.Price))
		set(7, it.Currency)
		set(8, derefFloat(it.Total))
		set(9, it.TotalComputed)
		set(10, it.Confidence)
		set(11, it.Source)
		set(12, it.Supplier)
		set(13, row.MatchStatus)
		set(14, row.MatchScore)
		set(15, row.MatchReason)
		set(16, derefString(row.ProductSKU))
		set(17, derefString(row.ProductName))
		set(18, derefString(row.Candidate2))
		set(19, derefFloat(row.Candidate2Sc))
	}

	if run != nil {
		if _, err := f.NewSheet(runSheet); err != nil {
			return err
		}
		summary := [][]any{
			{"run_id", run.RunID},
			{"best_strategy", run.BestStrategy},
			{"document_type", run.DocumentType},
			{"supplier_id", run.SupplierID},
			{"items", len(rows)},
			{"recommendations", strings.Join(run.Recommendations, "\n")},
		}
		for i, kv := range summary {
			for j, v := range kv {
				cell, _ := excelize.CoordinatesToCellName(j+1, i+1)
				_ = f.SetCellValue(runSheet, cell, v)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefFloat(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}
