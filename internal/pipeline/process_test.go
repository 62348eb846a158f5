package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"procparse/internal"
	"procparse/internal/catalog"
	"procparse/internal/storage"
)

func TestSmokeDocumentsToXLSX(t *testing.T) {
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if err := db.UpsertProducts(testProducts()); err != nil {
		t.Fatal(err)
	}

	quote := filepath.Join(tmp, "quote.txt")
	text := "Кабель ВВГнг 3х2.5 100 шт 150.50\nПровод ПВС 2х1.5 200 шт 45.20\n"
	if err := os.WriteFile(quote, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	greeting := filepath.Join(tmp, "greeting.eml")
	if err := os.WriteFile(greeting, mkEmail("Поздравление", "Добрый день, коллеги", "", "", nil), 0o644); err != nil {
		t.Fatal(err)
	}

	register := func(name, path string) internal.DocumentRow {
		doc, err := db.UpsertDocument(internal.DocumentRow{Source: "inbox", ExternalID: name, Filename: name, Hash: name, Path: path})
		if err != nil {
			t.Fatal(err)
		}
		return doc
	}
	quoteDoc := register("quote.txt", quote)
	greetingDoc := register("greeting.eml", greeting)
	brokenDoc := register("missing.txt", filepath.Join(tmp, "missing.txt"))

	pipe := newPipeline(t)
	matcher := NewMatcher(DefaultMatchThresholds(), catalog.NewCache(db))
	svc := NewProcessingService(db, pipe, matcher, ServiceConfig{Workers: 2, Logger: quietLogger()})

	results, err := svc.ProcessPending(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("results=%d", len(results))
	}
	byDoc := map[int]ProcessResult{}
	for _, r := range results {
		byDoc[r.DocumentID] = r
	}
	if r := byDoc[quoteDoc.ID]; r.Status != StatusProcessed || r.Items == 0 || r.RunID == "" {
		t.Fatalf("quote=%+v", r)
	}
	if r := byDoc[greetingDoc.ID]; r.Status != StatusSkipped {
		t.Fatalf("greeting=%+v", r)
	}
	if r := byDoc[brokenDoc.ID]; r.Status != StatusFailed || r.Err == nil {
		t.Fatalf("broken=%+v", r)
	}
	for id, want := range map[int]string{quoteDoc.ID: StatusProcessed, greetingDoc.ID: StatusSkipped, brokenDoc.ID: StatusFailed} {
		doc, err := db.MustDocument(id)
		if err != nil {
			t.Fatal(err)
		}
		if doc.Status != want {
			t.Fatalf("document %d status=%q want %q", id, doc.Status, want)
		}
	}

	runID, err := db.LatestRunID(quoteDoc.ID)
	if err != nil || runID != byDoc[quoteDoc.ID].RunID {
		t.Fatalf("run=%q err=%v", runID, err)
	}
	run, err := db.GetRun(runID)
	if err != nil || run == nil {
		t.Fatalf("run=%+v err=%v", run, err)
	}
	if run.Counts["items"] != byDoc[quoteDoc.ID].Items || run.Counts["auto"] == 0 {
		t.Fatalf("counts=%v", run.Counts)
	}

	rows, err := db.GetExportRows(runID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) == 0 {
		t.Fatal("no export rows")
	}
	if rows[0].Item.Name != "Кабель ВВГнг 3х2.5" || rows[0].MatchStatus != "AUTO" {
		t.Fatalf("first row=%+v", rows[0])
	}

	out := filepath.Join(tmp, "out", "result.xlsx")
	if err := ExportRowsToXLSX(rows, run, out); err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenFile(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	sku, err := f.GetCellValue(f.GetSheetName(0), "P2")
	if err != nil || sku != "ELC100" {
		t.Fatalf("sku=%q err=%v", sku, err)
	}
	best, err := f.GetCellValue(runSheet, "B2")
	if err != nil || best != run.BestStrategy {
		t.Fatalf("best=%q err=%v", best, err)
	}
}

func TestProcessPendingWithoutMatcher(t *testing.T) {
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	path := filepath.Join(tmp, "q.txt")
	if err := os.WriteFile(path, []byte("Итого: 100\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	doc, err := db.UpsertDocument(internal.DocumentRow{Source: "inbox", ExternalID: "q.txt", Filename: "q.txt", Hash: "q", Path: path})
	if err != nil {
		t.Fatal(err)
	}

	svc := NewProcessingService(db, newPipeline(t), nil, ServiceConfig{Logger: quietLogger()})
	res, err := svc.ProcessByID(context.Background(), doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusProcessed || res.Items != 0 || res.BestStrategy != "" {
		t.Fatalf("res=%+v", res)
	}
	run, err := db.GetRun(res.RunID)
	if err != nil || run == nil {
		t.Fatalf("run=%+v err=%v", run, err)
	}
	if len(run.Recommendations) == 0 || run.Recommendations[len(run.Recommendations)-1] != MsgNoProductRows {
		t.Fatalf("recommendations=%v", run.Recommendations)
	}
}
