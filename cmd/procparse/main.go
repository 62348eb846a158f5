package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"procparse/internal/app"
	"procparse/internal/config"
	"procparse/internal/connectors"
	gmailconnector "procparse/internal/connectors/gmail"
	imapconnector "procparse/internal/connectors/imap"
	"procparse/internal/extract"
	"procparse/internal/pipeline"
	"procparse/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	switch cmd {
	case "strategies":
		for _, name := range extract.StrategyOrder {
			fmt.Println(name)
		}
		return
	case "profiles":
		set, err := app.Profiles(cfg, logger)
		must(err)
		for _, p := range set.Profiles() {
			fmt.Printf("%s\t%s\tinn=%s\taliases=%s\n", p.ID, p.DisplayName, p.TaxID, strings.Join(p.Aliases, ","))
		}
		return
	}

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	a, err := app.New(cfg, db, logger)
	must(err)

	switch cmd {
	case "parse":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "document path (pdf, xlsx, html, eml, txt)")
		useOCR := fs.Bool("ocr", cfg.OCREnabled, "run OCR when the text layer is poor")
		output := fs.String("output", "", "optional output xlsx path")
		asJSON := fs.Bool("json", false, "print the arbitration result as JSON")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*input) == "" {
			must(fmt.Errorf("--input is required"))
		}
		must(runParse(ctx, a, *input, *useOCR, *output, *asJSON))
	case "inbox:scan":
		res, err := connectors.NewInboxScanner(a.Store, cfg.InboxDir, logger).Scan(ctx)
		must(err)
		fmt.Printf("inbox scan done found=%d stored=%d duplicates=%d skipped=%d\n", res.Found, res.Stored, res.Duplicates, res.Skipped)
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "imap", "gmail|imap")
		label := fs.String("label", cfg.ListenerLabel, "mailbox/label")
		max := fs.Int("max", cfg.ListenerFetchMax, "max messages")
		_ = fs.Parse(os.Args[2:])
		conn, err := makeConnector(ctx, cfg, *provider)
		must(err)
		res, err := connectors.NewFetchService(a.Store, conn, logger).FetchAndStore(ctx, *label, *max)
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d stored=%d duplicates=%d\n", *provider, res.Fetched, res.Stored, res.Duplicates)
	case "documents:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.Int("id", 0, "process one document by id")
		batch := fs.Int("batch", 20, "batch size")
		_ = fs.Parse(os.Args[2:])
		if *id > 0 {
			res, err := a.Processor.ProcessByID(ctx, *id)
			must(err)
			printProcessResult(res)
			return
		}
		results, err := a.Processor.ProcessPending(ctx, *batch)
		must(err)
		for _, res := range results {
			printProcessResult(res)
		}
		fmt.Printf("processed %d documents\n", len(results))
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		runID := fs.String("run", "", "run id")
		documentID := fs.Int("document", 0, "export the latest run of this document")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		must(runExport(db, *runID, *documentID, *out))
	case "catalog:initial-sync":
		count, err := a.SyncService().InitialSync(ctx)
		must(err)
		fmt.Printf("initial sync complete: %d products\n", count)
	case "catalog:incremental-sync":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		mode := fs.String("mode", "day", "hour|day")
		_ = fs.Parse(os.Args[2:])
		count, err := a.SyncService().IncrementalSync(ctx, *mode)
		must(err)
		fmt.Printf("incremental sync complete mode=%s products=%d\n", *mode, count)
	case "listen":
		svc, err := a.Listener(ctx)
		must(err)
		must(svc.Run(ctx))
	default:
		usage()
		os.Exit(1)
	}
}

func runParse(ctx context.Context, a *app.App, path string, useOCR bool, output string, asJSON bool) error {
	in, err := app.Loader(a.Config).Load(path)
	if err != nil {
		return err
	}
	defer in.Close()

	res, err := a.Pipeline.Run(ctx, in, pipeline.Options{OCR: useOCR})
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res.ArbitrationResult); err != nil {
			return err
		}
	} else {
		for _, s := range res.Strategies {
			status := "ok"
			if s.Error != "" {
				status = "error: " + s.Error
			}
			fmt.Printf("%-16s items=%-3d valid=%-3d score=%-5.1f cost=%.2f conf=%.2f %s\n",
				s.Name, s.Count, s.ValidCount, s.Score, s.TotalCost, s.AvgConfidence, status)
		}
		fmt.Printf("best strategy: %s (%d items)\n", orNone(res.BestStrategy), len(res.BestItems))
		fmt.Printf("document type: %s\n", res.DocumentType.Dominant)
		if res.SupplierID != "" {
			fmt.Printf("supplier: %s\n", res.SupplierID)
		}
		for _, it := range res.BestItems {
			fmt.Printf("  %s | qty=%g %s | price=%g | total=%g\n", it.Name, it.QtyValue(), it.Unit, it.PriceValue(), it.TotalValue())
		}
		for _, r := range res.Recommendations {
			fmt.Printf("* %s\n", r)
		}
	}

	if output == "" {
		return nil
	}
	matches, err := a.Matcher.MatchAll(ctx, res.BestItems)
	if err != nil {
		a.Logger.Warn("matching skipped", "err", err)
		matches = nil
	}
	if err := pipeline.ExportRowsToXLSX(pipeline.ExportRows(res.BestItems, matches), nil, output); err != nil {
		return err
	}
	fmt.Printf("exported %d rows to %s\n", len(res.BestItems), output)
	return nil
}

func runExport(db *storage.DB, runID string, documentID int, out string) error {
	if strings.TrimSpace(out) == "" {
		return fmt.Errorf("--out is required")
	}
	if runID == "" && documentID > 0 {
		latest, err := db.LatestRunID(documentID)
		if err != nil {
			return err
		}
		runID = latest
	}
	if runID == "" {
		return fmt.Errorf("--run or --document with a processed run is required")
	}
	run, err := db.GetRun(runID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run not found: %s", runID)
	}
	rows, err := db.GetExportRows(runID)
	if err != nil {
		return err
	}
	if err := pipeline.ExportRowsToXLSX(rows, run, out); err != nil {
		return err
	}
	fmt.Printf("exported %d rows to %s\n", len(rows), out)
	return nil
}

func printProcessResult(res pipeline.ProcessResult) {
	if res.Err != nil {
		fmt.Printf("document=%d status=%s err=%v\n", res.DocumentID, res.Status, res.Err)
		return
	}
	fmt.Printf("document=%d status=%s run=%s best=%s items=%d\n", res.DocumentID, res.Status, res.RunID, orNone(res.BestStrategy), res.Items)
}

func makeConnector(ctx context.Context, cfg config.Config, provider string) (connectors.MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmailconnector.NewConnector(ctx, cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func usage() {
	fmt.Println("usage: procparse <command>")
	fmt.Println("commands:")
	fmt.Println("  parse --input=FILE [--ocr=true] [--output=out.xlsx] [--json]")
	fmt.Println("  strategies")
	fmt.Println("  profiles")
	fmt.Println("  inbox:scan")
	fmt.Println("  mail:fetch --provider=imap|gmail [--label=INBOX] [--max=20]")
	fmt.Println("  documents:process [--batch=20] [--id=N]")
	fmt.Println("  export:xlsx --run=RUN_ID|--document=N --out=./out/result.xlsx")
	fmt.Println("  catalog:initial-sync")
	fmt.Println("  catalog:incremental-sync --mode=hour|day")
	fmt.Println("  listen")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
