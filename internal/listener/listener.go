package listener

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"procparse/internal/config"
	"procparse/internal/connectors"
	gmailconnector "procparse/internal/connectors/gmail"
	imapconnector "procparse/internal/connectors/imap"
	"procparse/internal/pipeline"
	"procparse/internal/storage"
)

// Collector brings new documents into storage and reports how many it stored.
type Collector interface {
	Collect(ctx context.Context) (int, error)
}

type CollectorFunc func(ctx context.Context) (int, error)

func (f CollectorFunc) Collect(ctx context.Context) (int, error) { return f(ctx) }

// NewCollector picks the document source named by LISTENER_SOURCE: inbox, imap or gmail.
func NewCollector(ctx context.Context, cfg config.Config, store *connectors.DocumentStore, logger *slog.Logger) (Collector, error) {
	source := strings.ToLower(strings.TrimSpace(cfg.ListenerSource))
	if source == "" || source == "inbox" {
		scanner := connectors.NewInboxScanner(store, cfg.InboxDir, logger)
		return CollectorFunc(func(ctx context.Context) (int, error) {
			res, err := scanner.Scan(ctx)
			return res.Stored, err
		}), nil
	}

	conn, err := makeConnector(ctx, source, cfg)
	if err != nil {
		return nil, err
	}
	fetch := connectors.NewFetchService(store, conn, logger)
	return CollectorFunc(func(ctx context.Context) (int, error) {
		res, err := fetch.FetchAndStore(ctx, cfg.ListenerLabel, cfg.ListenerFetchMax)
		return res.Stored, err
	}), nil
}

func makeConnector(ctx context.Context, provider string, cfg config.Config) (connectors.MailConnector, error) {
	switch provider {
	case "gmail":
		return gmailconnector.NewConnector(ctx, cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported listener source: %s", provider)
	}
}

type Config struct {
	Interval     time.Duration
	ProcessBatch int
	AutoExport   bool
	OutputDir    string
}

type Service struct {
	db        *storage.DB
	collector Collector
	processor *pipeline.ProcessingService
	cfg       Config
	logger    *slog.Logger
}

type CycleResult struct {
	Collected int
	Processed int
	Skipped   int
	Failed    int
	Exported  []string
}

func NewService(db *storage.DB, collector Collector, processor *pipeline.ProcessingService, cfg Config, logger *slog.Logger) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.ProcessBatch <= 0 {
		cfg.ProcessBatch = 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, collector: collector, processor: processor, cfg: cfg, logger: logger}
}

// Run repeats collect → process → export until ctx is done. A failed cycle is logged
// and retried on the next tick.
func (s *Service) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		if _, err := s.RunCycle(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("listener cycle failed", "err", err)
		}
		timer.Reset(s.cfg.Interval)
	}
}

func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	var res CycleResult
	collected, err := s.collector.Collect(ctx)
	if err != nil {
		return res, fmt.Errorf("collect: %w", err)
	}
	res.Collected = collected

	results, err := s.processor.ProcessPending(ctx, s.cfg.ProcessBatch)
	if err != nil {
		return res, fmt.Errorf("process: %w", err)
	}
	for _, r := range results {
		switch r.Status {
		case pipeline.StatusProcessed:
			res.Processed++
		case pipeline.StatusSkipped:
			res.Skipped++
		case pipeline.StatusFailed:
			res.Failed++
		}
		if !s.cfg.AutoExport || r.Status != pipeline.StatusProcessed || r.Items == 0 {
			continue
		}
		path, err := s.export(r)
		if err != nil {
			return res, fmt.Errorf("export document %d: %w", r.DocumentID, err)
		}
		res.Exported = append(res.Exported, path)
	}

	s.logger.Info("listener cycle done",
		"collected", res.Collected,
		"processed", res.Processed,
		"skipped", res.Skipped,
		"failed", res.Failed,
		"exported", len(res.Exported),
	)
	return res, nil
}

func (s *Service) export(r pipeline.ProcessResult) (string, error) {
	doc, err := s.db.MustDocument(r.DocumentID)
	if err != nil {
		return "", err
	}
	run, err := s.db.GetRun(r.RunID)
	if err != nil {
		return "", err
	}
	rows, err := s.db.GetExportRows(r.RunID)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%d_%s.xlsx", doc.ID, sanitizeFilename(strings.TrimSuffix(doc.Filename, filepath.Ext(doc.Filename))))
	path := filepath.Join(s.cfg.OutputDir, "listener", name)
	return path, pipeline.ExportRowsToXLSX(rows, run, path)
}

func sanitizeFilename(input string) string {
	repl := strings.NewReplacer("<", "_", ">", "_", ":", "_", "/", "_", "\\", "_", "|", "_", "?", "_", "*", "_", " ", "_")
	out := repl.Replace(input)
	if len(out) > 120 {
		out = out[:120]
	}
	return out
}
