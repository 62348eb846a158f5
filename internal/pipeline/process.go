package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"procparse/internal"
	"procparse/internal/storage"
)

const (
	StatusFetched   = "fetched"
	StatusProcessed = "processed"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

// ProcessingService runs stored documents through the pipeline and persists the runs.
type ProcessingService struct {
	db      *storage.DB
	pipe    *Pipeline
	matcher *Matcher
	loader  Loader
	opts    Options
	workers int
	logger  *slog.Logger
}

type ServiceConfig struct {
	Loader  Loader
	Options Options
	Workers int
	Logger  *slog.Logger
}

// NewProcessingService wires storage, pipeline and an optional matcher.
func NewProcessingService(db *storage.DB, pipe *Pipeline, matcher *Matcher, cfg ServiceConfig) *ProcessingService {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &ProcessingService{
		db:      db,
		pipe:    pipe,
		matcher: matcher,
		loader:  cfg.Loader,
		opts:    cfg.Options,
		workers: cfg.Workers,
		logger:  cfg.Logger,
	}
}

type ProcessResult struct {
	DocumentID   int
	RunID        string
	Status       string
	BestStrategy string
	Items        int
	Err          error
}

// ProcessPending handles up to limit fetched documents with bounded parallelism. A
// failing document is marked failed and does not stop the batch.
func (s *ProcessingService) ProcessPending(ctx context.Context, limit int) ([]ProcessResult, error) {
	pending, err := s.db.ListDocumentsByStatus(StatusFetched, limit)
	if err != nil {
		return nil, err
	}

	results := make([]ProcessResult, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, doc := range pending {
		i, doc := i, doc
		g.Go(func() error {
			res, err := s.ProcessDocument(gctx, doc)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				res = ProcessResult{DocumentID: doc.ID, Status: StatusFailed, Err: err}
				s.logger.Warn("document failed", "document_id", doc.ID, "file", doc.Filename, "err", err)
				if err := s.db.UpdateDocumentStatus(doc.ID, StatusFailed); err != nil {
					return err
				}
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (s *ProcessingService) ProcessByID(ctx context.Context, id int) (ProcessResult, error) {
	doc, err := s.db.MustDocument(id)
	if err != nil {
		return ProcessResult{}, err
	}
	return s.ProcessDocument(ctx, doc)
}

func (s *ProcessingService) ProcessDocument(ctx context.Context, doc internal.DocumentRow) (ProcessResult, error) {
	start := time.Now()
	in, err := s.loader.Load(doc.Path)
	if err != nil {
		return ProcessResult{}, err
	}
	defer func() {
		if err := in.Close(); err != nil {
			s.logger.Warn("temp cleanup failed", "document_id", doc.ID, "err", err)
		}
	}()
	loadMs := float64(time.Since(start).Milliseconds())

	if in.Format == "eml" {
		detect := DetectProcurement(firstNonEmpty(in.Subject, doc.Subject), in.Text, in.Attachments, len(in.Tables))
		if !detect.IsProcurement {
			s.logger.Info("document skipped", "document_id", doc.ID, "score", detect.Score)
			return ProcessResult{DocumentID: doc.ID, Status: StatusSkipped}, s.db.UpdateDocumentStatus(doc.ID, StatusSkipped)
		}
	}

	res, err := s.pipe.Run(ctx, in, s.opts)
	if err != nil {
		return ProcessResult{}, err
	}

	var matches []internal.MatchResult
	if s.matcher != nil && len(res.BestItems) > 0 {
		matches, err = s.matcher.MatchAll(ctx, res.BestItems)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ProcessResult{}, err
			}
			s.logger.Warn("matching skipped", "document_id", doc.ID, "err", err)
			matches = nil
		}
	}

	run := internal.RunRow{
		RunID:        uuid.NewString(),
		DocumentID:   doc.ID,
		BestStrategy: res.BestStrategy,
		DocumentType: string(res.DocumentType.Dominant),
		SupplierID:   res.SupplierID,
		Timings: map[string]float64{
			"loadMs":  loadMs,
			"parseMs": float64(res.Duration.Milliseconds()),
			"totalMs": float64(time.Since(start).Milliseconds()),
		},
		Counts: matchCounts(res.BestItems, matches),
	}
	if err := s.db.SaveRun(run, res.ArbitrationResult, matches); err != nil {
		return ProcessResult{}, err
	}
	if err := s.db.UpdateDocumentStatus(doc.ID, StatusProcessed); err != nil {
		return ProcessResult{}, err
	}

	return ProcessResult{
		DocumentID:   doc.ID,
		RunID:        run.RunID,
		Status:       StatusProcessed,
		BestStrategy: res.BestStrategy,
		Items:        len(res.BestItems),
	}, nil
}

func matchCounts(items []internal.LineItem, matches []internal.MatchResult) map[string]int {
	counts := map[string]int{"items": len(items), "auto": 0, "suggest": 0, "notFound": 0}
	for _, m := range matches {
		switch m.Status {
		case internal.MatchAuto:
			counts["auto"]++
		case internal.MatchSuggest:
			counts["suggest"]++
		case internal.MatchNotFound:
			counts["notFound"]++
		}
	}
	return counts
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
