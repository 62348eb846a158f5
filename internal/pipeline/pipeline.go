package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"procparse/internal"
	"procparse/internal/extract"
	"procparse/internal/ocr"
	"procparse/internal/util"
)

// ErrMalformedInput is the only fatal input condition: text or a cell that is not
// valid UTF-8.
var ErrMalformedInput = errors.New("malformed input")

// Enhancer is the OCR collaborator; *ocr.Enhancer satisfies it.
type Enhancer interface {
	Available() error
	Enhance(ctx context.Context, path, text string) (string, ocr.EnhancementInfo, error)
}

type Options struct {
	OCR bool
}

// Result is the arbitration result plus every strategy's raw output.
type Result struct {
	internal.ArbitrationResult
	Raw      []extract.StrategyResult
	Duration time.Duration
}

type Pipeline struct {
	parsers  []extract.Parser
	enhancer Enhancer
	arbiter  *Arbiter
	logger   *slog.Logger
}

type Option func(*Pipeline)

func WithParsers(parsers ...extract.Parser) Option {
	return func(p *Pipeline) { p.parsers = parsers }
}

func WithEnhancer(e Enhancer) Option {
	return func(p *Pipeline) { p.enhancer = e }
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// New builds a pipeline. Without WithParsers the built-in strategies and embedded
// supplier profiles are used.
func New(opts ...Option) (*Pipeline, error) {
	p := &Pipeline{arbiter: NewArbiter()}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.parsers == nil {
		parsers, err := extract.BuiltinParsers(nil, extract.WithLogger(p.logger))
		if err != nil {
			return nil, fmt.Errorf("build strategies: %w", err)
		}
		p.parsers = parsers
	}
	return p, nil
}

func (p *Pipeline) Parsers() []extract.Parser { return p.parsers }

// Run extracts line items from one document. Strategies run sequentially; a failing
// strategy is recorded in its summary and never aborts the run.
func (p *Pipeline) Run(ctx context.Context, in Input, opts Options) (Result, error) {
	start := time.Now()
	if err := checkInput(in); err != nil {
		return Result{}, err
	}

	text := util.CleanText(in.Text)
	tables := in.Tables

	report := p.ocrReport(ctx, in, opts, &text)

	raw := make([]extract.StrategyResult, 0, len(p.parsers))
	for _, parser := range p.parsers {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		t := time.Now()
		r := parser.Parse(text, tables)
		if r.Err != nil {
			p.logger.Warn("strategy failed", "strategy", r.Strategy, "err", r.Err)
		}
		p.logger.Debug("strategy finished", "strategy", r.Strategy, "items", len(r.Items), "duration_ms", time.Since(t).Milliseconds())
		raw = append(raw, r)
	}

	decision := p.arbiter.Select(raw)

	res := Result{Raw: raw}
	res.BestStrategy = decision.Best
	res.BestItems = decision.Items
	res.DocumentType = ClassifyDocument(text)
	res.Quality = AssessQuality(text, tables)
	res.Quality.OCR = report
	for _, ev := range decision.Evaluations {
		res.Strategies = append(res.Strategies, ev.Summary)
	}
	for _, r := range raw {
		if r.SupplierID != "" {
			res.SupplierID = r.SupplierID
			break
		}
	}
	res.Recommendations = Recommend(res.ArbitrationResult)
	res.Duration = time.Since(start)

	p.logger.Info("document parsed",
		"best_strategy", res.BestStrategy,
		"items", len(res.BestItems),
		"document_type", res.DocumentType.Dominant,
		"supplier", res.SupplierID,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// ocrReport runs the gate and, when asked and needed, the enhancer. text is replaced
// only when OCR added something.
func (p *Pipeline) ocrReport(ctx context.Context, in Input, opts Options, text *string) internal.OCRReport {
	gate := ocr.NeedsOCR(*text, in.Tables)
	report := internal.OCRReport{
		Requested:      opts.OCR,
		NeedsOCR:       gate.NeedsOCR || in.LowTextLayer,
		Reasons:        gate.Reasons,
		OriginalLength: gate.TextLength,
	}
	if in.LowTextLayer {
		report.Reasons = append(report.Reasons, "document has no usable text layer")
	}
	if !opts.OCR || !report.NeedsOCR || in.Path == "" {
		return report
	}

	if p.enhancer == nil {
		report.Error = ocr.ErrOCRUnavailable.Error()
		return report
	}
	if err := p.enhancer.Available(); err != nil {
		report.Error = err.Error()
		p.logger.Warn("ocr disabled", "err", err)
		return report
	}
	report.Available = true

	enhanced, info, err := p.enhancer.Enhance(ctx, in.Path, *text)
	report.ImagesProcessed = info.ImagesProcessed
	report.OCRAdditions = info.OCRAdditions
	report.TotalOCRText = info.TotalOCRText
	report.TimedOut = info.TimedOut
	if err != nil {
		report.Error = err.Error()
		p.logger.Warn("ocr failed", "path", in.Path, "err", err)
		return report
	}
	if info.OCRAdditions > 0 {
		*text = enhanced
		report.Applied = true
	}
	return report
}

func checkInput(in Input) error {
	if !utf8.ValidString(in.Text) {
		return fmt.Errorf("%w: text is not valid UTF-8", ErrMalformedInput)
	}
	for ti, t := range in.Tables {
		for ci, c := range t.Header {
			if !utf8.ValidString(c) {
				return fmt.Errorf("%w: table %d header cell %d is not valid UTF-8", ErrMalformedInput, ti, ci)
			}
		}
		for ri, row := range t.Rows {
			for ci, c := range row {
				if !utf8.ValidString(c) {
					return fmt.Errorf("%w: table %d row %d cell %d is not valid UTF-8", ErrMalformedInput, ti, ri, ci)
				}
			}
		}
	}
	return nil
}
