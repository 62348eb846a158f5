package ocr

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	Enabled       bool
	Languages     string
	TesseractBin  string
	Budget        time.Duration
	MinConfidence float64
	MaxImages     int
}

func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		Languages:     "rus+eng",
		TesseractBin:  "tesseract",
		Budget:        2 * time.Minute,
		MinConfidence: 0.5,
		MaxImages:     50,
	}
}

// EnhancementInfo carries the counts callers use to judge whether OCR helped.
type EnhancementInfo struct {
	OriginalLength  int
	ImagesFound     int
	ImagesProcessed int
	OCRAdditions    int
	TotalOCRText    int
	TimedOut        bool
}

type Enhancer struct {
	cfg       Config
	source    ImageSource
	runner    Runner
	available error
	logger    *slog.Logger
}

type EnhancerOption func(*Enhancer)

func WithImageSource(s ImageSource) EnhancerOption {
	return func(e *Enhancer) { e.source = s }
}

// WithRunner replaces tesseract; the runner is assumed available.
func WithRunner(r Runner) EnhancerOption {
	return func(e *Enhancer) {
		e.runner = r
		e.available = nil
	}
}

func WithLogger(logger *slog.Logger) EnhancerOption {
	return func(e *Enhancer) { e.logger = logger }
}

func NewEnhancer(cfg Config, opts ...EnhancerOption) *Enhancer {
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 0.5
	}
	t := &Tesseract{Bin: cfg.TesseractBin, Languages: cfg.Languages}
	e := &Enhancer{
		cfg:       cfg,
		runner:    t,
		available: t.Available(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.source == nil {
		e.source = PDFImageSource{Logger: e.logger}
	}
	if !cfg.Enabled {
		e.available = fmt.Errorf("%w: disabled by configuration", ErrOCRUnavailable)
	}
	return e
}

// Available reports whether Enhance can run; the error says why not.
func (e *Enhancer) Available() error { return e.available }

// Enhance recognizes the images embedded in the document at path and appends the page
// tagged text to text. The original text is never replaced. When the budget runs out
// the text gathered so far is returned with TimedOut set.
func (e *Enhancer) Enhance(ctx context.Context, path, text string) (string, EnhancementInfo, error) {
	info := EnhancementInfo{OriginalLength: len([]rune(text))}
	if e.available != nil {
		return text, info, e.available
	}

	if e.cfg.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Budget)
		defer cancel()
	}

	images, err := e.source.Images(ctx, path, e.cfg.MaxImages)
	info.ImagesFound = len(images)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			info.TimedOut = true
		case len(images) == 0:
			return text, info, fmt.Errorf("list images: %w", err)
		default:
			e.logger.Warn("image listing incomplete", "path", path, "images", len(images), "err", err)
		}
	}
	if len(images) == 0 {
		return text, info, nil
	}

	dir, err := os.MkdirTemp("", "procparse-ocr-*")
	if err != nil {
		return text, info, fmt.Errorf("ocr temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	var b strings.Builder
	b.WriteString(text)
	for i, img := range images {
		if ctx.Err() != nil {
			info.TimedOut = true
			break
		}
		recognized, err := e.recognize(ctx, dir, i, img)
		if err != nil {
			if ctx.Err() != nil {
				info.TimedOut = true
				break
			}
			e.logger.Warn("ocr image failed", "path", path, "page", img.Page, "image", img.Name, "err", err)
			continue
		}
		info.ImagesProcessed++
		if recognized == "" {
			continue
		}
		fmt.Fprintf(&b, "\n\n[стр. %d OCR]: %s", img.Page, recognized)
		info.OCRAdditions++
		info.TotalOCRText += len([]rune(recognized))
	}

	if info.TimedOut {
		e.logger.Warn("ocr budget exhausted", "path", path, "budget", e.cfg.Budget, "processed", info.ImagesProcessed, "found", info.ImagesFound)
	}
	e.logger.Info("ocr finished", "path", path, "images", info.ImagesProcessed, "additions", info.OCRAdditions, "chars", info.TotalOCRText)
	return b.String(), info, nil
}

func (e *Enhancer) recognize(ctx context.Context, dir string, i int, pi PageImage) (string, error) {
	img, err := decodeImage(pi.Data)
	if err != nil {
		return "", err
	}
	prepared := Preprocess(img)

	file := filepath.Join(dir, fmt.Sprintf("page%03d_%03d.png", pi.Page, i))
	f, err := os.Create(file)
	if err != nil {
		return "", err
	}
	if err := png.Encode(f, prepared); err != nil {
		f.Close()
		return "", fmt.Errorf("encode png: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	words, err := e.runner.Recognize(ctx, file)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(JoinWords(words, e.cfg.MinConfidence)), nil
}
