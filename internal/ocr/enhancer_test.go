package ocr

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeSource struct {
	images []PageImage
	err    error
}

func (f fakeSource) Images(_ context.Context, _ string, limit int) ([]PageImage, error) {
	if limit > 0 && len(f.images) > limit {
		return f.images[:limit], f.err
	}
	return f.images, f.err
}

type fakeRunner struct {
	mu    sync.Mutex
	delay time.Duration
	words []Word
	calls int
}

func (f *fakeRunner) Recognize(_ context.Context, _ string) ([]Word, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	time.Sleep(f.delay)
	return f.words, nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, bimodal(20, 10)); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func testEnhancer(source ImageSource, runner Runner, budget time.Duration) *Enhancer {
	cfg := DefaultConfig()
	cfg.Budget = budget
	return NewEnhancer(cfg,
		WithImageSource(source),
		WithRunner(runner),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func TestEnhanceAppendsPageTaggedText(t *testing.T) {
	src := fakeSource{images: []PageImage{
		{Page: 1, Name: "img1", Data: pngBytes(t)},
		{Page: 2, Name: "img2", Data: pngBytes(t)},
	}}
	runner := &fakeRunner{words: []Word{
		{Text: "Кабель", Confidence: 95, Line: 1},
		{Text: "мусор", Confidence: 20, Line: 1},
		{Text: "ВВГ", Confidence: 80, Line: 1},
	}}

	original := "исходный текст"
	got, info, err := testEnhancer(src, runner, time.Minute).Enhance(context.Background(), "doc.pdf", original)
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	if !strings.HasPrefix(got, original) {
		t.Fatalf("original text lost: %q", got)
	}
	if !strings.Contains(got, "[стр. 1 OCR]: Кабель ВВГ") || !strings.Contains(got, "[стр. 2 OCR]: Кабель ВВГ") {
		t.Fatalf("page tags missing: %q", got)
	}
	if strings.Contains(got, "мусор") {
		t.Fatal("low-confidence word kept")
	}
	if info.ImagesProcessed != 2 || info.OCRAdditions != 2 || info.OriginalLength != len([]rune(original)) {
		t.Fatalf("info=%+v", info)
	}
	if info.TotalOCRText != 2*len([]rune("Кабель ВВГ")) {
		t.Fatalf("total ocr text=%d", info.TotalOCRText)
	}
}

func TestEnhanceStopsWhenBudgetExpires(t *testing.T) {
	src := fakeSource{images: []PageImage{
		{Page: 1, Data: pngBytes(t)},
		{Page: 2, Data: pngBytes(t)},
		{Page: 3, Data: pngBytes(t)},
	}}
	runner := &fakeRunner{delay: 80 * time.Millisecond, words: []Word{{Text: "текст", Confidence: 90}}}

	got, info, err := testEnhancer(src, runner, 30*time.Millisecond).Enhance(context.Background(), "doc.pdf", "base")
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	if !info.TimedOut {
		t.Fatal("budget expiry not reported")
	}
	if runner.calls != 1 || info.ImagesProcessed != 1 {
		t.Fatalf("calls=%d processed=%d", runner.calls, info.ImagesProcessed)
	}
	if !strings.Contains(got, "[стр. 1 OCR]: текст") || strings.Contains(got, "[стр. 2") {
		t.Fatalf("text=%q", got)
	}
}

func TestEnhanceDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	e := NewEnhancer(cfg, WithRunner(&fakeRunner{}))
	text, _, err := e.Enhance(context.Background(), "doc.pdf", "base")
	if !errors.Is(err, ErrOCRUnavailable) || text != "base" {
		t.Fatalf("text=%q err=%v", text, err)
	}
}

func TestEnhanceSkipsUndecodableImages(t *testing.T) {
	src := fakeSource{images: []PageImage{
		{Page: 1, Data: []byte("not an image")},
		{Page: 2, Data: pngBytes(t)},
	}}
	runner := &fakeRunner{words: []Word{{Text: "Провод", Confidence: 70}}}
	got, info, err := testEnhancer(src, runner, time.Minute).Enhance(context.Background(), "doc.pdf", "")
	if err != nil {
		t.Fatal(err)
	}
	if info.ImagesProcessed != 1 || !strings.Contains(got, "[стр. 2 OCR]: Провод") {
		t.Fatalf("info=%+v text=%q", info, got)
	}
}

func TestEnhanceKeepsImagesFromPartialListing(t *testing.T) {
	src := fakeSource{
		images: []PageImage{{Page: 1, Name: "img1", Data: pngBytes(t)}},
		err:    errors.New("page 2: corrupt stream"),
	}
	runner := &fakeRunner{words: []Word{{Text: "Кабель", Confidence: 90, Line: 1}}}

	got, info, err := testEnhancer(src, runner, time.Minute).Enhance(context.Background(), "doc.pdf", "base")
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	if !strings.Contains(got, "[стр. 1 OCR]: Кабель") || info.ImagesProcessed != 1 {
		t.Fatalf("got=%q info=%+v", got, info)
	}
}

func TestEnhanceFailsWhenListingYieldsNothing(t *testing.T) {
	src := fakeSource{err: errors.New("not a pdf")}
	got, _, err := testEnhancer(src, &fakeRunner{}, time.Minute).Enhance(context.Background(), "doc.pdf", "base")
	if err == nil {
		t.Fatal("want error")
	}
	if got != "base" {
		t.Fatalf("text changed: %q", got)
	}
}
