package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"slices"
	"testing"

	"procparse/internal"
	"procparse/internal/extract"
	"procparse/internal/ocr"
)

const freeTextLine = "Кабель ВВГ 3х2.5 100 шт 150.50"

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newPipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	p, err := New(append([]Option{WithLogger(quietLogger())}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

type stubParser struct {
	name string
	res  extract.StrategyResult
}

func (s stubParser) Name() string { return s.name }

func (s stubParser) Parse(string, []internal.Table) extract.StrategyResult {
	r := s.res
	r.Strategy = s.name
	return r
}

type fakeEnhancer struct {
	availErr error
	extra    string
	info     ocr.EnhancementInfo
	err      error
	calls    int
}

func (f *fakeEnhancer) Available() error { return f.availErr }

func (f *fakeEnhancer) Enhance(_ context.Context, _ string, text string) (string, ocr.EnhancementInfo, error) {
	f.calls++
	return text + f.extra, f.info, f.err
}

func TestRunFreeTextLine(t *testing.T) {
	p := newPipeline(t)
	res, err := p.Run(context.Background(), Input{Text: freeTextLine}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.BestStrategy == "" || len(res.BestItems) != 1 {
		t.Fatalf("best=%q items=%+v strategies=%+v", res.BestStrategy, res.BestItems, res.Strategies)
	}
	it := res.BestItems[0]
	if it.Name != "Кабель ВВГ 3х2.5" || it.QtyValue() != 100 || it.PriceValue() != 150.5 {
		t.Fatalf("item=%+v", it)
	}
	if math.Abs(it.TotalValue()-15050) > 1e-6 {
		t.Fatalf("total=%v", it.TotalValue())
	}
	if len(res.Strategies) != len(extract.StrategyOrder) || len(res.Raw) != len(extract.StrategyOrder) {
		t.Fatalf("strategies=%d raw=%d", len(res.Strategies), len(res.Raw))
	}
	for _, r := range res.Raw {
		for _, it := range r.Items {
			if it.TotalComputed && math.Abs(it.TotalValue()-it.QtyValue()*it.PriceValue()) > 1e-6 {
				t.Fatalf("%s: computed total %v != %v*%v", r.Strategy, it.TotalValue(), it.QtyValue(), it.PriceValue())
			}
		}
	}
	if !res.Quality.OCR.NeedsOCR || res.Quality.OCR.Requested {
		t.Fatalf("ocr=%+v", res.Quality.OCR)
	}
}

func TestRunNoProductRows(t *testing.T) {
	p := newPipeline(t)
	res, err := p.Run(context.Background(), Input{Text: "Итого: 100\nВсего к оплате: 100"}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.BestStrategy != "" || res.BestItems == nil || len(res.BestItems) != 0 {
		t.Fatalf("best=%q items=%v", res.BestStrategy, res.BestItems)
	}
	if !slices.Contains(res.Recommendations, MsgNoProductRows) {
		t.Fatalf("recommendations=%v", res.Recommendations)
	}
}

func TestRunMalformedInput(t *testing.T) {
	p := newPipeline(t)
	bad := string([]byte{0xff, 0xfe})
	inputs := []Input{
		{Text: bad},
		{Tables: []internal.Table{{Header: []string{bad}}}},
		{Tables: []internal.Table{{Rows: [][]string{{"ok", bad}}}}},
	}
	for _, in := range inputs {
		if _, err := p.Run(context.Background(), in, Options{}); !errors.Is(err, ErrMalformedInput) {
			t.Fatalf("err=%v", err)
		}
	}
}

func TestRunFailingStrategyDoesNotAbort(t *testing.T) {
	good := extract.StrategyResult{Items: []internal.LineItem{item("Кабель ВВГнг 3х2,5", 10, 100)}}
	p := newPipeline(t, WithParsers(
		stubParser{name: "commercial", res: extract.StrategyResult{Err: errors.New("strategy panicked")}},
		stubParser{name: "universal", res: good},
	))
	res, err := p.Run(context.Background(), Input{Text: "x"}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.BestStrategy != "universal" {
		t.Fatalf("best=%q", res.BestStrategy)
	}
	if res.Strategies[0].Error == "" || res.Strategies[0].Score != 0 {
		t.Fatalf("summary=%+v", res.Strategies[0])
	}
}

func TestRunSupplierFromProfile(t *testing.T) {
	p := newPipeline(t, WithParsers(
		stubParser{name: "universal"},
		stubParser{name: extract.ProfileStrategyName, res: extract.StrategyResult{SupplierID: "acme"}},
	))
	res, err := p.Run(context.Background(), Input{Text: "x"}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.SupplierID != "acme" {
		t.Fatalf("supplier=%q", res.SupplierID)
	}
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newPipeline(t).Run(ctx, Input{Text: freeTextLine}, Options{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
}

func TestRunAppliesOCR(t *testing.T) {
	enh := &fakeEnhancer{
		extra: "\n\n[стр. 1 OCR]: Счет\n" + freeTextLine,
		info:  ocr.EnhancementInfo{ImagesProcessed: 1, OCRAdditions: 1, TotalOCRText: 40},
	}
	p := newPipeline(t, WithEnhancer(enh))
	res, err := p.Run(context.Background(), Input{Path: "scan.pdf", LowTextLayer: true}, Options{OCR: true})
	if err != nil {
		t.Fatal(err)
	}
	o := res.Quality.OCR
	if enh.calls != 1 || !o.Applied || !o.Available || o.ImagesProcessed != 1 {
		t.Fatalf("ocr=%+v calls=%d", o, enh.calls)
	}
	if len(res.BestItems) != 1 || res.BestItems[0].Name != "Кабель ВВГ 3х2.5" {
		t.Fatalf("items=%+v", res.BestItems)
	}
}

func TestRunOCRSkipped(t *testing.T) {
	tests := []struct {
		name    string
		enh     Enhancer
		opts    Options
		in      Input
		wantErr bool
	}{
		{"not requested", &fakeEnhancer{}, Options{}, Input{Path: "scan.pdf"}, false},
		{"no path", &fakeEnhancer{}, Options{OCR: true}, Input{}, false},
		{"no enhancer", nil, Options{OCR: true}, Input{Path: "scan.pdf"}, true},
		{"unavailable", &fakeEnhancer{availErr: ocr.ErrOCRUnavailable}, Options{OCR: true}, Input{Path: "scan.pdf"}, true},
		{"nothing added", &fakeEnhancer{extra: "noise"}, Options{OCR: true}, Input{Path: "scan.pdf"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := []Option{}
			if tt.enh != nil {
				opts = append(opts, WithEnhancer(tt.enh))
			}
			res, err := newPipeline(t, opts...).Run(context.Background(), tt.in, tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			o := res.Quality.OCR
			if o.Applied {
				t.Fatalf("ocr applied: %+v", o)
			}
			if (o.Error != "") != tt.wantErr {
				t.Fatalf("error=%q want error=%v", o.Error, tt.wantErr)
			}
		})
	}
}
