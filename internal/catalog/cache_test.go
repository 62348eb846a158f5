package catalog

import (
	"context"
	"errors"
	"testing"

	"procparse/internal"
)

type countingLoader struct {
	calls    int
	products []internal.ProductRecord
	err      error
}

func (l *countingLoader) ListProducts() ([]internal.ProductRecord, error) {
	l.calls++
	return l.products, l.err
}

func TestCacheLoadsOnceUntilInvalidated(t *testing.T) {
	loader := &countingLoader{products: []internal.ProductRecord{{ID: 1, SKU: "A-1", Name: "Кабель ВВГнг 3х2,5"}}}
	cache := NewCache(loader)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		idx, err := cache.Index(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if idx.Len() != 1 {
			t.Fatalf("len=%d", idx.Len())
		}
	}
	if loader.calls != 1 {
		t.Fatalf("calls=%d want 1", loader.calls)
	}

	loader.products = append(loader.products, internal.ProductRecord{ID: 2, SKU: "B-2", Name: "Провод ПуГВ 1х6"})
	cache.Invalidate()
	idx, err := cache.Index(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if loader.calls != 2 || idx.Len() != 2 {
		t.Fatalf("calls=%d len=%d", loader.calls, idx.Len())
	}
}

func TestCacheDoesNotKeepFailures(t *testing.T) {
	loader := &countingLoader{err: errors.New("db down")}
	cache := NewCache(loader)
	if _, err := cache.Index(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	loader.err = nil
	if _, err := cache.Index(context.Background()); err != nil {
		t.Fatal(err)
	}
	if loader.calls != 2 {
		t.Fatalf("calls=%d", loader.calls)
	}
}

func TestBuildIndexCodes(t *testing.T) {
	article := "ВВГ-3-2.5"
	idx := BuildIndex([]internal.ProductRecord{
		{ID: 7, SKU: "sku-7", Name: "Кабель ВВГнг 3х2,5", Article: &article, Codes: []string{"4601234"}},
	})
	for _, code := range []string{"SKU-7", "ВВГ-3-2.5", "4601234"} {
		if len(idx.ByCode[code]) != 1 {
			t.Fatalf("code %q not indexed: %v", code, idx.ByCode)
		}
	}
}
