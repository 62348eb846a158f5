package catalog

import (
	"context"
	"sync"

	"procparse/internal"
)

// Loader supplies the product list; *storage.DB satisfies it through ListProducts.
type Loader interface {
	ListProducts() ([]internal.ProductRecord, error)
}

// Cache builds the product index on first use and keeps it until Invalidate.
// It is safe for concurrent use.
type Cache struct {
	loader Loader

	mu    sync.Mutex
	index *Index
}

func NewCache(loader Loader) *Cache {
	return &Cache{loader: loader}
}

// Index returns the cached index, loading it when empty. A failed load is not cached.
func (c *Cache) Index(ctx context.Context) (*Index, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index != nil {
		return c.index, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	products, err := c.loader.ListProducts()
	if err != nil {
		return nil, err
	}
	c.index = BuildIndex(products)
	return c.index, nil
}

// Invalidate drops the cached index; the next Index call reloads.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.index = nil
	c.mu.Unlock()
}
