package catalog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"procparse/internal"
	"procparse/internal/config"
)

// Store is the persistence the sync needs; *storage.DB satisfies it.
type Store interface {
	UpsertProducts(products []internal.ProductRecord) error
	SetMetadata(key, value string) error
	GetMetadata(key string) (*string, error)
}

type SyncService struct {
	db     Store
	client *Client
	cache  *Cache
	cfg    config.Config
}

// NewSyncService wires the catalog client to the store. cache may be nil; when set it
// is invalidated after every sync that changed products.
func NewSyncService(db Store, cfg config.Config, cache *Cache) *SyncService {
	return &SyncService{db: db, client: NewClient(cfg), cache: cache, cfg: cfg}
}

func (s *SyncService) InitialSync(ctx context.Context) (int, error) {
	products, err := s.client.GetProductsAll(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.db.UpsertProducts(products); err != nil {
		return 0, err
	}
	s.invalidate()
	_ = s.db.SetMetadata("catalog.last_initial_sync", time.Now().UTC().Format(time.RFC3339))
	if err := s.refreshTreeIfNeeded(ctx, true); err != nil {
		return 0, err
	}
	return len(products), nil
}

func (s *SyncService) IncrementalSync(ctx context.Context, mode string) (int, error) {
	products, err := s.client.GetProductsIncremental(ctx, mode)
	if err != nil {
		return 0, err
	}
	if len(products) > 0 {
		if err := s.db.UpsertProducts(products); err != nil {
			return 0, err
		}
		s.invalidate()
	}
	_ = s.db.SetMetadata("catalog.last_incremental_sync."+mode, time.Now().UTC().Format(time.RFC3339))
	if err := s.refreshTreeIfNeeded(ctx, false); err != nil {
		return 0, err
	}
	return len(products), nil
}

func (s *SyncService) invalidate() {
	if s.cache != nil {
		s.cache.Invalidate()
	}
}

func (s *SyncService) refreshTreeIfNeeded(ctx context.Context, force bool) error {
	const key = "catalog.last_tree_sync"
	last, err := s.db.GetMetadata(key)
	if err != nil {
		return err
	}

	if !force && last != nil {
		if parsed, err := time.Parse(time.RFC3339, *last); err == nil {
			if time.Since(parsed) < 30*24*time.Hour {
				return nil
			}
		}
	}

	tree, err := s.client.GetCategoryTree(ctx)
	if err != nil {
		return err
	}
	blob, _ := json.MarshalIndent(tree, "", "  ")
	treePath := filepath.Join(s.cfg.OutputDir, "catalog-tree.json")
	if err := os.MkdirAll(filepath.Dir(treePath), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(treePath, blob, 0o644); err != nil {
		return err
	}
	return s.db.SetMetadata(key, time.Now().UTC().Format(time.RFC3339))
}
