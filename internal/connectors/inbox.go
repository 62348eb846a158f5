package connectors

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"procparse/internal"
	"procparse/internal/pipeline"
)

const inboxSource = "inbox"

// InboxScanner moves supported files dropped into the inbox directory into the raw
// store. Unsupported files stay where they are.
type InboxScanner struct {
	store  *DocumentStore
	dir    string
	logger *slog.Logger
}

type ScanResult struct {
	Found      int
	Stored     int
	Duplicates int
	Skipped    int
}

func NewInboxScanner(store *DocumentStore, dir string, logger *slog.Logger) *InboxScanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &InboxScanner{store: store, dir: dir, logger: logger}
}

func (s *InboxScanner) Scan(ctx context.Context) (ScanResult, error) {
	var res ScanResult
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return res, err
	}

	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		res.Found++
		if !pipeline.SupportedExtension(path) {
			res.Skipped++
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		_, created, err := s.store.Store(internal.DocumentRow{
			Source:     inboxSource,
			Filename:   filepath.Base(path),
			ReceivedAt: info.ModTime().UTC().Format(time.RFC3339),
		}, content)
		if err != nil {
			return err
		}
		if created {
			res.Stored++
		} else {
			res.Duplicates++
		}
		return os.Remove(path)
	})
	if err != nil {
		return res, err
	}
	s.logger.Info("inbox scanned", "dir", s.dir, "found", res.Found, "stored", res.Stored, "duplicates", res.Duplicates, "skipped", res.Skipped)
	return res, nil
}
