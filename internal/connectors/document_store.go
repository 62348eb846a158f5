package connectors

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"procparse/internal"
	"procparse/internal/storage"
)

const statusFetched = "fetched"

// DocumentStore writes raw document bytes into the raw directory, named by content hash,
// and registers them. Content that was stored before is not registered again.
type DocumentStore struct {
	db     *storage.DB
	rawDir string
}

func NewDocumentStore(db *storage.DB, rawDir string) *DocumentStore {
	return &DocumentStore{db: db, rawDir: rawDir}
}

// Store returns the registered row and whether it is new.
func (s *DocumentStore) Store(doc internal.DocumentRow, content []byte) (internal.DocumentRow, bool, error) {
	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])

	existing, err := s.db.GetDocumentByHash(hash)
	if err != nil {
		return internal.DocumentRow{}, false, err
	}
	if existing != nil {
		return *existing, false, nil
	}

	if err := os.MkdirAll(s.rawDir, 0o755); err != nil {
		return internal.DocumentRow{}, false, err
	}
	rawPath := filepath.Join(s.rawDir, hash+strings.ToLower(filepath.Ext(doc.Filename)))
	if _, err := os.Stat(rawPath); os.IsNotExist(err) {
		if err := os.WriteFile(rawPath, content, 0o644); err != nil {
			return internal.DocumentRow{}, false, err
		}
	}

	doc.Hash = hash
	doc.Path = rawPath
	doc.Status = statusFetched
	if doc.ExternalID == "" {
		doc.ExternalID = hash
	}
	row, err := s.db.UpsertDocument(doc)
	if err != nil {
		return internal.DocumentRow{}, false, err
	}
	return row, true, nil
}
