package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"procparse/internal"
	"procparse/internal/util"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// One connection serializes writers from parallel document workers.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS products (
  id INTEGER PRIMARY KEY,
  sku TEXT NOT NULL,
  name TEXT NOT NULL,
  article TEXT,
  unit TEXT,
  manufacturer TEXT,
  codes TEXT,
  updatedAt TEXT,
  raw_json TEXT NOT NULL,
  lastSeenAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_products_name ON products(name);
CREATE INDEX IF NOT EXISTS idx_products_article ON products(article);
CREATE INDEX IF NOT EXISTS idx_products_sku ON products(sku);

CREATE TABLE IF NOT EXISTS documents (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  source TEXT NOT NULL,
  externalId TEXT NOT NULL,
  filename TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  path TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(source, externalId)
);
CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(hash);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  runId TEXT NOT NULL UNIQUE,
  documentId INTEGER,
  bestStrategy TEXT NOT NULL,
  documentType TEXT NOT NULL,
  supplierId TEXT,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  recommendationsJson TEXT NOT NULL,
  resultJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(documentId) REFERENCES documents(id)
);

CREATE TABLE IF NOT EXISTS line_items (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  runId TEXT NOT NULL,
  ordinal INTEGER NOT NULL,
  name TEXT NOT NULL,
  article TEXT,
  qty REAL,
  unit TEXT NOT NULL DEFAULT '',
  price REAL,
  currency TEXT NOT NULL,
  total REAL,
  totalComputed INTEGER NOT NULL DEFAULT 0,
  confidence REAL NOT NULL,
  source TEXT NOT NULL,
  supplier TEXT,
  UNIQUE(runId, ordinal),
  FOREIGN KEY(runId) REFERENCES runs(runId)
);

CREATE TABLE IF NOT EXISTS matches (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  lineItemId INTEGER NOT NULL UNIQUE,
  status TEXT NOT NULL,
  confidence REAL NOT NULL,
  reason TEXT NOT NULL,
  productId INTEGER,
  candidatesJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(lineItemId) REFERENCES line_items(id)
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) UpsertProducts(products []internal.ProductRecord) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
INSERT INTO products (id, sku, name, article, unit, manufacturer, codes, updatedAt, raw_json, lastSeenAt)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(id) DO UPDATE SET
  sku=excluded.sku,
  name=excluded.name,
  article=excluded.article,
  unit=excluded.unit,
  manufacturer=excluded.manufacturer,
  codes=excluded.codes,
  updatedAt=excluded.updatedAt,
  raw_json=excluded.raw_json,
  lastSeenAt=CURRENT_TIMESTAMP
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range products {
		codesJSON, _ := json.Marshal(p.Codes)
		if _, err := stmt.Exec(
			p.ID, p.SKU, p.Name, p.Article, p.Unit, p.Manufacturer,
			string(codesJSON), p.UpdatedAt, p.RawJSON,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) ListProducts() ([]internal.ProductRecord, error) {
	rows, err := d.conn.Query(`
SELECT id, sku, name, article, unit, manufacturer, codes, updatedAt, raw_json
FROM products`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.ProductRecord
	for rows.Next() {
		var p internal.ProductRecord
		var codesJSON sql.NullString
		if err := rows.Scan(
			&p.ID, &p.SKU, &p.Name, &p.Article, &p.Unit, &p.Manufacturer,
			&codesJSON, &p.UpdatedAt, &p.RawJSON,
		); err != nil {
			return nil, err
		}
		if codesJSON.Valid {
			_ = json.Unmarshal([]byte(codesJSON.String), &p.Codes)
		}
		out = append(out, p)
	}

	return out, rows.Err()
}

const documentColumns = `id, source, externalId, filename, subject, sender, receivedAt, hash, status, path`

func scanDocument(s interface{ Scan(...any) error }) (internal.DocumentRow, error) {
	var row internal.DocumentRow
	var subject, sender, receivedAt sql.NullString
	err := s.Scan(&row.ID, &row.Source, &row.ExternalID, &row.Filename, &subject, &sender, &receivedAt, &row.Hash, &row.Status, &row.Path)
	row.Subject, row.Sender, row.ReceivedAt = subject.String, sender.String, receivedAt.String
	return row, err
}

// UpsertDocument inserts or refreshes a document keyed by source and external id.
// The status of an existing document is kept.
func (d *DB) UpsertDocument(doc internal.DocumentRow) (internal.DocumentRow, error) {
	status := doc.Status
	if status == "" {
		status = "fetched"
	}
	_, err := d.conn.Exec(`
INSERT INTO documents (source, externalId, filename, subject, sender, receivedAt, hash, status, path)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(source, externalId) DO UPDATE SET
  filename=excluded.filename,
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  path=excluded.path,
  updatedAt=CURRENT_TIMESTAMP
`, doc.Source, doc.ExternalID, doc.Filename, doc.Subject, doc.Sender, doc.ReceivedAt, doc.Hash, status, doc.Path)
	if err != nil {
		return internal.DocumentRow{}, err
	}

	row, err := d.GetDocumentBySourceID(doc.Source, doc.ExternalID)
	if err != nil {
		return internal.DocumentRow{}, err
	}
	if row == nil {
		return internal.DocumentRow{}, errors.New("failed to upsert document")
	}
	return *row, nil
}

func (d *DB) GetDocumentBySourceID(source, externalID string) (*internal.DocumentRow, error) {
	row, err := scanDocument(d.conn.QueryRow(`SELECT `+documentColumns+` FROM documents WHERE source = ? AND externalId = ?`, source, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) GetDocumentByHash(hash string) (*internal.DocumentRow, error) {
	row, err := scanDocument(d.conn.QueryRow(`SELECT `+documentColumns+` FROM documents WHERE hash = ? ORDER BY id LIMIT 1`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) GetDocumentByID(id int) (*internal.DocumentRow, error) {
	row, err := scanDocument(d.conn.QueryRow(`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) ListDocumentsByStatus(status string, limit int) ([]internal.DocumentRow, error) {
	rows, err := d.conn.Query(`SELECT `+documentColumns+` FROM documents WHERE status = ? ORDER BY receivedAt ASC, id ASC LIMIT ?`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.DocumentRow
	for rows.Next() {
		row, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateDocumentStatus(documentID int, status string) error {
	_, err := d.conn.Exec(`UPDATE documents SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, documentID)
	return err
}

// SaveRun stores a run, its best items and their matches in one transaction.
// matches is either empty or parallel to result.BestItems.
func (d *DB) SaveRun(run internal.RunRow, result internal.ArbitrationResult, matches []internal.MatchResult) error {
	if len(matches) > 0 && len(matches) != len(result.BestItems) {
		return fmt.Errorf("save run %s: %d matches for %d items", run.RunID, len(matches), len(result.BestItems))
	}

	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	timingsJSON, _ := json.Marshal(run.Timings)
	countsJSON, _ := json.Marshal(run.Counts)
	recsJSON, _ := json.Marshal(result.Recommendations)
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return err
	}
	var documentID any
	if run.DocumentID > 0 {
		documentID = run.DocumentID
	}
	if _, err := tx.Exec(`
INSERT INTO runs (runId, documentId, bestStrategy, documentType, supplierId, timingsJson, countsJson, recommendationsJson, resultJson)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`, run.RunID, documentID, result.BestStrategy, string(result.DocumentType.Dominant), result.SupplierID,
		string(timingsJSON), string(countsJSON), string(recsJSON), string(resultJSON)); err != nil {
		return err
	}

	itemStmt, err := tx.Prepare(`
INSERT INTO line_items (runId, ordinal, name, article, qty, unit, price, currency, total, totalComputed, confidence, source, supplier)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return err
	}
	defer itemStmt.Close()

	matchStmt, err := tx.Prepare(`
INSERT INTO matches (lineItemId, status, confidence, reason, productId, candidatesJson)
VALUES (?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return err
	}
	defer matchStmt.Close()

	for i, it := range result.BestItems {
		res, err := itemStmt.Exec(run.RunID, i+1, it.Name, nullString(it.Article), it.Qty, it.Unit, it.Price,
			it.Currency, it.Total, it.TotalComputed, it.Confidence, it.Source, nullString(it.Supplier))
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			continue
		}
		itemID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		m := matches[i]
		candidatesJSON, _ := json.Marshal(m.Candidates)
		var productID *int
		if m.Product != nil {
			productID = util.IntPtr(m.Product.ID)
		}
		if _, err := matchStmt.Exec(itemID, string(m.Status), m.Confidence, string(m.Reason), productID, string(candidatesJSON)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) GetRun(runID string) (*internal.RunRow, error) {
	var row internal.RunRow
	var documentID sql.NullInt64
	var supplierID sql.NullString
	var timingsJSON, countsJSON, recsJSON string
	err := d.conn.QueryRow(`
SELECT runId, documentId, bestStrategy, documentType, supplierId, timingsJson, countsJson, recommendationsJson, createdAt
FROM runs WHERE runId = ?
`, runID).Scan(&row.RunID, &documentID, &row.BestStrategy, &row.DocumentType, &supplierID, &timingsJSON, &countsJSON, &recsJSON, &row.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	row.DocumentID = int(documentID.Int64)
	row.SupplierID = supplierID.String
	_ = json.Unmarshal([]byte(timingsJSON), &row.Timings)
	_ = json.Unmarshal([]byte(countsJSON), &row.Counts)
	_ = json.Unmarshal([]byte(recsJSON), &row.Recommendations)
	return &row, nil
}

// LatestRunID returns the newest run for a document, or "" when it was never processed.
func (d *DB) LatestRunID(documentID int) (string, error) {
	var runID string
	err := d.conn.QueryRow(`SELECT runId FROM runs WHERE documentId = ? ORDER BY id DESC LIMIT 1`, documentID).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return runID, err
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

// GetExportRows lists a run's items in extraction order with their best match and the
// runner-up candidate.
func (d *DB) GetExportRows(runID string) ([]internal.ExportRow, error) {
	rows, err := d.conn.Query(`
SELECT
  li.ordinal, li.name, li.article, li.qty, li.unit, li.price, li.currency, li.total,
  li.totalComputed, li.confidence, li.source, li.supplier,
  m.status, m.confidence, m.reason, p.sku, p.name, m.candidatesJson
FROM line_items li
LEFT JOIN matches m ON m.lineItemId = li.id
LEFT JOIN products p ON p.id = m.productId
WHERE li.runId = ?
ORDER BY li.ordinal ASC
`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.ExportRow
	for rows.Next() {
		var row internal.ExportRow
		var article, supplier, status, reason, candidatesJSON sql.NullString
		var matchScore sql.NullFloat64
		if err := rows.Scan(
			&row.Ordinal, &row.Item.Name, &article, &row.Item.Qty, &row.Item.Unit, &row.Item.Price,
			&row.Item.Currency, &row.Item.Total, &row.Item.TotalComputed, &row.Item.Confidence,
			&row.Item.Source, &supplier,
			&status, &matchScore, &reason, &row.ProductSKU, &row.ProductName, &candidatesJSON,
		); err != nil {
			return nil, err
		}
		row.Item.Article = article.String
		row.Item.Supplier = supplier.String
		row.MatchStatus = status.String
		row.MatchScore = matchScore.Float64
		row.MatchReason = reason.String

		var candidates []internal.MatchCandidate
		if candidatesJSON.Valid {
			_ = json.Unmarshal([]byte(candidatesJSON.String), &candidates)
		}
		if len(candidates) > 1 {
			row.Candidate2 = util.StringPtr(candidates[1].Name)
			row.Candidate2Sc = util.FloatPtr(candidates[1].Score)
		}
		out = append(out, row)
	}

	return out, rows.Err()
}

func (d *DB) MustDocument(id int) (internal.DocumentRow, error) {
	row, err := d.GetDocumentByID(id)
	if err != nil {
		return internal.DocumentRow{}, err
	}
	if row == nil {
		return internal.DocumentRow{}, fmt.Errorf("document not found: id=%d", id)
	}
	return *row, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
