package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"nexus/internal"
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
CREATE TABLE IF NOT EXISTS batches (
  id TEXT PRIMARY KEY,
  template TEXT NOT NULL,
  source TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  fileCount INTEGER NOT NULL DEFAULT 0,
  itemCount INTEGER NOT NULL DEFAULT 0,
  errorText TEXT NOT NULL DEFAULT '',
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS documents (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  batchId TEXT NOT NULL,
  filename TEXT NOT NULL,
  hash TEXT NOT NULL DEFAULT '',
  pages INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'pending',
  errorText TEXT NOT NULL DEFAULT '',
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(batchId) REFERENCES batches(id)
);
CREATE INDEX IF NOT EXISTS idx_documents_batch ON documents(batchId);

CREATE TABLE IF NOT EXISTS items (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  documentId INTEGER NOT NULL,
  page INTEGER NOT NULL,
  invoiceId TEXT NOT NULL,
  modelCode TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  quantity INTEGER NOT NULL DEFAULT 0,
  unitPrice REAL NOT NULL DEFAULT 0,
  origin TEXT NOT NULL DEFAULT '',
  lineTotal REAL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(documentId) REFERENCES documents(id)
);
CREATE INDEX IF NOT EXISTS idx_items_document ON items(documentId);

CREATE TABLE IF NOT EXISTS summaries (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  documentId INTEGER NOT NULL,
  invoiceId TEXT NOT NULL,
  totalAmount REAL,
  customer TEXT NOT NULL DEFAULT '',
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(documentId, invoiceId),
  FOREIGN KEY(documentId) REFERENCES documents(id)
);

CREATE TABLE IF NOT EXISTS failures (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  documentId INTEGER NOT NULL,
  page INTEGER NOT NULL,
  reason TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(documentId) REFERENCES documents(id)
);
CREATE INDEX IF NOT EXISTS idx_failures_document ON failures(documentId);

CREATE TABLE IF NOT EXISTS emails (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  batchId TEXT NOT NULL DEFAULT '',
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);
`

	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) InsertBatch(id, tpl, source string) error {
	_, err := d.conn.Exec(`INSERT INTO batches (id, template, source) VALUES (?, ?, ?)`, id, tpl, source)
	return err
}

func (d *DB) UpdateBatchStatus(id, status string) error {
	_, err := d.conn.Exec(`UPDATE batches SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, id)
	return err
}

func (d *DB) FinishBatch(id, status string, fileCount, itemCount int, errorText string) error {
	_, err := d.conn.Exec(`
UPDATE batches SET status = ?, fileCount = ?, itemCount = ?, errorText = ?, updatedAt = CURRENT_TIMESTAMP
WHERE id = ?
`, status, fileCount, itemCount, errorText, id)
	return err
}

func (d *DB) GetBatch(id string) (*internal.BatchRow, error) {
	var row internal.BatchRow
	err := d.conn.QueryRow(`
SELECT id, createdAt, template, source, status, fileCount, itemCount, errorText
FROM batches WHERE id = ?
`, id).Scan(
		&row.ID, &row.CreatedAt, &row.Template, &row.Source, &row.Status, &row.FileCount, &row.ItemCount, &row.ErrorText,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) ListRecentBatches(limit int) ([]internal.BatchRow, error) {
	rows, err := d.conn.Query(`
SELECT id, createdAt, template, source, status, fileCount, itemCount, errorText
FROM batches ORDER BY createdAt DESC, id DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.BatchRow
	for rows.Next() {
		var row internal.BatchRow
		if err := rows.Scan(&row.ID, &row.CreatedAt, &row.Template, &row.Source, &row.Status, &row.FileCount, &row.ItemCount, &row.ErrorText); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) InsertDocument(batchID, filename, hash string) (int64, error) {
	result, err := d.conn.Exec(`INSERT INTO documents (batchId, filename, hash) VALUES (?, ?, ?)`, batchID, filename, hash)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (d *DB) FinishDocument(docID int64, status string, pages int, errorText string) error {
	_, err := d.conn.Exec(`
UPDATE documents SET status = ?, pages = ?, errorText = ? WHERE id = ?
`, status, pages, errorText, docID)
	return err
}

func (d *DB) ListDocuments(batchID string) ([]internal.DocumentRow, error) {
	rows, err := d.conn.Query(`
SELECT id, batchId, filename, hash, pages, status, errorText, createdAt
FROM documents WHERE batchId = ? ORDER BY id ASC
`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.DocumentRow
	for rows.Next() {
		var row internal.DocumentRow
		if err := rows.Scan(&row.ID, &row.BatchID, &row.Filename, &row.Hash, &row.Pages, &row.Status, &row.ErrorText, &row.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// InsertFileResult writes one reconciled file in a single transaction.
// Summary rows ride on UNIQUE(documentId, invoiceId) so a replay of the
// same document cannot double its invoices.
func (d *DB) InsertFileResult(docID int64, res internal.FileResult) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	itemStmt, err := tx.Prepare(`
INSERT INTO items (documentId, page, invoiceId, modelCode, description, quantity, unitPrice, origin, lineTotal)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return err
	}
	defer itemStmt.Close()

	for _, item := range res.Items {
		if _, err := itemStmt.Exec(
			docID, item.Page, item.InvoiceID, item.ModelCode, item.Description,
			item.Quantity, item.UnitPrice, item.Origin, item.LineTotal,
		); err != nil {
			return err
		}
	}

	for _, sum := range res.Summary {
		if _, err := tx.Exec(`
INSERT INTO summaries (documentId, invoiceId, totalAmount, customer)
VALUES (?, ?, ?, ?)
ON CONFLICT(documentId, invoiceId) DO NOTHING
`, docID, sum.InvoiceID, sum.TotalAmount, sum.Customer); err != nil {
			return err
		}
	}

	for _, f := range res.Failures {
		if _, err := tx.Exec(`
INSERT INTO failures (documentId, page, reason) VALUES (?, ?, ?)
`, docID, f.Page, f.Reason); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) GetBatchItems(batchID string) ([]internal.ItemRow, error) {
	rows, err := d.conn.Query(`
SELECT d.filename, i.page, i.invoiceId, i.modelCode, i.description, i.quantity, i.unitPrice, i.origin, i.lineTotal
FROM items i
JOIN documents d ON d.id = i.documentId
WHERE d.batchId = ?
ORDER BY d.id ASC, i.id ASC
`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.ItemRow
	for rows.Next() {
		var row internal.ItemRow
		if err := rows.Scan(
			&row.SourceFile, &row.Page, &row.InvoiceID, &row.ModelCode, &row.Description,
			&row.Quantity, &row.UnitPrice, &row.Origin, &row.LineTotal,
		); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) GetBatchSummaries(batchID string) ([]internal.SummaryRow, error) {
	rows, err := d.conn.Query(`
SELECT d.filename, s.invoiceId, s.totalAmount, s.customer
FROM summaries s
JOIN documents d ON d.id = s.documentId
WHERE d.batchId = ?
ORDER BY d.id ASC, s.id ASC
`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.SummaryRow
	for rows.Next() {
		var row internal.SummaryRow
		if err := rows.Scan(&row.SourceFile, &row.InvoiceID, &row.TotalAmount, &row.Customer); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) DocumentFailures(docID int) ([]internal.PageFailure, error) {
	rows, err := d.conn.Query(`SELECT page, reason FROM failures WHERE documentId = ? ORDER BY page ASC`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.PageFailure
	for rows.Next() {
		var f internal.PageFailure
		if err := rows.Scan(&f.Page, &f.Reason); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (d *DB) UpsertEmail(provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.EmailRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO emails (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, status, rawRef)
	if err != nil {
		return internal.EmailRow{}, err
	}

	row, err := d.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, errors.New("failed to upsert email")
	}
	return *row, nil
}

func (d *DB) GetEmailByProviderMessageID(provider, messageID string) (*internal.EmailRow, error) {
	var row internal.EmailRow
	err := d.conn.QueryRow(`
SELECT id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef, batchId
FROM emails WHERE provider = ? AND messageId = ?
`, provider, messageID).Scan(
		&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef, &row.BatchID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) GetEmailByID(id int) (*internal.EmailRow, error) {
	var row internal.EmailRow
	err := d.conn.QueryRow(`
SELECT id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef, batchId
FROM emails WHERE id = ?
`, id).Scan(
		&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef, &row.BatchID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) ListEmailsByStatus(status string, limit int) ([]internal.EmailRow, error) {
	rows, err := d.conn.Query(`
SELECT id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef, batchId
FROM emails WHERE status = ? ORDER BY receivedAt ASC LIMIT ?
`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.EmailRow
	for rows.Next() {
		var row internal.EmailRow
		if err := rows.Scan(&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef, &row.BatchID); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateEmailStatus(emailID int, status string) error {
	_, err := d.conn.Exec(`UPDATE emails SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, emailID)
	return err
}

func (d *DB) SetEmailBatch(emailID int, batchID string) error {
	_, err := d.conn.Exec(`UPDATE emails SET batchId = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, batchID, emailID)
	return err
}

func (d *DB) MustEmailByProviderMessageID(provider, messageID string) (internal.EmailRow, error) {
	row, err := d.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, fmt.Errorf("email not found: provider=%s messageId=%s", provider, messageID)
	}
	return *row, nil
}
