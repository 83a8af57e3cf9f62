package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"quotedesk/internal"
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
CREATE TABLE IF NOT EXISTS accounts (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  email TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL DEFAULT '',
  active INTEGER NOT NULL DEFAULT 1,
  dailyQuota INTEGER NOT NULL DEFAULT 100,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  accountId INTEGER NOT NULL,
  sender TEXT NOT NULL,
  subject TEXT,
  receivedAt TEXT,
  externalMessageId TEXT,
  status TEXT NOT NULL DEFAULT 'pending',
  errorMessage TEXT,
  attachmentCount INTEGER NOT NULL DEFAULT 0,
  rawRef TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(accountId) REFERENCES accounts(id)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_external_id
  ON messages(externalMessageId) WHERE externalMessageId IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_messages_status ON messages(status);

CREATE TABLE IF NOT EXISTS line_items (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  messageId INTEGER NOT NULL,
  name TEXT,
  description TEXT,
  sku TEXT,
  quantity REAL,
  unitPrice REAL,
  totalPrice REAL,
  confidence REAL NOT NULL DEFAULT 0,
  metaJson TEXT NOT NULL DEFAULT '{}',
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(messageId) REFERENCES messages(id)
);

CREATE TABLE IF NOT EXISTS products (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  accountId INTEGER NOT NULL,
  sku TEXT NOT NULL,
  name TEXT NOT NULL,
  price REAL NOT NULL DEFAULT 0,
  cost REAL,
  category TEXT,
  supplier TEXT,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(accountId, sku),
  FOREIGN KEY(accountId) REFERENCES accounts(id)
);
CREATE INDEX IF NOT EXISTS idx_products_name ON products(name);

CREATE TABLE IF NOT EXISTS cross_references (
  accountId INTEGER NOT NULL,
  competitorSku TEXT NOT NULL,
  catalogSku TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY(accountId, competitorSku),
  FOREIGN KEY(accountId) REFERENCES accounts(id)
);

CREATE TABLE IF NOT EXISTS quotes (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  quoteNumber TEXT NOT NULL,
  accountId INTEGER NOT NULL,
  messageId INTEGER,
  status TEXT NOT NULL DEFAULT 'draft',
  totalAmount REAL NOT NULL DEFAULT 0,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(accountId) REFERENCES accounts(id),
  FOREIGN KEY(messageId) REFERENCES messages(id)
);

CREATE TABLE IF NOT EXISTS quote_line_items (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  quoteId INTEGER NOT NULL,
  description TEXT NOT NULL,
  sku TEXT,
  quantity REAL NOT NULL,
  unitPrice REAL NOT NULL,
  totalPrice REAL NOT NULL,
  metaJson TEXT NOT NULL DEFAULT '{}',
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(quoteId) REFERENCES quotes(id)
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// ---- accounts ----

func (d *DB) UpsertAccount(email, name string, active bool, dailyQuota int) (internal.Account, error) {
	_, err := d.conn.Exec(`
INSERT INTO accounts (email, name, active, dailyQuota) VALUES (?, ?, ?, ?)
ON CONFLICT(email) DO UPDATE SET
  name=excluded.name,
  active=excluded.active,
  dailyQuota=excluded.dailyQuota
`, strings.ToLower(strings.TrimSpace(email)), name, boolToInt(active), dailyQuota)
	if err != nil {
		return internal.Account{}, err
	}

	account, err := d.GetAccountByEmail(email)
	if err != nil {
		return internal.Account{}, err
	}
	if account == nil {
		return internal.Account{}, errors.New("failed to upsert account")
	}
	return *account, nil
}

func (d *DB) GetAccountByEmail(email string) (*internal.Account, error) {
	var a internal.Account
	var active int
	err := d.conn.QueryRow(`
SELECT id, email, name, active, dailyQuota FROM accounts WHERE email = ?
`, strings.ToLower(strings.TrimSpace(email))).Scan(&a.ID, &a.Email, &a.Name, &active, &a.DailyQuota)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.Active = active != 0
	return &a, nil
}

func (d *DB) GetAccountByID(id int) (*internal.Account, error) {
	var a internal.Account
	var active int
	err := d.conn.QueryRow(`
SELECT id, email, name, active, dailyQuota FROM accounts WHERE id = ?
`, id).Scan(&a.ID, &a.Email, &a.Name, &active, &a.DailyQuota)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.Active = active != 0
	return &a, nil
}

// CountMessagesAdmittedToday counts the account's messages that entered the
// pipeline since UTC midnight, regardless of how they ended up. The daily
// quota throttles admissions, so failed and in-flight messages consume it
// the same as processed ones.
func (d *DB) CountMessagesAdmittedToday(accountID int) (int, error) {
	var count int
	err := d.conn.QueryRow(`
SELECT COUNT(*) FROM messages
WHERE accountId = ? AND date(createdAt) = date('now')
`, accountID).Scan(&count)
	return count, err
}

// ---- messages ----

func (d *DB) InsertMessage(accountID int, sender, subject, receivedAt string, externalMessageID *string, attachmentCount int, rawRef *string) (internal.MessageRow, error) {
	result, err := d.conn.Exec(`
INSERT INTO messages (accountId, sender, subject, receivedAt, externalMessageId, status, attachmentCount, rawRef)
VALUES (?, ?, ?, ?, ?, 'pending', ?, ?)
`, accountID, sender, subject, receivedAt, externalMessageID, attachmentCount, rawRef)
	if err != nil {
		return internal.MessageRow{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return internal.MessageRow{}, err
	}
	row, err := d.GetMessageByID(int(id))
	if err != nil {
		return internal.MessageRow{}, err
	}
	if row == nil {
		return internal.MessageRow{}, errors.New("failed to insert message")
	}
	return *row, nil
}

func (d *DB) GetMessageByID(id int) (*internal.MessageRow, error) {
	return d.scanMessage(d.conn.QueryRow(`
SELECT id, accountId, sender, subject, receivedAt, externalMessageId, status, errorMessage, attachmentCount, rawRef
FROM messages WHERE id = ?
`, id))
}

func (d *DB) GetMessageByExternalID(externalMessageID string) (*internal.MessageRow, error) {
	return d.scanMessage(d.conn.QueryRow(`
SELECT id, accountId, sender, subject, receivedAt, externalMessageId, status, errorMessage, attachmentCount, rawRef
FROM messages WHERE externalMessageId = ?
`, externalMessageID))
}

func (d *DB) scanMessage(row *sql.Row) (*internal.MessageRow, error) {
	var m internal.MessageRow
	var status string
	err := row.Scan(&m.ID, &m.AccountID, &m.Sender, &m.Subject, &m.ReceivedAt, &m.ExternalMessageID, &status, &m.ErrorMessage, &m.AttachmentCount, &m.RawRef)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.Status = internal.MessageStatus(status)
	return &m, nil
}

func (d *DB) ListMessagesByStatus(status internal.MessageStatus, limit int) ([]internal.MessageRow, error) {
	rows, err := d.conn.Query(`
SELECT id, accountId, sender, subject, receivedAt, externalMessageId, status, errorMessage, attachmentCount, rawRef
FROM messages WHERE status = ? ORDER BY receivedAt ASC LIMIT ?
`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.MessageRow
	for rows.Next() {
		var m internal.MessageRow
		var st string
		if err := rows.Scan(&m.ID, &m.AccountID, &m.Sender, &m.Subject, &m.ReceivedAt, &m.ExternalMessageID, &st, &m.ErrorMessage, &m.AttachmentCount, &m.RawRef); err != nil {
			return nil, err
		}
		m.Status = internal.MessageStatus(st)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (d *DB) UpdateMessageStatus(messageID int, status internal.MessageStatus) error {
	_, err := d.conn.Exec(`UPDATE messages SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, string(status), messageID)
	return err
}

// FailMessage records a terminal failure and its human-readable reason on
// the message row. The row is the durable record of what happened.
func (d *DB) FailMessage(messageID int, reason string) error {
	_, err := d.conn.Exec(`
UPDATE messages SET status = 'failed', errorMessage = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?
`, reason, messageID)
	return err
}

// ---- line items ----

func (d *DB) InsertLineItem(item internal.ExtractedLineItem) (int, error) {
	metaJSON, _ := json.Marshal(item.Meta)
	result, err := d.conn.Exec(`
INSERT INTO line_items (messageId, name, description, sku, quantity, unitPrice, totalPrice, confidence, metaJson)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`, item.MessageID, item.Name, item.Description, item.SKU, item.Quantity, item.UnitPrice, item.TotalPrice, item.Confidence, string(metaJSON))
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	return int(id), err
}

func (d *DB) ListLineItemsByMessage(messageID int) ([]internal.ExtractedLineItem, error) {
	rows, err := d.conn.Query(`
SELECT id, messageId, name, description, sku, quantity, unitPrice, totalPrice, confidence, metaJson
FROM line_items WHERE messageId = ? ORDER BY id ASC
`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.ExtractedLineItem
	for rows.Next() {
		var item internal.ExtractedLineItem
		var metaJSON string
		if err := rows.Scan(&item.ID, &item.MessageID, &item.Name, &item.Description, &item.SKU, &item.Quantity, &item.UnitPrice, &item.TotalPrice, &item.Confidence, &metaJSON); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(metaJSON), &item.Meta)
		out = append(out, item)
	}
	return out, rows.Err()
}

// ---- products ----

func (d *DB) UpsertProducts(products []internal.CatalogProduct) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
INSERT INTO products (accountId, sku, name, price, cost, category, supplier, updatedAt)
VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(accountId, sku) DO UPDATE SET
  name=excluded.name,
  price=excluded.price,
  cost=excluded.cost,
  category=excluded.category,
  supplier=excluded.supplier,
  updatedAt=CURRENT_TIMESTAMP
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range products {
		if _, err := stmt.Exec(p.AccountID, p.SKU, p.Name, p.Price, p.Cost, p.Category, p.Supplier); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) ListProductsByAccount(accountID int) ([]internal.CatalogProduct, error) {
	rows, err := d.conn.Query(`
SELECT id, accountId, sku, name, price, cost, category, supplier
FROM products WHERE accountId = ?
`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProducts(rows)
}

func (d *DB) GetProductBySKU(accountID int, sku string) (*internal.CatalogProduct, error) {
	var p internal.CatalogProduct
	err := d.conn.QueryRow(`
SELECT id, accountId, sku, name, price, cost, category, supplier
FROM products WHERE accountId = ? AND sku = ? COLLATE NOCASE
`, accountID, sku).Scan(&p.ID, &p.AccountID, &p.SKU, &p.Name, &p.Price, &p.Cost, &p.Category, &p.Supplier)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (d *DB) GetProductByID(id int) (*internal.CatalogProduct, error) {
	var p internal.CatalogProduct
	err := d.conn.QueryRow(`
SELECT id, accountId, sku, name, price, cost, category, supplier
FROM products WHERE id = ?
`, id).Scan(&p.ID, &p.AccountID, &p.SKU, &p.Name, &p.Price, &p.Cost, &p.Category, &p.Supplier)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SearchProductsBySKU returns products whose SKU contains the query,
// case-insensitively.
func (d *DB) SearchProductsBySKU(accountID int, query string, limit int) ([]internal.CatalogProduct, error) {
	rows, err := d.conn.Query(`
SELECT id, accountId, sku, name, price, cost, category, supplier
FROM products WHERE accountId = ? AND sku LIKE ? ESCAPE '\' COLLATE NOCASE LIMIT ?
`, accountID, "%"+escapeLike(query)+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProducts(rows)
}

// SearchProductsByName returns products whose display name contains every
// given token, case-insensitively.
func (d *DB) SearchProductsByName(accountID int, tokens []string, limit int) ([]internal.CatalogProduct, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	query := `
SELECT id, accountId, sku, name, price, cost, category, supplier
FROM products WHERE accountId = ?`
	args := []any{accountID}
	for _, token := range tokens {
		query += ` AND name LIKE ? ESCAPE '\' COLLATE NOCASE`
		args = append(args, "%"+escapeLike(token)+"%")
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProducts(rows)
}

func scanProducts(rows *sql.Rows) ([]internal.CatalogProduct, error) {
	var out []internal.CatalogProduct
	for rows.Next() {
		var p internal.CatalogProduct
		if err := rows.Scan(&p.ID, &p.AccountID, &p.SKU, &p.Name, &p.Price, &p.Cost, &p.Category, &p.Supplier); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ---- cross references ----

func (d *DB) UpsertCrossReferences(refs []internal.CrossReference) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
INSERT INTO cross_references (accountId, competitorSku, catalogSku)
VALUES (?, ?, ?)
ON CONFLICT(accountId, competitorSku) DO UPDATE SET catalogSku=excluded.catalogSku
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ref := range refs {
		if _, err := stmt.Exec(ref.AccountID, strings.ToUpper(strings.TrimSpace(ref.CompetitorSKU)), ref.CatalogSKU); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) GetCrossReference(accountID int, competitorSKU string) (*internal.CrossReference, error) {
	var ref internal.CrossReference
	err := d.conn.QueryRow(`
SELECT accountId, competitorSku, catalogSku
FROM cross_references WHERE accountId = ? AND competitorSku = ?
`, accountID, strings.ToUpper(strings.TrimSpace(competitorSKU))).Scan(&ref.AccountID, &ref.CompetitorSKU, &ref.CatalogSKU)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// ---- quotes ----

func (d *DB) InsertQuote(quoteNumber string, accountID int, messageID *int, status internal.QuoteStatus, total float64, items []internal.QuoteLineItem) (internal.QuoteRow, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return internal.QuoteRow{}, err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.Exec(`
INSERT INTO quotes (quoteNumber, accountId, messageId, status, totalAmount)
VALUES (?, ?, ?, ?, ?)
`, quoteNumber, accountID, messageID, string(status), total)
	if err != nil {
		return internal.QuoteRow{}, err
	}
	quoteID, err := result.LastInsertId()
	if err != nil {
		return internal.QuoteRow{}, err
	}

	stmt, err := tx.Prepare(`
INSERT INTO quote_line_items (quoteId, description, sku, quantity, unitPrice, totalPrice, metaJson)
VALUES (?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return internal.QuoteRow{}, err
	}
	defer stmt.Close()

	for _, item := range items {
		metaJSON, _ := json.Marshal(item.Meta)
		if _, err := stmt.Exec(quoteID, item.Description, item.SKU, item.Quantity, item.UnitPrice, item.TotalPrice, string(metaJSON)); err != nil {
			return internal.QuoteRow{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return internal.QuoteRow{}, err
	}

	return internal.QuoteRow{
		ID:          int(quoteID),
		QuoteNumber: quoteNumber,
		AccountID:   accountID,
		MessageID:   messageID,
		Status:      status,
		TotalAmount: total,
	}, nil
}

func (d *DB) GetQuoteByID(id int) (*internal.QuoteRow, error) {
	return d.scanQuote(d.conn.QueryRow(`
SELECT id, quoteNumber, accountId, messageId, status, totalAmount FROM quotes WHERE id = ?
`, id))
}

func (d *DB) GetQuoteByMessageID(messageID int) (*internal.QuoteRow, error) {
	return d.scanQuote(d.conn.QueryRow(`
SELECT id, quoteNumber, accountId, messageId, status, totalAmount FROM quotes WHERE messageId = ?
`, messageID))
}

func (d *DB) scanQuote(row *sql.Row) (*internal.QuoteRow, error) {
	var q internal.QuoteRow
	var status string
	err := row.Scan(&q.ID, &q.QuoteNumber, &q.AccountID, &q.MessageID, &status, &q.TotalAmount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	q.Status = internal.QuoteStatus(status)
	return &q, nil
}

func (d *DB) ListQuoteLineItems(quoteID int) ([]internal.QuoteLineItem, error) {
	rows, err := d.conn.Query(`
SELECT id, quoteId, description, sku, quantity, unitPrice, totalPrice, metaJson
FROM quote_line_items WHERE quoteId = ? ORDER BY id ASC
`, quoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.QuoteLineItem
	for rows.Next() {
		var item internal.QuoteLineItem
		var metaJSON string
		if err := rows.Scan(&item.ID, &item.QuoteID, &item.Description, &item.SKU, &item.Quantity, &item.UnitPrice, &item.TotalPrice, &metaJSON); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(metaJSON), &item.Meta)
		out = append(out, item)
	}
	return out, rows.Err()
}

// UpdateQuoteLineMeta replaces one quote line item's metadata blob.
func (d *DB) UpdateQuoteLineMeta(lineID int, meta map[string]any) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	_, err = d.conn.Exec(`UPDATE quote_line_items SET metaJson = ? WHERE id = ?`, string(metaJSON), lineID)
	return err
}

func (d *DB) MustMessageByExternalID(externalMessageID string) (internal.MessageRow, error) {
	row, err := d.GetMessageByExternalID(externalMessageID)
	if err != nil {
		return internal.MessageRow{}, err
	}
	if row == nil {
		return internal.MessageRow{}, fmt.Errorf("message not found: externalMessageId=%s", externalMessageID)
	}
	return *row, nil
}

// escapeLike makes a string safe for use inside a LIKE pattern with
// ESCAPE '\'. SKUs legitimately contain underscores, so the
// metacharacters must be escaped, not stripped.
func escapeLike(input string) string {
	repl := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return repl.Replace(input)
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
