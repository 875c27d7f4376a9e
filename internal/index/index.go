// Package index keeps a local sqlite record of archived messages so an
// operator can answer "what did previous runs take" without crawling the
// output tree.
package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mixelka/gmailarchiver/internal/archive"
)

const schema = `
CREATE TABLE IF NOT EXISTS archived_messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    account TEXT NOT NULL,
    seq_num INTEGER NOT NULL,
    message_date DATETIME NOT NULL,
    path TEXT NOT NULL,
    labels TEXT,
    archived_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_archived_account ON archived_messages(account);
CREATE INDEX IF NOT EXISTS idx_archived_date ON archived_messages(message_date);
`

// DB wraps sqlx.DB
type DB struct {
	*sqlx.DB
}

// Open opens (creating if needed) the index database at path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	return &DB{db}, nil
}

// Migrate creates the schema.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Record implements archive.Recorder.
func (db *DB) Record(ctx context.Context, e archive.Entry) error {
	query := `
		INSERT INTO archived_messages (account, seq_num, message_date, path, labels, archived_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	var labels sql.NullString
	if len(e.Labels) > 0 {
		data, err := json.Marshal(e.Labels)
		if err != nil {
			return fmt.Errorf("failed to encode labels: %w", err)
		}
		labels = sql.NullString{String: string(data), Valid: true}
	}
	if _, err := db.ExecContext(ctx, query,
		e.Account,
		e.SeqNum,
		e.MessageDate,
		e.Path,
		labels,
		time.Now(),
	); err != nil {
		return fmt.Errorf("failed to record archived message: %w", err)
	}
	return nil
}

// Row is one recorded archived message.
type Row struct {
	ID          int64          `db:"id"`
	Account     string         `db:"account"`
	SeqNum      uint32         `db:"seq_num"`
	MessageDate time.Time      `db:"message_date"`
	Path        string         `db:"path"`
	Labels      sql.NullString `db:"labels"`
	ArchivedAt  time.Time      `db:"archived_at"`
}

// ByAccount returns the recorded messages for one account, oldest first.
func (db *DB) ByAccount(ctx context.Context, account string) ([]Row, error) {
	query := `
		SELECT id, account, seq_num, message_date, path, labels, archived_at
		FROM archived_messages
		WHERE account = ?
		ORDER BY message_date, seq_num
	`
	var rows []Row
	if err := db.SelectContext(ctx, &rows, query, account); err != nil {
		return nil, fmt.Errorf("failed to query archived messages: %w", err)
	}
	return rows, nil
}
