package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure Go driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS ai_generation_history (
	id          TEXT PRIMARY KEY,
	user_id     TEXT,
	type        TEXT NOT NULL,
	prompt      TEXT NOT NULL,
	result      TEXT NOT NULL,
	tokens_used INTEGER NOT NULL DEFAULT 0,
	model       TEXT NOT NULL,
	provider    TEXT NOT NULL,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ai_generation_history_created_at
	ON ai_generation_history (created_at);
`

// SQLiteStore writes history rows to a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
// The pool is limited to one connection because SQLite has a single writer.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("history: create dir for %q: %w", path, err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open sqlite %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: ping sqlite %q: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// createdAtLayout is fixed width so that text order matches time order.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

func (s *SQLiteStore) Insert(ctx context.Context, e Entry) (string, error) {
	id := e.ID
	if id == "" {
		id = uuid.NewString()
	}

	var userID sql.NullString
	if e.UserID != "" {
		userID = sql.NullString{String: e.UserID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ai_generation_history
			(id, user_id, type, prompt, result, tokens_used, model, provider, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, userID, string(e.Type), e.Prompt, e.Result, e.TokensUsed, e.Model, e.Provider,
		normalizeTime(e.CreatedAt).Format(createdAtLayout),
	)
	if err != nil {
		return "", fmt.Errorf("history: insert: %w", err)
	}
	return id, nil
}

// Recent returns up to limit entries, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, type, prompt, result, tokens_used, model, provider, created_at
		 FROM ai_generation_history
		 ORDER BY created_at DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e         Entry
			userID    sql.NullString
			typ       string
			createdAt string
		)
		if err := rows.Scan(&e.ID, &userID, &typ, &e.Prompt, &e.Result, &e.TokensUsed, &e.Model, &e.Provider, &createdAt); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		e.UserID = userID.String
		e.Type = Type(typ)
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			e.CreatedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
