package history

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
)

const clickhouseSchema = `
CREATE TABLE IF NOT EXISTS ai_generation_history (
	id          UUID,
	user_id     String,
	type        LowCardinality(String),
	prompt      String,
	result      String,
	tokens_used UInt32,
	model       LowCardinality(String),
	provider    LowCardinality(String),
	created_at  DateTime64(3, 'UTC')
) ENGINE = MergeTree
ORDER BY (provider, created_at)`

// ClickHouseStore writes history rows to ClickHouse for analytics
// deployments.
type ClickHouseStore struct {
	conn driver.Conn
}

// OpenClickHouse connects with a clickhouse:// DSN and ensures the table
// exists.
func OpenClickHouse(ctx context.Context, dsn string) (*ClickHouseStore, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("history: parse clickhouse dsn: %w", err)
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("history: open clickhouse: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := conn.Ping(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("history: ping clickhouse: %w", err)
	}
	if err := conn.Exec(ctx, clickhouseSchema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}
	return &ClickHouseStore{conn: conn}, nil
}

func (s *ClickHouseStore) Insert(ctx context.Context, e Entry) (string, error) {
	id := e.ID
	if id == "" {
		id = uuid.NewString()
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("history: invalid id %q: %w", id, err)
	}

	tokens := e.TokensUsed
	if tokens < 0 {
		tokens = 0
	}

	err = s.conn.Exec(ctx,
		`INSERT INTO ai_generation_history
			(id, user_id, type, prompt, result, tokens_used, model, provider, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		parsed, e.UserID, string(e.Type), e.Prompt, e.Result, uint32(tokens), e.Model, e.Provider,
		normalizeTime(e.CreatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("history: insert: %w", err)
	}
	return id, nil
}

func (s *ClickHouseStore) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

func (s *ClickHouseStore) Close() error {
	return s.conn.Close()
}
