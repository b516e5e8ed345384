package history

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_InsertAndRecent(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, typ := range []Type{TypeSummary, TypeSEO, TypeWritingSuggestion} {
		id, err := s.Insert(ctx, Entry{
			UserID:     "u1",
			Type:       typ,
			Prompt:     "prompt",
			Result:     "result",
			TokensUsed: 10 + i,
			Model:      "m1",
			Provider:   "deepseek",
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if id == "" {
			t.Fatal("expected a record id")
		}
	}

	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Type != TypeWritingSuggestion || got[1].Type != TypeSEO {
		t.Fatalf("expected newest first, got %s, %s", got[0].Type, got[1].Type)
	}
	if got[0].TokensUsed != 12 || got[0].UserID != "u1" || !got[0].CreatedAt.Equal(base.Add(2*time.Minute)) {
		t.Fatalf("unexpected entry %+v", got[0])
	}
}

func TestSQLiteStore_RecentOrdersWithinSecond(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	whole := time.Date(2024, 3, 1, 12, 0, 1, 0, time.UTC)
	half := time.Date(2024, 3, 1, 12, 0, 0, 500_000_000, time.UTC)
	for _, e := range []Entry{
		{Type: TypeSummary, Prompt: "p", Result: "earlier", Model: "m", Provider: "qwen", CreatedAt: half},
		{Type: TypeSummary, Prompt: "p", Result: "later", Model: "m", Provider: "qwen", CreatedAt: whole},
	} {
		if _, err := s.Insert(ctx, e); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].Result != "later" || got[1].Result != "earlier" {
		t.Fatalf("expected newest first, got %+v", got)
	}
	if !got[1].CreatedAt.Equal(half) {
		t.Fatalf("fractional seconds lost: %s", got[1].CreatedAt)
	}
}

func TestSQLiteStore_AnonymousUser(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	if _, err := s.Insert(ctx, Entry{Type: TypeCompletion, Prompt: "p", Result: "r", Model: "m", Provider: "qwen"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, err := s.Recent(ctx, 10)
	if err != nil || len(got) != 1 {
		t.Fatalf("Recent: %v (%d rows)", err, len(got))
	}
	if got[0].UserID != "" || got[0].CreatedAt.IsZero() {
		t.Fatalf("unexpected entry %+v", got[0])
	}
}

type failingStore struct{}

func (failingStore) Insert(context.Context, Entry) (string, error) { return "", errors.New("db locked") }
func (failingStore) Ping(context.Context) error                    { return nil }
func (failingStore) Close() error                                  { return nil }

type panickingStore struct{ failingStore }

func (panickingStore) Insert(context.Context, Entry) (string, error) { panic("boom") }

func TestRecorder_SwallowsStoreFailures(t *testing.T) {
	for name, store := range map[string]Store{
		"error": failingStore{},
		"panic": panickingStore{},
		"nil":   nil,
	} {
		t.Run(name, func(t *testing.T) {
			r := NewRecorder(store, nil, nil)
			id, ok := r.Record(context.Background(), Entry{Type: TypeSummary})
			if ok || id != "" {
				t.Fatalf("expected (\"\", false), got (%q, %v)", id, ok)
			}
		})
	}
}

func TestRecorder_ReturnsID(t *testing.T) {
	r := NewRecorder(openTestSQLite(t), nil, nil)

	id, ok := r.Record(context.Background(), Entry{Type: TypeSummary, Prompt: "p", Result: "r", Model: "m", Provider: "openai"})
	if !ok || id == "" {
		t.Fatalf("expected a record id, got (%q, %v)", id, ok)
	}
}

type countingStore struct {
	mu      sync.Mutex
	entries []Entry
	block   chan struct{}
}

func (c *countingStore) Insert(_ context.Context, e Entry) (string, error) {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
	return e.Prompt, nil
}
func (c *countingStore) Ping(context.Context) error { return nil }
func (c *countingStore) Close() error               { return nil }

func (c *countingStore) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func TestDispatcher_DrainsOnClose(t *testing.T) {
	store := &countingStore{}
	d := NewDispatcher(context.Background(), NewRecorder(store, nil, nil), nil, 100)

	for i := 0; i < 50; i++ {
		if !d.Enqueue(Entry{Prompt: "p"}) {
			t.Fatalf("entry %d rejected", i)
		}
	}
	_ = d.Close()

	if store.len() != 50 {
		t.Fatalf("expected 50 entries written, got %d", store.len())
	}
	if d.Enqueue(Entry{}) {
		t.Fatal("Enqueue after Close must be rejected")
	}
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	store := &countingStore{block: make(chan struct{})}
	d := NewDispatcher(context.Background(), NewRecorder(store, nil, nil), nil, 2)

	accepted := 0
	for i := 0; i < 10; i++ {
		if d.Enqueue(Entry{Prompt: "p"}) {
			accepted++
		}
	}
	close(store.block)
	_ = d.Close()

	if d.Dropped() == 0 {
		t.Fatal("expected drops with a full buffer")
	}
	if int64(accepted)+d.Dropped() != 10 {
		t.Fatalf("accepted %d + dropped %d != 10", accepted, d.Dropped())
	}
	if store.len() != accepted {
		t.Fatalf("expected %d written, got %d", accepted, store.len())
	}
}

func TestClickHouseStore_Insert(t *testing.T) {
	dsn := os.Getenv("CLICKHOUSE_DSN")
	if dsn == "" {
		t.Skip("CLICKHOUSE_DSN not set")
	}

	s, err := OpenClickHouse(context.Background(), dsn)
	if err != nil {
		t.Fatalf("OpenClickHouse: %v", err)
	}
	defer s.Close()

	id, err := s.Insert(context.Background(), Entry{Type: TypeSummary, Prompt: "p", Result: "r", Model: "m", Provider: "wenxin"})
	if err != nil || id == "" {
		t.Fatalf("Insert: id=%q err=%v", id, err)
	}
}
