package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Deduper records webhook deliveries that were already handled. Scope is usually
// the tenant key so event ids from different centers never collide.
type Deduper interface {
	AlreadyProcessed(ctx context.Context, scope, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, scope, eventID string) (bool, error)
}

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProcessedStore keeps processed webhook ids in Postgres.
type ProcessedStore struct {
	pool rowQuerier
}

func NewProcessedStore(pool *pgxpool.Pool) *ProcessedStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &ProcessedStore{pool: pool}
}

func newProcessedStoreWithExec(exec rowQuerier) *ProcessedStore {
	if exec == nil {
		panic("events: exec required")
	}
	return &ProcessedStore{pool: exec}
}

// AlreadyProcessed checks if we've seen this event id.
func (s *ProcessedStore) AlreadyProcessed(ctx context.Context, scope, eventID string) (bool, error) {
	query := `SELECT 1 FROM processed_events WHERE scope = $1 AND event_id = $2`
	var exists int
	if err := s.pool.QueryRow(ctx, query, scope, eventID).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("events: check processed: %w", err)
	}
	return true, nil
}

// MarkProcessed inserts an event id for the scope, returning false if it already exists.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, scope, eventID string) (bool, error) {
	query := `
		INSERT INTO processed_events (scope, event_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	ct, err := s.pool.Exec(ctx, query, scope, eventID)
	if err != nil {
		return false, fmt.Errorf("events: mark processed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// RedisProcessedStore keeps processed webhook ids in Redis with a TTL.
type RedisProcessedStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisProcessedStore(client *redis.Client, ttl time.Duration) *RedisProcessedStore {
	if client == nil {
		panic("events: redis client required")
	}
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &RedisProcessedStore{redis: client, ttl: ttl}
}

func (s *RedisProcessedStore) key(scope, eventID string) string {
	return fmt.Sprintf("webhook:processed:%s:%s", scope, eventID)
}

func (s *RedisProcessedStore) AlreadyProcessed(ctx context.Context, scope, eventID string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(scope, eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("events: check processed: %w", err)
	}
	return n > 0, nil
}

func (s *RedisProcessedStore) MarkProcessed(ctx context.Context, scope, eventID string) (bool, error) {
	ok, err := s.redis.SetNX(ctx, s.key(scope, eventID), time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("events: mark processed: %w", err)
	}
	return ok, nil
}

// MemoryProcessedStore keeps processed ids in process memory for local runs
// without Postgres or Redis. Entries older than the TTL are forgotten.
type MemoryProcessedStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryProcessedStore(ttl time.Duration) *MemoryProcessedStore {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &MemoryProcessedStore{seen: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

func (s *MemoryProcessedStore) AlreadyProcessed(_ context.Context, scope, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.seen[scope+"\x00"+eventID]
	return ok && s.now().Sub(at) < s.ttl, nil
}

func (s *MemoryProcessedStore) MarkProcessed(_ context.Context, scope, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for key, at := range s.seen {
		if now.Sub(at) >= s.ttl {
			delete(s.seen, key)
		}
	}
	key := scope + "\x00" + eventID
	if _, ok := s.seen[key]; ok {
		return false, nil
	}
	s.seen[key] = now
	return true, nil
}
