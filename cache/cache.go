// Package cache persists token-mapping snapshots so repeated deck
// generations against the same template skip rediscovery. A Redis
// backend shares snapshots across processes; the in-memory backend
// serves single-process runs and tests.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/deckflow/deckflow-go/deckflow"
)

// Snapshot is one cached discovery result for a document.
type Snapshot struct {
	DocumentID   string                 `json:"document_id"`
	Placeholders []deckflow.Placeholder `json:"placeholders"`
	CreatedAt    time.Time              `json:"created_at"`
}

// Store persists and recalls snapshots. A miss is (nil, nil).
type Store interface {
	Get(ctx context.Context, documentID string) (*Snapshot, error)
	Put(ctx context.Context, snapshot *Snapshot) error
	Invalidate(ctx context.Context, documentID string) error
	Close() error
}

// RedisStore keeps snapshots in Redis with a TTL.
type RedisStore struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(redisURL string, ttl time.Duration, keyPrefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	if ttl <= 0 {
		ttl = time.Hour
	}
	if keyPrefix == "" {
		keyPrefix = "deckflow:snapshot"
	}
	return &RedisStore{client: client, ttl: ttl, keyPrefix: keyPrefix}, nil
}

func (r *RedisStore) key(documentID string) string {
	return fmt.Sprintf("%s:%s", r.keyPrefix, documentID)
}

// Get fetches a snapshot; a missing key is not an error.
func (r *RedisStore) Get(ctx context.Context, documentID string) (*Snapshot, error) {
	data, err := r.client.Get(ctx, r.key(documentID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// Put stores a snapshot under the configured TTL.
func (r *RedisStore) Put(ctx context.Context, snapshot *Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := r.client.Set(ctx, r.key(snapshot.DocumentID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}
	return nil
}

// Invalidate drops a document's snapshot.
func (r *RedisStore) Invalidate(ctx context.Context, documentID string) error {
	if err := r.client.Del(ctx, r.key(documentID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate snapshot: %w", err)
	}
	return nil
}

// Close releases the client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// MemoryStore is the in-process fallback backend.
type MemoryStore struct {
	mu        sync.Mutex
	snapshots map[string]*Snapshot
	ttl       time.Duration
	now       func() time.Time
}

// NewMemoryStore creates an empty store. A non-positive TTL disables
// expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string]*Snapshot),
		ttl:       ttl,
		now:       time.Now,
	}
}

// Get returns the stored snapshot, expiring stale entries lazily.
func (m *MemoryStore) Get(_ context.Context, documentID string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap, ok := m.snapshots[documentID]
	if !ok {
		return nil, nil
	}
	if m.ttl > 0 && m.now().Sub(snap.CreatedAt) > m.ttl {
		delete(m.snapshots, documentID)
		return nil, nil
	}
	return snap, nil
}

// Put stores a snapshot.
func (m *MemoryStore) Put(_ context.Context, snapshot *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snapshot.DocumentID] = snapshot
	return nil
}

// Invalidate drops a document's snapshot.
func (m *MemoryStore) Invalidate(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, documentID)
	return nil
}

// Close is a no-op for the in-memory backend.
func (m *MemoryStore) Close() error { return nil }
