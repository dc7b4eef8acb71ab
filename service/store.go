package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	x402 "github.com/aeon-xyz/x402-go"
)

// DefaultSettlementTTL bounds how long a settlement result is replayed for
// duplicate requests. It comfortably exceeds any authorization lifetime.
const DefaultSettlementTTL = 24 * time.Hour

// SettlementStore caches settlement results keyed by (payer, nonce) so a
// replayed settle request returns the original receipt instead of racing the
// on-chain nonce check.
type SettlementStore interface {
	Get(ctx context.Context, key string) (*x402.SettleResponse, bool, error)
	Put(ctx context.Context, key string, resp x402.SettleResponse, ttl time.Duration) error
}

// memoryEntry is a stored settlement with its expiry.
type memoryEntry struct {
	resp      x402.SettleResponse
	expiresAt time.Time
}

// MemoryStore is the in-process default SettlementStore.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryStore creates an empty in-memory settlement store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

// Get returns a cached settlement if present and unexpired.
func (s *MemoryStore) Get(ctx context.Context, key string) (*x402.SettleResponse, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.entries, key)
		return nil, false, nil
	}
	resp := entry.resp
	return &resp, true, nil
}

// Put stores a settlement result, evicting expired entries opportunistically.
func (s *MemoryStore) Put(ctx context.Context, key string, resp x402.SettleResponse, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for k, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, k)
		}
	}
	s.entries[key] = memoryEntry{resp: resp, expiresAt: now.Add(ttl)}
	return nil
}

// RedisStore is a SettlementStore shared across facilitator replicas.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a settlement store on an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "x402:settlement:"}
}

// Get returns a cached settlement if Redis holds one.
func (s *RedisStore) Get(ctx context.Context, key string) (*x402.SettleResponse, bool, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("settlement store read failed: %w", err)
	}

	var resp x402.SettleResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, false, fmt.Errorf("settlement store entry corrupt: %w", err)
	}
	return &resp, true, nil
}

// Put stores a settlement result with the given TTL.
func (s *RedisStore) Put(ctx context.Context, key string, resp x402.SettleResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal settlement: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("settlement store write failed: %w", err)
	}
	return nil
}
