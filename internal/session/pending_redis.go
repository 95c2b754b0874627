package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPendingKeyPrefix namespaces pending confirmations in Redis.
const RedisPendingKeyPrefix = "homeauth:pending:"

// RedisPendingStore keeps pending confirmations in Redis. Any engine sharing
// the store can resolve a token, and GETDEL makes the claim exactly-once.
// The reentrancy guard stays per engine.
type RedisPendingStore struct {
	client *redis.Client
	prefix string
}

func NewRedisPendingStore(client *redis.Client) *RedisPendingStore {
	return &RedisPendingStore{client: client, prefix: RedisPendingKeyPrefix}
}

// NewRedisPendingStoreFromURL parses a redis:// URL and pings the server.
func NewRedisPendingStoreFromURL(ctx context.Context, rawURL string) (*RedisPendingStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisPendingStore(client), nil
}

func (s *RedisPendingStore) key(token string) string {
	return s.prefix + token
}

func (s *RedisPendingStore) Put(ctx context.Context, token string, p Pending, ttl time.Duration) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode pending confirmation: %w", err)
	}
	if err := s.client.Set(ctx, s.key(token), raw, ttl).Err(); err != nil {
		return fmt.Errorf("store pending confirmation: %w", err)
	}
	return nil
}

func (s *RedisPendingStore) Get(ctx context.Context, token string) (*Pending, error) {
	return decodePending(s.client.Get(ctx, s.key(token)).Bytes())
}

func (s *RedisPendingStore) Take(ctx context.Context, token string) (*Pending, error) {
	return decodePending(s.client.GetDel(ctx, s.key(token)).Bytes())
}

func (s *RedisPendingStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("delete pending confirmation: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *RedisPendingStore) Close() error {
	return s.client.Close()
}

func decodePending(raw []byte, err error) (*Pending, error) {
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pending confirmation: %w", err)
	}
	var p Pending
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode pending confirmation: %w", err)
	}
	return &p, nil
}
