package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on go-redis with JSON values and a TTL.
//
// Key schema:
//
//	wallet:txs:{wallet} - JSON-serialized Entry
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore connects to Redis, pings it to verify connectivity, and
// returns the store. Zero ttl uses DefaultTTL.
func NewRedisStore(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}, nil
}

func walletKey(wallet string) string { return "wallet:txs:" + wallet }

// Get retrieves a wallet's cached entry. It returns ErrNotFound when the
// key does not exist.
func (s *RedisStore) Get(ctx context.Context, wallet string) (*Entry, error) {
	data, err := s.rdb.Get(ctx, walletKey(wallet)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis: get wallet %s: %w", wallet, err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("redis: unmarshal wallet %s: %w", wallet, err)
	}
	return &entry, nil
}

// Set stores a wallet's entry with the configured TTL.
func (s *RedisStore) Set(ctx context.Context, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("redis: marshal wallet %s: %w", entry.Wallet, err)
	}
	if err := s.rdb.Set(ctx, walletKey(entry.Wallet), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set wallet %s: %w", entry.Wallet, err)
	}
	return nil
}

// Delete removes a wallet's entry. Deleting an absent entry is not an error.
func (s *RedisStore) Delete(ctx context.Context, wallet string) error {
	if err := s.rdb.Del(ctx, walletKey(wallet)).Err(); err != nil {
		return fmt.Errorf("redis: delete wallet %s: %w", wallet, err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

var _ Store = (*RedisStore)(nil)
