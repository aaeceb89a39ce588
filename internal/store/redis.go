package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// pendingTTLFactor stretches the pending list TTL past the reconciliation
// window so the sweeper, not cache expiry, decides an entry's fate. The list
// expiring is only a backstop against lost sweeper jobs.
const pendingTTLFactor = 2

// connectionTimeout is the timeout for verifying the Redis connection.
const connectionTimeout = 5 * time.Second

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// ErrEmptyAddress is returned when the Redis address is not configured.
var ErrEmptyAddress = errors.New("redis address is required")

// NewRedisClient creates and pings a Redis client.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}

// RedisStore implements AttributionStore on Redis. LPOP, GETDEL, and LREM
// give the atomic take and remove-if-equal semantics the engine relies on.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a RedisStore around an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// PushPending appends the entry and refreshes the list TTL in one pipeline.
func (s *RedisStore) PushPending(ctx context.Context, workspaceID, provider, entry string, ttl time.Duration) error {
	key := pendingKey(workspaceID, provider)

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, entry)
	pipe.Expire(ctx, key, ttl*pendingTTLFactor)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push pending webhook: %w", err)
	}
	return nil
}

// TakePending atomically pops one entry from the workspace/provider list.
func (s *RedisStore) TakePending(ctx context.Context, workspaceID, provider string) (string, bool, error) {
	entry, err := s.client.LPop(ctx, pendingKey(workspaceID, provider)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("take pending webhook: %w", err)
	}
	return entry, true, nil
}

// RemovePending removes the first element equal to entry. LREM is atomic, so
// exactly one of any set of concurrent removers observes a non-zero count.
func (s *RedisStore) RemovePending(ctx context.Context, workspaceID, provider, entry string) (int64, error) {
	removed, err := s.client.LRem(ctx, pendingKey(workspaceID, provider), 1, entry).Result()
	if err != nil {
		return 0, fmt.Errorf("remove pending webhook: %w", err)
	}
	return removed, nil
}

// PutWaiting stores the marker with its TTL, overwriting any prior marker.
func (s *RedisStore) PutWaiting(ctx context.Context, workspaceID, entry string, ttl time.Duration) error {
	if err := s.client.Set(ctx, waitingKey(workspaceID), entry, ttl).Err(); err != nil {
		return fmt.Errorf("put waiting marker: %w", err)
	}
	return nil
}

// TakeWaiting atomically gets and deletes the workspace's marker.
func (s *RedisStore) TakeWaiting(ctx context.Context, workspaceID string) (string, bool, error) {
	entry, err := s.client.GetDel(ctx, waitingKey(workspaceID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("take waiting marker: %w", err)
	}
	return entry, true, nil
}

// LastClick reads the visitor's most-recent click pointer.
func (s *RedisStore) LastClick(ctx context.Context, workspaceID, visitorID string) (string, bool, error) {
	entry, err := s.client.Get(ctx, clickKey(workspaceID, visitorID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get last click: %w", err)
	}
	return entry, true, nil
}

// SaveLastClick stores the visitor's most-recent click pointer.
func (s *RedisStore) SaveLastClick(ctx context.Context, workspaceID, visitorID, entry string, ttl time.Duration) error {
	if err := s.client.Set(ctx, clickKey(workspaceID, visitorID), entry, ttl).Err(); err != nil {
		return fmt.Errorf("save last click: %w", err)
	}
	return nil
}

// Ping verifies connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
