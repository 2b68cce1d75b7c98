package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "geostorm:artifact:"

// RedisStore implements the Store interface using Redis as a backend.
// It lets several geostorm instances load the same model artifact at startup.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
}

// NewRedisStore creates a new Redis-backed store.
//
// Parameters:
//   - addr: Redis server address (e.g., "localhost:6379")
//   - password: Redis password (empty string for no auth)
//   - db: Redis database number (typically 0)
//   - ttl: Artifact expiration; 0 keeps artifacts until replaced
//
// Returns an error if the connection to Redis fails or if parameters are invalid.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if db < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}
	if ttl < 0 {
		return nil, errors.New("redis ttl must be >= 0")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisStore{
		client: client,
		ttl:    ttl,
	}, nil
}

// Put stores an artifact in Redis under "geostorm:artifact:{name}".
func (r *RedisStore) Put(ctx context.Context, a Artifact) error {
	if err := ValidateName(a.Name); err != nil {
		return err
	}

	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.client == nil {
		return redis.ErrClosed
	}

	if err := r.client.Set(ctx, redisKeyPrefix+a.Name, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store artifact in redis: %w", err)
	}

	return nil
}

// GetLatest retrieves the artifact stored under name.
//
// Returns:
//   - artifact: The artifact (zero value if not found)
//   - found: true if the artifact exists, false if not found
//   - error: non-nil if an error occurred (excluding "not found")
func (r *RedisStore) GetLatest(ctx context.Context, name string) (Artifact, bool, error) {
	if name == "" {
		return Artifact{}, false, errors.New("artifact name required")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.client == nil {
		return Artifact{}, false, redis.ErrClosed
	}

	data, err := r.client.Get(ctx, redisKeyPrefix+name).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Artifact{}, false, nil
		}
		return Artifact{}, false, fmt.Errorf("failed to get artifact from redis: %w", err)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return Artifact{}, false, fmt.Errorf("failed to unmarshal artifact: %w", err)
	}

	return a, true, nil
}

// Close closes the Redis client connection. It is safe to call multiple times.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}

	err := r.client.Close()
	r.client = nil
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}

	return err
}

// Ping checks the Redis connection health.
func (r *RedisStore) Ping(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.client == nil {
		return redis.ErrClosed
	}
	return r.client.Ping(ctx).Err()
}
