package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis checkpoint backend.
type RedisConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address string

	// Password for Redis authentication (optional)
	Password string

	// Database number to use (default: 0)
	Database int

	// Prefix is prepended to all checkpoint keys
	Prefix string

	// TTL is the time-to-live for checkpoint keys (0 = no expiration)
	TTL time.Duration

	// Timeout for Redis operations
	Timeout time.Duration

	// PoolSize is the maximum number of connections
	PoolSize int

	// MinIdleConns is the minimum number of idle connections
	MinIdleConns int
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address:      address,
		Prefix:       "erpflow:checkpoints:",
		TTL:          72 * time.Hour,
		Timeout:      5 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// RedisBackend stores checkpoints in Redis for low-latency access. Records
// for one extractor live in a hash so the key scan during resume is a single
// HKEYS call.
type RedisBackend struct {
	cfg    RedisConfig
	client *redis.Client
}

// NewRedisBackend creates a new Redis checkpoint backend and verifies the
// connection.
func NewRedisBackend(cfg RedisConfig) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisBackend{cfg: cfg, client: client}, nil
}

func (b *RedisBackend) hashKey(extractorID string) string {
	return b.cfg.Prefix + sanitizeKey(extractorID)
}

func (b *RedisBackend) completeKey(extractorID string) string {
	return b.hashKey(extractorID) + ":complete"
}

// Put saves one record into the extractor's hash.
func (b *RedisBackend) Put(ctx context.Context, rec *Record) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint record: %w", err)
	}

	pipe := b.client.Pipeline()
	pipe.HSet(ctx, b.hashKey(rec.ExtractorID), rec.Key, data)
	if b.cfg.TTL > 0 {
		pipe.Expire(ctx, b.hashKey(rec.ExtractorID), b.cfg.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save checkpoint to Redis: %w", err)
	}
	return nil
}

// Get retrieves one record.
func (b *RedisBackend) Get(ctx context.Context, extractorID, key string) (*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	data, err := b.client.HGet(ctx, b.hashKey(extractorID), key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("failed to load checkpoint from Redis: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint record: %w", err)
	}
	return &rec, nil
}

// Keys lists the extractor's checkpointed keys.
func (b *RedisBackend) Keys(ctx context.Context, extractorID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	keys, err := b.client.HKeys(ctx, b.hashKey(extractorID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoint keys: %w", err)
	}
	return keys, nil
}

// MarkComplete sets the completion flag.
func (b *RedisBackend) MarkComplete(ctx context.Context, extractorID string) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()
	return b.client.Set(ctx, b.completeKey(extractorID), time.Now().UTC().Format(time.RFC3339), b.cfg.TTL).Err()
}

// IsComplete checks the completion flag.
func (b *RedisBackend) IsComplete(ctx context.Context, extractorID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	n, err := b.client.Exists(ctx, b.completeKey(extractorID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Clear removes the extractor's hash and completion flag.
func (b *RedisBackend) Clear(ctx context.Context, extractorID string) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()
	return b.client.Del(ctx, b.hashKey(extractorID), b.completeKey(extractorID)).Err()
}

// Name returns "redis".
func (b *RedisBackend) Name() string {
	return "redis"
}

// Close closes the Redis connection.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}

// Ping checks the Redis connection.
func (b *RedisBackend) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()
	return b.client.Ping(ctx).Err()
}

// --- Distributed Locking for Multi-Worker Extraction ---

// Lock represents a distributed lock on one extractor's checkpoint set.
type Lock struct {
	backend *RedisBackend
	key     string
	value   string
	ttl     time.Duration
}

// AcquireLock attempts to acquire a distributed lock for an extractor, so
// two workers never extract the same source concurrently.
func (b *RedisBackend) AcquireLock(ctx context.Context, extractorID string, ttl time.Duration) (*Lock, error) {
	lockKey := b.cfg.Prefix + "lock:" + sanitizeKey(extractorID)
	lockValue := fmt.Sprintf("%d", time.Now().UnixNano())

	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	ok, err := b.client.SetNX(ctx, lockKey, lockValue, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("lock already held")
	}

	return &Lock{backend: b, key: lockKey, value: lockValue, ttl: ttl}, nil
}

// Release releases the distributed lock.
func (l *Lock) Release(ctx context.Context) error {
	// Lua script ensures we only release our own lock.
	script := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)

	_, err := script.Run(ctx, l.backend.client, []string{l.key}, l.value).Result()
	return err
}

// Extend extends the lock TTL.
func (l *Lock) Extend(ctx context.Context) error {
	script := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)

	result, err := script.Run(ctx, l.backend.client, []string{l.key}, l.value, l.ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if result == 0 {
		return fmt.Errorf("lock no longer held")
	}
	return nil
}
