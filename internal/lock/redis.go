package lock

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gotrs-io/gotrs-mailpipe/internal/config"
)

// DefaultTTL bounds how long a crashed holder can keep a key.
const DefaultTTL = 10 * time.Minute

// Deletes the key only while it still holds the caller's token.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisLocker coordinates runs across processes with SET NX PX.
type RedisLocker struct {
	client    redisClient
	ttl       time.Duration
	keyPrefix string
	logger    *log.Logger
	newToken  func() string
}

// RedisLockerOption customizes the Redis locker.
type RedisLockerOption func(*RedisLocker)

// WithLockTTL overrides the key expiry.
func WithLockTTL(ttl time.Duration) RedisLockerOption {
	return func(l *RedisLocker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithKeyPrefix overrides the key namespace (default "mailpipe:lock:").
func WithKeyPrefix(prefix string) RedisLockerOption {
	return func(l *RedisLocker) {
		l.keyPrefix = prefix
	}
}

// WithLockLogger overrides the logger used for release failures.
func WithLockLogger(logger *log.Logger) RedisLockerOption {
	return func(l *RedisLocker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func withTokenSource(fn func() string) RedisLockerOption {
	return func(l *RedisLocker) {
		l.newToken = fn
	}
}

// NewRedisLocker creates a locker on an existing client.
func NewRedisLocker(client redisClient, opts ...RedisLockerOption) *RedisLocker {
	l := &RedisLocker{
		client:    client,
		ttl:       DefaultTTL,
		keyPrefix: "mailpipe:lock:",
		logger:    log.Default(),
		newToken:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TryLock implements Locker.
func (l *RedisLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	fullKey := l.keyPrefix + key
	token := l.newToken()
	ok, err := l.client.SetNX(ctx, fullKey, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", fullKey, err)
	}
	if !ok {
		return nil, false, nil
	}
	return func() {
		// The key is freed even when the run context was cancelled.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := l.client.Eval(releaseCtx, releaseScript, []string{fullKey}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) && l.logger != nil {
			l.logger.Printf("release lock %s: %v", fullKey, err)
		}
	}, true, nil
}

// NewRedisClient connects to the configured Redis server and pings it.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.GetRedisAddr(), err)
	}
	return client, nil
}
