package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerExclusive(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	unlock, ok, err := l.TryLock(ctx, "support@mail:993/inbox")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, "support@mail:993/inbox")
	require.NoError(t, err)
	require.False(t, ok)

	other, ok, err := l.TryLock(ctx, "billing@mail:993/inbox")
	require.NoError(t, err)
	require.True(t, ok)
	other()

	unlock()
	unlock()
	again, ok, err := l.TryLock(ctx, "support@mail:993/inbox")
	require.NoError(t, err)
	require.True(t, ok)
	again()
}

func TestLocalLockerConcurrent(t *testing.T) {
	l := NewLocalLocker()
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, _ := l.TryLock(context.Background(), "key"); ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, winners)
}

func TestLocalLockerCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok, err := NewLocalLocker().TryLock(ctx, "key")
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, ok)
}

func TestRedisLockerAcquireAndRelease(t *testing.T) {
	client := newFakeRedis()
	tokens := []string{"token-a", "token-b"}
	l := NewRedisLocker(client, WithLockTTL(time.Minute), withTokenSource(func() string {
		tok := tokens[0]
		tokens = tokens[1:]
		return tok
	}))

	unlock, ok, err := l.TryLock(context.Background(), "mailbox")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "token-a", client.values["mailpipe:lock:mailbox"])
	require.Equal(t, time.Minute, client.ttls["mailpipe:lock:mailbox"])

	_, ok, err = l.TryLock(context.Background(), "mailbox")
	require.NoError(t, err)
	require.False(t, ok)

	unlock()
	require.NotContains(t, client.values, "mailpipe:lock:mailbox")
}

func TestRedisLockerReleaseRequiresMatchingToken(t *testing.T) {
	client := newFakeRedis()
	l := NewRedisLocker(client, WithKeyPrefix("test:"), withTokenSource(func() string { return "mine" }))

	unlock, ok, err := l.TryLock(context.Background(), "mailbox")
	require.NoError(t, err)
	require.True(t, ok)

	// The key expired and another process took it over.
	client.values["test:mailbox"] = "theirs"
	unlock()
	require.Equal(t, "theirs", client.values["test:mailbox"])
}

func TestRedisLockerErrors(t *testing.T) {
	client := newFakeRedis()
	client.setErr = errors.New("connection refused")
	l := NewRedisLocker(client)

	unlock, ok, err := l.TryLock(context.Background(), "mailbox")
	require.ErrorContains(t, err, "acquire lock mailpipe:lock:mailbox")
	require.False(t, ok)
	require.Nil(t, unlock)
}

type fakeRedis struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
	setErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return redis.NewBoolResult(false, f.setErr)
	}
	if _, exists := f.values[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = value.(string)
	f.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Eval(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values[keys[0]] == args[0].(string) {
		delete(f.values, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}
