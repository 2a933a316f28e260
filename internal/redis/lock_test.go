package redisclient_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/hackgods/homeservice-dispatch/internal/redis"
)

func newLocker(t *testing.T) (redisclient.Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return redisclient.NewRedisLocker(rdb, 5*time.Second), mr
}

func TestWithLock_ExclusiveAndReleased(t *testing.T) {
	l, mr := newLocker(t)
	ctx := context.Background()

	err := l.WithLock(ctx, "appointment:1", func(ctx context.Context) error {
		assert.True(t, mr.Exists("lock:appointment:1"))

		inner := l.WithLock(ctx, "appointment:1", func(context.Context) error {
			t.Fatal("nested holder must not run")
			return nil
		})
		assert.ErrorIs(t, inner, redisclient.ErrLockNotAcquired)

		return l.WithLock(ctx, "appointment:2", func(context.Context) error { return nil })
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("lock:appointment:1"), "released after fn returns")
}

func TestWithLock_ReturnsFnErrorAndReleases(t *testing.T) {
	l, mr := newLocker(t)
	boom := errors.New("boom")

	err := l.WithLock(context.Background(), "k", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("lock:k"))
}

func TestWithLock_DoesNotReleaseForeignToken(t *testing.T) {
	l, mr := newLocker(t)

	err := l.WithLock(context.Background(), "k", func(context.Context) error {
		// the key expired and someone else took it
		mr.Del("lock:k")
		require.NoError(t, mr.Set("lock:k", "other"))
		return nil
	})
	require.NoError(t, err)

	v, err := mr.Get("lock:k")
	require.NoError(t, err)
	assert.Equal(t, "other", v)
}

func TestWithLock_BackendDown(t *testing.T) {
	l, mr := newLocker(t)
	mr.Close()

	ran := false
	err := l.WithLock(context.Background(), "k", func(context.Context) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, redisclient.ErrLockBackend)
	assert.False(t, ran)
}
