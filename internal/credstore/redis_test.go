package credstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wefram/sysui/internal/log"
)

func newRedisBackend(t *testing.T, ttl time.Duration) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	backend, err := NewRedisBackend(context.Background(), "redis://"+mr.Addr(), "sysui:", ttl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return backend, mr
}

func TestRedisBackend_Contract(t *testing.T) {
	backend, _ := newRedisBackend(t, 0)
	runBackendContract(t, backend)
}

func TestRedisBackend_PrefixAndTTL(t *testing.T) {
	backend, mr := newRedisBackend(t, time.Hour)
	store := New(backend, WithLogger(log.Discard()))
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testSession()))
	assert.True(t, mr.Exists("sysui:"+DefaultKey))
	assert.Equal(t, time.Hour, mr.TTL("sysui:"+DefaultKey))

	mr.FastForward(2 * time.Hour)
	assert.Nil(t, store.Get(ctx))
}

func TestRedisBackend_SelfHeals(t *testing.T) {
	backend, mr := newRedisBackend(t, 0)
	store := New(backend, WithLogger(log.Discard()))

	require.NoError(t, mr.Set("sysui:"+DefaultKey, "garbage"))
	assert.Nil(t, store.Get(context.Background()))
	assert.False(t, mr.Exists("sysui:"+DefaultKey))
}

func TestNewRedisBackend_BadURL(t *testing.T) {
	_, err := NewRedisBackend(context.Background(), "not-a-url", "", 0)
	require.Error(t, err)
}
