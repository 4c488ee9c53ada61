package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newIndex(t *testing.T, ttl time.Duration) (*SessionIndexRepository, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewSessionIndexRepository(client, "auth:sessions:", ttl, zap.NewNop()), mr
}

func TestSessionIndexAddAndList(t *testing.T) {
	ctx := context.Background()
	idx, _ := newIndex(t, time.Minute)

	require.NoError(t, idx.Add(ctx, "u1", "d1", "token-1"))
	require.NoError(t, idx.Add(ctx, "u1", "d2", "token-2"))

	devices, err := idx.List(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"d1": "token-1", "d2": "token-2"}, devices)
}

func TestSessionIndexOverwriteDevice(t *testing.T) {
	ctx := context.Background()
	idx, _ := newIndex(t, time.Minute)

	require.NoError(t, idx.Add(ctx, "u1", "d1", "old"))
	require.NoError(t, idx.Add(ctx, "u1", "d1", "new"))

	devices, err := idx.List(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"d1": "new"}, devices)
}

func TestSessionIndexTTLResetOnWrite(t *testing.T) {
	ctx := context.Background()
	idx, mr := newIndex(t, time.Minute)

	require.NoError(t, idx.Add(ctx, "u1", "d1", "token-1"))
	mr.FastForward(40 * time.Second)
	require.NoError(t, idx.Add(ctx, "u1", "d2", "token-2"))
	mr.FastForward(40 * time.Second)

	// The second write reset the TTL, so the entry is still live.
	devices, err := idx.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, devices, 2)

	mr.FastForward(time.Minute)
	devices, err = idx.List(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestSessionIndexRemoveDeviceIdempotent(t *testing.T) {
	ctx := context.Background()
	idx, _ := newIndex(t, time.Minute)

	require.NoError(t, idx.Add(ctx, "u1", "d1", "token-1"))
	require.NoError(t, idx.Add(ctx, "u1", "d2", "token-2"))

	require.NoError(t, idx.RemoveDevice(ctx, "u1", "d1"))
	require.NoError(t, idx.RemoveDevice(ctx, "u1", "d1"))
	require.NoError(t, idx.RemoveDevice(ctx, "u1", "never-there"))

	devices, err := idx.List(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"d2": "token-2"}, devices)
}

func TestSessionIndexRemoveLastDeviceDeletesKey(t *testing.T) {
	ctx := context.Background()
	idx, mr := newIndex(t, time.Minute)

	require.NoError(t, idx.Add(ctx, "u1", "d1", "token-1"))
	require.NoError(t, idx.RemoveDevice(ctx, "u1", "d1"))

	assert.False(t, mr.Exists("auth:sessions:u1"))
}

func TestSessionIndexRemoveAll(t *testing.T) {
	ctx := context.Background()
	idx, mr := newIndex(t, time.Minute)

	require.NoError(t, idx.Add(ctx, "u1", "d1", "token-1"))
	require.NoError(t, idx.Add(ctx, "u1", "d2", "token-2"))
	require.NoError(t, idx.RemoveAll(ctx, "u1"))

	assert.False(t, mr.Exists("auth:sessions:u1"))

	ok, err := idx.HasToken(ctx, "u1", "token-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionIndexHasToken(t *testing.T) {
	ctx := context.Background()
	idx, _ := newIndex(t, time.Minute)

	require.NoError(t, idx.Add(ctx, "u1", "d1", "token-1"))

	ok, err := idx.HasToken(ctx, "u1", "token-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = idx.HasToken(ctx, "u1", "token-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionIndexConcurrentAddsKeepAllDevices(t *testing.T) {
	ctx := context.Background()
	idx, _ := newIndex(t, time.Minute)

	const devices = 8
	var wg sync.WaitGroup
	for n := 0; n < devices; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			deviceID := string(rune('a' + n))
			assert.NoError(t, idx.Add(ctx, "u1", deviceID, "token-"+deviceID))
		}(n)
	}
	wg.Wait()

	got, err := idx.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, got, devices)
}
