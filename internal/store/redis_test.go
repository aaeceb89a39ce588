package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisFixture(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr
}

func TestRedisStorePendingRoundtrip(t *testing.T) {
	s, _ := newRedisFixture(t)
	ctx := context.Background()

	require.NoError(t, s.PushPending(ctx, "ws_1", "calcom", "entry-a", time.Minute))
	require.NoError(t, s.PushPending(ctx, "ws_1", "calcom", "entry-b", time.Minute))

	entry, ok, err := s.TakePending(ctx, "ws_1", "calcom")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "entry-b", entry)

	removed, err := s.RemovePending(ctx, "ws_1", "calcom", "entry-a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, ok, err = s.TakePending(ctx, "ws_1", "calcom")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreTakePendingEmpty(t *testing.T) {
	s, _ := newRedisFixture(t)

	_, ok, err := s.TakePending(context.Background(), "ws_1", "calcom")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreRemovePendingNoMatch(t *testing.T) {
	s, _ := newRedisFixture(t)
	ctx := context.Background()

	require.NoError(t, s.PushPending(ctx, "ws_1", "calcom", "entry-a", time.Minute))

	removed, err := s.RemovePending(ctx, "ws_1", "calcom", "different-entry")
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestRedisStorePendingTTL(t *testing.T) {
	s, mr := newRedisFixture(t)
	ctx := context.Background()

	require.NoError(t, s.PushPending(ctx, "ws_1", "calcom", "entry", time.Minute))

	// Lists outlive the reconciliation window by the TTL factor so the
	// sweep always finds its entry.
	mr.FastForward(90 * time.Second)
	_, ok, err := s.TakePending(ctx, "ws_1", "calcom")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.PushPending(ctx, "ws_1", "calcom", "entry2", time.Minute))
	mr.FastForward(3 * time.Minute)
	_, ok, err = s.TakePending(ctx, "ws_1", "calcom")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreWaitingGetDel(t *testing.T) {
	s, _ := newRedisFixture(t)
	ctx := context.Background()

	require.NoError(t, s.PutWaiting(ctx, "ws_1", "marker", time.Minute))

	entry, ok, err := s.TakeWaiting(ctx, "ws_1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "marker", entry)

	_, ok, err = s.TakeWaiting(ctx, "ws_1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreWaitingExpires(t *testing.T) {
	s, mr := newRedisFixture(t)
	ctx := context.Background()

	require.NoError(t, s.PutWaiting(ctx, "ws_1", "marker", time.Minute))
	mr.FastForward(2 * time.Minute)

	_, ok, err := s.TakeWaiting(ctx, "ws_1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreLastClick(t *testing.T) {
	s, _ := newRedisFixture(t)
	ctx := context.Background()

	require.NoError(t, s.SaveLastClick(ctx, "ws_1", "vis_1", "click-a", time.Hour))
	require.NoError(t, s.SaveLastClick(ctx, "ws_1", "vis_1", "click-b", time.Hour))

	entry, ok, err := s.LastClick(ctx, "ws_1", "vis_1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "click-b", entry)
}

func TestRedisStorePing(t *testing.T) {
	s, mr := newRedisFixture(t)

	require.NoError(t, s.Ping(context.Background()))

	mr.Close()
	assert.Error(t, s.Ping(context.Background()))
}
