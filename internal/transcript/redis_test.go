//nolint:testpackage // exercising key layout directly
package transcript

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, time.Hour), mr
}

func TestRedisStore_AppendAndWindow(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "call-1", Segment{Text: "Hello there", Speaker: "rep", IsFinal: true}))
	require.NoError(t, store.Append(ctx, "call-1", Segment{Text: "Do you", IsFinal: false}))
	require.NoError(t, store.Append(ctx, "call-1", Segment{Text: "Do you support SSO?", Speaker: "prospect", IsFinal: true}))

	w, err := store.Window(ctx, "call-1")
	require.NoError(t, err)
	require.Len(t, w.Segments, 3)
	assert.Equal(t, "call-1", w.CallID)
	assert.Equal(t, "Hello there", w.Segments[0].Text)
	assert.False(t, w.Segments[1].IsFinal)
	assert.Contains(t, w.Text(), "[1] prospect: Do you support SSO?")
}

func TestRedisStore_WindowIsolationPerCall(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "call-1", Segment{Text: "a", IsFinal: true}))
	require.NoError(t, store.Append(ctx, "call-2", Segment{Text: "b", IsFinal: true}))

	w, err := store.Window(ctx, "call-1")
	require.NoError(t, err)
	require.Len(t, w.Segments, 1)
	assert.Equal(t, "a", w.Segments[0].Text)
}

func TestRedisStore_Clear(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "call-1", Segment{Text: "a", IsFinal: true}))
	require.NoError(t, store.Clear(ctx, "call-1"))

	w, err := store.Window(ctx, "call-1")
	require.NoError(t, err)
	assert.Empty(t, w.Segments)
	assert.True(t, w.Empty())
}

func TestRedisStore_WindowExpires(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "call-1", Segment{Text: "a", IsFinal: true}))
	mr.FastForward(2 * time.Hour)

	w, err := store.Window(ctx, "call-1")
	require.NoError(t, err)
	assert.True(t, w.Empty())
}
