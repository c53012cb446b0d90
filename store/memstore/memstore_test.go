package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/fyerfyer/fyer-lock/internal/ferr"
	"github.com/fyerfyer/fyer-lock/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_SetAndExpire(t *testing.T) {
	m := New()
	ctx := context.Background()

	ok, err := m.TrySetWithExpiry(ctx, "k", "a", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.TrySetWithExpiry(ctx, "k", "b", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	m.Advance(31 * time.Second)
	_, found := m.Get("k")
	assert.False(t, found)

	ok, err = m.TrySetWithExpiry(ctx, "k", "b", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemStore_CompareOps(t *testing.T) {
	m := New()
	ctx := context.Background()
	_, _ = m.TrySetWithExpiry(ctx, "k", "token", time.Second)

	ok, err := m.CompareAndRefresh(ctx, "k", "forged", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.CompareAndRefresh(ctx, "k", "token", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ttl, err := m.TTL(ctx, "k")
	require.NoError(t, err)
	assert.InDelta(t, time.Minute, ttl, float64(time.Second))

	ok, err = m.CompareAndDelete(ctx, "k", "forged")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.CompareAndDelete(ctx, "k", "token")
	require.NoError(t, err)
	assert.True(t, ok)

	ttl, err = m.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, store.KeyMissing, ttl)
}

func TestMemStore_PersistAndExpireAt(t *testing.T) {
	m := New()
	ctx := context.Background()
	_, _ = m.TrySetWithExpiry(ctx, "k", "v", time.Second)

	ok, err := m.Persist(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	ttl, _ := m.TTL(ctx, "k")
	assert.Equal(t, store.NoExpiry, ttl)

	ok, err = m.ExpireAt(ctx, "k", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.ExpireAt(ctx, "k", time.Now().Add(-time.Second))
	require.NoError(t, err)
	assert.True(t, ok)
	_, found := m.Get("k")
	assert.False(t, found)
}

func TestMemStore_Offline(t *testing.T) {
	m := New()
	m.SetOffline(true)
	_, err := m.TrySetWithExpiry(context.Background(), "k", "v", time.Second)
	assert.ErrorIs(t, err, ferr.ErrStoreUnavailable)
	assert.Equal(t, int64(1), m.Calls("TrySetWithExpiry"))
}

func TestMemStore_PubSub(t *testing.T) {
	m := New()
	ctx := context.Background()
	got := make(chan string, 1)
	sub, err := m.Subscribe(ctx, "ch", func(msg string) { got <- msg })
	require.NoError(t, err)
	assert.Equal(t, 1, m.Subscribers("ch"))

	require.NoError(t, m.Publish(ctx, "ch", "hi"))
	select {
	case msg := <-got:
		assert.Equal(t, "hi", msg)
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}

	require.NoError(t, sub.Unsubscribe(ctx))
	require.NoError(t, sub.Unsubscribe(ctx))
	assert.Equal(t, 0, m.Subscribers("ch"))
}
