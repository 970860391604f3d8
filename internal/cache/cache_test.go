package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Connect(context.Background(), mr.Addr())
	require.NoError(t, err)
	require.NotNil(t, client)
	defer client.Close()

	urlClient, err := Connect(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	require.NotNil(t, urlClient)
	defer urlClient.Close()

	disabled, err := Connect(context.Background(), "  ")
	assert.NoError(t, err)
	assert.Nil(t, disabled)

	_, err = Connect(context.Background(), "redis://%zz")
	assert.Error(t, err)
}

func TestConnect_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	client, err := Connect(context.Background(), addr)
	assert.Error(t, err)
	assert.Nil(t, client)
}

func TestFollowStatusCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := Connect(context.Background(), mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	c := NewFollowStatusCache(client, 30*time.Second)

	_, ok := c.Get(ctx, "me", "author")
	assert.False(t, ok)

	c.Set(ctx, "me", "author", true)
	following, ok := c.Get(ctx, "me", "author")
	assert.True(t, ok)
	assert.True(t, following)
	assert.Equal(t, 30*time.Second, mr.TTL(FollowKey("me", "author")))

	c.Set(ctx, "me", "author", false)
	following, ok = c.Get(ctx, "me", "author")
	assert.True(t, ok)
	assert.False(t, following)

	mr.FastForward(31 * time.Second)
	_, ok = c.Get(ctx, "me", "author")
	assert.False(t, ok, "entries expire")

	c.Set(ctx, "me", "other", true)
	c.Invalidate(ctx, "me", "other")
	_, ok = c.Get(ctx, "me", "other")
	assert.False(t, ok)
}

func TestFollowStatusCache_NilIsDisabled(t *testing.T) {
	var nilCache *FollowStatusCache
	nilCache.Set(context.Background(), "a", "b", true)
	_, ok := nilCache.Get(context.Background(), "a", "b")
	assert.False(t, ok)

	noClient := NewFollowStatusCache(nil, 0)
	noClient.Set(context.Background(), "a", "b", true)
	_, ok = noClient.Get(context.Background(), "a", "b")
	assert.False(t, ok)
	noClient.Invalidate(context.Background(), "a", "b")
}
