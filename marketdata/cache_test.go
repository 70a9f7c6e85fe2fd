package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx := context.Background()
	c := NewRedisCache(rdb, zerolog.Nop())

	_, ok := c.Get(ctx, "quote?symbol=AAPL")
	assert.False(t, ok)

	c.Set(ctx, "quote?symbol=AAPL", []byte(`{"symbol":"AAPL"}`), time.Minute)
	assert.True(t, mr.Exists("marketdata:quote?symbol=AAPL"))

	body, ok := c.Get(ctx, "quote?symbol=AAPL")
	require.True(t, ok)
	assert.JSONEq(t, `{"symbol":"AAPL"}`, string(body))

	mr.FastForward(2 * time.Minute)
	_, ok = c.Get(ctx, "quote?symbol=AAPL")
	assert.False(t, ok)
}

func TestRedisCacheIgnoresGarbage(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	require.NoError(t, mr.Set("marketdata:bad", "\xc1"))

	_, ok := NewRedisCache(rdb, zerolog.Nop()).Get(context.Background(), "bad")
	assert.False(t, ok)
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute)

	c.Set(ctx, "k", []byte("v"), time.Hour)
	body, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "v", string(body))

	c.Set(ctx, "short", []byte("v"), time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	_, ok = c.Get(ctx, "short")
	assert.False(t, ok)
}
