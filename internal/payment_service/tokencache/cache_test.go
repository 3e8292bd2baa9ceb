package tokencache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingAuth struct {
	calls int32
	token string
	err   error
	delay time.Duration
}

func (a *countingAuth) Authenticate(context.Context) (string, error) {
	atomic.AddInt32(&a.calls, 1)
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	return a.token, a.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGetToken_CachesAfterFirstAuthenticate(t *testing.T) {
	cache := New(NewMemoryStore(), time.Hour, testLogger())
	auth := &countingAuth{token: "T1"}

	for i := 0; i < 3; i++ {
		tok, err := cache.GetToken(context.Background(), "mtn", "", auth)
		require.NoError(t, err)
		assert.Equal(t, "T1", tok)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&auth.calls))
}

func TestGetToken_AuthenticateErrorNotCached(t *testing.T) {
	store := NewMemoryStore()
	cache := New(store, time.Hour, testLogger())
	auth := &countingAuth{err: errors.New("401")}

	_, err := cache.GetToken(context.Background(), "airtel", DefaultKey, auth)
	assert.Error(t, err)

	_, found, _ := store.Get(context.Background(), "mobile_wallet_airtel_token_default")
	assert.False(t, found)
}

func TestGetToken_ExpiredTokenRefreshes(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	cache := New(store, time.Minute, testLogger())
	auth := &countingAuth{token: "T1"}

	_, err := cache.GetToken(context.Background(), "mtn", "", auth)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = cache.GetToken(context.Background(), "mtn", "", auth)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&auth.calls))
}

func TestGetToken_ConcurrentMissesShareOneAuthenticate(t *testing.T) {
	cache := New(NewMemoryStore(), time.Hour, testLogger())
	auth := &countingAuth{token: "T1", delay: 50 * time.Millisecond}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := cache.GetToken(context.Background(), "zamtel", "", auth)
			assert.NoError(t, err)
			assert.Equal(t, "T1", tok)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&auth.calls))
}

func TestForgetAndClear(t *testing.T) {
	cache := New(NewMemoryStore(), time.Hour, testLogger())
	auth := &countingAuth{token: "T1"}
	ctx := context.Background()

	_, _ = cache.GetToken(ctx, "mtn", "", auth)
	_, _ = cache.GetToken(ctx, "mtn", "collection", auth)
	_, _ = cache.GetToken(ctx, "airtel", "", auth)
	require.Equal(t, int32(3), atomic.LoadInt32(&auth.calls))

	require.NoError(t, cache.Forget(ctx, "mtn", ""))
	_, _ = cache.GetToken(ctx, "mtn", "", auth)
	assert.Equal(t, int32(4), atomic.LoadInt32(&auth.calls))

	require.NoError(t, cache.Clear(ctx, "mtn"))
	_, _ = cache.GetToken(ctx, "mtn", "", auth)
	_, _ = cache.GetToken(ctx, "mtn", "collection", auth)
	_, _ = cache.GetToken(ctx, "airtel", "", auth)
	assert.Equal(t, int32(6), atomic.LoadInt32(&auth.calls), "airtel token survives mtn clear")
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cache := New(NewRedisStore(client), 30*time.Minute, testLogger())
	auth := &countingAuth{token: "redis-token"}
	ctx := context.Background()

	tok, err := cache.GetToken(ctx, "mtn", "", auth)
	require.NoError(t, err)
	assert.Equal(t, "redis-token", tok)

	stored, err := mr.Get("mobile_wallet_mtn_token_default")
	require.NoError(t, err)
	assert.Equal(t, "redis-token", stored)
	assert.Equal(t, 30*time.Minute, mr.TTL("mobile_wallet_mtn_token_default"))

	_, _ = cache.GetToken(ctx, "mtn", "", auth)
	assert.Equal(t, int32(1), atomic.LoadInt32(&auth.calls))

	mr.FastForward(31 * time.Minute)
	_, _ = cache.GetToken(ctx, "mtn", "", auth)
	assert.Equal(t, int32(2), atomic.LoadInt32(&auth.calls))

	require.NoError(t, mr.Set("mobile_wallet_mtn_token_other", "x"))
	require.NoError(t, cache.Clear(ctx, "mtn"))
	assert.False(t, mr.Exists("mobile_wallet_mtn_token_default"))
	assert.False(t, mr.Exists("mobile_wallet_mtn_token_other"))
}

func TestRedisStore_UnavailableFallsBackToAuthenticate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	cache := New(NewRedisStore(client), time.Hour, testLogger())
	auth := &countingAuth{token: "T1"}

	tok, err := cache.GetToken(context.Background(), "mtn", "", auth)
	require.NoError(t, err)
	assert.Equal(t, "T1", tok)
}
