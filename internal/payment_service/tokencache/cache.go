// Package tokencache keeps provider access tokens between calls.
package tokencache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultKey = "default"
	DefaultTTL = time.Hour
	keyPrefix  = "mobile_wallet_"
)

// Store is the backing key/value store. Get reports found=false on a miss.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// Authenticator fetches a fresh token from a provider.
type Authenticator interface {
	Authenticate(ctx context.Context) (string, error)
}

type Cache struct {
	store  Store
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

func New(store Store, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: store, ttl: ttl, logger: logger.With("component", "token_cache")}
}

func cacheKey(provider, key string) string {
	if key == "" {
		key = DefaultKey
	}
	return fmt.Sprintf("%s%s_token_%s", keyPrefix, provider, key)
}

// GetToken returns the cached token for (provider, key) or authenticates and
// caches the result. Concurrent misses for the same key share one
// Authenticate call. A failing store read is treated as a miss.
func (c *Cache) GetToken(ctx context.Context, provider, key string, auth Authenticator) (string, error) {
	k := cacheKey(provider, key)

	token, found, err := c.store.Get(ctx, k)
	if err != nil {
		c.logger.WarnContext(ctx, "Token store read failed; re-authenticating", "provider", provider, "error", err)
	} else if found {
		return token, nil
	}

	v, err, _ := c.group.Do(k, func() (interface{}, error) {
		if token, found, err := c.store.Get(ctx, k); err == nil && found {
			return token, nil
		}
		token, err := auth.Authenticate(ctx)
		if err != nil {
			return "", err
		}
		if err := c.store.Set(ctx, k, token, c.ttl); err != nil {
			c.logger.WarnContext(ctx, "Token store write failed", "provider", provider, "error", err)
		}
		c.logger.DebugContext(ctx, "Cached provider token", "provider", provider, "ttl", c.ttl.String())
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Forget evicts a single token, e.g. after the provider rejected it.
func (c *Cache) Forget(ctx context.Context, provider, key string) error {
	return c.store.Delete(ctx, cacheKey(provider, key))
}

// Clear evicts every token cached for provider.
func (c *Cache) Clear(ctx context.Context, provider string) error {
	return c.store.DeletePrefix(ctx, fmt.Sprintf("%s%s_token_", keyPrefix, provider))
}
