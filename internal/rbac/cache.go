package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "rbac:version"

// Cache memoises resolution results in Redis under a global version. A nil
// *Cache passes every call straight to the loader.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if client == nil {
		return nil
	}
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(userID int64, kind string) string {
	return "rbac:user:" + strconv.FormatInt(userID, 10) + ":" + kind
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, cacheVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Fetch fills dest from the cache or, on a miss, from loader. Redis failures
// fall back to the loader so the cache never decides an authorization.
func (c *Cache) Fetch(ctx context.Context, key string, dest *[]string, loader func(context.Context) ([]string, error)) error {
	if c == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		*dest = value
		return nil
	}

	ver, err := c.Version(ctx)
	if err != nil {
		return c.load(ctx, "", dest, loader)
	}
	versioned := fmt.Sprintf("%s:%d", key, ver)

	payload, err := c.client.Get(ctx, versioned).Bytes()
	if err == nil {
		if jerr := json.Unmarshal(payload, dest); jerr == nil {
			return nil
		}
	}
	return c.load(ctx, versioned, dest, loader)
}

func (c *Cache) load(ctx context.Context, key string, dest *[]string, loader func(context.Context) ([]string, error)) error {
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	if value == nil {
		value = []string{}
	}
	*dest = value
	if key == "" {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	_ = c.client.Set(ctx, key, raw, c.ttl).Err()
	return nil
}

// Bump invalidates every cached entry by moving to a new version.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}
