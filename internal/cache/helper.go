package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"egaku/internal/middleware"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

var group singleflight.Group

func load[T any](ctx context.Context, key string) (T, bool) {
	var v T
	if client == nil {
		return v, false
	}
	b, err := client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			middleware.Logger.WarnContext(ctx, "cache read failed", slog.String("key", key), slog.String("error", err.Error()))
		}
		return v, false
	}
	if err := json.Unmarshal(b, &v); err != nil {
		// A value written by an older build; drop it and refetch.
		Invalidate(ctx, key)
		return v, false
	}
	return v, true
}

func store(ctx context.Context, key string, v any, ttl time.Duration) {
	if client == nil {
		return
	}
	b, err := json.Marshal(v)
	if err == nil {
		err = client.Set(ctx, key, b, ttl).Err()
	}
	if err != nil {
		middleware.Logger.WarnContext(ctx, "cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

// Aside returns the value cached under key, or calls fetch and caches its result
// for ttl. Concurrent misses on one key share a single fetch. Fetch errors are not
// cached, and Redis failures degrade to calling fetch.
func Aside[T any](ctx context.Context, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	if v, ok := load[T](ctx, key); ok {
		return v, nil
	}
	res, err, _ := group.Do(key, func() (any, error) {
		v, err := fetch(ctx)
		if err != nil {
			return v, err
		}
		store(ctx, key, v, ttl)
		return v, nil
	})
	v, _ := res.(T)
	return v, err
}

// Invalidate deletes key. It is a no-op without a client.
func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
	group.Forget(key)
}

// InvalidateUser drops the cached profile row for userID.
func InvalidateUser(ctx context.Context, userID uint) {
	Invalidate(ctx, UserKey(userID))
}
