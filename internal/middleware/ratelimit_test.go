package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestLimitAllow_Bypass(t *testing.T) {
	for _, env := range []string{"", "test", "development", "stress"} {
		t.Run("env="+env, func(t *testing.T) {
			t.Setenv("APP_ENV", env)
			d, err := Limit{Name: "res", Max: 1, Window: time.Minute}.Allow(context.Background(), nil, "1")
			require.NoError(t, err)
			assert.True(t, d.Allowed)
		})
	}

	t.Run("nil redis in production", func(t *testing.T) {
		t.Setenv("APP_ENV", "production")
		_, err := Limit{Name: "res", Max: 1, Window: time.Minute}.Allow(context.Background(), nil, "1")
		assert.ErrorIs(t, err, errNoRedis)
	})
}

func TestLimitAllow_CountsWithinWindow(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	mr, rdb := newRedis(t)
	ctx := context.Background()
	l := Limit{Name: "send_code", Max: 2, Window: time.Minute}

	d, err := l.Allow(ctx, rdb, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
	assert.Equal(t, time.Minute, d.Reset)

	d, err = l.Allow(ctx, rdb, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Zero(t, d.Remaining)

	d, err = l.Allow(ctx, rdb, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.True(t, mr.TTL(limitKey("send_code", "ip:1.2.3.4")) > 0)

	// Other callers have their own window.
	d, err = l.Allow(ctx, rdb, "ip:5.6.7.8")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	mr.FastForward(2 * time.Minute)
	d, err = l.Allow(ctx, rdb, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestLimitHandler(t *testing.T) {
	ok := func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) }

	t.Run("bypass in test mode", func(t *testing.T) {
		t.Setenv("APP_ENV", "test")
		app := fiber.New()
		app.Post("/test", Limit{Name: "t", Max: 1, Window: time.Minute}.Handler(nil), ok)

		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/test", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("fail open with nil redis in production", func(t *testing.T) {
		t.Setenv("APP_ENV", "production")
		app := fiber.New()
		app.Post("/test", Limit{Name: "t", Max: 1, Window: time.Minute}.Handler(nil), ok)

		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/test", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("fail closed with nil redis in production", func(t *testing.T) {
		t.Setenv("APP_ENV", "production")
		app := fiber.New()
		l := Limit{Name: "sensitive", Max: 1, Window: time.Minute, Policy: FailClosed}
		app.Post("/sensitive", l.Handler(nil), ok)

		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/sensitive", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		var body struct {
			Success bool              `json:"success"`
			Data    map[string]string `json:"data"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.False(t, body.Success)
		assert.Equal(t, "SERVICE_UNAVAILABLE", body.Data["error"])
		_ = resp.Body.Close()
	})

	t.Run("limit exceeded returns envelope and headers", func(t *testing.T) {
		t.Setenv("APP_ENV", "production")
		_, rdb := newRedis(t)
		app := fiber.New()
		app.Post("/login", Limit{Name: "login", Max: 1, Window: time.Minute}.Handler(rdb), ok)

		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/login", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "1", resp.Header.Get("X-RateLimit-Limit"))
		assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))
		_ = resp.Body.Close()

		resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/login", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		assert.Equal(t, "60", resp.Header.Get("Retry-After"))
		_ = resp.Body.Close()
	})
}
