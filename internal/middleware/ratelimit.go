package middleware

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"time"

	"egaku/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// FailPolicy decides what happens to a request when Redis cannot be reached.
type FailPolicy int

const (
	FailOpen FailPolicy = iota
	// FailClosed answers SERVICE_UNAVAILABLE with HTTP 503.
	FailClosed
)

var errNoRedis = errors.New("rate limit store unavailable")

// Limit is a fixed-window quota of Max requests per Window, counted per caller
// under Name.
type Limit struct {
	Name   string
	Max    int
	Window time.Duration
	Policy FailPolicy
}

// Decision is the outcome of counting one request against a Limit.
type Decision struct {
	Allowed   bool
	Remaining int
	// Reset is how long until the current window ends.
	Reset time.Duration
}

// limitingDisabled is true for APP_ENV test, development (or unset) and stress.
func limitingDisabled() bool {
	switch os.Getenv("APP_ENV") {
	case "", "test", "development", "stress":
		return true
	}
	return false
}

func limitKey(name, subject string) string {
	return "rl:" + name + ":" + subject
}

// Allow counts one request by subject against l.
func (l Limit) Allow(ctx context.Context, rdb *redis.Client, subject string) (Decision, error) {
	if limitingDisabled() {
		return Decision{Allowed: true, Remaining: l.Max}, nil
	}
	if rdb == nil {
		return Decision{}, errNoRedis
	}

	key := limitKey(l.Name, subject)
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	if _, err := rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		ttl = p.PTTL(ctx, key)
		return nil
	}); err != nil {
		return Decision{}, err
	}

	reset := ttl.Val()
	if reset <= 0 {
		// First hit in the window, or a key that lost its expiry.
		if err := rdb.PExpire(ctx, key, l.Window).Err(); err != nil {
			return Decision{}, err
		}
		reset = l.Window
	}

	count := int(incr.Val())
	return Decision{
		Allowed:   count <= l.Max,
		Remaining: max(l.Max-count, 0),
		Reset:     reset,
	}, nil
}

// Handler enforces l in front of a route. Authenticated callers are counted by
// user id, everyone else by remote IP.
func (l Limit) Handler(rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		subject := "ip:" + c.IP()
		if uid, ok := c.Locals("userID").(uint); ok && uid != 0 {
			subject = "user:" + strconv.FormatUint(uint64(uid), 10)
		}

		d, err := l.Allow(c.UserContext(), rdb, subject)
		if err != nil {
			if l.Policy == FailClosed {
				Logger.WarnContext(c.UserContext(), "rate limit store failed, rejecting",
					slog.String("limit", l.Name),
					slog.String("error", err.Error()),
				)
				return rejectEnvelope(c, fiber.StatusServiceUnavailable, models.CodeUnavailable)
			}
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(l.Max))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(d.Reset.Round(time.Second)/time.Second)))
			return rejectEnvelope(c, fiber.StatusTooManyRequests, models.CodeTooManyRequests)
		}
		return c.Next()
	}
}

func rejectEnvelope(c *fiber.Ctx, status int, code string) error {
	c.Locals("errorCode", code)
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"data":    fiber.Map{"error": code},
	})
}
