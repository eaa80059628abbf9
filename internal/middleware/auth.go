package middleware

import (
	"context"
	"log/slog"
	"strings"

	"egaku/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// TokenHeader carries the session token. "Authorization: Bearer <token>" is accepted too.
const TokenHeader = "token"

// Authenticator resolves a session token to its user, sliding the token's expiry.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (uint, error)
}

// TokenFromRequest returns the presented session token or "".
func TokenFromRequest(c *fiber.Ctx) string {
	if t := strings.TrimSpace(c.Get(TokenHeader)); t != "" {
		return t
	}
	return bearer(c)
}

func bearer(c *fiber.Ctx) string {
	parts := strings.Fields(c.Get(fiber.HeaderAuthorization))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// UserID returns the authenticated user id, or 0 for anonymous requests.
func UserID(c *fiber.Ctx) uint {
	uid, _ := c.Locals("userID").(uint)
	return uid
}

func setUser(c *fiber.Ctx, uid uint, token string) {
	c.Locals("userID", uid)
	c.Locals("token", token)
	c.SetUserContext(WithUserID(c.UserContext(), uid))
}

// AuthRequired rejects requests without a live session token with the NOT_LOGIN envelope.
func AuthRequired(auth Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := TokenFromRequest(c)
		if token == "" {
			return rejectEnvelope(c, fiber.StatusOK, models.CodeNotLogin)
		}

		uid, err := auth.Authenticate(c.UserContext(), token)
		if err != nil {
			code := models.ErrorCode(err)
			if code == models.CodeServerError {
				Logger.ErrorContext(c.UserContext(), "token validation failed", slog.String("error", err.Error()))
			}
			return rejectEnvelope(c, fiber.StatusOK, code)
		}

		setUser(c, uid, token)
		return c.Next()
	}
}

// AuthOptional identifies the caller when a valid token is presented and
// otherwise continues anonymously.
func AuthOptional(auth Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := TokenFromRequest(c)
		if token == "" {
			return c.Next()
		}
		uid, err := auth.Authenticate(c.UserContext(), token)
		if err == nil {
			setUser(c, uid, token)
		}
		return c.Next()
	}
}

// CallbackAuth guards the moderation callback with an HS256 bearer JWT signed with secret.
func CallbackAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := bearer(c)
		if raw == "" || secret == "" {
			return rejectEnvelope(c, fiber.StatusUnauthorized, models.CodeNotLogin)
		}

		token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
			}
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
		if err != nil || !token.Valid {
			Logger.WarnContext(c.UserContext(), "moderation callback rejected", slog.String("ip", c.IP()))
			return rejectEnvelope(c, fiber.StatusUnauthorized, models.CodeNotLogin)
		}
		return c.Next()
	}
}
