package server

import (
	"context"
	"log/slog"
	"strings"

	"egaku/internal/middleware"
	"egaku/internal/models"

	"github.com/gofiber/fiber/v2"
)

// envelope is the body of every API response. Failures carry the code in data.error.
type envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// respond writes a success envelope. A nil payload becomes an empty object.
func respond(c *fiber.Ctx, data any) error {
	if data == nil {
		data = fiber.Map{}
	}
	return c.JSON(envelope{Success: true, Data: data})
}

// respondError maps err to its envelope code. Internal errors are logged and
// reach the client only as SERVER_ERROR.
func respondError(c *fiber.Ctx, err error) error {
	code := models.ErrorCode(err)
	if code == models.CodeServerError {
		middleware.Logger.ErrorContext(c.UserContext(), "request error",
			slog.String("path", c.Path()),
			slog.String("error", err.Error()),
		)
	}
	c.Locals("errorCode", code)
	return c.JSON(envelope{Success: false, Data: fiber.Map{"error": code}})
}

// bind decodes the JSON body into v. An empty body leaves v zeroed.
func bind(c *fiber.Ctx, v any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if !strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), fiber.MIMEApplicationJSON) {
		c.Request().Header.SetContentType(fiber.MIMEApplicationJSON)
	}
	if err := c.BodyParser(v); err != nil {
		return models.NewValidationError("malformed request body")
	}
	return nil
}

// pageRequest is embedded by every paginated request.
type pageRequest struct {
	PageNum  int `json:"pageNum"`
	PageSize int `json:"pageSize"`
}

type idRequest struct {
	ID models.StringID `json:"id"`
}

// refRequest addresses a submission of either kind.
type refRequest struct {
	ID   models.StringID       `json:"id"`
	Type models.SubmissionKind `json:"type"`
}

func (r refRequest) ref() (models.SubmissionRef, error) {
	if !r.Type.Valid() {
		return models.SubmissionRef{}, models.NewValidationError("unknown submission type")
	}
	if r.ID == 0 {
		return models.SubmissionRef{}, models.NewValidationError("id is required")
	}
	return models.SubmissionRef{Kind: r.Type, ID: uint(r.ID)}, nil
}

func (s *Server) isAdminByUserID(ctx context.Context, userID uint) (bool, error) {
	return s.userService.IsAdmin(ctx, userID)
}
