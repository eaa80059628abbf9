package server

import (
	"egaku/internal/middleware"
	"egaku/internal/models"
	"egaku/internal/service"

	"github.com/gofiber/fiber/v2"
)

// UploadFile handles POST /api/uploadFile with a single multipart field "file".
func (s *Server) UploadFile(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return respondError(c, models.NewValidationError("no file uploaded"))
	}

	src, err := file.Open()
	if err != nil {
		return respondError(c, models.NewValidationError("unable to read uploaded file"))
	}
	defer func() { _ = src.Close() }()

	url, err := s.uploadService.Upload(c.UserContext(), service.UploadInput{
		UserID:      middleware.UserID(c),
		Filename:    file.Filename,
		Size:        file.Size,
		ContentType: file.Header.Get(fiber.HeaderContentType),
		Body:        src,
	})
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.Map{"url": url})
}
