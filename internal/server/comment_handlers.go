package server

import (
	"egaku/internal/middleware"
	"egaku/internal/models"
	"egaku/internal/service"

	"github.com/gofiber/fiber/v2"
)

type sendCommentRequest struct {
	refRequest
	Content string `json:"content"`
}

// SendComment handles POST /api/comment/send
func (s *Server) SendComment(c *fiber.Ctx) error {
	var req sendCommentRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	ref, err := req.ref()
	if err != nil {
		return respondError(c, err)
	}
	comment, err := s.commentService.Send(c.UserContext(), service.SendCommentInput{
		UserID:  middleware.UserID(c),
		Ref:     ref,
		Content: req.Content,
	})
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.Map{"id": models.StringID(comment.ID)})
}

type listCommentsRequest struct {
	refRequest
	pageRequest
}

// GetComments handles POST /api/comment/get
func (s *Server) GetComments(c *fiber.Ctx) error {
	var req listCommentsRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	ref, err := req.ref()
	if err != nil {
		return respondError(c, err)
	}
	res, err := s.commentService.List(c.UserContext(), service.ListCommentsInput{
		ViewerID: middleware.UserID(c),
		Ref:      ref,
		PageNum:  req.PageNum,
		PageSize: req.PageSize,
	})
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, res)
}

// DeleteComment handles POST /api/comment/delete
func (s *Server) DeleteComment(c *fiber.Ctx) error {
	var req idRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	if req.ID == 0 {
		return respondError(c, models.NewValidationError("id is required"))
	}
	err := s.commentService.Delete(c.UserContext(), service.DeleteCommentInput{
		UserID:    middleware.UserID(c),
		CommentID: uint(req.ID),
	})
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, nil)
}
