package server

import (
	"egaku/internal/middleware"
	"egaku/internal/models"
	"egaku/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetAll is the public feed of approved submissions.
func (s *Server) GetAll(c *fiber.Ctx) error {
	var req pageRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	res, err := s.feedService.All(c.UserContext(), req.PageNum, req.PageSize)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, res)
}

type searchRequest struct {
	Content string `json:"content"`
	pageRequest
}

// Search matches the keyword against approved titles and article text.
func (s *Server) Search(c *fiber.Ctx) error {
	var req searchRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	res, err := s.feedService.Search(c.UserContext(), req.Content, req.PageNum, req.PageSize)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, res)
}

type auditRequest struct {
	Status *models.ReviewStatus `json:"status"`
	pageRequest
}

// GetAudit is the admin review queue.
func (s *Server) GetAudit(c *fiber.Ctx) error {
	var req auditRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	res, err := s.feedService.Audit(c.UserContext(), service.AuditInput{
		UserID:   middleware.UserID(c),
		Status:   req.Status,
		PageNum:  req.PageNum,
		PageSize: req.PageSize,
	})
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, res)
}

type updateStatusRequest struct {
	refRequest
	Status models.ReviewStatus `json:"status"`
	Desc   string              `json:"desc"`
}

// UpdateStatus lets an admin set a submission's review status.
func (s *Server) UpdateStatus(c *fiber.Ctx) error {
	var req updateStatusRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	ref, err := req.ref()
	if err != nil {
		return respondError(c, err)
	}
	err = s.submissionService.UpdateStatus(c.UserContext(), service.UpdateStatusInput{
		UserID: middleware.UserID(c),
		Ref:    ref,
		Status: req.Status,
		Desc:   req.Desc,
	})
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, nil)
}

type moderationCallbackRequest struct {
	refRequest
	Conclusion string   `json:"conclusion"`
	Reasons    []string `json:"reasons"`
}

// ModerationCallback records a verdict pushed by the external censor. It sits behind CallbackAuth.
func (s *Server) ModerationCallback(c *fiber.Ctx) error {
	var req moderationCallbackRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	ref, err := req.ref()
	if err != nil {
		return respondError(c, err)
	}
	if err := s.processor.ApplyCallback(c.UserContext(), ref, req.Conclusion, req.Reasons); err != nil {
		return respondError(c, err)
	}
	return respond(c, nil)
}
