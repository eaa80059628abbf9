package server

import (
	"strings"

	"egaku/internal/middleware"
	"egaku/internal/models"
	"egaku/internal/service"

	"github.com/gofiber/fiber/v2"
)

// submissionRequest covers both kinds; article routes read content/plainText, video routes cover/video.
type submissionRequest struct {
	ID        models.StringID `json:"id"`
	Title     string          `json:"title"`
	Content   string          `json:"content"`
	PlainText string          `json:"plainText"`
	Cover     string          `json:"cover"`
	Video     string          `json:"video"`
}

func kindRef(kind models.SubmissionKind, id models.StringID) (models.SubmissionRef, error) {
	return refRequest{ID: id, Type: kind}.ref()
}

// Submit returns the submit handler for kind.
func (s *Server) Submit(kind models.SubmissionKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req submissionRequest
		if err := bind(c, &req); err != nil {
			return respondError(c, err)
		}
		uid := middleware.UserID(c)
		title := strings.TrimSpace(req.Title)

		var id uint
		var err error
		if kind == models.KindArticle {
			id, err = s.submissionService.SubmitArticle(c.UserContext(), service.SubmitArticleInput{
				UserID:    uid,
				Title:     title,
				Content:   req.Content,
				PlainText: req.PlainText,
			})
		} else {
			id, err = s.submissionService.SubmitVideo(c.UserContext(), service.SubmitVideoInput{
				UserID: uid,
				Title:  title,
				Cover:  strings.TrimSpace(req.Cover),
				Video:  strings.TrimSpace(req.Video),
			})
		}
		if err != nil {
			return respondError(c, err)
		}
		return respond(c, fiber.Map{"id": models.StringID(id)})
	}
}

// GetSubmission returns the detail handler for kind.
func (s *Server) GetSubmission(kind models.SubmissionKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req idRequest
		if err := bind(c, &req); err != nil {
			return respondError(c, err)
		}
		ref, err := kindRef(kind, req.ID)
		if err != nil {
			return respondError(c, err)
		}
		detail, err := s.submissionService.Get(c.UserContext(), middleware.UserID(c), ref)
		if err != nil {
			return respondError(c, err)
		}
		return respond(c, detail)
	}
}

type submissionListRequest struct {
	UID models.StringID `json:"uid"`
	pageRequest
}

// GetSubmissionList returns the per-author listing handler for kind.
func (s *Server) GetSubmissionList(kind models.SubmissionKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req submissionListRequest
		if err := bind(c, &req); err != nil {
			return respondError(c, err)
		}
		if req.UID == 0 {
			return respondError(c, models.NewValidationError("uid is required"))
		}
		res, err := s.submissionService.ListByUser(c.UserContext(), service.ListSubmissionsInput{
			ViewerID: middleware.UserID(c),
			AuthorID: uint(req.UID),
			Kind:     kind,
			PageNum:  req.PageNum,
			PageSize: req.PageSize,
		})
		if err != nil {
			return respondError(c, err)
		}
		return respond(c, res)
	}
}

// Resubmit returns the resubmit handler for kind.
func (s *Server) Resubmit(kind models.SubmissionKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req submissionRequest
		if err := bind(c, &req); err != nil {
			return respondError(c, err)
		}
		ref, err := kindRef(kind, req.ID)
		if err != nil {
			return respondError(c, err)
		}
		err = s.submissionService.Resubmit(c.UserContext(), service.ResubmitInput{
			UserID:    middleware.UserID(c),
			Ref:       ref,
			Title:     strings.TrimSpace(req.Title),
			Content:   req.Content,
			PlainText: req.PlainText,
			Cover:     strings.TrimSpace(req.Cover),
			Video:     strings.TrimSpace(req.Video),
		})
		if err != nil {
			return respondError(c, err)
		}
		return respond(c, nil)
	}
}

// DeleteSubmission returns the delete handler for kind.
func (s *Server) DeleteSubmission(kind models.SubmissionKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req idRequest
		if err := bind(c, &req); err != nil {
			return respondError(c, err)
		}
		ref, err := kindRef(kind, req.ID)
		if err != nil {
			return respondError(c, err)
		}
		if err := s.submissionService.Delete(c.UserContext(), middleware.UserID(c), ref); err != nil {
			return respondError(c, err)
		}
		return respond(c, nil)
	}
}

type summaryRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Summary condenses a draft article through the external summary API.
func (s *Server) Summary(c *fiber.Ctx) error {
	var req summaryRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	summary, err := s.summaryService.Summarize(c.UserContext(), service.SummaryInput{
		UserID:  middleware.UserID(c),
		Title:   strings.TrimSpace(req.Title),
		Content: req.Content,
	})
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.Map{"summary": summary})
}
