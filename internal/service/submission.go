package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"egaku/internal/middleware"
	"egaku/internal/models"
	"egaku/internal/observability"
	"egaku/internal/repository"
	"egaku/internal/validation"
)

// ModerationQueue accepts submissions for asynchronous moderation.
type ModerationQueue interface {
	Dispatch(ctx context.Context, ref models.SubmissionRef) error
}

type SubmissionService struct {
	subs    repository.SubmissionRepository
	users   repository.UserRepository
	follows repository.FollowRepository
	queue   ModerationQueue
	isAdmin func(ctx context.Context, userID uint) (bool, error)
	now     func() time.Time
}

type SubmitArticleInput struct {
	UserID    uint
	Title     string
	Content   string
	PlainText string
}

type SubmitVideoInput struct {
	UserID uint
	Title  string
	Cover  string
	Video  string
}

type ResubmitInput struct {
	UserID    uint
	Ref       models.SubmissionRef
	Title     string
	Content   string
	PlainText string
	Cover     string
	Video     string
}

type ListSubmissionsInput struct {
	ViewerID uint
	AuthorID uint
	Kind     models.SubmissionKind
	PageNum  int
	PageSize int
}

type UpdateStatusInput struct {
	UserID uint
	Ref    models.SubmissionRef
	Status models.ReviewStatus
	Desc   string
}

func NewSubmissionService(
	subs repository.SubmissionRepository,
	users repository.UserRepository,
	follows repository.FollowRepository,
	queue ModerationQueue,
	isAdmin func(ctx context.Context, userID uint) (bool, error),
) *SubmissionService {
	return &SubmissionService{
		subs:    subs,
		users:   users,
		follows: follows,
		queue:   queue,
		isAdmin: isAdmin,
		now:     time.Now,
	}
}

func validateArticle(title, content, plainText string) error {
	if err := validation.ValidateTitle(title); err != nil {
		return models.NewValidationError(err.Error())
	}
	if strings.TrimSpace(content) == "" || strings.TrimSpace(plainText) == "" {
		return models.NewValidationError("content is required")
	}
	return nil
}

func validateVideo(title, cover, video string) error {
	if err := validation.ValidateTitle(title); err != nil {
		return models.NewValidationError(err.Error())
	}
	if cover == "" || video == "" {
		return models.NewValidationError("cover and video are required")
	}
	return nil
}

// SubmitArticle stores a pending article and queues it for moderation.
func (s *SubmissionService) SubmitArticle(ctx context.Context, in SubmitArticleInput) (uint, error) {
	if err := validateArticle(in.Title, in.Content, in.PlainText); err != nil {
		return 0, err
	}
	a := &models.Article{
		UserID:     in.UserID,
		SubmitTime: s.now(),
		Title:      in.Title,
		Content:    in.Content,
		PlainText:  in.PlainText,
		Status:     models.StatusPending,
	}
	if err := s.subs.CreateArticle(ctx, a); err != nil {
		return 0, err
	}
	s.submitted(ctx, a.Ref())
	return a.ID, nil
}

// SubmitVideo stores a pending video and queues it for moderation.
func (s *SubmissionService) SubmitVideo(ctx context.Context, in SubmitVideoInput) (uint, error) {
	if err := validateVideo(in.Title, in.Cover, in.Video); err != nil {
		return 0, err
	}
	v := &models.Video{
		UserID:     in.UserID,
		SubmitTime: s.now(),
		Title:      in.Title,
		Cover:      in.Cover,
		Video:      in.Video,
		Status:     models.StatusPending,
	}
	if err := s.subs.CreateVideo(ctx, v); err != nil {
		return 0, err
	}
	s.submitted(ctx, v.Ref())
	return v.ID, nil
}

// Resubmit replaces a rejected submission's content and moderates it again.
func (s *SubmissionService) Resubmit(ctx context.Context, in ResubmitInput) error {
	sub := &models.Submission{Ref: in.Ref, UserID: in.UserID, SubmitTime: s.now(), Title: in.Title}
	switch in.Ref.Kind {
	case models.KindArticle:
		if err := validateArticle(in.Title, in.Content, in.PlainText); err != nil {
			return err
		}
		sub.Article = &models.Article{
			ID:         in.Ref.ID,
			UserID:     in.UserID,
			SubmitTime: sub.SubmitTime,
			Title:      in.Title,
			Content:    in.Content,
			PlainText:  in.PlainText,
		}
	case models.KindVideo:
		if err := validateVideo(in.Title, in.Cover, in.Video); err != nil {
			return err
		}
		sub.Video = &models.Video{
			ID:         in.Ref.ID,
			UserID:     in.UserID,
			SubmitTime: sub.SubmitTime,
			Title:      in.Title,
			Cover:      in.Cover,
			Video:      in.Video,
		}
	default:
		return models.NewValidationError("unknown submission type")
	}

	if err := s.subs.Resubmit(ctx, sub); err != nil {
		return err
	}
	s.submitted(ctx, in.Ref)
	return nil
}

// submitted counts the submission and hands it to moderation. A failed dispatch
// leaves the row pending for an admin to review.
func (s *SubmissionService) submitted(ctx context.Context, ref models.SubmissionRef) {
	observability.SubmissionsTotal.WithLabelValues(ref.Kind.String()).Inc()
	if s.queue == nil {
		return
	}
	if err := s.queue.Dispatch(ctx, ref); err != nil {
		middleware.Logger.ErrorContext(ctx, "moderation dispatch failed",
			slog.String("submission", ref.String()),
			slog.String("error", err.Error()),
		)
	}
}

// Get returns the detail page. Submissions that are not approved are visible only to
// their owner and admins; everyone else gets NO_SUBMISSION.
func (s *SubmissionService) Get(ctx context.Context, viewerID uint, ref models.SubmissionRef) (*models.SubmissionDetail, error) {
	sub, err := s.subs.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if sub.Status != models.StatusApproved {
		ok, err := ownerOrAdmin(ctx, s.isAdmin, viewerID, sub.UserID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, models.NewNoSubmissionError(ref)
		}
	}

	author, err := s.users.GetByID(ctx, sub.UserID)
	if err != nil {
		return nil, err
	}
	uploader := models.NewUserBrief(author)
	if uploader.CanFollow, err = canFollow(ctx, s.follows, viewerID, sub.UserID); err != nil {
		return nil, err
	}

	d := &models.SubmissionDetail{
		ID:         models.StringID(ref.ID),
		Type:       ref.Kind,
		Uploader:   uploader,
		SubmitTime: models.Millis(sub.SubmitTime),
		Title:      sub.Title,
		Status:     sub.Status,
		Desc:       sub.Desc,
	}
	if sub.Article != nil {
		d.Content = sub.Article.Content
	}
	if sub.Video != nil {
		d.Cover = sub.Video.Cover
		d.Video = sub.Video.Video
	}
	return d, nil
}

// ListByUser lists one author's submissions of a kind. The owner and admins see every
// status with its moderation description; others see approved entries only.
func (s *SubmissionService) ListByUser(ctx context.Context, in ListSubmissionsInput) (*models.ListResult[models.SubmissionItem], error) {
	if !in.Kind.Valid() {
		return nil, models.NewValidationError("unknown submission type")
	}
	if _, err := s.users.GetByID(ctx, in.AuthorID); err != nil {
		return nil, err
	}
	privileged, err := ownerOrAdmin(ctx, s.isAdmin, in.ViewerID, in.AuthorID)
	if err != nil {
		return nil, err
	}

	limit, offset := validation.Page(in.PageNum, in.PageSize)
	subs, total, err := s.subs.ListByUser(ctx, in.Kind, in.AuthorID, !privileged, limit, offset)
	if err != nil {
		return nil, err
	}

	out := &models.ListResult[models.SubmissionItem]{Total: total, DataList: make([]models.SubmissionItem, 0, len(subs))}
	for _, sub := range subs {
		item := models.SubmissionItem{
			ID:         models.StringID(sub.Ref.ID),
			SubmitTime: models.Millis(sub.SubmitTime),
			Title:      sub.Title,
			Status:     sub.Status,
		}
		if privileged {
			item.Desc = sub.Desc
		}
		if sub.Article != nil {
			item.Preview = sub.Preview()
		}
		if sub.Video != nil {
			item.Cover = sub.Video.Cover
			item.Video = sub.Video.Video
		}
		out.DataList = append(out.DataList, item)
	}
	return out, nil
}

// Delete removes a submission with its comments and bookmarks. Owner or admin only.
func (s *SubmissionService) Delete(ctx context.Context, userID uint, ref models.SubmissionRef) error {
	sub, err := s.subs.Get(ctx, ref)
	if err != nil {
		return err
	}
	ok, err := ownerOrAdmin(ctx, s.isAdmin, userID, sub.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrNoPermission
	}
	return s.subs.Delete(ctx, ref)
}

// UpdateStatus is the admin override of a moderation verdict.
func (s *SubmissionService) UpdateStatus(ctx context.Context, in UpdateStatusInput) error {
	if err := requireAdmin(ctx, s.isAdmin, in.UserID); err != nil {
		return err
	}
	if !in.Status.Valid() {
		return models.NewValidationError("unknown status")
	}
	awarded, err := s.subs.ApplyStatus(ctx, in.Ref, in.Status, in.Desc)
	if err != nil {
		return err
	}
	middleware.Logger.InfoContext(ctx, "submission status overridden",
		slog.String("submission", in.Ref.String()),
		slog.Int("status", int(in.Status)),
		slog.Bool("exp_awarded", awarded),
	)
	return nil
}
