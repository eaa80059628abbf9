package service

import (
	"context"

	"egaku/internal/models"
	"egaku/internal/repository"
	"egaku/internal/validation"
)

type FeedService struct {
	feed    repository.FeedRepository
	users   repository.UserRepository
	isAdmin func(ctx context.Context, userID uint) (bool, error)
}

type AuditInput struct {
	UserID   uint
	Status   *models.ReviewStatus
	PageNum  int
	PageSize int
}

func NewFeedService(
	feed repository.FeedRepository,
	users repository.UserRepository,
	isAdmin func(ctx context.Context, userID uint) (bool, error),
) *FeedService {
	return &FeedService{feed: feed, users: users, isAdmin: isAdmin}
}

// All is the public feed of approved submissions.
func (s *FeedService) All(ctx context.Context, pageNum, pageSize int) (*models.ListResult[models.FeedItem], error) {
	return s.list(ctx, repository.FeedFilter{}, pageNum, pageSize)
}

// Search matches any whitespace-separated token of content. Blank content lists nothing.
func (s *FeedService) Search(ctx context.Context, content string, pageNum, pageSize int) (*models.ListResult[models.FeedItem], error) {
	keywords := repository.Keywords(content)
	if len(keywords) == 0 {
		return &models.ListResult[models.FeedItem]{DataList: []models.FeedItem{}}, nil
	}
	return s.list(ctx, repository.FeedFilter{Keywords: keywords}, pageNum, pageSize)
}

// Followed lists approved submissions by the users followerID follows.
func (s *FeedService) Followed(ctx context.Context, followerID uint, pageNum, pageSize int) (*models.ListResult[models.FeedItem], error) {
	return s.list(ctx, repository.FeedFilter{FollowerID: followerID}, pageNum, pageSize)
}

// Audit lists submissions awaiting review (or with the given status) for admins.
func (s *FeedService) Audit(ctx context.Context, in AuditInput) (*models.ListResult[models.FeedItem], error) {
	if err := requireAdmin(ctx, s.isAdmin, in.UserID); err != nil {
		return nil, err
	}
	status := models.StatusPending
	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, models.NewValidationError("unknown status")
		}
		status = *in.Status
	}
	statuses := []models.ReviewStatus{status}
	if status == models.StatusPending {
		// Resubmitted work waits in the same queue.
		statuses = append(statuses, models.StatusResubmit)
	}
	return s.list(ctx, repository.FeedFilter{Statuses: statuses}, in.PageNum, in.PageSize)
}

func (s *FeedService) list(ctx context.Context, f repository.FeedFilter, pageNum, pageSize int) (*models.ListResult[models.FeedItem], error) {
	limit, offset := validation.Page(pageNum, pageSize)
	rows, total, err := s.feed.List(ctx, f, limit, offset)
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.UserID)
	}
	authors, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := &models.ListResult[models.FeedItem]{Total: total, DataList: make([]models.FeedItem, 0, len(rows))}
	for _, r := range rows {
		item := models.FeedItem{
			ID:         models.StringID(r.ID),
			SubmitTime: models.Millis(r.SubmitTime),
			Title:      r.Title,
			Preview:    r.Preview,
			Type:       r.Kind,
			Status:     r.Status,
		}
		if u, ok := authors[r.UserID]; ok {
			item.UploaderAccount = u.Account
			item.UploaderNickname = u.Nickname
		}
		out.DataList = append(out.DataList, item)
	}
	return out, nil
}

func requireAdmin(ctx context.Context, isAdmin func(context.Context, uint) (bool, error), userID uint) error {
	if isAdmin == nil || userID == 0 {
		return models.ErrNoPermission
	}
	admin, err := isAdmin(ctx, userID)
	if err != nil {
		return err
	}
	if !admin {
		return models.ErrNoPermission
	}
	return nil
}

// ownerOrAdmin passes when actorID is one of owners or an admin.
func ownerOrAdmin(ctx context.Context, isAdmin func(context.Context, uint) (bool, error), actorID uint, owners ...uint) (bool, error) {
	if actorID == 0 {
		return false, nil
	}
	for _, o := range owners {
		if o == actorID {
			return true, nil
		}
	}
	if isAdmin == nil {
		return false, nil
	}
	return isAdmin(ctx, actorID)
}
