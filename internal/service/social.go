package service

import (
	"context"

	"egaku/internal/models"
	"egaku/internal/repository"
	"egaku/internal/validation"
)

type SocialService struct {
	users       repository.UserRepository
	follows     repository.FollowRepository
	collections repository.CollectionRepository
	subs        repository.SubmissionRepository
}

type CollectInput struct {
	UserID uint
	Ref    models.SubmissionRef
}

func NewSocialService(
	users repository.UserRepository,
	follows repository.FollowRepository,
	collections repository.CollectionRepository,
	subs repository.SubmissionRepository,
) *SocialService {
	return &SocialService{
		users:       users,
		follows:     follows,
		collections: collections,
		subs:        subs,
	}
}

func (s *SocialService) Follow(ctx context.Context, followerID, targetID uint) error {
	if followerID == targetID {
		return models.ErrOperationToSelf
	}
	if _, err := s.users.GetByID(ctx, targetID); err != nil {
		return err
	}
	return s.follows.Follow(ctx, followerID, targetID)
}

func (s *SocialService) Unfollow(ctx context.Context, followerID, targetID uint) error {
	if followerID == targetID {
		return models.ErrOperationToSelf
	}
	return s.follows.Unfollow(ctx, followerID, targetID)
}

func (s *SocialService) IsFollowed(ctx context.Context, followerID, targetID uint) (bool, error) {
	return s.follows.IsFollowing(ctx, followerID, targetID)
}

// Followed lists the users followerID follows, most recent edge first.
func (s *SocialService) Followed(ctx context.Context, followerID uint, pageNum, pageSize int) (*models.ListResult[models.UserBrief], error) {
	limit, offset := validation.Page(pageNum, pageSize)
	users, total, err := s.follows.ListFollowed(ctx, followerID, limit, offset)
	if err != nil {
		return nil, err
	}
	out := &models.ListResult[models.UserBrief]{Total: total, DataList: make([]models.UserBrief, 0, len(users))}
	for i := range users {
		out.DataList = append(out.DataList, models.NewUserBrief(&users[i]))
	}
	return out, nil
}

// Collect bookmarks a submission the user can see. Collecting twice is a no-op.
func (s *SocialService) Collect(ctx context.Context, in CollectInput) error {
	sub, err := s.subs.Get(ctx, in.Ref)
	if err != nil {
		return err
	}
	if !sub.VisibleTo(in.UserID) {
		return models.NewNoSubmissionError(in.Ref)
	}
	return s.collections.Add(ctx, in.UserID, in.Ref)
}

func (s *SocialService) Uncollect(ctx context.Context, in CollectInput) error {
	if !in.Ref.Kind.Valid() {
		return models.NewValidationError("unknown submission type")
	}
	return s.collections.Remove(ctx, in.UserID, in.Ref)
}

func (s *SocialService) IsCollected(ctx context.Context, in CollectInput) (bool, error) {
	return s.collections.Exists(ctx, in.UserID, in.Ref)
}

// Collections lists userID's bookmarks with their target previews, newest first.
// Targets that are no longer approved stay hidden unless userID wrote them.
func (s *SocialService) Collections(ctx context.Context, userID uint, pageNum, pageSize int) (*models.ListResult[models.CollectionItem], error) {
	limit, offset := validation.Page(pageNum, pageSize)
	edges, total, err := s.collections.List(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}

	refs := make([]models.SubmissionRef, 0, len(edges))
	for i := range edges {
		refs = append(refs, edges[i].Target())
	}
	subs, err := s.subs.GetMany(ctx, refs)
	if err != nil {
		return nil, err
	}

	out := &models.ListResult[models.CollectionItem]{Total: total, DataList: make([]models.CollectionItem, 0, len(edges))}
	for i := range edges {
		ref := edges[i].Target()
		sub, ok := subs[ref]
		if !ok || !sub.VisibleTo(userID) {
			continue
		}
		out.DataList = append(out.DataList, models.CollectionItem{
			ID:           models.StringID(edges[i].ID),
			SubmissionID: models.StringID(ref.ID),
			Time:         models.Millis(edges[i].CreatedAt),
			Title:        sub.Title,
			Type:         ref.Kind,
			Preview:      sub.Preview(),
		})
	}
	return out, nil
}
