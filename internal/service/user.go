package service

import (
	"context"
	"log/slog"

	"egaku/internal/middleware"
	"egaku/internal/models"
	"egaku/internal/repository"
	"egaku/internal/validation"
)

// UnreadCounter keeps per-kind unread reminder counts.
type UnreadCounter interface {
	IncrUnread(ctx context.Context, kind models.ReminderKind, userID uint) (int64, error)
	Unread(ctx context.Context, userID uint) (map[models.ReminderKind]int, error)
	ResetUnread(ctx context.Context, kind models.ReminderKind, userID uint) error
}

type UserService struct {
	users   repository.UserRepository
	subs    repository.SubmissionRepository
	follows repository.FollowRepository
	codes   *VerificationService
	unread  UnreadCounter
}

type UpdateProfileInput struct {
	UserID       uint
	Nickname     string
	Sex          int
	Desc         string
	Avatar       string
	ShowReminder map[models.ReminderKind]bool
}

type UpdateEmailInput struct {
	UserID uint
	Email  string
	Code   string
}

func NewUserService(
	users repository.UserRepository,
	subs repository.SubmissionRepository,
	follows repository.FollowRepository,
	codes *VerificationService,
	unread UnreadCounter,
) *UserService {
	return &UserService{
		users:   users,
		subs:    subs,
		follows: follows,
		codes:   codes,
		unread:  unread,
	}
}

// Info is the signed-in user's own profile with unread counters.
func (s *UserService) Info(ctx context.Context, userID uint) (*models.UserInfo, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	msgNum := make(map[models.ReminderKind]int, len(models.ReminderKinds))
	for _, k := range models.ReminderKinds {
		msgNum[k] = 0
	}
	if s.unread != nil {
		counts, err := s.unread.Unread(ctx, userID)
		if err != nil {
			middleware.Logger.WarnContext(ctx, "unread counters unavailable", slog.String("error", err.Error()))
		}
		for k, n := range counts {
			msgNum[k] = n
		}
	}

	return &models.UserInfo{
		UID:          models.StringID(u.ID),
		Account:      u.Account,
		Email:        u.Email,
		Sex:          u.Sex,
		Nickname:     u.Nickname,
		Avatar:       u.Avatar,
		Desc:         u.Desc,
		Exp:          u.Exp,
		SignupTime:   models.Millis(u.SignupTime),
		Admin:        u.Admin,
		MsgNum:       msgNum,
		ShowReminder: u.DisableReminder.Map(),
	}, nil
}

// Detail is the public profile of userID as seen by viewerID (0 when anonymous).
// Totals count approved submissions only unless the viewer is the owner.
func (s *UserService) Detail(ctx context.Context, viewerID, userID uint) (*models.UserDetail, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	approvedOnly := viewerID != userID
	articles, err := s.subs.CountByUser(ctx, models.KindArticle, userID, approvedOnly)
	if err != nil {
		return nil, err
	}
	videos, err := s.subs.CountByUser(ctx, models.KindVideo, userID, approvedOnly)
	if err != nil {
		return nil, err
	}
	followers, err := s.follows.CountFollowers(ctx, userID)
	if err != nil {
		return nil, err
	}
	canFollow, err := canFollow(ctx, s.follows, viewerID, userID)
	if err != nil {
		return nil, err
	}

	return &models.UserDetail{
		UID:           models.StringID(u.ID),
		Account:       u.Account,
		Sex:           u.Sex,
		Nickname:      u.Nickname,
		Avatar:        u.Avatar,
		Desc:          u.Desc,
		Exp:           u.Exp,
		SignupTime:    models.Millis(u.SignupTime),
		ArticleTotal:  articles,
		VideoTotal:    videos,
		FollowerTotal: followers,
		CanFollow:     canFollow,
	}, nil
}

func (s *UserService) Update(ctx context.Context, in UpdateProfileInput) error {
	if err := validation.ValidateNickname(in.Nickname); err != nil {
		return models.NewValidationError(err.Error())
	}
	if err := validation.ValidateDesc(in.Desc); err != nil {
		return models.NewValidationError(err.Error())
	}
	if in.Sex < 0 || in.Sex > 2 {
		return models.NewValidationError("sex must be 0, 1 or 2")
	}

	u, err := s.users.GetByID(ctx, in.UserID)
	if err != nil {
		return err
	}
	return s.users.UpdateProfile(ctx, in.UserID, repository.ProfileUpdate{
		Nickname:        in.Nickname,
		Sex:             in.Sex,
		Desc:            in.Desc,
		Avatar:          in.Avatar,
		DisableReminder: u.DisableReminder.Apply(in.ShowReminder),
	})
}

func (s *UserService) UpdateEmail(ctx context.Context, in UpdateEmailInput) error {
	if err := validation.ValidateEmail(in.Email); err != nil {
		return models.NewValidationError(err.Error())
	}
	if err := s.codes.Check(ctx, in.Email, in.Code); err != nil {
		return err
	}
	return s.users.ChangeEmail(ctx, in.UserID, in.Email)
}

func (s *UserService) IsAdmin(ctx context.Context, userID uint) (bool, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return u.Admin, nil
}

func (s *UserService) SetAdmin(ctx context.Context, userID uint, admin bool) error {
	return s.users.SetAdmin(ctx, userID, admin)
}

func (s *UserService) ListAdmins(ctx context.Context) ([]models.User, error) {
	return s.users.ListAdmins(ctx)
}

// canFollow is true for a signed-in viewer looking at someone they do not follow yet.
func canFollow(ctx context.Context, follows repository.FollowRepository, viewerID, userID uint) (bool, error) {
	if viewerID == 0 || viewerID == userID {
		return false, nil
	}
	following, err := follows.IsFollowing(ctx, viewerID, userID)
	if err != nil {
		return false, err
	}
	return !following, nil
}
