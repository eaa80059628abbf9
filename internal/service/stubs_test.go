package service

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"egaku/internal/models"
	"egaku/internal/notifications"
	"egaku/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, models.ErrorCode(err), "error: %v", err)
}

func assertValidationError(t *testing.T, err error) {
	t.Helper()
	assertCode(t, err, models.CodeParamError)
}

func adminIDs(ids ...uint) func(context.Context, uint) (bool, error) {
	return func(_ context.Context, userID uint) (bool, error) {
		for _, id := range ids {
			if id == userID {
				return true, nil
			}
		}
		return false, nil
	}
}

// userRepoStub is a stub for repository.UserRepository.
type userRepoStub struct {
	getByIDFn       func(context.Context, uint) (*models.User, error)
	getByIDsFn      func(context.Context, []uint) (map[uint]*models.User, error)
	getByAccountFn  func(context.Context, string) (*models.User, error)
	getByEmailFn    func(context.Context, string) (*models.User, error)
	createAccountFn func(context.Context, *models.User, func(uint) string) error
	resetPasswordFn func(context.Context, string, func(uint) string) error
	changeEmailFn   func(context.Context, uint, string) error
	updateProfileFn func(context.Context, uint, repository.ProfileUpdate) error
	addExpFn        func(context.Context, uint, int) error
	setAdminFn      func(context.Context, uint, bool) error
	listAdminsFn    func(context.Context) ([]models.User, error)
}

func (s *userRepoStub) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return s.getByIDFn(ctx, id)
}
func (s *userRepoStub) GetByIDs(ctx context.Context, ids []uint) (map[uint]*models.User, error) {
	return s.getByIDsFn(ctx, ids)
}
func (s *userRepoStub) GetByAccount(ctx context.Context, account string) (*models.User, error) {
	return s.getByAccountFn(ctx, account)
}
func (s *userRepoStub) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getByEmailFn(ctx, email)
}
func (s *userRepoStub) CreateAccount(ctx context.Context, user *models.User, hash func(uint) string) error {
	return s.createAccountFn(ctx, user, hash)
}
func (s *userRepoStub) ResetPassword(ctx context.Context, email string, hash func(uint) string) error {
	return s.resetPasswordFn(ctx, email, hash)
}
func (s *userRepoStub) ChangeEmail(ctx context.Context, userID uint, email string) error {
	return s.changeEmailFn(ctx, userID, email)
}
func (s *userRepoStub) UpdateProfile(ctx context.Context, userID uint, in repository.ProfileUpdate) error {
	return s.updateProfileFn(ctx, userID, in)
}
func (s *userRepoStub) AddExp(ctx context.Context, userID uint, delta int) error {
	return s.addExpFn(ctx, userID, delta)
}
func (s *userRepoStub) SetAdmin(ctx context.Context, userID uint, admin bool) error {
	return s.setAdminFn(ctx, userID, admin)
}
func (s *userRepoStub) ListAdmins(ctx context.Context) ([]models.User, error) {
	return s.listAdminsFn(ctx)
}

// noopUserRepo knows every id: user N has account "userN".
func noopUserRepo() *userRepoStub {
	byID := func(_ context.Context, id uint) (*models.User, error) {
		return &models.User{ID: id, Account: "user" + itoa(id), Nickname: "nick" + itoa(id)}, nil
	}
	return &userRepoStub{
		getByIDFn: byID,
		getByIDsFn: func(ctx context.Context, ids []uint) (map[uint]*models.User, error) {
			out := make(map[uint]*models.User, len(ids))
			for _, id := range ids {
				out[id], _ = byID(ctx, id)
			}
			return out, nil
		},
		getByAccountFn:  func(_ context.Context, _ string) (*models.User, error) { return nil, nil },
		getByEmailFn:    func(_ context.Context, _ string) (*models.User, error) { return nil, nil },
		createAccountFn: func(_ context.Context, _ *models.User, _ func(uint) string) error { return nil },
		resetPasswordFn: func(_ context.Context, _ string, _ func(uint) string) error { return nil },
		changeEmailFn:   func(_ context.Context, _ uint, _ string) error { return nil },
		updateProfileFn: func(_ context.Context, _ uint, _ repository.ProfileUpdate) error { return nil },
		addExpFn:        func(_ context.Context, _ uint, _ int) error { return nil },
		setAdminFn:      func(_ context.Context, _ uint, _ bool) error { return nil },
		listAdminsFn:    func(_ context.Context) ([]models.User, error) { return nil, nil },
	}
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// submissionRepoStub is a stub for repository.SubmissionRepository.
type submissionRepoStub struct {
	createArticleFn func(context.Context, *models.Article) error
	createVideoFn   func(context.Context, *models.Video) error
	getFn           func(context.Context, models.SubmissionRef) (*models.Submission, error)
	getManyFn       func(context.Context, []models.SubmissionRef) (map[models.SubmissionRef]*models.Submission, error)
	resubmitFn      func(context.Context, *models.Submission) error
	applyStatusFn   func(context.Context, models.SubmissionRef, models.ReviewStatus, string) (bool, error)
	deleteFn        func(context.Context, models.SubmissionRef) error
	countByUserFn   func(context.Context, models.SubmissionKind, uint, bool) (int64, error)
	listByUserFn    func(context.Context, models.SubmissionKind, uint, bool, int, int) ([]*models.Submission, int64, error)
}

func (s *submissionRepoStub) CreateArticle(ctx context.Context, a *models.Article) error {
	return s.createArticleFn(ctx, a)
}
func (s *submissionRepoStub) CreateVideo(ctx context.Context, v *models.Video) error {
	return s.createVideoFn(ctx, v)
}
func (s *submissionRepoStub) Get(ctx context.Context, ref models.SubmissionRef) (*models.Submission, error) {
	return s.getFn(ctx, ref)
}
func (s *submissionRepoStub) GetMany(ctx context.Context, refs []models.SubmissionRef) (map[models.SubmissionRef]*models.Submission, error) {
	return s.getManyFn(ctx, refs)
}
func (s *submissionRepoStub) Resubmit(ctx context.Context, sub *models.Submission) error {
	return s.resubmitFn(ctx, sub)
}
func (s *submissionRepoStub) ApplyStatus(ctx context.Context, ref models.SubmissionRef, status models.ReviewStatus, desc string) (bool, error) {
	return s.applyStatusFn(ctx, ref, status, desc)
}
func (s *submissionRepoStub) ApplyVerdict(ctx context.Context, ref models.SubmissionRef, status models.ReviewStatus, desc string) (bool, bool, error) {
	awarded, err := s.applyStatusFn(ctx, ref, status, desc)
	return err == nil, awarded, err
}
func (s *submissionRepoStub) Delete(ctx context.Context, ref models.SubmissionRef) error {
	return s.deleteFn(ctx, ref)
}
func (s *submissionRepoStub) CountByUser(ctx context.Context, kind models.SubmissionKind, userID uint, approvedOnly bool) (int64, error) {
	return s.countByUserFn(ctx, kind, userID, approvedOnly)
}
func (s *submissionRepoStub) ListByUser(ctx context.Context, kind models.SubmissionKind, userID uint, approvedOnly bool, limit, offset int) ([]*models.Submission, int64, error) {
	return s.listByUserFn(ctx, kind, userID, approvedOnly, limit, offset)
}

func noopSubmissionRepo() *submissionRepoStub {
	return &submissionRepoStub{
		createArticleFn: func(_ context.Context, _ *models.Article) error { return nil },
		createVideoFn:   func(_ context.Context, _ *models.Video) error { return nil },
		getFn: func(_ context.Context, ref models.SubmissionRef) (*models.Submission, error) {
			return nil, models.NewNoSubmissionError(ref)
		},
		getManyFn: func(_ context.Context, _ []models.SubmissionRef) (map[models.SubmissionRef]*models.Submission, error) {
			return map[models.SubmissionRef]*models.Submission{}, nil
		},
		resubmitFn: func(_ context.Context, _ *models.Submission) error { return nil },
		applyStatusFn: func(_ context.Context, _ models.SubmissionRef, _ models.ReviewStatus, _ string) (bool, error) {
			return false, nil
		},
		deleteFn:      func(_ context.Context, _ models.SubmissionRef) error { return nil },
		countByUserFn: func(_ context.Context, _ models.SubmissionKind, _ uint, _ bool) (int64, error) { return 0, nil },
		listByUserFn: func(_ context.Context, _ models.SubmissionKind, _ uint, _ bool, _, _ int) ([]*models.Submission, int64, error) {
			return nil, 0, nil
		},
	}
}

// withSubmissions makes Get and GetMany serve subs.
func (s *submissionRepoStub) withSubmissions(subs ...*models.Submission) *submissionRepoStub {
	byRef := make(map[models.SubmissionRef]*models.Submission, len(subs))
	for _, sub := range subs {
		byRef[sub.Ref] = sub
	}
	s.getFn = func(_ context.Context, ref models.SubmissionRef) (*models.Submission, error) {
		if sub, ok := byRef[ref]; ok {
			return sub, nil
		}
		return nil, models.NewNoSubmissionError(ref)
	}
	s.getManyFn = func(_ context.Context, refs []models.SubmissionRef) (map[models.SubmissionRef]*models.Submission, error) {
		out := make(map[models.SubmissionRef]*models.Submission)
		for _, ref := range refs {
			if sub, ok := byRef[ref]; ok {
				out[ref] = sub
			}
		}
		return out, nil
	}
	return s
}

func article(id, owner uint, status models.ReviewStatus) *models.Submission {
	return models.SubmissionFromArticle(&models.Article{
		ID:         id,
		UserID:     owner,
		SubmitTime: time.UnixMilli(1700000000000),
		Title:      "article " + itoa(id),
		Content:    "<p>body</p>",
		PlainText:  "body",
		Status:     status,
	})
}

func video(id, owner uint, status models.ReviewStatus) *models.Submission {
	return models.SubmissionFromVideo(&models.Video{
		ID:         id,
		UserID:     owner,
		SubmitTime: time.UnixMilli(1700000000000),
		Title:      "video " + itoa(id),
		Cover:      "/files/c.webp",
		Video:      "/files/v.mp4",
		Status:     status,
	})
}

// followRepoStub is a stub for repository.FollowRepository.
type followRepoStub struct {
	followFn         func(context.Context, uint, uint) error
	unfollowFn       func(context.Context, uint, uint) error
	isFollowingFn    func(context.Context, uint, uint) (bool, error)
	listFollowedFn   func(context.Context, uint, int, int) ([]models.User, int64, error)
	countFollowersFn func(context.Context, uint) (int64, error)
}

func (s *followRepoStub) Follow(ctx context.Context, followerID, followedID uint) error {
	return s.followFn(ctx, followerID, followedID)
}
func (s *followRepoStub) Unfollow(ctx context.Context, followerID, followedID uint) error {
	return s.unfollowFn(ctx, followerID, followedID)
}
func (s *followRepoStub) IsFollowing(ctx context.Context, followerID, followedID uint) (bool, error) {
	return s.isFollowingFn(ctx, followerID, followedID)
}
func (s *followRepoStub) ListFollowed(ctx context.Context, followerID uint, limit, offset int) ([]models.User, int64, error) {
	return s.listFollowedFn(ctx, followerID, limit, offset)
}
func (s *followRepoStub) CountFollowers(ctx context.Context, userID uint) (int64, error) {
	return s.countFollowersFn(ctx, userID)
}

func noopFollowRepo() *followRepoStub {
	return &followRepoStub{
		followFn:         func(_ context.Context, _, _ uint) error { return nil },
		unfollowFn:       func(_ context.Context, _, _ uint) error { return nil },
		isFollowingFn:    func(_ context.Context, _, _ uint) (bool, error) { return false, nil },
		listFollowedFn:   func(_ context.Context, _ uint, _, _ int) ([]models.User, int64, error) { return nil, 0, nil },
		countFollowersFn: func(_ context.Context, _ uint) (int64, error) { return 0, nil },
	}
}

// commentRepoStub is a stub for repository.CommentRepository.
type commentRepoStub struct {
	createFn       func(context.Context, *models.Comment) error
	getByIDFn      func(context.Context, uint) (*models.Comment, error)
	listByTargetFn func(context.Context, models.SubmissionRef, int, int) ([]*models.Comment, int64, error)
	listRepliesFn  func(context.Context, uint, int, int) ([]*models.Comment, int64, error)
	deleteFn       func(context.Context, uint) error
}

func (s *commentRepoStub) Create(ctx context.Context, c *models.Comment) error {
	return s.createFn(ctx, c)
}
func (s *commentRepoStub) GetByID(ctx context.Context, id uint) (*models.Comment, error) {
	return s.getByIDFn(ctx, id)
}
func (s *commentRepoStub) ListByTarget(ctx context.Context, ref models.SubmissionRef, limit, offset int) ([]*models.Comment, int64, error) {
	return s.listByTargetFn(ctx, ref, limit, offset)
}
func (s *commentRepoStub) ListReplies(ctx context.Context, ownerID uint, limit, offset int) ([]*models.Comment, int64, error) {
	return s.listRepliesFn(ctx, ownerID, limit, offset)
}
func (s *commentRepoStub) Delete(ctx context.Context, id uint) error {
	return s.deleteFn(ctx, id)
}

func noopCommentRepo() *commentRepoStub {
	return &commentRepoStub{
		createFn:  func(_ context.Context, _ *models.Comment) error { return nil },
		getByIDFn: func(_ context.Context, _ uint) (*models.Comment, error) { return &models.Comment{}, nil },
		listByTargetFn: func(_ context.Context, _ models.SubmissionRef, _, _ int) ([]*models.Comment, int64, error) {
			return nil, 0, nil
		},
		listRepliesFn: func(_ context.Context, _ uint, _, _ int) ([]*models.Comment, int64, error) { return nil, 0, nil },
		deleteFn:      func(_ context.Context, _ uint) error { return nil },
	}
}

// notifierSpy records unread counter changes and published reminders.
type notifierSpy struct {
	mu        sync.Mutex
	unread    map[uint]int64
	reset     []uint
	reminders map[uint][]notifications.Reminder
}

func newNotifierSpy() *notifierSpy {
	return &notifierSpy{unread: map[uint]int64{}, reminders: map[uint][]notifications.Reminder{}}
}

func (n *notifierSpy) IncrUnread(_ context.Context, _ models.ReminderKind, userID uint) (int64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.unread[userID]++
	return n.unread[userID], nil
}

func (n *notifierSpy) Unread(_ context.Context, userID uint) (map[models.ReminderKind]int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return map[models.ReminderKind]int{models.ReminderReply: int(n.unread[userID])}, nil
}

func (n *notifierSpy) ResetUnread(_ context.Context, _ models.ReminderKind, userID uint) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.unread[userID] = 0
	n.reset = append(n.reset, userID)
	return nil
}

func (n *notifierSpy) PublishReminder(_ context.Context, userID uint, r notifications.Reminder) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reminders[userID] = append(n.reminders[userID], r)
	return nil
}
