package repository

import (
	"context"
	"testing"
	"time"

	"egaku/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFollowRepository(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewFollowRepository(db)
	ctx := context.Background()

	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	carol := seedUser(t, db, "carol")

	require.NoError(t, repo.Follow(ctx, alice.ID, bob.ID))
	require.NoError(t, repo.Follow(ctx, alice.ID, bob.ID), "following twice is a no-op")
	require.NoError(t, repo.Follow(ctx, alice.ID, carol.ID))
	require.NoError(t, repo.Follow(ctx, carol.ID, bob.ID))

	ok, err := repo.IsFollowing(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.IsFollowing(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := repo.CountFollowers(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	users, total, err := repo.ListFollowed(ctx, alice.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	var accounts []string
	for _, u := range users {
		accounts = append(accounts, u.Account)
	}
	assert.ElementsMatch(t, []string{"bob", "carol"}, accounts)

	require.NoError(t, repo.Unfollow(ctx, alice.ID, bob.ID))
	require.NoError(t, repo.Unfollow(ctx, alice.ID, bob.ID), "unfollowing twice is a no-op")
	n, err = repo.CountFollowers(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	users, total, err = repo.ListFollowed(ctx, bob.ID, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, users)
}

func TestCollectionRepository(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewCollectionRepository(db)
	ctx := context.Background()

	u := seedUser(t, db, "alice")
	a := seedArticle(t, db, u.ID, "A", "x", models.StatusApproved, baseTime)
	v := seedVideo(t, db, u.ID, "V", models.StatusApproved, baseTime)

	require.NoError(t, repo.Add(ctx, u.ID, a.Ref()))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, repo.Add(ctx, u.ID, v.Ref()))
	require.NoError(t, repo.Add(ctx, u.ID, a.Ref()), "collecting twice is a no-op")

	rows, total, err := repo.List(ctx, u.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, rows, 2)
	assert.Equal(t, v.Ref(), rows[0].Target())
	assert.Equal(t, a.Ref(), rows[1].Target())

	ok, err := repo.Exists(ctx, u.ID, v.Ref())
	require.NoError(t, err)
	assert.True(t, ok)

	// Same id, different kind, is a different target.
	ok, err = repo.Exists(ctx, u.ID, models.SubmissionRef{Kind: models.KindVideo, ID: a.ID + 100})
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Remove(ctx, u.ID, v.Ref()))
	ok, err = repo.Exists(ctx, u.ID, v.Ref())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCollectionRepository_ListHidesUnapprovedTargets(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewCollectionRepository(db)
	subs := NewSubmissionRepository(db)
	ctx := context.Background()

	reader := seedUser(t, db, "reader")
	author := seedUser(t, db, "author")
	public := seedArticle(t, db, author.ID, "Public", "ok", models.StatusApproved, baseTime)
	later := seedArticle(t, db, author.ID, "Later", "bad text", models.StatusApproved, baseTime)
	draft := seedVideo(t, db, reader.ID, "Own draft", models.StatusPending, baseTime)

	for _, ref := range []models.SubmissionRef{public.Ref(), later.Ref(), draft.Ref()} {
		require.NoError(t, repo.Add(ctx, reader.ID, ref))
	}

	_, err := subs.ApplyStatus(ctx, later.Ref(), models.StatusRejected, "abuse")
	require.NoError(t, err)

	rows, total, err := repo.List(ctx, reader.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	got := make([]models.SubmissionRef, 0, len(rows))
	for i := range rows {
		got = append(got, rows[i].Target())
	}
	assert.ElementsMatch(t, []models.SubmissionRef{public.Ref(), draft.Ref()}, got)

	// Sending the article back to pending keeps it hidden from the reader.
	_, err = subs.ApplyStatus(ctx, public.Ref(), models.StatusPending, "")
	require.NoError(t, err)
	rows, total, err = repo.List(ctx, reader.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, rows, 1)
	assert.Equal(t, draft.Ref(), rows[0].Target())
}

func TestCommentRepository_ListReplies(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewCommentRepository(db)
	ctx := context.Background()

	owner := seedUser(t, db, "alice")
	reader := seedUser(t, db, "bob")
	a := seedArticle(t, db, owner.ID, "Mine", "x", models.StatusApproved, baseTime)

	add := func(userID uint, content string, at time.Time) *models.Comment {
		c := &models.Comment{
			UserID: userID, Content: content, CreatedAt: at,
			TargetKind: models.KindArticle, TargetID: a.ID, TargetOwnerID: owner.ID,
		}
		require.NoError(t, repo.Create(ctx, c))
		return c
	}
	first := add(reader.ID, "first", baseTime)
	add(owner.ID, "thanks", baseTime.Add(time.Minute))
	second := add(reader.ID, "second", baseTime.Add(2*time.Minute))

	replies, total, err := repo.ListReplies(ctx, owner.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, replies, 2)
	assert.Equal(t, second.ID, replies[0].ID)
	assert.Equal(t, first.ID, replies[1].ID)
	assert.Equal(t, "bob", replies[0].User.Account)

	all, total, err := repo.ListByTarget(ctx, a.Ref(), 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, all, 2)

	got, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Content)
	assert.Equal(t, reader.ID, got.User.ID)

	require.NoError(t, repo.Delete(ctx, first.ID))
	_, err = repo.GetByID(ctx, first.ID)
	assert.Equal(t, models.CodeParamError, models.ErrorCode(err))
}

func TestVerificationRepository_ReplaceKeepsLatest(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewVerificationRepository(db)
	ctx := context.Background()
	now := time.Now()

	latest, err := repo.Latest(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Nil(t, latest)

	require.NoError(t, repo.Replace(ctx, &models.VerificationCode{Email: "a@x.com", CodeHash: "one", ExpireTime: now.Add(time.Minute)}))
	require.NoError(t, repo.Replace(ctx, &models.VerificationCode{Email: "a@x.com", CodeHash: "two", ExpireTime: now.Add(5 * time.Minute)}))
	require.NoError(t, repo.Replace(ctx, &models.VerificationCode{Email: "b@x.com", CodeHash: "old", ExpireTime: now.Add(-time.Minute)}))

	var count int64
	require.NoError(t, db.Model(&models.VerificationCode{}).Where("email = ?", "a@x.com").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	latest, err = repo.Latest(ctx, "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "two", latest.CodeHash)

	removed, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	require.NoError(t, repo.DeleteByEmail(ctx, "a@x.com"))
	latest, err = repo.Latest(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Nil(t, latest)
}
