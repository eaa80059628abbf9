package repository

import (
	"context"
	"fmt"
	"strings"

	"egaku/internal/models"

	"gorm.io/gorm"
)

// FeedFilter narrows the article/video union. Zero values mean "no constraint",
// except Statuses which defaults to approved only.
type FeedFilter struct {
	AuthorID   uint
	FollowerID uint
	Keywords   []string
	Statuses   []models.ReviewStatus
}

// FeedRepository lists the merged article and video feed.
type FeedRepository interface {
	// List returns one page of the union ordered newest first, plus the total for the same filter.
	List(ctx context.Context, f FeedFilter, limit, offset int) ([]models.FeedRow, int64, error)
}

type feedRepository struct {
	db *gorm.DB
}

// NewFeedRepository creates a new FeedRepository
func NewFeedRepository(db *gorm.DB) FeedRepository {
	return &feedRepository{db: db}
}

// Keywords splits a search string into whitespace-separated tokens.
func Keywords(content string) []string {
	return strings.Fields(content)
}

func (r *feedRepository) List(ctx context.Context, f FeedFilter, limit, offset int) ([]models.FeedRow, int64, error) {
	db := r.db.WithContext(ctx)
	union := r.union(db, f)

	var total int64
	if err := db.Table("(?) AS feed", union).Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}

	rows := make([]models.FeedRow, 0, limit)
	if total == 0 {
		return rows, 0, nil
	}
	if err := db.Table("(?) AS feed", union).
		Order("submit_time DESC, type ASC, id DESC").
		Limit(limit).
		Offset(offset).
		Scan(&rows).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return rows, total, nil
}

// union builds "<articles branch> UNION ALL <videos branch>". Count and page both wrap this
// same subquery so the total always matches the rows the filter can return.
func (r *feedRepository) union(db *gorm.DB, f FeedFilter) *gorm.DB {
	article := r.branch(db, kindSpecs[models.KindArticle], f)
	video := r.branch(db, kindSpecs[models.KindVideo], f)
	return db.Raw("? UNION ALL ?", article, video)
}

func (r *feedRepository) branch(db *gorm.DB, spec kindSpec, f FeedFilter) *gorm.DB {
	q := db.Session(&gorm.Session{NewDB: true}).Table(spec.table).
		Select(fmt.Sprintf("id, submit_time, title, %s AS preview, status, user_id, %d AS type", spec.preview, int(spec.kind)))

	statuses := f.Statuses
	if len(statuses) == 0 {
		statuses = []models.ReviewStatus{models.StatusApproved}
	}
	q = q.Where("status IN ?", statuses)

	if f.AuthorID != 0 {
		q = q.Where("user_id = ?", f.AuthorID)
	}
	if f.FollowerID != 0 {
		followed := db.Session(&gorm.Session{NewDB: true}).Model(&models.Follow{}).
			Select("followed_id").Where("follower_id = ?", f.FollowerID)
		q = q.Where("user_id IN (?)", followed)
	}
	if len(f.Keywords) > 0 {
		var conds []string
		var args []any
		for _, token := range f.Keywords {
			pattern := likePattern(token)
			for _, col := range spec.search {
				conds = append(conds, fmt.Sprintf("LOWER(%s) LIKE ? ESCAPE '!'", col))
				args = append(args, pattern)
			}
		}
		q = q.Where("("+strings.Join(conds, " OR ")+")", args...)
	}
	return q
}
