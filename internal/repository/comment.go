package repository

import (
	"context"
	"errors"

	"egaku/internal/models"

	"gorm.io/gorm"
)

// CommentRepository defines interface for comment operations
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	GetByID(ctx context.Context, id uint) (*models.Comment, error)
	ListByTarget(ctx context.Context, ref models.SubmissionRef, limit, offset int) ([]*models.Comment, int64, error)
	// ListReplies returns comments other users left on ownerID's submissions, newest first.
	ListReplies(ctx context.Context, ownerID uint, limit, offset int) ([]*models.Comment, int64, error)
	Delete(ctx context.Context, id uint) error
}

type commentRepository struct {
	db *gorm.DB
}

// NewCommentRepository creates a new CommentRepository
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	if err := r.db.WithContext(ctx).Omit("User").Create(comment).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *commentRepository) GetByID(ctx context.Context, id uint) (*models.Comment, error) {
	var comment models.Comment
	if err := r.db.WithContext(ctx).Preload("User").First(&comment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Comment", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &comment, nil
}

func (r *commentRepository) ListByTarget(ctx context.Context, ref models.SubmissionRef, limit, offset int) ([]*models.Comment, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Comment{}).
		Where("target_kind = ? AND target_id = ?", ref.Kind, ref.ID)
	return r.page(q, "created_at DESC, id DESC", limit, offset)
}

func (r *commentRepository) ListReplies(ctx context.Context, ownerID uint, limit, offset int) ([]*models.Comment, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Comment{}).
		Where("target_owner_id = ? AND user_id <> ?", ownerID, ownerID)
	return r.page(q, "created_at DESC, id DESC", limit, offset)
}

func (r *commentRepository) page(q *gorm.DB, order string, limit, offset int) ([]*models.Comment, int64, error) {
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	comments := make([]*models.Comment, 0, limit)
	if total == 0 {
		return comments, 0, nil
	}
	if err := q.Session(&gorm.Session{}).Preload("User").Order(order).
		Limit(limit).Offset(offset).Find(&comments).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return comments, total, nil
}

func (r *commentRepository) Delete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&models.Comment{}, id).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}
