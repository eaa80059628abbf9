package repository

import (
	"context"
	"strings"

	"egaku/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CollectionRepository manages bookmark edges.
type CollectionRepository interface {
	// Add is idempotent: collecting twice keeps the first edge and its time.
	Add(ctx context.Context, userID uint, ref models.SubmissionRef) error
	Remove(ctx context.Context, userID uint, ref models.SubmissionRef) error
	Exists(ctx context.Context, userID uint, ref models.SubmissionRef) (bool, error)
	// List pages userID's edges whose target is approved or written by userID.
	List(ctx context.Context, userID uint, limit, offset int) ([]models.Collection, int64, error)
}

type collectionRepository struct {
	db *gorm.DB
}

func NewCollectionRepository(db *gorm.DB) CollectionRepository {
	return &collectionRepository{db: db}
}

func (r *collectionRepository) Add(ctx context.Context, userID uint, ref models.SubmissionRef) error {
	edge := &models.Collection{UserID: userID, TargetKind: ref.Kind, TargetID: ref.ID}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(edge).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *collectionRepository) Remove(ctx context.Context, userID uint, ref models.SubmissionRef) error {
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND target_kind = ? AND target_id = ?", userID, ref.Kind, ref.ID).
		Delete(&models.Collection{}).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *collectionRepository) Exists(ctx context.Context, userID uint, ref models.SubmissionRef) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Collection{}).
		Where("user_id = ? AND target_kind = ? AND target_id = ?", userID, ref.Kind, ref.ID).
		Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

// visibleTargets matches edges whose target row is approved or owned by viewerID.
func visibleTargets(viewerID uint) (string, []any) {
	parts := make([]string, 0, 2)
	args := make([]any, 0, 6)
	for _, kind := range []models.SubmissionKind{models.KindArticle, models.KindVideo} {
		spec := kindSpecs[kind]
		parts = append(parts, "(target_kind = ? AND target_id IN (SELECT id FROM "+spec.table+" WHERE status = ? OR user_id = ?))")
		args = append(args, kind, models.StatusApproved, viewerID)
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

func (r *collectionRepository) List(ctx context.Context, userID uint, limit, offset int) ([]models.Collection, int64, error) {
	db := r.db.WithContext(ctx)
	visible, args := visibleTargets(userID)
	var total int64
	if err := db.Model(&models.Collection{}).Where("user_id = ?", userID).Where(visible, args...).
		Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	rows := make([]models.Collection, 0, limit)
	if total == 0 {
		return rows, 0, nil
	}
	if err := db.Where("user_id = ?", userID).Where(visible, args...).Order("created_at DESC, id DESC").
		Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return rows, total, nil
}
