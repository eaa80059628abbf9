package repository

import (
	"context"
	"errors"
	"time"

	"egaku/internal/models"

	"gorm.io/gorm"
)

// TokenRepository stores opaque session tokens.
type TokenRepository interface {
	Create(ctx context.Context, token *models.Token) error
	// Touch extends a live token to now+ttl and returns its owner. Expired or unknown tokens yield ErrNotLogin.
	Touch(ctx context.Context, token string, now time.Time, ttl time.Duration) (uint, error)
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type tokenRepository struct {
	db *gorm.DB
}

// NewTokenRepository creates a new TokenRepository
func NewTokenRepository(db *gorm.DB) TokenRepository {
	return &tokenRepository{db: db}
}

func (r *tokenRepository) Create(ctx context.Context, token *models.Token) error {
	if err := r.db.WithContext(ctx).Create(token).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *tokenRepository) Touch(ctx context.Context, token string, now time.Time, ttl time.Duration) (uint, error) {
	db := r.db.WithContext(ctx)
	// The expiry check and the slide happen in one conditional UPDATE.
	res := db.Model(&models.Token{}).
		Where("token = ? AND expire_time > ?", token, now).
		Update("expire_time", now.Add(ttl))
	if res.Error != nil {
		return 0, models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, models.ErrNotLogin
	}

	var row models.Token
	if err := db.Select("user_id").Where("token = ?", token).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, models.ErrNotLogin
		}
		return 0, models.NewInternalError(err)
	}
	return row.UserID, nil
}

func (r *tokenRepository) Delete(ctx context.Context, token string) error {
	if err := r.db.WithContext(ctx).Where("token = ?", token).Delete(&models.Token{}).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *tokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expire_time <= ?", now).Delete(&models.Token{})
	if res.Error != nil {
		return 0, models.NewInternalError(res.Error)
	}
	return res.RowsAffected, nil
}
