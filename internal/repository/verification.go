package repository

import (
	"context"
	"errors"
	"time"

	"egaku/internal/models"

	"gorm.io/gorm"
)

// VerificationRepository stores hashed one-time codes per email.
type VerificationRepository interface {
	// Replace drops every code for code.Email and inserts code.
	Replace(ctx context.Context, code *models.VerificationCode) error
	// Latest returns the most recently issued code for email, or nil.
	Latest(ctx context.Context, email string) (*models.VerificationCode, error)
	DeleteByEmail(ctx context.Context, email string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type verificationRepository struct {
	db *gorm.DB
}

func NewVerificationRepository(db *gorm.DB) VerificationRepository {
	return &verificationRepository{db: db}
}

func (r *verificationRepository) Replace(ctx context.Context, code *models.VerificationCode) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("email = ?", code.Email).Delete(&models.VerificationCode{}).Error; err != nil {
			return err
		}
		return tx.Create(code).Error
	})
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *verificationRepository) Latest(ctx context.Context, email string) (*models.VerificationCode, error) {
	var code models.VerificationCode
	err := r.db.WithContext(ctx).Where("email = ?", email).Order("id DESC").First(&code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &code, nil
}

func (r *verificationRepository) DeleteByEmail(ctx context.Context, email string) error {
	if err := r.db.WithContext(ctx).Where("email = ?", email).Delete(&models.VerificationCode{}).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *verificationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expire_time <= ?", now).Delete(&models.VerificationCode{})
	if res.Error != nil {
		return 0, models.NewInternalError(res.Error)
	}
	return res.RowsAffected, nil
}
