// Package repository implements the data access layer for the application.
package repository

import (
	"context"
	"errors"

	"egaku/internal/cache"
	"egaku/internal/models"

	"gorm.io/gorm"
)

// ProfileUpdate carries the self-editable profile fields.
type ProfileUpdate struct {
	Nickname        string
	Sex             int
	Desc            string
	Avatar          string
	DisableReminder models.ReminderFlags
}

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByIDs(ctx context.Context, ids []uint) (map[uint]*models.User, error)
	GetByAccount(ctx context.Context, account string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// CreateAccount inserts user, stores hash(newID) as its password and consumes the email's codes.
	CreateAccount(ctx context.Context, user *models.User, hash func(id uint) string) error
	// ResetPassword replaces the password of the account owning email and consumes its codes.
	ResetPassword(ctx context.Context, email string, hash func(id uint) string) error
	// ChangeEmail moves userID to email and consumes the codes sent to it.
	ChangeEmail(ctx context.Context, userID uint, email string) error
	UpdateProfile(ctx context.Context, userID uint, in ProfileUpdate) error
	AddExp(ctx context.Context, userID uint, delta int) error
	SetAdmin(ctx context.Context, userID uint, admin bool) error
	ListAdmins(ctx context.Context) ([]models.User, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return cache.Aside(ctx, cache.UserKey(id), cache.UserTTL, func(ctx context.Context) (*models.User, error) {
		var user models.User
		if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, models.NewNoUserError(id)
			}
			return nil, models.NewInternalError(err)
		}
		return &user, nil
	})
}

func (r *userRepository) GetByIDs(ctx context.Context, ids []uint) (map[uint]*models.User, error) {
	out := make(map[uint]*models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []*models.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// GetByAccount returns nil, nil when no account matches.
func (r *userRepository) GetByAccount(ctx context.Context, account string) (*models.User, error) {
	return r.findOne(ctx, "account = ?", account)
}

// GetByEmail returns nil, nil when no account owns email.
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, "email = ?", email)
}

func (r *userRepository) findOne(ctx context.Context, query string, arg any) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where(query, arg).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

func (r *userRepository) CreateAccount(ctx context.Context, user *models.User, hash func(id uint) string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		user.Password = hash(user.ID)
		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).
			Update("password", user.Password).Error; err != nil {
			return err
		}
		return tx.Where("email = ?", user.Email).Delete(&models.VerificationCode{}).Error
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			if uniqueViolationColumn(err, "email") != "" {
				return models.ErrEmailExist
			}
			return models.ErrAccountExist
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *userRepository) ResetPassword(ctx context.Context, email string, hash func(id uint) string) error {
	var userID uint
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("email = ?", email).First(&user).Error; err != nil {
			return err
		}
		userID = user.ID
		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).
			Update("password", hash(user.ID)).Error; err != nil {
			return err
		}
		return tx.Where("email = ?", email).Delete(&models.VerificationCode{}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ErrEmailNotExist
		}
		return models.NewInternalError(err)
	}
	cache.InvalidateUser(ctx, userID)
	return nil
}

func (r *userRepository) ChangeEmail(ctx context.Context, userID uint, email string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).Where("id = ?", userID).Update("email", email)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("email = ?", email).Delete(&models.VerificationCode{}).Error
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			return models.ErrEmailExist
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNoUserError(userID)
		}
		return models.NewInternalError(err)
	}
	cache.InvalidateUser(ctx, userID)
	return nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, userID uint, in ProfileUpdate) error {
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(map[string]any{
		"nickname":         in.Nickname,
		"sex":              in.Sex,
		"description":      in.Desc,
		"avatar":           in.Avatar,
		"disable_reminder": in.DisableReminder,
	}).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	cache.InvalidateUser(ctx, userID)
	return nil
}

// AddExp increments the score in a single UPDATE so concurrent awards never lose an increment.
func (r *userRepository) AddExp(ctx context.Context, userID uint, delta int) error {
	if err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		Update("exp", gorm.Expr("exp + ?", delta)).Error; err != nil {
		return models.NewInternalError(err)
	}
	cache.InvalidateUser(ctx, userID)
	return nil
}

func (r *userRepository) SetAdmin(ctx context.Context, userID uint, admin bool) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("admin", admin)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNoUserError(userID)
	}
	cache.InvalidateUser(ctx, userID)
	return nil
}

func (r *userRepository) ListAdmins(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.db.WithContext(ctx).Where("admin = ?", true).Order("id").Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}
