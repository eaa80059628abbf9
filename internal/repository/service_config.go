package repository

import (
	"context"
	"errors"

	"egaku/internal/models"

	"gorm.io/gorm"
)

// ServiceConfigRepository reads the credentials row managed by operators.
type ServiceConfigRepository interface {
	// Get returns the first row, or nil when the table is empty.
	Get(ctx context.Context) (*models.ServiceConfig, error)
}

type serviceConfigRepository struct {
	db *gorm.DB
}

func NewServiceConfigRepository(db *gorm.DB) ServiceConfigRepository {
	return &serviceConfigRepository{db: db}
}

func (r *serviceConfigRepository) Get(ctx context.Context) (*models.ServiceConfig, error) {
	var row models.ServiceConfig
	if err := r.db.WithContext(ctx).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &row, nil
}
