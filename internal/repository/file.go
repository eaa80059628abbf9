package repository

import (
	"context"

	"egaku/internal/models"

	"gorm.io/gorm"
)

// FileRepository appends to the uploaded file log.
type FileRepository interface {
	Create(ctx context.Context, file *models.UploadedFile) error
}

type fileRepository struct {
	db *gorm.DB
}

func NewFileRepository(db *gorm.DB) FileRepository {
	return &fileRepository{db: db}
}

func (r *fileRepository) Create(ctx context.Context, file *models.UploadedFile) error {
	if err := r.db.WithContext(ctx).Create(file).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}
