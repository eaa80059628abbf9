package database

import "egaku/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Token{},
		&models.VerificationCode{},
		&models.UploadedFile{},
		&models.Article{},
		&models.Video{},
		&models.Comment{},
		&models.Follow{},
		&models.Collection{},
		&models.ServiceConfig{},
	}
}
