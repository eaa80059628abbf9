package migrations

import (
	"context"

	"egaku/internal/models"

	"gorm.io/gorm"
)

func initTables() []interface{} {
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

func upInit(_ context.Context, db *gorm.DB) error {
	return db.AutoMigrate(initTables()...)
}

func downInit(_ context.Context, db *gorm.DB) error {
	tables := initTables()
	// Drop in reverse so dependents go first.
	for i := len(tables) - 1; i >= 0; i-- {
		if err := db.Migrator().DropTable(tables[i]); err != nil {
			return err
		}
	}
	return nil
}
