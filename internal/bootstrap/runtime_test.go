package bootstrap

import (
	"context"
	"testing"

	"egaku/internal/config"
	"egaku/internal/database"
	"egaku/internal/models"
	"egaku/internal/repository"
	"egaku/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(database.PersistentModels()...))
	return db
}

func TestApplyServiceConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("empty table leaves config alone", func(t *testing.T) {
		db := setupDB(t)
		cfg := &config.Config{MailFrom: config.DefaultMailFrom}
		require.NoError(t, ApplyServiceConfig(ctx, cfg, repository.NewServiceConfigRepository(db)))
		assert.Empty(t, cfg.SMTPHost)
		assert.Equal(t, config.DefaultMailFrom, cfg.MailFrom)
	})

	t.Run("row fills blanks only", func(t *testing.T) {
		db := setupDB(t)
		require.NoError(t, db.Create(&models.ServiceConfig{
			SenderEmail:    "noreply@egaku.test",
			SMTPServer:     "smtp.egaku.test",
			SMTPPort:       587,
			SenderPassword: "mailpw",
			APIKey:         "db-key",
			SecretKey:      "db-secret",
		}).Error)

		cfg := &config.Config{
			MailFrom:         config.DefaultMailFrom,
			ModerationAPIKey: "env-key",
		}
		require.NoError(t, ApplyServiceConfig(ctx, cfg, repository.NewServiceConfigRepository(db)))

		assert.Equal(t, "smtp.egaku.test", cfg.SMTPHost)
		assert.Equal(t, 587, cfg.SMTPPort)
		assert.Equal(t, "noreply@egaku.test", cfg.SMTPUser)
		assert.Equal(t, "mailpw", cfg.SMTPPassword)
		assert.Equal(t, "noreply@egaku.test", cfg.MailFrom)
		assert.Equal(t, "env-key", cfg.ModerationAPIKey)
		assert.Equal(t, "db-secret", cfg.ModerationSecretKey)
	})
}

func TestEnsureDevRootAdmin(t *testing.T) {
	ctx := context.Background()

	t.Run("skipped outside development", func(t *testing.T) {
		db := setupDB(t)
		cfg := &config.Config{Env: "production", DevBootstrapRoot: true, DevRootPassword: "pw123456"}
		require.NoError(t, ensureDevRootAdmin(ctx, cfg, db))

		var n int64
		require.NoError(t, db.Model(&models.User{}).Count(&n).Error)
		assert.Zero(t, n)
	})

	t.Run("requires a password", func(t *testing.T) {
		db := setupDB(t)
		cfg := &config.Config{Env: "development", DevBootstrapRoot: true}
		assert.Error(t, ensureDevRootAdmin(ctx, cfg, db))
	})

	t.Run("creates then repairs the root account", func(t *testing.T) {
		db := setupDB(t)
		cfg := &config.Config{
			Env:              "development",
			DevBootstrapRoot: true,
			DevRootAccount:   "root",
			DevRootEmail:     "Root@Egaku.Local",
			DevRootPassword:  "first-password",
		}
		require.NoError(t, ensureDevRootAdmin(ctx, cfg, db))

		var root models.User
		require.NoError(t, db.Where("account = ?", "root").First(&root).Error)
		assert.True(t, root.Admin)
		assert.Equal(t, "root@egaku.local", root.Email)
		assert.Equal(t, service.HashPassword("first-password", root.ID), root.Password)

		require.NoError(t, db.Model(&root).Update("admin", false).Error)
		cfg.DevRootPassword = "second-password"
		require.NoError(t, ensureDevRootAdmin(ctx, cfg, db))

		var again models.User
		require.NoError(t, db.First(&again, root.ID).Error)
		assert.True(t, again.Admin)
		assert.Equal(t, service.HashPassword("second-password", root.ID), again.Password)

		var n int64
		require.NoError(t, db.Model(&models.User{}).Count(&n).Error)
		assert.Equal(t, int64(1), n)
	})
}
