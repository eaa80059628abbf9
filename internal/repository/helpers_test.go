package repository

import (
	"testing"
	"time"

	"egaku/internal/database"
	"egaku/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

// setupSQLiteDB returns a migrated in-memory database private to the test.
func setupSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(database.PersistentModels()...))
	return db
}

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func seedUser(t *testing.T, db *gorm.DB, account string) *models.User {
	t.Helper()
	u := &models.User{
		Account:    account,
		Email:      account + "@x.com",
		Password:   "hash",
		Nickname:   account,
		SignupTime: baseTime,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func seedArticle(t *testing.T, db *gorm.DB, userID uint, title, text string, status models.ReviewStatus, at time.Time) *models.Article {
	t.Helper()
	a := &models.Article{
		UserID:     userID,
		SubmitTime: at,
		Title:      title,
		Content:    "<p>" + text + "</p>",
		PlainText:  text,
		Status:     status,
	}
	require.NoError(t, db.Create(a).Error)
	return a
}

func seedVideo(t *testing.T, db *gorm.DB, userID uint, title string, status models.ReviewStatus, at time.Time) *models.Video {
	t.Helper()
	v := &models.Video{
		UserID:     userID,
		SubmitTime: at,
		Title:      title,
		Cover:      "/files/cover.webp",
		Video:      "/files/video.mp4",
		Status:     status,
	}
	require.NoError(t, db.Create(v).Error)
	return v
}
