package migrations

import (
	"context"
	"time"

	"egaku/internal/models"

	"gorm.io/gorm"
)

const replyIndex = "idx_comment_owner_created"

// replyIndexComment carries only the columns of the incoming-replies index.
type replyIndexComment struct {
	TargetOwnerID uint      `gorm:"index:idx_comment_owner_created,priority:1"`
	CreatedAt     time.Time `gorm:"index:idx_comment_owner_created,priority:2"`
}

func (replyIndexComment) TableName() string { return "comments" }

func upReplyIndex(_ context.Context, db *gorm.DB) error {
	m := db.Migrator()
	if m.HasIndex(&replyIndexComment{}, replyIndex) {
		return nil
	}
	return m.CreateIndex(&replyIndexComment{}, replyIndex)
}

func downReplyIndex(_ context.Context, db *gorm.DB) error {
	m := db.Migrator()
	if !m.HasIndex(&models.Comment{}, replyIndex) {
		return nil
	}
	return m.DropIndex(&models.Comment{}, replyIndex)
}
