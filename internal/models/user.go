// Package models contains data structures for the application's domain models.
package models

import "time"

// User represents a registered account.
type User struct {
	ID              uint          `gorm:"primaryKey" json:"id"`
	Account         string        `gorm:"size:16;uniqueIndex;not null" json:"account"`
	Email           string        `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Password        string        `gorm:"size:128;not null" json:"-"`
	Sex             int           `gorm:"not null;default:0" json:"sex"`
	Nickname        string        `gorm:"size:50" json:"nickname"`
	Avatar          string        `gorm:"size:255" json:"avatar"`
	Desc            string        `gorm:"column:description;size:255" json:"desc"`
	Exp             int           `gorm:"not null;default:0" json:"exp"`
	SignupTime      time.Time     `gorm:"not null" json:"signup_time"`
	Admin           bool          `gorm:"not null;default:false" json:"admin"`
	DisableReminder ReminderFlags `gorm:"not null;default:0" json:"disable_reminder"`
}

// Token is an opaque session credential. Several may be live per user.
type Token struct {
	ID         uint      `gorm:"primaryKey"`
	UserID     uint      `gorm:"not null;index"`
	Token      string    `gorm:"size:64;uniqueIndex;not null"`
	ExpireTime time.Time `gorm:"not null;index"`
}

// VerificationCode is a one-time code mailed to an address. Only the bcrypt hash is stored.
type VerificationCode struct {
	ID         uint      `gorm:"primaryKey"`
	Email      string    `gorm:"size:255;not null;index"`
	CodeHash   string    `gorm:"size:60;not null"`
	ExpireTime time.Time `gorm:"not null;index"`
	CreatedAt  time.Time
}

// UploadedFile is the append-only log of stored uploads.
type UploadedFile struct {
	ID         uint      `gorm:"primaryKey"`
	URL        string    `gorm:"size:512;not null"`
	Filename   string    `gorm:"size:255;not null"`
	StorageKey string    `gorm:"size:255;not null"`
	Size       int64     `gorm:"not null"`
	UserID     uint      `gorm:"not null;index"`
	UploadTime time.Time `gorm:"not null"`
}

// ServiceConfig holds SMTP and moderation API credentials managed in the database.
// Non-empty columns fill configuration values left empty by the environment.
type ServiceConfig struct {
	SenderEmail    string `gorm:"primaryKey;size:255"`
	SMTPServer     string `gorm:"column:smtp_server;size:255"`
	SMTPPort       int    `gorm:"column:smtp_port"`
	SenderPassword string `gorm:"size:255"`
	APIKey         string `gorm:"size:255"`
	SecretKey      string `gorm:"size:255"`
}

// TableName keeps the original single-row table name.
func (ServiceConfig) TableName() string {
	return "service_config"
}
