package models

import "time"

// Comment is a reply on an article or video. TargetOwnerID is copied from the
// submission at write time so a user's incoming replies can be listed by index.
type Comment struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	UserID        uint           `gorm:"not null;index" json:"user_id"`
	User          User           `gorm:"foreignKey:UserID" json:"user"`
	Content       string         `gorm:"size:1000;not null" json:"content"`
	TargetKind    SubmissionKind `gorm:"not null;index:idx_comment_target,priority:1" json:"target_kind"`
	TargetID      uint           `gorm:"not null;index:idx_comment_target,priority:2" json:"target_id"`
	TargetOwnerID uint           `gorm:"not null;index" json:"target_owner_id"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Target returns the submission this comment belongs to.
func (c *Comment) Target() SubmissionRef {
	return SubmissionRef{Kind: c.TargetKind, ID: c.TargetID}
}

// Follow is a directed edge from follower to followed.
type Follow struct {
	ID         uint      `gorm:"primaryKey"`
	FollowerID uint      `gorm:"not null;uniqueIndex:idx_follow_edge,priority:1"`
	FollowedID uint      `gorm:"not null;uniqueIndex:idx_follow_edge,priority:2;index"`
	CreatedAt  time.Time
}

// Collection is a bookmark of a submission by a user.
type Collection struct {
	ID         uint           `gorm:"primaryKey"`
	UserID     uint           `gorm:"not null;uniqueIndex:idx_collection_edge,priority:1"`
	TargetKind SubmissionKind `gorm:"not null;uniqueIndex:idx_collection_edge,priority:2"`
	TargetID   uint           `gorm:"not null;uniqueIndex:idx_collection_edge,priority:3"`
	CreatedAt  time.Time
}

// Target returns the bookmarked submission.
func (c *Collection) Target() SubmissionRef {
	return SubmissionRef{Kind: c.TargetKind, ID: c.TargetID}
}
