package models

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// PreviewLength is the number of characters of article text shown in listings.
const PreviewLength = 100

// SubmissionKind discriminates the two submission tables. Values are part of the wire format.
type SubmissionKind int

const (
	KindArticle SubmissionKind = 0
	KindVideo   SubmissionKind = 1
)

// Valid reports whether k names a known submission table.
func (k SubmissionKind) Valid() bool {
	return k == KindArticle || k == KindVideo
}

func (k SubmissionKind) String() string {
	switch k {
	case KindArticle:
		return "article"
	case KindVideo:
		return "video"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// SubmissionRef identifies one article or video.
type SubmissionRef struct {
	Kind SubmissionKind `json:"type"`
	ID   uint           `json:"id"`
}

func (r SubmissionRef) String() string {
	return fmt.Sprintf("%s %d", r.Kind, r.ID)
}

// ReviewStatus is the moderation state of a submission.
type ReviewStatus int

const (
	StatusPending  ReviewStatus = 0
	StatusApproved ReviewStatus = 1
	StatusRejected ReviewStatus = 2
	StatusResubmit ReviewStatus = 3
)

// Valid reports whether s is a known status.
func (s ReviewStatus) Valid() bool {
	return s >= StatusPending && s <= StatusResubmit
}

// Resubmittable reports whether an owner may edit and resubmit from this status.
func (s ReviewStatus) Resubmittable() bool {
	return s == StatusRejected || s == StatusResubmit
}

// Article is a rich-text submission. PlainText is what moderation and search see.
type Article struct {
	ID         uint         `gorm:"primaryKey" json:"id"`
	UserID     uint         `gorm:"not null;index" json:"user_id"`
	SubmitTime time.Time    `gorm:"not null;index" json:"submit_time"`
	Title      string       `gorm:"size:255;not null" json:"title"`
	Content    string       `gorm:"type:text;not null" json:"content"`
	PlainText  string       `gorm:"type:text;not null" json:"plain_text"`
	Status     ReviewStatus `gorm:"not null;default:0;index" json:"status"`
	Desc       string       `gorm:"column:description;size:1024" json:"desc"`
}

// Ref returns the article's submission reference.
func (a *Article) Ref() SubmissionRef {
	return SubmissionRef{Kind: KindArticle, ID: a.ID}
}

// Video is a media submission. Cover and Video hold uploaded file URLs.
type Video struct {
	ID         uint         `gorm:"primaryKey" json:"id"`
	UserID     uint         `gorm:"not null;index" json:"user_id"`
	SubmitTime time.Time    `gorm:"not null;index" json:"submit_time"`
	Title      string       `gorm:"size:255;not null" json:"title"`
	Cover      string       `gorm:"size:512;not null" json:"cover"`
	Video      string       `gorm:"column:video_url;size:512;not null" json:"video"`
	Status     ReviewStatus `gorm:"not null;default:0;index" json:"status"`
	Desc       string       `gorm:"column:description;size:1024" json:"desc"`
}

// Ref returns the video's submission reference.
func (v *Video) Ref() SubmissionRef {
	return SubmissionRef{Kind: KindVideo, ID: v.ID}
}

// Submission is the kind-independent view of an article or video row.
type Submission struct {
	Ref        SubmissionRef
	UserID     uint
	SubmitTime time.Time
	Title      string
	Status     ReviewStatus
	Desc       string
	// ModerationText is the text sent to the censor: plain text for articles, title for videos.
	ModerationText string
	Article        *Article
	Video          *Video
}

// SubmissionFromArticle wraps an article.
func SubmissionFromArticle(a *Article) *Submission {
	return &Submission{
		Ref:            a.Ref(),
		UserID:         a.UserID,
		SubmitTime:     a.SubmitTime,
		Title:          a.Title,
		Status:         a.Status,
		Desc:           a.Desc,
		ModerationText: a.PlainText,
		Article:        a,
	}
}

// SubmissionFromVideo wraps a video.
func SubmissionFromVideo(v *Video) *Submission {
	return &Submission{
		Ref:            v.Ref(),
		UserID:         v.UserID,
		SubmitTime:     v.SubmitTime,
		Title:          v.Title,
		Status:         v.Status,
		Desc:           v.Desc,
		ModerationText: v.Title,
		Video:          v,
	}
}

// VisibleTo reports whether viewerID may see s: approved work is public, anything else only to its author.
func (s *Submission) VisibleTo(viewerID uint) bool {
	return s.Status == StatusApproved || s.UserID == viewerID
}

// Preview is the listing preview: the start of an article's plain text or a video's cover.
func (s *Submission) Preview() string {
	switch {
	case s.Article != nil:
		text := s.Article.PlainText
		if utf8.RuneCountInString(text) <= PreviewLength {
			return text
		}
		return string([]rune(text)[:PreviewLength])
	case s.Video != nil:
		return s.Video.Cover
	}
	return ""
}

// ModerationVerdict is the outcome reported by a moderation backend.
type ModerationVerdict struct {
	Approved bool
	Reasons  []string
}
