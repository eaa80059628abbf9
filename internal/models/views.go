package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// StringID is a numeric identifier that travels as a decimal string in JSON.
// Decoding also accepts a bare number.
type StringID uint

func (id StringID) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(id), 10))
}

func (id *StringID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = 0
		return nil
	}
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		if raw == "" {
			*id = 0
			return nil
		}
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q", raw)
	}
	*id = StringID(v)
	return nil
}

// Millis renders t as epoch milliseconds, 0 for the zero time.
func Millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// ListResult is the paginated list shape shared by every listing endpoint.
type ListResult[T any] struct {
	Total    int64 `json:"total"`
	DataList []T   `json:"dataList"`
}

// UserBrief is the public author block embedded in other views.
type UserBrief struct {
	UID       StringID `json:"uid"`
	Account   string   `json:"account"`
	Nickname  string   `json:"nickname"`
	Avatar    string   `json:"avatar"`
	Sex       int      `json:"sex"`
	Exp       int      `json:"exp"`
	CanFollow bool     `json:"canFollow"`
}

// NewUserBrief builds the public block for u.
func NewUserBrief(u *User) UserBrief {
	return UserBrief{
		UID:      StringID(u.ID),
		Account:  u.Account,
		Nickname: u.Nickname,
		Avatar:   u.Avatar,
		Sex:      u.Sex,
		Exp:      u.Exp,
	}
}

// UserInfo is the private profile returned to the signed-in user.
type UserInfo struct {
	UID          StringID              `json:"uid"`
	Account      string                `json:"account"`
	Email        string                `json:"email"`
	Sex          int                   `json:"sex"`
	Nickname     string                `json:"nickname"`
	Avatar       string                `json:"avatar"`
	Desc         string                `json:"desc"`
	Exp          int                   `json:"exp"`
	SignupTime   int64                 `json:"signupTime"`
	Admin        bool                  `json:"admin"`
	MsgNum       map[ReminderKind]int  `json:"msgNum"`
	ShowReminder map[ReminderKind]bool `json:"showReminder"`
}

// UserDetail is the public profile page of any user.
type UserDetail struct {
	UID           StringID `json:"uid"`
	Account       string   `json:"account"`
	Sex           int      `json:"sex"`
	Nickname      string   `json:"nickname"`
	Avatar        string   `json:"avatar"`
	Desc          string   `json:"desc"`
	Exp           int      `json:"exp"`
	SignupTime    int64    `json:"signupTime"`
	ArticleTotal  int64    `json:"articleTotal"`
	VideoTotal    int64    `json:"videoTotal"`
	FollowerTotal int64    `json:"followerTotal"`
	CanFollow     bool     `json:"canFollow"`
}

// FeedRow is one row of the article/video union.
type FeedRow struct {
	ID         uint
	Kind       SubmissionKind `gorm:"column:type"`
	SubmitTime time.Time
	Title      string
	Preview    string
	Status     ReviewStatus
	UserID     uint
}

// FeedItem is the homogeneous preview shown in every feed and search result.
type FeedItem struct {
	ID               StringID       `json:"id"`
	SubmitTime       int64          `json:"submitTime"`
	Title            string         `json:"title"`
	Preview          string         `json:"preview"`
	Type             SubmissionKind `json:"type"`
	Status           ReviewStatus   `json:"status"`
	UploaderAccount  string         `json:"uploaderAccount,omitempty"`
	UploaderNickname string         `json:"uploaderNickname,omitempty"`
}

// SubmissionItem is an owner-facing entry that includes moderation state.
type SubmissionItem struct {
	ID         StringID     `json:"id"`
	SubmitTime int64        `json:"submitTime"`
	Title      string       `json:"title"`
	Content    string       `json:"content,omitempty"`
	Preview    string       `json:"preview,omitempty"`
	Cover      string       `json:"cover,omitempty"`
	Video      string       `json:"video,omitempty"`
	Status     ReviewStatus `json:"status"`
	Desc       string       `json:"desc,omitempty"`
}

// SubmissionDetail is the full article or video page.
type SubmissionDetail struct {
	ID         StringID       `json:"id"`
	Type       SubmissionKind `json:"type"`
	Uploader   UserBrief      `json:"uploader"`
	SubmitTime int64          `json:"submitTime"`
	Title      string         `json:"title"`
	Content    string         `json:"content,omitempty"`
	Cover      string         `json:"cover,omitempty"`
	Video      string         `json:"video,omitempty"`
	Status     ReviewStatus   `json:"status"`
	Desc       string         `json:"desc,omitempty"`
}

// CommentItem is a comment as shown under a submission.
type CommentItem struct {
	ID        StringID  `json:"id"`
	Content   string    `json:"content"`
	Time      int64     `json:"time"`
	Sender    UserBrief `json:"sender"`
	CanDelete bool      `json:"canDelete"`
}

// ReplyItem is a comment received on one of the caller's submissions.
type ReplyItem struct {
	ID           StringID       `json:"id"`
	SubmissionID StringID       `json:"submissionId"`
	Title        string         `json:"title"`
	UID          StringID       `json:"uid"`
	Account      string         `json:"account"`
	Nickname     string         `json:"nickname"`
	Content      string         `json:"content"`
	Time         int64          `json:"time"`
	Type         SubmissionKind `json:"type"`
}

// CollectionItem is a bookmark with its target preview.
type CollectionItem struct {
	ID           StringID       `json:"id"`
	SubmissionID StringID       `json:"submissionId"`
	Time         int64          `json:"time"`
	Title        string         `json:"title"`
	Type         SubmissionKind `json:"type"`
	Preview      string         `json:"preview"`
}
