package cache

import (
	"fmt"
	"time"

	"egaku/internal/models"
)

const (
	UserKeyPrefix      = "user:%d"
	UnreadKeyPrefix    = "unread:%s:%d"
	WSTicketKeyPrefix  = "ws_ticket:%s"
	ModerationTokenKey = "moderation:access_token"
	SummaryKeyPrefix   = "summary:%x"
)

const (
	UserTTL     = 5 * time.Minute
	WSTicketTTL = 30 * time.Second
	SummaryTTL  = 24 * time.Hour
)

func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

// UnreadKey holds the unread reminder counter of kind k for userID.
func UnreadKey(k models.ReminderKind, userID uint) string {
	return fmt.Sprintf(UnreadKeyPrefix, k, userID)
}

func WSTicketKey(ticket string) string {
	return fmt.Sprintf(WSTicketKeyPrefix, ticket)
}

// SummaryKey addresses a cached summary by the content digest.
func SummaryKey(digest []byte) string {
	return fmt.Sprintf(SummaryKeyPrefix, digest)
}
