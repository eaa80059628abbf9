// Package notifications delivers realtime reminders and keeps unread counters.
package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"

	"egaku/internal/cache"
	"egaku/internal/middleware"
	"egaku/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	userChannelPrefix  = "notifications:user:"
	userChannelPattern = userChannelPrefix + "*"
)

// Reminder event types.
const (
	EventReply      = "reply"
	EventModeration = "moderation"
	// EventUnread carries the full counter map; it is the first frame on a new socket.
	EventUnread = "unread"
)

// Reminder is the JSON frame pushed to a user's sockets.
type Reminder struct {
	Type   string `json:"type"`
	Unread int64  `json:"unread,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// ReplyData describes a new comment on one of the recipient's submissions.
type ReplyData struct {
	CommentID    models.StringID       `json:"commentId"`
	SubmissionID models.StringID       `json:"submissionId"`
	Kind         models.SubmissionKind `json:"type"`
	Account      string                `json:"account"`
	Nickname     string                `json:"nickname"`
}

// ModerationData reports a moderation outcome to the author.
type ModerationData struct {
	SubmissionID models.StringID       `json:"submissionId"`
	Kind         models.SubmissionKind `json:"type"`
	Status       models.ReviewStatus   `json:"status"`
	Desc         string                `json:"desc,omitempty"`
}

// Notifier provides helpers to publish reminders into Redis channels
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// PublishUser sends a raw payload to a user's channel.
func (n *Notifier) PublishUser(ctx context.Context, userID uint, payload string) error {
	if n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, UserChannel(userID), payload).Err()
}

// PublishReminder encodes r and publishes it to userID.
func (n *Notifier) PublishReminder(ctx context.Context, userID uint, r Reminder) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal reminder: %w", err)
	}
	return n.PublishUser(ctx, userID, string(b))
}

// IncrUnread bumps the unread counter of kind for userID and returns the new value.
func (n *Notifier) IncrUnread(ctx context.Context, kind models.ReminderKind, userID uint) (int64, error) {
	if n.rdb == nil {
		return 0, nil
	}
	return n.rdb.Incr(ctx, cache.UnreadKey(kind, userID)).Result()
}

// Unread returns every unread counter for userID. Missing counters read as zero.
func (n *Notifier) Unread(ctx context.Context, userID uint) (map[models.ReminderKind]int, error) {
	out := make(map[models.ReminderKind]int, len(models.ReminderKinds))
	for _, k := range models.ReminderKinds {
		out[k] = 0
	}
	if n.rdb == nil {
		return out, nil
	}
	for _, k := range models.ReminderKinds {
		v, err := n.rdb.Get(ctx, cache.UnreadKey(k, userID)).Int()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return out, err
		}
		out[k] = v
	}
	return out, nil
}

// ResetUnread clears the unread counter of kind for userID.
func (n *Notifier) ResetUnread(ctx context.Context, kind models.ReminderKind, userID uint) error {
	if n.rdb == nil {
		return nil
	}
	return n.rdb.Del(ctx, cache.UnreadKey(kind, userID)).Err()
}

// Subscribe listens on every user channel and calls onMessage for each payload until
// ctx ends. It returns once the subscription is confirmed, so reminders published
// after it returns are not lost.
func (n *Notifier) Subscribe(ctx context.Context, onMessage func(channel, payload string)) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, userChannelPattern)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}

	go func() {
		defer func() { _ = sub.Close() }()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				dispatch(onMessage, msg)
			}
		}
	}()
	return nil
}

func dispatch(onMessage func(channel, payload string), msg *redis.Message) {
	defer func() {
		if r := recover(); r != nil {
			middleware.Logger.Error("panic in reminder subscriber",
				slog.String("channel", msg.Channel),
				slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
		}
	}()
	onMessage(msg.Channel, msg.Payload)
}

// UnreadFrame encodes the unread counters of userID as an EventUnread reminder.
func (n *Notifier) UnreadFrame(ctx context.Context, userID uint) ([]byte, error) {
	counts, err := n.Unread(ctx, userID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Reminder{Type: EventUnread, Data: counts})
}

// UserChannel derives the Redis channel name for a user.
func UserChannel(userID uint) string {
	return userChannelPrefix + strconv.FormatUint(uint64(userID), 10)
}

// ParseUserChannel is the inverse of UserChannel.
func ParseUserChannel(channel string) (uint, bool) {
	rest, ok := strings.CutPrefix(channel, userChannelPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(rest, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
