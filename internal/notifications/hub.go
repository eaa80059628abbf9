package notifications

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"egaku/internal/middleware"
	"egaku/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	sessionsPerUser = 12
	maxSessions     = 10000
)

var (
	ErrServerFull = errors.New("server connection limit reached")
	ErrUserFull   = errors.New("user connection limit reached")
)

// Hub tracks the reminder sockets open on this instance, keyed by user.
type Hub struct {
	mu       sync.RWMutex
	sessions map[uint]map[*Session]struct{}
	total    int
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[uint]map[*Session]struct{})}
}

// Name identifies the hub in logs.
func (h *Hub) Name() string { return "reminder hub" }

// Attach registers conn for userID. conn may be nil in tests.
func (h *Hub) Attach(userID uint, conn *websocket.Conn) (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.total >= maxSessions {
		return nil, ErrServerFull
	}
	set := h.sessions[userID]
	if len(set) >= sessionsPerUser {
		return nil, ErrUserFull
	}
	if set == nil {
		set = make(map[*Session]struct{})
		h.sessions[userID] = set
	}

	s := newSession(userID, conn)
	set[s] = struct{}{}
	h.total++
	observability.ActiveWebSockets.Inc()
	return s, nil
}

// Detach removes s and closes it. Detaching twice is a no-op.
func (h *Hub) Detach(s *Session) {
	h.mu.Lock()
	set := h.sessions[s.UserID]
	if _, ok := set[s]; ok {
		delete(set, s)
		h.total--
		observability.ActiveWebSockets.Dec()
		if len(set) == 0 {
			delete(h.sessions, s.UserID)
		}
	}
	h.mu.Unlock()
	s.close(false)
}

// Deliver queues frame on every session of userID and returns how many accepted it.
func (h *Hub) Deliver(userID uint, frame []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for s := range h.sessions[userID] {
		if s.Enqueue(frame) {
			n++
		}
	}
	return n
}

// Online reports whether userID has at least one socket on this instance.
func (h *Hub) Online(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID]) > 0
}

// Run forwards reminders published on any instance to the local sockets of their
// recipients until ctx ends.
func (h *Hub) Run(ctx context.Context, n *Notifier) error {
	return n.Subscribe(ctx, func(channel, payload string) {
		userID, ok := ParseUserChannel(channel)
		if !ok {
			middleware.Logger.Warn("ignoring reminder on unexpected channel", slog.String("channel", channel))
			return
		}
		h.Deliver(userID, []byte(payload))
	})
}

// Shutdown sends a going-away close frame to every socket and forgets them.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[uint]map[*Session]struct{})
	observability.ActiveWebSockets.Sub(float64(h.total))
	h.total = 0
	h.mu.Unlock()

	for _, set := range sessions {
		for s := range set {
			s.close(true)
		}
	}
	return nil
}
