package notifications

import (
	"log/slog"
	"sync"
	"time"

	"egaku/internal/middleware"
	"egaku/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10

	// Reminder sockets are push-only; inbound frames are read and discarded.
	maxInboundFrame = 1024
	sessionBuffer   = 32
)

// Session is one open reminder socket.
type Session struct {
	UserID uint

	conn      *websocket.Conn
	frames    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(userID uint, conn *websocket.Conn) *Session {
	return &Session{
		UserID: userID,
		conn:   conn,
		frames: make(chan []byte, sessionBuffer),
		done:   make(chan struct{}),
	}
}

// Enqueue queues frame without blocking and reports whether it was accepted.
// Frames for a full or closed session are dropped; clients re-read their unread
// counters on reconnect.
func (s *Session) Enqueue(frame []byte) bool {
	select {
	case <-s.done:
		observability.WebSocketDrops.WithLabelValues("closed").Inc()
		return false
	default:
	}
	select {
	case s.frames <- frame:
		return true
	default:
		observability.WebSocketDrops.WithLabelValues("full").Inc()
		return false
	}
}

// Serve pumps queued frames to the socket until the peer goes away or the session
// is closed. It blocks in the read loop on the caller's goroutine.
func (s *Session) Serve() {
	go s.writeLoop()
	s.readLoop()
}

func (s *Session) readLoop() {
	defer s.close(false)

	s.conn.SetReadLimit(maxInboundFrame)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				middleware.Logger.Debug("reminder socket dropped",
					slog.Uint64("user_id", uint64(s.UserID)), slog.String("error", err.Error()))
			}
			return
		}
	}
}

func (s *Session) writeLoop() {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		var err error
		select {
		case <-s.done:
			return
		case frame := <-s.frames:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err = s.conn.WriteMessage(websocket.TextMessage, frame)
		case <-ping.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err = s.conn.WriteMessage(websocket.PingMessage, nil)
		}
		if err != nil {
			s.close(false)
			return
		}
	}
}

// close stops the session once. goingAway sends a close frame first.
func (s *Session) close(goingAway bool) {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.conn == nil {
			return
		}
		if goingAway {
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
		}
		_ = s.conn.Close()
	})
}
