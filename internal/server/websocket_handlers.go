package server

import (
	"context"
	"log/slog"

	"egaku/internal/featureflags"
	"egaku/internal/middleware"
	"egaku/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// IssueWSTicket hands the signed-in user a short-lived single-use ticket for GET /api/ws.
// Browsers cannot set headers on a websocket upgrade, so the token never rides in the URL.
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	uid := middleware.UserID(c)
	if !s.featureFlags.Enabled(featureflags.RealtimeReminders, uid) {
		return respondError(c, models.ErrNoPermission)
	}
	ticket, err := s.ticketService.Issue(c.UserContext(), uid)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.Map{"ticket": ticket})
}

// WebSocketTicketAuth redeems the ?ticket= query parameter before the upgrade.
func (s *Server) WebSocketTicketAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		uid, err := s.ticketService.Redeem(c.UserContext(), c.Query("ticket"))
		if err != nil {
			code := models.ErrorCode(err)
			c.Locals("errorCode", code)
			return c.Status(fiber.StatusUnauthorized).JSON(envelope{Success: false, Data: fiber.Map{"error": code}})
		}
		c.Locals("userID", uid)
		return c.Next()
	}
}

// WebsocketHandler streams reminder frames published for the connected user. The
// first frame is the current unread snapshot.
func (s *Server) WebsocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		uid, ok := conn.Locals("userID").(uint)
		if !ok || uid == 0 {
			_ = conn.Close()
			return
		}

		session, err := s.hub.Attach(uid, conn)
		if err != nil {
			middleware.Logger.Warn("reminder socket rejected",
				slog.Uint64("user_id", uint64(uid)), slog.String("error", err.Error()))
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}
		defer s.hub.Detach(session)

		ctx := middleware.WithUserID(context.Background(), uid)
		if frame, err := s.notifier.UnreadFrame(ctx, uid); err != nil {
			middleware.Logger.WarnContext(ctx, "unread snapshot failed", slog.String("error", err.Error()))
		} else {
			session.Enqueue(frame)
		}
		session.Serve()
	})
}
