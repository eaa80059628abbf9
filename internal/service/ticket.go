package service

import (
	"context"
	"errors"
	"strconv"

	"egaku/internal/cache"
	"egaku/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var errTicketsUnavailable = models.NewAppError(models.CodeUnavailable, "realtime reminders unavailable")

// TicketService issues the short-lived single-use tickets that authorize websocket upgrades.
type TicketService struct{}

func NewTicketService() *TicketService {
	return &TicketService{}
}

// Issue stores a ticket for userID that expires after cache.WSTicketTTL.
func (s *TicketService) Issue(ctx context.Context, userID uint) (string, error) {
	rdb := cache.GetClient()
	if rdb == nil {
		return "", errTicketsUnavailable
	}
	ticket := uuid.NewString()
	if err := rdb.Set(ctx, cache.WSTicketKey(ticket), userID, cache.WSTicketTTL).Err(); err != nil {
		return "", models.NewInternalError(err)
	}
	return ticket, nil
}

// Redeem consumes ticket and returns its owner. Unknown, used or expired tickets yield NOT_LOGIN.
func (s *TicketService) Redeem(ctx context.Context, ticket string) (uint, error) {
	rdb := cache.GetClient()
	if rdb == nil {
		return 0, errTicketsUnavailable
	}
	if ticket == "" {
		return 0, models.ErrNotLogin
	}
	raw, err := rdb.GetDel(ctx, cache.WSTicketKey(ticket)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, models.ErrNotLogin
	}
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, models.ErrNotLogin
	}
	return uint(id), nil
}
