package service

import (
	"context"
	"testing"
	"time"

	"egaku/internal/cache"
	"egaku/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicketService_SingleUse(t *testing.T) {
	mr := setupRedis(t)
	svc := NewTicketService()
	ctx := context.Background()

	ticket, err := svc.Issue(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, cache.WSTicketTTL, mr.TTL(cache.WSTicketKey(ticket)))

	uid, err := svc.Redeem(ctx, ticket)
	require.NoError(t, err)
	assert.Equal(t, uint(42), uid)

	_, err = svc.Redeem(ctx, ticket)
	assertCode(t, err, models.CodeNotLogin)
	_, err = svc.Redeem(ctx, "")
	assertCode(t, err, models.CodeNotLogin)
}

func TestTicketService_Expires(t *testing.T) {
	mr := setupRedis(t)
	svc := NewTicketService()
	ctx := context.Background()

	ticket, err := svc.Issue(ctx, 7)
	require.NoError(t, err)
	mr.FastForward(31 * time.Second)
	_, err = svc.Redeem(ctx, ticket)
	assertCode(t, err, models.CodeNotLogin)
}

func TestTicketService_WithoutRedis(t *testing.T) {
	cache.SetClient(nil)
	_, err := NewTicketService().Issue(context.Background(), 1)
	assertCode(t, err, models.CodeUnavailable)
}
