package service

import (
	"context"
	"errors"
	"testing"

	"egaku/internal/cache"
	"egaku/internal/featureflags"
	"egaku/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type summarizerStub struct {
	calls int
	err   error
}

func (s *summarizerStub) Summarize(_ context.Context, title, _ string, maxLen int) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	if maxLen != MaxSummaryLen {
		return "", errors.New("unexpected max length")
	}
	return "about " + title, nil
}

func setupRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	cache.SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { cache.SetClient(nil) })
	return mr
}

func TestSummaryService_CachesByContent(t *testing.T) {
	setupRedis(t)
	stub := &summarizerStub{}
	svc := NewSummaryService(stub, featureflags.NewManager("summary=on"))
	ctx := context.Background()

	got, err := svc.Summarize(ctx, SummaryInput{UserID: 1, Title: "Go", Content: "long text"})
	require.NoError(t, err)
	assert.Equal(t, "about Go", got)

	got, err = svc.Summarize(ctx, SummaryInput{UserID: 2, Title: "Go", Content: "long text"})
	require.NoError(t, err)
	assert.Equal(t, "about Go", got)
	assert.Equal(t, 1, stub.calls)

	_, err = svc.Summarize(ctx, SummaryInput{UserID: 1, Title: "Go", Content: "other text"})
	require.NoError(t, err)
	assert.Equal(t, 2, stub.calls)
}

func TestSummaryService_Gates(t *testing.T) {
	ctx := context.Background()

	_, err := NewSummaryService(&summarizerStub{}, featureflags.NewManager("summary=off")).
		Summarize(ctx, SummaryInput{UserID: 1, Title: "t", Content: "c"})
	assertCode(t, err, models.CodeNoPermission)

	_, err = NewSummaryService(nil, featureflags.NewManager("summary=on")).
		Summarize(ctx, SummaryInput{UserID: 1, Title: "t", Content: "c"})
	assertCode(t, err, models.CodeNoPermission)

	_, err = NewSummaryService(&summarizerStub{}, featureflags.NewManager("summary=on")).
		Summarize(ctx, SummaryInput{UserID: 1, Title: "t", Content: " "})
	assertValidationError(t, err)

	_, err = NewSummaryService(&summarizerStub{err: errors.New("quota")}, featureflags.NewManager("summary=on")).
		Summarize(ctx, SummaryInput{UserID: 1, Title: "t", Content: "c"})
	assertCode(t, err, models.CodeServerError)
}
