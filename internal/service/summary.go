package service

import (
	"context"
	"crypto/sha256"
	"strings"

	"egaku/internal/cache"
	"egaku/internal/featureflags"
	"egaku/internal/models"
)

// MaxSummaryLen bounds generated article summaries.
const MaxSummaryLen = 200

// Summarizer produces a short summary of an article.
type Summarizer interface {
	Summarize(ctx context.Context, title, content string, maxLen int) (string, error)
}

type SummaryService struct {
	summarizer Summarizer
	flags      *featureflags.Manager
}

type SummaryInput struct {
	UserID  uint
	Title   string
	Content string
}

func NewSummaryService(summarizer Summarizer, flags *featureflags.Manager) *SummaryService {
	return &SummaryService{summarizer: summarizer, flags: flags}
}

// Summarize returns a cached or freshly generated summary of the article text.
func (s *SummaryService) Summarize(ctx context.Context, in SummaryInput) (string, error) {
	if !s.flags.Enabled(featureflags.Summary, in.UserID) || s.summarizer == nil {
		return "", models.ErrNoPermission
	}
	if strings.TrimSpace(in.Content) == "" {
		return "", models.NewValidationError("content is required")
	}

	digest := sha256.Sum256([]byte(in.Title + "\x00" + in.Content))
	return cache.Aside(ctx, cache.SummaryKey(digest[:]), cache.SummaryTTL, func(ctx context.Context) (string, error) {
		out, err := s.summarizer.Summarize(ctx, in.Title, in.Content, MaxSummaryLen)
		if err != nil {
			return "", models.NewInternalError(err)
		}
		return out, nil
	})
}
