package moderation

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"egaku/internal/featureflags"
	"egaku/internal/middleware"
	"egaku/internal/models"
	"egaku/internal/notifications"
	"egaku/internal/observability"
	"egaku/internal/repository"
)

// ReasonSeparator joins censor hit messages into the stored description.
const ReasonSeparator = "; "

// ReminderPublisher pushes a reminder frame to a user.
type ReminderPublisher interface {
	PublishReminder(ctx context.Context, userID uint, r notifications.Reminder) error
}

// Processor moderates submissions and records verdicts.
type Processor struct {
	subs   repository.SubmissionRepository
	censor Censor
	flags  *featureflags.Manager
	notify ReminderPublisher
}

// NewProcessor wires a Processor. censor and notify may be nil.
func NewProcessor(subs repository.SubmissionRepository, censor Censor, flags *featureflags.Manager, notify ReminderPublisher) *Processor {
	return &Processor{subs: subs, censor: censor, flags: flags, notify: notify}
}

// Process moderates one submission if it is still pending. Submissions that were
// deleted or decided in the meantime are skipped without error.
func (p *Processor) Process(ctx context.Context, ref models.SubmissionRef) (err error) {
	ctx, span := observability.StartSpan(ctx, "moderation.process", observability.SubmissionAttrs(ref.Kind.String(), ref.ID)...)
	defer observability.EndSpan(span, &err)

	sub, err := p.subs.Get(ctx, ref)
	if err != nil {
		if errors.Is(err, models.NewNoSubmissionError(ref)) {
			return nil
		}
		return err
	}
	if sub.Status != models.StatusPending {
		return nil
	}

	verdict, err := p.verdict(ctx, sub)
	if err != nil {
		observability.ModerationVerdicts.WithLabelValues(ref.Kind.String(), observability.VerdictError).Inc()
		return err
	}
	return p.Apply(ctx, sub, verdict)
}

func (p *Processor) verdict(ctx context.Context, sub *models.Submission) (models.ModerationVerdict, error) {
	if sub.Ref.Kind == models.KindVideo && !p.flags.Enabled(featureflags.VideoModeration, sub.UserID) {
		// Video files are not inspected; only the title goes to the censor when enabled.
		return models.ModerationVerdict{Approved: true}, nil
	}
	if p.censor == nil {
		return models.ModerationVerdict{}, ErrNotConfigured
	}
	return p.censor.CensorText(ctx, sub.ModerationText)
}

// Apply stores verdict on sub, credits the author on approval and tells the author.
// A submission that left pending in the meantime (an admin decision, a resubmit
// request, an earlier verdict) is left untouched.
func (p *Processor) Apply(ctx context.Context, sub *models.Submission, verdict models.ModerationVerdict) error {
	status := models.StatusRejected
	desc := strings.Join(verdict.Reasons, ReasonSeparator)
	if verdict.Approved {
		status = models.StatusApproved
	}

	applied, awarded, err := p.subs.ApplyVerdict(ctx, sub.Ref, status, desc)
	if err != nil {
		return err
	}
	if !applied {
		middleware.Logger.InfoContext(ctx, "moderation verdict ignored, submission already decided",
			slog.String("submission", sub.Ref.String()),
			slog.Bool("approved", verdict.Approved),
		)
		return nil
	}
	observability.RecordVerdict(sub.Ref.Kind.String(), verdict.Approved)
	middleware.Logger.InfoContext(ctx, "moderation verdict applied",
		slog.String("submission", sub.Ref.String()),
		slog.Bool("approved", verdict.Approved),
		slog.Bool("exp_awarded", awarded),
	)

	if p.notify != nil && p.flags.Enabled(featureflags.RealtimeReminders, sub.UserID) {
		err := p.notify.PublishReminder(ctx, sub.UserID, notifications.Reminder{
			Type: notifications.EventModeration,
			Data: notifications.ModerationData{
				SubmissionID: models.StringID(sub.Ref.ID),
				Kind:         sub.Ref.Kind,
				Status:       status,
				Desc:         desc,
			},
		})
		if err != nil {
			middleware.Logger.WarnContext(ctx, "moderation reminder not published", slog.String("error", err.Error()))
		}
	}
	return nil
}

// ApplyCallback records a verdict delivered by the asynchronous moderation callback.
// Late or duplicate callbacks for a decided submission succeed without changes.
func (p *Processor) ApplyCallback(ctx context.Context, ref models.SubmissionRef, conclusion string, reasons []string) error {
	sub, err := p.subs.Get(ctx, ref)
	if err != nil {
		return err
	}
	return p.Apply(ctx, sub, models.ModerationVerdict{
		Approved: IsCompliant(conclusion),
		Reasons:  reasons,
	})
}

// IsCompliant reports whether a censor conclusion approves the content.
func IsCompliant(conclusion string) bool {
	c := strings.TrimSpace(conclusion)
	return c == Compliant || strings.EqualFold(c, "approved")
}
