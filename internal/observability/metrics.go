package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SubmissionsTotal counts accepted submissions by kind.
	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "egaku_submissions_total",
		Help: "Total number of accepted submissions",
	}, []string{"kind"})

	// ModerationVerdicts counts moderation outcomes by kind and verdict.
	ModerationVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "egaku_moderation_verdicts_total",
		Help: "Total number of moderation verdicts",
	}, []string{"kind", "verdict"})

	// MailSent counts verification mails by locale and result.
	MailSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "egaku_mail_sent_total",
		Help: "Total number of verification mails attempted",
	}, []string{"locale", "result"})

	// RedisErrors counts Redis errors by operation type.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "egaku_redis_errors_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// UploadBytes counts stored upload bytes by storage backend.
	UploadBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "egaku_upload_bytes_total",
		Help: "Total number of uploaded bytes stored",
	}, []string{"storage"})

	// ActiveWebSockets is the gauge of open reminder sockets.
	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "egaku_active_websockets",
		Help: "Number of active reminder WebSocket connections",
	})

	// WebSocketDrops counts reminder frames dropped for slow or closed sockets.
	WebSocketDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "egaku_websocket_dropped_messages_total",
		Help: "Total number of reminder frames dropped by reason",
	}, []string{"reason"})
)

// Verdict label values.
const (
	VerdictApproved = "approved"
	VerdictRejected = "rejected"
	VerdictError    = "error"
)

// RecordVerdict increments the verdict counter for kind.
func RecordVerdict(kind string, approved bool) {
	v := VerdictRejected
	if approved {
		v = VerdictApproved
	}
	ModerationVerdicts.WithLabelValues(kind, v).Inc()
}
