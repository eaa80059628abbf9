package moderation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"egaku/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalDispatcher_RunsFailedJobOnce(t *testing.T) {
	var calls atomic.Int32
	d := NewLocalDispatcher(func(context.Context, models.SubmissionRef) error {
		calls.Add(1)
		return errors.New("always failing")
	}, time.Second)

	require.NoError(t, d.Dispatch(context.Background(), models.SubmissionRef{Kind: models.KindArticle, ID: 1}))
	require.NoError(t, d.Close())
	assert.Equal(t, int32(1), calls.Load())

	assert.ErrorIs(t, d.Dispatch(context.Background(), models.SubmissionRef{ID: 2}), ErrClosed)
}

func TestLocalDispatcher_OutlivesRequestContext(t *testing.T) {
	var seen []models.SubmissionRef
	var mu sync.Mutex
	d := NewLocalDispatcher(func(ctx context.Context, ref models.SubmissionRef) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		mu.Lock()
		seen = append(seen, ref)
		mu.Unlock()
		return nil
	}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	ref := models.SubmissionRef{Kind: models.KindVideo, ID: 3}
	require.NoError(t, d.Dispatch(ctx, ref))
	cancel()
	require.NoError(t, d.Close())
	assert.Equal(t, []models.SubmissionRef{ref}, seen)
}

// ackRecorder implements amqp.Acknowledger.
type ackRecorder struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (a *ackRecorder) Ack(uint64, bool) error {
	a.acked = true
	return nil
}

func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked, a.requeue = true, requeue
	return nil
}

func (a *ackRecorder) Reject(_ uint64, requeue bool) error {
	a.nacked, a.requeue = true, requeue
	return nil
}

func TestWorker_HandleDelivery(t *testing.T) {
	failing := func(context.Context, models.SubmissionRef) error { return errors.New("censor down") }
	ok := func(context.Context, models.SubmissionRef) error { return nil }

	tests := []struct {
		name        string
		body        string
		redelivered bool
		handle      Handler
		wantAck     bool
		wantRequeue bool
	}{
		{"success acks", `{"type":0,"id":4}`, false, ok, true, false},
		{"failure drops", `{"type":1,"id":4}`, false, failing, false, false},
		{"redelivered failure drops", `{"type":1,"id":4}`, true, failing, false, false},
		{"malformed body drops", `not json`, false, ok, false, false},
		{"unknown kind drops", `{"type":9,"id":4}`, false, ok, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &ackRecorder{}
			w := NewWorker(nil, "moderation", tt.handle, time.Second)
			w.handleDelivery(context.Background(), amqp.Delivery{
				Acknowledger: rec,
				Body:         []byte(tt.body),
				Redelivered:  tt.redelivered,
			})
			assert.Equal(t, tt.wantAck, rec.acked)
			assert.Equal(t, !tt.wantAck, rec.nacked)
			assert.Equal(t, tt.wantRequeue, rec.requeue)
		})
	}
}
