package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"egaku/internal/middleware"
	"egaku/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultJobTimeout bounds one moderation job.
const DefaultJobTimeout = 30 * time.Second

// ErrClosed is returned by Dispatch after Close.
var ErrClosed = errors.New("moderation dispatcher closed")

// Handler processes one moderation job.
type Handler func(ctx context.Context, ref models.SubmissionRef) error

// Dispatcher hands submissions to moderation without blocking the request.
type Dispatcher interface {
	Dispatch(ctx context.Context, ref models.SubmissionRef) error
	Close() error
}

// LocalDispatcher runs each job on its own goroutine. A failed job is logged and
// the submission stays pending for an admin to decide.
type LocalDispatcher struct {
	handle  Handler
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewLocalDispatcher creates an in-process dispatcher.
func NewLocalDispatcher(handle Handler, timeout time.Duration) *LocalDispatcher {
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	return &LocalDispatcher{handle: handle, timeout: timeout}
}

func (d *LocalDispatcher) Dispatch(ctx context.Context, ref models.SubmissionRef) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.wg.Add(1)
	// The job outlives the request but keeps its values for logging and tracing.
	base := context.WithoutCancel(ctx)
	go func() {
		defer d.wg.Done()
		jobCtx, cancel := context.WithTimeout(base, d.timeout)
		defer cancel()
		if err := d.handle(jobCtx, ref); err != nil {
			middleware.Logger.WarnContext(base, "moderation job failed",
				slog.String("submission", ref.String()),
				slog.String("error", err.Error()),
			)
		}
	}()
	return nil
}

// Close stops accepting jobs and waits for running ones.
func (d *LocalDispatcher) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
	return nil
}

// DialAMQP connects to the broker and checks that a channel can be opened.
func DialAMQP(ctx context.Context, url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq failed: %w", err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		ch, err := conn.Channel()
		if err == nil {
			_ = ch.Close()
		}
		done <- err
	}()

	select {
	case <-checkCtx.Done():
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq health check timeout: %w", checkCtx.Err())
	case err := <-done:
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("open rabbitmq channel failed: %w", err)
		}
		return conn, nil
	}
}

func declareQueue(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(
		name,
		true,
		false,
		false,
		false,
		nil,
	)
	return err
}

// AMQPDispatcher publishes jobs to a durable queue consumed by Worker.
type AMQPDispatcher struct {
	queue string

	mu sync.Mutex
	ch *amqp.Channel
}

// NewAMQPDispatcher opens a publishing channel and declares queue.
func NewAMQPDispatcher(conn *amqp.Connection, queue string) (*AMQPDispatcher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	if err := declareQueue(ch, queue); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare queue failed: %w", err)
	}
	return &AMQPDispatcher{queue: queue, ch: ch}, nil
}

func (d *AMQPDispatcher) Dispatch(ctx context.Context, ref models.SubmissionRef) error {
	payload, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("marshal moderation job failed: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ch == nil {
		return ErrClosed
	}
	if err := d.ch.PublishWithContext(
		ctx,
		"",
		d.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	); err != nil {
		return fmt.Errorf("publish moderation job failed: %w", err)
	}
	return nil
}

func (d *AMQPDispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ch == nil {
		return nil
	}
	err := d.ch.Close()
	d.ch = nil
	return err
}

// Worker consumes the moderation queue. Failed jobs are dropped, not requeued.
type Worker struct {
	conn    *amqp.Connection
	queue   string
	handle  Handler
	timeout time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker creates a queue consumer.
func NewWorker(conn *amqp.Connection, queue string, handle Handler, timeout time.Duration) *Worker {
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	return &Worker{conn: conn, queue: queue, handle: handle, timeout: timeout}
}

// Start begins consuming in the background.
func (w *Worker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if err := declareQueue(ch, w.queue); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}
	if err := ch.Qos(8, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker prefetch failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() { _ = ch.Close() }()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				w.handleDelivery(workerCtx, d)
			}
		}
	}()

	return nil
}

func (w *Worker) handleDelivery(ctx context.Context, d amqp.Delivery) {
	var ref models.SubmissionRef
	if err := json.Unmarshal(d.Body, &ref); err != nil || !ref.Kind.Valid() || ref.ID == 0 {
		middleware.Logger.Error("moderation job malformed", slog.String("body", string(d.Body)))
		_ = d.Nack(false, false)
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.timeout)
	err := w.handle(jobCtx, ref)
	cancel()
	if err == nil {
		_ = d.Ack(false)
		return
	}

	middleware.Logger.Warn("moderation job failed",
		slog.String("submission", ref.String()),
		slog.Bool("redelivered", d.Redelivered),
		slog.String("error", err.Error()),
	)
	_ = d.Nack(false, false)
}

// Close stops consuming and waits for the in-flight job.
func (w *Worker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
