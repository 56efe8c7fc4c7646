/*
Package notify delivers leave notifications outside the request path.

PURPOSE:
  The engine hands a Notification to a leave.Notifier after its database
  transaction commits. Queue accepts it without blocking and a background
  worker forwards it to the real sinks (log, email). A failing or slow sink
  never delays or fails a leave operation.

COMPONENTS:
  Queue       buffered channel + worker goroutine, implements leave.Notifier
  LogSink     writes every notification to zap
  MailSink    renders and sends an email to the employee
  Fanout      delivers to several sinks, joining their errors

SEE ALSO:
  - leave/alerts.go: Notification and Notifier
  - cmd/server/main.go: Sink wiring from config
*/
package notify

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/govhr/leave-engine/leave"
)

var (
	ErrQueueFull   = errors.New("notification queue is full")
	ErrQueueClosed = errors.New("notification queue is closed")
)

// Queue buffers notifications for a single worker.
type Queue struct {
	sink   leave.Notifier
	logger *zap.Logger
	ch     chan leave.Notification
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewQueue starts the worker immediately.
func NewQueue(sink leave.Notifier, size int, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if size <= 0 {
		size = 1
	}
	q := &Queue{
		sink:   sink,
		logger: logger,
		ch:     make(chan leave.Notification, size),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

// Notify enqueues n. It returns ErrQueueFull instead of blocking.
func (q *Queue) Notify(_ context.Context, n leave.Notification) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Queue) run() {
	defer close(q.done)
	for n := range q.ch {
		// delivery outlives the request that produced n
		if err := q.sink.Notify(context.Background(), n); err != nil {
			q.logger.Warn("notification delivery failed",
				zap.String("event", string(n.Event)),
				zap.String("recipient", string(n.Recipient)),
				zap.String("request_id", n.RequestID),
				zap.Error(err))
		}
	}
}

// Close stops accepting notifications and waits for the backlog to drain
// or ctx to end.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// =============================================================================
// SINKS
// =============================================================================

// LogSink records notifications in the application log.
type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) Notify(_ context.Context, n leave.Notification) error {
	s.Logger.Info("notification",
		zap.String("event", string(n.Event)),
		zap.String("recipient", string(n.Recipient)),
		zap.String("request_id", n.RequestID),
		zap.String("details", n.Details))
	return nil
}

// Fanout delivers to every sink, even when an earlier one fails.
type Fanout []leave.Notifier

func (f Fanout) Notify(ctx context.Context, n leave.Notification) error {
	var errs []error
	for _, s := range f {
		if err := s.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
