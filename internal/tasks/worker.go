package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"conference-central/internal/storage"
)

const (
	defaultIdleWait   = time.Second
	defaultMaxDequeue = 5
)

// Source delivers queued task messages.
type Source interface {
	// Receive returns the next message, or nil when none is waiting.
	Receive(ctx context.Context) (*storage.TaskMessage, error)
	Delete(ctx context.Context, msg *storage.TaskMessage) error
}

// Handler runs one task. A returned error leaves the message on the queue for
// redelivery.
type Handler func(ctx context.Context, params map[string]string) error

// ErrPermanent marks a failure that redelivery cannot fix. Wrap it to have
// the message dropped at once.
var ErrPermanent = errors.New("permanent task failure")

type WorkerOptions struct {
	// IdleWait is the pause after an empty receive or a receive error.
	IdleWait time.Duration
	// MaxDequeue drops a failing message once it has been delivered this
	// many times.
	MaxDequeue int64
}

// Worker pulls task messages from a Source and dispatches them by name.
type Worker struct {
	src        Source
	logger     *log.Logger
	handlers   map[string]Handler
	idleWait   time.Duration
	maxDequeue int64
}

func NewWorker(src Source, logger *log.Logger, opts WorkerOptions) *Worker {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if opts.IdleWait <= 0 {
		opts.IdleWait = defaultIdleWait
	}
	if opts.MaxDequeue <= 0 {
		opts.MaxDequeue = defaultMaxDequeue
	}
	return &Worker{
		src:        src,
		logger:     logger,
		handlers:   make(map[string]Handler),
		idleWait:   opts.IdleWait,
		maxDequeue: opts.MaxDequeue,
	}
}

// Handle registers h for tasks called name.
func (w *Worker) Handle(name string, h Handler) {
	w.handlers[name] = h
}

// Run processes messages until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.WithField("handlers", len(w.handlers)).Info("task worker started")
	for {
		processed, err := w.ProcessNext(ctx)
		if ctx.Err() != nil {
			w.logger.Info("task worker stopped")
			return nil
		}
		if err != nil {
			w.logger.WithError(err).Warn("receive task")
		}
		if err != nil || !processed {
			select {
			case <-ctx.Done():
				w.logger.Info("task worker stopped")
				return nil
			case <-time.After(w.idleWait):
			}
		}
	}
}

// ProcessNext handles at most one message. It reports whether a message was
// received.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	msg, err := w.src.Receive(ctx)
	if err != nil {
		return false, err
	}
	if msg == nil {
		return false, nil
	}
	entry := w.logger.WithFields(log.Fields{
		"message_id":    msg.ID,
		"dequeue_count": msg.DequeueCount,
	})

	if msg.DecodeErr != nil {
		entry.WithError(msg.DecodeErr).Error("dropping undecodable task")
		w.delete(ctx, entry, msg)
		return true, nil
	}
	entry = entry.WithField("task", msg.Task.Name)

	h, ok := w.handlers[msg.Task.Name]
	if !ok {
		entry.Error("dropping task with no handler")
		w.delete(ctx, entry, msg)
		return true, nil
	}

	start := time.Now()
	if err := w.run(ctx, h, msg); err != nil {
		switch {
		case errors.Is(err, ErrPermanent):
			entry.WithError(err).Error("dropping failed task")
		case msg.DequeueCount >= w.maxDequeue:
			entry.WithError(err).Error("dropping task after repeated failures")
		default:
			entry.WithError(err).Warn("task failed; leaving for redelivery")
			return true, nil
		}
		w.delete(ctx, entry, msg)
		return true, nil
	}
	entry.WithField("duration_ms", float64(time.Since(start))/float64(time.Millisecond)).Debug("task done")
	w.delete(ctx, entry, msg)
	return true, nil
}

func (w *Worker) run(ctx context.Context, h Handler, msg *storage.TaskMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrPermanent, r)
		}
	}()
	return h(ctx, msg.Task.Params)
}

func (w *Worker) delete(ctx context.Context, entry *log.Entry, msg *storage.TaskMessage) {
	if err := w.src.Delete(ctx, msg); err != nil {
		entry.WithError(err).Warn("delete task message")
	}
}
