package unpin

import (
	"context"
	"log/slog"
	"time"

	"lsmversion/pkg/listener"
	"lsmversion/pkg/types"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultUnpinTimeout = 5 * time.Second
	retryInitial        = 10 * time.Millisecond
)

// Worker drains a Queue into a Sink. A failing Unpin is retried with
// exponential backoff until the per-id timeout, then logged and dropped.
type Worker struct {
	queue    *Queue
	sink     Sink
	logger   *slog.Logger
	timeout  time.Duration
	listener *listener.Listener[types.VersionID]
}

func NewWorker(queue *Queue, sink Sink, logger *slog.Logger, timeout time.Duration) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultUnpinTimeout
	}

	w := &Worker{
		queue:   queue,
		sink:    sink,
		logger:  logger,
		timeout: timeout,
	}
	w.listener = listener.New(queue.Out(), w.handle)

	return w
}

func (w *Worker) handle(id types.VersionID) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitial
	b.MaxElapsedTime = w.timeout

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		return w.sink.Unpin(ctx, id)
	}, backoff.WithContext(b, ctx))
	if err != nil {
		w.logger.Warn("failed to unpin version", "version_id", id, "attempts", attempts, "error", err)
	}
	return nil
}

func (w *Worker) Start(ctx context.Context) {
	w.listener.Start(ctx)
}

// Stop closes the queue and waits until every queued id reached the sink, or
// until ctx expires, in which case the rest is dropped.
func (w *Worker) Stop(ctx context.Context) {
	w.queue.Close()

	select {
	case <-w.listener.Done():
	case <-ctx.Done():
		dropped := w.queue.Len()
		w.queue.Abandon()
		w.logger.Warn("unpin worker stopped before draining", "dropped", dropped)
	}
	w.listener.Stop()
}
