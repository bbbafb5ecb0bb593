package reconcile

import (
	"context"
	"log/slog"
)

// Worker drains a status queue subscription and feeds each event to the
// reconciler. It runs as a long-lived goroutine owned by the process
// supervisor and exits when its context is cancelled or the subscription
// channel closes.
type Worker struct {
	queue      Queue
	reconciler *Reconciler
	logger     *slog.Logger
}

// NewWorker constructs a Worker over the supplied queue and reconciler.
func NewWorker(queue Queue, reconciler *Reconciler, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{queue: queue, reconciler: reconciler, logger: logger}
}

// Run consumes status events until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	sub := w.queue.Subscribe()
	defer sub.Close()
	w.logger.Info("status worker started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("status worker stopping", "reason", ctx.Err())
			return ctx.Err()
		case event, ok := <-sub.Events():
			if !ok {
				w.logger.Info("status worker subscription closed")
				return nil
			}
			w.reconciler.Apply(event)
		}
	}
}
