package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/erazemk/storesapi/internal/observability"
)

// Worker defaults.
const (
	DefaultMaxAttempts = 5
	DefaultPollWait    = 5 * time.Second
)

// Worker is the consumer side of the queue.
type Worker struct {
	Queue       Queue
	Sender      Sender
	Renderer    *Renderer
	Limiter     *rate.Limiter
	MaxAttempts int
	PollWait    time.Duration
	Backoff     func(attempt int) time.Duration
}

// NewWorker creates a worker that sends at most perSecond emails per second.
func NewWorker(q Queue, sender Sender, renderer *Renderer, perSecond float64, maxAttempts int) *Worker {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Worker{
		Queue:       q,
		Sender:      sender,
		Renderer:    renderer,
		Limiter:     rate.NewLimiter(limit, 1),
		MaxAttempts: maxAttempts,
		PollWait:    DefaultPollWait,
		Backoff:     ExponentialBackoff(time.Second, time.Minute),
	}
}

// ExponentialBackoff doubles the delay per attempt up to max.
func ExponentialBackoff(base, max time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		d := base
		for i := 0; i < attempt && d < max; i++ {
			d *= 2
		}
		if d > max {
			d = max
		}
		return d
	}
}

// Run processes jobs until ctx is cancelled. Jobs left in flight by an earlier
// worker are requeued first.
func (w *Worker) Run(ctx context.Context) error {
	if n, err := w.Queue.Requeue(ctx); err != nil {
		slog.Error("requeueing in-flight jobs", "error", err)
	} else if n > 0 {
		slog.Info("requeued in-flight jobs", "count", n)
	}

	slog.Info("email worker started")
	for {
		if ctx.Err() != nil {
			slog.Info("email worker stopped")
			return nil
		}

		_, err := w.ProcessNext(ctx)
		if err != nil && ctx.Err() == nil {
			slog.Error("email worker", "error", err)
			if !sleep(ctx, time.Second) {
				return nil
			}
		}
	}
}

// ProcessNext reserves and handles one job. It reports whether a job was handled.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	wait := w.PollWait
	if wait <= 0 {
		wait = DefaultPollWait
	}

	job, err := w.Queue.Reserve(ctx, wait)
	if errors.Is(err, ErrNoJob) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, w.handle(ctx, job)
}

func (w *Worker) handle(ctx context.Context, job *Job) error {
	msg, err := w.Renderer.Render(job)
	if err != nil {
		slog.Error("dropping email job", "job", job.ID, "kind", job.Kind, "error", err)
		observability.CaptureError(err, map[string]string{"component": "email_worker"})
		return w.Queue.Bury(ctx, job)
	}

	if w.Limiter != nil {
		if err := w.Limiter.Wait(ctx); err != nil {
			return w.Queue.Retry(context.WithoutCancel(ctx), job)
		}
	}

	sendErr := w.Sender.Send(ctx, msg)
	if sendErr == nil {
		return w.Queue.Ack(ctx, job)
	}

	attempt := job.Attempts + 1
	if attempt >= w.MaxAttempts {
		slog.Error("email job failed permanently", "job", job.ID, "to", job.To, "attempts", attempt, "error", sendErr)
		observability.CaptureError(sendErr, map[string]string{"component": "email_worker", "job": job.ID})
		return w.Queue.Bury(ctx, job)
	}

	slog.Warn("email job failed, retrying", "job", job.ID, "attempt", attempt, "error", sendErr)
	if w.Backoff != nil {
		sleep(ctx, w.Backoff(job.Attempts))
	}
	return w.Queue.Retry(context.WithoutCancel(ctx), job)
}

// sleep waits for d or until ctx is done. It reports whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
