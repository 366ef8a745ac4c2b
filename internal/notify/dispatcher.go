package notify

import (
	"context"
	"fmt"
	"log/slog"
)

// Dispatcher is the producer side of the queue.
type Dispatcher struct {
	Queue Queue
}

// SendRegistrationEmail enqueues the signup email and returns without waiting
// for delivery.
func (d *Dispatcher) SendRegistrationEmail(ctx context.Context, email, username string) error {
	job := NewJob(KindRegistration, email, username)
	if err := d.Queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("enqueueing registration email: %w", err)
	}
	slog.Info("registration email queued", "job", job.ID, "user", username)
	return nil
}
