package notify

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNoJob is returned by Reserve when nothing arrived within the wait.
var ErrNoJob = errors.New("no job available")

// ErrQueueFull is returned by MemoryQueue when its buffer is exhausted.
var ErrQueueFull = errors.New("queue is full")

// Queue is an at-least-once job queue. A reserved job stays in flight until
// it is acked, retried or buried; Requeue returns abandoned in-flight jobs.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Reserve(ctx context.Context, wait time.Duration) (*Job, error)
	Ack(ctx context.Context, job *Job) error
	Retry(ctx context.Context, job *Job) error
	Bury(ctx context.Context, job *Job) error
	Requeue(ctx context.Context) (int, error)
}

// MemoryQueue is a process-local Queue.
type MemoryQueue struct {
	ready chan Job

	mu       sync.Mutex
	inflight map[string]Job
	dead     []Job
}

// NewMemoryQueue creates a queue that buffers up to size jobs.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 1024
	}
	return &MemoryQueue{
		ready:    make(chan Job, size),
		inflight: make(map[string]Job),
	}
}

// Enqueue implements Queue. It never blocks.
func (q *MemoryQueue) Enqueue(_ context.Context, job Job) error {
	select {
	case q.ready <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Reserve implements Queue.
func (q *MemoryQueue) Reserve(ctx context.Context, wait time.Duration) (*Job, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case job := <-q.ready:
		q.mu.Lock()
		q.inflight[job.ID] = job
		q.mu.Unlock()
		return &job, nil
	case <-timer.C:
		return nil, ErrNoJob
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ack implements Queue.
func (q *MemoryQueue) Ack(_ context.Context, job *Job) error {
	q.mu.Lock()
	delete(q.inflight, job.ID)
	q.mu.Unlock()
	return nil
}

// Retry implements Queue.
func (q *MemoryQueue) Retry(ctx context.Context, job *Job) error {
	q.mu.Lock()
	delete(q.inflight, job.ID)
	q.mu.Unlock()

	next := *job
	next.Attempts++
	return q.Enqueue(ctx, next)
}

// Bury implements Queue.
func (q *MemoryQueue) Bury(_ context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, job.ID)
	q.dead = append(q.dead, *job)
	return nil
}

// Requeue implements Queue.
func (q *MemoryQueue) Requeue(ctx context.Context) (int, error) {
	q.mu.Lock()
	jobs := make([]Job, 0, len(q.inflight))
	for id, job := range q.inflight {
		jobs = append(jobs, job)
		delete(q.inflight, id)
	}
	q.mu.Unlock()

	for i, job := range jobs {
		if err := q.Enqueue(ctx, job); err != nil {
			return i, err
		}
	}
	return len(jobs), nil
}

// Pending returns the number of jobs waiting to be reserved.
func (q *MemoryQueue) Pending() int {
	return len(q.ready)
}

// Dead returns a copy of the buried jobs.
func (q *MemoryQueue) Dead() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Job(nil), q.dead...)
}
