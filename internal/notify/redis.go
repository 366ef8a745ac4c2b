package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisQueue stores jobs in redis lists: <name> holds ready jobs,
// <name>:processing holds reserved ones and <name>:dead buried ones.
type RedisQueue struct {
	client *redis.Client
	name   string
}

// NewRedisQueue creates a queue backed by the named redis list.
func NewRedisQueue(client *redis.Client, name string) *RedisQueue {
	if name == "" {
		name = "emails"
	}
	return &RedisQueue{client: client, name: name}
}

func (q *RedisQueue) processingKey() string { return q.name + ":processing" }
func (q *RedisQueue) deadKey() string       { return q.name + ":dead" }

// Enqueue implements Queue.
func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	raw, err := encodeJob(job)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.name, raw).Err(); err != nil {
		return fmt.Errorf("enqueueing job: %w", err)
	}
	return nil
}

// Reserve implements Queue. The job moves atomically to the processing list.
func (q *RedisQueue) Reserve(ctx context.Context, wait time.Duration) (*Job, error) {
	raw, err := q.client.BRPopLPush(ctx, q.name, q.processingKey(), wait).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoJob
	}
	if err != nil {
		return nil, fmt.Errorf("reserving job: %w", err)
	}

	job, err := decodeJob(raw)
	if err != nil {
		// Unreadable payloads go straight to the dead list.
		pipe := q.client.TxPipeline()
		pipe.LRem(ctx, q.processingKey(), 1, raw)
		pipe.LPush(ctx, q.deadKey(), raw)
		if _, perr := pipe.Exec(ctx); perr != nil {
			return nil, fmt.Errorf("burying malformed job: %w", perr)
		}
		return nil, err
	}
	return job, nil
}

// Ack implements Queue.
func (q *RedisQueue) Ack(ctx context.Context, job *Job) error {
	if err := q.client.LRem(ctx, q.processingKey(), 1, job.raw).Err(); err != nil {
		return fmt.Errorf("acking job: %w", err)
	}
	return nil
}

// Retry implements Queue.
func (q *RedisQueue) Retry(ctx context.Context, job *Job) error {
	next := *job
	next.Attempts++
	raw, err := encodeJob(next)
	if err != nil {
		return err
	}

	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.processingKey(), 1, job.raw)
	pipe.LPush(ctx, q.name, raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("retrying job: %w", err)
	}
	return nil
}

// Bury implements Queue.
func (q *RedisQueue) Bury(ctx context.Context, job *Job) error {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.processingKey(), 1, job.raw)
	pipe.LPush(ctx, q.deadKey(), job.raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("burying job: %w", err)
	}
	return nil
}

// Requeue implements Queue. Run it before starting workers so jobs reserved
// by a crashed worker are delivered again.
func (q *RedisQueue) Requeue(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.client.RPopLPush(ctx, q.processingKey(), q.name).Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("requeueing jobs: %w", err)
		}
		n++
	}
}

// Len returns the lengths of the ready, processing and dead lists.
func (q *RedisQueue) Len(ctx context.Context) (ready, processing, dead int64, err error) {
	pipe := q.client.Pipeline()
	r := pipe.LLen(ctx, q.name)
	p := pipe.LLen(ctx, q.processingKey())
	d := pipe.LLen(ctx, q.deadKey())
	if _, err = pipe.Exec(ctx); err != nil {
		return 0, 0, 0, fmt.Errorf("reading queue length: %w", err)
	}
	return r.Val(), p.Val(), d.Val(), nil
}
