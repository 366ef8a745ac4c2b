package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisQueue(client, "emails"), mr
}

func queues(t *testing.T) map[string]Queue {
	rq, _ := newRedisQueue(t)
	return map[string]Queue{
		"memory": NewMemoryQueue(16),
		"redis":  rq,
	}
}

func TestQueueReserveAck(t *testing.T) {
	for name, q := range queues(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job := NewJob(KindRegistration, "ana@example.com", "ana")
			require.NoError(t, q.Enqueue(ctx, job))

			got, err := q.Reserve(ctx, time.Second)
			require.NoError(t, err)
			assert.Equal(t, job.ID, got.ID)
			assert.Equal(t, "ana@example.com", got.To)
			assert.Equal(t, 0, got.Attempts)

			require.NoError(t, q.Ack(ctx, got))

			n, err := q.Requeue(ctx)
			require.NoError(t, err)
			assert.Equal(t, 0, n, "acked job must not come back")
		})
	}
}

func TestQueueRetryIncrementsAttempts(t *testing.T) {
	for name, q := range queues(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, q.Enqueue(ctx, NewJob(KindRegistration, "a@example.com", "a")))

			first, err := q.Reserve(ctx, time.Second)
			require.NoError(t, err)
			require.NoError(t, q.Retry(ctx, first))

			second, err := q.Reserve(ctx, time.Second)
			require.NoError(t, err)
			assert.Equal(t, first.ID, second.ID)
			assert.Equal(t, 1, second.Attempts)
		})
	}
}

func TestQueueRequeueInflight(t *testing.T) {
	for name, q := range queues(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, q.Enqueue(ctx, NewJob(KindRegistration, "a@example.com", "a")))
			require.NoError(t, q.Enqueue(ctx, NewJob(KindRegistration, "b@example.com", "b")))

			_, err := q.Reserve(ctx, time.Second)
			require.NoError(t, err)
			_, err = q.Reserve(ctx, time.Second)
			require.NoError(t, err)

			n, err := q.Requeue(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			_, err = q.Reserve(ctx, time.Second)
			assert.NoError(t, err)
		})
	}
}

func TestMemoryQueueEmpty(t *testing.T) {
	q := NewMemoryQueue(1)
	_, err := q.Reserve(context.Background(), 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrNoJob)
}

func TestMemoryQueueFull(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, NewJob(KindRegistration, "a@example.com", "a")))
	assert.ErrorIs(t, q.Enqueue(ctx, NewJob(KindRegistration, "b@example.com", "b")), ErrQueueFull)
	assert.Equal(t, 1, q.Pending())
}

func TestMemoryQueueBury(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, NewJob(KindRegistration, "a@example.com", "a")))

	job, err := q.Reserve(ctx, time.Second)
	require.NoError(t, err)
	require.NoError(t, q.Bury(ctx, job))

	dead := q.Dead()
	require.Len(t, dead, 1)
	assert.Equal(t, job.ID, dead[0].ID)
}

func TestRedisQueueBury(t *testing.T) {
	q, mr := newRedisQueue(t)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, NewJob(KindRegistration, "a@example.com", "a")))

	job, err := q.Reserve(ctx, time.Second)
	require.NoError(t, err)

	ready, processing, dead, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, [3]int64{0, 1, 0}, [3]int64{ready, processing, dead})

	require.NoError(t, q.Bury(ctx, job))

	ready, processing, dead, err = q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, [3]int64{0, 0, 1}, [3]int64{ready, processing, dead})

	list, err := mr.List("emails:dead")
	require.NoError(t, err)
	assert.Contains(t, list[0], job.ID)
}

func TestRedisQueueMalformedPayload(t *testing.T) {
	q, mr := newRedisQueue(t)
	_, err := mr.Lpush("emails", "{not json")
	require.NoError(t, err)

	_, err = q.Reserve(context.Background(), time.Second)
	require.Error(t, err)

	list, err := mr.List("emails:dead")
	require.NoError(t, err)
	assert.Equal(t, []string{"{not json"}, list)

	_, processing, _, err := q.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, processing)
}

func TestRedisQueueUnavailable(t *testing.T) {
	q, mr := newRedisQueue(t)
	mr.Close()

	err := q.Enqueue(context.Background(), NewJob(KindRegistration, "a@example.com", "a"))
	assert.Error(t, err)
}
