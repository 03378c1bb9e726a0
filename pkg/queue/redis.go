package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/scheduling-core/internal/model"
	"github.com/jwalitptl/scheduling-core/pkg/metrics"
)

// RedisQueue stores each queue as a Redis list: RPUSH at the tail, BLPOP
// from the head.
type RedisQueue struct {
	client  redis.Cmdable
	metrics *metrics.Metrics
}

// NewRedisQueue builds a queue over client. m may be nil.
func NewRedisQueue(client redis.Cmdable, m *metrics.Metrics) *RedisQueue {
	return &RedisQueue{client: client, metrics: m}
}

var _ Queue = (*RedisQueue)(nil)

func (q *RedisQueue) Enqueue(ctx context.Context, queue string, job *model.Job) error {
	payload, err := Encode(job)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", queue, err)
	}

	if err := q.client.RPush(ctx, queue, payload).Err(); err != nil {
		q.observe("rpush", err)
		return fmt.Errorf("enqueue %s: %w", queue, err)
	}
	q.observe("rpush", nil)

	if q.metrics != nil {
		q.metrics.JobsEnqueued.WithLabelValues(queue, string(job.Type)).Inc()
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, queue string, timeout time.Duration) (*model.Job, error) {
	if timeout < time.Second {
		// BLPOP 0 blocks forever and sub-second waits round up anyway
		timeout = time.Second
	}

	res, err := q.client.BLPop(ctx, timeout, queue).Result()
	if errors.Is(err, redis.Nil) {
		q.observe("blpop", nil)
		return nil, ErrEmpty
	}
	if err != nil {
		q.observe("blpop", err)
		return nil, fmt.Errorf("dequeue %s: %w", queue, err)
	}
	q.observe("blpop", nil)

	// BLPOP replies with [key, value]
	if len(res) != 2 {
		return nil, fmt.Errorf("dequeue %s: unexpected reply of %d elements", queue, len(res))
	}
	return Decode(queue, []byte(res[1]))
}

// RemoveMatching scans the list and LREMs the first raw entry that decodes to
// a matching job. Entries consumed concurrently are simply not found.
func (q *RedisQueue) RemoveMatching(ctx context.Context, queue string, match func(*model.Job) bool) (bool, error) {
	entries, err := q.client.LRange(ctx, queue, 0, -1).Result()
	if err != nil {
		q.observe("lrange", err)
		return false, fmt.Errorf("scan %s: %w", queue, err)
	}
	q.observe("lrange", nil)

	for _, raw := range entries {
		job, err := Decode(queue, []byte(raw))
		if err != nil || !match(job) {
			continue
		}

		n, err := q.client.LRem(ctx, queue, 1, raw).Result()
		if err != nil {
			q.observe("lrem", err)
			return false, fmt.Errorf("remove from %s: %w", queue, err)
		}
		q.observe("lrem", nil)

		if n > 0 && q.metrics != nil {
			q.metrics.JobsRemoved.WithLabelValues(queue).Inc()
		}
		return n > 0, nil
	}
	return false, nil
}

func (q *RedisQueue) Len(ctx context.Context, queue string) (int64, error) {
	n, err := q.client.LLen(ctx, queue).Result()
	q.observe("llen", err)
	if err != nil {
		return 0, fmt.Errorf("length of %s: %w", queue, err)
	}
	return n, nil
}

func (q *RedisQueue) observe(op string, err error) {
	if q.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	q.metrics.RedisOperations.WithLabelValues(op, status).Inc()
}
