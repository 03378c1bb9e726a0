package queue

import (
	"context"
	"sync"
	"time"

	"github.com/jwalitptl/scheduling-core/internal/model"
)

// MemoryQueue keeps encoded payloads per queue so it shares the wire codec
// with RedisQueue. Safe for concurrent producers and consumers.
type MemoryQueue struct {
	mu     sync.Mutex
	lists  map[string][]string
	signal chan struct{}
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		lists:  make(map[string][]string),
		signal: make(chan struct{}),
	}
}

var _ Queue = (*MemoryQueue)(nil)

func (q *MemoryQueue) Enqueue(_ context.Context, queue string, job *model.Job) error {
	payload, err := Encode(job)
	if err != nil {
		return err
	}
	q.PushRaw(queue, string(payload))
	return nil
}

// PushRaw appends an arbitrary payload, bypassing encoding.
func (q *MemoryQueue) PushRaw(queue, payload string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lists[queue] = append(q.lists[queue], payload)
	// wake every waiting consumer
	close(q.signal)
	q.signal = make(chan struct{})
}

func (q *MemoryQueue) Dequeue(ctx context.Context, queue string, timeout time.Duration) (*model.Job, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if list := q.lists[queue]; len(list) > 0 {
			raw := list[0]
			q.lists[queue] = list[1:]
			q.mu.Unlock()
			return Decode(queue, []byte(raw))
		}
		wait := q.signal
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, ErrEmpty
		case <-wait:
		}
	}
}

func (q *MemoryQueue) RemoveMatching(_ context.Context, queue string, match func(*model.Job) bool) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	list := q.lists[queue]
	for i, raw := range list {
		job, err := Decode(queue, []byte(raw))
		if err != nil || !match(job) {
			continue
		}
		q.lists[queue] = append(list[:i:i], list[i+1:]...)
		return true, nil
	}
	return false, nil
}

func (q *MemoryQueue) Len(_ context.Context, queue string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.lists[queue])), nil
}

// Jobs decodes the current contents of queue, head first. Malformed entries
// are skipped.
func (q *MemoryQueue) Jobs(queue string) []*model.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	var jobs []*model.Job
	for _, raw := range q.lists[queue] {
		if job, err := Decode(queue, []byte(raw)); err == nil {
			jobs = append(jobs, job)
		}
	}
	return jobs
}
