// Package queue implements named FIFO job queues with blocking dequeue.
// Delivery is at-least-once: consumers must tolerate duplicates.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jwalitptl/scheduling-core/internal/model"
)

var (
	// ErrEmpty is returned by Dequeue when nothing arrived before the timeout.
	ErrEmpty = errors.New("queue empty")
	// ErrMalformed marks payloads that could not be decoded into a job.
	ErrMalformed = errors.New("malformed job payload")
)

type Queue interface {
	// Enqueue appends job at the tail of queue.
	Enqueue(ctx context.Context, queue string, job *model.Job) error
	// Dequeue pops the head of queue, blocking up to timeout.
	Dequeue(ctx context.Context, queue string, timeout time.Duration) (*model.Job, error)
	// RemoveMatching deletes the first entry for which match returns true.
	RemoveMatching(ctx context.Context, queue string, match func(*model.Job) bool) (bool, error)
	Len(ctx context.Context, queue string) (int64, error)
}

// MalformedJobError carries the raw payload of an undecodable entry. It
// matches ErrMalformed with errors.Is.
type MalformedJobError struct {
	Queue   string
	Payload string
	Err     error
}

func (e *MalformedJobError) Error() string {
	return fmt.Sprintf("%s on %s: %v", ErrMalformed, e.Queue, e.Err)
}

func (e *MalformedJobError) Unwrap() error { return e.Err }

func (e *MalformedJobError) Is(target error) bool { return target == ErrMalformed }

func Encode(job *model.Job) ([]byte, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(job)
}

func Decode(queue string, payload []byte) (*model.Job, error) {
	var job model.Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, &MalformedJobError{Queue: queue, Payload: string(payload), Err: err}
	}
	if err := job.Validate(); err != nil {
		return nil, &MalformedJobError{Queue: queue, Payload: string(payload), Err: err}
	}
	return &job, nil
}

// MatchSubject selects jobs of type t about subjectID.
func MatchSubject(t model.JobType, subjectID fmt.Stringer) func(*model.Job) bool {
	id := subjectID.String()
	return func(j *model.Job) bool {
		return j.Type == t && j.SubjectID.String() == id
	}
}
