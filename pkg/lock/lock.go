// Package lock provides short lived mutual exclusion keyed by string, backed
// by Redis in production and by process memory in tests.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-core/pkg/logger"
)

const DefaultRetryInterval = 50 * time.Millisecond

// ErrLockUnavailable is returned when a lock could not be obtained before the
// acquire timeout elapsed.
var ErrLockUnavailable = errors.New("lock unavailable")

// Locker hands out ownership tokens. Only the holder of the token can release
// the lock; an expired lock is up for grabs again.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl, wait time.Duration) (string, error)
	Release(ctx context.Context, key, token string) error
}

type Options struct {
	RetryInterval time.Duration
	Logger        *logger.Logger
}

func (o Options) withDefaults() Options {
	if o.RetryInterval <= 0 {
		o.RetryInterval = DefaultRetryInterval
	}
	if o.Logger == nil {
		o.Logger = logger.Nop()
	}
	return o
}

// AppointmentDoctorKey is the lock serialising bookings for one doctor.
func AppointmentDoctorKey(doctorID uuid.UUID) string {
	return fmt.Sprintf("locks:appointments:doctor:%s", doctorID)
}

func newToken() string {
	return uuid.NewString()
}

// retry calls try until it succeeds, fails, ctx is done or wait has elapsed.
// Sleeps use wall time so a fake clock never stalls callers.
func retry(ctx context.Context, wait, interval time.Duration, try func(context.Context) (bool, error)) error {
	deadline := time.Now().Add(wait)
	for {
		ok, err := try(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrLockUnavailable
		}
		sleep := interval
		if remaining < sleep {
			sleep = remaining
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %v", ErrLockUnavailable, ctx.Err())
		case <-timer.C:
		}
	}
}
