package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLocker(client, Options{RetryInterval: 5 * time.Millisecond}), mr
}

func TestAppointmentDoctorKey(t *testing.T) {
	id := uuid.MustParse("8a7d2c3e-1f4b-4c5d-9e6f-0a1b2c3d4e5f")
	assert.Equal(t, "locks:appointments:doctor:8a7d2c3e-1f4b-4c5d-9e6f-0a1b2c3d4e5f", AppointmentDoctorKey(id))
}

func TestRedisLocker_AcquireRelease(t *testing.T) {
	locker, mr := newRedisLocker(t)
	ctx := context.Background()

	token, err := locker.Acquire(ctx, "locks:test", 2*time.Second, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	stored, err := mr.Get("locks:test")
	require.NoError(t, err)
	assert.Equal(t, token, stored)
	assert.Greater(t, mr.TTL("locks:test"), time.Duration(0))

	require.NoError(t, locker.Release(ctx, "locks:test", token))
	assert.False(t, mr.Exists("locks:test"))
}

func TestRedisLocker_HeldLockTimesOut(t *testing.T) {
	locker, _ := newRedisLocker(t)
	ctx := context.Background()

	_, err := locker.Acquire(ctx, "locks:test", 2*time.Second, 50*time.Millisecond)
	require.NoError(t, err)

	start := time.Now()
	_, err = locker.Acquire(ctx, "locks:test", 2*time.Second, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockUnavailable)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestRedisLocker_ReleaseWithForeignTokenKeepsLock(t *testing.T) {
	locker, mr := newRedisLocker(t)
	ctx := context.Background()

	token, err := locker.Acquire(ctx, "locks:test", 2*time.Second, 50*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, locker.Release(ctx, "locks:test", "someone-else"))
	stored, err := mr.Get("locks:test")
	require.NoError(t, err)
	assert.Equal(t, token, stored)
}

func TestRedisLocker_ExpiredLockCanBeTaken(t *testing.T) {
	locker, mr := newRedisLocker(t)
	ctx := context.Background()

	first, err := locker.Acquire(ctx, "locks:test", time.Second, 50*time.Millisecond)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	second, err := locker.Acquire(ctx, "locks:test", time.Second, 50*time.Millisecond)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	// the stale holder must not free the new owner's lock
	require.NoError(t, locker.Release(ctx, "locks:test", first))
	assert.True(t, mr.Exists("locks:test"))
}

func TestRedisLocker_WaitsForRelease(t *testing.T) {
	locker, _ := newRedisLocker(t)
	ctx := context.Background()

	token, err := locker.Acquire(ctx, "locks:test", 2*time.Second, 50*time.Millisecond)
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = locker.Release(context.Background(), "locks:test", token)
	}()

	_, err = locker.Acquire(ctx, "locks:test", 2*time.Second, time.Second)
	assert.NoError(t, err)
}

func TestMemoryLocker_MutualExclusion(t *testing.T) {
	locker := NewMemoryLocker(clockwork.NewRealClock(), Options{RetryInterval: time.Millisecond})
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		inside  int32
		maxSeen int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := locker.Acquire(ctx, "locks:test", time.Second, 2*time.Second)
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				seen := atomic.LoadInt32(&maxSeen)
				if n <= seen || atomic.CompareAndSwapInt32(&maxSeen, seen, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			assert.NoError(t, locker.Release(ctx, "locks:test", token))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen)
	assert.False(t, locker.Held("locks:test"))
}

func TestMemoryLocker_ExpiryFollowsClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	locker := NewMemoryLocker(clock, Options{RetryInterval: time.Millisecond})
	ctx := context.Background()

	first, err := locker.Acquire(ctx, "locks:test", 2*time.Second, 10*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, locker.Held("locks:test"))

	_, err = locker.Acquire(ctx, "locks:test", 2*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockUnavailable)

	clock.Advance(3 * time.Second)
	assert.False(t, locker.Held("locks:test"))

	second, err := locker.Acquire(ctx, "locks:test", 2*time.Second, 10*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, locker.Release(ctx, "locks:test", first))
	assert.True(t, locker.Held("locks:test"))
	require.NoError(t, locker.Release(ctx, "locks:test", second))
	assert.False(t, locker.Held("locks:test"))
}

func TestMemoryLocker_CancelledContext(t *testing.T) {
	locker := NewMemoryLocker(nil, Options{RetryInterval: time.Millisecond})

	_, err := locker.Acquire(context.Background(), "locks:test", time.Second, time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = locker.Acquire(ctx, "locks:test", time.Second, time.Second)
	assert.ErrorIs(t, err, ErrLockUnavailable)
}
