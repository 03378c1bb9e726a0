package lock

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jwalitptl/scheduling-core/pkg/logger"
)

type memoryEntry struct {
	token     string
	expiresAt time.Time
}

// MemoryLocker mirrors RedisLocker inside a single process. Expiry follows
// the injected clock.
type MemoryLocker struct {
	mu            sync.Mutex
	entries       map[string]memoryEntry
	clock         clockwork.Clock
	retryInterval time.Duration
	log           *logger.Logger
}

func NewMemoryLocker(clock clockwork.Clock, opts Options) *MemoryLocker {
	opts = opts.withDefaults()
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryLocker{
		entries:       make(map[string]memoryEntry),
		clock:         clock,
		retryInterval: opts.RetryInterval,
		log:           opts.Logger,
	}
}

var _ Locker = (*MemoryLocker)(nil)

func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (string, error) {
	token := newToken()

	err := retry(ctx, wait, l.retryInterval, func(context.Context) (bool, error) {
		l.mu.Lock()
		defer l.mu.Unlock()

		now := l.clock.Now()
		if e, held := l.entries[key]; held && now.Before(e.expiresAt) {
			return false, nil
		}
		l.entries[key] = memoryEntry{token: token, expiresAt: now.Add(ttl)}
		return true, nil
	})
	if err != nil {
		return "", err
	}

	l.log.Debug("lock acquired", "key", key, "ttl", ttl.String())
	return token, nil
}

func (l *MemoryLocker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, held := l.entries[key]
	released := held && e.token == token && l.clock.Now().Before(e.expiresAt)
	if released {
		delete(l.entries, key)
	}

	l.log.Debug("lock released", "key", key, "released", released)
	return nil
}

// Held reports whether key is currently locked.
func (l *MemoryLocker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, held := l.entries[key]
	return held && l.clock.Now().Before(e.expiresAt)
}
