package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/scheduling-core/internal/model"
	"github.com/jwalitptl/scheduling-core/internal/repository"
)

// Directory resolves the participants of a booking.
type Directory interface {
	Doctor(ctx context.Context, id uuid.UUID) (*model.User, error)
	Patient(ctx context.Context, id uuid.UUID) (*model.Patient, error)
}

// CachedDirectory memoises successful lookups for ttl. Misses are not cached
// so a freshly created doctor becomes bookable immediately.
type CachedDirectory struct {
	users    repository.UserRepository
	patients repository.PatientRepository
	cache    *cache.Cache
}

func NewCachedDirectory(users repository.UserRepository, patients repository.PatientRepository, ttl time.Duration) *CachedDirectory {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedDirectory{
		users:    users,
		patients: patients,
		cache:    cache.New(ttl, 2*ttl),
	}
}

func (d *CachedDirectory) Doctor(ctx context.Context, id uuid.UUID) (*model.User, error) {
	key := "user:" + id.String()
	if cached, found := d.cache.Get(key); found {
		u := *cached.(*model.User)
		return &u, nil
	}

	u, err := d.users.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	cp := *u
	d.cache.Set(key, &cp, cache.DefaultExpiration)
	return u, nil
}

func (d *CachedDirectory) Patient(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	key := "patient:" + id.String()
	if cached, found := d.cache.Get(key); found {
		p := *cached.(*model.Patient)
		return &p, nil
	}

	p, err := d.patients.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	cp := *p
	d.cache.Set(key, &cp, cache.DefaultExpiration)
	return p, nil
}

// Forget evicts a cached entry, for example after a role change.
func (d *CachedDirectory) Forget(id uuid.UUID) {
	d.cache.Delete("user:" + id.String())
	d.cache.Delete("patient:" + id.String())
}
