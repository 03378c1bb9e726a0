package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/scheduling-core/internal/model"
	"github.com/jwalitptl/scheduling-core/internal/repository/memory"
	apperrors "github.com/jwalitptl/scheduling-core/pkg/errors"
	"github.com/jwalitptl/scheduling-core/pkg/lock"
	"github.com/jwalitptl/scheduling-core/pkg/metrics"
	"github.com/jwalitptl/scheduling-core/pkg/queue"
)

var testNow = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *Service
	repo    *memory.AppointmentRepository
	dir     *memory.Directory
	locker  *lock.MemoryLocker
	queue   *queue.MemoryQueue
	clock   clockwork.FakeClock
	metrics *metrics.Metrics
	doctor  model.User
	patient model.Patient
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		repo:    memory.NewAppointmentRepository(),
		dir:     memory.NewDirectory(),
		queue:   queue.NewMemoryQueue(),
		clock:   clockwork.NewFakeClockAt(testNow),
		metrics: metrics.New("booking_test"),
	}
	f.locker = lock.NewMemoryLocker(f.clock, lock.Options{RetryInterval: time.Millisecond})
	f.doctor = f.addUser(model.RoleDoctor)
	f.patient = f.addPatient()

	f.svc = NewService(
		f.repo,
		NewCachedDirectory(f.dir.Users(), f.dir.Patients(), time.Minute),
		f.locker,
		f.queue,
		cfg,
		WithClock(f.clock),
		WithMetrics(f.metrics),
	)
	return f
}

func (f *fixture) addUser(role model.Role) model.User {
	u := model.User{
		ID:        uuid.New(),
		Email:     gofakeit.Email(),
		FirstName: gofakeit.FirstName(),
		LastName:  gofakeit.LastName(),
		Role:      role,
	}
	f.dir.PutUser(u)
	return u
}

func (f *fixture) addPatient() model.Patient {
	p := model.Patient{
		ID:        uuid.New(),
		FirstName: gofakeit.FirstName(),
		LastName:  gofakeit.LastName(),
		Email:     gofakeit.Email(),
	}
	f.dir.PutPatient(p)
	return p
}

func (f *fixture) input(start, end time.Time) CreateInput {
	return CreateInput{
		DoctorID:  f.doctor.ID,
		PatientID: f.patient.ID,
		StartAt:   start,
		EndAt:     end,
	}
}

func (f *fixture) reminders() []*model.Job {
	return f.queue.Jobs(DefaultReminderQueue)
}

func at(day, hour, minute int) time.Time {
	return time.Date(2026, 3, day, hour, minute, 0, 0, time.UTC)
}

func TestCreate_BooksAndSchedulesReminder(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	apt, err := f.svc.Create(ctx, f.input(at(3, 10, 0), at(3, 10, 30)))
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, apt.ID)
	assert.Equal(t, model.AppointmentStatusScheduled, apt.Status)
	assert.Equal(t, testNow, apt.CreatedAt)

	stored, err := f.svc.Get(ctx, apt.ID)
	require.NoError(t, err)
	assert.Equal(t, apt.StartAt, stored.StartAt)

	jobs := f.reminders()
	require.Len(t, jobs, 1)
	assert.Equal(t, model.JobTypeReminder, jobs[0].Type)
	assert.Equal(t, apt.ID, jobs[0].SubjectID)
	assert.Equal(t, f.patient.ID, *jobs[0].PatientID)
	assert.Equal(t, f.doctor.ID, *jobs[0].DoctorID)
	assert.True(t, at(2, 10, 0).Equal(jobs[0].SendAt), "reminder goes out a day ahead, got %s", jobs[0].SendAt)
	assert.Zero(t, jobs[0].Attempts)

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.BookingsCreated))
	assert.False(t, f.locker.Held(lock.AppointmentDoctorKey(f.doctor.ID)))
}

func TestCreate_ReminderForSoonAppointmentIsDueNow(t *testing.T) {
	f := newFixture(t, Config{})

	_, err := f.svc.Create(context.Background(), f.input(testNow.Add(3*time.Hour), time.Time{}))
	require.NoError(t, err)

	jobs := f.reminders()
	require.Len(t, jobs, 1)
	assert.True(t, testNow.Equal(jobs[0].SendAt))
}

func TestReminderSendAt(t *testing.T) {
	lead := 24 * time.Hour
	assert.Equal(t, at(2, 10, 0), ReminderSendAt(at(3, 10, 0), testNow, lead))
	assert.Equal(t, testNow, ReminderSendAt(at(1, 20, 0), testNow, lead))
	assert.Equal(t, testNow, ReminderSendAt(at(2, 8, 0), testNow, lead))
}

func TestCreate_DefaultAndExplicitDuration(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	apt, err := f.svc.Create(ctx, f.input(at(3, 9, 0), time.Time{}))
	require.NoError(t, err)
	assert.Equal(t, at(3, 9, 30), apt.EndAt)

	in := f.input(at(3, 11, 0), time.Time{})
	in.Duration = 45 * time.Minute
	apt, err = f.svc.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, at(3, 11, 45), apt.EndAt)
}

func TestCreate_HalfOpenIntervals(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.input(at(3, 10, 0), at(3, 10, 30)))
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, f.input(at(3, 10, 15), at(3, 10, 45)))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict), "got %v", err)

	_, err = f.svc.Create(ctx, f.input(at(3, 10, 30), at(3, 11, 0)))
	assert.NoError(t, err)

	assert.Equal(t, 2, f.repo.Count())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.BookingConflicts.WithLabelValues("doctor")))
}

func TestCreate_PatientDoubleBooking(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	other := f.addUser(model.RoleDoctor)

	_, err := f.svc.Create(ctx, f.input(at(3, 10, 0), at(3, 10, 30)))
	require.NoError(t, err)

	in := f.input(at(3, 10, 10), at(3, 10, 20))
	in.DoctorID = other.ID
	_, err = f.svc.Create(ctx, in)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict), "got %v", err)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.BookingConflicts.WithLabelValues("patient")))
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	nurse := f.addUser(model.RoleNurse)

	tests := []struct {
		name string
		in   func() CreateInput
		code apperrors.ErrorCode
	}{
		{"missing start", func() CreateInput { return f.input(time.Time{}, time.Time{}) }, apperrors.ErrBadRequest},
		{"end before start", func() CreateInput { return f.input(at(3, 10, 0), at(3, 9, 0)) }, apperrors.ErrBadRequest},
		{"empty interval", func() CreateInput { return f.input(at(3, 10, 0), at(3, 10, 0)) }, apperrors.ErrBadRequest},
		{"missing doctor", func() CreateInput {
			in := f.input(at(3, 10, 0), time.Time{})
			in.DoctorID = uuid.Nil
			return in
		}, apperrors.ErrBadRequest},
		{"unknown doctor", func() CreateInput {
			in := f.input(at(3, 10, 0), time.Time{})
			in.DoctorID = uuid.New()
			return in
		}, apperrors.ErrNotFound},
		{"not a doctor", func() CreateInput {
			in := f.input(at(3, 10, 0), time.Time{})
			in.DoctorID = nurse.ID
			return in
		}, apperrors.ErrBadRequest},
		{"unknown patient", func() CreateInput {
			in := f.input(at(3, 10, 0), time.Time{})
			in.PatientID = uuid.New()
			return in
		}, apperrors.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.in())
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.CodeOf(err), "got %v", err)
		})
	}

	assert.Zero(t, f.repo.Count())
	assert.Empty(t, f.reminders())
}

func TestCreate_ConcurrentOverlappingRequests(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	second := f.addPatient()

	inputs := []CreateInput{
		f.input(at(3, 10, 0), at(3, 10, 30)),
		{DoctorID: f.doctor.ID, PatientID: second.ID, StartAt: at(3, 10, 15), EndAt: at(3, 10, 45)},
	}

	errs := make([]error, len(inputs))
	var wg sync.WaitGroup
	for i := range inputs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Create(ctx, inputs[i])
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperrors.IsCode(err, apperrors.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, 1, f.repo.Count())
	assert.Len(t, f.reminders(), 1)
}

func TestCreate_ConcurrentIdenticalRequests(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	const n = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Create(ctx, f.input(at(3, 14, 0), at(3, 14, 30)))
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict), "got %v", err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, f.repo.Count())
	assert.Len(t, f.reminders(), 1)
}

func TestCreate_LockUnavailable(t *testing.T) {
	f := newFixture(t, Config{LockAcquireTimeout: 20 * time.Millisecond})
	ctx := context.Background()

	_, err := f.locker.Acquire(ctx, lock.AppointmentDoctorKey(f.doctor.ID), time.Minute, time.Second)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, f.input(at(3, 10, 0), time.Time{}))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrLockUnavailable), "got %v", err)
	assert.ErrorIs(t, err, lock.ErrLockUnavailable)
	assert.Zero(t, f.repo.Count())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.LockUnavailable))

	// an expired holder no longer blocks bookings
	f.clock.Advance(2 * time.Minute)
	_, err = f.svc.Create(ctx, f.input(at(3, 10, 0), time.Time{}))
	assert.NoError(t, err)
}

func TestCreate_RepositoryFailureReleasesLock(t *testing.T) {
	f := newFixture(t, Config{})
	f.repo.FailNext("Create", errors.New("connection reset"))

	_, err := f.svc.Create(context.Background(), f.input(at(3, 10, 0), time.Time{}))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInternal), "got %v", err)
	assert.False(t, f.locker.Held(lock.AppointmentDoctorKey(f.doctor.ID)))
	assert.Empty(t, f.reminders())
}

type failingQueue struct {
	queue.Queue
}

func (failingQueue) Enqueue(context.Context, string, *model.Job) error {
	return errors.New("redis down")
}

func TestCreate_ReminderFailureDoesNotFailBooking(t *testing.T) {
	f := newFixture(t, Config{})
	f.svc.queue = failingQueue{Queue: f.queue}

	apt, err := f.svc.Create(context.Background(), f.input(at(3, 10, 0), time.Time{}))
	require.NoError(t, err)
	assert.NotNil(t, apt)
	assert.Equal(t, 1, f.repo.Count())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.ReminderEnqueueFailures))
}

func TestList(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	first, err := f.svc.Create(ctx, f.input(at(3, 9, 0), time.Time{}))
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, f.input(at(4, 9, 0), time.Time{}))
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, first.ID, CancelInput{})
	require.NoError(t, err)

	items, err := f.svc.List(ctx, &model.AppointmentFilters{DoctorID: f.doctor.ID})
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.True(t, items[0].StartAt.Before(items[1].StartAt))

	items, err = f.svc.List(ctx, &model.AppointmentFilters{Status: model.AppointmentStatusScheduled})
	require.NoError(t, err)
	assert.Len(t, items, 1)

	items, err = f.svc.List(ctx, &model.AppointmentFilters{From: at(4, 0, 0), To: at(5, 0, 0)})
	require.NoError(t, err)
	assert.Len(t, items, 1)

	_, err = f.svc.List(ctx, &model.AppointmentFilters{Status: "pending"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrBadRequest))

	_, err = f.svc.List(ctx, &model.AppointmentFilters{From: at(5, 0, 0), To: at(4, 0, 0)})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrBadRequest))
}

func TestGet_NotFound(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.svc.Get(context.Background(), uuid.New())
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
}
