package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/jwalitptl/scheduling-core/internal/model"
	"github.com/jwalitptl/scheduling-core/internal/repository"
	apperrors "github.com/jwalitptl/scheduling-core/pkg/errors"
	"github.com/jwalitptl/scheduling-core/pkg/lock"
	"github.com/jwalitptl/scheduling-core/pkg/logger"
	"github.com/jwalitptl/scheduling-core/pkg/metrics"
	"github.com/jwalitptl/scheduling-core/pkg/queue"
)

const (
	DefaultLockTTL            = 2 * time.Second
	DefaultLockAcquireTimeout = 2 * time.Second
	DefaultDuration           = 30 * time.Minute
	DefaultReminderLeadTime   = 24 * time.Hour
	DefaultReminderQueue      = "queue:appointments:reminders"
)

type Config struct {
	LockTTL            time.Duration
	LockAcquireTimeout time.Duration
	DefaultDuration    time.Duration
	ReminderLeadTime   time.Duration
	ReminderQueue      string
}

func (c Config) withDefaults() Config {
	if c.LockTTL <= 0 {
		c.LockTTL = DefaultLockTTL
	}
	if c.LockAcquireTimeout <= 0 {
		c.LockAcquireTimeout = DefaultLockAcquireTimeout
	}
	if c.DefaultDuration <= 0 {
		c.DefaultDuration = DefaultDuration
	}
	if c.ReminderLeadTime <= 0 {
		c.ReminderLeadTime = DefaultReminderLeadTime
	}
	if c.ReminderQueue == "" {
		c.ReminderQueue = DefaultReminderQueue
	}
	return c
}

type Option func(*Service)

func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

func WithLogger(log *logger.Logger) Option {
	return func(s *Service) { s.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// Service books appointments. Writes for one doctor are serialised through a
// per-doctor lock; the patient check runs under the same lock but is not
// locked per patient.
type Service struct {
	repo      repository.AppointmentRepository
	directory Directory
	locker    lock.Locker
	queue     queue.Queue
	cfg       Config
	clock     clockwork.Clock
	log       *logger.Logger
	metrics   *metrics.Metrics
}

func NewService(repo repository.AppointmentRepository, directory Directory, locker lock.Locker, q queue.Queue, cfg Config, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		directory: directory,
		locker:    locker,
		queue:     q,
		cfg:       cfg.withDefaults(),
		clock:     clockwork.NewRealClock(),
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New("booking")
	}
	return s
}

type CreateInput struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	StartAt   time.Time
	// EndAt wins over Duration; both zero means the default duration.
	EndAt     time.Time
	Duration  time.Duration
	Notes     string
	CreatedBy *uuid.UUID
}

// Create books [StartAt, EndAt) for the doctor and patient. Of two
// concurrent overlapping requests for one doctor at most one succeeds; the
// other gets a Conflict.
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.Appointment, error) {
	start, end, err := s.interval(in.StartAt, in.EndAt, in.Duration)
	if err != nil {
		return nil, err
	}
	if in.DoctorID == uuid.Nil {
		return nil, apperrors.NewBadRequest("doctor_id is required", nil)
	}
	if in.PatientID == uuid.Nil {
		return nil, apperrors.NewBadRequest("patient_id is required", nil)
	}

	if err := s.resolveParticipants(ctx, in.DoctorID, in.PatientID); err != nil {
		return nil, err
	}

	apt := &model.Appointment{
		ID:        uuid.New(),
		DoctorID:  in.DoctorID,
		PatientID: in.PatientID,
		StartAt:   start,
		EndAt:     end,
		Status:    model.AppointmentStatusScheduled,
		Notes:     in.Notes,
		CreatedBy: in.CreatedBy,
	}

	err = s.withDoctorLock(ctx, in.DoctorID, func(ctx context.Context) error {
		if err := s.checkOverlaps(ctx, apt.DoctorID, apt.PatientID, start, end, nil); err != nil {
			return err
		}

		apt.CreatedAt = s.clock.Now().UTC()
		if err := s.repo.Create(ctx, apt); err != nil {
			return apperrors.NewInternal(fmt.Errorf("failed to create appointment: %w", err))
		}

		s.scheduleReminder(ctx, apt)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.BookingsCreated.Inc()
	s.log.Info("appointment booked",
		"appointment_id", apt.ID.String(),
		"doctor_id", apt.DoctorID.String(),
		"patient_id", apt.PatientID.String(),
		"start_at", apt.StartAt.Format(time.RFC3339),
	)
	return apt, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, translate("appointment", err)
	}
	return apt, nil
}

func (s *Service) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	if filters != nil {
		if filters.Status != "" && !filters.Status.Valid() {
			return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown status %q", filters.Status), nil)
		}
		if !filters.From.IsZero() && !filters.To.IsZero() && !filters.From.Before(filters.To) {
			return nil, apperrors.NewBadRequest("from must be before to", nil)
		}
	}

	items, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return items, nil
}

func (s *Service) interval(start, end time.Time, duration time.Duration) (time.Time, time.Time, error) {
	if start.IsZero() {
		return time.Time{}, time.Time{}, apperrors.NewBadRequest("start_at is required", nil)
	}
	if end.IsZero() {
		if duration <= 0 {
			duration = s.cfg.DefaultDuration
		}
		end = start.Add(duration)
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, apperrors.NewBadRequest("start_at must be before end_at", nil)
	}
	return start.UTC(), end.UTC(), nil
}

func (s *Service) resolveParticipants(ctx context.Context, doctorID, patientID uuid.UUID) error {
	doctor, err := s.directory.Doctor(ctx, doctorID)
	if err != nil {
		return translate("doctor", err)
	}
	if !doctor.IsDoctor() {
		return apperrors.NewBadRequest("user is not a doctor", nil)
	}

	if _, err := s.directory.Patient(ctx, patientID); err != nil {
		return translate("patient", err)
	}
	return nil
}

// withDoctorLock runs fn while holding the doctor's booking lock. The lock is
// released on every path, including a cancelled request context.
func (s *Service) withDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(context.Context) error) error {
	key := lock.AppointmentDoctorKey(doctorID)

	started := time.Now()
	token, err := s.locker.Acquire(ctx, key, s.cfg.LockTTL, s.cfg.LockAcquireTimeout)
	s.metrics.LockAcquireLatency.Observe(time.Since(started).Seconds())
	if err != nil {
		if errors.Is(err, lock.ErrLockUnavailable) {
			s.metrics.LockUnavailable.Inc()
			s.log.Warn("doctor lock unavailable", "doctor_id", doctorID.String())
			return apperrors.NewLockUnavailable(err)
		}
		return apperrors.NewInternal(err)
	}

	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			s.log.Error(err, "failed to release doctor lock", "doctor_id", doctorID.String())
		}
	}()

	return fn(ctx)
}

// checkOverlaps rejects [start, end) when it intersects an active appointment
// of the doctor or of the patient.
func (s *Service) checkOverlaps(ctx context.Context, doctorID, patientID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) error {
	clashes, err := s.repo.FindDoctorOverlaps(ctx, doctorID, start, end, excludeID)
	if err != nil {
		return apperrors.NewInternal(err)
	}
	if len(clashes) > 0 {
		s.metrics.BookingConflicts.WithLabelValues("doctor").Inc()
		return apperrors.NewConflict("doctor already has an appointment in this time slot", nil)
	}

	clashes, err = s.repo.FindPatientOverlaps(ctx, patientID, start, end, excludeID)
	if err != nil {
		return apperrors.NewInternal(err)
	}
	if len(clashes) > 0 {
		s.metrics.BookingConflicts.WithLabelValues("patient").Inc()
		return apperrors.NewConflict("patient already has an appointment in this time slot", nil)
	}
	return nil
}

func translate(resource string, err error) error {
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(resource, err)
	default:
		return apperrors.NewInternal(err)
	}
}
