// Package memory holds mutex-guarded repository implementations used by
// tests and single-process development setups.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-core/internal/model"
	"github.com/jwalitptl/scheduling-core/internal/repository"
)

type AppointmentRepository struct {
	mu    sync.RWMutex
	items map[uuid.UUID]model.Appointment
	// one-shot errors keyed by method name
	failNext map[string]error
}

func NewAppointmentRepository() *AppointmentRepository {
	return &AppointmentRepository{
		items:    make(map[uuid.UUID]model.Appointment),
		failNext: make(map[string]error),
	}
}

var _ repository.AppointmentRepository = (*AppointmentRepository)(nil)

// FailNext arranges for the next call to method to fail with err.
func (r *AppointmentRepository) FailNext(method string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext[method] = err
}

func (r *AppointmentRepository) injected(method string) error {
	if err, ok := r.failNext[method]; ok {
		delete(r.failNext, method)
		return err
	}
	return nil
}

// Count returns the number of stored appointments, cancelled included.
func (r *AppointmentRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

func (r *AppointmentRepository) Create(_ context.Context, appointment *model.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.injected("Create"); err != nil {
		return err
	}

	if appointment.ID == uuid.Nil {
		appointment.ID = uuid.New()
	}
	if _, exists := r.items[appointment.ID]; exists {
		return fmt.Errorf("failed to create appointment: duplicate id %s", appointment.ID)
	}
	if appointment.CreatedAt.IsZero() {
		appointment.CreatedAt = time.Now().UTC()
	}
	appointment.UpdatedAt = appointment.CreatedAt
	r.items[appointment.ID] = *appointment
	return nil
}

func (r *AppointmentRepository) Get(_ context.Context, id uuid.UUID) (*model.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.injected("Get"); err != nil {
		return nil, err
	}

	a, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("failed to get appointment: %w", repository.ErrNotFound)
	}
	return &a, nil
}

func (r *AppointmentRepository) UpdateDetails(_ context.Context, id uuid.UUID, notes *string, status *model.AppointmentStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.injected("UpdateDetails"); err != nil {
		return err
	}

	stored, ok := r.items[id]
	if !ok || stored.Status == model.AppointmentStatusCancelled {
		return fmt.Errorf("failed to update appointment: %w", repository.ErrStaleState)
	}
	if notes != nil {
		stored.Notes = *notes
	}
	if status != nil {
		stored.Status = *status
	}
	stored.UpdatedAt = at
	r.items[id] = stored
	return nil
}

func (r *AppointmentRepository) Reschedule(_ context.Context, id uuid.UUID, start, end time.Time, resetReminder bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.injected("Reschedule"); err != nil {
		return err
	}

	stored, ok := r.items[id]
	if !ok || stored.Status == model.AppointmentStatusCancelled {
		return fmt.Errorf("failed to reschedule appointment: %w", repository.ErrStaleState)
	}
	stored.StartAt, stored.EndAt = start, end
	if resetReminder {
		stored.ReminderSent = false
		stored.ReminderSentAt = nil
	}
	stored.UpdatedAt = at
	r.items[id] = stored
	return nil
}

func (r *AppointmentRepository) Cancel(_ context.Context, appointment *model.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.injected("Cancel"); err != nil {
		return err
	}

	stored, ok := r.items[appointment.ID]
	if !ok || stored.Status == model.AppointmentStatusCancelled {
		return fmt.Errorf("failed to cancel appointment: %w", repository.ErrStaleState)
	}
	stored.Status = model.AppointmentStatusCancelled
	stored.CancelledAt = appointment.CancelledAt
	stored.CancelledBy = appointment.CancelledBy
	stored.CancelReason = appointment.CancelReason
	if appointment.CancelledAt != nil {
		stored.UpdatedAt = *appointment.CancelledAt
	}
	r.items[appointment.ID] = stored
	return nil
}

func (r *AppointmentRepository) List(_ context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if filters == nil {
		filters = &model.AppointmentFilters{}
	}

	var out []*model.Appointment
	for _, a := range r.items {
		if filters.DoctorID != uuid.Nil && a.DoctorID != filters.DoctorID {
			continue
		}
		if filters.PatientID != uuid.Nil && a.PatientID != filters.PatientID {
			continue
		}
		if filters.Status != "" && a.Status != filters.Status {
			continue
		}
		if !filters.From.IsZero() && !a.EndAt.After(filters.From) {
			continue
		}
		if !filters.To.IsZero() && !a.StartAt.Before(filters.To) {
			continue
		}
		a := a
		out = append(out, &a)
	}
	sortByStart(out)

	offset, limit := filters.Offset(), filters.Limit()
	if offset >= len(out) {
		return []*model.Appointment{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *AppointmentRepository) FindDoctorOverlaps(_ context.Context, doctorID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) ([]*model.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.injected("FindDoctorOverlaps"); err != nil {
		return nil, err
	}
	return r.overlaps(func(a *model.Appointment) bool { return a.DoctorID == doctorID }, start, end, excludeID), nil
}

func (r *AppointmentRepository) FindPatientOverlaps(_ context.Context, patientID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) ([]*model.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.injected("FindPatientOverlaps"); err != nil {
		return nil, err
	}
	return r.overlaps(func(a *model.Appointment) bool { return a.PatientID == patientID }, start, end, excludeID), nil
}

func (r *AppointmentRepository) overlaps(owned func(*model.Appointment) bool, start, end time.Time, excludeID *uuid.UUID) []*model.Appointment {
	var out []*model.Appointment
	for _, a := range r.items {
		a := a
		if !owned(&a) || !a.Active() || !a.Overlaps(start, end) {
			continue
		}
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		out = append(out, &a)
	}
	sortByStart(out)
	return out
}

func (r *AppointmentRepository) MarkReminderSent(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.injected("MarkReminderSent"); err != nil {
		return err
	}

	stored, ok := r.items[id]
	if !ok || stored.ReminderSent {
		return fmt.Errorf("failed to mark reminder sent: %w", repository.ErrStaleState)
	}
	stored.ReminderSent = true
	stored.ReminderSentAt = &at
	stored.UpdatedAt = at
	r.items[id] = stored
	return nil
}

func sortByStart(items []*model.Appointment) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].StartAt.Before(items[j].StartAt)
	})
}
