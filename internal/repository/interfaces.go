package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-core/internal/model"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrStaleState is returned by conditional updates whose precondition no
	// longer holds (already marked, already cancelled).
	ErrStaleState = errors.New("record state changed")
)

// All repository interfaces in one file
type (
	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		// UpdateDetails sets notes and status (nil leaves a field as is) on a
		// non-cancelled appointment. It never touches the interval or the
		// reminder marker.
		UpdateDetails(ctx context.Context, id uuid.UUID, notes *string, status *model.AppointmentStatus, at time.Time) error
		// Reschedule moves a non-cancelled appointment to [start, end).
		// resetReminder clears the reminder-sent marker.
		Reschedule(ctx context.Context, id uuid.UUID, start, end time.Time, resetReminder bool, at time.Time) error
		// Cancel moves a non-cancelled appointment to cancelled.
		Cancel(ctx context.Context, appointment *model.Appointment) error
		List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error)
		// FindDoctorOverlaps returns active appointments of the doctor whose
		// half-open interval intersects [start, end).
		FindDoctorOverlaps(ctx context.Context, doctorID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) ([]*model.Appointment, error)
		FindPatientOverlaps(ctx context.Context, patientID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) ([]*model.Appointment, error)
		MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error
	}

	UserRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
	}

	PatientRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
	}

	LabResultRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.LabResult, error)
		MarkNotified(ctx context.Context, id uuid.UUID, at time.Time) error
	}

	PrescriptionRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Prescription, error)
		MarkNotified(ctx context.Context, id uuid.UUID, status model.PrescriptionStatus) error
	}

	PharmacyRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Pharmacy, error)
	}
)
