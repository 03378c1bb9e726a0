package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentStatusScheduled, AppointmentStatusCompleted, AppointmentStatusCancelled:
		return true
	}
	return false
}

type Appointment struct {
	ID             uuid.UUID         `db:"id" json:"id"`
	DoctorID       uuid.UUID         `db:"doctor_id" json:"doctor_id"`
	PatientID      uuid.UUID         `db:"patient_id" json:"patient_id"`
	StartAt        time.Time         `db:"start_at" json:"start_at"`
	EndAt          time.Time         `db:"end_at" json:"end_at"`
	Status         AppointmentStatus `db:"status" json:"status"`
	Notes          string            `db:"notes" json:"notes,omitempty"`
	ReminderSent   bool              `db:"reminder_sent" json:"reminder_sent"`
	ReminderSentAt *time.Time        `db:"reminder_sent_at" json:"reminder_sent_at,omitempty"`
	CancelledAt    *time.Time        `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancelledBy    *uuid.UUID        `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CancelReason   *string           `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CreatedBy      *uuid.UUID        `db:"created_by" json:"created_by,omitempty"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at" json:"updated_at"`
}

// Active reports whether the appointment still blocks its time slot.
func (a *Appointment) Active() bool {
	return a.Status != AppointmentStatusCancelled
}

// Overlaps uses half-open intervals: [10:00,10:30) and [10:30,11:00) do not overlap.
func (a *Appointment) Overlaps(start, end time.Time) bool {
	return a.StartAt.Before(end) && a.EndAt.After(start)
}

type TimeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type AppointmentFilters struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Status    AppointmentStatus
	From      time.Time
	To        time.Time
	Pagination
}
