package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-core/internal/model"
)

const appointmentColumns = `
	id, doctor_id, patient_id, start_at, end_at, status, notes,
	reminder_sent, reminder_sent_at, cancelled_at, cancelled_by, cancel_reason,
	created_by, created_at, updated_at`

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	query := `
		INSERT INTO appointments (
			id, doctor_id, patient_id, start_at, end_at, status, notes,
			reminder_sent, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	if appointment.ID == uuid.Nil {
		appointment.ID = uuid.New()
	}
	if appointment.CreatedAt.IsZero() {
		appointment.CreatedAt = time.Now().UTC()
	}
	appointment.UpdatedAt = appointment.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		appointment.ID,
		appointment.DoctorID,
		appointment.PatientID,
		appointment.StartAt,
		appointment.EndAt,
		appointment.Status,
		appointment.Notes,
		appointment.ReminderSent,
		appointment.CreatedBy,
		appointment.CreatedAt,
		appointment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`

	var appointment model.Appointment
	if err := r.db.GetContext(ctx, &appointment, query, id); err != nil {
		return nil, notFound("failed to get appointment", err)
	}
	return &appointment, nil
}

func (r *appointmentRepository) UpdateDetails(ctx context.Context, id uuid.UUID, notes *string, status *model.AppointmentStatus, at time.Time) error {
	query := `
		UPDATE appointments
		SET notes = COALESCE($1, notes), status = COALESCE($2, status), updated_at = $3
		WHERE id = $4 AND status <> 'cancelled'
	`
	result, err := r.db.ExecContext(ctx, query, notes, status, at, id)
	if err != nil {
		return fmt.Errorf("failed to update appointment: %w", err)
	}
	return expectOne("failed to update appointment", result)
}

// Reschedule writes only the interval, so a reminder marker set by the worker
// survives unless resetReminder asks for it to be cleared.
func (r *appointmentRepository) Reschedule(ctx context.Context, id uuid.UUID, start, end time.Time, resetReminder bool, at time.Time) error {
	query := `
		UPDATE appointments
		SET start_at = $1, end_at = $2,
			reminder_sent = CASE WHEN $3::boolean THEN false ELSE reminder_sent END,
			reminder_sent_at = CASE WHEN $3::boolean THEN NULL ELSE reminder_sent_at END,
			updated_at = $4
		WHERE id = $5 AND status <> 'cancelled'
	`
	result, err := r.db.ExecContext(ctx, query, start, end, resetReminder, at, id)
	if err != nil {
		return fmt.Errorf("failed to reschedule appointment: %w", err)
	}
	return expectOne("failed to reschedule appointment", result)
}

func (r *appointmentRepository) Cancel(ctx context.Context, appointment *model.Appointment) error {
	query := `
		UPDATE appointments
		SET status = 'cancelled', cancelled_at = $1, cancelled_by = $2,
			cancel_reason = $3, updated_at = $1
		WHERE id = $4 AND status <> 'cancelled'
	`
	result, err := r.db.ExecContext(ctx, query,
		appointment.CancelledAt,
		appointment.CancelledBy,
		appointment.CancelReason,
		appointment.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to cancel appointment: %w", err)
	}
	return expectOne("failed to cancel appointment", result)
}

func (r *appointmentRepository) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE 1=1`
	var args []interface{}
	argCount := 1

	if filters != nil {
		if filters.DoctorID != uuid.Nil {
			query += fmt.Sprintf(" AND doctor_id = $%d", argCount)
			args = append(args, filters.DoctorID)
			argCount++
		}
		if filters.PatientID != uuid.Nil {
			query += fmt.Sprintf(" AND patient_id = $%d", argCount)
			args = append(args, filters.PatientID)
			argCount++
		}
		if filters.Status != "" {
			query += fmt.Sprintf(" AND status = $%d", argCount)
			args = append(args, filters.Status)
			argCount++
		}
		if !filters.From.IsZero() {
			query += fmt.Sprintf(" AND end_at > $%d", argCount)
			args = append(args, filters.From)
			argCount++
		}
		if !filters.To.IsZero() {
			query += fmt.Sprintf(" AND start_at < $%d", argCount)
			args = append(args, filters.To)
			argCount++
		}
	} else {
		filters = &model.AppointmentFilters{}
	}

	query += fmt.Sprintf(" ORDER BY start_at ASC LIMIT $%d OFFSET $%d", argCount, argCount+1)
	args = append(args, filters.Limit(), filters.Offset())

	appointments := []*model.Appointment{}
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) FindDoctorOverlaps(ctx context.Context, doctorID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) ([]*model.Appointment, error) {
	return r.findOverlaps(ctx, "doctor_id", doctorID, start, end, excludeID)
}

func (r *appointmentRepository) FindPatientOverlaps(ctx context.Context, patientID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) ([]*model.Appointment, error) {
	return r.findOverlaps(ctx, "patient_id", patientID, start, end, excludeID)
}

// findOverlaps treats intervals as half-open, so back-to-back slots do not
// collide.
func (r *appointmentRepository) findOverlaps(ctx context.Context, column string, ownerID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) ([]*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments
		WHERE ` + column + ` = $1
		AND status <> 'cancelled'
		AND start_at < $3
		AND end_at > $2`
	args := []interface{}{ownerID, start, end}

	if excludeID != nil {
		query += " AND id <> $4"
		args = append(args, *excludeID)
	}
	query += " ORDER BY start_at ASC"

	appointments := []*model.Appointment{}
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, fmt.Errorf("failed to find overlapping appointments by %s: %w", column, err)
	}
	return appointments, nil
}

func (r *appointmentRepository) MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE appointments
		SET reminder_sent = true, reminder_sent_at = $2, updated_at = $2
		WHERE id = $1 AND reminder_sent = false
	`
	result, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark reminder sent: %w", err)
	}
	return expectOne("failed to mark reminder sent", result)
}
