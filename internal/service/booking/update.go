package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-core/internal/model"
	"github.com/jwalitptl/scheduling-core/internal/repository"
	apperrors "github.com/jwalitptl/scheduling-core/pkg/errors"
)

var errCancelledImmutable = apperrors.NewBadRequest("cancelled appointments cannot be updated", nil)

type UpdateInput struct {
	StartAt *time.Time
	EndAt   *time.Time
	Notes   *string
	Status  *model.AppointmentStatus
}

type CancelInput struct {
	CancelledBy *uuid.UUID
	Reason      *string
}

// Update changes notes, status or the interval of an appointment. A new
// interval goes through the same lock and overlap checks as Create. Each
// repository write touches only the fields it owns, so a notes change cannot
// undo a concurrent reschedule or a reminder marked as sent.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, translate("appointment", err)
	}
	if apt.Status == model.AppointmentStatusCancelled {
		return nil, errCancelledImmutable
	}
	if err := validateStatusChange(apt.Status, in.Status); err != nil {
		return nil, err
	}

	start, end := apt.StartAt, apt.EndAt
	if in.StartAt != nil {
		start = *in.StartAt
		if in.EndAt == nil {
			// keep the current length
			end = start.Add(apt.EndAt.Sub(apt.StartAt))
		}
	}
	if in.EndAt != nil {
		end = *in.EndAt
	}

	if start.Equal(apt.StartAt) && end.Equal(apt.EndAt) {
		if err := s.updateDetails(ctx, id, in); err != nil {
			return nil, err
		}
		return s.Get(ctx, id)
	}

	start, end, err = s.interval(start, end, 0)
	if err != nil {
		return nil, err
	}

	var updated *model.Appointment
	err = s.withDoctorLock(ctx, apt.DoctorID, func(ctx context.Context) error {
		// re-read under the lock; the appointment may have changed meanwhile
		current, err := s.repo.Get(ctx, id)
		if err != nil {
			return translate("appointment", err)
		}
		if current.Status == model.AppointmentStatusCancelled {
			return errCancelledImmutable
		}

		if err := s.checkOverlaps(ctx, current.DoctorID, current.PatientID, start, end, &current.ID); err != nil {
			return err
		}

		startMoved := !start.Equal(current.StartAt)
		if err := s.repo.Reschedule(ctx, id, start, end, startMoved, s.clock.Now().UTC()); err != nil {
			return s.updateFailed(err)
		}
		if err := s.updateDetails(ctx, id, in); err != nil {
			return err
		}

		if updated, err = s.repo.Get(ctx, id); err != nil {
			return translate("appointment", err)
		}
		if startMoved && updated.Status == model.AppointmentStatusScheduled {
			s.dropReminder(ctx, updated)
			s.scheduleReminder(ctx, updated)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("appointment rescheduled",
		"appointment_id", updated.ID.String(),
		"start_at", updated.StartAt.Format(time.RFC3339),
	)
	return updated, nil
}

func (s *Service) updateDetails(ctx context.Context, id uuid.UUID, in UpdateInput) error {
	if in.Notes == nil && in.Status == nil {
		return nil
	}
	if err := s.repo.UpdateDetails(ctx, id, in.Notes, in.Status, s.clock.Now().UTC()); err != nil {
		return s.updateFailed(err)
	}
	return nil
}

// Cancel is idempotent: cancelling a cancelled appointment returns it as is.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, in CancelInput) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, translate("appointment", err)
	}

	switch apt.Status {
	case model.AppointmentStatusCancelled:
		return apt, nil
	case model.AppointmentStatusCompleted:
		return nil, apperrors.NewBadRequest("completed appointments cannot be cancelled", nil)
	}

	now := s.clock.Now().UTC()
	apt.Status = model.AppointmentStatusCancelled
	apt.CancelledAt = &now
	apt.CancelledBy = in.CancelledBy
	apt.CancelReason = in.Reason
	apt.UpdatedAt = now

	if err := s.repo.Cancel(ctx, apt); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			// lost a race with another cancel
			return s.Get(ctx, id)
		}
		return nil, apperrors.NewInternal(fmt.Errorf("failed to cancel appointment: %w", err))
	}

	s.metrics.BookingsCancelled.Inc()
	s.dropReminder(ctx, apt)

	s.log.Info("appointment cancelled", "appointment_id", apt.ID.String())
	return apt, nil
}

func validateStatusChange(from model.AppointmentStatus, to *model.AppointmentStatus) error {
	if to == nil || *to == from {
		return nil
	}
	switch {
	case !to.Valid():
		return apperrors.NewBadRequest(fmt.Sprintf("unknown status %q", *to), nil)
	case *to == model.AppointmentStatusCancelled:
		return apperrors.NewBadRequest("use cancel to cancel an appointment", nil)
	case from == model.AppointmentStatusScheduled && *to == model.AppointmentStatusCompleted:
		return nil
	}
	return apperrors.NewBadRequest(fmt.Sprintf("cannot move appointment from %s to %s", from, *to), nil)
}

func (s *Service) updateFailed(err error) error {
	if errors.Is(err, repository.ErrStaleState) {
		return errCancelledImmutable
	}
	return apperrors.NewInternal(fmt.Errorf("failed to update appointment: %w", err))
}
