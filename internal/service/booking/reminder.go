package booking

import (
	"context"
	"time"

	"github.com/jwalitptl/scheduling-core/internal/model"
	"github.com/jwalitptl/scheduling-core/pkg/queue"
)

// ReminderSendAt is start minus lead, or now when that is already past.
func ReminderSendAt(start, now time.Time, lead time.Duration) time.Time {
	sendAt := start.Add(-lead)
	if sendAt.Before(now) {
		return now
	}
	return sendAt
}

func (s *Service) reminderJob(apt *model.Appointment) *model.Job {
	patientID, doctorID := apt.PatientID, apt.DoctorID
	return &model.Job{
		Type:      model.JobTypeReminder,
		SubjectID: apt.ID,
		PatientID: &patientID,
		DoctorID:  &doctorID,
		SendAt:    ReminderSendAt(apt.StartAt, s.clock.Now().UTC(), s.cfg.ReminderLeadTime),
	}
}

// scheduleReminder never fails the booking: the appointment already exists
// and a missing reminder is only logged and counted.
func (s *Service) scheduleReminder(ctx context.Context, apt *model.Appointment) {
	job := s.reminderJob(apt)
	if err := s.queue.Enqueue(ctx, s.cfg.ReminderQueue, job); err != nil {
		s.metrics.ReminderEnqueueFailures.Inc()
		s.log.Error(err, "failed to enqueue reminder", "appointment_id", apt.ID.String())
		return
	}
	s.log.Debug("reminder scheduled",
		"appointment_id", apt.ID.String(),
		"send_at", job.SendAt.Format(time.RFC3339),
	)
}

// dropReminder removes a pending reminder for apt, if one is still queued.
func (s *Service) dropReminder(ctx context.Context, apt *model.Appointment) {
	removed, err := s.queue.RemoveMatching(ctx, s.cfg.ReminderQueue, queue.MatchSubject(model.JobTypeReminder, apt.ID))
	if err != nil {
		s.log.Error(err, "failed to remove reminder", "appointment_id", apt.ID.String())
		return
	}
	s.log.Debug("reminder removal", "appointment_id", apt.ID.String(), "removed", removed)
}
