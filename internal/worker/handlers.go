package worker

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/jwalitptl/scheduling-core/internal/email"
	"github.com/jwalitptl/scheduling-core/internal/model"
	"github.com/jwalitptl/scheduling-core/internal/repository"
)

// ReminderHandler sends the appointment reminder to the patient once.
type ReminderHandler struct {
	appointments repository.AppointmentRepository
	users        repository.UserRepository
	patients     repository.PatientRepository
	clock        clockwork.Clock
}

func NewReminderHandler(appointments repository.AppointmentRepository, users repository.UserRepository, patients repository.PatientRepository, clock clockwork.Clock) *ReminderHandler {
	return &ReminderHandler{appointments: appointments, users: users, patients: patients, clock: orRealClock(clock)}
}

func (h *ReminderHandler) Prepare(ctx context.Context, job *model.Job) ([]email.Message, error) {
	apt, err := h.appointments.Get(ctx, job.SubjectID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, skip("appointment %s not found", job.SubjectID)
	}
	if err != nil {
		return nil, err
	}
	if apt.Status != model.AppointmentStatusScheduled {
		return nil, skip("appointment is %s", apt.Status)
	}
	if apt.ReminderSent {
		return nil, skip("reminder already sent")
	}

	to, _, err := patientContact(ctx, h.patients, apt.PatientID)
	if err != nil {
		return nil, err
	}
	if to == "" {
		return nil, skip("no email for patient %s", apt.PatientID)
	}

	var doctorName string
	doctor, err := h.users.Get(ctx, apt.DoctorID)
	switch {
	case err == nil:
		doctorName = doctor.FullName()
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	subject, body := email.AppointmentReminder(doctorName, apt.StartAt)
	return []email.Message{{To: to, Subject: subject, Body: body}}, nil
}

func (h *ReminderHandler) MarkDelivered(ctx context.Context, job *model.Job) error {
	return h.appointments.MarkReminderSent(ctx, job.SubjectID, h.clock.Now().UTC())
}

// LabResultHandler tells the patient and the ordering doctor that results
// were uploaded.
type LabResultHandler struct {
	results  repository.LabResultRepository
	users    repository.UserRepository
	patients repository.PatientRepository
	clock    clockwork.Clock
}

func NewLabResultHandler(results repository.LabResultRepository, users repository.UserRepository, patients repository.PatientRepository, clock clockwork.Clock) *LabResultHandler {
	return &LabResultHandler{results: results, users: users, patients: patients, clock: orRealClock(clock)}
}

func (h *LabResultHandler) Prepare(ctx context.Context, job *model.Job) ([]email.Message, error) {
	result, err := h.results.Get(ctx, job.SubjectID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, skip("lab result %s not found", job.SubjectID)
	}
	if err != nil {
		return nil, err
	}
	if result.Status != model.LabResultStatusUploaded {
		return nil, skip("lab result is %s, not uploaded", result.Status)
	}
	if result.Notified {
		return nil, skip("lab result already notified")
	}

	patientEmail, patientName, err := patientContact(ctx, h.patients, result.PatientID)
	if err != nil {
		return nil, err
	}

	var doctorEmail string
	doctor, err := h.users.Get(ctx, result.DoctorID)
	switch {
	case err == nil:
		doctorEmail = doctor.Email
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	if patientEmail == "" && doctorEmail == "" {
		return nil, skip("no email for patient %s or doctor %s", result.PatientID, result.DoctorID)
	}

	var messages []email.Message
	if patientEmail != "" {
		subject, body := email.LabResultForPatient(patientName)
		messages = append(messages, email.Message{To: patientEmail, Subject: subject, Body: body})
	}
	if doctorEmail != "" {
		subject, body := email.LabResultForDoctor(patientName, result.OrderID.String())
		messages = append(messages, email.Message{To: doctorEmail, Subject: subject, Body: body})
	}
	return messages, nil
}

func (h *LabResultHandler) MarkDelivered(ctx context.Context, job *model.Job) error {
	return h.results.MarkNotified(ctx, job.SubjectID, h.clock.Now().UTC())
}

// PrescriptionHandler notifies the patient of the status captured in the
// job, provided the prescription still has that status.
type PrescriptionHandler struct {
	prescriptions repository.PrescriptionRepository
	patients      repository.PatientRepository
	pharmacies    repository.PharmacyRepository
}

func NewPrescriptionHandler(prescriptions repository.PrescriptionRepository, patients repository.PatientRepository, pharmacies repository.PharmacyRepository) *PrescriptionHandler {
	return &PrescriptionHandler{prescriptions: prescriptions, patients: patients, pharmacies: pharmacies}
}

func (h *PrescriptionHandler) Prepare(ctx context.Context, job *model.Job) ([]email.Message, error) {
	if job.Status == "" {
		return nil, skip("job carries no status")
	}
	status := model.PrescriptionStatus(job.Status)

	prescription, err := h.prescriptions.Get(ctx, job.SubjectID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, skip("prescription %s not found", job.SubjectID)
	}
	if err != nil {
		return nil, err
	}
	if prescription.Status != status {
		return nil, skip("prescription moved on to %s", prescription.Status)
	}
	if prescription.NotifiedStatus != nil && *prescription.NotifiedStatus == status {
		return nil, skip("status %s already notified", status)
	}

	to, _, err := patientContact(ctx, h.patients, prescription.PatientID)
	if err != nil {
		return nil, err
	}
	if to == "" {
		return nil, skip("no email for patient %s", prescription.PatientID)
	}

	pharmacyID := job.PharmacyID
	if pharmacyID == nil {
		pharmacyID = prescription.PharmacyID
	}
	var pharmacyName string
	if pharmacyID != nil {
		pharmacy, err := h.pharmacies.Get(ctx, *pharmacyID)
		switch {
		case err == nil:
			pharmacyName = pharmacy.Name
		case !errors.Is(err, repository.ErrNotFound):
			return nil, err
		}
	}

	subject, body := email.PrescriptionStatus(job.Status, pharmacyName)
	return []email.Message{{To: to, Subject: subject, Body: body}}, nil
}

func (h *PrescriptionHandler) MarkDelivered(ctx context.Context, job *model.Job) error {
	return h.prescriptions.MarkNotified(ctx, job.SubjectID, model.PrescriptionStatus(job.Status))
}

// patientContact returns the email and name of a patient; a missing patient
// yields empty values rather than an error.
func patientContact(ctx context.Context, patients repository.PatientRepository, id uuid.UUID) (string, string, error) {
	patient, err := patients.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return "", "", nil
	}
	if err != nil {
		return "", "", err
	}
	return patient.Email, patient.FullName(), nil
}

func orRealClock(clock clockwork.Clock) clockwork.Clock {
	if clock == nil {
		return clockwork.NewRealClock()
	}
	return clock
}
