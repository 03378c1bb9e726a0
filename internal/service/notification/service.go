package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/jwalitptl/scheduling-core/internal/model"
	"github.com/jwalitptl/scheduling-core/internal/repository"
	apperrors "github.com/jwalitptl/scheduling-core/pkg/errors"
	"github.com/jwalitptl/scheduling-core/pkg/logger"
	"github.com/jwalitptl/scheduling-core/pkg/queue"
)

type Queues struct {
	LabResults    string
	Prescriptions string
}

// Producer enqueues notifications for lab and pharmacy events. The jobs are
// due immediately.
type Producer struct {
	labResults    repository.LabResultRepository
	prescriptions repository.PrescriptionRepository
	queue         queue.Queue
	queues        Queues
	clock         clockwork.Clock
	log           *logger.Logger
}

func NewProducer(labResults repository.LabResultRepository, prescriptions repository.PrescriptionRepository, q queue.Queue, queues Queues, clock clockwork.Clock, log *logger.Logger) *Producer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Producer{
		labResults:    labResults,
		prescriptions: prescriptions,
		queue:         q,
		queues:        queues,
		clock:         clock,
		log:           log,
	}
}

// LabResultReady queues the "results available" notification for an
// uploaded result.
func (p *Producer) LabResultReady(ctx context.Context, resultID uuid.UUID) (*model.Job, error) {
	result, err := p.labResults.Get(ctx, resultID)
	if err != nil {
		return nil, translate("lab result", err)
	}
	if result.Status != model.LabResultStatusUploaded {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("lab result is %s, not uploaded", result.Status), nil)
	}

	orderID, patientID, doctorID := result.OrderID, result.PatientID, result.DoctorID
	job := &model.Job{
		Type:      model.JobTypeLabResult,
		SubjectID: result.ID,
		OrderID:   &orderID,
		PatientID: &patientID,
		DoctorID:  &doctorID,
		SendAt:    p.clock.Now().UTC(),
	}
	if err := p.queue.Enqueue(ctx, p.queues.LabResults, job); err != nil {
		return nil, apperrors.NewInternal(fmt.Errorf("failed to enqueue lab result notification: %w", err))
	}

	p.log.Info("lab result notification queued", "result_id", result.ID.String())
	return job, nil
}

// PrescriptionStatusChanged queues a status notification carrying the
// current status. Prescriptions without a pharmacy produce nothing.
func (p *Producer) PrescriptionStatusChanged(ctx context.Context, prescriptionID uuid.UUID) (*model.Job, error) {
	prescription, err := p.prescriptions.Get(ctx, prescriptionID)
	if err != nil {
		return nil, translate("prescription", err)
	}
	if prescription.PharmacyID == nil {
		p.log.Debug("prescription has no pharmacy, nothing to notify", "prescription_id", prescription.ID.String())
		return nil, nil
	}

	patientID, pharmacyID := prescription.PatientID, *prescription.PharmacyID
	job := &model.Job{
		Type:       model.JobTypePrescriptionStatus,
		SubjectID:  prescription.ID,
		PatientID:  &patientID,
		PharmacyID: &pharmacyID,
		Status:     string(prescription.Status),
		SendAt:     p.clock.Now().UTC(),
	}
	if err := p.queue.Enqueue(ctx, p.queues.Prescriptions, job); err != nil {
		return nil, apperrors.NewInternal(fmt.Errorf("failed to enqueue prescription notification: %w", err))
	}

	p.log.Info("prescription notification queued",
		"prescription_id", prescription.ID.String(),
		"status", job.Status,
	)
	return job, nil
}

func translate(resource string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound(resource, err)
	}
	return apperrors.NewInternal(err)
}
