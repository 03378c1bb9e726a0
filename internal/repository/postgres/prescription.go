package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-core/internal/model"
)

func (r *prescriptionRepository) Get(ctx context.Context, id uuid.UUID) (*model.Prescription, error) {
	query := `
		SELECT id, patient_id, pharmacy_id, status, notified_status, updated_at
		FROM prescriptions
		WHERE id = $1
	`
	var prescription model.Prescription
	if err := r.db.GetContext(ctx, &prescription, query, id); err != nil {
		return nil, notFound("failed to get prescription", err)
	}
	return &prescription, nil
}

// MarkNotified records status as delivered unless it already was.
func (r *prescriptionRepository) MarkNotified(ctx context.Context, id uuid.UUID, status model.PrescriptionStatus) error {
	query := `
		UPDATE prescriptions
		SET notified_status = $2
		WHERE id = $1 AND notified_status IS DISTINCT FROM $2
	`
	result, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to mark prescription notified: %w", err)
	}
	return expectOne("failed to mark prescription notified", result)
}
