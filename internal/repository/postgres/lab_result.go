package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-core/internal/model"
)

func (r *labResultRepository) Get(ctx context.Context, id uuid.UUID) (*model.LabResult, error) {
	query := `
		SELECT id, order_id, patient_id, doctor_id, status, notified, notified_at, updated_at
		FROM lab_results
		WHERE id = $1
	`
	var result model.LabResult
	if err := r.db.GetContext(ctx, &result, query, id); err != nil {
		return nil, notFound("failed to get lab result", err)
	}
	return &result, nil
}

func (r *labResultRepository) MarkNotified(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE lab_results
		SET notified = true, notified_at = $2, updated_at = $2
		WHERE id = $1 AND notified = false
	`
	result, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark lab result notified: %w", err)
	}
	return expectOne("failed to mark lab result notified", result)
}
