package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-core/internal/model"
)

func (r *userRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	query := `SELECT id, email, first_name, last_name, role FROM users WHERE id = $1`

	var user model.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, notFound("failed to get user", err)
	}
	return &user, nil
}

func (r *patientRepository) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	query := `SELECT id, first_name, last_name, COALESCE(email, '') AS email FROM patients WHERE id = $1`

	var patient model.Patient
	if err := r.db.GetContext(ctx, &patient, query, id); err != nil {
		return nil, notFound("failed to get patient", err)
	}
	return &patient, nil
}

func (r *pharmacyRepository) Get(ctx context.Context, id uuid.UUID) (*model.Pharmacy, error) {
	query := `SELECT id, name FROM pharmacies WHERE id = $1`

	var pharmacy model.Pharmacy
	if err := r.db.GetContext(ctx, &pharmacy, query, id); err != nil {
		return nil, notFound("failed to get pharmacy", err)
	}
	return &pharmacy, nil
}
