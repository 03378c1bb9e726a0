package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/scheduling-core/internal/model"
	"github.com/jwalitptl/scheduling-core/internal/repository"
	"github.com/jwalitptl/scheduling-core/internal/repository/memory"
)

func TestCachedDirectory(t *testing.T) {
	dir := memory.NewDirectory()
	doctor := model.User{ID: uuid.New(), FirstName: "Ada", LastName: "Byron", Role: model.RoleDoctor}
	patient := model.Patient{ID: uuid.New(), FirstName: "Alan", LastName: "Turing"}
	dir.PutUser(doctor)
	dir.PutPatient(patient)

	cached := NewCachedDirectory(dir.Users(), dir.Patients(), time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		u, err := cached.Doctor(ctx, doctor.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ada Byron", u.FullName())

		p, err := cached.Patient(ctx, patient.ID)
		require.NoError(t, err)
		assert.Equal(t, patient.ID, p.ID)
	}
	assert.Equal(t, 1, dir.Lookups("user"))
	assert.Equal(t, 1, dir.Lookups("patient"))

	// callers get copies
	u, err := cached.Doctor(ctx, doctor.ID)
	require.NoError(t, err)
	u.Role = model.RoleAdmin
	u, err = cached.Doctor(ctx, doctor.ID)
	require.NoError(t, err)
	assert.True(t, u.IsDoctor())

	cached.Forget(doctor.ID)
	_, err = cached.Doctor(ctx, doctor.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, dir.Lookups("user"))
}

func TestCachedDirectory_MissesAreNotCached(t *testing.T) {
	dir := memory.NewDirectory()
	cached := NewCachedDirectory(dir.Users(), dir.Patients(), time.Minute)
	ctx := context.Background()
	id := uuid.New()

	_, err := cached.Doctor(ctx, id)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	dir.PutUser(model.User{ID: id, Role: model.RoleDoctor})
	u, err := cached.Doctor(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
}
