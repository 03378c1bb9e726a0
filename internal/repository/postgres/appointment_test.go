package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/scheduling-core/internal/model"
	"github.com/jwalitptl/scheduling-core/internal/repository"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return sqlx.NewDb(db, "postgres"), mock
}

var appointmentRowColumns = []string{
	"id", "doctor_id", "patient_id", "start_at", "end_at", "status", "notes",
	"reminder_sent", "reminder_sent_at", "cancelled_at", "cancelled_by", "cancel_reason",
	"created_by", "created_at", "updated_at",
}

func appointmentRow(rows *sqlmock.Rows, a model.Appointment) *sqlmock.Rows {
	return rows.AddRow(
		a.ID.String(), a.DoctorID.String(), a.PatientID.String(), a.StartAt, a.EndAt, string(a.Status), a.Notes,
		a.ReminderSent, nil, nil, nil, nil,
		nil, a.CreatedAt, a.UpdatedAt,
	)
}

func TestAppointmentRepository_Create(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAppointmentRepository(db)

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	apt := &model.Appointment{
		DoctorID:  uuid.New(),
		PatientID: uuid.New(),
		StartAt:   start,
		EndAt:     start.Add(30 * time.Minute),
		Status:    model.AppointmentStatusScheduled,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO appointments")).
		WithArgs(
			sqlmock.AnyArg(), apt.DoctorID, apt.PatientID, apt.StartAt, apt.EndAt,
			"scheduled", "", false, nil, sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), apt))
	assert.NotEqual(t, uuid.Nil, apt.ID)
	assert.False(t, apt.CreatedAt.IsZero())
	assert.Equal(t, apt.CreatedAt, apt.UpdatedAt)
}

func TestAppointmentRepository_Get(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAppointmentRepository(db)

	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	want := model.Appointment{
		ID:        uuid.New(),
		DoctorID:  uuid.New(),
		PatientID: uuid.New(),
		StartAt:   now.Add(time.Hour),
		EndAt:     now.Add(90 * time.Minute),
		Status:    model.AppointmentStatusScheduled,
		Notes:     "follow-up",
		CreatedAt: now,
		UpdatedAt: now,
	}

	mock.ExpectQuery(regexp.QuoteMeta("FROM appointments WHERE id = $1")).
		WithArgs(want.ID).
		WillReturnRows(appointmentRow(sqlmock.NewRows(appointmentRowColumns), want))

	got, err := repo.Get(context.Background(), want.ID)
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.DoctorID, got.DoctorID)
	assert.Equal(t, model.AppointmentStatusScheduled, got.Status)
	assert.Equal(t, "follow-up", got.Notes)
	assert.Nil(t, got.CancelledAt)
}

func TestAppointmentRepository_GetNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAppointmentRepository(db)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM appointments WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(appointmentRowColumns))

	_, err := repo.Get(context.Background(), id)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestAppointmentRepository_CancelStale(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAppointmentRepository(db)

	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	apt := &model.Appointment{ID: uuid.New(), CancelledAt: &at}

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $4 AND status <> 'cancelled'")).
		WithArgs(at, nil, nil, apt.ID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Cancel(context.Background(), apt)
	assert.ErrorIs(t, err, repository.ErrStaleState)
}

func TestAppointmentRepository_FindDoctorOverlaps(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAppointmentRepository(db)

	doctorID, exclude := uuid.New(), uuid.New()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)
	existing := model.Appointment{
		ID:        uuid.New(),
		DoctorID:  doctorID,
		PatientID: uuid.New(),
		StartAt:   start.Add(-15 * time.Minute),
		EndAt:     start.Add(15 * time.Minute),
		Status:    model.AppointmentStatusScheduled,
		CreatedAt: start,
		UpdatedAt: start,
	}

	mock.ExpectQuery(`WHERE doctor_id = \$1\s+AND status <> 'cancelled'\s+AND start_at < \$3\s+AND end_at > \$2 AND id <> \$4`).
		WithArgs(doctorID, start, end, exclude).
		WillReturnRows(appointmentRow(sqlmock.NewRows(appointmentRowColumns), existing))

	got, err := repo.FindDoctorOverlaps(context.Background(), doctorID, start, end, &exclude)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, existing.ID, got[0].ID)
}

func TestAppointmentRepository_ListFilters(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAppointmentRepository(db)

	doctorID := uuid.New()
	filters := &model.AppointmentFilters{
		DoctorID:   doctorID,
		Status:     model.AppointmentStatusScheduled,
		Pagination: model.Pagination{Page: 3, PageSize: 10},
	}

	mock.ExpectQuery(regexp.QuoteMeta("AND doctor_id = $1 AND status = $2 ORDER BY start_at ASC LIMIT $3 OFFSET $4")).
		WithArgs(doctorID, "scheduled", 10, 20).
		WillReturnRows(sqlmock.NewRows(appointmentRowColumns))

	got, err := repo.List(context.Background(), filters)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAppointmentRepository_MarkReminderSent(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAppointmentRepository(db)
	id := uuid.New()
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	query := regexp.QuoteMeta("WHERE id = $1 AND reminder_sent = false")
	mock.ExpectExec(query).WithArgs(id, at).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs(id, at).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.MarkReminderSent(context.Background(), id, at))
	assert.ErrorIs(t, repo.MarkReminderSent(context.Background(), id, at), repository.ErrStaleState)
}

func TestAppointmentRepository_UpdateDetailsLeavesIntervalAlone(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAppointmentRepository(db)
	id := uuid.New()
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	status := model.AppointmentStatusCompleted

	query := regexp.QuoteMeta("SET notes = COALESCE($1, notes), status = COALESCE($2, status), updated_at = $3")
	mock.ExpectExec(query).WithArgs(nil, "completed", at, id).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs(nil, "completed", at, id).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.UpdateDetails(context.Background(), id, nil, &status, at))
	assert.ErrorIs(t, repo.UpdateDetails(context.Background(), id, nil, &status, at), repository.ErrStaleState)
}

func TestAppointmentRepository_RescheduleResetsMarkerOnlyOnRequest(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAppointmentRepository(db)
	id := uuid.New()
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	start, end := at.Add(48*time.Hour), at.Add(48*time.Hour+30*time.Minute)

	query := regexp.QuoteMeta("reminder_sent = CASE WHEN $3::boolean THEN false ELSE reminder_sent END")
	mock.ExpectExec(query).WithArgs(start, end, false, at, id).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs(start, end, true, at, id).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Reschedule(context.Background(), id, start, end, false, at))
	assert.ErrorIs(t, repo.Reschedule(context.Background(), id, start, end, true, at), repository.ErrStaleState)
}

func TestAppointmentRepository_ExecErrorIsWrapped(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAppointmentRepository(db)
	boom := errors.New("connection reset")

	mock.ExpectExec(regexp.QuoteMeta("UPDATE appointments")).WillReturnError(boom)

	err := repo.UpdateDetails(context.Background(), uuid.New(), nil, nil, time.Now())
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, repository.ErrStaleState)
}

func TestLabResultRepository_MarkNotifiedStale(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLabResultRepository(db)
	id := uuid.New()
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND notified = false")).
		WithArgs(id, at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.MarkNotified(context.Background(), id, at), repository.ErrStaleState)
}
