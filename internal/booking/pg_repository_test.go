package booking

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var appointmentRowColumns = []string{
	"id", "patient_id", "doctor_id", "date", "slot_time", "status",
	"created_at", "updated_at", "completed_at", "completed_by", "cancelled_at", "cancelled_by", "deleted_at",
}

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *PgRepository) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	return mock, NewPgRepositoryWithDB(mock)
}

func appointmentRow(mock pgxmock.PgxPoolIface, a Appointment) *pgxmock.Rows {
	return mock.NewRows(appointmentRowColumns).AddRow(
		a.ID, a.PatientID, a.DoctorID, a.Date, int16(a.Time), a.Status,
		a.CreatedAt, a.UpdatedAt, a.CompletedAt, a.CompletedBy, a.CancelledAt, a.CancelledBy, a.DeletedAt,
	)
}

func TestCreateAppointmentMapsUniqueViolation(t *testing.T) {
	mock, repo := newMockRepo(t)

	patientID, doctorID := uuid.New(), uuid.New()
	date := day(10)

	mock.ExpectQuery(`INSERT INTO appointments`).
		WithArgs(pgxmock.AnyArg(), patientID, doctorID, date, int16(at("09:30"))).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_appointments_doctor_slot"})

	_, err := repo.CreateAppointment(context.Background(), patientID, doctorID, date, at("09:30"))
	assert.ErrorIs(t, err, ErrSlotConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAppointmentReturnsInsertedRow(t *testing.T) {
	mock, repo := newMockRepo(t)

	want := Appointment{
		ID:        uuid.New(),
		PatientID: uuid.New(),
		DoctorID:  uuid.New(),
		Date:      day(10),
		Time:      at("09:30"),
		Status:    StatusBooked,
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}

	mock.ExpectQuery(`INSERT INTO appointments`).
		WithArgs(pgxmock.AnyArg(), want.PatientID, want.DoctorID, want.Date, int16(want.Time)).
		WillReturnRows(appointmentRow(mock, want))

	got, err := repo.CreateAppointment(context.Background(), want.PatientID, want.DoctorID, want.Date, want.Time)
	require.NoError(t, err)
	assert.Equal(t, want, *got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAppointmentByIDNotFound(t *testing.T) {
	mock, repo := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT (.+) FROM appointments`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetAppointmentByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRescheduleAppointmentMapsUniqueViolation(t *testing.T) {
	mock, repo := newMockRepo(t)

	id, doctorID := uuid.New(), uuid.New()

	mock.ExpectQuery(`UPDATE appointments`).
		WithArgs(id, doctorID, day(11), int16(at("10:00"))).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_appointments_doctor_slot"})

	_, err := repo.RescheduleAppointment(context.Background(), id, doctorID, day(11), at("10:00"))
	assert.ErrorIs(t, err, ErrSlotConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// The reschedule UPDATE matches only Booked rows, so a cancelled or
// completed appointment surfaces as not found at the repository level.
func TestRescheduleAppointmentNotBookedRow(t *testing.T) {
	mock, repo := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery(`UPDATE appointments`).
		WithArgs(id, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.RescheduleAppointment(context.Background(), id, uuid.New(), day(11), at("10:00"))
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteAppointmentTx(t *testing.T) {
	mock, repo := newMockRepo(t)

	completedAt := testNow
	completedBy := uuid.New()
	appt := Appointment{
		ID:          uuid.New(),
		PatientID:   uuid.New(),
		DoctorID:    uuid.New(),
		Date:        day(10),
		Time:        at("09:30"),
		Status:      StatusCompleted,
		CreatedAt:   testNow,
		UpdatedAt:   testNow,
		CompletedAt: &completedAt,
		CompletedBy: &completedBy,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE appointments`).
		WithArgs(appt.ID, completedBy).
		WillReturnRows(appointmentRow(mock, appt))
	mock.ExpectQuery(`INSERT INTO treatments`).
		WithArgs(pgxmock.AnyArg(), appt.ID, "seasonal allergies", "loratadine 10mg", "").
		WillReturnRows(mock.NewRows([]string{
			"id", "appointment_id", "diagnosis", "prescription", "notes", "created_at", "updated_at",
		}).AddRow(uuid.New(), appt.ID, "seasonal allergies", "loratadine 10mg", "", testNow, testNow))
	mock.ExpectCommit()
	mock.ExpectRollback()

	got, treatment, err := repo.CompleteAppointment(context.Background(), appt.ID, completedBy, "seasonal allergies", "loratadine 10mg", "")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "seasonal allergies", treatment.Diagnosis)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteAppointment(t *testing.T) {
	mock, repo := newMockRepo(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE appointments`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	assert.NoError(t, repo.SoftDeleteAppointment(context.Background(), id))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteAppointmentMissing(t *testing.T) {
	mock, repo := newMockRepo(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE appointments`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	assert.ErrorIs(t, repo.SoftDeleteAppointment(context.Background(), id), ErrAppointmentNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAppointmentsBuildsFilteredQuery(t *testing.T) {
	mock, repo := newMockRepo(t)

	doctorID := uuid.New()
	date := day(10)
	first := Appointment{
		ID: uuid.New(), PatientID: uuid.New(), DoctorID: doctorID,
		Date: date, Time: at("09:30"), Status: StatusBooked, CreatedAt: testNow, UpdatedAt: testNow,
	}
	second := first
	second.ID = uuid.New()
	second.Time = at("10:00")

	rows := appointmentRow(mock, first).AddRow(
		second.ID, second.PatientID, second.DoctorID, second.Date, int16(second.Time), second.Status,
		second.CreatedAt, second.UpdatedAt, nil, nil, nil, nil, nil,
	)

	mock.ExpectQuery(`SELECT (.+) FROM appointments`).
		WithArgs(doctorID, date, 50, 0).
		WillReturnRows(rows)

	got, err := repo.ListAppointments(context.Background(), ListFilter{DoctorID: &doctorID, Date: &date})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, second.ID, got[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDoctorByIDNotFound(t *testing.T) {
	mock, repo := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT (.+) FROM doctors`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetDoctorByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrDoctorNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTreatmentByAppointmentNotFound(t *testing.T) {
	mock, repo := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT (.+) FROM treatments`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetTreatmentByAppointment(context.Background(), id)
	assert.ErrorIs(t, err, ErrTreatmentNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
