package booking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/appointment-engine/internal/slot"
)

// DB is the subset of pgxpool.Pool the repository uses. Tests substitute a
// pgxmock pool.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PgRepository struct {
	db DB
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: pool}
}

// NewPgRepositoryWithDB exists for tests that inject a mock pool.
func NewPgRepositoryWithDB(db DB) *PgRepository {
	return &PgRepository{db: db}
}

const appointmentColumns = `id, patient_id, doctor_id, date, slot_time, status,
		created_at, updated_at, completed_at, completed_by, cancelled_at, cancelled_by, deleted_at`

// isSlotUniqueViolation reports whether err is the filtered unique index on
// (doctor_id, date, slot_time) rejecting a double booking at commit time.
func isSlotUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Helpers

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var specialty *string

	err := row.Scan(
		&d.ID,
		&d.Name,
		&specialty,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.Specialty = specialty
	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var slotTime int16

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.Date,
		&slotTime,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.CompletedAt,
		&a.CompletedBy,
		&a.CancelledAt,
		&a.CancelledBy,
		&a.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Time = slot.Time(slotTime)
	return &a, nil
}

func scanTreatment(row pgx.Row) (*Treatment, error) {
	var t Treatment

	err := row.Scan(
		&t.ID,
		&t.AppointmentID,
		&t.Diagnosis,
		&t.Prescription,
		&t.Notes,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTreatmentNotFound
		}
		return nil, err
	}

	return &t, nil
}

// Interface methods

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) FindBookedSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, t slot.Time, excludeID uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND date = $2
		  AND slot_time = $3
		  AND status <> 'Cancelled'
		  AND deleted_at IS NULL
		  AND id <> $4
	`, doctorID, date, int16(t), excludeID)
	return scanAppointment(row)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, patientID, doctorID uuid.UUID, date time.Time, t slot.Time) (*Appointment, error) {
	id := uuid.New()

	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, date, slot_time, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'Booked', now(), now())
		RETURNING `+appointmentColumns+`
	`, id, patientID, doctorID, date, int16(t))

	appt, err := scanAppointment(row)
	if err != nil {
		if isSlotUniqueViolation(err) {
			return nil, ErrSlotConflict
		}
		return nil, err
	}
	return appt, nil
}

func (r *PgRepository) RescheduleAppointment(ctx context.Context, id, doctorID uuid.UUID, date time.Time, t slot.Time) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET doctor_id  = $2,
		    date       = $3,
		    slot_time  = $4,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'Booked'
		  AND deleted_at IS NULL
		RETURNING `+appointmentColumns+`
	`, id, doctorID, date, int16(t))

	appt, err := scanAppointment(row)
	if err != nil {
		if isSlotUniqueViolation(err) {
			return nil, ErrSlotConflict
		}
		return nil, err
	}
	return appt, nil
}

func (r *PgRepository) CancelAppointment(ctx context.Context, id, cancelledBy uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status       = 'Cancelled',
		    cancelled_at = now(),
		    cancelled_by = $2,
		    updated_at   = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+appointmentColumns+`
	`, id, cancelledBy)

	return scanAppointment(row)
}

func (r *PgRepository) CompleteAppointment(ctx context.Context, id, completedBy uuid.UUID, diagnosis, prescription, notes string) (*Appointment, *Treatment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin complete tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status       = 'Completed',
		    completed_at = COALESCE(completed_at, now()),
		    completed_by = COALESCE(completed_by, $2),
		    updated_at   = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+appointmentColumns+`
	`, id, completedBy)

	appt, err := scanAppointment(row)
	if err != nil {
		return nil, nil, err
	}

	row = tx.QueryRow(ctx, `
		INSERT INTO treatments (id, appointment_id, diagnosis, prescription, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (appointment_id)
		DO UPDATE SET diagnosis    = EXCLUDED.diagnosis,
		              prescription = EXCLUDED.prescription,
		              notes        = EXCLUDED.notes,
		              updated_at   = now()
		RETURNING id, appointment_id, diagnosis, prescription, notes, created_at, updated_at
	`, uuid.New(), id, diagnosis, prescription, notes)

	treatment, err := scanTreatment(row)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit complete tx: %w", err)
	}

	return appt, treatment, nil
}

func (r *PgRepository) SoftDeleteAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET deleted_at = COALESCE(deleted_at, now()),
		    updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) GetTreatmentByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Treatment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, appointment_id, diagnosis, prescription, notes, created_at, updated_at
		FROM treatments
		WHERE appointment_id = $1
	`, appointmentID)
	return scanTreatment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error) {
	where := []string{"deleted_at IS NULL"}
	args := []any{}

	if f.DoctorID != nil {
		args = append(args, *f.DoctorID)
		where = append(where, "doctor_id = $"+strconv.Itoa(len(args)))
	}
	if f.PatientID != nil {
		args = append(args, *f.PatientID)
		where = append(where, "patient_id = $"+strconv.Itoa(len(args)))
	}
	if f.Date != nil {
		args = append(args, *f.Date)
		where = append(where, "date = $"+strconv.Itoa(len(args)))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	limitParam := "$" + strconv.Itoa(len(args))
	args = append(args, f.Offset)
	offsetParam := "$" + strconv.Itoa(len(args))

	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY date, slot_time
		LIMIT ` + limitParam + ` OFFSET ` + offsetParam

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
