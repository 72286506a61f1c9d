package availability

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/appointment-engine/internal/slot"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanWindow(row pgx.Row) (*Window, error) {
	var w Window
	var start, end int16

	err := row.Scan(
		&w.DoctorID,
		&w.Date,
		&start,
		&end,
		&w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWindowNotFound
		}
		return nil, err
	}

	w.Start = slot.Time(start)
	w.End = slot.Time(end)
	return &w, nil
}

func (r *PgRepository) UpsertWindow(ctx context.Context, w Window) (*Window, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO doctor_availability (doctor_id, date, start_time, end_time, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (doctor_id, date)
		DO UPDATE SET start_time = EXCLUDED.start_time,
		              end_time   = EXCLUDED.end_time,
		              updated_at = now()
		RETURNING doctor_id, date, start_time, end_time, updated_at
	`, w.DoctorID, w.Date, int16(w.Start), int16(w.End))

	return scanWindow(row)
}

func (r *PgRepository) GetWindow(ctx context.Context, doctorID uuid.UUID, date time.Time) (*Window, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT doctor_id, date, start_time, end_time, updated_at
		FROM doctor_availability
		WHERE doctor_id = $1 AND date = $2
	`, doctorID, date)
	return scanWindow(row)
}

func (r *PgRepository) DeleteWindows(ctx context.Context, doctorID uuid.UUID, dates []time.Time) error {
	if len(dates) == 0 {
		return nil
	}

	_, err := r.pool.Exec(ctx, `
		DELETE FROM doctor_availability
		WHERE doctor_id = $1 AND date = ANY($2)
	`, doctorID, dates)
	return err
}

func (r *PgRepository) ListWindows(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Window, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT doctor_id, date, start_time, end_time, updated_at
		FROM doctor_availability
		WHERE doctor_id = $1 AND date >= $2 AND date < $3
		ORDER BY date
	`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Window
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *w)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
