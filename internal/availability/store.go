package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/appointment-engine/internal/identity"
	"github.com/clinicdesk/appointment-engine/internal/slot"
)

var (
	ErrInvalidRange = errors.New("window start must be before end")
	ErrForbidden    = errors.New("actor may not modify this doctor's availability")
)

// Store is the availability component the rest of the engine talks to. Reads
// are open; writes are restricted to the owning doctor or an admin.
type Store struct {
	repo Repository
	log  zerolog.Logger
}

func NewStore(repo Repository, log zerolog.Logger) *Store {
	return &Store{repo: repo, log: log}
}

// SetWindow declares or replaces the doctor's open window for one date.
func (s *Store) SetWindow(ctx context.Context, actor identity.Actor, doctorID uuid.UUID, date time.Time, start, end slot.Time) (*Window, error) {
	if !actor.IsAdmin() && !actor.OwnsDoctor(doctorID) {
		return nil, ErrForbidden
	}
	if !start.Valid() || !end.Valid() || start >= end {
		return nil, ErrInvalidRange
	}

	w, err := s.repo.UpsertWindow(ctx, Window{
		DoctorID: doctorID,
		Date:     slot.DateOf(date),
		Start:    start,
		End:      end,
	})
	if err != nil {
		return nil, fmt.Errorf("set availability window: %w", err)
	}

	s.log.Info().
		Str("doctor_id", doctorID.String()).
		Str("date", slot.FormatDate(w.Date)).
		Str("start", w.Start.String()).
		Str("end", w.End.String()).
		Msg("availability window set")

	return w, nil
}

// ClearWindow removes the doctor's window for one date. Clearing a date
// without a window is a no-op.
func (s *Store) ClearWindow(ctx context.Context, actor identity.Actor, doctorID uuid.UUID, date time.Time) error {
	return s.ClearRange(ctx, actor, doctorID, []time.Time{date})
}

// ClearRange bulk-deletes the doctor's windows for the given dates.
func (s *Store) ClearRange(ctx context.Context, actor identity.Actor, doctorID uuid.UUID, dates []time.Time) error {
	if !actor.IsAdmin() && !actor.OwnsDoctor(doctorID) {
		return ErrForbidden
	}

	normalized := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		normalized = append(normalized, slot.DateOf(d))
	}

	if err := s.repo.DeleteWindows(ctx, doctorID, normalized); err != nil {
		return fmt.Errorf("clear availability windows: %w", err)
	}

	s.log.Info().
		Str("doctor_id", doctorID.String()).
		Int("dates", len(normalized)).
		Msg("availability windows cleared")

	return nil
}

// GetWindow returns the doctor's window for a date, or nil when none is
// declared.
func (s *Store) GetWindow(ctx context.Context, doctorID uuid.UUID, date time.Time) (*Window, error) {
	w, err := s.repo.GetWindow(ctx, doctorID, slot.DateOf(date))
	if err != nil {
		if errors.Is(err, ErrWindowNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get availability window: %w", err)
	}
	return w, nil
}

// Upcoming returns the doctor's windows for [from, from+days), ordered by
// date. Days without a declared window are simply absent.
func (s *Store) Upcoming(ctx context.Context, doctorID uuid.UUID, from time.Time, days int) ([]Window, error) {
	if days <= 0 {
		return nil, nil
	}

	start := slot.DateOf(from)
	windows, err := s.repo.ListWindows(ctx, doctorID, start, start.AddDate(0, 0, days))
	if err != nil {
		return nil, fmt.Errorf("list availability windows: %w", err)
	}
	return windows, nil
}
