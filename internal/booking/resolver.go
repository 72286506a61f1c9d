package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/appointment-engine/internal/availability"
	"github.com/clinicdesk/appointment-engine/internal/config"
	"github.com/clinicdesk/appointment-engine/internal/slot"
)

var (
	ErrPastSlot            = errors.New("slot is in the past")
	ErrOutsideAvailability = errors.New("slot is outside the doctor's availability window")
)

// AvailabilityReader is the availability store surface the booking package
// consumes. GetWindow returns nil when the doctor declared nothing for that
// date.
type AvailabilityReader interface {
	GetWindow(ctx context.Context, doctorID uuid.UUID, date time.Time) (*availability.Window, error)
	Upcoming(ctx context.Context, doctorID uuid.UUID, from time.Time, days int) ([]availability.Window, error)
}

// Candidate is one booking request under consideration. ExcludeID carries
// the appointment's own id during a reschedule so it does not conflict with
// itself; uuid.Nil means nothing is excluded.
type Candidate struct {
	DoctorID  uuid.UUID
	Date      time.Time
	Time      slot.Time
	ExcludeID uuid.UUID
}

// Resolver decides whether a candidate slot is acceptable. It is a pure
// decision function over the ledger and the availability store; it never
// mutates anything. The check is advisory: the storage-level unique index
// is what makes the decision hold under concurrency.
type Resolver struct {
	ledger  Repository
	windows AvailabilityReader
	policy  config.AvailabilityPolicy
	now     func() time.Time
}

func NewResolver(ledger Repository, windows AvailabilityReader, policy config.AvailabilityPolicy) *Resolver {
	return &Resolver{
		ledger:  ledger,
		windows: windows,
		policy:  policy,
		now:     time.Now,
	}
}

// Check returns nil when the candidate is acceptable, or one of ErrPastSlot,
// ErrSlotConflict, ErrOutsideAvailability.
func (r *Resolver) Check(ctx context.Context, c Candidate) error {
	if slot.Combine(c.Date, c.Time).Before(r.now()) {
		return ErrPastSlot
	}

	existing, err := r.ledger.FindBookedSlot(ctx, c.DoctorID, c.Date, c.Time, c.ExcludeID)
	if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
		return fmt.Errorf("check slot occupancy: %w", err)
	}
	if existing != nil {
		return ErrSlotConflict
	}

	if r.policy == config.PolicyOff {
		return nil
	}

	window, err := r.windows.GetWindow(ctx, c.DoctorID, c.Date)
	if err != nil {
		return fmt.Errorf("check availability window: %w", err)
	}
	if window == nil {
		// No declaration for that date: strict policy closes the day,
		// permissive leaves it open.
		if r.policy == config.PolicyStrict {
			return ErrOutsideAvailability
		}
		return nil
	}
	if !window.Contains(c.Time) {
		return ErrOutsideAvailability
	}

	return nil
}
