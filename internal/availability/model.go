// Package availability owns per-doctor, per-day open booking windows. A
// doctor has at most one window per date; re-saving a date supersedes the
// previous window, and a missing row means the day carries no declaration
// at all (how that is interpreted is the conflict resolver's policy).
package availability

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/appointment-engine/internal/slot"
)

// Window is a doctor's declared open-for-booking range on one date.
// A time t is inside the window when Start <= t < End.
type Window struct {
	DoctorID  uuid.UUID
	Date      time.Time
	Start     slot.Time
	End       slot.Time
	UpdatedAt time.Time
}

// Contains reports whether t falls inside the half-open window [Start, End).
func (w Window) Contains(t slot.Time) bool {
	return t >= w.Start && t < w.End
}
