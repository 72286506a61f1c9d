// Package booking is the appointment ledger and the state machine around
// it: conflict resolution, the Booked -> Completed/Cancelled lifecycle, and
// the read-only projections the front desk renders.
package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/appointment-engine/internal/slot"
)

type Status string

const (
	StatusBooked    Status = "Booked"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
)

// Terminal reports whether no further lifecycle transition applies. A
// terminal appointment can only be soft-deleted by an admin.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Doctor is the directory stub the ledger references by id. Profile
// management lives outside the engine.
type Doctor struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Appointment is one booked slot. The ledger guarantees that at most one
// non-cancelled appointment exists per (doctor, date, time).
type Appointment struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Date      time.Time
	Time      slot.Time
	Status    Status

	CreatedAt time.Time
	UpdatedAt time.Time

	CompletedAt *time.Time
	CompletedBy *uuid.UUID
	CancelledAt *time.Time
	CancelledBy *uuid.UUID
	DeletedAt   *time.Time
}

// SlotAt returns the appointment's slot as a single instant.
func (a Appointment) SlotAt() time.Time {
	return slot.Combine(a.Date, a.Time)
}

// Treatment is the clinical outcome attached when an appointment completes.
// One per appointment; re-completing re-saves the same record.
type Treatment struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Diagnosis     string
	Prescription  string
	Notes         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
