package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/appointment-engine/internal/slot"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrTreatmentNotFound   = errors.New("treatment not found")

	// ErrSlotConflict is returned both by the advisory ledger check and
	// by writes that lose a race: the storage layer's filtered unique
	// index on (doctor_id, date, slot_time) re-surfaces as this error,
	// never as a raw database failure.
	ErrSlotConflict = errors.New("slot already has a non-cancelled appointment")
)

// ListFilter narrows appointment listings. Nil fields are ignored.
type ListFilter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Date      *time.Time
	Limit     int
	Offset    int
}

// Repository contains all DB interactions needed by the booking service.
// Soft-deleted appointments are invisible to every method except
// SoftDeleteAppointment.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// FindBookedSlot returns the non-cancelled appointment occupying
	// (doctorID, date, t), ignoring excludeID (pass uuid.Nil for none).
	// ErrAppointmentNotFound means the slot is free.
	FindBookedSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, t slot.Time, excludeID uuid.UUID) (*Appointment, error)

	// CreateAppointment inserts a Booked appointment. A uniqueness
	// violation on the slot index is returned as ErrSlotConflict.
	CreateAppointment(ctx context.Context, patientID, doctorID uuid.UUID, date time.Time, t slot.Time) (*Appointment, error)

	// RescheduleAppointment atomically moves a Booked appointment to a
	// new (doctor, date, time). A uniqueness violation is returned as
	// ErrSlotConflict; a non-Booked or missing row as
	// ErrAppointmentNotFound.
	RescheduleAppointment(ctx context.Context, id, doctorID uuid.UUID, date time.Time, t slot.Time) (*Appointment, error)

	CancelAppointment(ctx context.Context, id, cancelledBy uuid.UUID) (*Appointment, error)

	// CompleteAppointment marks the appointment Completed and upserts
	// its treatment in one transaction. completed_at is set once and
	// preserved on idempotent re-completion.
	CompleteAppointment(ctx context.Context, id, completedBy uuid.UUID, diagnosis, prescription, notes string) (*Appointment, *Treatment, error)

	// SoftDeleteAppointment stamps deleted_at; already-deleted rows are
	// left as they are. ErrAppointmentNotFound means no such row ever
	// existed.
	SoftDeleteAppointment(ctx context.Context, id uuid.UUID) error

	GetTreatmentByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Treatment, error)

	ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error)
}
