package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/appointment-engine/internal/identity"
	"github.com/clinicdesk/appointment-engine/internal/observability/metrics"
	redisclient "github.com/clinicdesk/appointment-engine/internal/redis"
	"github.com/clinicdesk/appointment-engine/internal/slot"
)

var (
	ErrForbidden        = errors.New("actor may not perform this operation")
	ErrNotBooked        = errors.New("appointment is not in booked state")
	ErrAlreadyCompleted = errors.New("appointment is already completed")
	ErrCancelledState   = errors.New("appointment is cancelled")
	ErrEmptyDiagnosis   = errors.New("diagnosis is required")
)

// Service orchestrates appointment state transitions. Every operation takes
// the acting identity explicitly; there is no ambient request state.
type Service struct {
	repo     Repository
	resolver *Resolver
	windows  AvailabilityReader
	locker   redisclient.Locker
	metrics  *metrics.BookingMetrics
	log      zerolog.Logger
}

func NewService(repo Repository, resolver *Resolver, windows AvailabilityReader, locker redisclient.Locker, m *metrics.BookingMetrics, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		resolver: resolver,
		windows:  windows,
		locker:   locker,
		metrics:  m,
		log:      log,
	}
}

// Create books a new appointment. Patients book for themselves; admins book
// on behalf of any patient. The resolver check and the insert run inside the
// per-slot lock so concurrent requests for the same slot serialize, and the
// storage unique index backstops whatever the lock does not cover.
func (s *Service) Create(ctx context.Context, actor identity.Actor, patientID, doctorID uuid.UUID, date time.Time, t slot.Time) (*Appointment, error) {
	start := time.Now()

	appt, err := s.create(ctx, actor, patientID, doctorID, slot.DateOf(date), t)
	s.observe("create", start, err)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("doctor_id", doctorID.String()).
		Str("patient_id", patientID.String()).
		Str("date", slot.FormatDate(appt.Date)).
		Str("time", appt.Time.String()).
		Str("actor_id", actor.ID.String()).
		Msg("appointment booked")

	return appt, nil
}

func (s *Service) create(ctx context.Context, actor identity.Actor, patientID, doctorID uuid.UUID, date time.Time, t slot.Time) (*Appointment, error) {
	switch {
	case actor.IsAdmin():
	case actor.OwnsPatient(patientID):
	default:
		return nil, ErrForbidden
	}
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %v", slot.ErrInvalidTime, t)
	}

	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	var created *Appointment

	key := redisclient.SlotKey{DoctorID: doctorID, Date: date, Time: t}
	err := s.locker.WithSlotLock(ctx, key, func(lockCtx context.Context) error {
		if err := s.resolver.Check(lockCtx, Candidate{DoctorID: doctorID, Date: date, Time: t}); err != nil {
			return err
		}

		appt, err := s.repo.CreateAppointment(lockCtx, patientID, doctorID, date, t)
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}

		created = appt
		return nil
	})
	if err != nil {
		// A booker that could not get the lock before it expired lost
		// the slot to whoever held it.
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotConflict
		}
		return nil, err
	}

	return created, nil
}

// Reschedule moves a Booked appointment to a new (doctor, date, time). The
// appointment's own slot is excluded from the conflict check so moving to
// the identical slot succeeds.
func (s *Service) Reschedule(ctx context.Context, actor identity.Actor, appointmentID, newDoctorID uuid.UUID, date time.Time, t slot.Time) (*Appointment, error) {
	start := time.Now()

	appt, err := s.reschedule(ctx, actor, appointmentID, newDoctorID, slot.DateOf(date), t)
	s.observe("reschedule", start, err)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("doctor_id", appt.DoctorID.String()).
		Str("date", slot.FormatDate(appt.Date)).
		Str("time", appt.Time.String()).
		Str("actor_id", actor.ID.String()).
		Msg("appointment rescheduled")

	return appt, nil
}

func (s *Service) reschedule(ctx context.Context, actor identity.Actor, appointmentID, newDoctorID uuid.UUID, date time.Time, t slot.Time) (*Appointment, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %v", slot.ErrInvalidTime, t)
	}

	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	if !s.mayManage(actor, appt) {
		return nil, ErrForbidden
	}
	if appt.Status != StatusBooked {
		return nil, ErrNotBooked
	}

	// uuid.Nil keeps the appointment with its current doctor.
	if newDoctorID == uuid.Nil {
		newDoctorID = appt.DoctorID
	}
	if newDoctorID != appt.DoctorID {
		if _, err := s.repo.GetDoctorByID(ctx, newDoctorID); err != nil {
			if errors.Is(err, ErrDoctorNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("load doctor: %w", err)
		}
	}

	var moved *Appointment

	key := redisclient.SlotKey{DoctorID: newDoctorID, Date: date, Time: t}
	err = s.locker.WithSlotLock(ctx, key, func(lockCtx context.Context) error {
		cand := Candidate{DoctorID: newDoctorID, Date: date, Time: t, ExcludeID: appt.ID}
		if err := s.resolver.Check(lockCtx, cand); err != nil {
			return err
		}

		updated, err := s.repo.RescheduleAppointment(lockCtx, appt.ID, newDoctorID, date, t)
		if err != nil {
			return fmt.Errorf("reschedule appointment: %w", err)
		}

		moved = updated
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotConflict
		}
		return nil, err
	}

	return moved, nil
}

// Cancel marks an appointment cancelled. Cancelling an already-cancelled
// appointment is a no-op success; a completed appointment cannot be
// cancelled.
func (s *Service) Cancel(ctx context.Context, actor identity.Actor, appointmentID uuid.UUID) (*Appointment, error) {
	start := time.Now()

	appt, err := s.cancel(ctx, actor, appointmentID)
	s.observe("cancel", start, err)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("actor_id", actor.ID.String()).
		Msg("appointment cancelled")

	return appt, nil
}

func (s *Service) cancel(ctx context.Context, actor identity.Actor, appointmentID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	if !s.mayManage(actor, appt) {
		return nil, ErrForbidden
	}

	switch appt.Status {
	case StatusCancelled:
		return appt, nil
	case StatusCompleted:
		return nil, ErrAlreadyCompleted
	}

	cancelled, err := s.repo.CancelAppointment(ctx, appt.ID, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}
	return cancelled, nil
}

// Complete records the clinical outcome and marks the appointment
// completed. Only the owning doctor or an admin may complete; diagnosis is
// mandatory. Completing an already-completed appointment re-saves the
// treatment fields.
func (s *Service) Complete(ctx context.Context, actor identity.Actor, appointmentID uuid.UUID, diagnosis, prescription, notes string) (*Appointment, *Treatment, error) {
	start := time.Now()

	appt, treatment, err := s.complete(ctx, actor, appointmentID, diagnosis, prescription, notes)
	s.observe("complete", start, err)
	if err != nil {
		return nil, nil, err
	}

	s.log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("actor_id", actor.ID.String()).
		Msg("appointment completed")

	return appt, treatment, nil
}

func (s *Service) complete(ctx context.Context, actor identity.Actor, appointmentID uuid.UUID, diagnosis, prescription, notes string) (*Appointment, *Treatment, error) {
	diagnosis = strings.TrimSpace(diagnosis)
	if diagnosis == "" {
		return nil, nil, ErrEmptyDiagnosis
	}

	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, nil, err
	}

	if !actor.IsAdmin() && !actor.OwnsDoctor(appt.DoctorID) {
		return nil, nil, ErrForbidden
	}
	if appt.Status == StatusCancelled {
		return nil, nil, ErrCancelledState
	}

	completed, treatment, err := s.repo.CompleteAppointment(ctx, appt.ID, actor.ID, diagnosis, strings.TrimSpace(prescription), strings.TrimSpace(notes))
	if err != nil {
		return nil, nil, fmt.Errorf("complete appointment: %w", err)
	}
	return completed, treatment, nil
}

// Delete soft-deletes an appointment. Admin only; idempotent on an
// already-deleted record.
func (s *Service) Delete(ctx context.Context, actor identity.Actor, appointmentID uuid.UUID) error {
	start := time.Now()

	err := s.delete(ctx, actor, appointmentID)
	s.observe("delete", start, err)
	if err != nil {
		return err
	}

	s.log.Info().
		Str("appointment_id", appointmentID.String()).
		Str("actor_id", actor.ID.String()).
		Msg("appointment deleted")

	return nil
}

func (s *Service) delete(ctx context.Context, actor identity.Actor, appointmentID uuid.UUID) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	return s.repo.SoftDeleteAppointment(ctx, appointmentID)
}

// Get returns one appointment plus its treatment when one exists. Owners
// and admins only.
func (s *Service) Get(ctx context.Context, actor identity.Actor, appointmentID uuid.UUID) (*Appointment, *Treatment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, nil, err
	}

	if !s.mayManage(actor, appt) {
		return nil, nil, ErrForbidden
	}

	treatment, err := s.repo.GetTreatmentByAppointment(ctx, appt.ID)
	if err != nil {
		if errors.Is(err, ErrTreatmentNotFound) {
			return appt, nil, nil
		}
		return nil, nil, fmt.Errorf("load treatment: %w", err)
	}

	return appt, treatment, nil
}

// mayManage reports whether the actor owns the appointment on either side
// or is an admin.
func (s *Service) mayManage(actor identity.Actor, appt *Appointment) bool {
	return actor.IsAdmin() || actor.OwnsPatient(appt.PatientID) || actor.OwnsDoctor(appt.DoctorID)
}

func (s *Service) observe(operation string, start time.Time, err error) {
	s.metrics.ObserveOperation(operation, outcomeLabel(err), time.Since(start))
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrSlotConflict):
		return "conflict"
	case errors.Is(err, ErrPastSlot),
		errors.Is(err, ErrOutsideAvailability),
		errors.Is(err, ErrEmptyDiagnosis),
		errors.Is(err, ErrNotBooked),
		errors.Is(err, ErrAlreadyCompleted),
		errors.Is(err, ErrCancelledState),
		errors.Is(err, ErrForbidden):
		return "rejected"
	case errors.Is(err, ErrDoctorNotFound),
		errors.Is(err, ErrPatientNotFound),
		errors.Is(err, ErrAppointmentNotFound):
		return "not_found"
	default:
		return "error"
	}
}
