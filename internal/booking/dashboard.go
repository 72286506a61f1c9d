package booking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/appointment-engine/internal/availability"
	"github.com/clinicdesk/appointment-engine/internal/identity"
	"github.com/clinicdesk/appointment-engine/internal/slot"
)

// availabilityDisplayDays is the rolling window the dashboards show.
const availabilityDisplayDays = 7

// DoctorDashboard is the read-only view a doctor's landing page renders:
// their calendar split around "now", plus the coming week's declared
// windows. Purely derived from the ledger and the availability store.
type DoctorDashboard struct {
	Upcoming     []Appointment
	Past         []Appointment
	Availability []availability.Window
}

// PatientDashboard mirrors DoctorDashboard for the patient's own bookings.
type PatientDashboard struct {
	Upcoming []Appointment
	Past     []Appointment
}

// List returns appointments matching the filter. Projection only; callers
// get records, never business decisions.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Appointment, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 200 {
		f.Limit = 200
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Date != nil {
		d := slot.DateOf(*f.Date)
		f.Date = &d
	}

	appts, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

// DoctorDashboard builds the doctor's partitioned calendar view as of now.
func (s *Service) DoctorDashboard(ctx context.Context, actor identity.Actor, doctorID uuid.UUID, now time.Time) (*DoctorDashboard, error) {
	if !actor.IsAdmin() && !actor.OwnsDoctor(doctorID) {
		return nil, ErrForbidden
	}

	appts, err := s.repo.ListAppointments(ctx, ListFilter{DoctorID: &doctorID, Limit: 200})
	if err != nil {
		return nil, fmt.Errorf("list doctor appointments: %w", err)
	}

	upcoming, past := partition(appts, now)

	windows, err := s.windows.Upcoming(ctx, doctorID, slot.DateOf(now), availabilityDisplayDays)
	if err != nil {
		return nil, err
	}

	return &DoctorDashboard{
		Upcoming:     upcoming,
		Past:         past,
		Availability: windows,
	}, nil
}

// PatientDashboard builds the patient's own upcoming/past view as of now.
func (s *Service) PatientDashboard(ctx context.Context, actor identity.Actor, patientID uuid.UUID, now time.Time) (*PatientDashboard, error) {
	if !actor.IsAdmin() && !actor.OwnsPatient(patientID) {
		return nil, ErrForbidden
	}

	appts, err := s.repo.ListAppointments(ctx, ListFilter{PatientID: &patientID, Limit: 200})
	if err != nil {
		return nil, fmt.Errorf("list patient appointments: %w", err)
	}

	upcoming, past := partition(appts, now)

	return &PatientDashboard{Upcoming: upcoming, Past: past}, nil
}

// partition splits appointments into upcoming (still Booked, slot at or
// after now, soonest first) and past (everything else, most recent first).
func partition(appts []Appointment, now time.Time) (upcoming, past []Appointment) {
	for _, a := range appts {
		if a.Status == StatusBooked && !a.SlotAt().Before(now) {
			upcoming = append(upcoming, a)
		} else {
			past = append(past, a)
		}
	}

	sort.Slice(upcoming, func(i, j int) bool {
		return upcoming[i].SlotAt().Before(upcoming[j].SlotAt())
	})
	sort.Slice(past, func(i, j int) bool {
		return past[j].SlotAt().Before(past[i].SlotAt())
	})

	return upcoming, past
}
