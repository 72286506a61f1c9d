package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/appointment-engine/internal/availability"
	"github.com/clinicdesk/appointment-engine/internal/config"
	"github.com/clinicdesk/appointment-engine/internal/identity"
	redisclient "github.com/clinicdesk/appointment-engine/internal/redis"
	"github.com/clinicdesk/appointment-engine/internal/slot"
)

// The clock every test books against. Dates sit comfortably after it so the
// past-slot check stays out of the way unless a test wants it.
var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func day(dayOfMonth int) time.Time {
	return time.Date(2026, 3, dayOfMonth, 0, 0, 0, 0, time.UTC)
}

func at(hhmm string) slot.Time {
	t, err := slot.ParseTime(hhmm)
	if err != nil {
		panic(err)
	}
	return t
}

// passLocker runs the critical section without any distributed lock. The
// in-memory repository enforces slot uniqueness atomically, so tests still
// observe exactly-one-winner semantics.
type passLocker struct{}

func (passLocker) WithSlotLock(ctx context.Context, _ redisclient.SlotKey, fn func(context.Context) error) error {
	return fn(ctx)
}

type fakeWindows struct {
	mu      sync.Mutex
	windows map[string]availability.Window
}

func newFakeWindows() *fakeWindows {
	return &fakeWindows{windows: make(map[string]availability.Window)}
}

func windowKey(doctorID uuid.UUID, date time.Time) string {
	return doctorID.String() + "|" + slot.FormatDate(date)
}

func (f *fakeWindows) set(w availability.Window) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows[windowKey(w.DoctorID, w.Date)] = w
}

func (f *fakeWindows) GetWindow(_ context.Context, doctorID uuid.UUID, date time.Time) (*availability.Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.windows[windowKey(doctorID, date)]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (f *fakeWindows) Upcoming(_ context.Context, doctorID uuid.UUID, from time.Time, days int) ([]availability.Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []availability.Window
	for d := 0; d < days; d++ {
		if w, ok := f.windows[windowKey(doctorID, from.AddDate(0, 0, d))]; ok {
			out = append(out, w)
		}
	}
	return out, nil
}

type testEnv struct {
	repo    *MemRepository
	windows *fakeWindows
	svc     *Service

	doctor  Doctor
	patient Patient

	admin         identity.Actor
	asDoctor      identity.Actor
	asPatient     identity.Actor
	otherPatient  identity.Actor
	strangeDoctor identity.Actor
}

func newTestEnv(t *testing.T, policy config.AvailabilityPolicy) *testEnv {
	t.Helper()

	repo := NewMemRepository()
	doctor := Doctor{ID: uuid.New(), Name: "Dr. Reed"}
	patient := Patient{ID: uuid.New(), Name: "Ada Quinn"}
	repo.AddDoctor(doctor)
	repo.AddPatient(patient)

	windows := newFakeWindows()

	resolver := NewResolver(repo, windows, policy)
	resolver.now = func() time.Time { return testNow }

	svc := NewService(repo, resolver, windows, passLocker{}, nil, zerolog.Nop())

	return &testEnv{
		repo:          repo,
		windows:       windows,
		svc:           svc,
		doctor:        doctor,
		patient:       patient,
		admin:         identity.Actor{ID: uuid.New(), Role: identity.RoleAdmin},
		asDoctor:      identity.Actor{ID: doctor.ID, Role: identity.RoleDoctor},
		asPatient:     identity.Actor{ID: patient.ID, Role: identity.RolePatient},
		otherPatient:  identity.Actor{ID: uuid.New(), Role: identity.RolePatient},
		strangeDoctor: identity.Actor{ID: uuid.New(), Role: identity.RoleDoctor},
	}
}

func (e *testEnv) book(t *testing.T, date time.Time, tm slot.Time) *Appointment {
	t.Helper()
	appt, err := e.svc.Create(context.Background(), e.asPatient, e.patient.ID, e.doctor.ID, date, tm)
	require.NoError(t, err)
	return appt
}

func TestCreateAppointment(t *testing.T) {
	e := newTestEnv(t, config.PolicyOff)

	appt, err := e.svc.Create(context.Background(), e.asPatient, e.patient.ID, e.doctor.ID, day(10), at("09:30"))
	require.NoError(t, err)

	assert.Equal(t, StatusBooked, appt.Status)
	assert.Equal(t, e.patient.ID, appt.PatientID)
	assert.Equal(t, e.doctor.ID, appt.DoctorID)
	assert.Equal(t, day(10), appt.Date)
	assert.Equal(t, at("09:30"), appt.Time)
}

func TestCreateAppointmentAuthz(t *testing.T) {
	e := newTestEnv(t, config.PolicyOff)
	ctx := context.Background()

	_, err := e.svc.Create(ctx, e.otherPatient, e.patient.ID, e.doctor.ID, day(10), at("09:30"))
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = e.svc.Create(ctx, e.asDoctor, e.patient.ID, e.doctor.ID, day(10), at("09:30"))
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = e.svc.Create(ctx, e.admin, e.patient.ID, e.doctor.ID, day(10), at("09:30"))
	assert.NoError(t, err)
}

func TestCreateAppointmentUnknownParties(t *testing.T) {
	e := newTestEnv(t, config.PolicyOff)
	ctx := context.Background()

	_, err := e.svc.Create(ctx, e.admin, uuid.New(), e.doctor.ID, day(10), at("09:30"))
	assert.ErrorIs(t, err, ErrPatientNotFound)

	_, err = e.svc.Create(ctx, e.admin, e.patient.ID, uuid.New(), day(10), at("09:30"))
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestCreateAppointmentPastSlot(t *testing.T) {
	e := newTestEnv(t, config.PolicyOff)

	// testNow is 2026-03-01 12:00, so the same morning is already gone.
	_, err := e.svc.Create(context.Background(), e.asPatient, e.patient.ID, e.doctor.ID, day(1), at("09:00"))
	assert.ErrorIs(t, err, ErrPastSlot)
}

func TestCreateAppointmentConflict(t *testing.T) {
	e := newTestEnv(t, config.PolicyOff)
	e.book(t, day(10), at("09:30"))

	_, err := e.svc.Create(context.Background(), e.admin, e.patient.ID, e.doctor.ID, day(10), at("09:30"))
	assert.ErrorIs(t, err, ErrSlotConflict)

	// A different time the same day is fine.
	_, err = e.svc.Create(context.Background(), e.admin, e.patient.ID, e.doctor.ID, day(10), at("10:00"))
	assert.NoError(t, err)
}

func TestCreateAppointmentFreesCancelledSlot(t *testing.T) {
	e := newTestEnv(t, config.PolicyOff)
	appt := e.book(t, day(10), at("09:30"))

	_, err := e.svc.Cancel(context.Background(), e.asPatient, appt.ID)
	require.NoError(t, err)

	_, err = e.svc.Create(context.Background(), e.asPatient, e.patient.ID, e.doctor.ID, day(10), at("09:30"))
	assert.NoError(t, err)
}

func TestCreateAppointmentAvailabilityPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("permissive without window is open", func(t *testing.T) {
		e := newTestEnv(t, config.PolicyPermissive)
		_, err := e.svc.Create(ctx, e.asPatient, e.patient.ID, e.doctor.ID, day(10), at("09:30"))
		assert.NoError(t, err)
	})

	t.Run("permissive enforces a declared window", func(t *testing.T) {
		e := newTestEnv(t, config.PolicyPermissive)
		e.windows.set(availability.Window{DoctorID: e.doctor.ID, Date: day(10), Start: at("09:00"), End: at("12:00")})

		_, err := e.svc.Create(ctx, e.asPatient, e.patient.ID, e.doctor.ID, day(10), at("14:00"))
		assert.ErrorIs(t, err, ErrOutsideAvailability)

		_, err = e.svc.Create(ctx, e.asPatient, e.patient.ID, e.doctor.ID, day(10), at("09:00"))
		assert.NoError(t, err)
	})

	t.Run("window end is exclusive", func(t *testing.T) {
		e := newTestEnv(t, config.PolicyPermissive)
		e.windows.set(availability.Window{DoctorID: e.doctor.ID, Date: day(10), Start: at("09:00"), End: at("12:00")})

		_, err := e.svc.Create(ctx, e.asPatient, e.patient.ID, e.doctor.ID, day(10), at("12:00"))
		assert.ErrorIs(t, err, ErrOutsideAvailability)
	})

	t.Run("strict without window is closed", func(t *testing.T) {
		e := newTestEnv(t, config.PolicyStrict)
		_, err := e.svc.Create(ctx, e.asPatient, e.patient.ID, e.doctor.ID, day(10), at("09:30"))
		assert.ErrorIs(t, err, ErrOutsideAvailability)
	})

	t.Run("off ignores windows", func(t *testing.T) {
		e := newTestEnv(t, config.PolicyOff)
		e.windows.set(availability.Window{DoctorID: e.doctor.ID, Date: day(10), Start: at("09:00"), End: at("10:00")})

		_, err := e.svc.Create(ctx, e.asPatient, e.patient.ID, e.doctor.ID, day(10), at("15:00"))
		assert.NoError(t, err)
	})
}

// Many concurrent bookers, one slot: exactly one create wins and the rest
// see a conflict.
func TestCreateAppointmentConcurrentOneWinner(t *testing.T) {
	e := newTestEnv(t, config.PolicyOff)
	ctx := context.Background()

	const bookers = 32
	errs := make([]error, bookers)

	var wg sync.WaitGroup
	for i := 0; i < bookers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.svc.Create(ctx, e.admin, e.patient.ID, e.doctor.ID, day(10), at("09:30"))
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case assert.ErrorIs(t, err, ErrSlotConflict):
			lost++
		}
	}

	assert.Equal(t, 1, won)
	assert.Equal(t, bookers-1, lost)
}

func TestRescheduleAppointment(t *testing.T) {
	e := newTestEnv(t, config.PolicyOff)
	appt := e.book(t, day(10), at("09:30"))

	moved, err := e.svc.Reschedule(context.Background(), e.asPatient, appt.ID, uuid.Nil, day(11), at("11:00"))
	require.NoError(t, err)

	assert.Equal(t, e.doctor.ID, moved.DoctorID)
	assert.Equal(t, day(11), moved.Date)
	assert.Equal(t, at("11:00"), moved.Time)
	assert.Equal(t, StatusBooked, moved.Status)

	// The old slot is free again.
	_, err = e.svc.Create(context.Background(), e.asPatient, e.patient.ID, e.doctor.ID, day(10), at("09:30"))
	assert.NoError(t, err)
}

func TestRescheduleToOwnSlot(t *testing.T) {
	e := newTestEnv(t, config.PolicyOff)
	appt := e.book(t, day(10), at("09:30"))

	// The appointment must not conflict with itself.
	moved, err := e.svc.Reschedule(context.Background(), e.asPatient, appt.ID, uuid.Nil, day(10), at("09:30"))
	require.NoError(t, err)
	assert.Equal(t, appt.ID, moved.ID)
}

func TestRescheduleToNewDoctor(t *testing.T) {
	e := newTestEnv(t, config.PolicyOff)
	other := Doctor{ID: uuid.New(), Name: "Dr. Okafor"}
	e.repo.AddDoctor(other)
	appt := e.book(t, day(10), at("09:30"))

	moved, err := e.svc.Reschedule(context.Background(), e.asPatient, appt.ID, other.ID, day(10), at("09:30"))
	require.NoError(t, err)
	assert.Equal(t, other.ID, moved.DoctorID)

	_, err = e.svc.Reschedule(context.Background(), e.asPatient, appt.ID, uuid.New(), day(10), at("09:30"))
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestRescheduleConflict(t *testing.T) {
	e := newTestEnv(t, config.PolicyOff)
	e.book(t, day(10), at("09:30"))
	appt := e.book(t, day(10), at("10:00"))

	_, err := e.svc.Reschedule(context.Background(), e.asPatient, appt.ID, uuid.Nil, day(10), at("09:30"))
	assert.ErrorIs(t, err, ErrSlotConflict)
}

func TestRescheduleOnlyFromBooked(t *testing.T) {
	e := newTestEnv(t, config.PolicyOff)
	ctx := context.Background()

	cancelled := e.book(t, day(10), at("09:30"))
	_, err := e.svc.Cancel(ctx, e.asPatient, cancelled.ID)
	require.NoError(t, err)

	_, err = e.svc.Reschedule(ctx, e.asPatient, cancelled.ID, uuid.Nil, day(11), at("09:30"))
	assert.ErrorIs(t, err, ErrNotBooked)

	completed := e.book(t, day(10), at("10:00"))
	_, _, err = e.svc.Complete(ctx, e.asDoctor, completed.ID, "seasonal allergies", "", "")
	require.NoError(t, err)

	_, err = e.svc.Reschedule(ctx, e.asPatient, completed.ID, uuid.Nil, day(11), at("10:00"))
	assert.ErrorIs(t, err, ErrNotBooked)
}

func TestRescheduleAuthz(t *testing.T) {
	e := newTestEnv(t, config.PolicyOff)
	appt := e.book(t, day(10), at("09:30"))

	_, err := e.svc.Reschedule(context.Background(), e.otherPatient, appt.ID, uuid.Nil, day(11), at("09:30"))
	assert.ErrorIs(t, err, ErrForbidden)

	// The appointment's own doctor may move it.
	_, err = e.svc.Reschedule(context.Background(), e.asDoctor, appt.ID, uuid.Nil, day(11), at("09:30"))
	assert.NoError(t, err)
}

func TestCancelAppointment(t *testing.T) {
	e := newTestEnv(t, config.PolicyOff)
	appt := e.book(t, day(10), at("09:30"))

	cancelled, err := e.svc.Cancel(context.Background(), e.asPatient, appt.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledBy)
	assert.Equal(t, e.patient.ID, *cancelled.CancelledBy)
	assert.NotNil(t, cancelled.CancelledAt)
}

func TestCancelIsIdempotent(t *testing.T) {
	e := newTestEnv(t, config.PolicyOff)
	appt := e.book(t, day(10), at("09:30"))

	first, err := e.svc.Cancel(context.Background(), e.asPatient, appt.ID)
	require.NoError(t, err)

	again, err := e.svc.Cancel(context.Background(), e.asPatient, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, first.CancelledAt, again.CancelledAt)
}

func TestCancelCompletedAppointment(t *testing.T) {
	e := newTestEnv(t, config.PolicyOff)
	appt := e.book(t, day(10), at("09:30"))

	_, _, err := e.svc.Complete(context.Background(), e.asDoctor, appt.ID, "seasonal allergies", "", "")
	require.NoError(t, err)

	_, err = e.svc.Cancel(context.Background(), e.asPatient, appt.ID)
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
}

func TestCancelAuthz(t *testing.T) {
	e := newTestEnv(t, config.PolicyOff)
	appt := e.book(t, day(10), at("09:30"))

	_, err := e.svc.Cancel(context.Background(), e.otherPatient, appt.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = e.svc.Cancel(context.Background(), e.strangeDoctor, appt.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCompleteAppointment(t *testing.T) {
	e := newTestEnv(t, config.PolicyOff)
	appt := e.book(t, day(10), at("09:30"))

	completed, treatment, err := e.svc.Complete(context.Background(), e.asDoctor, appt.ID, "seasonal allergies", "loratadine 10mg", "follow up in two weeks")
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedBy)
	assert.Equal(t, e.doctor.ID, *completed.CompletedBy)

	require.NotNil(t, treatment)
	assert.Equal(t, appt.ID, treatment.AppointmentID)
	assert.Equal(t, "seasonal allergies", treatment.Diagnosis)
	assert.Equal(t, "loratadine 10mg", treatment.Prescription)
}

func TestCompleteRequiresDiagnosis(t *testing.T) {
	e := newTestEnv(t, config.PolicyOff)
	appt := e.book(t, day(10), at("09:30"))

	for _, diagnosis := range []string{"", "   ", "\t\n"} {
		_, _, err := e.svc.Complete(context.Background(), e.asDoctor, appt.ID, diagnosis, "", "")
		assert.ErrorIs(t, err, ErrEmptyDiagnosis)
	}
}

func TestCompleteAuthz(t *testing.T) {
	e := newTestEnv(t, config.PolicyOff)
	appt := e.book(t, day(10), at("09:30"))
	ctx := context.Background()

	// Patients never complete, not even their own appointment.
	_, _, err := e.svc.Complete(ctx, e.asPatient, appt.ID, "seasonal allergies", "", "")
	assert.ErrorIs(t, err, ErrForbidden)

	_, _, err = e.svc.Complete(ctx, e.strangeDoctor, appt.ID, "seasonal allergies", "", "")
	assert.ErrorIs(t, err, ErrForbidden)

	_, _, err = e.svc.Complete(ctx, e.admin, appt.ID, "seasonal allergies", "", "")
	assert.NoError(t, err)
}

func TestCompleteCancelledAppointment(t *testing.T) {
	e := newTestEnv(t, config.PolicyOff)
	appt := e.book(t, day(10), at("09:30"))

	_, err := e.svc.Cancel(context.Background(), e.asPatient, appt.ID)
	require.NoError(t, err)

	_, _, err = e.svc.Complete(context.Background(), e.asDoctor, appt.ID, "seasonal allergies", "", "")
	assert.ErrorIs(t, err, ErrCancelledState)
}

// Re-completing keeps the first completion stamp and re-saves the treatment.
func TestCompleteTwiceResavesTreatment(t *testing.T) {
	e := newTestEnv(t, config.PolicyOff)
	appt := e.book(t, day(10), at("09:30"))
	ctx := context.Background()

	first, _, err := e.svc.Complete(ctx, e.asDoctor, appt.ID, "seasonal allergies", "", "")
	require.NoError(t, err)

	second, treatment, err := e.svc.Complete(ctx, e.asDoctor, appt.ID, "allergic rhinitis", "cetirizine 10mg", "")
	require.NoError(t, err)

	assert.Equal(t, first.CompletedAt, second.CompletedAt)
	assert.Equal(t, "allergic rhinitis", treatment.Diagnosis)
	assert.Equal(t, "cetirizine 10mg", treatment.Prescription)
}

func TestDeleteAppointment(t *testing.T) {
	e := newTestEnv(t, config.PolicyOff)
	appt := e.book(t, day(10), at("09:30"))
	ctx := context.Background()

	assert.ErrorIs(t, e.svc.Delete(ctx, e.asPatient, appt.ID), ErrForbidden)
	assert.ErrorIs(t, e.svc.Delete(ctx, e.asDoctor, appt.ID), ErrForbidden)

	require.NoError(t, e.svc.Delete(ctx, e.admin, appt.ID))

	// Deleted records vanish from reads and re-deleting stays quiet.
	_, _, err := e.svc.Get(ctx, e.admin, appt.ID)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	assert.NoError(t, e.svc.Delete(ctx, e.admin, appt.ID))
}

func TestDeleteFreesSlot(t *testing.T) {
	e := newTestEnv(t, config.PolicyOff)
	appt := e.book(t, day(10), at("09:30"))

	require.NoError(t, e.svc.Delete(context.Background(), e.admin, appt.ID))

	_, err := e.svc.Create(context.Background(), e.asPatient, e.patient.ID, e.doctor.ID, day(10), at("09:30"))
	assert.NoError(t, err)
}

func TestGetAppointment(t *testing.T) {
	e := newTestEnv(t, config.PolicyOff)
	appt := e.book(t, day(10), at("09:30"))
	ctx := context.Background()

	got, treatment, err := e.svc.Get(ctx, e.asPatient, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appt.ID, got.ID)
	assert.Nil(t, treatment)

	_, _, err = e.svc.Get(ctx, e.otherPatient, appt.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, _, err = e.svc.Complete(ctx, e.asDoctor, appt.ID, "seasonal allergies", "", "")
	require.NoError(t, err)

	_, treatment, err = e.svc.Get(ctx, e.asPatient, appt.ID)
	require.NoError(t, err)
	require.NotNil(t, treatment)
	assert.Equal(t, "seasonal allergies", treatment.Diagnosis)
}
