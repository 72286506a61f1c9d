package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/appointment-engine/internal/slot"
)

// MemRepository is an in-memory Repository for tests and local sandboxes.
// It enforces the same slot-uniqueness guarantee the Postgres partial index
// does, under a single mutex, so concurrent callers observe the same
// exactly-one-winner behavior.
type MemRepository struct {
	mu         sync.Mutex
	doctors    map[uuid.UUID]Doctor
	patients   map[uuid.UUID]Patient
	appts      map[uuid.UUID]Appointment
	treatments map[uuid.UUID]Treatment // keyed by appointment id
}

func NewMemRepository() *MemRepository {
	return &MemRepository{
		doctors:    make(map[uuid.UUID]Doctor),
		patients:   make(map[uuid.UUID]Patient),
		appts:      make(map[uuid.UUID]Appointment),
		treatments: make(map[uuid.UUID]Treatment),
	}
}

func (r *MemRepository) AddDoctor(d Doctor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doctors[d.ID] = d
}

func (r *MemRepository) AddPatient(p Patient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patients[p.ID] = p
}

func (r *MemRepository) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (r *MemRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *MemRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLive(id)
}

func (r *MemRepository) getLive(id uuid.UUID) (*Appointment, error) {
	a, ok := r.appts[id]
	if !ok || a.DeletedAt != nil {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

// slotTaken reports whether a live, non-cancelled appointment other than
// excludeID occupies the slot. Callers hold r.mu.
func (r *MemRepository) slotTaken(doctorID uuid.UUID, date time.Time, t slot.Time, excludeID uuid.UUID) *Appointment {
	for _, a := range r.appts {
		if a.DoctorID == doctorID && a.Date.Equal(date) && a.Time == t &&
			a.Status != StatusCancelled && a.DeletedAt == nil && a.ID != excludeID {
			found := a
			return &found
		}
	}
	return nil
}

func (r *MemRepository) FindBookedSlot(_ context.Context, doctorID uuid.UUID, date time.Time, t slot.Time, excludeID uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a := r.slotTaken(doctorID, date, t, excludeID); a != nil {
		return a, nil
	}
	return nil, ErrAppointmentNotFound
}

func (r *MemRepository) CreateAppointment(_ context.Context, patientID, doctorID uuid.UUID, date time.Time, t slot.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.slotTaken(doctorID, date, t, uuid.Nil) != nil {
		return nil, ErrSlotConflict
	}

	now := time.Now().UTC()
	a := Appointment{
		ID:        uuid.New(),
		PatientID: patientID,
		DoctorID:  doctorID,
		Date:      date,
		Time:      t,
		Status:    StatusBooked,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.appts[a.ID] = a
	return &a, nil
}

func (r *MemRepository) RescheduleAppointment(_ context.Context, id, doctorID uuid.UUID, date time.Time, t slot.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, err := r.getLive(id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusBooked {
		return nil, ErrAppointmentNotFound
	}
	if r.slotTaken(doctorID, date, t, id) != nil {
		return nil, ErrSlotConflict
	}

	a.DoctorID = doctorID
	a.Date = date
	a.Time = t
	a.UpdatedAt = time.Now().UTC()
	r.appts[id] = *a
	return a, nil
}

func (r *MemRepository) CancelAppointment(_ context.Context, id, cancelledBy uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, err := r.getLive(id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	a.Status = StatusCancelled
	a.CancelledAt = &now
	a.CancelledBy = &cancelledBy
	a.UpdatedAt = now
	r.appts[id] = *a
	return a, nil
}

func (r *MemRepository) CompleteAppointment(_ context.Context, id, completedBy uuid.UUID, diagnosis, prescription, notes string) (*Appointment, *Treatment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, err := r.getLive(id)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	a.Status = StatusCompleted
	if a.CompletedAt == nil {
		a.CompletedAt = &now
		a.CompletedBy = &completedBy
	}
	a.UpdatedAt = now
	r.appts[id] = *a

	tr, ok := r.treatments[id]
	if !ok {
		tr = Treatment{ID: uuid.New(), AppointmentID: id, CreatedAt: now}
	}
	tr.Diagnosis = diagnosis
	tr.Prescription = prescription
	tr.Notes = notes
	tr.UpdatedAt = now
	r.treatments[id] = tr

	return a, &tr, nil
}

func (r *MemRepository) SoftDeleteAppointment(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appts[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	if a.DeletedAt == nil {
		now := time.Now().UTC()
		a.DeletedAt = &now
		a.UpdatedAt = now
		r.appts[id] = a
	}
	return nil
}

func (r *MemRepository) GetTreatmentByAppointment(_ context.Context, appointmentID uuid.UUID) (*Treatment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tr, ok := r.treatments[appointmentID]
	if !ok {
		return nil, ErrTreatmentNotFound
	}
	return &tr, nil
}

func (r *MemRepository) ListAppointments(_ context.Context, f ListFilter) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []Appointment
	for _, a := range r.appts {
		if a.DeletedAt != nil {
			continue
		}
		if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
			continue
		}
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.Date != nil && !a.Date.Equal(*f.Date) {
			continue
		}
		all = append(all, a)
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].SlotAt().Before(all[j].SlotAt())
	})

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := f.Offset
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}

	return all[offset:end], nil
}
