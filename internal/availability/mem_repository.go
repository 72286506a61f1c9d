package availability

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/appointment-engine/internal/slot"
)

// MemRepository is an in-memory Repository for tests and local sandboxes.
type MemRepository struct {
	mu      sync.Mutex
	windows map[memKey]Window
}

type memKey struct {
	doctorID uuid.UUID
	date     string
}

func NewMemRepository() *MemRepository {
	return &MemRepository{windows: make(map[memKey]Window)}
}

func keyOf(doctorID uuid.UUID, date time.Time) memKey {
	return memKey{doctorID: doctorID, date: slot.FormatDate(date)}
}

func (r *MemRepository) UpsertWindow(_ context.Context, w Window) (*Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w.UpdatedAt = time.Now().UTC()
	r.windows[keyOf(w.DoctorID, w.Date)] = w
	return &w, nil
}

func (r *MemRepository) GetWindow(_ context.Context, doctorID uuid.UUID, date time.Time) (*Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.windows[keyOf(doctorID, date)]
	if !ok {
		return nil, ErrWindowNotFound
	}
	return &w, nil
}

func (r *MemRepository) DeleteWindows(_ context.Context, doctorID uuid.UUID, dates []time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range dates {
		delete(r.windows, keyOf(doctorID, d))
	}
	return nil
}

func (r *MemRepository) ListWindows(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Window
	for _, w := range r.windows {
		if w.DoctorID == doctorID && !w.Date.Before(from) && w.Date.Before(to) {
			result = append(result, w)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})

	return result, nil
}
