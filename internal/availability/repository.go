package availability

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrWindowNotFound = errors.New("availability window not found")
)

// Repository contains all DB interactions needed by the store.
type Repository interface {
	// UpsertWindow writes the window for (doctor, date), replacing any
	// existing one and refreshing updated_at.
	UpsertWindow(ctx context.Context, w Window) (*Window, error)

	GetWindow(ctx context.Context, doctorID uuid.UUID, date time.Time) (*Window, error)

	// DeleteWindows removes the windows for the given dates; dates
	// without a window are ignored.
	DeleteWindows(ctx context.Context, doctorID uuid.UUID, dates []time.Time) error

	// ListWindows returns the doctor's windows with from <= date < to,
	// ordered by date.
	ListWindows(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Window, error)
}
