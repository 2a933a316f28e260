package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/homeservice-dispatch/internal/availability"
	"github.com/hackgods/homeservice-dispatch/internal/staff"
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// Lock reads the appointment under a row lock held until the transaction ends.
	Lock(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Save(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f ListFilter) ([]Appointment, error)

	// For the auto-cancel sweep
	FindOverdue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)

	// For conflict checks
	availability.BookingSource

	// Rejections under review
	InsertRejection(ctx context.Context, r *Rejection) error
	ResolveRejection(ctx context.Context, appointmentID uuid.UUID, verdict Verdict, by uuid.UUID, at time.Time) error
	ListRejections(ctx context.Context, unresolvedOnly bool) ([]Rejection, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
	ListEvents(ctx context.Context, appointmentID uuid.UUID) ([]EventLog, error)
}

// StaffStore is the part of the staff directory a booking needs.
type StaffStore interface {
	Get(ctx context.Context, id uuid.UUID) (*staff.Staff, error)
	LockMany(ctx context.Context, ids []uuid.UUID) ([]staff.Staff, error)
}

type TxRunner interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}
