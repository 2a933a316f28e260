package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SlotSource returns the slots relevant to date: those dated date and the
// day before, so overnight slots can be honoured.
type SlotSource interface {
	SlotsAround(ctx context.Context, staffID uuid.UUID, date time.Time) ([]Slot, error)
}

// BookingSource returns the staff member's active bookings dated from the day
// before through the day after date, leaving out the excluded appointment.
type BookingSource interface {
	ActiveBookings(ctx context.Context, staffID uuid.UUID, date time.Time, exclude uuid.UUID) ([]Booking, error)
}

// Checker runs the resolver against persisted slots and bookings. Both checks
// must pass before an assignment is committed.
type Checker struct {
	slots    SlotSource
	bookings BookingSource
}

func NewChecker(slots SlotSource, bookings BookingSource) *Checker {
	return &Checker{slots: slots, bookings: bookings}
}

func (c *Checker) IsAvailable(ctx context.Context, staffID uuid.UUID, date time.Time, w Window) (bool, error) {
	slots, err := c.slots.SlotsAround(ctx, staffID, date)
	if err != nil {
		return false, fmt.Errorf("load slots: %w", err)
	}
	return Covers(slots, date, w), nil
}

func (c *Checker) Conflicts(ctx context.Context, staffID uuid.UUID, date time.Time, w Window, exclude uuid.UUID) ([]Booking, error) {
	bookings, err := c.bookings.ActiveBookings(ctx, staffID, date, exclude)
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}
	return Conflicts(bookings, date, w), nil
}

// Check returns an *UnavailableError or *ConflictError when staffID cannot
// take window w on date.
func (c *Checker) Check(ctx context.Context, staffID uuid.UUID, date time.Time, w Window, exclude uuid.UUID) error {
	if !w.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidWindow, w)
	}

	ok, err := c.IsAvailable(ctx, staffID, date, w)
	if err != nil {
		return err
	}
	if !ok {
		return &UnavailableError{StaffID: staffID, Date: date, Requested: w}
	}

	existing, err := c.Conflicts(ctx, staffID, date, w, exclude)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return &ConflictError{StaffID: staffID, Date: date, Requested: w, Existing: existing}
	}
	return nil
}

func (c *Checker) NextFreeSlot(ctx context.Context, staffID uuid.UUID, date time.Time, d time.Duration) (Window, error) {
	slots, err := c.slots.SlotsAround(ctx, staffID, date)
	if err != nil {
		return Window{}, fmt.Errorf("load slots: %w", err)
	}
	bookings, err := c.bookings.ActiveBookings(ctx, staffID, date, uuid.Nil)
	if err != nil {
		return Window{}, fmt.Errorf("load bookings: %w", err)
	}
	w, ok := NextFree(slots, bookings, date, d)
	if !ok {
		return Window{}, ErrNoFreeSlot
	}
	return w, nil
}
