package availability

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrConflictDetected = errors.New("conflicting booking")
	ErrUnavailable      = errors.New("staff not available")
	ErrSlotNotFound     = errors.New("availability slot not found")
	ErrNoFreeSlot       = errors.New("no free slot of requested duration")
	ErrInvalidWindow    = errors.New("invalid time window")
)

// ConflictError carries the window that was asked for and the bookings it collides with.
type ConflictError struct {
	StaffID   uuid.UUID
	Date      time.Time
	Requested Window
	Existing  []Booking
}

func (e *ConflictError) Error() string {
	if len(e.Existing) == 0 {
		return fmt.Sprintf("%s: staff %s on %s %s", ErrConflictDetected, e.StaffID, e.Date.Format(time.DateOnly), e.Requested)
	}
	first := e.Existing[0]
	return fmt.Sprintf("%s: staff %s on %s %s overlaps %s (appointment %s)",
		ErrConflictDetected, e.StaffID, e.Date.Format(time.DateOnly), e.Requested, first.Window, first.AppointmentID)
}

func (e *ConflictError) Unwrap() error { return ErrConflictDetected }

type UnavailableError struct {
	StaffID   uuid.UUID
	Date      time.Time
	Requested Window
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: staff %s has no slot covering %s on %s",
		ErrUnavailable, e.StaffID, e.Requested, e.Date.Format(time.DateOnly))
}

func (e *UnavailableError) Unwrap() error { return ErrUnavailable }
