package availability

import (
	"time"

	"github.com/google/uuid"
)

// Window is a [Start, End) wall-clock range. A window whose End is earlier
// than its Start continues past midnight into the next calendar date.
type Window struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

func (w Window) CrossesMidnight() bool {
	return w.Start > w.End
}

func (w Window) Valid() bool {
	return w.Start.Valid() && w.End.Valid() && w.Start != w.End
}

func (w Window) Duration() time.Duration {
	return time.Duration(w.span().length()) * time.Minute
}

func (w Window) String() string {
	return w.Start.String() + "-" + w.End.String()
}

// span places the window on a minute axis anchored at midnight of its own date.
func (w Window) span() interval {
	end := int(w.End)
	if w.CrossesMidnight() {
		end += MinutesPerDay
	}
	return interval{start: int(w.Start), end: end}
}

// Slot is a staff member's declared availability on a date.
type Slot struct {
	ID          uuid.UUID `json:"id"`
	StaffID     uuid.UUID `json:"staff_id"`
	Date        time.Time `json:"date"`
	Start       TimeOfDay `json:"start_time"`
	End         TimeOfDay `json:"end_time"`
	IsAvailable bool      `json:"is_available"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (s Slot) Window() Window {
	return Window{Start: s.Start, End: s.End}
}

func (s Slot) CrossesMidnight() bool {
	return s.Start > s.End
}

// Booking is an existing appointment window held by a staff member.
type Booking struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	StaffID       uuid.UUID `json:"staff_id"`
	Date          time.Time `json:"date"`
	Window        Window    `json:"window"`
	Status        string    `json:"status"`
}

type interval struct {
	start int
	end   int
}

func (iv interval) length() int {
	return iv.end - iv.start
}

// overlaps treats both intervals as half-open, so touching windows do not overlap.
func (iv interval) overlaps(o interval) bool {
	return iv.start < o.end && o.start < iv.end
}

func (iv interval) shift(minutes int) interval {
	return interval{start: iv.start + minutes, end: iv.end + minutes}
}
