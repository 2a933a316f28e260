package cache

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	prefixAppointments = "appointments:"
	prefixAppointment  = "appointment:"
	prefixAvailability = "availability:"
	prefixConflicts    = "conflicts:"
	prefixStaff        = "staff:"
)

func join(parts ...string) string {
	return strings.Join(parts, ":")
}

func day(date time.Time) string {
	return date.Format(time.DateOnly)
}

func orAll(s string) string {
	if s == "" {
		return "all"
	}
	return s
}

// AppointmentsKey scopes a day listing by the viewer and status filter.
func AppointmentsKey(date time.Time, role string, userID uuid.UUID, status string) string {
	return prefixAppointments + join(day(date), orAll(role), userID.String(), orAll(status))
}

func AppointmentKey(id uuid.UUID) string {
	return prefixAppointment + id.String()
}

func AvailabilityKey(date time.Time, role, specialization string) string {
	return prefixAvailability + join(day(date), role, orAll(specialization))
}

func ConflictsKey(date time.Time, staffID uuid.UUID, window string, exclude uuid.UUID) string {
	return prefixConflicts + join(day(date), staffID.String(), window, exclude.String())
}

func NextFreeKey(staffID uuid.UUID, date time.Time, d time.Duration) string {
	return prefixStaff + join(staffID.String(), "next-free", day(date), d.String())
}
