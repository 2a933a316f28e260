package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/homeservice-dispatch/internal/appointment"
	"github.com/hackgods/homeservice-dispatch/internal/availability"
	"github.com/hackgods/homeservice-dispatch/internal/inventory"
	"github.com/hackgods/homeservice-dispatch/internal/staff"
)

type CreateAppointmentRequest struct {
	ClientID     string                      `json:"client_id"`
	TherapistIDs []string                    `json:"therapist_ids"`
	DriverID     string                      `json:"driver_id,omitempty"`
	ServiceIDs   []string                    `json:"service_ids"`
	GroupSize    int                         `json:"group_size,omitempty"`
	Date         string                      `json:"date"`
	StartTime    availability.TimeOfDay      `json:"start_time"`
	EndTime      availability.TimeOfDay      `json:"end_time"`
	Location     string                      `json:"location,omitempty"`
	Notes        string                      `json:"notes,omitempty"`
	Materials    []inventory.MaterialRequest `json:"materials,omitempty"`
}

// TransitionRequest carries the payload of every transition; each action
// reads only the fields it needs.
type TransitionRequest struct {
	Reason        string                      `json:"reason,omitempty"`
	Verdict       string                      `json:"verdict,omitempty"`
	DriverID      string                      `json:"driver_id,omitempty"`
	Materials     []inventory.MaterialRequest `json:"materials,omitempty"`
	PaymentAmount float64                     `json:"payment_amount,omitempty"`
	PaymentMethod string                      `json:"payment_method,omitempty"`
}

type AppointmentResponse struct {
	appointment.Appointment
	GroupConfirmationComplete bool `json:"group_confirmation_complete"`
}

func newAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{Appointment: a, GroupConfirmationComplete: a.GroupConfirmationComplete()}
}

type DeletedResponse struct {
	ID      uuid.UUID `json:"id"`
	Deleted bool      `json:"deleted"`
}

type CreateStaffRequest struct {
	Name           string     `json:"name"`
	Role           staff.Role `json:"role"`
	Specialization string     `json:"specialization,omitempty"`
}

type SlotRequest struct {
	StaffID     string                 `json:"staff_id"`
	Date        string                 `json:"date"`
	StartTime   availability.TimeOfDay `json:"start_time"`
	EndTime     availability.TimeOfDay `json:"end_time"`
	IsAvailable *bool                  `json:"is_available,omitempty"`
}

type CreateItemRequest struct {
	Name         string `json:"name"`
	Category     string `json:"category"`
	Unit         string `json:"unit"`
	CurrentStock int    `json:"current_stock"`
}

type QuantityRequest struct {
	Quantity int `json:"quantity"`
}

type NextFreeResponse struct {
	StaffID  uuid.UUID           `json:"staff_id"`
	Date     string              `json:"date"`
	Duration string              `json:"duration"`
	Window   availability.Window `json:"window"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type shortfallData struct {
	ItemID    uuid.UUID `json:"item_id"`
	Name      string    `json:"name"`
	Required  int       `json:"required"`
	Available int       `json:"available"`
	Shortfall int       `json:"shortfall"`
}

type conflictData struct {
	StaffID   uuid.UUID              `json:"staff_id"`
	Date      string                 `json:"date"`
	Requested availability.Window    `json:"requested"`
	Existing  []availability.Booking `json:"existing,omitempty"`
}

type transitionData struct {
	Action string   `json:"action"`
	From   string   `json:"from"`
	Want   []string `json:"requires"`
	Reason string   `json:"reason"`
}

type noCandidateData struct {
	Date time.Time `json:"date"`
	Busy any       `json:"busy_drivers"`
}
