package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/homeservice-dispatch/internal/availability"
	"github.com/hackgods/homeservice-dispatch/internal/inventory"
	"github.com/hackgods/homeservice-dispatch/internal/staff"
)

type Status string

const (
	StatusPending              Status = "pending"
	StatusTherapistConfirmed   Status = "therapist_confirmed"
	StatusDriverConfirmed      Status = "driver_confirmed"
	StatusInProgress           Status = "in_progress"
	StatusJourney              Status = "journey"
	StatusArrived              Status = "arrived"
	StatusDroppedOff           Status = "dropped_off"
	StatusSessionInProgress    Status = "session_in_progress"
	StatusAwaitingPayment      Status = "awaiting_payment"
	StatusCompleted            Status = "completed"
	StatusPickupRequested      Status = "pickup_requested"
	StatusDriverAssignedPickup Status = "driver_assigned_pickup"
	StatusReturnJourney        Status = "return_journey"
	StatusTransportCompleted   Status = "transport_completed"

	StatusRejected      Status = "rejected"
	StatusAutoCancelled Status = "auto_cancelled"
	StatusCancelled     Status = "cancelled"
)

var happyPath = []Status{
	StatusPending,
	StatusTherapistConfirmed,
	StatusDriverConfirmed,
	StatusInProgress,
	StatusJourney,
	StatusArrived,
	StatusDroppedOff,
	StatusSessionInProgress,
	StatusAwaitingPayment,
	StatusCompleted,
	StatusPickupRequested,
	StatusDriverAssignedPickup,
	StatusReturnJourney,
	StatusTransportCompleted,
}

// rank places a status on the happy path. Rejected sits between pending and
// therapist_confirmed; terminal side branches rank after everything.
func (s Status) rank() int {
	if s == StatusRejected {
		return 1
	}
	for i, p := range happyPath {
		if p == s {
			return i * 2
		}
	}
	return len(happyPath) * 2
}

func (s Status) Valid() bool {
	switch s {
	case StatusRejected, StatusAutoCancelled, StatusCancelled:
		return true
	}
	for _, p := range happyPath {
		if p == s {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	switch s {
	case StatusTransportCompleted, StatusAutoCancelled, StatusCancelled:
		return true
	}
	return false
}

// Active reports whether the appointment still holds its window: everything
// from pending up to awaiting payment, plus a rejection awaiting review.
func (s Status) Active() bool {
	switch s {
	case StatusPending, StatusRejected, StatusTherapistConfirmed, StatusDriverConfirmed,
		StatusInProgress, StatusJourney, StatusArrived, StatusDroppedOff,
		StatusSessionInProgress, StatusAwaitingPayment:
		return true
	}
	return false
}

// Busy reports whether the assigned driver is out on this appointment.
func (s Status) Busy() bool {
	switch s {
	case StatusInProgress, StatusJourney, StatusArrived, StatusDriverAssignedPickup, StatusReturnJourney:
		return true
	}
	return false
}

func statusStrings(match func(Status) bool) []string {
	all := append(append([]Status{}, happyPath...), StatusRejected, StatusAutoCancelled, StatusCancelled)
	var out []string
	for _, s := range all {
		if match(s) {
			out = append(out, string(s))
		}
	}
	return out
}

func ActiveStatuses() []string { return statusStrings(Status.Active) }

func BusyStatuses() []string { return statusStrings(Status.Busy) }

type TherapistAssignment struct {
	TherapistID uuid.UUID  `json:"therapist_id"`
	Position    int        `json:"position"`
	Accepted    bool       `json:"accepted"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
}

type Appointment struct {
	ID         uuid.UUID             `json:"id"`
	ClientID   uuid.UUID             `json:"client_id"`
	OperatorID uuid.UUID             `json:"operator_id"`
	DriverID   *uuid.UUID            `json:"driver_id,omitempty"`
	GroupSize  int                   `json:"group_size"`
	Therapists []TherapistAssignment `json:"therapists"`
	ServiceIDs []uuid.UUID           `json:"service_ids"`

	Date   time.Time              `json:"date"`
	Start  availability.TimeOfDay `json:"start_time"`
	End    availability.TimeOfDay `json:"end_time"`
	Status Status                 `json:"status"`

	Location string `json:"location,omitempty"`
	Notes    string `json:"notes,omitempty"`

	DriverAccepted   bool       `json:"driver_accepted"`
	DriverAcceptedAt *time.Time `json:"driver_accepted_at,omitempty"`

	RequestedMaterials []inventory.MaterialRequest `json:"requested_materials"`

	PaymentAmount *float64 `json:"payment_amount,omitempty"`
	PaymentMethod string   `json:"payment_method,omitempty"`
	CancelReason  string   `json:"cancel_reason,omitempty"`

	ResponseDeadline time.Time `json:"response_deadline"`

	TherapistConfirmedAt *time.Time `json:"therapist_confirmed_at,omitempty"`
	DriverConfirmedAt    *time.Time `json:"driver_confirmed_at,omitempty"`
	RejectedAt           *time.Time `json:"rejected_at,omitempty"`
	StartedAt            *time.Time `json:"started_at,omitempty"`
	JourneyStartedAt     *time.Time `json:"journey_started_at,omitempty"`
	ArrivedAt            *time.Time `json:"arrived_at,omitempty"`
	DroppedOffAt         *time.Time `json:"dropped_off_at,omitempty"`
	SessionStartedAt     *time.Time `json:"session_started_at,omitempty"`
	PaymentRequestedAt   *time.Time `json:"payment_requested_at,omitempty"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	PickupRequestedAt    *time.Time `json:"pickup_requested_at,omitempty"`
	PickupAssignedAt     *time.Time `json:"pickup_assigned_at,omitempty"`
	PickupConfirmedAt    *time.Time `json:"pickup_confirmed_at,omitempty"`
	TransportCompletedAt *time.Time `json:"transport_completed_at,omitempty"`
	CancelledAt          *time.Time `json:"cancelled_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a Appointment) Window() availability.Window {
	return availability.Window{Start: a.Start, End: a.End}
}

func (a Appointment) ConfirmedCount() int {
	n := 0
	for _, t := range a.Therapists {
		if t.Accepted {
			n++
		}
	}
	return n
}

func (a Appointment) GroupConfirmationComplete() bool {
	return a.ConfirmedCount() == a.GroupSize
}

func (a Appointment) HasTherapist(id uuid.UUID) bool {
	for _, t := range a.Therapists {
		if t.TherapistID == id {
			return true
		}
	}
	return false
}

func (a Appointment) IsDriver(id uuid.UUID) bool {
	return a.DriverID != nil && *a.DriverID == id
}

func (a Appointment) TherapistIDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(a.Therapists))
	for _, t := range a.Therapists {
		out = append(out, t.TherapistID)
	}
	return out
}

// StaffIDs lists every assigned member, therapists first.
func (a Appointment) StaffIDs() []uuid.UUID {
	out := a.TherapistIDs()
	if a.DriverID != nil {
		out = append(out, *a.DriverID)
	}
	return out
}

// Clone copies the slices so a decision can never write through to the
// caller's appointment.
func (a Appointment) Clone() Appointment {
	c := a
	c.Therapists = append([]TherapistAssignment(nil), a.Therapists...)
	c.ServiceIDs = append([]uuid.UUID(nil), a.ServiceIDs...)
	c.RequestedMaterials = append([]inventory.MaterialRequest(nil), a.RequestedMaterials...)
	if a.DriverID != nil {
		id := *a.DriverID
		c.DriverID = &id
	}
	if a.PaymentAmount != nil {
		v := *a.PaymentAmount
		c.PaymentAmount = &v
	}
	return c
}

// RoleSystem is the actor role of the scheduled sweep.
const RoleSystem staff.Role = "system"

type Actor struct {
	ID   uuid.UUID  `json:"id"`
	Role staff.Role `json:"role"`
}

var SystemActor = Actor{Role: RoleSystem}

type Verdict string

const (
	VerdictAccepted Verdict = "accepted"
	VerdictDenied   Verdict = "denied"
)

// Rejection is a staff member's refusal, kept for the operator's review.
type Rejection struct {
	ID            uuid.UUID  `json:"id"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	RejectedBy    uuid.UUID  `json:"rejected_by"`
	Reason        string     `json:"reason"`
	Verdict       *Verdict   `json:"verdict,omitempty"`
	ReviewedBy    *uuid.UUID `json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type EventLog struct {
	ID            int64      `json:"id"`
	EventType     string     `json:"event_type"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	Payload       []byte     `json:"payload,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ListFilter narrows appointment listings. Role and UserID scope the list to
// what that user is assigned to; operators see everything.
type ListFilter struct {
	Date   *time.Time
	Status Status
	Role   staff.Role
	UserID uuid.UUID
	Limit  int
}
