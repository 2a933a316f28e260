package appointment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/homeservice-dispatch/internal/inventory"
	"github.com/hackgods/homeservice-dispatch/internal/notification"
	"github.com/hackgods/homeservice-dispatch/internal/staff"
)

type Action string

const (
	ActionAccept             Action = "accept"
	ActionReject             Action = "reject"
	ActionReview             Action = "review"
	ActionAssignDriver       Action = "assign_driver"
	ActionStart              Action = "start"
	ActionStartJourney       Action = "start_journey"
	ActionArrive             Action = "arrive"
	ActionDropOff            Action = "drop_off"
	ActionStartSession       Action = "start_session"
	ActionRequestPayment     Action = "request_payment"
	ActionVerifyPayment      Action = "verify_payment"
	ActionRequestPickup      Action = "request_pickup"
	ActionAssignPickupDriver Action = "assign_pickup_driver"
	ActionConfirmPickup      Action = "confirm_pickup"
	ActionRejectPickup       Action = "reject_pickup"
	ActionCompleteReturn     Action = "complete_return"
	ActionCancel             Action = "cancel"
	ActionAutoCancel         Action = "auto_cancel"
)

// Command is an action plus the payload some actions need.
type Command struct {
	Action        Action                      `json:"action"`
	Reason        string                      `json:"reason,omitempty"`
	Verdict       Verdict                     `json:"verdict,omitempty"`
	DriverID      uuid.UUID                   `json:"driver_id,omitempty"`
	Materials     []inventory.MaterialRequest `json:"materials,omitempty"`
	PaymentAmount float64                     `json:"payment_amount,omitempty"`
	PaymentMethod string                      `json:"payment_method,omitempty"`
}

type EffectKind string

const (
	EffectCheckAvailability  EffectKind = "check_availability"
	EffectDeductMaterials    EffectKind = "deduct_materials"
	EffectSettleMaterials    EffectKind = "settle_materials"
	EffectAssignPickupDriver EffectKind = "assign_pickup_driver"
	EffectManualPickupDriver EffectKind = "manual_pickup_driver"
	EffectReleaseDriver      EffectKind = "release_driver"
	EffectRecordRejection    EffectKind = "record_rejection"
	EffectResolveRejection   EffectKind = "resolve_rejection"
	EffectDelete             EffectKind = "delete"
	EffectPenalize           EffectKind = "penalize"
	EffectNotify             EffectKind = "notify"
)

// Effect is a side effect the execution shell must apply for a decision.
// StaffIDs means: the member to check, release or assign; the drivers to
// skip for a pickup assignment; the therapists to penalise; or the
// recipients of a notice.
type Effect struct {
	Kind      EffectKind                  `json:"kind"`
	StaffIDs  []uuid.UUID                 `json:"staff_ids,omitempty"`
	Materials []inventory.MaterialRequest `json:"materials,omitempty"`
	Reason    string                      `json:"reason,omitempty"`
	Verdict   Verdict                     `json:"verdict,omitempty"`
	Notice    notification.Type           `json:"notice,omitempty"`
	Message   string                      `json:"message,omitempty"`
}

func (e Effect) staffID() uuid.UUID {
	if len(e.StaffIDs) == 0 {
		return uuid.Nil
	}
	return e.StaffIDs[0]
}

// Rules are the policy switches that change what a decision emits.
type Rules struct {
	AutoReassignPickup      bool
	NotifyPartialAcceptance bool
}

// Decision is the outcome of an action: the appointment as it should be
// persisted and the effects that go with it.
type Decision struct {
	Action      Action      `json:"action"`
	From        Status      `json:"from"`
	Appointment Appointment `json:"appointment"`
	Effects     []Effect    `json:"effects"`
}

func (d *Decision) emit(e Effect) {
	d.Effects = append(d.Effects, e)
}

func (d *Decision) notify(typ notification.Type, msg string, to ...uuid.UUID) {
	var recipients []uuid.UUID
	for _, id := range to {
		if id != uuid.Nil {
			recipients = append(recipients, id)
		}
	}
	if len(recipients) == 0 {
		return
	}
	d.emit(Effect{Kind: EffectNotify, Notice: typ, Message: msg, StaffIDs: recipients})
}

func (d Decision) Has(kind EffectKind) bool {
	for _, e := range d.Effects {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

func (d Decision) Deleted() bool {
	return d.Has(EffectDelete)
}

// EventType names the audit log entry for the decision.
func (d Decision) EventType() string {
	return "APPOINTMENT_" + strings.ToUpper(string(d.Action))
}

// Decide applies cmd to a copy of a. It performs no I/O: authorization and
// the status precondition are checked, then the new state and its side
// effects are returned.
func Decide(a Appointment, actor Actor, cmd Command, now time.Time, rules Rules) (Decision, error) {
	appt := a.Clone()
	d := Decision{Action: cmd.Action, From: a.Status}

	var err error
	switch cmd.Action {
	case ActionAccept:
		err = accept(&appt, actor, now, rules, &d)
	case ActionReject:
		err = reject(&appt, actor, cmd, now, &d)
	case ActionReview:
		err = review(&appt, actor, cmd, now, &d)
	case ActionAssignDriver:
		err = assignDriver(&appt, actor, cmd, &d)
	case ActionStart:
		err = step(&appt, actor, cmd.Action, isOperator, StatusDriverConfirmed, StatusInProgress, &appt.StartedAt, now)
		if err == nil {
			d.notify(notification.TypeAuthorized, "You are cleared to start the journey.", driverOf(appt))
		}
	case ActionStartJourney:
		err = startJourney(&appt, actor, cmd, now, &d)
	case ActionArrive:
		err = step(&appt, actor, cmd.Action, isDriver, StatusJourney, StatusArrived, &appt.ArrivedAt, now)
	case ActionDropOff:
		err = step(&appt, actor, cmd.Action, isDriver, StatusArrived, StatusDroppedOff, &appt.DroppedOffAt, now)
		if err == nil {
			d.emit(Effect{Kind: EffectReleaseDriver, StaffIDs: []uuid.UUID{actor.ID}})
		}
	case ActionStartSession:
		err = step(&appt, actor, cmd.Action, isTherapist, StatusDroppedOff, StatusSessionInProgress, &appt.SessionStartedAt, now)
	case ActionRequestPayment:
		err = requestPayment(&appt, actor, cmd, now, &d)
	case ActionVerifyPayment:
		err = step(&appt, actor, cmd.Action, isOperator, StatusAwaitingPayment, StatusCompleted, &appt.CompletedAt, now)
		if err == nil {
			if m := strings.TrimSpace(cmd.PaymentMethod); m != "" {
				appt.PaymentMethod = m
			}
			d.emit(Effect{Kind: EffectSettleMaterials})
		}
	case ActionRequestPickup:
		err = step(&appt, actor, cmd.Action, isTherapist, StatusCompleted, StatusPickupRequested, &appt.PickupRequestedAt, now)
		if err == nil {
			d.emit(Effect{Kind: EffectAssignPickupDriver})
		}
	case ActionAssignPickupDriver:
		err = assignPickupDriver(&appt, actor, cmd, now, &d)
	case ActionConfirmPickup:
		err = step(&appt, actor, cmd.Action, isDriver, StatusDriverAssignedPickup, StatusReturnJourney, &appt.PickupConfirmedAt, now)
	case ActionRejectPickup:
		err = rejectPickup(&appt, actor, cmd, rules, &d)
	case ActionCompleteReturn:
		err = step(&appt, actor, cmd.Action, isDriver, StatusReturnJourney, StatusTransportCompleted, &appt.TransportCompletedAt, now)
		if err == nil {
			d.emit(Effect{Kind: EffectReleaseDriver, StaffIDs: []uuid.UUID{actor.ID}})
		}
	case ActionCancel:
		err = cancel(&appt, actor, cmd, now, &d)
	case ActionAutoCancel:
		err = autoCancel(&appt, actor, now, &d)
	default:
		err = invalidInput("unknown action %q", cmd.Action)
	}
	if err != nil {
		return Decision{}, err
	}

	appt.UpdatedAt = now
	d.Appointment = appt
	return d, nil
}

type authorizer func(a *Appointment, actor Actor) bool

func isOperator(_ *Appointment, actor Actor) bool {
	return actor.Role == staff.RoleOperator
}

func isTherapist(a *Appointment, actor Actor) bool {
	return actor.Role == staff.RoleTherapist && a.HasTherapist(actor.ID)
}

func isDriver(a *Appointment, actor Actor) bool {
	return actor.Role == staff.RoleDriver && a.IsDriver(actor.ID)
}

func isAssignedStaff(a *Appointment, actor Actor) bool {
	return isTherapist(a, actor) || isDriver(a, actor)
}

func authorize(a *Appointment, actor Actor, action Action, allowed authorizer) error {
	if !allowed(a, actor) {
		return fmt.Errorf("%w: %s %s cannot %s", ErrNotAuthorized, actor.Role, actor.ID, action)
	}
	return nil
}

// require checks that a is in one of the given statuses and otherwise says
// whether the action came too early or too late.
func require(a *Appointment, action Action, want ...Status) error {
	for _, s := range want {
		if a.Status == s {
			return nil
		}
	}

	e := &TransitionError{Action: action, From: a.Status, Want: want}
	switch {
	case a.Status.Terminal():
		e.Reason = ReasonTerminal
	case a.Status.rank() < want[0].rank():
		e.Reason = ReasonNotReached
	default:
		e.Reason = ReasonAlreadyPast
	}
	return e
}

// step is the common shape of a single-predecessor transition.
func step(a *Appointment, actor Actor, action Action, allowed authorizer, from, to Status, stamp **time.Time, now time.Time) error {
	if err := authorize(a, actor, action, allowed); err != nil {
		return err
	}
	if err := require(a, action, from); err != nil {
		return err
	}
	a.Status = to
	*stamp = timePtr(now)
	return nil
}

func accept(a *Appointment, actor Actor, now time.Time, rules Rules, d *Decision) error {
	if err := authorize(a, actor, ActionAccept, isAssignedStaff); err != nil {
		return err
	}

	switch actor.Role {
	case staff.RoleTherapist:
		if err := require(a, ActionAccept, StatusPending); err != nil {
			return err
		}
		for i := range a.Therapists {
			t := &a.Therapists[i]
			if t.TherapistID != actor.ID {
				continue
			}
			if t.Accepted {
				return &TransitionError{Action: ActionAccept, From: a.Status, Want: []Status{StatusPending}, Reason: ReasonAlreadyPast}
			}
			t.Accepted = true
			t.AcceptedAt = timePtr(now)
		}
	case staff.RoleDriver:
		if err := require(a, ActionAccept, StatusPending, StatusTherapistConfirmed); err != nil {
			return err
		}
		if a.DriverAccepted {
			return &TransitionError{Action: ActionAccept, From: a.Status, Want: []Status{StatusPending, StatusTherapistConfirmed}, Reason: ReasonAlreadyPast}
		}
		a.DriverAccepted = true
		a.DriverAcceptedAt = timePtr(now)
	}

	if a.Status == StatusPending && a.GroupConfirmationComplete() {
		a.Status = StatusTherapistConfirmed
		a.TherapistConfirmedAt = timePtr(now)
	}
	if a.Status == StatusTherapistConfirmed && a.DriverID != nil && a.DriverAccepted {
		a.Status = StatusDriverConfirmed
		a.DriverConfirmedAt = timePtr(now)
	}

	if a.Status == StatusDriverConfirmed {
		d.notify(notification.TypeConfirmed, "All assigned staff accepted the booking.", a.OperatorID)
		return nil
	}
	if rules.NotifyPartialAcceptance {
		d.notify(notification.TypePartialAcceptance,
			fmt.Sprintf("%s accepted; %d of %d therapist(s) confirmed, driver accepted: %t.",
				actor.Role, a.ConfirmedCount(), a.GroupSize, a.DriverAccepted),
			a.OperatorID)
	}
	return nil
}

func reject(a *Appointment, actor Actor, cmd Command, now time.Time, d *Decision) error {
	if err := authorize(a, actor, ActionReject, isAssignedStaff); err != nil {
		return err
	}
	if err := require(a, ActionReject, StatusPending); err != nil {
		return err
	}
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		return invalidInput("a rejection needs a reason")
	}

	resetAcceptance(a)
	a.Status = StatusRejected
	a.RejectedAt = timePtr(now)

	d.emit(Effect{Kind: EffectRecordRejection, StaffIDs: []uuid.UUID{actor.ID}, Reason: reason})
	d.notify(notification.TypeRejected, fmt.Sprintf("%s rejected the booking: %s", actor.Role, reason), a.OperatorID)
	return nil
}

func review(a *Appointment, actor Actor, cmd Command, now time.Time, d *Decision) error {
	if err := authorize(a, actor, ActionReview, isOperator); err != nil {
		return err
	}
	if err := require(a, ActionReview, StatusRejected); err != nil {
		return err
	}

	switch cmd.Verdict {
	case VerdictAccepted:
		d.emit(Effect{Kind: EffectResolveRejection, Verdict: VerdictAccepted})
		d.emit(Effect{Kind: EffectDelete})
		d.notify(notification.TypeRejectionReviewed, "The booking was withdrawn after review.", a.StaffIDs()...)
	case VerdictDenied:
		for i := range a.Therapists {
			a.Therapists[i].Accepted = true
			a.Therapists[i].AcceptedAt = timePtr(now)
		}
		a.TherapistConfirmedAt = timePtr(now)
		a.Status = StatusTherapistConfirmed
		if a.DriverID != nil {
			a.DriverAccepted = true
			a.DriverAcceptedAt = timePtr(now)
			a.DriverConfirmedAt = timePtr(now)
			a.Status = StatusDriverConfirmed
		}
		d.emit(Effect{Kind: EffectResolveRejection, Verdict: VerdictDenied})
		d.notify(notification.TypeRejectionReviewed, "The rejection was denied; the booking stands as confirmed.", a.StaffIDs()...)
	default:
		return invalidInput("verdict must be %q or %q", VerdictAccepted, VerdictDenied)
	}
	return nil
}

func assignDriver(a *Appointment, actor Actor, cmd Command, d *Decision) error {
	if err := authorize(a, actor, ActionAssignDriver, isOperator); err != nil {
		return err
	}
	if err := require(a, ActionAssignDriver, StatusPending, StatusTherapistConfirmed); err != nil {
		return err
	}
	if cmd.DriverID == uuid.Nil {
		return invalidInput("driver_id is required")
	}

	previous := driverOf(*a)
	a.DriverID = &cmd.DriverID
	a.DriverAccepted = false
	a.DriverAcceptedAt = nil

	d.emit(Effect{Kind: EffectCheckAvailability, StaffIDs: []uuid.UUID{cmd.DriverID}})
	d.notify(notification.TypeNewBooking, "You were assigned to a booking.", cmd.DriverID)
	if previous != uuid.Nil && previous != cmd.DriverID {
		d.notify(notification.TypeCancelled, "You were removed from a booking.", previous)
	}
	return nil
}

func startJourney(a *Appointment, actor Actor, cmd Command, now time.Time, d *Decision) error {
	if err := authorize(a, actor, ActionStartJourney, isDriver); err != nil {
		return err
	}
	if err := require(a, ActionStartJourney, StatusInProgress, StatusJourney); err != nil {
		return err
	}

	restart := a.Status == StatusJourney
	a.Status = StatusJourney
	a.JourneyStartedAt = timePtr(now)
	if restart {
		return nil
	}

	if len(cmd.Materials) > 0 {
		a.RequestedMaterials = append([]inventory.MaterialRequest(nil), cmd.Materials...)
	}
	if len(a.RequestedMaterials) > 0 {
		d.emit(Effect{Kind: EffectDeductMaterials, Materials: a.RequestedMaterials})
	}
	return nil
}

func requestPayment(a *Appointment, actor Actor, cmd Command, now time.Time, d *Decision) error {
	if err := authorize(a, actor, ActionRequestPayment, isTherapist); err != nil {
		return err
	}
	if err := require(a, ActionRequestPayment, StatusSessionInProgress); err != nil {
		return err
	}
	if cmd.PaymentAmount <= 0 {
		return invalidInput("payment amount must be positive")
	}

	amount := cmd.PaymentAmount
	a.PaymentAmount = &amount
	a.Status = StatusAwaitingPayment
	a.PaymentRequestedAt = timePtr(now)
	d.notify(notification.TypePaymentRequested, fmt.Sprintf("Payment of %.2f requested.", amount), a.OperatorID)
	return nil
}

func assignPickupDriver(a *Appointment, actor Actor, cmd Command, now time.Time, d *Decision) error {
	if err := authorize(a, actor, ActionAssignPickupDriver, isOperator); err != nil {
		return err
	}
	if err := require(a, ActionAssignPickupDriver, StatusPickupRequested); err != nil {
		return err
	}
	if cmd.DriverID == uuid.Nil {
		return invalidInput("driver_id is required")
	}
	AssignPickup(a, cmd.DriverID, now)
	d.emit(Effect{Kind: EffectManualPickupDriver, StaffIDs: []uuid.UUID{cmd.DriverID}})
	d.notify(notification.TypePickupAssigned, "You were assigned a pickup.", cmd.DriverID)
	return nil
}

func rejectPickup(a *Appointment, actor Actor, cmd Command, rules Rules, d *Decision) error {
	if err := authorize(a, actor, ActionRejectPickup, isDriver); err != nil {
		return err
	}
	if err := require(a, ActionRejectPickup, StatusDriverAssignedPickup); err != nil {
		return err
	}

	a.Status = StatusPickupRequested
	a.DriverID = nil
	a.PickupAssignedAt = nil

	msg := "The assigned driver declined the pickup."
	if r := strings.TrimSpace(cmd.Reason); r != "" {
		msg += " Reason: " + r
	}
	d.notify(notification.TypePickupRejected, msg, a.OperatorID)
	if rules.AutoReassignPickup {
		d.emit(Effect{Kind: EffectAssignPickupDriver, StaffIDs: []uuid.UUID{actor.ID}})
	}
	return nil
}

func cancel(a *Appointment, actor Actor, cmd Command, now time.Time, d *Decision) error {
	if err := authorize(a, actor, ActionCancel, isOperator); err != nil {
		return err
	}
	if !a.Status.Active() {
		reason := ReasonAlreadyPast
		if a.Status.Terminal() {
			reason = ReasonTerminal
		}
		return &TransitionError{Action: ActionCancel, From: a.Status, Want: activeList(), Reason: reason}
	}

	wasBusy := a.Status.Busy()
	if a.Status == StatusRejected {
		// the booking is withdrawn, so the pending rejection stands
		d.emit(Effect{Kind: EffectResolveRejection, Verdict: VerdictAccepted})
	}
	a.Status = StatusCancelled
	a.CancelledAt = timePtr(now)
	a.CancelReason = strings.TrimSpace(cmd.Reason)

	d.emit(Effect{Kind: EffectSettleMaterials})
	if wasBusy && a.DriverID != nil {
		d.emit(Effect{Kind: EffectReleaseDriver, StaffIDs: []uuid.UUID{*a.DriverID}})
	}
	d.notify(notification.TypeCancelled, "The booking was cancelled.", a.StaffIDs()...)
	return nil
}

func autoCancel(a *Appointment, actor Actor, now time.Time, d *Decision) error {
	if err := authorize(a, actor, ActionAutoCancel, func(_ *Appointment, act Actor) bool {
		return act.Role == RoleSystem
	}); err != nil {
		return err
	}
	if err := require(a, ActionAutoCancel, StatusPending); err != nil {
		return err
	}
	if !now.After(a.ResponseDeadline) {
		return &TransitionError{Action: ActionAutoCancel, From: a.Status, Want: []Status{StatusPending}, Reason: ReasonDeadlineNotReached}
	}

	a.Status = StatusAutoCancelled
	a.CancelledAt = timePtr(now)
	a.CancelReason = "response deadline passed"

	var unresponsive []uuid.UUID
	for _, t := range a.Therapists {
		if !t.Accepted {
			unresponsive = append(unresponsive, t.TherapistID)
		}
	}
	if len(unresponsive) > 0 {
		d.emit(Effect{Kind: EffectPenalize, StaffIDs: unresponsive})
	}
	d.notify(notification.TypeAutoCancelled, "The booking was cancelled because nobody answered in time.",
		append([]uuid.UUID{a.OperatorID}, a.StaffIDs()...)...)
	return nil
}

// AssignPickup hands the return trip to driverID.
func AssignPickup(a *Appointment, driverID uuid.UUID, now time.Time) {
	id := driverID
	a.DriverID = &id
	a.Status = StatusDriverAssignedPickup
	a.PickupAssignedAt = timePtr(now)
}

func resetAcceptance(a *Appointment) {
	for i := range a.Therapists {
		a.Therapists[i].Accepted = false
		a.Therapists[i].AcceptedAt = nil
	}
	a.DriverAccepted = false
	a.DriverAcceptedAt = nil
}

func driverOf(a Appointment) uuid.UUID {
	if a.DriverID == nil {
		return uuid.Nil
	}
	return *a.DriverID
}

func activeList() []Status {
	var out []Status
	for _, s := range ActiveStatuses() {
		out = append(out, Status(s))
	}
	return out
}

func timePtr(t time.Time) *time.Time {
	return &t
}
