package appointment

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrRejectionNotFound   = errors.New("rejection not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrNotAuthorized       = errors.New("not authorized for this appointment")
	ErrInvalidInput        = errors.New("invalid input")
	ErrAppointmentBusy     = errors.New("appointment is being modified, please retry")
)

type TransitionReason string

const (
	ReasonNotReached         TransitionReason = "not_reached"
	ReasonAlreadyPast        TransitionReason = "already_past"
	ReasonTerminal           TransitionReason = "terminal"
	ReasonDeadlineNotReached TransitionReason = "deadline_not_reached"
)

// TransitionError means the appointment is not in a status the action can
// start from. Callers recover by re-reading the appointment.
type TransitionError struct {
	Action Action
	From   Status
	Want   []Status
	Reason TransitionReason
}

func (e *TransitionError) Error() string {
	want := make([]string, len(e.Want))
	for i, s := range e.Want {
		want[i] = string(s)
	}
	return fmt.Sprintf("%s: %s from %s (%s), requires %s",
		ErrInvalidTransition, e.Action, e.From, e.Reason, strings.Join(want, " or "))
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
