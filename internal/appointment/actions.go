package appointment

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/homeservice-dispatch/internal/inventory"
)

func (s *Service) run(ctx context.Context, id uuid.UUID, actor Actor, cmd Command) (*Appointment, error) {
	d, err := s.Transition(ctx, id, actor, cmd)
	if err != nil {
		return nil, err
	}
	if d.Deleted() {
		return nil, nil
	}
	return &d.Appointment, nil
}

func (s *Service) Accept(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	return s.run(ctx, id, actor, Command{Action: ActionAccept})
}

func (s *Service) Reject(ctx context.Context, id uuid.UUID, actor Actor, reason string) (*Appointment, error) {
	return s.run(ctx, id, actor, Command{Action: ActionReject, Reason: reason})
}

// Review settles a rejection. Accepting it deletes the appointment and
// returns nil.
func (s *Service) Review(ctx context.Context, id uuid.UUID, actor Actor, verdict Verdict) (*Appointment, error) {
	return s.run(ctx, id, actor, Command{Action: ActionReview, Verdict: verdict})
}

func (s *Service) AssignDriver(ctx context.Context, id uuid.UUID, actor Actor, driverID uuid.UUID) (*Appointment, error) {
	return s.run(ctx, id, actor, Command{Action: ActionAssignDriver, DriverID: driverID})
}

func (s *Service) Start(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	return s.run(ctx, id, actor, Command{Action: ActionStart})
}

// StartJourney deducts the appointment's materials on the first call. An
// optional materials list replaces the one reserved at booking. Calling it
// again while on the journey only refreshes the timestamp.
func (s *Service) StartJourney(ctx context.Context, id uuid.UUID, actor Actor, materials []inventory.MaterialRequest) (*Appointment, error) {
	return s.run(ctx, id, actor, Command{Action: ActionStartJourney, Materials: materials})
}

func (s *Service) Arrive(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	return s.run(ctx, id, actor, Command{Action: ActionArrive})
}

func (s *Service) DropOff(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	return s.run(ctx, id, actor, Command{Action: ActionDropOff})
}

func (s *Service) StartSession(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	return s.run(ctx, id, actor, Command{Action: ActionStartSession})
}

func (s *Service) RequestPayment(ctx context.Context, id uuid.UUID, actor Actor, amount float64) (*Appointment, error) {
	return s.run(ctx, id, actor, Command{Action: ActionRequestPayment, PaymentAmount: amount})
}

func (s *Service) VerifyPayment(ctx context.Context, id uuid.UUID, actor Actor, method string) (*Appointment, error) {
	return s.run(ctx, id, actor, Command{Action: ActionVerifyPayment, PaymentMethod: method})
}

// RequestPickup asks the FIFO engine for a driver. When none is free the
// appointment stays in pickup_requested and the operator is told.
func (s *Service) RequestPickup(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	return s.run(ctx, id, actor, Command{Action: ActionRequestPickup})
}

func (s *Service) AssignPickupDriver(ctx context.Context, id uuid.UUID, actor Actor, driverID uuid.UUID) (*Appointment, error) {
	return s.run(ctx, id, actor, Command{Action: ActionAssignPickupDriver, DriverID: driverID})
}

func (s *Service) ConfirmPickup(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	return s.run(ctx, id, actor, Command{Action: ActionConfirmPickup})
}

func (s *Service) RejectPickup(ctx context.Context, id uuid.UUID, actor Actor, reason string) (*Appointment, error) {
	return s.run(ctx, id, actor, Command{Action: ActionRejectPickup, Reason: reason})
}

func (s *Service) CompleteReturn(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	return s.run(ctx, id, actor, Command{Action: ActionCompleteReturn})
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor Actor, reason string) (*Appointment, error) {
	return s.run(ctx, id, actor, Command{Action: ActionCancel, Reason: reason})
}
