package appointment

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/homeservice-dispatch/internal/config"
)

// PenaltyPolicy is what happens to therapists who let a booking time out
// without answering. It runs inside the auto-cancel transaction and returns
// the members it actually penalised.
type PenaltyPolicy interface {
	PenalizeUnresponsive(ctx context.Context, appt Appointment, therapistIDs []uuid.UUID) ([]uuid.UUID, error)
}

type Deactivator interface {
	Deactivate(ctx context.Context, ids ...uuid.UUID) (int, error)
}

// DeactivateUnresponsive disables the accounts of the unresponsive therapists.
type DeactivateUnresponsive struct {
	staff  Deactivator
	logger *zap.Logger
}

func NewDeactivateUnresponsive(staff Deactivator, logger *zap.Logger) *DeactivateUnresponsive {
	return &DeactivateUnresponsive{staff: staff, logger: logger}
}

func (p *DeactivateUnresponsive) PenalizeUnresponsive(ctx context.Context, appt Appointment, therapistIDs []uuid.UUID) ([]uuid.UUID, error) {
	n, err := p.staff.Deactivate(ctx, therapistIDs...)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(therapistIDs))
	for i, id := range therapistIDs {
		ids[i] = id.String()
	}
	p.logger.Warn("therapists deactivated after auto-cancel",
		zap.String("appointment_id", appt.ID.String()),
		zap.Strings("staff_ids", ids),
		zap.Int("deactivated", n),
	)
	return therapistIDs, nil
}

type NoPenalty struct{}

func (NoPenalty) PenalizeUnresponsive(context.Context, Appointment, []uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}

// PenaltyFor picks the penalty policy configured in the policy file.
func PenaltyFor(p config.Policy, staff Deactivator, logger *zap.Logger) PenaltyPolicy {
	if p.DeactivateOnAutoCancel {
		return NewDeactivateUnresponsive(staff, logger)
	}
	return NoPenalty{}
}

func RulesFor(p config.Policy) Rules {
	return Rules{
		AutoReassignPickup:      p.PickupRejection == config.PickupRejectionAuto,
		NotifyPartialAcceptance: p.NotifyPartialAcceptance,
	}
}
