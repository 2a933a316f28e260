package appointment

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const sweepBatch = 100

// AutoCancelOverdue cancels pending appointments whose response deadline has
// passed, each through the same locked transition as a user action. An
// appointment answered between the scan and its transition is skipped.
func (s *Service) AutoCancelOverdue(ctx context.Context) (int, error) {
	ids, err := s.repo.FindOverdue(ctx, s.now(), sweepBatch)
	if err != nil {
		return 0, fmt.Errorf("find overdue appointments: %w", err)
	}

	cancelled := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return cancelled, ctx.Err()
		}
		_, err := s.Transition(ctx, id, SystemActor, Command{Action: ActionAutoCancel})
		switch {
		case err == nil:
			cancelled++
		case errors.Is(err, ErrInvalidTransition),
			errors.Is(err, ErrAppointmentNotFound),
			errors.Is(err, ErrAppointmentBusy):
			s.logger.Debug("skipping overdue appointment",
				zap.String("appointment_id", id.String()), zap.Error(err))
		default:
			s.logger.Error("auto-cancel failed",
				zap.String("appointment_id", id.String()), zap.Error(err))
		}
	}
	return cancelled, nil
}
