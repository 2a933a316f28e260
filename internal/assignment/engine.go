package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/homeservice-dispatch/internal/metrics"
)

var (
	ErrNoCandidate = errors.New("no driver available")
	ErrNotInPool   = errors.New("driver has no availability on this date")
)

// NoCandidateError is returned when every driver with availability on Date is
// busy, or when nobody holds availability at all (Busy is then empty). It is
// an expected outcome that calls for an operator, not a retry.
type NoCandidateError struct {
	Date time.Time
	Busy []Candidate
}

func (e *NoCandidateError) Error() string {
	if len(e.Busy) == 0 {
		return fmt.Sprintf("%s on %s: no drivers hold availability", ErrNoCandidate, e.Date.Format(time.DateOnly))
	}
	return fmt.Sprintf("%s on %s: %d busy driver(s) may be assigned manually", ErrNoCandidate, e.Date.Format(time.DateOnly), len(e.Busy))
}

func (e *NoCandidateError) Unwrap() error { return ErrNoCandidate }

// Source reads the driver pool from persisted state.
//
// DriverCandidates returns active drivers with an available slot on date,
// each flagged Busy when they hold an appointment in a busy status that day.
// Claim moves a driver to the back of the queue only if their key still
// equals prev, so two concurrent assignments cannot take the same driver.
type Source interface {
	DriverCandidates(ctx context.Context, date time.Time) ([]Candidate, error)
	Claim(ctx context.Context, staffID uuid.UUID, prev *time.Time, at time.Time) (bool, error)
	TouchLastAvailable(ctx context.Context, staffID uuid.UUID, at time.Time) error
}

type Engine struct {
	source  Source
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewEngine(source Source, logger *zap.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		source:  source,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Pool splits the date's drivers into the FIFO queue of free drivers and the
// busy ones, ordered the same way.
func (e *Engine) Pool(ctx context.Context, date time.Time, exclude ...uuid.UUID) (*Queue, []Candidate, error) {
	candidates, err := e.source.DriverCandidates(ctx, date)
	if err != nil {
		return nil, nil, fmt.Errorf("load driver candidates: %w", err)
	}

	skip := make(map[uuid.UUID]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}

	q := NewQueue()
	var busy []Candidate
	for _, c := range candidates {
		if _, ok := skip[c.StaffID]; ok {
			continue
		}
		if c.Busy {
			busy = append(busy, c)
			continue
		}
		q.Push(c)
	}
	return q, Ordered(busy), nil
}

// Assign takes the free driver who has waited longest and moves them to the
// back of the queue.
func (e *Engine) Assign(ctx context.Context, date time.Time, exclude ...uuid.UUID) (Candidate, error) {
	q, busy, err := e.Pool(ctx, date, exclude...)
	if err != nil {
		return Candidate{}, err
	}

	for {
		c, ok := q.Pop()
		if !ok {
			e.metrics.Assignment("no_candidate")
			return Candidate{}, &NoCandidateError{Date: date, Busy: busy}
		}

		at := e.now()
		claimed, err := e.source.Claim(ctx, c.StaffID, c.LastAvailableAt, at)
		if err != nil {
			return Candidate{}, fmt.Errorf("claim driver %s: %w", c.StaffID, err)
		}
		if !claimed {
			e.logger.Debug("driver claimed concurrently, trying next",
				zap.String("staff_id", c.StaffID.String()))
			continue
		}

		c.LastAvailableAt = &at
		e.metrics.Assignment("assigned")
		e.logger.Info("driver assigned",
			zap.String("staff_id", c.StaffID.String()),
			zap.String("date", date.Format(time.DateOnly)),
		)
		return c, nil
	}
}

// AssignManual is the operator override. The driver must hold availability on
// date but may be busy.
func (e *Engine) AssignManual(ctx context.Context, date time.Time, staffID uuid.UUID) (Candidate, error) {
	candidates, err := e.source.DriverCandidates(ctx, date)
	if err != nil {
		return Candidate{}, fmt.Errorf("load driver candidates: %w", err)
	}
	for _, c := range candidates {
		if c.StaffID != staffID {
			continue
		}
		at := e.now()
		if err := e.source.TouchLastAvailable(ctx, staffID, at); err != nil {
			return Candidate{}, fmt.Errorf("touch driver %s: %w", staffID, err)
		}
		c.LastAvailableAt = &at
		e.metrics.Assignment("manual")
		return c, nil
	}
	return Candidate{}, ErrNotInPool
}

// Release puts a driver who just became free back into FIFO order.
func (e *Engine) Release(ctx context.Context, staffID uuid.UUID) error {
	if err := e.source.TouchLastAvailable(ctx, staffID, e.now()); err != nil {
		return fmt.Errorf("release driver %s: %w", staffID, err)
	}
	return nil
}
