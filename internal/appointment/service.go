package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/homeservice-dispatch/internal/assignment"
	"github.com/hackgods/homeservice-dispatch/internal/availability"
	"github.com/hackgods/homeservice-dispatch/internal/broadcast"
	"github.com/hackgods/homeservice-dispatch/internal/cache"
	"github.com/hackgods/homeservice-dispatch/internal/inventory"
	"github.com/hackgods/homeservice-dispatch/internal/metrics"
	"github.com/hackgods/homeservice-dispatch/internal/notification"
	redisclient "github.com/hackgods/homeservice-dispatch/internal/redis"
	"github.com/hackgods/homeservice-dispatch/internal/staff"
)

const EventAppointmentCreated = "APPOINTMENT_CREATED"

// Notifier is the write-only notification sink.
type Notifier interface {
	Create(ctx context.Context, userID uuid.UUID, appointmentID *uuid.UUID, typ notification.Type, message string) error
}

type Deps struct {
	Repo        Repository
	Tx          TxRunner
	Locker      redisclient.Locker
	Staff       StaffStore
	Checker     *availability.Checker
	Ledger      *inventory.Ledger
	Engine      *assignment.Engine
	Penalty     PenaltyPolicy
	Notifier    Notifier
	Broadcaster *broadcast.Broadcaster
	Cache       *cache.Cache
	Metrics     *metrics.Metrics
	Logger      *zap.Logger

	Rules          Rules
	ResponseWindow time.Duration
	Now            func() time.Time
}

// Service runs appointment decisions. Each transition holds the appointment's
// distributed lock, then inside one transaction re-reads the row under a
// row lock, decides, applies the decision's effects and persists. Cache
// invalidation, broadcast and notifications happen only after commit and
// never fail the call.
type Service struct {
	repo        Repository
	tx          TxRunner
	locker      redisclient.Locker
	staff       StaffStore
	checker     *availability.Checker
	ledger      *inventory.Ledger
	engine      *assignment.Engine
	penalty     PenaltyPolicy
	notifier    Notifier
	broadcaster *broadcast.Broadcaster
	cache       *cache.Cache
	metrics     *metrics.Metrics
	logger      *zap.Logger
	rules       Rules
	window      time.Duration
	now         func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		repo:        d.Repo,
		tx:          d.Tx,
		locker:      d.Locker,
		staff:       d.Staff,
		checker:     d.Checker,
		ledger:      d.Ledger,
		engine:      d.Engine,
		penalty:     d.Penalty,
		notifier:    d.Notifier,
		broadcaster: d.Broadcaster,
		cache:       d.Cache,
		metrics:     d.Metrics,
		logger:      d.Logger,
		rules:       d.Rules,
		window:      d.ResponseWindow,
		now:         d.Now,
	}
	if s.penalty == nil {
		s.penalty = NoPenalty{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.window <= 0 {
		s.window = 30 * time.Minute
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// outcome is what a committed unit of work leaves for the post-commit steps.
type outcome struct {
	before   Appointment
	decision Decision
	notices  []Effect
	at       time.Time
}

type CreateInput struct {
	ClientID     uuid.UUID                   `json:"client_id"`
	TherapistIDs []uuid.UUID                 `json:"therapist_ids"`
	DriverID     *uuid.UUID                  `json:"driver_id,omitempty"`
	ServiceIDs   []uuid.UUID                 `json:"service_ids"`
	GroupSize    int                         `json:"group_size,omitempty"`
	Date         time.Time                   `json:"date"`
	Start        availability.TimeOfDay      `json:"start_time"`
	End          availability.TimeOfDay      `json:"end_time"`
	Location     string                      `json:"location,omitempty"`
	Notes        string                      `json:"notes,omitempty"`
	Materials    []inventory.MaterialRequest `json:"materials,omitempty"`
}

func (in CreateInput) validate() error {
	if in.ClientID == uuid.Nil {
		return invalidInput("client_id is required")
	}
	if len(in.TherapistIDs) == 0 {
		return invalidInput("at least one therapist is required")
	}
	if in.GroupSize != 0 && in.GroupSize != len(in.TherapistIDs) {
		return invalidInput("group_size %d does not match %d therapist(s)", in.GroupSize, len(in.TherapistIDs))
	}
	seen := make(map[uuid.UUID]struct{}, len(in.TherapistIDs))
	for _, id := range in.TherapistIDs {
		if id == uuid.Nil {
			return invalidInput("empty therapist id")
		}
		if _, dup := seen[id]; dup {
			return invalidInput("therapist %s listed twice", id)
		}
		seen[id] = struct{}{}
	}
	if in.DriverID != nil {
		if _, dup := seen[*in.DriverID]; dup || *in.DriverID == uuid.Nil {
			return invalidInput("invalid driver_id")
		}
	}
	if in.Date.IsZero() {
		return invalidInput("date is required")
	}
	w := availability.Window{Start: in.Start, End: in.End}
	if !w.Valid() {
		return fmt.Errorf("%w: %s", availability.ErrInvalidWindow, w)
	}
	for _, m := range in.Materials {
		if m.ItemID == uuid.Nil || m.Quantity <= 0 {
			return fmt.Errorf("%w: item %s quantity %d", inventory.ErrInvalidQuantity, m.ItemID, m.Quantity)
		}
	}
	return nil
}

// Create books a new appointment. Every assigned member must be active, hold
// availability for the window and have no overlapping active booking; the
// staff rows stay locked until commit so two bookings cannot both pass.
func (s *Service) Create(ctx context.Context, actor Actor, in CreateInput) (*Appointment, error) {
	if actor.Role != staff.RoleOperator {
		return nil, fmt.Errorf("%w: only operators create bookings", ErrNotAuthorized)
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := s.now()
	appt := Appointment{
		ID:                 uuid.New(),
		ClientID:           in.ClientID,
		OperatorID:         actor.ID,
		DriverID:           in.DriverID,
		GroupSize:          len(in.TherapistIDs),
		ServiceIDs:         in.ServiceIDs,
		Date:               availability.DateOf(in.Date),
		Start:              in.Start,
		End:                in.End,
		Status:             StatusPending,
		Location:           strings.TrimSpace(in.Location),
		Notes:              strings.TrimSpace(in.Notes),
		RequestedMaterials: in.Materials,
		ResponseDeadline:   now.Add(s.window),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	for i, id := range in.TherapistIDs {
		appt.Therapists = append(appt.Therapists, TherapistAssignment{TherapistID: id, Position: i})
	}

	err := s.tx.Do(ctx, func(ctx context.Context) error {
		roles := make(map[uuid.UUID]staff.Role, len(in.TherapistIDs)+1)
		for _, id := range in.TherapistIDs {
			roles[id] = staff.RoleTherapist
		}
		if in.DriverID != nil {
			roles[*in.DriverID] = staff.RoleDriver
		}
		if err := s.lockStaff(ctx, roles); err != nil {
			return err
		}

		for _, id := range appt.StaffIDs() {
			if err := s.checker.Check(ctx, id, appt.Date, appt.Window(), appt.ID); err != nil {
				return err
			}
		}

		if err := s.repo.Create(ctx, &appt); err != nil {
			return err
		}
		return s.logEvent(ctx, appt.ID, EventAppointmentCreated, map[string]any{
			"operator_id":       actor.ID.String(),
			"staff_ids":         appt.StaffIDs(),
			"date":              appt.Date.Format(time.DateOnly),
			"window":            appt.Window().String(),
			"response_deadline": appt.ResponseDeadline,
		})
	})
	if err != nil {
		s.metrics.Transition("create", "rejected")
		s.logFailure("create", uuid.Nil, actor, err)
		return nil, err
	}
	s.metrics.Transition("create", "ok")

	s.logger.Info("appointment created",
		zap.String("appointment_id", appt.ID.String()),
		zap.String("date", appt.Date.Format(time.DateOnly)),
		zap.String("window", appt.Window().String()),
		zap.Int("group_size", appt.GroupSize),
	)

	res := &outcome{
		before: appt,
		decision: Decision{
			Action:      "create",
			Appointment: appt,
		},
		at: now,
	}
	res.notices = append(res.notices, Effect{
		Kind:     EffectNotify,
		Notice:   notification.TypeNewBooking,
		Message:  fmt.Sprintf("New booking on %s %s, please answer before %s.", appt.Date.Format(time.DateOnly), appt.Window(), appt.ResponseDeadline.Format(time.RFC3339)),
		StaffIDs: appt.StaffIDs(),
	})
	s.afterCommit(ctx, actor, res, EventAppointmentCreated)
	return &appt, nil
}

// lockStaff locks the members' rows and checks each one exists, is active and
// has the expected role.
func (s *Service) lockStaff(ctx context.Context, roles map[uuid.UUID]staff.Role) error {
	ids := make([]uuid.UUID, 0, len(roles))
	for id := range roles {
		ids = append(ids, id)
	}
	members, err := s.staff.LockMany(ctx, ids)
	if err != nil {
		return err
	}
	found := make(map[uuid.UUID]staff.Staff, len(members))
	for _, m := range members {
		found[m.ID] = m
	}
	for id, role := range roles {
		m, ok := found[id]
		if !ok {
			return fmt.Errorf("%w: %s", staff.ErrStaffNotFound, id)
		}
		if m.Role != role {
			return invalidInput("%s is a %s, not a %s", id, m.Role, role)
		}
		if !m.IsActive {
			return fmt.Errorf("%w: %s", staff.ErrInactive, id)
		}
	}
	return nil
}

// Transition applies one command to an appointment.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, actor Actor, cmd Command) (Decision, error) {
	var res *outcome

	err := s.withLock(ctx, id, func(ctx context.Context) error {
		return s.tx.Do(ctx, func(ctx context.Context) error {
			current, err := s.repo.Lock(ctx, id)
			if err != nil {
				return err
			}

			now := s.now()
			dec, err := Decide(*current, actor, cmd, now, s.rules)
			if err != nil {
				return err
			}

			r := &outcome{before: *current, decision: dec, at: now}
			if err := s.apply(ctx, actor, r); err != nil {
				return err
			}

			if r.decision.Deleted() {
				if err := s.repo.Delete(ctx, id); err != nil {
					return err
				}
			} else if err := s.repo.Save(ctx, &r.decision.Appointment); err != nil {
				return err
			}

			if err := s.logEvent(ctx, id, r.decision.EventType(), map[string]any{
				"actor_id":   actor.ID.String(),
				"actor_role": string(actor.Role),
				"from":       string(r.before.Status),
				"to":         string(r.decision.Appointment.Status),
				"deleted":    r.decision.Deleted(),
			}); err != nil {
				return err
			}
			res = r
			return nil
		})
	})
	if err != nil {
		s.metrics.Transition(string(cmd.Action), "rejected")
		s.logFailure(string(cmd.Action), id, actor, err)
		return Decision{}, err
	}

	s.metrics.Transition(string(cmd.Action), "ok")
	s.logger.Info("appointment transition",
		zap.String("appointment_id", id.String()),
		zap.String("action", string(cmd.Action)),
		zap.String("from", string(res.before.Status)),
		zap.String("to", string(res.decision.Appointment.Status)),
		zap.String("actor_id", actor.ID.String()),
	)
	s.afterCommit(ctx, actor, res, res.decision.EventType())
	return res.decision, nil
}

func (s *Service) withLock(ctx context.Context, id uuid.UUID, fn func(ctx context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	err := s.locker.WithLock(ctx, "appointment:"+id.String(), fn)
	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		return ErrAppointmentBusy
	case errors.Is(err, redisclient.ErrLockBackend):
		// the row lock still serialises writers
		s.logger.Warn("appointment lock unavailable, continuing on row lock",
			zap.String("appointment_id", id.String()), zap.Error(err))
		return fn(ctx)
	}
	return err
}

// apply carries out the decision's effects inside the open transaction.
// Notices are only collected here.
func (s *Service) apply(ctx context.Context, actor Actor, r *outcome) error {
	appt := &r.decision.Appointment
	for _, e := range r.decision.Effects {
		switch e.Kind {
		case EffectCheckAvailability:
			if err := s.lockStaff(ctx, map[uuid.UUID]staff.Role{e.staffID(): staff.RoleDriver}); err != nil {
				return err
			}
			if err := s.checker.Check(ctx, e.staffID(), appt.Date, appt.Window(), appt.ID); err != nil {
				return err
			}

		case EffectDeductMaterials:
			if _, err := s.ledger.Deduct(ctx, appt.ID, e.Materials); err != nil {
				return err
			}

		case EffectSettleMaterials:
			if _, err := s.ledger.Settle(ctx, appt.ID); err != nil {
				return err
			}

		case EffectAssignPickupDriver:
			driver, err := s.engine.Assign(ctx, appt.Date, e.StaffIDs...)
			var none *assignment.NoCandidateError
			switch {
			case errors.As(err, &none):
				msg := "No driver is free for the pickup; assign one manually."
				if len(none.Busy) > 0 {
					msg = fmt.Sprintf("No driver is free for the pickup; %d busy driver(s) can be assigned manually.", len(none.Busy))
				}
				r.notices = append(r.notices, Effect{
					Kind: EffectNotify, Notice: notification.TypePickupUnassigned,
					Message: msg, StaffIDs: []uuid.UUID{appt.OperatorID},
				})
			case err != nil:
				return err
			default:
				AssignPickup(appt, driver.StaffID, r.at)
				r.notices = append(r.notices, Effect{
					Kind: EffectNotify, Notice: notification.TypePickupAssigned,
					Message: "You were assigned a pickup.", StaffIDs: []uuid.UUID{driver.StaffID},
				})
			}

		case EffectManualPickupDriver:
			if _, err := s.engine.AssignManual(ctx, appt.Date, e.staffID()); err != nil {
				return err
			}

		case EffectReleaseDriver:
			if err := s.engine.Release(ctx, e.staffID()); err != nil {
				return err
			}

		case EffectRecordRejection:
			apptID := appt.ID
			if err := s.repo.InsertRejection(ctx, &Rejection{
				ID:            uuid.New(),
				AppointmentID: &apptID,
				RejectedBy:    e.staffID(),
				Reason:        e.Reason,
				CreatedAt:     r.at,
			}); err != nil {
				return fmt.Errorf("record rejection: %w", err)
			}

		case EffectResolveRejection:
			if err := s.repo.ResolveRejection(ctx, appt.ID, e.Verdict, actor.ID, r.at); err != nil {
				return fmt.Errorf("resolve rejection: %w", err)
			}

		case EffectPenalize:
			penalized, err := s.penalty.PenalizeUnresponsive(ctx, *appt, e.StaffIDs)
			if err != nil {
				return fmt.Errorf("penalize unresponsive staff: %w", err)
			}
			if len(penalized) > 0 {
				r.notices = append(r.notices, Effect{
					Kind: EffectNotify, Notice: notification.TypeAccountDeactivated,
					Message:  "Your account was deactivated after a booking timed out without an answer.",
					StaffIDs: penalized,
				})
			}

		case EffectNotify:
			r.notices = append(r.notices, e)

		case EffectDelete:
		}
	}
	return nil
}

// afterCommit runs the best-effort steps. They use a context detached from
// the caller's cancellation since the transition is already committed.
func (s *Service) afterCommit(ctx context.Context, actor Actor, r *outcome, eventType string) {
	ctx = context.WithoutCancel(ctx)
	appt := r.decision.Appointment

	staffIDs := unique(append(r.before.StaffIDs(), appt.StaffIDs()...))
	s.cache.InvalidateAppointment(ctx, appt.ID, appt.Date, staffIDs...)
	if rosterChanged(r.decision) {
		s.cache.InvalidateRoster(ctx)
	}

	s.broadcaster.Announce(ctx, broadcast.Event{
		Type:          eventType,
		AppointmentID: appt.ID,
		Status:        string(appt.Status),
		PreviousState: string(r.before.Status),
		Date:          appt.Date.Format(time.DateOnly),
		ActorID:       actor.ID,
		At:            r.at,
	}, append([]uuid.UUID{appt.OperatorID}, staffIDs...)...)

	if s.notifier == nil {
		return
	}
	apptID := appt.ID
	for _, n := range r.notices {
		for _, userID := range unique(n.StaffIDs) {
			if err := s.notifier.Create(ctx, userID, &apptID, n.Notice, n.Message); err != nil {
				s.logger.Warn("notification failed",
					zap.String("appointment_id", apptID.String()),
					zap.String("user_id", userID.String()),
					zap.String("type", string(n.Notice)),
					zap.Error(err),
				)
			}
		}
	}
}

// rosterChanged reports whether the decision touched staff state that cached
// availability listings for every date depend on.
func rosterChanged(d Decision) bool {
	for _, kind := range []EffectKind{EffectPenalize, EffectReleaseDriver, EffectAssignPickupDriver, EffectManualPickupDriver} {
		if d.Has(kind) {
			return true
		}
	}
	return false
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload for %s: %w", eventType, err)
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}
	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		return fmt.Errorf("insert event log %s: %w", eventType, err)
	}
	return nil
}

// logFailure logs expected refusals at Info and anything else at Error.
func (s *Service) logFailure(action string, id uuid.UUID, actor Actor, err error) {
	fields := []zap.Field{
		zap.String("action", action),
		zap.String("appointment_id", id.String()),
		zap.String("actor_id", actor.ID.String()),
		zap.Error(err),
	}
	if IsExpected(err) {
		s.logger.Info("appointment operation refused", fields...)
		return
	}
	s.logger.Error("appointment operation failed", fields...)
}

// IsExpected reports whether err is one of the user-facing outcomes rather
// than an infrastructure failure.
func IsExpected(err error) bool {
	for _, target := range []error{
		ErrInvalidTransition,
		ErrNotAuthorized,
		ErrInvalidInput,
		ErrAppointmentNotFound,
		ErrAppointmentBusy,
		availability.ErrConflictDetected,
		availability.ErrUnavailable,
		availability.ErrInvalidWindow,
		inventory.ErrInsufficientStock,
		inventory.ErrInvalidQuantity,
		inventory.ErrItemNotFound,
		assignment.ErrNoCandidate,
		assignment.ErrNotInPool,
		staff.ErrStaffNotFound,
		staff.ErrInactive,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func unique(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
