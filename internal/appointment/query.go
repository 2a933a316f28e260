package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/homeservice-dispatch/internal/availability"
	"github.com/hackgods/homeservice-dispatch/internal/cache"
	"github.com/hackgods/homeservice-dispatch/internal/staff"
)

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return cache.Fetch(ctx, s.cache, cache.AppointmentKey(id), s.cache.TTLFor(s.now()), func(ctx context.Context) (*Appointment, error) {
		return s.repo.Get(ctx, id)
	})
}

// List returns appointments visible to the filter's user. Date-scoped lists
// are cached; "today" gets the short TTL.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Appointment, error) {
	if f.Role == staff.RoleOperator {
		f.UserID = uuid.Nil
	}
	if f.Date == nil {
		return s.repo.List(ctx, f)
	}
	date := availability.DateOf(*f.Date)
	f.Date = &date

	key := cache.AppointmentsKey(date, string(f.Role), f.UserID, string(f.Status))
	return cache.Fetch(ctx, s.cache, key, s.cache.TTLFor(date), func(ctx context.Context) ([]Appointment, error) {
		return s.repo.List(ctx, f)
	})
}

// ConflictReport answers whether a staff member could take a proposed window.
type ConflictReport struct {
	StaffID   uuid.UUID              `json:"staff_id"`
	Date      time.Time              `json:"date"`
	Window    availability.Window    `json:"window"`
	Available bool                   `json:"available"`
	Conflicts []availability.Booking `json:"conflicts"`
}

func (r ConflictReport) Bookable() bool {
	return r.Available && len(r.Conflicts) == 0
}

// CheckProposal is the pre-submission conflict check. exclude leaves one
// appointment out, e.g. the one being rescheduled.
func (s *Service) CheckProposal(ctx context.Context, staffID uuid.UUID, date time.Time, w availability.Window, exclude uuid.UUID) (ConflictReport, error) {
	if !w.Valid() {
		return ConflictReport{}, availability.ErrInvalidWindow
	}
	date = availability.DateOf(date)

	key := cache.ConflictsKey(date, staffID, w.String(), exclude)
	return cache.Fetch(ctx, s.cache, key, s.cache.TTLFor(date), func(ctx context.Context) (ConflictReport, error) {
		ok, err := s.checker.IsAvailable(ctx, staffID, date, w)
		if err != nil {
			return ConflictReport{}, err
		}
		conflicts, err := s.checker.Conflicts(ctx, staffID, date, w, exclude)
		if err != nil {
			return ConflictReport{}, err
		}
		return ConflictReport{
			StaffID:   staffID,
			Date:      date,
			Window:    w,
			Available: ok,
			Conflicts: conflicts,
		}, nil
	})
}

func (s *Service) NextFreeSlot(ctx context.Context, staffID uuid.UUID, date time.Time, d time.Duration) (availability.Window, error) {
	date = availability.DateOf(date)
	key := cache.NextFreeKey(staffID, date, d)
	return cache.Fetch(ctx, s.cache, key, s.cache.TTLFor(date), func(ctx context.Context) (availability.Window, error) {
		return s.checker.NextFreeSlot(ctx, staffID, date, d)
	})
}

func (s *Service) Rejections(ctx context.Context, unresolvedOnly bool) ([]Rejection, error) {
	return s.repo.ListRejections(ctx, unresolvedOnly)
}

func (s *Service) Events(ctx context.Context, id uuid.UUID) ([]EventLog, error) {
	return s.repo.ListEvents(ctx, id)
}
