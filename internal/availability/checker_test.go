package availability_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/homeservice-dispatch/internal/availability"
)

type fakeSlots struct {
	slots []availability.Slot
	err   error
}

func (f fakeSlots) SlotsAround(_ context.Context, staffID uuid.UUID, date time.Time) ([]availability.Slot, error) {
	return f.slots, f.err
}

type fakeBookings struct {
	bookings []availability.Booking
	excluded uuid.UUID
}

func (f *fakeBookings) ActiveBookings(_ context.Context, _ uuid.UUID, _ time.Time, exclude uuid.UUID) ([]availability.Booking, error) {
	f.excluded = exclude
	var out []availability.Booking
	for _, b := range f.bookings {
		if b.AppointmentID != exclude {
			out = append(out, b)
		}
	}
	return out, nil
}

func TestChecker_Check(t *testing.T) {
	ctx := context.Background()
	staffID := uuid.New()
	held := booking(t, day, "14:00", "15:30")
	bookings := &fakeBookings{bookings: []availability.Booking{held}}
	c := availability.NewChecker(fakeSlots{slots: []availability.Slot{slot(t, day, "13:00", "01:00")}}, bookings)

	t.Run("free window", func(t *testing.T) {
		require.NoError(t, c.Check(ctx, staffID, day, win(t, "16:00", "17:00"), uuid.Nil))
	})

	t.Run("outside availability", func(t *testing.T) {
		err := c.Check(ctx, staffID, day, win(t, "10:00", "11:00"), uuid.Nil)
		var unavailable *availability.UnavailableError
		require.ErrorAs(t, err, &unavailable)
		assert.ErrorIs(t, err, availability.ErrUnavailable)
		assert.Equal(t, staffID, unavailable.StaffID)
	})

	t.Run("overlapping booking", func(t *testing.T) {
		err := c.Check(ctx, staffID, day, win(t, "15:00", "16:00"), uuid.Nil)
		var conflict *availability.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.ErrorIs(t, err, availability.ErrConflictDetected)
		require.Len(t, conflict.Existing, 1)
		assert.Equal(t, held.AppointmentID, conflict.Existing[0].AppointmentID)
		assert.Contains(t, err.Error(), held.AppointmentID.String())
	})

	t.Run("excluding the appointment being moved", func(t *testing.T) {
		require.NoError(t, c.Check(ctx, staffID, day, win(t, "15:00", "16:00"), held.AppointmentID))
		assert.Equal(t, held.AppointmentID, bookings.excluded)
	})

	t.Run("invalid window", func(t *testing.T) {
		err := c.Check(ctx, staffID, day, win(t, "15:00", "15:00"), uuid.Nil)
		assert.ErrorIs(t, err, availability.ErrInvalidWindow)
	})
}

func TestChecker_SourceErrorsPropagate(t *testing.T) {
	boom := errors.New("db down")
	c := availability.NewChecker(fakeSlots{err: boom}, &fakeBookings{})

	err := c.Check(context.Background(), uuid.New(), day, win(t, "10:00", "11:00"), uuid.Nil)
	assert.ErrorIs(t, err, boom)

	_, err = c.NextFreeSlot(context.Background(), uuid.New(), day, time.Hour)
	assert.ErrorIs(t, err, boom)
}

func TestChecker_NextFreeSlot(t *testing.T) {
	c := availability.NewChecker(
		fakeSlots{slots: []availability.Slot{slot(t, day, "09:00", "12:00")}},
		&fakeBookings{bookings: []availability.Booking{booking(t, day, "09:00", "11:30")}},
	)

	w, err := c.NextFreeSlot(context.Background(), uuid.New(), day, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, win(t, "11:30", "12:00"), w)

	_, err = c.NextFreeSlot(context.Background(), uuid.New(), day, time.Hour)
	assert.ErrorIs(t, err, availability.ErrNoFreeSlot)
}

type slotRepo struct {
	fakeSlots
	saved map[uuid.UUID]availability.Slot
}

func newSlotRepo() *slotRepo {
	return &slotRepo{saved: map[uuid.UUID]availability.Slot{}}
}

func (r *slotRepo) CreateSlot(_ context.Context, s *availability.Slot) error {
	s.ID = uuid.New()
	r.saved[s.ID] = *s
	return nil
}

func (r *slotRepo) UpdateSlot(_ context.Context, s *availability.Slot) error {
	r.saved[s.ID] = *s
	return nil
}

func (r *slotRepo) DeleteSlot(_ context.Context, id uuid.UUID) error {
	delete(r.saved, id)
	return nil
}

func (r *slotRepo) GetSlot(_ context.Context, id uuid.UUID) (*availability.Slot, error) {
	s, ok := r.saved[id]
	if !ok {
		return nil, availability.ErrSlotNotFound
	}
	return &s, nil
}

func (r *slotRepo) ListSlots(_ context.Context, staffID uuid.UUID, from, to time.Time) ([]availability.Slot, error) {
	var out []availability.Slot
	for _, s := range r.saved {
		if s.StaffID == staffID && !s.Date.Before(from) && !s.Date.After(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

type invalidation struct {
	date  time.Time
	staff []uuid.UUID
}

type recordingInvalidator struct{ calls []invalidation }

func (r *recordingInvalidator) Invalidate(_ context.Context, date time.Time, staffIDs ...uuid.UUID) {
	r.calls = append(r.calls, invalidation{date: date, staff: staffIDs})
}

func TestService_SlotLifecycleInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	repo := newSlotRepo()
	inv := &recordingInvalidator{}
	svc := availability.NewService(repo, inv, zap.NewNop())
	staffID := uuid.New()

	s := slot(t, day.Add(15*time.Hour), "20:00", "02:00")
	s.StaffID = staffID
	created, err := svc.CreateSlot(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, day, created.Date, "date is truncated to midnight")

	require.Len(t, inv.calls, 2, "overnight slot invalidates both dates")
	assert.Equal(t, day, inv.calls[0].date)
	assert.Equal(t, day.AddDate(0, 0, 1), inv.calls[1].date)
	assert.Equal(t, []uuid.UUID{staffID}, inv.calls[0].staff)

	inv.calls = nil
	update := *created
	update.End = tod(t, "23:00")
	update.StaffID = uuid.New()
	updated, err := svc.UpdateSlot(ctx, update)
	require.NoError(t, err)
	assert.Equal(t, staffID, updated.StaffID, "owner cannot be changed")
	assert.Len(t, inv.calls, 3, "old overnight slot twice, new day slot once")

	listed, err := svc.ListSlots(ctx, staffID, day, day)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	require.NoError(t, svc.DeleteSlot(ctx, created.ID))
	assert.ErrorIs(t, svc.DeleteSlot(ctx, created.ID), availability.ErrSlotNotFound)
}

func TestService_RejectsEmptyWindow(t *testing.T) {
	svc := availability.NewService(newSlotRepo(), nil, zap.NewNop())

	_, err := svc.CreateSlot(context.Background(), slot(t, day, "09:00", "09:00"))
	assert.ErrorIs(t, err, availability.ErrInvalidWindow)
}
