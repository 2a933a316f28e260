package assignment_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/homeservice-dispatch/internal/assignment"
)

var (
	date = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	base = time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC)
)

func at(h int) *time.Time {
	t := base.Add(time.Duration(h) * time.Hour)
	return &t
}

// fakeSource keeps drivers in memory and honours Claim's compare-and-set.
type fakeSource struct {
	mu       sync.Mutex
	drivers  map[uuid.UUID]assignment.Candidate
	claimErr error
	// steal runs once before the first Claim to simulate a concurrent assignment
	steal func(f *fakeSource)
}

func newFakeSource(cs ...assignment.Candidate) *fakeSource {
	f := &fakeSource{drivers: map[uuid.UUID]assignment.Candidate{}}
	for _, c := range cs {
		f.drivers[c.StaffID] = c
	}
	return f
}

func (f *fakeSource) DriverCandidates(_ context.Context, _ time.Time) ([]assignment.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]assignment.Candidate, 0, len(f.drivers))
	for _, c := range f.drivers {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeSource) Claim(_ context.Context, id uuid.UUID, prev *time.Time, at time.Time) (bool, error) {
	if f.steal != nil {
		steal := f.steal
		f.steal = nil
		steal(f)
	}
	if f.claimErr != nil {
		return false, f.claimErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.drivers[id]
	same := (c.LastAvailableAt == nil && prev == nil) ||
		(c.LastAvailableAt != nil && prev != nil && c.LastAvailableAt.Equal(*prev))
	if !same {
		return false, nil
	}
	c.LastAvailableAt = &at
	f.drivers[id] = c
	return true, nil
}

func (f *fakeSource) TouchLastAvailable(_ context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.drivers[id]
	if !ok {
		return errors.New("unknown driver")
	}
	c.LastAvailableAt = &at
	f.drivers[id] = c
	return nil
}

func ticking() func() time.Time {
	t := base.Add(12 * time.Hour)
	return func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
}

func TestQueue_Order(t *testing.T) {
	a := assignment.Candidate{StaffID: uuid.New(), Name: "A", LastAvailableAt: at(2)}
	b := assignment.Candidate{StaffID: uuid.New(), Name: "B"}
	c := assignment.Candidate{StaffID: uuid.New(), Name: "C", LastAvailableAt: at(1)}

	q := assignment.NewQueue(a, b, c)
	require.Equal(t, 3, q.Len())

	head, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, "B", head.Name, "never-assigned driver goes first")

	names := []string{}
	for _, cand := range q.Drain() {
		names = append(names, cand.Name)
	}
	assert.Equal(t, []string{"B", "C", "A"}, names)
	assert.Zero(t, q.Len())

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestQueue_TiesBreakOnStaffID(t *testing.T) {
	lo := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	hi := uuid.MustParse("ffffffff-0000-0000-0000-000000000000")

	got := assignment.Ordered([]assignment.Candidate{
		{StaffID: hi, LastAvailableAt: at(1)},
		{StaffID: lo, LastAvailableAt: at(1)},
	})
	assert.Equal(t, lo, got[0].StaffID)
	assert.Equal(t, hi, got[1].StaffID)
}

func TestEngine_AssignRotatesFIFO(t *testing.T) {
	a := assignment.Candidate{StaffID: uuid.New(), Name: "A", LastAvailableAt: at(2)}
	b := assignment.Candidate{StaffID: uuid.New(), Name: "B"}
	c := assignment.Candidate{StaffID: uuid.New(), Name: "C", LastAvailableAt: at(1)}
	src := newFakeSource(a, b, c)
	e := assignment.NewEngine(src, zap.NewNop(), nil).WithClock(ticking())

	var got []string
	for i := 0; i < 4; i++ {
		cand, err := e.Assign(context.Background(), date)
		require.NoError(t, err)
		got = append(got, cand.Name)
	}
	assert.Equal(t, []string{"B", "C", "A", "B"}, got)
}

func TestEngine_AssignSkipsBusyAndExcluded(t *testing.T) {
	a := assignment.Candidate{StaffID: uuid.New(), Name: "A", LastAvailableAt: at(1)}
	b := assignment.Candidate{StaffID: uuid.New(), Name: "B", Busy: true}
	c := assignment.Candidate{StaffID: uuid.New(), Name: "C", LastAvailableAt: at(2)}
	e := assignment.NewEngine(newFakeSource(a, b, c), zap.NewNop(), nil).WithClock(ticking())

	got, err := e.Assign(context.Background(), date, a.StaffID)
	require.NoError(t, err)
	assert.Equal(t, "C", got.Name)
	require.NotNil(t, got.LastAvailableAt)
	assert.True(t, got.LastAvailableAt.After(*at(2)))
}

func TestEngine_NoCandidate(t *testing.T) {
	busy := assignment.Candidate{StaffID: uuid.New(), Name: "busy", Busy: true}
	e := assignment.NewEngine(newFakeSource(busy), zap.NewNop(), nil)

	_, err := e.Assign(context.Background(), date)
	var none *assignment.NoCandidateError
	require.ErrorAs(t, err, &none)
	assert.ErrorIs(t, err, assignment.ErrNoCandidate)
	require.Len(t, none.Busy, 1)
	assert.Equal(t, busy.StaffID, none.Busy[0].StaffID)

	_, err = assignment.NewEngine(newFakeSource(), zap.NewNop(), nil).Assign(context.Background(), date)
	require.ErrorAs(t, err, &none)
	assert.Empty(t, none.Busy)
	assert.Contains(t, err.Error(), "no drivers hold availability")
}

func TestEngine_ClaimLostToConcurrentAssignment(t *testing.T) {
	first := assignment.Candidate{StaffID: uuid.New(), Name: "first"}
	second := assignment.Candidate{StaffID: uuid.New(), Name: "second", LastAvailableAt: at(1)}
	src := newFakeSource(first, second)
	src.steal = func(f *fakeSource) {
		c := f.drivers[first.StaffID]
		c.LastAvailableAt = at(5)
		f.drivers[first.StaffID] = c
	}
	e := assignment.NewEngine(src, zap.NewNop(), nil).WithClock(ticking())

	got, err := e.Assign(context.Background(), date)
	require.NoError(t, err)
	assert.Equal(t, "second", got.Name)
}

func TestEngine_ClaimErrorIsReturned(t *testing.T) {
	src := newFakeSource(assignment.Candidate{StaffID: uuid.New()})
	src.claimErr = errors.New("db down")

	_, err := assignment.NewEngine(src, zap.NewNop(), nil).Assign(context.Background(), date)
	assert.ErrorIs(t, err, src.claimErr)
}

func TestEngine_AssignManual(t *testing.T) {
	busy := assignment.Candidate{StaffID: uuid.New(), Name: "busy", Busy: true, LastAvailableAt: at(1)}
	src := newFakeSource(busy)
	e := assignment.NewEngine(src, zap.NewNop(), nil).WithClock(ticking())

	got, err := e.AssignManual(context.Background(), date, busy.StaffID)
	require.NoError(t, err)
	assert.Equal(t, busy.StaffID, got.StaffID)
	assert.True(t, src.drivers[busy.StaffID].LastAvailableAt.After(*at(1)), "manual assignment also rotates the driver")

	_, err = e.AssignManual(context.Background(), date, uuid.New())
	assert.ErrorIs(t, err, assignment.ErrNotInPool)
}

func TestEngine_Release(t *testing.T) {
	d := assignment.Candidate{StaffID: uuid.New()}
	src := newFakeSource(d)
	e := assignment.NewEngine(src, zap.NewNop(), nil).WithClock(ticking())

	require.NoError(t, e.Release(context.Background(), d.StaffID))
	assert.NotNil(t, src.drivers[d.StaffID].LastAvailableAt)
	assert.Error(t, e.Release(context.Background(), uuid.New()))
}
