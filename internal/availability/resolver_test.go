package availability_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/homeservice-dispatch/internal/availability"
)

var day = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func tod(t *testing.T, s string) availability.TimeOfDay {
	t.Helper()
	v, err := availability.ParseTimeOfDay(s)
	require.NoError(t, err)
	return v
}

func win(t *testing.T, start, end string) availability.Window {
	t.Helper()
	return availability.Window{Start: tod(t, start), End: tod(t, end)}
}

func slot(t *testing.T, date time.Time, start, end string) availability.Slot {
	t.Helper()
	return availability.Slot{
		ID:          uuid.New(),
		Date:        date,
		Start:       tod(t, start),
		End:         tod(t, end),
		IsAvailable: true,
	}
}

func booking(t *testing.T, date time.Time, start, end string) availability.Booking {
	t.Helper()
	return availability.Booking{
		AppointmentID: uuid.New(),
		Date:          date,
		Window:        win(t, start, end),
		Status:        "pending",
	}
}

func TestCovers_OvernightSlot(t *testing.T) {
	next := day.AddDate(0, 0, 1)
	slots := []availability.Slot{slot(t, day, "13:00", "01:00")}

	cases := []struct {
		name  string
		date  time.Time
		w     availability.Window
		cover bool
	}{
		{"afternoon same day", day, win(t, "14:00", "15:00"), true},
		{"opening minute", day, win(t, "13:00", "14:00"), true},
		{"late evening into next day", day, win(t, "23:00", "00:30"), true},
		{"ends exactly at slot end", day, win(t, "23:30", "01:00"), true},
		{"starts before slot opens", day, win(t, "12:00", "14:00"), false},
		{"runs past slot end", day, win(t, "23:30", "01:30"), false},
		{"tail on next date", next, win(t, "00:00", "00:45"), true},
		{"tail overrun on next date", next, win(t, "00:30", "01:30"), false},
		{"next date afternoon", next, win(t, "14:00", "15:00"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.cover, availability.Covers(slots, tc.date, tc.w))
		})
	}
}

func TestCovers_DaySlot(t *testing.T) {
	slots := []availability.Slot{slot(t, day, "09:00", "18:00")}

	assert.True(t, availability.Covers(slots, day, win(t, "09:00", "18:00")))
	assert.True(t, availability.Covers(slots, day, win(t, "10:00", "11:30")))
	assert.False(t, availability.Covers(slots, day, win(t, "17:00", "19:00")))
	assert.False(t, availability.Covers(slots, day, win(t, "17:00", "01:00")), "a day slot never covers an overnight window")
	assert.False(t, availability.Covers(slots, day.AddDate(0, 0, 1), win(t, "10:00", "11:00")))
}

func TestCovers_IgnoresUnavailableAndInvalid(t *testing.T) {
	off := slot(t, day, "09:00", "18:00")
	off.IsAvailable = false

	assert.False(t, availability.Covers([]availability.Slot{off}, day, win(t, "10:00", "11:00")))

	on := slot(t, day, "09:00", "18:00")
	assert.False(t, availability.Covers([]availability.Slot{on}, day, win(t, "10:00", "10:00")), "empty window")
}

func TestConflicts_HalfOpenWindows(t *testing.T) {
	existing := []availability.Booking{booking(t, day, "10:00", "11:00")}

	assert.Empty(t, availability.Conflicts(existing, day, win(t, "11:00", "12:00")), "touching at the end")
	assert.Empty(t, availability.Conflicts(existing, day, win(t, "09:00", "10:00")), "touching at the start")
	assert.Len(t, availability.Conflicts(existing, day, win(t, "10:59", "12:00")), 1)
	assert.Len(t, availability.Conflicts(existing, day, win(t, "09:00", "12:00")), 1, "enclosing")
	assert.Len(t, availability.Conflicts(existing, day, win(t, "10:15", "10:45")), 1, "enclosed")
}

func TestConflicts_AcrossMidnight(t *testing.T) {
	next := day.AddDate(0, 0, 1)

	t.Run("previous day booking spills into the date", func(t *testing.T) {
		existing := []availability.Booking{booking(t, day, "23:00", "01:00")}

		got := availability.Conflicts(existing, next, win(t, "00:30", "01:30"))
		require.Len(t, got, 1)
		assert.Equal(t, existing[0].AppointmentID, got[0].AppointmentID)

		assert.Empty(t, availability.Conflicts(existing, next, win(t, "01:00", "02:00")))
	})

	t.Run("overnight request reaches next day booking", func(t *testing.T) {
		existing := []availability.Booking{booking(t, next, "00:30", "01:30")}

		assert.Len(t, availability.Conflicts(existing, day, win(t, "23:00", "01:00")), 1)
		assert.Empty(t, availability.Conflicts(existing, day, win(t, "23:00", "00:30")))
	})

	t.Run("day booking of previous date does not spill", func(t *testing.T) {
		existing := []availability.Booking{booking(t, day, "10:00", "11:00")}

		assert.Empty(t, availability.Conflicts(existing, next, win(t, "10:00", "11:00")))
	})
}

func TestNextFree(t *testing.T) {
	slots := []availability.Slot{slot(t, day, "09:00", "18:00")}
	bookings := []availability.Booking{
		booking(t, day, "09:00", "10:00"),
		booking(t, day, "10:30", "12:00"),
	}

	w, ok := availability.NextFree(slots, bookings, day, 30*time.Minute)
	require.True(t, ok)
	assert.Equal(t, win(t, "10:00", "10:30"), w)

	w, ok = availability.NextFree(slots, bookings, day, time.Hour)
	require.True(t, ok)
	assert.Equal(t, win(t, "12:00", "13:00"), w)

	_, ok = availability.NextFree(slots, bookings, day, 7*time.Hour)
	assert.False(t, ok)

	_, ok = availability.NextFree(slots, bookings, day, 0)
	assert.False(t, ok)
}

func TestNextFree_OvernightTail(t *testing.T) {
	next := day.AddDate(0, 0, 1)
	slots := []availability.Slot{slot(t, day, "20:00", "02:00")}
	bookings := []availability.Booking{booking(t, day, "23:30", "00:30")}

	w, ok := availability.NextFree(slots, bookings, next, time.Hour)
	require.True(t, ok)
	assert.Equal(t, win(t, "00:30", "01:30"), w)

	w, ok = availability.NextFree(slots, bookings, day, 3*time.Hour)
	require.True(t, ok)
	assert.Equal(t, win(t, "20:00", "23:00"), w)
}

func TestNextFree_StaysOnRequestedDate(t *testing.T) {
	slots := []availability.Slot{slot(t, day, "22:00", "03:00")}

	t.Run("gap after midnight belongs to the next date", func(t *testing.T) {
		bookings := []availability.Booking{booking(t, day, "22:00", "00:30")}

		_, ok := availability.NextFree(slots, bookings, day, time.Hour)
		assert.False(t, ok)

		w, ok := availability.NextFree(slots, bookings, day.AddDate(0, 0, 1), time.Hour)
		require.True(t, ok)
		assert.Equal(t, win(t, "00:30", "01:30"), w)
		assert.True(t, availability.Covers(slots, day.AddDate(0, 0, 1), w))
	})

	t.Run("gap opening before midnight may run past it", func(t *testing.T) {
		bookings := []availability.Booking{booking(t, day, "22:00", "23:30")}

		w, ok := availability.NextFree(slots, bookings, day, time.Hour)
		require.True(t, ok)
		assert.Equal(t, win(t, "23:30", "00:30"), w)
		assert.True(t, availability.Covers(slots, day, w))
	})
}

func TestNextFree_WindowFitsOneSlot(t *testing.T) {
	slots := []availability.Slot{
		slot(t, day, "09:00", "12:00"),
		slot(t, day, "12:00", "15:00"),
	}
	bookings := []availability.Booking{booking(t, day, "09:00", "11:00")}

	w, ok := availability.NextFree(slots, bookings, day, 2*time.Hour)
	require.True(t, ok)
	assert.Equal(t, win(t, "12:00", "14:00"), w, "11:00-13:00 straddles two slots")
	assert.True(t, availability.Covers(slots, day, w))
}

func TestWindow(t *testing.T) {
	w := win(t, "23:00", "01:00")
	assert.True(t, w.CrossesMidnight())
	assert.Equal(t, 2*time.Hour, w.Duration())
	assert.Equal(t, "23:00-01:00", w.String())

	assert.False(t, win(t, "09:00", "10:30").CrossesMidnight())
	assert.Equal(t, 90*time.Minute, win(t, "09:00", "10:30").Duration())
}

func TestTimeOfDay_JSON(t *testing.T) {
	var v availability.TimeOfDay
	require.NoError(t, v.UnmarshalJSON([]byte(`"13:45:10"`)))
	assert.Equal(t, availability.NewTimeOfDay(13, 45), v)

	b, err := v.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `"13:45"`, string(b))

	assert.Error(t, v.UnmarshalJSON([]byte(`"25:00"`)))
	_, err = availability.ParseTimeOfDay("noon")
	assert.ErrorIs(t, err, availability.ErrInvalidTimeOfDay)
}
