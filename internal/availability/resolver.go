package availability

import (
	"sort"
	"time"
)

// Covers reports whether any available slot contains the requested window on
// date. Three disjoint cases are checked:
//
//	a) a same-day slot that does not cross midnight and contains the window
//	b) a same-day overnight slot that has opened by the time the window starts
//	c) yesterday's overnight slot whose tail still covers the window
func Covers(slots []Slot, date time.Time, w Window) bool {
	if !w.Valid() {
		return false
	}
	prev := date.AddDate(0, 0, -1)
	for _, s := range slots {
		if !s.IsAvailable {
			continue
		}
		switch {
		case SameDate(s.Date, date) && !s.CrossesMidnight():
			if !w.CrossesMidnight() && s.Start <= w.Start && s.End >= w.End {
				return true
			}
		case SameDate(s.Date, date) && s.CrossesMidnight():
			if s.Start <= w.Start && (!w.CrossesMidnight() || w.End <= s.End) {
				return true
			}
		case SameDate(s.Date, prev) && s.CrossesMidnight():
			if !w.CrossesMidnight() && w.End <= s.End {
				return true
			}
		}
	}
	return false
}

// Conflicts returns the bookings whose window overlaps w on date. Bookings
// dated the previous day that run past midnight are projected onto date.
func Conflicts(bookings []Booking, date time.Time, w Window) []Booking {
	requested := w.span()
	var out []Booking
	for _, b := range bookings {
		iv, ok := project(b, date)
		if !ok {
			continue
		}
		if iv.overlaps(requested) {
			out = append(out, b)
		}
	}
	return out
}

// NextFree sweeps the staff member's bookings in time order inside each slot
// that gives availability on date and returns the earliest gap of at least d.
// The gap has to open on date itself; a window found after midnight belongs
// to the next date and is not reported here.
func NextFree(slots []Slot, bookings []Booking, date time.Time, d time.Duration) (Window, bool) {
	need := int(d / time.Minute)
	if need <= 0 || need >= MinutesPerDay {
		return Window{}, false
	}

	busy := make([]interval, 0, len(bookings))
	for _, b := range bookings {
		if iv, ok := project(b, date); ok {
			busy = append(busy, iv)
		}
	}
	sort.Slice(busy, func(i, j int) bool { return busy[i].start < busy[j].start })

	best := -1
	for _, free := range availableIntervals(slots, date) {
		if start, ok := firstGap(free, busy, need); ok && (best < 0 || start < best) {
			best = start
		}
	}
	if best < 0 {
		return Window{}, false
	}
	return toWindow(best, need), true
}

// firstGap returns the start of the first gap of need minutes inside free.
// Windows must be contained in one slot, so slots are searched one at a time.
func firstGap(free interval, busy []interval, need int) (int, bool) {
	cursor := free.start
	for _, b := range busy {
		if cursor >= MinutesPerDay {
			return 0, false
		}
		if b.end <= cursor {
			continue
		}
		if b.start >= free.end {
			break
		}
		if b.start-cursor >= need {
			return cursor, true
		}
		cursor = b.end
	}
	if cursor < MinutesPerDay && free.end-cursor >= need {
		return cursor, true
	}
	return 0, false
}

// availableIntervals places every slot that gives availability on date onto
// the minute axis of date. Overnight slots may extend past 24:00.
func availableIntervals(slots []Slot, date time.Time) []interval {
	prev := date.AddDate(0, 0, -1)
	var ivs []interval
	for _, s := range slots {
		if !s.IsAvailable {
			continue
		}
		switch {
		case SameDate(s.Date, date):
			ivs = append(ivs, s.Window().span())
		case SameDate(s.Date, prev) && s.CrossesMidnight():
			ivs = append(ivs, interval{start: 0, end: int(s.End)})
		}
	}
	return ivs
}

func project(b Booking, date time.Time) (interval, bool) {
	iv := b.Window.span()
	switch {
	case SameDate(b.Date, date):
		return iv, true
	case SameDate(b.Date, date.AddDate(0, 0, -1)) && b.Window.CrossesMidnight():
		return iv.shift(-MinutesPerDay), true
	case SameDate(b.Date, date.AddDate(0, 0, 1)):
		return iv.shift(MinutesPerDay), true
	}
	return interval{}, false
}

func toWindow(start, length int) Window {
	return Window{
		Start: TimeOfDay(start % MinutesPerDay),
		End:   TimeOfDay((start + length) % MinutesPerDay),
	}
}
