package model

import "time"

// Window is a half-open time interval [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether w and o share any instant.
func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

// Contains reports whether o lies entirely inside w.
func (w Window) Contains(o Window) bool {
	return !o.Start.Before(w.Start) && !o.End.After(w.End)
}

// Pad widens w by d on both sides.
func (w Window) Pad(d time.Duration) Window {
	return Window{Start: w.Start.Add(-d), End: w.End.Add(d)}
}

// WeeklySlot is a recurring availability window on one weekday, expressed
// in minutes after midnight in the game's local time.
type WeeklySlot struct {
	Day         time.Weekday `json:"day"`
	StartMinute int          `json:"start_minute"`
	EndMinute   int          `json:"end_minute"`
}

// Contains reports whether o falls inside this slot. Windows spanning
// midnight never match a weekly slot.
func (s WeeklySlot) Contains(o Window) bool {
	if o.Start.Weekday() != s.Day {
		return false
	}
	y1, m1, d1 := o.Start.Date()
	y2, m2, d2 := o.End.Date()
	sameDay := y1 == y2 && m1 == m2 && d1 == d2
	endMinute := o.End.Hour()*60 + o.End.Minute()
	if !sameDay {
		// [22:00, 00:00) ends exactly at the next midnight.
		next := time.Date(y1, m1, d1+1, 0, 0, 0, 0, o.Start.Location())
		if !o.End.Equal(next) {
			return false
		}
		endMinute = 24 * 60
	}
	startMinute := o.Start.Hour()*60 + o.Start.Minute()
	return startMinute >= s.StartMinute && endMinute <= s.EndMinute
}

// Availability is a referee's calendar. An empty calendar (no explicit
// windows and no weekly slots) means the referee is always available
// outside blackouts.
type Availability struct {
	Windows   []Window     `json:"windows,omitempty"`
	Weekly    []WeeklySlot `json:"weekly,omitempty"`
	Blackouts []Window     `json:"blackouts,omitempty"`
}

// Covers reports whether the calendar admits the whole interval w.
func (a Availability) Covers(w Window) bool {
	for _, b := range a.Blackouts {
		if b.Overlaps(w) {
			return false
		}
	}
	if len(a.Windows) == 0 && len(a.Weekly) == 0 {
		return true
	}
	for _, x := range a.Windows {
		if x.Contains(w) {
			return true
		}
	}
	for _, s := range a.Weekly {
		if s.Contains(w) {
			return true
		}
	}
	return false
}
