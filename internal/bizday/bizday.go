// Package bizday normalizes timestamps to the hospital's local business day.
// All per-day grouping (ticket numbering, queue partitioning) keys off the
// canonical day start produced here, and queries always use the half-open
// [start, end) range rather than date equality.
package bizday

import "time"

// Clock maps instants to business-day windows for a fixed UTC offset.
type Clock struct {
	loc *time.Location
}

// NewClock creates a Clock for the given fixed offset in minutes east of UTC.
func NewClock(offsetMinutes int) Clock {
	return Clock{loc: time.FixedZone("hospital-local", offsetMinutes*60)}
}

// Start returns local midnight of the business day containing t.
func (c Clock) Start(t time.Time) time.Time {
	local := t.In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
}

// Range returns the half-open [start, end) window of the business day
// containing t, where end is start plus 24 hours.
func (c Clock) Range(t time.Time) (time.Time, time.Time) {
	start := c.Start(t)
	return start, start.Add(24 * time.Hour)
}

// SameDay reports whether a and b fall into the same business day.
func (c Clock) SameDay(a, b time.Time) bool {
	return c.Start(a).Equal(c.Start(b))
}
