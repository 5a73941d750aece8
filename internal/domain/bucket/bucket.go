// Package bucket computes UTC summary bucket boundaries.
package bucket

import (
	"fmt"
	"strings"
	"time"

	"github.com/target/pulse/internal/domain/model"
)

// Calendar truncates timestamps to bucket starts. All arithmetic is done in UTC.
type Calendar struct {
	WeekStart time.Weekday
}

// NewCalendar returns a calendar whose weeks begin on weekStart.
func NewCalendar(weekStart time.Weekday) Calendar {
	return Calendar{WeekStart: weekStart}
}

// Truncate returns the start of the bucket of type p that contains t.
func (c Calendar) Truncate(p model.PeriodType, t time.Time) time.Time {
	t = t.UTC()
	switch p {
	case model.PeriodHour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	case model.PeriodDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case model.PeriodWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) - int(c.WeekStart) + 7) % 7
		return day.AddDate(0, 0, -offset)
	case model.PeriodMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return t
}

// Next returns the start of the bucket following the one that starts at start.
func (c Calendar) Next(p model.PeriodType, start time.Time) time.Time {
	start = c.Truncate(p, start)
	switch p {
	case model.PeriodHour:
		return start.Add(time.Hour)
	case model.PeriodDay:
		return start.AddDate(0, 0, 1)
	case model.PeriodWeek:
		return start.AddDate(0, 0, 7)
	case model.PeriodMonth:
		return start.AddDate(0, 1, 0)
	}
	return start
}

// Widen expands [start, end) so it covers every bucket of type p it touches.
func (c Calendar) Widen(p model.PeriodType, start, end time.Time) (time.Time, time.Time) {
	from := c.Truncate(p, start)
	last := c.Truncate(p, end.Add(-time.Nanosecond))
	return from, c.Next(p, last)
}

// Starts lists the bucket starts of type p within the widened [start, end).
func (c Calendar) Starts(p model.PeriodType, start, end time.Time) []time.Time {
	from, to := c.Widen(p, start, end)
	var out []time.Time
	for b := from; b.Before(to); b = c.Next(p, b) {
		out = append(out, b)
	}
	return out
}

// ParseWeekday parses an English weekday name such as "monday" or "Sun".
func ParseWeekday(s string) (time.Weekday, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if v == name || (len(v) >= 3 && strings.HasPrefix(name, v)) {
			return d, nil
		}
	}
	return time.Monday, fmt.Errorf("invalid weekday: %q", s)
}
