package bucket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/pulse/internal/domain/model"
)

func TestCalendar_Truncate(t *testing.T) {
	// Wednesday 2025-03-12 14:35:07 in UTC+2, which is 12:35:07 UTC.
	loc := time.FixedZone("EET", 2*60*60)
	ts := time.Date(2025, 3, 12, 14, 35, 7, 0, loc)

	monday := NewCalendar(time.Monday)
	sunday := NewCalendar(time.Sunday)

	tests := []struct {
		name string
		cal  Calendar
		p    model.PeriodType
		want time.Time
	}{
		{"hour", monday, model.PeriodHour, time.Date(2025, 3, 12, 12, 0, 0, 0, time.UTC)},
		{"day", monday, model.PeriodDay, time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)},
		{"week monday", monday, model.PeriodWeek, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)},
		{"week sunday", sunday, model.PeriodWeek, time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)},
		{"month", monday, model.PeriodMonth, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cal.Truncate(tt.p, ts)
			assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestCalendar_TruncateOnWeekStart(t *testing.T) {
	cal := NewCalendar(time.Monday)
	monday := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, monday, cal.Truncate(model.PeriodWeek, monday))
	assert.Equal(t, monday, cal.Truncate(model.PeriodWeek, monday.Add(6*24*time.Hour+23*time.Hour)))
}

func TestCalendar_Next(t *testing.T) {
	cal := NewCalendar(time.Monday)
	jan31 := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), cal.Next(model.PeriodMonth, jan31))
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), cal.Next(model.PeriodDay, jan31))
	assert.Equal(t, time.Date(2025, 1, 31, 1, 0, 0, 0, time.UTC), cal.Next(model.PeriodHour, jan31))
	assert.Equal(t, time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC), cal.Next(model.PeriodWeek, jan31))
}

func TestCalendar_Widen(t *testing.T) {
	cal := NewCalendar(time.Monday)
	start := time.Date(2025, 3, 12, 10, 30, 0, 0, time.UTC)
	end := time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC)

	from, to := cal.Widen(model.PeriodDay, start, end)
	assert.Equal(t, time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, end, to, "an end on a bucket edge is not widened")

	starts := cal.Starts(model.PeriodHour, start, start.Add(90*time.Minute))
	require.Len(t, starts, 2)
	assert.Equal(t, time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC), starts[0])
	assert.Equal(t, time.Date(2025, 3, 12, 11, 0, 0, 0, time.UTC), starts[1])
}

func TestParseWeekday(t *testing.T) {
	d, err := ParseWeekday("Sunday")
	require.NoError(t, err)
	assert.Equal(t, time.Sunday, d)

	d, err = ParseWeekday("mon")
	require.NoError(t, err)
	assert.Equal(t, time.Monday, d)

	_, err = ParseWeekday("someday")
	assert.Error(t, err)
	_, err = ParseWeekday("")
	assert.Error(t, err)
}
