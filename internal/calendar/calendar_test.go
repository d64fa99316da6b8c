package calendar

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayIgnoresTimeOfDay(t *testing.T) {
	morning := time.Date(2026, 3, 14, 1, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)
	assert.True(t, Day(morning).Equal(Day(evening)))
}

func TestTodayUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	now := time.Date(2026, 3, 14, 22, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-15", FormatDate(Today(now, loc)))
	assert.Equal(t, "2026-03-14", FormatDate(Today(now, nil)))
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"09:30", 570, false},
		{"23:59", 1439, false},
		{"9:05", 545, false},
		{"", 0, true},
		{"24:00", 0, true},
		{"noon", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidClock))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatClockWraps(t *testing.T) {
	assert.Equal(t, "09:00", FormatClock(540))
	assert.Equal(t, "00:15", FormatClock(24*60+15))
}

func TestNormalizeClock(t *testing.T) {
	got, err := NormalizeClock("9:05")
	require.NoError(t, err)
	assert.Equal(t, "09:05", got)
}

func TestMonthStartAndAddDays(t *testing.T) {
	day := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-01-01", FormatDate(MonthStart(day)))
	assert.Equal(t, "2026-02-01", FormatDate(AddDays(day, 1)))
	assert.Equal(t, "2025-12-01", FormatDate(MonthStart(day).AddDate(0, -1, 0)))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-02-28")
	require.NoError(t, err)
	assert.Equal(t, time.Saturday, d.Weekday())

	_, err = ParseDate("28/02/2026")
	assert.Error(t, err)
}
