package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeekdayFromTime(t *testing.T) {
	tests := []struct {
		name     string
		date     time.Time
		expected Weekday
	}{
		{"monday", time.Date(2023, 7, 10, 12, 0, 0, 0, time.UTC), Monday},
		{"wednesday", time.Date(2023, 7, 12, 0, 0, 0, 0, time.UTC), Wednesday},
		{"saturday", time.Date(2023, 7, 15, 23, 59, 59, 0, time.UTC), Saturday},
		{"sunday maps to six", time.Date(2023, 7, 16, 6, 0, 0, 0, time.UTC), Sunday},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, WeekdayFromTime(tt.date))
		})
	}
}

func TestParseWeekday(t *testing.T) {
	t.Run("exact names resolve", func(t *testing.T) {
		for i, name := range []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"} {
			d, err := ParseWeekday(name)
			require.NoError(t, err)
			assert.Equal(t, Weekday(i), d)
		}
	})

	t.Run("case insensitive", func(t *testing.T) {
		d, err := ParseWeekday("Saturday")
		require.NoError(t, err)
		assert.Equal(t, Saturday, d)

		d, err = ParseWeekday("SUNDAY")
		require.NoError(t, err)
		assert.Equal(t, Sunday, d)
	})

	t.Run("no fuzzy matching", func(t *testing.T) {
		for _, bad := range []string{"satur", "sat", "saturdays", "weekend", ""} {
			_, err := ParseWeekday(bad)
			require.Error(t, err, "input %q", bad)
			assert.ErrorIs(t, err, ErrUnknownTimeWindow)
		}
	})
}

func TestParsePeriod(t *testing.T) {
	t.Run("separator and case variants resolve", func(t *testing.T) {
		for _, s := range []string{"late_night", "Late_Night", "late night", "LATE-NIGHT"} {
			p, err := ParsePeriod(s)
			require.NoError(t, err, "input %q", s)
			assert.Equal(t, LateNight, p)
		}
	})

	t.Run("all periods resolve", func(t *testing.T) {
		for i, name := range []string{"morning", "afternoon", "evening", "late_night"} {
			p, err := ParsePeriod(name)
			require.NoError(t, err)
			assert.Equal(t, Period(i), p)
		}
	})

	t.Run("no fuzzy matching", func(t *testing.T) {
		for _, bad := range []string{"night", "latenight", "morn", "Late", ""} {
			_, err := ParsePeriod(bad)
			require.Error(t, err, "input %q", bad)
			assert.ErrorIs(t, err, ErrUnknownTimeWindow)
		}
	})
}

func TestAllWindows(t *testing.T) {
	windows := AllWindows()
	require.Len(t, windows, NumWindows)

	seen := make(map[int]bool, NumWindows)
	for i, w := range windows {
		assert.Equal(t, i, w.Ordinal(), "windows must come out in ordinal order")
		assert.False(t, seen[w.Ordinal()], "duplicate ordinal %d", w.Ordinal())
		seen[w.Ordinal()] = true
	}
}

func TestWeekend(t *testing.T) {
	assert.False(t, Monday.Weekend())
	assert.False(t, Friday.Weekend())
	assert.True(t, Saturday.Weekend())
	assert.True(t, Sunday.Weekend())
}

func TestWindowString(t *testing.T) {
	w := TimeWindow{Day: Saturday, Period: LateNight}
	assert.Equal(t, "saturday late_night", w.String())
}
