package domain

import (
	"fmt"
	"strings"
	"time"
)

// Weekday numbers days Monday=0 .. Sunday=6, matching the dataset convention
// the demand exports were built with. Note this differs from time.Weekday,
// which starts at Sunday; convert with [WeekdayFromTime].
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayNames = [7]string{
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
}

func (d Weekday) String() string {
	if d < Monday || d > Sunday {
		return fmt.Sprintf("weekday(%d)", int(d))
	}
	return weekdayNames[d]
}

// Weekend reports whether the day is Saturday or Sunday.
func (d Weekday) Weekend() bool {
	return d == Saturday || d == Sunday
}

// WeekdayFromTime converts Go's Sunday=0 convention to Monday=0.
func WeekdayFromTime(t time.Time) Weekday {
	return Weekday((int(t.Weekday()) + 6) % 7)
}

// ParseWeekday resolves a day label. Matching is strict: exact day names only,
// case-insensitive. Unknown labels are the caller's error, wrapped as
// [ErrUnknownTimeWindow]; there is no fuzzy or prefix matching.
func ParseWeekday(s string) (Weekday, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	for i, name := range weekdayNames {
		if norm == name {
			return Weekday(i), nil
		}
	}
	return 0, fmt.Errorf("%w: day %q", ErrUnknownTimeWindow, s)
}

// Period is a span of hours within a day. The four periods partition the
// 24-hour day using closed-open boundaries; LateNight wraps midnight.
type Period int

const (
	Morning Period = iota
	Afternoon
	Evening
	LateNight

	// NumPeriods is the size of the period enum.
	NumPeriods = 4
)

var periodNames = [NumPeriods]string{"morning", "afternoon", "evening", "late_night"}

func (p Period) String() string {
	if p < Morning || p > LateNight {
		return fmt.Sprintf("period(%d)", int(p))
	}
	return periodNames[p]
}

// ParsePeriod resolves a period label. Matching is strict after normalizing
// case and separator ("Late Night", "late-night", "Late_Night" all resolve);
// anything else is the caller's error, wrapped as [ErrUnknownTimeWindow].
func ParsePeriod(s string) (Period, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, " ", "_")
	norm = strings.ReplaceAll(norm, "-", "_")
	for i, name := range periodNames {
		if norm == name {
			return Period(i), nil
		}
	}
	return 0, fmt.Errorf("%w: period %q", ErrUnknownTimeWindow, s)
}

// TimeWindow is a recurring weekly slot: a day-of-week crossed with a period.
// The 7x4 window set partitions the week exactly.
type TimeWindow struct {
	Day    Weekday `json:"day"`
	Period Period  `json:"period"`
}

func (w TimeWindow) String() string {
	return w.Day.String() + " " + w.Period.String()
}

// Ordinal maps a window to 0..27 (NumWindows-1), ordered day-major. Used as
// the stable secondary sort key in dataset enumeration.
func (w TimeWindow) Ordinal() int {
	return int(w.Day)*NumPeriods + int(w.Period)
}

// NumWindows is the number of distinct weekly windows.
const NumWindows = 7 * NumPeriods

// AllWindows enumerates the full weekly window set in ordinal order.
func AllWindows() []TimeWindow {
	windows := make([]TimeWindow, 0, NumWindows)
	for d := Monday; d <= Sunday; d++ {
		for p := Morning; p <= LateNight; p++ {
			windows = append(windows, TimeWindow{Day: d, Period: p})
		}
	}
	return windows
}
