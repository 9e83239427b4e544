// Package temporal buckets timestamps into recurring weekly time windows and
// encodes windows into model feature vectors. All bucketing happens in UTC
// with closed-open boundaries, so every instant of the week belongs to exactly
// one window and no window overlaps another.
package temporal

import (
	"fmt"
	"time"

	"github.com/riverweft/patrolcast/internal/domain"
)

// Bucketer assigns timestamps to windows using configured period start hours.
type Bucketer struct {
	starts [domain.NumPeriods]int
}

// NewBucketer builds a Bucketer from the engine configuration.
func NewBucketer(cfg domain.Config) (*Bucketer, error) {
	for i := 0; i < domain.NumPeriods; i++ {
		if cfg.PeriodStarts[i] < 0 || cfg.PeriodStarts[i] > 23 {
			return nil, fmt.Errorf("temporal: period start %d outside 0..23", cfg.PeriodStarts[i])
		}
		if i > 0 && cfg.PeriodStarts[i] <= cfg.PeriodStarts[i-1] {
			return nil, fmt.Errorf("temporal: period starts %v not strictly increasing", cfg.PeriodStarts)
		}
	}
	return &Bucketer{starts: cfg.PeriodStarts}, nil
}

// Period maps a timestamp's hour to its period. Boundaries are closed-open:
// a record at 21:59:59 is Evening, 22:00:00 is LateNight. The last period
// wraps past midnight into the first period's start.
func (b *Bucketer) Period(t time.Time) domain.Period {
	h := t.UTC().Hour()
	switch {
	case h < b.starts[0] || h >= b.starts[3]:
		return domain.LateNight
	case h >= b.starts[2]:
		return domain.Evening
	case h >= b.starts[1]:
		return domain.Afternoon
	default:
		return domain.Morning
	}
}

// Window maps a timestamp to its weekly window. The day comes from the
// calendar date, so a Tuesday 01:30 record is (tuesday, late_night), not
// Monday's: late-night demand is attributed to the date it was dispatched on.
func (b *Bucketer) Window(t time.Time) domain.TimeWindow {
	u := t.UTC()
	return domain.TimeWindow{
		Day:    domain.WeekdayFromTime(u),
		Period: b.Period(u),
	}
}
