package dataset

import (
	"sort"

	"github.com/riverweft/patrolcast/internal/domain"
)

// PeriodAverages holds normalized daily averages for one period of day.
// Weekday totals divide by the five weekdays and weekend totals by two, so a
// busy Saturday night reads as busy instead of being diluted by the 5:2 day
// imbalance.
type PeriodAverages struct {
	Period        string  `json:"period"`
	WeekdayPerDay float64 `json:"weekday_per_day"`
	WeekendPerDay float64 `json:"weekend_per_day"`
}

// CategoryCount is one slice of the batch's category distribution.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// Profile is a descriptive summary of a batch for run reports. It never feeds
// the model; it exists so a flat or skewed batch is visible before anyone
// trusts the metrics computed from it.
type Profile struct {
	Incidents  int              `json:"incidents"`
	Periods    []PeriodAverages `json:"periods"`
	Categories []CategoryCount  `json:"categories"`
}

// Profile summarizes batch composition: normalized per-period daily averages
// split by weekday/weekend, and the category distribution sorted by volume.
func (b *Builder) Profile(incidents []domain.Incident) Profile {
	var weekday, weekend [domain.NumPeriods]int
	categories := make(map[string]int)

	for _, inc := range incidents {
		w := b.bucketer.Window(inc.Timestamp)
		if w.Day.Weekend() {
			weekend[w.Period]++
		} else {
			weekday[w.Period]++
		}

		cat := inc.Category
		if cat == "" {
			cat = "Uncategorized"
		}
		categories[cat]++
	}

	profile := Profile{Incidents: len(incidents)}
	for p := domain.Morning; p <= domain.LateNight; p++ {
		profile.Periods = append(profile.Periods, PeriodAverages{
			Period:        p.String(),
			WeekdayPerDay: float64(weekday[p]) / 5,
			WeekendPerDay: float64(weekend[p]) / 2,
		})
	}

	for cat, n := range categories {
		profile.Categories = append(profile.Categories, CategoryCount{Category: cat, Count: n})
	}
	sort.Slice(profile.Categories, func(i, j int) bool {
		if profile.Categories[i].Count != profile.Categories[j].Count {
			return profile.Categories[i].Count > profile.Categories[j].Count
		}
		return profile.Categories[i].Category < profile.Categories[j].Category
	})

	return profile
}
