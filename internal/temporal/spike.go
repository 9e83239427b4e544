package temporal

import (
	"time"

	"github.com/riverweft/patrolcast/internal/domain"
)

// SpikeReport summarizes midnight-artifact screening for one batch. CAD
// exports zero-fill missing call times, which shows up as a pile of records at
// exactly 00:00:00 that would otherwise inflate late-night demand.
type SpikeReport struct {
	Flagged       bool    `json:"flagged"`
	MidnightCount int     `json:"midnight_count"`
	TopOfHourMean float64 `json:"top_of_hour_mean"`
	Factor        float64 `json:"factor"`
	Excluded      int     `json:"excluded"`
}

// IsMidnightExact reports whether the timestamp is exactly 00:00:00.000 UTC.
// 00:00:01 is a real late-night record, not the artifact.
func IsMidnightExact(t time.Time) bool {
	u := t.UTC()
	return u.Hour() == 0 && u.Minute() == 0 && u.Second() == 0 && u.Nanosecond() == 0
}

func isTopOfHour(t time.Time) bool {
	u := t.UTC()
	return u.Minute() == 0 && u.Second() == 0 && u.Nanosecond() == 0
}

// DetectMidnightSpike screens a batch for the midnight artifact. The batch is
// flagged when midnight-exact records exceed factor times the mean count at
// the other 23 top-of-hour instants. With no other top-of-hour records at
// all, any midnight-exact pile is flagged.
func DetectMidnightSpike(incidents []domain.Incident, factor float64) SpikeReport {
	report := SpikeReport{Factor: factor}

	var otherTopOfHour int
	for _, inc := range incidents {
		switch {
		case IsMidnightExact(inc.Timestamp):
			report.MidnightCount++
		case isTopOfHour(inc.Timestamp):
			otherTopOfHour++
		}
	}

	report.TopOfHourMean = float64(otherTopOfHour) / 23.0
	if report.TopOfHourMean == 0 {
		report.Flagged = report.MidnightCount > 0
	} else {
		report.Flagged = float64(report.MidnightCount) > factor*report.TopOfHourMean
	}
	return report
}

// ApplySpikePolicy drops midnight-exact records when the batch is flagged and
// the policy says to exclude them. It returns the surviving records and fills
// the report's Excluded count; with policy keep, or an unflagged batch, the
// input comes back untouched.
func ApplySpikePolicy(incidents []domain.Incident, report *SpikeReport, policy domain.SpikePolicy) []domain.Incident {
	if !report.Flagged || policy != domain.SpikeExclude {
		return incidents
	}

	kept := make([]domain.Incident, 0, len(incidents))
	for _, inc := range incidents {
		if IsMidnightExact(inc.Timestamp) {
			report.Excluded++
			continue
		}
		kept = append(kept, inc)
	}
	return kept
}
