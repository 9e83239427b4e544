package temporal

import (
	"math"

	"github.com/riverweft/patrolcast/internal/domain"
)

// SchemaVersion identifies the feature vector layout below. Any change to the
// feature list, ordering, or encoding is a new version; models refuse vectors
// from a different schema rather than guessing.
const SchemaVersion = "v1"

// NumFeatures is the fixed feature vector length for SchemaVersion.
const NumFeatures = 8

// FeatureNames returns the schema's feature names in vector order. The day of
// week is encoded cyclically (sin/cos) so Sunday sits next to Monday instead
// of seven steps away; the period is a one-hot block.
func FeatureNames() []string {
	return []string{
		"centroid_lat",
		"centroid_lon",
		"day_sin",
		"day_cos",
		"morning",
		"afternoon",
		"evening",
		"late_night",
	}
}

// Encode builds the feature vector for a cell centroid in a time window.
func Encode(centroid domain.Geo, w domain.TimeWindow) []float64 {
	angle := 2 * math.Pi * float64(w.Day) / 7
	features := make([]float64, NumFeatures)
	features[0] = centroid.Lat
	features[1] = centroid.Lon
	features[2] = math.Sin(angle)
	features[3] = math.Cos(angle)
	features[4+int(w.Period)] = 1
	return features
}

// EncodeObservation builds the feature vector and target for a dataset row.
func EncodeObservation(obs domain.Observation) ([]float64, float64) {
	return Encode(obs.Centroid, obs.Window), float64(obs.Count)
}
