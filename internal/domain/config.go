package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
)

// SpikePolicy selects what happens to midnight-exact records when a batch is
// flagged for the midnight artifact.
type SpikePolicy string

const (
	// SpikeExclude drops midnight-exact records from flagged batches.
	SpikeExclude SpikePolicy = "exclude"
	// SpikeKeep retains midnight-exact records; the flag is still reported.
	SpikeKeep SpikePolicy = "keep"
)

// BoundingBox is a WGS-84 study-area filter. The zero value disables the
// filter entirely.
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// Enabled reports whether the box constrains anything.
func (b BoundingBox) Enabled() bool {
	return b != BoundingBox{}
}

// Contains reports whether the point lies inside the box (inclusive edges).
// A disabled box contains everything.
func (b BoundingBox) Contains(g Geo) bool {
	if !b.Enabled() {
		return true
	}
	return g.Lat >= b.MinLat && g.Lat <= b.MaxLat && g.Lon >= b.MinLon && g.Lon <= b.MaxLon
}

func (b BoundingBox) validate() error {
	if !b.Enabled() {
		return nil
	}
	for _, v := range []float64{b.MinLat, b.MinLon, b.MaxLat, b.MaxLon} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("study area: non-finite bound")
		}
	}
	if b.MinLat < -90 || b.MaxLat > 90 || b.MinLat >= b.MaxLat {
		return fmt.Errorf("study area: latitude bounds %v..%v invalid", b.MinLat, b.MaxLat)
	}
	if b.MinLon < -180 || b.MaxLon > 180 || b.MinLon >= b.MaxLon {
		return fmt.Errorf("study area: longitude bounds %v..%v invalid", b.MinLon, b.MaxLon)
	}
	return nil
}

// ForestParams are the ensemble hyperparameters. The defaults reproduce the
// reference experiment (100 trees, fixed seed).
type ForestParams struct {
	Trees       int     `json:"trees"`
	MaxDepth    int     `json:"max_depth"`    // 0 means unlimited
	MinLeaf     int     `json:"min_leaf"`     // minimum samples per leaf
	SampleRatio float64 `json:"sample_ratio"` // bootstrap sample size as a fraction of n
	Seed        int64   `json:"seed"`
}

// Config is the engine configuration threaded explicitly through every
// pipeline component. The same Config value must be used to build the
// training and validation datasets; its fingerprint is recorded in the model
// artifact so provenance stays reconstructible.
type Config struct {
	// Resolution is the H3 grid resolution (0..15).
	Resolution int `json:"resolution"`

	// StudyArea bounds the jurisdiction; records outside are dropped and
	// counted. Zero value disables the filter.
	StudyArea BoundingBox `json:"study_area"`

	// PeriodStarts holds the starting hour of each period in enum order
	// (Morning, Afternoon, Evening, LateNight). Strictly increasing; the
	// LateNight period wraps past midnight to the Morning start.
	PeriodStarts [NumPeriods]int `json:"period_starts"`

	// SpikeFactor flags a batch when midnight-exact records exceed this
	// multiple of the mean count at the other top-of-hour instants.
	SpikeFactor float64 `json:"spike_factor"`

	// SpikePolicy applies to flagged batches.
	SpikePolicy SpikePolicy `json:"spike_policy"`

	// MinObservations is the smallest dataset a model may be trained on or
	// validated against.
	MinObservations int `json:"min_observations"`

	Forest ForestParams `json:"forest"`

	// TopK is the default recommendation list length.
	TopK int `json:"top_k"`
}

// DefaultConfig returns the reference configuration: H3 resolution 8, the Las
// Vegas valley study area, the standard period boundaries, and the reference
// forest hyperparameters.
func DefaultConfig() Config {
	return Config{
		Resolution:      8,
		StudyArea:       BoundingBox{MinLat: 35.9, MinLon: -115.4, MaxLat: 36.4, MaxLon: -114.8},
		PeriodStarts:    [NumPeriods]int{6, 12, 17, 22},
		SpikeFactor:     4.0,
		SpikePolicy:     SpikeExclude,
		MinObservations: 100,
		Forest: ForestParams{
			Trees:       100,
			MaxDepth:    0,
			MinLeaf:     1,
			SampleRatio: 1.0,
			Seed:        42,
		},
		TopK: 10,
	}
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	if c.Resolution < 0 || c.Resolution > 15 {
		return fmt.Errorf("resolution %d outside H3 range 0..15", c.Resolution)
	}
	if err := c.StudyArea.validate(); err != nil {
		return err
	}
	for i := 0; i < NumPeriods; i++ {
		if c.PeriodStarts[i] < 0 || c.PeriodStarts[i] > 23 {
			return fmt.Errorf("period start %d outside 0..23", c.PeriodStarts[i])
		}
		if i > 0 && c.PeriodStarts[i] <= c.PeriodStarts[i-1] {
			return fmt.Errorf("period starts %v not strictly increasing", c.PeriodStarts)
		}
	}
	if c.SpikeFactor <= 0 {
		return fmt.Errorf("spike factor %v must be positive", c.SpikeFactor)
	}
	if c.SpikePolicy != SpikeExclude && c.SpikePolicy != SpikeKeep {
		return fmt.Errorf("spike policy %q must be %q or %q", c.SpikePolicy, SpikeExclude, SpikeKeep)
	}
	if c.MinObservations < 1 {
		return fmt.Errorf("min observations %d must be at least 1", c.MinObservations)
	}
	if c.Forest.Trees < 1 {
		return fmt.Errorf("forest trees %d must be at least 1", c.Forest.Trees)
	}
	if c.Forest.MaxDepth < 0 {
		return fmt.Errorf("forest max depth %d must not be negative", c.Forest.MaxDepth)
	}
	if c.Forest.MinLeaf < 1 {
		return fmt.Errorf("forest min leaf %d must be at least 1", c.Forest.MinLeaf)
	}
	if c.Forest.SampleRatio <= 0 || c.Forest.SampleRatio > 1 {
		return fmt.Errorf("forest sample ratio %v must be in (0, 1]", c.Forest.SampleRatio)
	}
	if c.TopK < 1 {
		return fmt.Errorf("top k %d must be at least 1", c.TopK)
	}
	return nil
}

// Fingerprint produces a deterministic short hash of every semantic knob.
// Two runs with equal fingerprints used identical grid, window, screening,
// and model settings.
func (c Config) Fingerprint() string {
	input := fmt.Sprintf("res=%d|area=%g,%g,%g,%g|periods=%d,%d,%d,%d|spike=%g:%s|min=%d|forest=%d,%d,%d,%g,%d|topk=%d",
		c.Resolution,
		c.StudyArea.MinLat, c.StudyArea.MinLon, c.StudyArea.MaxLat, c.StudyArea.MaxLon,
		c.PeriodStarts[0], c.PeriodStarts[1], c.PeriodStarts[2], c.PeriodStarts[3],
		c.SpikeFactor, c.SpikePolicy,
		c.MinObservations,
		c.Forest.Trees, c.Forest.MaxDepth, c.Forest.MinLeaf, c.Forest.SampleRatio, c.Forest.Seed,
		c.TopK,
	)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:4])
}
