package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/riverweft/patrolcast/internal/temporal"
)

// Save writes the artifact as JSON via a temp file and rename, so a crashed
// run leaves the previous artifact intact instead of a half-written one.
func (m *RiskModel) Save(path string) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("model: marshal artifact: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".model-*.json")
	if err != nil {
		return fmt.Errorf("model: create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("model: write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("model: close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("model: publish artifact: %w", err)
	}
	return nil
}

// Load reads and sanity-checks a stored artifact. A corrupt or truncated
// artifact fails here, not at first prediction.
func Load(path string) (*RiskModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("model: read artifact %s: %w", path, err)
	}

	var m RiskModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("model: parse artifact %s: %w", path, err)
	}
	if err := m.check(); err != nil {
		return nil, fmt.Errorf("model: artifact %s: %w", path, err)
	}
	return &m, nil
}

func (m *RiskModel) check() error {
	switch {
	case m.Version == "":
		return fmt.Errorf("missing version")
	case m.Forest == nil || len(m.Forest.Trees) == 0:
		return fmt.Errorf("missing forest")
	case len(m.Grid) == 0:
		return fmt.Errorf("empty grid")
	case m.SchemaVersion == "":
		return fmt.Errorf("missing schema version")
	case len(m.FeatureNames) != m.Forest.NumFeatures:
		return fmt.Errorf("%d feature names but forest expects %d", len(m.FeatureNames), m.Forest.NumFeatures)
	case m.TrainObservations <= 0:
		return fmt.Errorf("non-positive training size %d", m.TrainObservations)
	}
	if m.SchemaVersion != temporal.SchemaVersion {
		return fmt.Errorf("schema %s not supported by this build (want %s)", m.SchemaVersion, temporal.SchemaVersion)
	}
	return nil
}
