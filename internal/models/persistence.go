package models

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// SnapshotVersion is bumped when the persisted layout changes incompatibly.
const SnapshotVersion = 1

// Phase is the controller's meta-state.
type Phase string

const (
	PhaseNotStarted Phase = "not-started"
	PhasePlaying    Phase = "playing"
	PhaseTerminated Phase = "terminated"
)

// Snapshot is the single serializable record of a run, overwritten after
// every resolved turn.
type Snapshot struct {
	Version  int           `yaml:"version" json:"version"`
	RunID    string        `yaml:"run_id" json:"run_id"`
	SavedAt  time.Time     `yaml:"saved_at" json:"saved_at"`
	Rules    Rules         `yaml:"rules" json:"rules"`
	Phase    Phase         `yaml:"phase" json:"phase"`
	State    PlayerState   `yaml:"state" json:"state"`
	History  []LedgerEntry `yaml:"history" json:"history"`
	Holdings []Holding     `yaml:"holdings" json:"holdings"`
	Catalog  []Asset       `yaml:"catalog" json:"catalog"`
	Scenario *Scenario     `yaml:"scenario,omitempty" json:"scenario,omitempty"`
	Outcome  *RunOutcome   `yaml:"outcome,omitempty" json:"outcome,omitempty"`
	Report   *Report       `yaml:"report,omitempty" json:"report,omitempty"`
}

// MarshalSnapshot encodes s as YAML.
func MarshalSnapshot(s *Snapshot) ([]byte, error) {
	return yaml.Marshal(s)
}

// UnmarshalSnapshot decodes a YAML snapshot and checks its version.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", s.Version)
	}
	return &s, nil
}
