// Package config groups the planner's dynamic option maps into enumerated,
// typed configuration structs (§9: "Dynamic option maps... should be
// configuration structs with enumerated options"), loaded from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/xudanli/tripnaraht-sub005/internal/planner"
)

// PacingPresets maps the three fixed pacing names to their projection, per
// spec §4.3 step 1. Values are never mutated at runtime.
var PacingPresets = map[planner.Pacing]planner.PacingProjection{
	planner.PacingRelaxed: {BufferFactor: 1.3, FixedBufferMin: 20, WaitWeight: 1.8},
	planner.PacingNormal:  {BufferFactor: 1.2, FixedBufferMin: 15, WaitWeight: 1.5},
	planner.PacingIntense: {BufferFactor: 1.1, FixedBufferMin: 10, WaitWeight: 1.2},
}

// ResolvePacing returns the projection for a pacing name, defaulting to
// "normal" for an empty or unrecognized value.
func ResolvePacing(p planner.Pacing) planner.PacingProjection {
	if proj, ok := PacingPresets[p]; ok {
		return proj
	}
	return PacingPresets[planner.PacingNormal]
}

// ApplyPacing projects a pacing preset onto any unspecified (zero-valued)
// fields of the given transport policy and score weights, matching §4.3
// step 1's "apply a pacing preset to any unspecified policy fields".
func ApplyPacing(pacing planner.Pacing, transport planner.TransportPolicy, weights planner.ObjectiveScoreWeights) (planner.TransportPolicy, planner.ObjectiveScoreWeights) {
	proj := ResolvePacing(pacing)
	if transport.BufferFactor == 0 {
		transport.BufferFactor = proj.BufferFactor
	}
	if transport.FixedBufferMin == 0 {
		transport.FixedBufferMin = proj.FixedBufferMin
	}
	if transport.CrossRegionCostMin == 0 {
		transport.CrossRegionCostMin = planner.DefaultTransportPolicy().CrossRegionCostMin
	}
	if transport.SwitchCostMin == nil {
		transport.SwitchCostMin = map[string]float64{}
	}
	if weights.Wait == 0 {
		weights.Wait = proj.WaitWeight
	}
	if weights.Travel == 0 {
		weights.Travel = planner.DefaultObjectiveScoreWeights().Travel
	}
	if weights.Reward == 0 {
		weights.Reward = planner.DefaultObjectiveScoreWeights().Reward
	}
	if weights.SoftCost == 0 {
		weights.SoftCost = planner.DefaultObjectiveScoreWeights().SoftCost
	}
	if weights.DropPenalty == 0 {
		weights.DropPenalty = planner.DefaultObjectiveScoreWeights().DropPenalty
	}
	return transport, weights
}

// DirectionWeights holds the §4.5 scoring component weights (tagMatch,
// seasonality, pace, risk) as a section of the config document. The
// direction selector scores with its own fixed weight table and does not
// read this struct.
type DirectionWeights struct {
	TagMatch   float64 `yaml:"tagMatch"`
	Seasonality float64 `yaml:"seasonality"`
	Pace       float64 `yaml:"pace"`
	Risk       float64 `yaml:"risk"`
}

// DefaultDirectionWeights returns the §4.5 table's weights.
func DefaultDirectionWeights() DirectionWeights {
	return DirectionWeights{TagMatch: 0.4, Seasonality: 0.3, Pace: 0.2, Risk: 0.1}
}

// File is the on-disk shape of a planner configuration document: default
// transport policy, objective weights, direction-scoring weights, and a
// default buffer radius. No other package reads a File; the POI generator
// applies its own 50 km default.
type File struct {
	Transport        planner.TransportPolicy        `yaml:"transport"`
	ObjectiveWeights planner.ObjectiveScoreWeights   `yaml:"objectiveWeights"`
	DirectionWeights DirectionWeights                `yaml:"directionWeights"`
	DefaultBufferMeters float64                      `yaml:"defaultBufferMeters"`
}

// DefaultFile returns a fully-populated default configuration.
func DefaultFile() File {
	return File{
		Transport:           planner.DefaultTransportPolicy(),
		ObjectiveWeights:    planner.DefaultObjectiveScoreWeights(),
		DirectionWeights:    DefaultDirectionWeights(),
		DefaultBufferMeters: 50000,
	}
}

// Load reads a YAML configuration file, falling back to DefaultFile for any
// field the document omits.
func Load(path string) (File, error) {
	f := DefaultFile()
	raw, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return f, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return f, nil
}
