// Package tone scores vocal-tone deviation relative to a calibrated baseline.
package tone

import "github.com/candor-labs/candor/pkg/core/types"

// Calibration holds the scoring constants. Pitch-variance deviation carries
// more weight than mean-shift: inconsistent modulation is a stronger cue than
// a constant pitch offset.
type Calibration struct {
	PitchDivisor float64
	PitchWeight  float64
	VarDivisor   float64
	VarWeight    float64
}

// DefaultCalibration returns the standard calibration constants.
func DefaultCalibration() Calibration {
	return Calibration{
		PitchDivisor: 50,
		PitchWeight:  30,
		VarDivisor:   20,
		VarWeight:    70,
	}
}

// Scorer converts a segment's tone features into a 0-100 deviation score.
type Scorer struct {
	cal Calibration
}

// NewScorer creates a Scorer. Zero-valued calibration fields fall back to the
// defaults.
func NewScorer(cal Calibration) *Scorer {
	def := DefaultCalibration()
	if cal.PitchDivisor <= 0 {
		cal.PitchDivisor = def.PitchDivisor
	}
	if cal.PitchWeight <= 0 {
		cal.PitchWeight = def.PitchWeight
	}
	if cal.VarDivisor <= 0 {
		cal.VarDivisor = def.VarDivisor
	}
	if cal.VarWeight <= 0 {
		cal.VarWeight = def.VarWeight
	}
	return &Scorer{cal: cal}
}

// Score returns the tone deviation of current against baseline in [0,100].
// A nil baseline or nil current scores 0: no reference means no evidence.
func (s *Scorer) Score(current, baseline *types.ToneFeatures) float64 {
	if current == nil || baseline == nil {
		return 0
	}

	pitchDiff := abs(current.PitchMean - baseline.PitchMean)
	pitchVar := abs(current.PitchStd - baseline.PitchStd)

	score := (pitchDiff/s.cal.PitchDivisor)*s.cal.PitchWeight + (pitchVar/s.cal.VarDivisor)*s.cal.VarWeight
	return clamp(score)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
