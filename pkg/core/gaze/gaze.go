// Package gaze scores gaze deviation relative to a calibrated baseline.
package gaze

import (
	"math"

	"github.com/candor-labs/candor/pkg/core/types"
)

// Calibration holds the scoring constants. The divisors normalize raw pixel
// deviations and the weights split the score between average drift and the
// largest single excursion. These are tuning knobs carried over from field
// calibration, not domain invariants.
type Calibration struct {
	MeanDivisor float64
	MaxDivisor  float64
	MeanWeight  float64
	MaxWeight   float64
}

// DefaultCalibration returns the standard calibration: a single large saccade
// is weighted more heavily than steady minor drift.
func DefaultCalibration() Calibration {
	return Calibration{
		MeanDivisor: 50,
		MaxDivisor:  100,
		MeanWeight:  40,
		MaxWeight:   60,
	}
}

// Scorer converts per-frame gaze deviations into a 0-100 score.
type Scorer struct {
	cal Calibration
}

// NewScorer creates a Scorer. Zero-valued calibration fields fall back to the
// defaults so a partially configured Calibration cannot divide by zero.
func NewScorer(cal Calibration) *Scorer {
	def := DefaultCalibration()
	if cal.MeanDivisor <= 0 {
		cal.MeanDivisor = def.MeanDivisor
	}
	if cal.MaxDivisor <= 0 {
		cal.MaxDivisor = def.MaxDivisor
	}
	if cal.MeanWeight <= 0 {
		cal.MeanWeight = def.MeanWeight
	}
	if cal.MaxWeight <= 0 {
		cal.MaxWeight = def.MaxWeight
	}
	return &Scorer{cal: cal}
}

// Deviation returns the Euclidean distance between a gaze point and the
// baseline center.
func Deviation(p, center types.Point) float64 {
	dx := p.X - center.X
	dy := p.Y - center.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Deviations maps a sequence of gaze points to per-frame deviations from the
// baseline center.
func Deviations(points []types.Point, center types.Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = Deviation(p, center)
	}
	return out
}

// Score converts a sequence of per-frame deviations into a score in [0,100].
// An empty sequence scores 0: no detectable signal is no evidence, not
// maximal suspicion.
func (s *Scorer) Score(deviations []float64) float64 {
	if len(deviations) == 0 {
		return 0
	}

	var sum, max float64
	for _, d := range deviations {
		sum += d
		if d > max {
			max = d
		}
	}
	mean := sum / float64(len(deviations))

	score := (mean/s.cal.MeanDivisor)*s.cal.MeanWeight + (max/s.cal.MaxDivisor)*s.cal.MaxWeight
	return clamp(score)
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
