package tone

import (
	"math"
	"testing"

	"github.com/candor-labs/candor/pkg/core/types"
)

func TestScore_NilBaselineIsZero(t *testing.T) {
	s := NewScorer(DefaultCalibration())
	if got := s.Score(&types.ToneFeatures{PitchMean: 220}, nil); got != 0 {
		t.Fatalf("score=%v, want 0", got)
	}
}

func TestScore_NilCurrentIsZero(t *testing.T) {
	s := NewScorer(DefaultCalibration())
	if got := s.Score(nil, &types.ToneFeatures{PitchMean: 220}); got != 0 {
		t.Fatalf("score=%v, want 0", got)
	}
}

func TestScore_WeightsVarianceOverMean(t *testing.T) {
	s := NewScorer(DefaultCalibration())
	base := &types.ToneFeatures{PitchMean: 200, PitchStd: 20}

	// 25 Hz mean shift: (25/50)*30 = 15.
	meanShift := s.Score(&types.ToneFeatures{PitchMean: 225, PitchStd: 20}, base)
	if math.Abs(meanShift-15) > 1e-9 {
		t.Fatalf("mean-shift score=%v, want 15", meanShift)
	}

	// 10 Hz std shift: (10/20)*70 = 35.
	varShift := s.Score(&types.ToneFeatures{PitchMean: 200, PitchStd: 30}, base)
	if math.Abs(varShift-35) > 1e-9 {
		t.Fatalf("variance score=%v, want 35", varShift)
	}
	if varShift <= meanShift {
		t.Fatalf("variance shift (%v) should outweigh equal-magnitude mean shift (%v)", varShift, meanShift)
	}
}

func TestScore_SymmetricInDirection(t *testing.T) {
	s := NewScorer(DefaultCalibration())
	base := &types.ToneFeatures{PitchMean: 200, PitchStd: 20}
	up := s.Score(&types.ToneFeatures{PitchMean: 230, PitchStd: 25}, base)
	down := s.Score(&types.ToneFeatures{PitchMean: 170, PitchStd: 15}, base)
	if up != down {
		t.Fatalf("up=%v down=%v, want equal", up, down)
	}
}

func TestScore_ClampedToHundred(t *testing.T) {
	s := NewScorer(DefaultCalibration())
	base := &types.ToneFeatures{}
	got := s.Score(&types.ToneFeatures{PitchMean: 1e6, PitchStd: 1e6}, base)
	if got != 100 {
		t.Fatalf("score=%v, want 100", got)
	}
}
