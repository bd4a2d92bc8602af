// Package core implements the signal fusion engine: weighted combination of
// gaze, tone, and contradiction sub-scores into one overall score with a
// confidence estimate.
package core

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/candor-labs/candor/pkg/core/contradiction"
	"github.com/candor-labs/candor/pkg/core/gaze"
	"github.com/candor-labs/candor/pkg/core/tone"
	"github.com/candor-labs/candor/pkg/core/types"
)

// Fusion weights. Gaze and contradiction carry equal weight; tone is the
// weakest of the three signals.
const (
	weightGaze          = 0.4
	weightContradiction = 0.4
	weightTone          = 0.2
)

// SegmentInput is one segment's worth of already-extracted signals. The
// engine performs no decoding or transcription; those happen in the external
// collaborators before this point.
type SegmentInput struct {
	SessionID  string
	SubjectID  string
	AnalyzerID string

	// GazeDeviations are per-frame distances from the baseline gaze center.
	// Frames with no detected face contribute no entry.
	GazeDeviations []float64

	// Tone is the segment's tone feature vector, nil when audio feature
	// extraction failed or produced nothing.
	Tone *types.ToneFeatures

	// Statement is the transcribed text of the segment, empty when
	// transcription failed. An empty statement degrades confidence rather
	// than aborting the analysis.
	Statement string

	// SourceArtifact references the recording artifact this segment came
	// from.
	SourceArtifact string
}

// Engine fuses the three sub-scores. It depends only on the scorers' outputs,
// not on how the signals were extracted.
type Engine struct {
	gaze    *gaze.Scorer
	tone    *tone.Scorer
	tracker *contradiction.Tracker
	logger  *slog.Logger

	now     func() time.Time
	entropy io.Reader
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates an Engine. Nil scorers or tracker fall back to the
// standard calibrations and the keyword contradiction strategy.
func NewEngine(gazeScorer *gaze.Scorer, toneScorer *tone.Scorer, tracker *contradiction.Tracker, opts ...EngineOption) *Engine {
	if gazeScorer == nil {
		gazeScorer = gaze.NewScorer(gaze.DefaultCalibration())
	}
	if toneScorer == nil {
		toneScorer = tone.NewScorer(tone.DefaultCalibration())
	}
	if tracker == nil {
		tracker = contradiction.NewTracker(nil)
	}
	e := &Engine{
		gaze:    gazeScorer,
		tone:    toneScorer,
		tracker: tracker,
		logger:  slog.Default(),
		now:     time.Now,
		entropy: ulid.DefaultEntropy(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tracker exposes the engine's contradiction tracker so session teardown can
// drop statement history.
func (e *Engine) Tracker() *contradiction.Tracker {
	return e.tracker
}

// AnalyzeSegment scores one segment against the subject's baseline and
// returns the immutable result record. It fails with a baseline-missing error
// when no baseline has been established; every score and the confidence are
// clamped to [0,100]. The engine does not retain the record.
func (e *Engine) AnalyzeSegment(ctx context.Context, in SegmentInput, base *types.BaselineRecord) (types.ResultRecord, error) {
	if base == nil {
		return types.ResultRecord{}, NewBaselineMissingError(in.SubjectID)
	}

	var baseTone *types.ToneFeatures
	if base.Tone != nil {
		baseTone = base.Tone
	}

	gazeScore := e.gaze.Score(in.GazeDeviations)
	toneScore := e.tone.Score(in.Tone, baseTone)
	contradictionScore := e.tracker.RecordAndScore(in.SessionID, in.Statement)

	overall := clampScore(weightGaze*gazeScore + weightContradiction*contradictionScore + weightTone*toneScore)
	confidence := e.confidence(in)

	ts := e.now()
	rec := types.ResultRecord{
		ID:         ulid.MustNew(ulid.Timestamp(ts), e.entropy).String(),
		SessionID:  in.SessionID,
		SubjectID:  in.SubjectID,
		AnalyzerID: in.AnalyzerID,
		Scores: types.ScoreSet{
			Overall:       overall,
			Gaze:          clampScore(gazeScore),
			Tone:          clampScore(toneScore),
			Contradiction: clampScore(contradictionScore),
		},
		Confidence:     confidence,
		Timestamp:      ts,
		SourceArtifact: in.SourceArtifact,
	}

	e.logger.Debug("segment analyzed",
		"session_id", in.SessionID,
		"subject_id", in.SubjectID,
		"overall", rec.Scores.Overall,
		"confidence", rec.Confidence,
	)
	return rec, nil
}

// confidence estimates how much data backed the analysis: more gaze frames
// and longer transcribed speech raise it.
func (e *Engine) confidence(in SegmentInput) float64 {
	dataQuality := float64(len(in.GazeDeviations)) / 100
	speechQuality := 0.0
	if in.Statement != "" {
		speechQuality = float64(len(in.Statement)) / 100
	}
	return clampScore((dataQuality + speechQuality) * 50)
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
