// Package pipeline orchestrates the analysis flow: it drives the media
// collaborators to turn recordings into feature sequences, feeds those to the
// fusion engine, and persists the outcome. Collaborator failures are
// downgraded to empty signal at this boundary so one failed sub-signal
// degrades confidence instead of aborting the fusion.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/candor-labs/candor/pkg/core"
	"github.com/candor-labs/candor/pkg/core/baseline"
	"github.com/candor-labs/candor/pkg/core/gaze"
	"github.com/candor-labs/candor/pkg/core/types"
	"github.com/candor-labs/candor/pkg/media"
	"github.com/candor-labs/candor/pkg/store"
)

// Service wires the collaborators, the fusion engine, and persistence.
type Service struct {
	engine      *core.Engine
	baselines   baseline.Store
	results     store.ResultStore
	locator     media.LandmarkLocator
	extractor   media.FeatureExtractor
	transcriber media.Transcriber
	artifacts   *ArtifactStore
	logger      *slog.Logger
	now         func() time.Time
}

// ServiceConfig holds the Service dependencies. Engine, Baselines, Results,
// Locator, Extractor, and Transcriber are required; Artifacts is optional
// (no artifact files are written when nil).
type ServiceConfig struct {
	Engine      *core.Engine
	Baselines   baseline.Store
	Results     store.ResultStore
	Locator     media.LandmarkLocator
	Extractor   media.FeatureExtractor
	Transcriber media.Transcriber
	Artifacts   *ArtifactStore
	Logger      *slog.Logger
	Now         func() time.Time
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		engine:      cfg.Engine,
		baselines:   cfg.Baselines,
		results:     cfg.Results,
		locator:     cfg.Locator,
		extractor:   cfg.Extractor,
		transcriber: cfg.Transcriber,
		artifacts:   cfg.Artifacts,
		logger:      logger,
		now:         now,
	}
}

// EstablishBaseline runs calibration for a subject: gaze samples are gathered
// from the calibration frames (frames without a detected face contribute
// nothing) and the tone vector is extracted from the calibration audio. The
// stored record replaces any prior baseline for the subject. It fails with an
// insufficient-data error only when both signals are completely absent.
func (s *Service) EstablishBaseline(ctx context.Context, subjectID string, frames []media.Frame, audio media.Waveform) (types.BaselineRecord, error) {
	samples := make([]types.Point, 0, len(frames))
	for _, frame := range frames {
		point, found, err := s.locator.Locate(ctx, frame)
		if err != nil {
			s.logger.Warn("landmark location failed, skipping frame",
				"subject_id", subjectID, "frame_ts", frame.Timestamp, "error", err)
			continue
		}
		if found {
			samples = append(samples, point)
		}
	}

	tone := s.extractTone(ctx, subjectID, audio)

	rec, err := baseline.Compute(subjectID, samples, tone, s.now())
	if err != nil {
		return types.BaselineRecord{}, err
	}
	if err := s.baselines.Put(ctx, rec); err != nil {
		return types.BaselineRecord{}, err
	}

	s.logger.Info("baseline established",
		"subject_id", subjectID,
		"gaze_samples", len(samples),
		"has_tone", tone != nil,
	)
	return rec, nil
}

// SegmentRequest is one segment of a recording to analyze.
type SegmentRequest struct {
	SessionID      string
	SubjectID      string
	AnalyzerID     string
	Frames         []media.Frame
	Audio          media.Waveform
	SourceArtifact string
}

// AnalyzeSegment extracts the segment's signals, runs fusion against the
// subject's baseline, persists the result, and writes the per-session result
// artifact. It fails with a baseline-missing error when the subject has no
// established baseline.
func (s *Service) AnalyzeSegment(ctx context.Context, req SegmentRequest) (types.ResultRecord, error) {
	base, ok, err := s.baselines.Get(ctx, req.SubjectID)
	if err != nil {
		return types.ResultRecord{}, err
	}
	if !ok {
		return types.ResultRecord{}, core.NewBaselineMissingError(req.SubjectID)
	}

	var deviations []float64
	if base.GazeCenter != nil {
		for _, frame := range req.Frames {
			point, found, err := s.locator.Locate(ctx, frame)
			if err != nil {
				s.logger.Warn("landmark location failed, skipping frame",
					"session_id", req.SessionID, "frame_ts", frame.Timestamp, "error", err)
				continue
			}
			if found {
				deviations = append(deviations, gaze.Deviation(point, *base.GazeCenter))
			}
		}
	}

	tone := s.extractTone(ctx, req.SubjectID, req.Audio)
	statement := s.transcribe(ctx, req.SessionID, req.Audio)

	rec, err := s.engine.AnalyzeSegment(ctx, core.SegmentInput{
		SessionID:      req.SessionID,
		SubjectID:      req.SubjectID,
		AnalyzerID:     req.AnalyzerID,
		GazeDeviations: deviations,
		Tone:           tone,
		Statement:      statement,
		SourceArtifact: req.SourceArtifact,
	}, &base)
	if err != nil {
		return types.ResultRecord{}, err
	}

	if err := s.results.SaveResult(ctx, rec); err != nil {
		return types.ResultRecord{}, err
	}
	if s.artifacts != nil {
		if err := s.artifacts.Write(rec); err != nil {
			// The canonical record is already persisted; a failed artifact
			// write is reported but does not fail the analysis.
			s.logger.Error("result artifact write failed",
				"session_id", req.SessionID, "error", err)
		}
	}

	s.logger.Info("segment analyzed",
		"session_id", req.SessionID,
		"subject_id", req.SubjectID,
		"overall", rec.Scores.Overall,
		"confidence", rec.Confidence,
	)
	return rec, nil
}

// Result returns the latest persisted result for a session.
func (s *Service) Result(ctx context.Context, sessionID string) (types.ResultRecord, error) {
	rec, ok, err := s.results.LatestResult(ctx, sessionID)
	if err != nil {
		return types.ResultRecord{}, err
	}
	if !ok {
		return types.ResultRecord{}, core.NewSessionNotFoundError(sessionID)
	}
	return rec, nil
}

// History returns up to limit results involving the user, newest first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]types.ResultRecord, error) {
	return s.results.ResultHistory(ctx, userID, limit)
}

// extractTone runs the feature extractor, downgrading failure to a nil tone
// vector.
func (s *Service) extractTone(ctx context.Context, subjectID string, audio media.Waveform) *types.ToneFeatures {
	if len(audio.PCM) == 0 {
		return nil
	}
	tone, err := s.extractor.Extract(ctx, audio)
	if err != nil {
		s.logger.Warn("audio feature extraction failed, degrading to empty signal",
			"subject_id", subjectID, "error", err)
		return nil
	}
	return tone
}

// transcribe runs the transcriber, downgrading failure to an empty statement.
func (s *Service) transcribe(ctx context.Context, sessionID string, audio media.Waveform) string {
	if len(audio.PCM) == 0 {
		return ""
	}
	text, err := s.transcriber.Transcribe(ctx, audio)
	if err != nil {
		s.logger.Warn("transcription failed, degrading to empty statement",
			"session_id", sessionID, "error", err)
		return ""
	}
	return text
}
