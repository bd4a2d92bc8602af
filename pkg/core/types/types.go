// Package types defines the domain types shared across the analysis engine.
package types

import "time"

// Point is a 2D position in frame coordinates (pixels).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ToneFeatures is the vocal-tone feature vector produced by the audio
// feature extractor collaborator.
type ToneFeatures struct {
	PitchMean            float64     `json:"pitch_mean"`
	PitchStd             float64     `json:"pitch_std"`
	MFCCMean             [13]float64 `json:"mfcc_mean"`
	SpectralCentroidMean float64     `json:"spectral_centroid_mean"`
}

// BaselineRecord is the per-subject calibration reference. GazeCenter is nil
// when calibration produced no usable gaze samples; a nil center propagates
// as "unset" rather than a synthetic origin point. A record is immutable once
// created; re-running calibration replaces it wholesale.
type BaselineRecord struct {
	Subject       string        `json:"subject_id"`
	GazeCenter    *Point        `json:"gaze_center,omitempty"`
	Tone          *ToneFeatures `json:"tone,omitempty"`
	EstablishedAt time.Time     `json:"established_at"`
}

// StatementEntry is one transcribed statement in a session's ordered history.
type StatementEntry struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ConsentRecord is one consent assertion for a (session, user) pair. Records
// are append-only; the current consent for a user is the ConsentGiven value
// of their most recent record.
type ConsentRecord struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id"`
	ConsentGiven bool      `json:"consent_given"`
	Timestamp    time.Time `json:"timestamp"`
}

// SessionStatus is the lifecycle state of a recording session.
type SessionStatus string

const (
	SessionPending SessionStatus = "pending"
	SessionActive  SessionStatus = "active"
	SessionEnded   SessionStatus = "ended"
)

// Session is a two-party recording session. It is created pending and
// transitions to active only through the consent-gated start operation.
type Session struct {
	ID          string        `json:"id"`
	Initiator   string        `json:"initiator_id"`
	Participant string        `json:"participant_id"`
	Type        string        `json:"session_type"`
	Status      SessionStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	EndedAt     *time.Time    `json:"ended_at,omitempty"`
}

// ScoreSet holds the three sub-scores and their weighted combination, each
// clamped to [0,100].
type ScoreSet struct {
	Overall       float64 `json:"overall"`
	Gaze          float64 `json:"gaze"`
	Tone          float64 `json:"tone"`
	Contradiction float64 `json:"contradiction"`
}

// ResultRecord is the immutable output of one fusion run. The engine returns
// it to the caller and does not retain it.
type ResultRecord struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	SubjectID      string    `json:"subject_id"`
	AnalyzerID     string    `json:"analyzer_id"`
	Scores         ScoreSet  `json:"scores"`
	Confidence     float64   `json:"confidence"`
	Timestamp      time.Time `json:"timestamp"`
	SourceArtifact string    `json:"source_artifact,omitempty"`
}
