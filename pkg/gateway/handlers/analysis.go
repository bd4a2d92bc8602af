package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/candor-labs/candor/pkg/core"
	"github.com/candor-labs/candor/pkg/core/types"
	"github.com/candor-labs/candor/pkg/pipeline"
	"github.com/candor-labs/candor/pkg/session"
)

// AnalysisHandler serves calibration, segment analysis, and result retrieval.
type AnalysisHandler struct {
	Service      *pipeline.Service
	Sessions     *session.Machine
	Workers      *pipeline.Workers
	MaxBodyBytes int64
	Logger       *slog.Logger
}

type baselineRequest struct {
	SubjectID string      `json:"subject_id"`
	Frames    []frameSpec `json:"frames"`
	Audio     *audioSpec  `json:"audio"`
}

type baselineResponse struct {
	SubjectID     string       `json:"subject_id"`
	GazeCenter    *types.Point `json:"gaze_center"`
	HasTone       bool         `json:"has_tone"`
	EstablishedAt time.Time    `json:"established_at"`
}

func (h AnalysisHandler) Baseline(w http.ResponseWriter, r *http.Request) {
	var req baselineRequest
	if err := decodeJSON(r, h.MaxBodyBytes, &req); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	if strings.TrimSpace(req.SubjectID) == "" {
		writeError(w, r, h.Logger, core.NewInvalidRequestErrorWithParam("subject_id is required", "subject_id"))
		return
	}
	frames, err := decodeFrames(req.Frames)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	audio, err := decodeAudio(req.Audio)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}

	rec, err := h.Service.EstablishBaseline(r.Context(), req.SubjectID, frames, audio)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, baselineResponse{
		SubjectID:     rec.Subject,
		GazeCenter:    rec.GazeCenter,
		HasTone:       rec.Tone != nil,
		EstablishedAt: rec.EstablishedAt,
	})
}

type segmentRequest struct {
	SessionID      string      `json:"session_id"`
	SubjectID      string      `json:"subject_id"`
	AnalyzerID     string      `json:"analyzer_id"`
	Frames         []frameSpec `json:"frames"`
	Audio          *audioSpec  `json:"audio"`
	SourceArtifact string      `json:"source_artifact"`
	Async          bool        `json:"async"`
}

type resultResponse struct {
	SubjectID  string    `json:"subject_id"`
	SessionID  string    `json:"session_id"`
	Timestamp  time.Time `json:"timestamp"`
	Scores     scoresDoc `json:"scores"`
	Confidence float64   `json:"confidence_level"`
}

type scoresDoc struct {
	Overall       float64 `json:"overall"`
	EyeMovement   float64 `json:"eye_movement"`
	Contradiction float64 `json:"contradiction"`
	Tonal         float64 `json:"tonal_variation"`
}

func toResultResponse(rec types.ResultRecord) resultResponse {
	return resultResponse{
		SubjectID: rec.SubjectID,
		SessionID: rec.SessionID,
		Timestamp: rec.Timestamp,
		Scores: scoresDoc{
			Overall:       rec.Scores.Overall,
			EyeMovement:   rec.Scores.Gaze,
			Contradiction: rec.Scores.Contradiction,
			Tonal:         rec.Scores.Tone,
		},
		Confidence: rec.Confidence,
	}
}

func (h AnalysisHandler) Segment(w http.ResponseWriter, r *http.Request) {
	var req segmentRequest
	if err := decodeJSON(r, h.MaxBodyBytes, &req); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeError(w, r, h.Logger, core.NewInvalidRequestErrorWithParam("session_id is required", "session_id"))
		return
	}
	if strings.TrimSpace(req.SubjectID) == "" {
		writeError(w, r, h.Logger, core.NewInvalidRequestErrorWithParam("subject_id is required", "subject_id"))
		return
	}

	sess, err := h.Sessions.Get(r.Context(), req.SessionID)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	switch sess.Status {
	case types.SessionActive:
	case types.SessionPending:
		writeError(w, r, h.Logger, core.NewConsentRequiredError(req.SessionID))
		return
	default:
		writeError(w, r, h.Logger, core.NewInvalidRequestError("session has already ended"))
		return
	}
	if req.SubjectID != sess.Initiator && req.SubjectID != sess.Participant {
		writeError(w, r, h.Logger, core.NewInvalidRequestErrorWithParam("subject is not a party to the session", "subject_id"))
		return
	}

	frames, err := decodeFrames(req.Frames)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	audio, err := decodeAudio(req.Audio)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}

	pr := pipeline.SegmentRequest{
		SessionID:      req.SessionID,
		SubjectID:      req.SubjectID,
		AnalyzerID:     req.AnalyzerID,
		Frames:         frames,
		Audio:          audio,
		SourceArtifact: req.SourceArtifact,
	}

	if req.Async && h.Workers != nil {
		job := func(ctx context.Context) {
			if _, err := h.Service.AnalyzeSegment(ctx, pr); err != nil && h.Logger != nil {
				h.Logger.Error("background segment analysis failed",
					"session_id", pr.SessionID, "error", err)
			}
		}
		if err := h.Workers.Submit(job); err != nil {
			writeError(w, r, h.Logger, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":     "queued",
			"session_id": req.SessionID,
		})
		return
	}

	rec, err := h.Service.AnalyzeSegment(r.Context(), pr)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toResultResponse(rec))
}

func (h AnalysisHandler) Result(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Service.Result(r.Context(), r.PathValue("session"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toResultResponse(rec))
}

type analysisStatusResponse struct {
	SessionID     string              `json:"session_id"`
	SessionStatus types.SessionStatus `json:"session_status"`
	HasResult     bool                `json:"has_result"`
}

func (h AnalysisHandler) Status(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")
	sess, err := h.Sessions.Get(r.Context(), sessionID)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	hasResult := true
	if _, err := h.Service.Result(r.Context(), sessionID); err != nil {
		if !core.IsSessionNotFound(err) {
			writeError(w, r, h.Logger, err)
			return
		}
		hasResult = false
	}
	writeJSON(w, http.StatusOK, analysisStatusResponse{
		SessionID:     sessionID,
		SessionStatus: sess.Status,
		HasResult:     hasResult,
	})
}

func (h AnalysisHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, r, h.Logger, core.NewInvalidRequestErrorWithParam("user_id is required", "user_id"))
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, h.Logger, core.NewInvalidRequestErrorWithParam("limit must be a positive integer", "limit"))
			return
		}
		limit = n
	}

	recs, err := h.Service.History(r.Context(), userID, limit)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	out := make([]resultResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toResultResponse(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"results": out,
	})
}
