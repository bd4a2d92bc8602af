package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/candor-labs/candor/pkg/core"
	"github.com/candor-labs/candor/pkg/core/types"
	"github.com/candor-labs/candor/pkg/session"
)

// SessionsHandler serves the session lifecycle routes.
type SessionsHandler struct {
	Machine      *session.Machine
	MaxBodyBytes int64
	Logger       *slog.Logger
}

type createSessionRequest struct {
	InitiatorID string `json:"initiator_id"`
	Participant string `json:"participant"`
	SessionType string `json:"session_type"`
}

func (h SessionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, h.MaxBodyBytes, &req); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	if strings.TrimSpace(req.InitiatorID) == "" {
		writeError(w, r, h.Logger, core.NewInvalidRequestErrorWithParam("initiator_id is required", "initiator_id"))
		return
	}
	if strings.TrimSpace(req.Participant) == "" {
		writeError(w, r, h.Logger, core.NewInvalidRequestErrorWithParam("participant is required", "participant"))
		return
	}

	sess, err := h.Machine.Create(r.Context(), req.InitiatorID, req.Participant, req.SessionType)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

type consentRequest struct {
	UserID       string `json:"user_id"`
	ConsentGiven bool   `json:"consent_given"`
}

func (h SessionsHandler) Consent(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	var req consentRequest
	if err := decodeJSON(r, h.MaxBodyBytes, &req); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, r, h.Logger, core.NewInvalidRequestErrorWithParam("user_id is required", "user_id"))
		return
	}

	if err := h.Machine.RecordConsent(r.Context(), sessionID, req.UserID, req.ConsentGiven); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	status, err := h.Machine.CheckConsent(r.Context(), sessionID)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type sessionStatusResponse struct {
	Session types.Session         `json:"session"`
	Consent session.ConsentStatus `json:"consent"`
}

func (h SessionsHandler) Status(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	sess, err := h.Machine.Get(r.Context(), sessionID)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	consent, err := h.Machine.CheckConsent(r.Context(), sessionID)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionStatusResponse{Session: sess, Consent: consent})
}

func (h SessionsHandler) Start(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Machine.Start(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h SessionsHandler) End(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Machine.End(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
