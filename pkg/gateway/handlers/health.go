package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/candor-labs/candor/pkg/gateway/config"
	"github.com/candor-labs/candor/pkg/store"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config config.Config
	Store  store.SessionStore
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK       bool     `json:"ok"`
		AuthMode string   `json:"auth_mode"`
		Storage  string   `json:"storage"`
		Issues   []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	switch h.Config.AuthMode {
	case config.AuthModeRequired, config.AuthModeOptional, config.AuthModeDisabled:
	default:
		issues = append(issues, "invalid auth_mode")
	}
	if h.Config.AuthMode == config.AuthModeRequired && len(h.Config.APIKeys) == 0 {
		issues = append(issues, "auth_mode=required but no api keys configured")
	}
	if h.Config.WorkerCount <= 0 || h.Config.WorkerQueue <= 0 {
		issues = append(issues, "worker pool not configured")
	}

	storage := "memory"
	if h.Config.SQLitePath != "" {
		storage = "sqlite"
	}
	if h.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if _, _, err := h.Store.GetSession(ctx, "readiness-probe"); err != nil {
			issues = append(issues, "record store unreachable")
		}
	}

	resp := readyResp{
		OK:       len(issues) == 0,
		AuthMode: string(h.Config.AuthMode),
		Storage:  storage,
		Issues:   issues,
	}
	status := http.StatusOK
	if !resp.OK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
