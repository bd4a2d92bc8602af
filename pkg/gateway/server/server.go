package server

import (
	"log/slog"
	"net/http"

	"github.com/candor-labs/candor/pkg/gateway/config"
	"github.com/candor-labs/candor/pkg/gateway/handlers"
	"github.com/candor-labs/candor/pkg/gateway/live"
	"github.com/candor-labs/candor/pkg/gateway/mw"
	"github.com/candor-labs/candor/pkg/pipeline"
	"github.com/candor-labs/candor/pkg/session"
	"github.com/candor-labs/candor/pkg/store"
)

// Deps are the collaborators the server routes to.
type Deps struct {
	Sessions *session.Machine
	Service  *pipeline.Service
	Workers  *pipeline.Workers
	Records  store.RecordStore
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux
	deps   Deps
}

func New(cfg config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		logger: logger,
		mux:    http.NewServeMux(),
		deps:   deps,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("GET /healthz", handlers.HealthHandler{})
	s.mux.Handle("GET /readyz", handlers.ReadyHandler{Config: s.cfg, Store: s.deps.Records})

	sessions := handlers.SessionsHandler{
		Machine:      s.deps.Sessions,
		MaxBodyBytes: s.cfg.MaxBodyBytes,
		Logger:       s.logger,
	}
	s.mux.HandleFunc("POST /v1/sessions", sessions.Create)
	s.mux.HandleFunc("POST /v1/sessions/{id}/consent", sessions.Consent)
	s.mux.HandleFunc("GET /v1/sessions/{id}/status", sessions.Status)
	s.mux.HandleFunc("POST /v1/sessions/{id}/start", sessions.Start)
	s.mux.HandleFunc("POST /v1/sessions/{id}/end", sessions.End)

	analysis := handlers.AnalysisHandler{
		Service:      s.deps.Service,
		Sessions:     s.deps.Sessions,
		Workers:      s.deps.Workers,
		MaxBodyBytes: s.cfg.MaxBodyBytes,
		Logger:       s.logger,
	}
	s.mux.HandleFunc("POST /v1/analysis/baseline", analysis.Baseline)
	s.mux.HandleFunc("POST /v1/analysis/segment", analysis.Segment)
	s.mux.HandleFunc("GET /v1/analysis/{session}/result", analysis.Result)
	s.mux.HandleFunc("GET /v1/analysis/{session}/status", analysis.Status)
	s.mux.HandleFunc("GET /v1/analysis/history", analysis.History)

	s.mux.Handle("GET /v1/live/{session}", live.Handler{
		Sessions:     s.deps.Sessions,
		Results:      s.deps.Records,
		PingInterval: s.cfg.LiveWSPingInterval,
		WriteTimeout: s.cfg.LiveWSWriteTimeout,
		Logger:       s.logger,
	})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Auth(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}
