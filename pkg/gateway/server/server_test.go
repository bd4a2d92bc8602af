package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/candor-labs/candor/pkg/core"
	"github.com/candor-labs/candor/pkg/gateway/config"
	"github.com/candor-labs/candor/pkg/identity"
	"github.com/candor-labs/candor/pkg/media"
	"github.com/candor-labs/candor/pkg/pipeline"
	"github.com/candor-labs/candor/pkg/session"
	"github.com/candor-labs/candor/pkg/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDeps(t *testing.T) Deps {
	t.Helper()
	mem := store.NewMemory()
	dir := identity.NewStaticDirectory(map[string]string{"bob": "u-bob"})
	machine := session.NewMachine(mem, mem, dir, session.WithLogger(discardLogger()))
	service := pipeline.NewService(pipeline.ServiceConfig{
		Engine:      core.NewEngine(nil, nil, nil, core.WithLogger(discardLogger())),
		Baselines:   mem,
		Results:     mem,
		Locator:     media.NoopLocator{},
		Extractor:   media.NoopExtractor{},
		Transcriber: media.NoopTranscriber{},
		Logger:      discardLogger(),
	})
	return Deps{Sessions: machine, Service: service, Records: mem}
}

func testConfig(mode config.AuthMode) config.Config {
	return config.Config{
		AuthMode:     mode,
		APIKeys:      map[string]struct{}{"secret": {}},
		MaxBodyBytes: 1 << 20,
		WorkerCount:  2,
		WorkerQueue:  8,
	}
}

func TestServerRoutesWired(t *testing.T) {
	srv := New(testConfig(config.AuthModeDisabled), testDeps(t), discardLogger())
	h := srv.Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("readyz status = %d body = %s", rr.Code, rr.Body.String())
	}

	body, _ := json.Marshal(map[string]any{
		"initiator_id": "u-alice",
		"participant":  "bob",
	})
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewReader(body)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create session status = %d body = %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing request id header")
	}
}

func TestServerAuthRequired(t *testing.T) {
	srv := New(testConfig(config.AuthModeRequired), testDeps(t), discardLogger())
	h := srv.Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("authenticated status = %d", rr.Code)
	}
}

func TestServerUnknownRoute(t *testing.T) {
	srv := New(testConfig(config.AuthModeDisabled), testDeps(t), discardLogger())
	h := srv.Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
}
