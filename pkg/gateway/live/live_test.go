package live

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/candor-labs/candor/pkg/core/types"
	"github.com/candor-labs/candor/pkg/identity"
	"github.com/candor-labs/candor/pkg/session"
	"github.com/candor-labs/candor/pkg/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMachine(t *testing.T, mem *store.Memory) *session.Machine {
	t.Helper()
	dir := identity.NewStaticDirectory(map[string]string{"bob": "u-bob"})
	return session.NewMachine(mem, mem, dir, session.WithLogger(discardLogger()))
}

func activeSession(t *testing.T, m *session.Machine) types.Session {
	t.Helper()
	ctx := context.Background()
	sess, err := m.Create(ctx, "u-alice", "bob", "video_call")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, user := range []string{"u-alice", "u-bob"} {
		if err := m.RecordConsent(ctx, sess.ID, user, true); err != nil {
			t.Fatalf("RecordConsent: %v", err)
		}
	}
	sess, err = m.Start(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return sess
}

func liveServer(t *testing.T, h Handler) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle("GET /v1/live/{session}", h)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, sessionID string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/live/" + sessionID
}

func TestLiveRejectsUnknownSession(t *testing.T) {
	mem := store.NewMemory()
	h := Handler{Sessions: newMachine(t, mem), Results: mem, Logger: discardLogger()}
	srv := liveServer(t, h)

	resp, err := http.Get(srv.URL + "/v1/live/ghost")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestLiveRejectsSessionWithoutConsent(t *testing.T) {
	mem := store.NewMemory()
	m := newMachine(t, mem)
	sess, err := m.Create(context.Background(), "u-alice", "bob", "video_call")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	h := Handler{Sessions: m, Results: mem, Logger: discardLogger()}
	srv := liveServer(t, h)

	resp, err := http.Get(srv.URL + "/v1/live/" + sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestLiveStreamsSnapshots(t *testing.T) {
	mem := store.NewMemory()
	m := newMachine(t, mem)
	sess := activeSession(t, m)

	if err := mem.SaveResult(context.Background(), types.ResultRecord{
		ID:        "r1",
		SessionID: sess.ID,
		SubjectID: "u-bob",
		Scores:    types.ScoreSet{Overall: 42, Gaze: 40, Tone: 10, Contradiction: 60},
		Timestamp: time.Now(),
	}); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	h := Handler{
		Sessions:         m,
		Results:          mem,
		SnapshotInterval: 20 * time.Millisecond,
		Logger:           discardLogger(),
	}
	srv := liveServer(t, h)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, sess.ID), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	defer resp.Body.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}

	var snap struct {
		Type      string `json:"type"`
		SessionID string `json:"session_id"`
		Result    *struct {
			Overall float64 `json:"overall"`
		} `json:"result"`
	}
	if err := json.Unmarshal(msg, &snap); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if snap.Type != "score_snapshot" || snap.SessionID != sess.ID {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Result == nil || snap.Result.Overall != 42 {
		t.Fatalf("snapshot result = %+v", snap.Result)
	}
}

func TestLiveClosesWhenSessionEnds(t *testing.T) {
	mem := store.NewMemory()
	m := newMachine(t, mem)
	sess := activeSession(t, m)

	h := Handler{
		Sessions:         m,
		Results:          mem,
		SnapshotInterval: 20 * time.Millisecond,
		Logger:           discardLogger(),
	}
	srv := liveServer(t, h)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, sess.ID), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	defer resp.Body.Close()

	if _, err := m.End(context.Background(), sess.ID); err != nil {
		t.Fatalf("End: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Fatalf("expected normal closure, got %v", err)
			}
			return
		}
	}
}
