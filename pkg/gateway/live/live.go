// Package live serves the realtime score feed. The wire contract is a small
// stub: after the consent gate passes, the connection receives periodic
// score snapshots for the session until the client disconnects or the session
// ends.
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/candor-labs/candor/pkg/core/types"
	"github.com/candor-labs/candor/pkg/session"
	"github.com/candor-labs/candor/pkg/store"
)

// Handler upgrades /v1/live/{session} to a websocket and streams score
// snapshots.
type Handler struct {
	Sessions     *session.Machine
	Results      store.ResultStore
	PingInterval time.Duration
	WriteTimeout time.Duration
	Logger       *slog.Logger

	// Snapshot cadence; ping interval is used when zero.
	SnapshotInterval time.Duration
}

type snapshot struct {
	Type      string              `json:"type"`
	SessionID string              `json:"session_id"`
	Result    *liveResult         `json:"result,omitempty"`
	Status    types.SessionStatus `json:"session_status"`
}

type liveResult struct {
	Overall       float64   `json:"overall"`
	EyeMovement   float64   `json:"eye_movement"`
	Contradiction float64   `json:"contradiction"`
	Tonal         float64   `json:"tonal_variation"`
	Confidence    float64   `json:"confidence_level"`
	Timestamp     time.Time `json:"timestamp"`
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")

	sess, err := h.Sessions.Get(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if sess.Status != types.SessionActive {
		// The gate is checked before the upgrade so rejected clients get a
		// plain HTTP status instead of a doomed websocket.
		http.Error(w, "session is not active", http.StatusForbidden)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("websocket upgrade failed", "session_id", sessionID, "error", err)
		}
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Read pump: we accept no client messages; reading only detects close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	interval := h.SnapshotInterval
	if interval <= 0 {
		interval = h.PingInterval
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pingInterval := h.PingInterval
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}
	pings := time.NewTicker(pingInterval)
	defer pings.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pings.C:
			deadline := time.Now().Add(h.writeTimeout())
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				return
			}
		case <-ticker.C:
			sess, err := h.Sessions.Get(ctx, sessionID)
			if err != nil {
				return
			}
			snap := snapshot{
				Type:      "score_snapshot",
				SessionID: sessionID,
				Status:    sess.Status,
			}
			if rec, ok, err := h.Results.LatestResult(ctx, sessionID); err == nil && ok {
				snap.Result = &liveResult{
					Overall:       rec.Scores.Overall,
					EyeMovement:   rec.Scores.Gaze,
					Contradiction: rec.Scores.Contradiction,
					Tonal:         rec.Scores.Tone,
					Confidence:    rec.Confidence,
					Timestamp:     rec.Timestamp,
				}
			}
			if err := h.writeJSON(conn, snap); err != nil {
				return
			}
			if sess.Status == types.SessionEnded {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
					time.Now().Add(h.writeTimeout()))
				return
			}
		}
	}
}

func (h Handler) writeJSON(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout()))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (h Handler) writeTimeout() time.Duration {
	if h.WriteTimeout > 0 {
		return h.WriteTimeout
	}
	return 5 * time.Second
}
