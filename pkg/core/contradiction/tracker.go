package contradiction

import (
	"sync"
	"time"

	"github.com/candor-labs/candor/pkg/core/types"
)

// Tracker owns the per-session statement history. History grows without bound
// in memory while scoring only consults the strategy's sliding window.
// Appends for the same session are serialized so the window stays
// well-defined under concurrent submissions.
type Tracker struct {
	strategy Strategy
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionHistory
}

type sessionHistory struct {
	mu      sync.Mutex
	entries []types.StatementEntry
}

// NewTracker creates a Tracker using the given strategy. A nil strategy falls
// back to the standard keyword strategy.
func NewTracker(strategy Strategy) *Tracker {
	if strategy == nil {
		strategy = NewKeywordStrategy()
	}
	return &Tracker{
		strategy: strategy,
		now:      time.Now,
		sessions: make(map[string]*sessionHistory),
	}
}

// WithClock overrides the tracker's time source. Test hook.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// RecordAndScore scores statement against the session's prior history, then
// appends it. Empty statements score 0 and are not appended, so they never
// pollute the history window.
func (t *Tracker) RecordAndScore(sessionID, statement string) float64 {
	if statement == "" {
		return 0
	}

	h := t.session(sessionID)
	h.mu.Lock()
	defer h.mu.Unlock()

	score := t.strategy.Score(h.entries, statement)
	h.entries = append(h.entries, types.StatementEntry{
		Text:      statement,
		Timestamp: t.now(),
	})
	return score
}

// History returns a copy of the session's statement history in submission
// order.
func (t *Tracker) History(sessionID string) []types.StatementEntry {
	h := t.session(sessionID)
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]types.StatementEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Reset drops the session's history. Used when a session ends.
func (t *Tracker) Reset(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, sessionID)
}

func (t *Tracker) session(sessionID string) *sessionHistory {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.sessions[sessionID]
	if !ok {
		h = &sessionHistory{}
		t.sessions[sessionID] = h
	}
	return h
}
