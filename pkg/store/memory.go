package store

import (
	"context"
	"sort"
	"sync"

	"github.com/candor-labs/candor/pkg/core"
	"github.com/candor-labs/candor/pkg/core/types"
)

// Memory is an in-memory RecordStore.
type Memory struct {
	mu        sync.RWMutex
	sessions  map[string]types.Session
	consents  map[string][]types.ConsentRecord // session ID -> append-ordered
	baselines map[string]types.BaselineRecord
	results   []types.ResultRecord // append-ordered
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions:  make(map[string]types.Session),
		consents:  make(map[string][]types.ConsentRecord),
		baselines: make(map[string]types.BaselineRecord),
	}
}

// CreateSession stores a new session.
func (m *Memory) CreateSession(ctx context.Context, s types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

// GetSession returns the session, if present.
func (m *Memory) GetSession(ctx context.Context, id string) (types.Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok, nil
}

// UpdateSession replaces the stored session.
func (m *Memory) UpdateSession(ctx context.Context, s types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return core.NewSessionNotFoundError(s.ID)
	}
	m.sessions[s.ID] = s
	return nil
}

// AppendConsent appends a consent record to the session's ledger.
func (m *Memory) AppendConsent(ctx context.Context, rec types.ConsentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consents[rec.SessionID] = append(m.consents[rec.SessionID], rec)
	return nil
}

// ConsentHistory returns the session's consent records ordered by timestamp,
// insertion order breaking ties.
func (m *Memory) ConsentHistory(ctx context.Context, sessionID string) ([]types.ConsentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := m.consents[sessionID]
	out := make([]types.ConsentRecord, len(recs))
	copy(out, recs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// SaveResult appends a result record.
func (m *Memory) SaveResult(ctx context.Context, rec types.ResultRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, rec)
	return nil
}

// LatestResult returns the newest result for a session.
func (m *Memory) LatestResult(ctx context.Context, sessionID string) (types.ResultRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		best  types.ResultRecord
		found bool
	)
	for _, rec := range m.results {
		if rec.SessionID != sessionID {
			continue
		}
		if !found || !rec.Timestamp.Before(best.Timestamp) {
			best = rec
			found = true
		}
	}
	return best, found, nil
}

// ResultHistory returns up to limit results involving the user, newest first.
func (m *Memory) ResultHistory(ctx context.Context, userID string, limit int) ([]types.ResultRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []types.ResultRecord
	for _, rec := range m.results {
		if rec.SubjectID == userID || rec.AnalyzerID == userID {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Put stores a baseline record, replacing any prior record for the subject.
func (m *Memory) Put(ctx context.Context, rec types.BaselineRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baselines[rec.Subject] = rec
	return nil
}

// Get returns the subject's baseline, if established.
func (m *Memory) Get(ctx context.Context, subject string) (types.BaselineRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.baselines[subject]
	return rec, ok, nil
}
