// Package session implements the consent-gated session state machine.
// Sessions are created pending and may transition to active only once both
// parties' current consent is affirmative.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/candor-labs/candor/pkg/core"
	"github.com/candor-labs/candor/pkg/core/types"
	"github.com/candor-labs/candor/pkg/identity"
	"github.com/candor-labs/candor/pkg/store"
)

// ConsentStatus is the computed consent view of a session.
type ConsentStatus struct {
	SessionID          string `json:"session_id"`
	InitiatorConsent   bool   `json:"initiator_consent"`
	ParticipantConsent bool   `json:"participant_consent"`
	BothConsented      bool   `json:"both_consented"`
}

// Machine coordinates session lifecycle and the consent ledger. Mutations for
// the same session are serialized by a per-session lock so check-then-start
// is atomic with respect to concurrent starts, and a consent check never
// observes a partially applied transition.
type Machine struct {
	sessions store.SessionStore
	consents store.ConsentStore
	resolver identity.Resolver
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock overrides the machine's time source.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithLogger sets the machine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) { m.logger = logger }
}

// NewMachine creates a Machine over the given stores and identity resolver.
func NewMachine(sessions store.SessionStore, consents store.ConsentStore, resolver identity.Resolver, opts ...Option) *Machine {
	m := &Machine{
		sessions: sessions,
		consents: consents,
		resolver: resolver,
		logger:   slog.Default(),
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create starts a new pending session between the initiator and the resolved
// participant. It fails with a participant-not-found error when the identity
// provider cannot resolve the participant username.
func (m *Machine) Create(ctx context.Context, initiatorID, participantUsername, sessionType string) (types.Session, error) {
	participantID, err := m.resolver.ResolveUserID(ctx, participantUsername)
	if err != nil {
		return types.Session{}, err
	}
	if sessionType == "" {
		sessionType = "video_call"
	}

	sess := types.Session{
		ID:          uuid.NewString(),
		Initiator:   initiatorID,
		Participant: participantID,
		Type:        sessionType,
		Status:      types.SessionPending,
		CreatedAt:   m.now(),
	}
	if err := m.sessions.CreateSession(ctx, sess); err != nil {
		return types.Session{}, err
	}

	m.logger.Info("session created",
		"session_id", sess.ID,
		"initiator", initiatorID,
		"participant", participantID,
		"type", sessionType,
	)
	return sess, nil
}

// RecordConsent appends a consent assertion for a user in a session.
// Re-assertion is allowed; the ledger keeps every record and only the latest
// one counts.
func (m *Machine) RecordConsent(ctx context.Context, sessionID, userID string, consentGiven bool) error {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if _, ok, err := m.sessions.GetSession(ctx, sessionID); err != nil {
		return err
	} else if !ok {
		return core.NewSessionNotFoundError(sessionID)
	}

	rec := types.ConsentRecord{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		UserID:       userID,
		ConsentGiven: consentGiven,
		Timestamp:    m.now(),
	}
	if err := m.consents.AppendConsent(ctx, rec); err != nil {
		return err
	}

	m.logger.Info("consent recorded",
		"session_id", sessionID,
		"user_id", userID,
		"consent_given", consentGiven,
	)
	return nil
}

// CheckConsent computes the current consent view: for each party, the
// consent_given value of their most recent ledger record.
func (m *Machine) CheckConsent(ctx context.Context, sessionID string) (ConsentStatus, error) {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()
	return m.checkConsentLocked(ctx, sessionID)
}

func (m *Machine) checkConsentLocked(ctx context.Context, sessionID string) (ConsentStatus, error) {
	sess, ok, err := m.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return ConsentStatus{}, err
	}
	if !ok {
		return ConsentStatus{}, core.NewSessionNotFoundError(sessionID)
	}

	history, err := m.consents.ConsentHistory(ctx, sessionID)
	if err != nil {
		return ConsentStatus{}, err
	}

	// History is ordered oldest to newest, so the last write per user wins.
	current := make(map[string]bool, 2)
	for _, rec := range history {
		current[rec.UserID] = rec.ConsentGiven
	}

	status := ConsentStatus{
		SessionID:          sessionID,
		InitiatorConsent:   current[sess.Initiator],
		ParticipantConsent: current[sess.Participant],
	}
	status.BothConsented = status.InitiatorConsent && status.ParticipantConsent
	return status, nil
}

// Start transitions the session from pending to active if both parties'
// current consent is affirmative, stamping StartedAt. Starting an already
// active session is an idempotent no-op. The consent check and the
// transition happen under the session lock, so two concurrent starts cannot
// both observe pending.
func (m *Machine) Start(ctx context.Context, sessionID string) (types.Session, error) {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, ok, err := m.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return types.Session{}, err
	}
	if !ok {
		return types.Session{}, core.NewSessionNotFoundError(sessionID)
	}

	switch sess.Status {
	case types.SessionActive:
		return sess, nil
	case types.SessionEnded:
		return types.Session{}, core.NewInvalidRequestError("session has already ended")
	}

	status, err := m.checkConsentLocked(ctx, sessionID)
	if err != nil {
		return types.Session{}, err
	}
	if !status.BothConsented {
		return types.Session{}, core.NewConsentRequiredError(sessionID)
	}

	startedAt := m.now()
	sess.Status = types.SessionActive
	sess.StartedAt = &startedAt
	if err := m.sessions.UpdateSession(ctx, sess); err != nil {
		return types.Session{}, err
	}

	m.logger.Info("session started", "session_id", sessionID)
	return sess, nil
}

// End transitions the session to ended, stamping EndedAt. Ending an already
// ended session is an idempotent no-op.
func (m *Machine) End(ctx context.Context, sessionID string) (types.Session, error) {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, ok, err := m.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return types.Session{}, err
	}
	if !ok {
		return types.Session{}, core.NewSessionNotFoundError(sessionID)
	}
	if sess.Status == types.SessionEnded {
		return sess, nil
	}

	endedAt := m.now()
	sess.Status = types.SessionEnded
	sess.EndedAt = &endedAt
	if err := m.sessions.UpdateSession(ctx, sess); err != nil {
		return types.Session{}, err
	}

	m.logger.Info("session ended", "session_id", sessionID)
	return sess, nil
}

// Get returns the session by ID.
func (m *Machine) Get(ctx context.Context, sessionID string) (types.Session, error) {
	sess, ok, err := m.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return types.Session{}, err
	}
	if !ok {
		return types.Session{}, core.NewSessionNotFoundError(sessionID)
	}
	return sess, nil
}

func (m *Machine) sessionLock(sessionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[sessionID] = lock
	}
	return lock
}
