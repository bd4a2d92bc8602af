// Package store persists sessions, consent records, baselines, and analysis
// results. The sqlite implementation is the production backend; the memory
// implementation backs tests and ephemeral deployments.
package store

import (
	"context"

	"github.com/candor-labs/candor/pkg/core/baseline"
	"github.com/candor-labs/candor/pkg/core/types"
)

// SessionStore persists session lifecycle state.
type SessionStore interface {
	CreateSession(ctx context.Context, s types.Session) error
	GetSession(ctx context.Context, id string) (types.Session, bool, error)
	// UpdateSession replaces the stored session. The session must already
	// exist.
	UpdateSession(ctx context.Context, s types.Session) error
}

// ConsentStore persists the append-only consent ledger.
type ConsentStore interface {
	AppendConsent(ctx context.Context, rec types.ConsentRecord) error
	// ConsentHistory returns all consent records for a session ordered by
	// timestamp, with insertion order breaking ties. The latest record per
	// user is that user's current consent.
	ConsentHistory(ctx context.Context, sessionID string) ([]types.ConsentRecord, error)
}

// ResultStore persists fusion results.
type ResultStore interface {
	SaveResult(ctx context.Context, rec types.ResultRecord) error
	// LatestResult returns the most recent result for a session.
	LatestResult(ctx context.Context, sessionID string) (types.ResultRecord, bool, error)
	// ResultHistory returns up to limit results where the user was subject
	// or analyzer, newest first.
	ResultHistory(ctx context.Context, userID string, limit int) ([]types.ResultRecord, error)
}

// RecordStore is the full persistence surface consumed by the engine's
// callers.
type RecordStore interface {
	SessionStore
	ConsentStore
	ResultStore
	baseline.Store
}
