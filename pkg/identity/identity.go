// Package identity defines the identity-provider collaborator contract.
// Credential storage, password hashing, and token issuance live in the
// external provider; the engine only needs username resolution.
package identity

import (
	"context"
	"sync"

	"github.com/candor-labs/candor/pkg/core"
)

// Resolver maps a username to a stable user ID.
type Resolver interface {
	// ResolveUserID returns the user ID for a username, or a
	// participant-not-found error when the provider does not know the user.
	ResolveUserID(ctx context.Context, username string) (string, error)
}

// StaticDirectory is an in-memory Resolver for tests and single-node
// deployments seeded from configuration.
type StaticDirectory struct {
	mu    sync.RWMutex
	users map[string]string // username -> user ID
}

// NewStaticDirectory creates a directory from a username->userID map. The map
// is copied.
func NewStaticDirectory(users map[string]string) *StaticDirectory {
	copied := make(map[string]string, len(users))
	for name, id := range users {
		copied[name] = id
	}
	return &StaticDirectory{users: copied}
}

// Add registers or replaces a username mapping.
func (d *StaticDirectory) Add(username, userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[username] = userID
}

// ResolveUserID implements Resolver.
func (d *StaticDirectory) ResolveUserID(ctx context.Context, username string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.users[username]
	if !ok {
		return "", core.NewParticipantNotFoundError(username)
	}
	return id, nil
}
