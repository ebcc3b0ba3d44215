package interfaces

import (
	"context"

	domaintypes "qe2ee/internal/domain/types"
)

// AccountStore persists pickled accounts.
type AccountStore interface {
	SaveAccount(ctx context.Context, record domaintypes.AccountRecord) error
	LoadAccount(ctx context.Context, accountID string) (domaintypes.AccountRecord, bool, error)
}

// SessionStore persists pickled pairwise sessions, grouped by the peer's
// curve25519 identity key.
type SessionStore interface {
	SaveSession(ctx context.Context, accountID, senderKey, sessionID string, pickle []byte) error
	// LoadSessions returns the sessions with one peer, oldest first.
	LoadSessions(ctx context.Context, accountID, senderKey string) ([]domaintypes.SessionRecord, error)
	DeleteSession(ctx context.Context, accountID, senderKey, sessionID string) error
}

// PickleStore is a complete persistence backend.
type PickleStore interface {
	AccountStore
	SessionStore
	Close() error
}
