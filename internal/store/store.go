package store

import (
	"context"
	"time"

	"github.com/spotthespy/game-engine/internal/types"
)

// Store is the authoritative home of session records.
// This abstraction allows swapping implementations (Redis, Cassandra, memory)
// without changing the rest of the codebase.
type Store interface {
	// Create stores a brand-new session; fails with ErrSessionExists.
	Create(ctx context.Context, session *types.Session) error

	// Get returns a private copy of the session.
	Get(ctx context.Context, id string) (*types.Session, error)

	// CompareAndSet replaces the session only if the stored version still
	// equals expectedVersion. It reports whether the write won.
	CompareAndSet(ctx context.Context, id string, expectedVersion int64, next *types.Session) (bool, error)

	// Delete removes a session (cleanup).
	Delete(ctx context.Context, id string) error

	// ListActive returns identifiers of sessions that are not closed.
	ListActive(ctx context.Context) ([]string, error)
}

// Broker is a best-effort publish/subscribe channel.
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns a stream of payloads that is closed when ctx ends.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// PlayerIndex guarantees a player is in at most one active session.
type PlayerIndex interface {
	// Claim binds the player to the session. Claiming again for the same
	// session is a no-op; a different session yields ErrPlayerInGame.
	Claim(ctx context.Context, playerID, sessionID string) error
	// Release unbinds the player if they are bound to sessionID.
	Release(ctx context.Context, playerID, sessionID string) error
	// Lookup returns the session a player is bound to.
	Lookup(ctx context.Context, playerID string) (string, error)
	// Refresh extends the lifetime of the players' bindings to sessionID.
	Refresh(ctx context.Context, sessionID string, playerIDs []string) error
}

// DeviceGames keeps single-device games. They are written once and removed
// when the host ends them or their TTL runs out.
type DeviceGames interface {
	CreateDeviceGame(ctx context.Context, g *types.DeviceGame) error
	GetDeviceGame(ctx context.Context, id string) (*types.DeviceGame, error)
	DeleteDeviceGame(ctx context.Context, id string) error
}

// History keeps a rolling window of recently used values per key.
type History interface {
	Recent(ctx context.Context, key string) ([]string, error)
	Remember(ctx context.Context, key, value string, window int) error
}

// Options control record lifetimes.
type Options struct {
	// TTL applied to active sessions on every write (0 = no expiration).
	TTL time.Duration
	// ClosedRetention is how long a CLOSED session is kept before removal.
	ClosedRetention time.Duration
}

// TTLFor returns the lifetime applied when writing s.
func (o Options) TTLFor(s *types.Session) time.Duration {
	if s.Phase == types.PhaseClosed {
		return o.ClosedRetention
	}
	return o.TTL
}

// Errors
var (
	ErrSessionNotFound = &StoreError{Message: "session not found"}
	ErrSessionExists   = &StoreError{Message: "session already exists"}
	ErrPlayerInGame    = &StoreError{Message: "player is already in another session"}
	ErrPlayerNotFound  = &StoreError{Message: "player is not in a session"}
	ErrDeviceNotFound  = &StoreError{Message: "device game not found"}
)

// StoreError represents a storage error
type StoreError struct {
	Message string
}

func (e *StoreError) Error() string {
	return e.Message
}
