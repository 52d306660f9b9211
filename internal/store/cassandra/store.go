package cassandra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/spotthespy/game-engine/internal/store"
	"github.com/spotthespy/game-engine/internal/types"
	"github.com/spotthespy/game-engine/pkg/logger"
)

// Store implements store.Store on Cassandra. Compare-and-set is a
// lightweight transaction conditioned on the version column.
type Store struct {
	client  *Client
	logger  *logger.Logger
	timeout time.Duration
	opts    store.Options
}

var _ store.Store = (*Store)(nil)

// NewStore creates a new Cassandra-based session store
func NewStore(client *Client, log *logger.Logger, timeout time.Duration, opts store.Options) *Store {
	return &Store{
		client:  client,
		logger:  log,
		timeout: timeout,
		opts:    opts,
	}
}

// queryContext applies the configured timeout when ctx has no deadline.
func (s *Store) queryContext(ctx context.Context) (context.Context, context.CancelFunc, error) {
	queryCtx, cancel := ctx, context.CancelFunc(func() {})
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		queryCtx, cancel = context.WithTimeout(ctx, s.timeout)
	}
	select {
	case <-queryCtx.Done():
		cancel()
		return nil, nil, fmt.Errorf("context cancelled: %w", queryCtx.Err())
	default:
	}
	return queryCtx, cancel, nil
}

func (s *Store) ttlSeconds(session *types.Session) int {
	return int(s.opts.TTLFor(session) / time.Second)
}

// Create inserts a new session if none exists under the same id.
func (s *Store) Create(ctx context.Context, session *types.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	queryCtx, cancel, err := s.queryContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s.sessions (session_id, version, phase, data)
		VALUES (?, ?, ?, ?)
		IF NOT EXISTS
		USING TTL ?`, s.client.Keyspace())

	existing := make(map[string]interface{})
	applied, err := s.client.Session().Query(query,
		session.ID, session.Version, string(session.Phase), data, s.ttlSeconds(session),
	).WithContext(queryCtx).MapScanCAS(existing)
	if err != nil {
		s.logger.Error("Failed to create session in Cassandra",
			logger.F("session_id", session.ID), logger.Err(err))
		return fmt.Errorf("failed to create session: %w", err)
	}
	if !applied {
		return store.ErrSessionExists
	}

	s.logger.Debug("Session created", logger.F("session_id", session.ID))
	return nil
}

// Get retrieves a session by ID
func (s *Store) Get(ctx context.Context, id string) (*types.Session, error) {
	queryCtx, cancel, err := s.queryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	query := fmt.Sprintf(`SELECT data FROM %s.sessions WHERE session_id = ?`, s.client.Keyspace())

	var data []byte
	err = s.client.Session().Query(query, id).WithContext(queryCtx).Scan(&data)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, store.ErrSessionNotFound
		}
		s.logger.Error("Failed to get session from Cassandra",
			logger.F("session_id", id), logger.Err(err))
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session types.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// CompareAndSet updates the row only if its version equals expectedVersion.
func (s *Store) CompareAndSet(ctx context.Context, id string, expectedVersion int64, next *types.Session) (bool, error) {
	data, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("failed to marshal session: %w", err)
	}
	queryCtx, cancel, err := s.queryContext(ctx)
	if err != nil {
		return false, err
	}
	defer cancel()

	query := fmt.Sprintf(`
		UPDATE %s.sessions
		USING TTL ?
		SET version = ?, phase = ?, data = ?
		WHERE session_id = ?
		IF version = ?`, s.client.Keyspace())

	current := make(map[string]interface{})
	applied, err := s.client.Session().Query(query,
		s.ttlSeconds(next), next.Version, string(next.Phase), data, id, expectedVersion,
	).WithContext(queryCtx).MapScanCAS(current)
	if err != nil {
		s.logger.Error("Failed to update session in Cassandra",
			logger.F("session_id", id), logger.Err(err))
		return false, fmt.Errorf("failed to update session: %w", err)
	}
	if _, found := current["version"]; !applied && !found {
		// No row to compare against.
		return false, store.ErrSessionNotFound
	}

	if applied {
		s.logger.Debug("Session updated", logger.F("session_id", id), logger.F("phase", string(next.Phase)))
	}
	return applied, nil
}

// Delete removes a session.
func (s *Store) Delete(ctx context.Context, id string) error {
	queryCtx, cancel, err := s.queryContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	query := fmt.Sprintf(`DELETE FROM %s.sessions WHERE session_id = ?`, s.client.Keyspace())
	if err := s.client.Session().Query(query, id).WithContext(queryCtx).Exec(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// ListActive scans the table for sessions that are not closed.
func (s *Store) ListActive(ctx context.Context) ([]string, error) {
	queryCtx, cancel, err := s.queryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	query := fmt.Sprintf(`SELECT session_id, phase FROM %s.sessions`, s.client.Keyspace())
	iter := s.client.Session().Query(query).WithContext(queryCtx).Iter()

	var (
		ids       []string
		id, phase string
	)
	for iter.Scan(&id, &phase) {
		if types.Phase(phase).Active() {
			ids = append(ids, id)
		}
	}
	if err := iter.Close(); err != nil {
		s.logger.Error("Failed to list sessions from Cassandra", logger.Err(err))
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return ids, nil
}
