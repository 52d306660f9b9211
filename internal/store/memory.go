package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/spotthespy/game-engine/internal/types"
)

type memoryRecord struct {
	data      []byte
	version   int64
	phase     types.Phase
	expiresAt time.Time
}

// MemoryStore is a single-process Store, Broker, PlayerIndex, DeviceGames and History.
// Records are kept JSON-encoded so readers never share memory with the store.
type MemoryStore struct {
	opts Options
	now  func() time.Time

	mu       sync.RWMutex
	sessions map[string]*memoryRecord
	players  map[string]string
	history  map[string][]string
	devices  map[string]*memoryRecord

	subMu sync.RWMutex
	subs  map[string]map[int]chan []byte
	next  int
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		opts:     opts,
		now:      time.Now,
		sessions: make(map[string]*memoryRecord),
		players:  make(map[string]string),
		history:  make(map[string][]string),
		devices:  make(map[string]*memoryRecord),
		subs:     make(map[string]map[int]chan []byte),
	}
}

func (s *MemoryStore) record(session *types.Session) (*memoryRecord, error) {
	data, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	rec := &memoryRecord{data: data, version: session.Version, phase: session.Phase}
	if ttl := s.opts.TTLFor(session); ttl > 0 {
		rec.expiresAt = s.now().Add(ttl)
	}
	return rec, nil
}

// lookup returns a live record; caller must hold mu.
func (s *MemoryStore) lookup(id string) (*memoryRecord, bool) {
	rec, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if !rec.expiresAt.IsZero() && !s.now().Before(rec.expiresAt) {
		return nil, false
	}
	return rec, true
}

// Create creates a new session
func (s *MemoryStore) Create(ctx context.Context, session *types.Session) error {
	rec, err := s.record(session)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.lookup(session.ID); exists {
		return ErrSessionExists
	}
	s.sessions[session.ID] = rec
	return nil
}

// Get retrieves a session by ID
func (s *MemoryStore) Get(ctx context.Context, id string) (*types.Session, error) {
	s.mu.RLock()
	rec, ok := s.lookup(id)
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return decodeSession(rec.data)
}

// CompareAndSet replaces the session if the version matches.
func (s *MemoryStore) CompareAndSet(ctx context.Context, id string, expectedVersion int64, next *types.Session) (bool, error) {
	rec, err := s.record(next)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.lookup(id)
	if !ok {
		return false, ErrSessionNotFound
	}
	if current.version != expectedVersion {
		return false, nil
	}
	s.sessions[id] = rec
	return true, nil
}

// Delete removes a session.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// ListActive returns ids of live, non-closed sessions in sorted order.
func (s *MemoryStore) ListActive(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		rec, ok := s.lookup(id)
		if !ok {
			delete(s.sessions, id)
			continue
		}
		if rec.phase.Active() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Publish fans the payload out to current subscribers without blocking.
func (s *MemoryStore) Publish(ctx context.Context, channel string, payload []byte) error {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for _, ch := range s.subs[channel] {
		msg := append([]byte(nil), payload...)
		select {
		case ch <- msg:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
	return nil
}

// Subscribe registers a subscriber; the channel is closed when ctx ends.
func (s *MemoryStore) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 16)

	s.subMu.Lock()
	id := s.next
	s.next++
	if s.subs[channel] == nil {
		s.subs[channel] = make(map[int]chan []byte)
	}
	s.subs[channel][id] = ch
	s.subMu.Unlock()

	go func() {
		<-ctx.Done()
		s.subMu.Lock()
		delete(s.subs[channel], id)
		if len(s.subs[channel]) == 0 {
			delete(s.subs, channel)
		}
		close(ch)
		s.subMu.Unlock()
	}()
	return ch, nil
}

// Claim binds a player to a session.
func (s *MemoryStore) Claim(ctx context.Context, playerID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.players[playerID]; ok && owner != sessionID {
		return ErrPlayerInGame
	}
	s.players[playerID] = sessionID
	return nil
}

// Release unbinds a player if bound to sessionID.
func (s *MemoryStore) Release(ctx context.Context, playerID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.players[playerID] == sessionID {
		delete(s.players, playerID)
	}
	return nil
}

// Lookup returns the session a player is bound to.
func (s *MemoryStore) Lookup(ctx context.Context, playerID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.players[playerID]
	if !ok {
		return "", ErrPlayerNotFound
	}
	return id, nil
}

// Refresh is a no-op; memory bindings do not expire.
func (s *MemoryStore) Refresh(ctx context.Context, sessionID string, playerIDs []string) error {
	return nil
}

// CreateDeviceGame stores a new device game.
func (s *MemoryStore) CreateDeviceGame(ctx context.Context, g *types.DeviceGame) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to marshal device game: %w", err)
	}
	rec := &memoryRecord{data: data}
	if s.opts.TTL > 0 {
		rec.expiresAt = s.now().Add(s.opts.TTL)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.devices[g.ID]; ok && (cur.expiresAt.IsZero() || s.now().Before(cur.expiresAt)) {
		return ErrSessionExists
	}
	s.devices[g.ID] = rec
	return nil
}

// GetDeviceGame retrieves a device game by ID.
func (s *MemoryStore) GetDeviceGame(ctx context.Context, id string) (*types.DeviceGame, error) {
	s.mu.RLock()
	rec, ok := s.devices[id]
	s.mu.RUnlock()
	if !ok || (!rec.expiresAt.IsZero() && !s.now().Before(rec.expiresAt)) {
		return nil, ErrDeviceNotFound
	}
	var g types.DeviceGame
	if err := json.Unmarshal(rec.data, &g); err != nil {
		return nil, fmt.Errorf("failed to unmarshal device game: %w", err)
	}
	return &g, nil
}

// DeleteDeviceGame removes a device game.
func (s *MemoryStore) DeleteDeviceGame(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.devices, id)
	return nil
}

// Recent returns remembered values, newest first.
func (s *MemoryStore) Recent(ctx context.Context, key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.history[key]...), nil
}

// Remember records value, keeping at most window entries.
func (s *MemoryStore) Remember(ctx context.Context, key, value string, window int) error {
	if window <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	list := append([]string{value}, s.history[key]...)
	if len(list) > window {
		list = list[:window]
	}
	s.history[key] = list
	return nil
}
