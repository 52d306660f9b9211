package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spotthespy/game-engine/internal/types"
)

// KeyPrefix namespaces every key this service writes.
const KeyPrefix = "spotthespy"

var errVersionMismatch = errors.New("version mismatch")

// releaseScript deletes the player binding only when it still points at the session.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript re-applies the TTL to every binding that still points at the session.
var refreshScript = redis.NewScript(`
for _, key in ipairs(KEYS) do
	if redis.call("GET", key) == ARGV[1] then
		redis.call("PEXPIRE", key, ARGV[2])
	end
end
return 0
`)

// RedisStore implements Store, Broker, PlayerIndex, DeviceGames and History on Redis.
// Sessions are stored as JSON; compare-and-set uses WATCH/MULTI so that
// concurrent writers from any process serialize on the version counter.
type RedisStore struct {
	client *redis.Client
	opts   Options
}

// Connect creates a Redis client and verifies the connection.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewRedisStore creates a new Redis store instance.
func NewRedisStore(client *redis.Client, opts Options) *RedisStore {
	return &RedisStore{client: client, opts: opts}
}

// Client exposes the underlying client for components sharing the connection.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Create creates a new session in Redis.
func (s *RedisStore) Create(ctx context.Context, session *types.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ok, err := s.client.SetNX(ctx, sessionKey(session.ID), data, s.opts.TTLFor(session)).Result()
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	if !ok {
		return ErrSessionExists
	}

	if err := s.client.SAdd(ctx, activeKey(), session.ID).Err(); err != nil {
		return fmt.Errorf("failed to index session: %w", err)
	}
	return nil
}

// Get retrieves a session from Redis.
func (s *RedisStore) Get(ctx context.Context, id string) (*types.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return decodeSession(data)
}

// CompareAndSet writes next if the stored version equals expectedVersion.
func (s *RedisStore) CompareAndSet(ctx context.Context, id string, expectedVersion int64, next *types.Session) (bool, error) {
	key := sessionKey(id)
	data, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("failed to marshal session: %w", err)
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrSessionNotFound
			}
			return err
		}
		current, err := decodeSession(raw)
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return errVersionMismatch
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.opts.TTLFor(next))
			if next.Phase == types.PhaseClosed {
				pipe.SRem(ctx, activeKey(), id)
			}
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errVersionMismatch), errors.Is(err, redis.TxFailedErr):
		return false, nil
	case errors.Is(err, ErrSessionNotFound):
		return false, ErrSessionNotFound
	default:
		return false, fmt.Errorf("failed to update session: %w", err)
	}
}

// Delete deletes a session from Redis.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(id))
		pipe.SRem(ctx, activeKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// ListActive returns the identifiers in the active-session set.
func (s *RedisStore) ListActive(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, activeKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return ids, nil
}

// Publish sends payload to every subscriber of channel.
func (s *RedisStore) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := s.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}
	return nil
}

// Subscribe streams messages published on channel until ctx ends.
func (s *RedisStore) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	sub := s.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				default:
					// Drop when subscriber is slow; clients reconcile by version.
				}
			}
		}
	}()
	return out, nil
}

// Claim binds a player to a session.
func (s *RedisStore) Claim(ctx context.Context, playerID, sessionID string) error {
	key := playerKey(playerID)
	ok, err := s.client.SetNX(ctx, key, sessionID, s.opts.TTL).Result()
	if err != nil {
		return fmt.Errorf("failed to claim player: %w", err)
	}
	if ok {
		return nil
	}
	owner, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Expired between SETNX and GET; try once more.
			return s.Claim(ctx, playerID, sessionID)
		}
		return fmt.Errorf("failed to read player claim: %w", err)
	}
	if owner != sessionID {
		return ErrPlayerInGame
	}
	return nil
}

// Release unbinds a player if bound to sessionID.
func (s *RedisStore) Release(ctx context.Context, playerID, sessionID string) error {
	if err := releaseScript.Run(ctx, s.client, []string{playerKey(playerID)}, sessionID).Err(); err != nil {
		return fmt.Errorf("failed to release player: %w", err)
	}
	return nil
}

// Lookup returns the session a player is bound to.
func (s *RedisStore) Lookup(ctx context.Context, playerID string) (string, error) {
	id, err := s.client.Get(ctx, playerKey(playerID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrPlayerNotFound
		}
		return "", fmt.Errorf("failed to look up player: %w", err)
	}
	return id, nil
}

// Refresh keeps player bindings alive for as long as the session is written to.
func (s *RedisStore) Refresh(ctx context.Context, sessionID string, playerIDs []string) error {
	if s.opts.TTL <= 0 || len(playerIDs) == 0 {
		return nil
	}
	keys := make([]string, len(playerIDs))
	for i, id := range playerIDs {
		keys[i] = playerKey(id)
	}
	if err := refreshScript.Run(ctx, s.client, keys, sessionID, s.opts.TTL.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("failed to refresh player claims: %w", err)
	}
	return nil
}

// CreateDeviceGame stores a new device game with the session TTL.
func (s *RedisStore) CreateDeviceGame(ctx context.Context, g *types.DeviceGame) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to marshal device game: %w", err)
	}
	ok, err := s.client.SetNX(ctx, deviceKey(g.ID), data, s.opts.TTL).Result()
	if err != nil {
		return fmt.Errorf("failed to store device game: %w", err)
	}
	if !ok {
		return ErrSessionExists
	}
	return nil
}

// GetDeviceGame retrieves a device game.
func (s *RedisStore) GetDeviceGame(ctx context.Context, id string) (*types.DeviceGame, error) {
	data, err := s.client.Get(ctx, deviceKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("failed to get device game: %w", err)
	}
	var g types.DeviceGame
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to unmarshal device game: %w", err)
	}
	return &g, nil
}

// DeleteDeviceGame removes a device game.
func (s *RedisStore) DeleteDeviceGame(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, deviceKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete device game: %w", err)
	}
	return nil
}

// Recent returns the remembered values for key, newest first.
func (s *RedisStore) Recent(ctx context.Context, key string) ([]string, error) {
	vals, err := s.client.LRange(ctx, historyKey(key), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return vals, nil
}

// Remember pushes value and trims the list to window entries.
func (s *RedisStore) Remember(ctx context.Context, key, value string, window int) error {
	if window <= 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, historyKey(key), value)
		pipe.LTrim(ctx, historyKey(key), 0, int64(window-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	return nil
}

func decodeSession(data []byte) (*types.Session, error) {
	var session types.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// sessionKey generates a Redis key for a session.
func sessionKey(id string) string {
	return fmt.Sprintf("%s:session:%s", KeyPrefix, id)
}

func activeKey() string {
	return KeyPrefix + ":sessions:active"
}

func playerKey(id string) string {
	return fmt.Sprintf("%s:player:%s", KeyPrefix, id)
}

func deviceKey(id string) string {
	return fmt.Sprintf("%s:device:%s", KeyPrefix, id)
}

func historyKey(key string) string {
	return fmt.Sprintf("%s:history:%s", KeyPrefix, key)
}
