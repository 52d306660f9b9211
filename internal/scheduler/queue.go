package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spotthespy/game-engine/internal/store"
	"github.com/spotthespy/game-engine/internal/types"
)

// Queue is a delayed-delivery queue of triggers.
type Queue interface {
	Push(ctx context.Context, t types.Trigger) error
	// PopDue removes and returns up to limit triggers with FireAt <= now.
	// A trigger is handed to exactly one caller.
	PopDue(ctx context.Context, now time.Time, limit int) ([]types.Trigger, error)
	Len(ctx context.Context) (int, error)
}

// RedisQueue keeps triggers in a sorted set scored by fire time, so any
// number of processes can share it. A member is claimed by whoever removes it.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue creates a queue on client.
func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client, key: store.KeyPrefix + ":triggers"}
}

// Push adds t to the queue.
func (q *RedisQueue) Push(ctx context.Context, t types.Trigger) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger: %w", err)
	}
	err = q.client.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(t.FireAt.UnixMilli()),
		Member: string(data),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to enqueue trigger: %w", err)
	}
	return nil
}

// PopDue claims due triggers with ZREM; members another process removed first are skipped.
func (q *RedisQueue) PopDue(ctx context.Context, now time.Time, limit int) ([]types.Trigger, error) {
	members, err := q.client.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read due triggers: %w", err)
	}

	out := make([]types.Trigger, 0, len(members))
	for _, m := range members {
		removed, err := q.client.ZRem(ctx, q.key, m).Result()
		if err != nil {
			return out, fmt.Errorf("failed to claim trigger: %w", err)
		}
		if removed == 0 {
			continue
		}
		var t types.Trigger
		if err := json.Unmarshal([]byte(m), &t); err != nil {
			// Unreadable members are dropped; the sweeper re-arms their sessions.
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// Len returns the number of pending triggers.
func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.ZCard(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count triggers: %w", err)
	}
	return int(n), nil
}

// MemoryQueue is a single-process Queue.
type MemoryQueue struct {
	mu    sync.Mutex
	items []types.Trigger
}

// NewMemoryQueue creates an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Push(ctx context.Context, t types.Trigger) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := sort.Search(len(q.items), func(i int) bool { return q.items[i].FireAt.After(t.FireAt) })
	q.items = append(q.items, types.Trigger{})
	copy(q.items[i+1:], q.items[i:])
	q.items[i] = t
	return nil
}

func (q *MemoryQueue) PopDue(ctx context.Context, now time.Time, limit int) ([]types.Trigger, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for n < len(q.items) && n < limit && !q.items[n].FireAt.After(now) {
		n++
	}
	out := append([]types.Trigger(nil), q.items[:n]...)
	q.items = q.items[n:]
	return out, nil
}

func (q *MemoryQueue) Len(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items), nil
}
