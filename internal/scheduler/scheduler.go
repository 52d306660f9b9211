// Package scheduler delivers version-stamped phase triggers.
//
// Delivery is at-least-once: a trigger may arrive twice or late, and the
// receiving Advance call ignores any trigger whose version is stale. There is
// no cancellation; a superseded trigger simply becomes a no-op.
package scheduler

import (
	"context"
	mathrand "math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/spotthespy/game-engine/internal/types"
	"github.com/spotthespy/game-engine/pkg/logger"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// newTriggerID returns a lexicographically sortable identifier.
func newTriggerID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Scheduler enqueues triggers.
type Scheduler struct {
	queue  Queue
	logger *logger.Logger
}

// New creates a Scheduler on queue.
func New(queue Queue, log *logger.Logger) *Scheduler {
	return &Scheduler{queue: queue, logger: log}
}

// ScheduleTrigger arranges for the session to be advanced to target once
// fireAt passes, provided it is still at version.
func (s *Scheduler) ScheduleTrigger(ctx context.Context, sessionID string, target types.Phase, fireAt time.Time, version int64) error {
	t := types.Trigger{
		ID:          newTriggerID(),
		SessionID:   sessionID,
		TargetPhase: target,
		FireAt:      fireAt.UTC(),
		Version:     version,
	}
	if err := s.queue.Push(ctx, t); err != nil {
		return err
	}
	s.logger.Debug("Trigger scheduled",
		logger.F("trigger_id", t.ID),
		logger.F("session_id", sessionID),
		logger.F("target", string(target)),
		logger.F("version", strconv.FormatInt(version, 10)))
	return nil
}
