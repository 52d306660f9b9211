package scheduler

import (
	"context"
	"strconv"
	"time"

	"github.com/spotthespy/game-engine/internal/game"
	"github.com/spotthespy/game-engine/internal/metrics"
	"github.com/spotthespy/game-engine/internal/types"
	"github.com/spotthespy/game-engine/pkg/logger"
)

const (
	defaultBatch = 100
	retryDelay   = time.Second
)

// Advancer moves a session forward if it is still at expectedVersion.
type Advancer interface {
	Advance(ctx context.Context, id string, expectedVersion int64) (*types.Session, bool, error)
}

// Dispatcher polls the queue and delivers due triggers.
type Dispatcher struct {
	queue    Queue
	advancer Advancer
	interval time.Duration
	batch    int
	logger   *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewDispatcher creates a dispatcher polling every interval.
func NewDispatcher(queue Queue, advancer Advancer, interval time.Duration, log *logger.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		queue:    queue,
		advancer: advancer,
		interval: interval,
		batch:    defaultBatch,
		logger:   log.With(logger.F("component", "dispatcher")),
		metrics:  m,
		now:      time.Now,
	}
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("Dispatcher started", logger.F("interval", d.interval.String()))
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Dispatcher stopped")
			return
		case <-ticker.C:
			if _, err := d.Poll(ctx); err != nil && ctx.Err() == nil {
				d.logger.Error("Failed to poll triggers", logger.Err(err))
			}
		}
	}
}

// Poll delivers every trigger that is due and returns how many were delivered.
func (d *Dispatcher) Poll(ctx context.Context) (int, error) {
	delivered := 0
	for {
		due, err := d.queue.PopDue(ctx, d.now(), d.batch)
		if err != nil {
			return delivered, err
		}
		for _, t := range due {
			d.OnDeliver(ctx, t)
			delivered++
		}
		if len(due) < d.batch {
			return delivered, nil
		}
	}
}

// OnDeliver advances the trigger's session against the trigger's version.
// Stale or missing sessions are dropped; transient failures are re-queued.
func (d *Dispatcher) OnDeliver(ctx context.Context, t types.Trigger) {
	fields := []logger.Field{
		logger.F("trigger_id", t.ID),
		logger.F("session_id", t.SessionID),
		logger.F("version", strconv.FormatInt(t.Version, 10)),
	}

	sess, advanced, err := d.advancer.Advance(ctx, t.SessionID, t.Version)
	switch {
	case err == nil && advanced:
		d.metrics.Trigger("advanced")
		d.logger.Debug("Trigger advanced session", append(fields, logger.F("phase", string(sess.Phase)))...)
	case err == nil:
		d.metrics.Trigger("stale")
		d.logger.Debug("Stale trigger dropped", fields...)
	case game.KindOf(err) == game.KindNotFound:
		d.metrics.Trigger("stale")
		d.logger.Debug("Trigger for missing session dropped", fields...)
	default:
		d.metrics.Trigger("error")
		d.logger.Warn("Trigger delivery failed, re-queueing", append(fields, logger.Err(err))...)
		t.FireAt = d.now().Add(retryDelay).UTC()
		if err := d.queue.Push(ctx, t); err != nil {
			d.logger.Error("Failed to re-queue trigger", append(fields, logger.Err(err))...)
		}
	}
}
