package scheduler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/spotthespy/game-engine/internal/config"
	"github.com/spotthespy/game-engine/internal/store"
	"github.com/spotthespy/game-engine/pkg/logger"
)

// Closer closes sessions nobody is using.
type Closer interface {
	CloseIfAbandoned(ctx context.Context, id string, idleBefore time.Time) (bool, error)
}

// SweepReport summarizes one reconciliation pass.
type SweepReport struct {
	Scanned     int
	Rescheduled int
	Closed      int
	Pruned      int
}

// Sweeper periodically re-arms sessions whose trigger was lost and closes
// abandoned ones.
type Sweeper struct {
	store     store.Store
	closer    Closer
	scheduler *Scheduler
	cfg       config.SchedulerConfig
	logger    *logger.Logger
	now       func() time.Time
}

// NewSweeper creates a Sweeper.
func NewSweeper(st store.Store, closer Closer, scheduler *Scheduler, cfg config.SchedulerConfig, log *logger.Logger) *Sweeper {
	return &Sweeper{
		store:     st,
		closer:    closer,
		scheduler: scheduler,
		cfg:       cfg,
		logger:    log.With(logger.F("component", "sweeper")),
		now:       time.Now,
	}
}

// Run sweeps every SweepInterval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := s.Sweep(ctx)
			if err != nil && ctx.Err() == nil {
				s.logger.Error("Sweep failed", logger.Err(err))
				continue
			}
			if report.Rescheduled+report.Closed+report.Pruned > 0 {
				s.logger.Info("Sweep finished",
					logger.F("scanned", strconv.Itoa(report.Scanned)),
					logger.F("rescheduled", strconv.Itoa(report.Rescheduled)),
					logger.F("closed", strconv.Itoa(report.Closed)),
					logger.F("pruned", strconv.Itoa(report.Pruned)))
			}
		}
	}
}

// Sweep runs one reconciliation pass over the active sessions.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	ids, err := s.store.ListActive(ctx)
	if err != nil {
		return report, err
	}

	now := s.now().UTC()
	var idleBefore time.Time
	if s.cfg.IdleTimeout > 0 {
		idleBefore = now.Add(-s.cfg.IdleTimeout)
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Scanned++

		sess, err := s.store.Get(ctx, id)
		if errors.Is(err, store.ErrSessionNotFound) {
			// Expired record still listed in the active index.
			if err := s.store.Delete(ctx, id); err != nil {
				s.logger.Warn("Failed to prune session", logger.F("session_id", id), logger.Err(err))
				continue
			}
			report.Pruned++
			continue
		}
		if err != nil {
			s.logger.Warn("Failed to read session", logger.F("session_id", id), logger.Err(err))
			continue
		}

		closed, err := s.closer.CloseIfAbandoned(ctx, id, idleBefore)
		if err != nil {
			s.logger.Warn("Failed to close abandoned session", logger.F("session_id", id), logger.Err(err))
		}
		if closed {
			report.Closed++
			continue
		}

		if !sess.Phase.Timed() || sess.Deadline.IsZero() || now.Before(sess.Deadline.Add(s.cfg.SweepGrace)) {
			continue
		}
		if err := s.scheduler.ScheduleTrigger(ctx, id, sess.Phase.Next(), now, sess.Version); err != nil {
			s.logger.Warn("Failed to re-arm session", logger.F("session_id", id), logger.Err(err))
			continue
		}
		report.Rescheduled++
	}
	return report, nil
}
