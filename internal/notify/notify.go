package notify

import (
	"context"
	"encoding/json"
	"reflect"
	"strconv"

	"github.com/spotthespy/game-engine/internal/metrics"
	"github.com/spotthespy/game-engine/internal/store"
	"github.com/spotthespy/game-engine/internal/types"
	"github.com/spotthespy/game-engine/pkg/logger"
)

// Field names reported in Delta.Changed.
const (
	FieldPhase    = "phase"
	FieldPlayers  = "players"
	FieldRound    = "round"
	FieldDeadline = "deadline"
	FieldVotes    = "votes"
	FieldOutcome  = "outcome"
)

// Channel returns the broadcast channel of a session.
func Channel(sessionID string) string {
	return store.KeyPrefix + ":events:" + sessionID
}

// Diff computes the delta between two committed versions of a session.
// prev may be nil for a freshly created session. Roles, the spy and the
// location are only ever exposed through the outcome of a resolved round.
func Diff(prev, next *types.Session) types.Delta {
	d := types.Delta{
		SessionID: next.ID,
		Phase:     next.Phase,
		Version:   next.Version,
		Changed:   []string{},
	}
	if prev == nil {
		prev = &types.Session{}
	}

	if prev.Phase != next.Phase {
		d.Changed = append(d.Changed, FieldPhase)
	}
	if !reflect.DeepEqual(prev.Summaries(), next.Summaries()) {
		d.Changed = append(d.Changed, FieldPlayers)
		d.Players = next.Summaries()
	}
	if prev.Round != next.Round {
		d.Changed = append(d.Changed, FieldRound)
		round := next.Round
		d.Round = &round
	}
	if !prev.Deadline.Equal(next.Deadline) {
		d.Changed = append(d.Changed, FieldDeadline)
		if !next.Deadline.IsZero() {
			deadline := next.Deadline
			d.Deadline = &deadline
		}
	}
	if !votesEqual(prev.Votes, next.Votes) {
		d.Changed = append(d.Changed, FieldVotes)
		cast := len(next.Votes)
		d.VotesCast = &cast
	}
	if next.Phase == types.PhaseResolved && next.Outcome != nil && (prev.Outcome == nil || prev.Phase != types.PhaseResolved) {
		d.Changed = append(d.Changed, FieldOutcome)
		outcome := *next.Outcome
		d.Outcome = &outcome
	}
	return d
}

func votesEqual(a, b map[string]types.Vote) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || w.AccusedID != v.AccusedID {
			return false
		}
	}
	return true
}

// Publisher broadcasts deltas on a Broker. Failures are logged and dropped;
// subscribers detect the gap by version and re-fetch.
type Publisher struct {
	broker  store.Broker
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// NewPublisher creates a Publisher.
func NewPublisher(broker store.Broker, log *logger.Logger, m *metrics.Metrics) *Publisher {
	return &Publisher{broker: broker, logger: log, metrics: m}
}

// Notify publishes the delta between prev and next.
func (p *Publisher) Notify(ctx context.Context, prev, next *types.Session) {
	delta := Diff(prev, next)
	payload, err := json.Marshal(delta)
	if err != nil {
		p.logger.Error("Failed to encode delta", logger.F("session_id", next.ID), logger.Err(err))
		return
	}
	if err := p.broker.Publish(ctx, Channel(next.ID), payload); err != nil {
		p.metrics.PublishFailed()
		p.logger.Warn("Failed to publish delta",
			logger.F("session_id", next.ID),
			logger.F("version", strconv.FormatInt(next.Version, 10)),
			logger.Err(err))
	}
}

// Subscribe streams decoded deltas for a session until ctx ends.
// Payloads that fail to decode are skipped.
func Subscribe(ctx context.Context, broker store.Broker, sessionID string) (<-chan types.Delta, error) {
	raw, err := broker.Subscribe(ctx, Channel(sessionID))
	if err != nil {
		return nil, err
	}
	out := make(chan types.Delta)
	go func() {
		defer close(out)
		for payload := range raw {
			var d types.Delta
			if err := json.Unmarshal(payload, &d); err != nil {
				continue
			}
			select {
			case out <- d:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
