package types

import (
	"time"
)

// Phase is a named stage of the session state machine.
type Phase string

const (
	PhaseLobby      Phase = "LOBBY"
	PhaseAssigning  Phase = "ASSIGNING"
	PhaseDiscussion Phase = "DISCUSSION"
	PhaseVoting     Phase = "VOTING"
	PhaseResolved   Phase = "RESOLVED"
	PhaseClosed     Phase = "CLOSED"
)

// SpyMarker is the assignment value given to the spy in place of a role.
const SpyMarker = "spy"

// Timed reports whether the phase carries a deadline.
func (p Phase) Timed() bool {
	return p == PhaseDiscussion || p == PhaseVoting || p == PhaseResolved
}

// Next returns the phase a timed phase moves to once its deadline passes.
func (p Phase) Next() Phase {
	switch p {
	case PhaseDiscussion:
		return PhaseVoting
	case PhaseVoting:
		return PhaseResolved
	case PhaseResolved:
		return PhaseLobby
	default:
		return ""
	}
}

// Active reports whether the session in this phase is still in play.
func (p Phase) Active() bool {
	return p != PhaseClosed
}

// Player is a participant of a session.
type Player struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Connected bool      `json:"connected"`
	Host      bool      `json:"host"`
	JoinedAt  time.Time `json:"joined_at"`
}

// CatalogEntry is a location together with the roles available there.
type CatalogEntry struct {
	Location string   `json:"location"`
	Roles    []string `json:"roles"`
	Category string   `json:"category,omitempty"`
}

// Vote is a single accusation cast during the voting phase.
type Vote struct {
	VoterID   string    `json:"voter_id"`
	AccusedID string    `json:"accused_id"`
	CastAt    time.Time `json:"cast_at"`
}

// OutcomeKind tells who won a round.
type OutcomeKind string

const (
	OutcomeSpyCaught  OutcomeKind = "SPY_CAUGHT"
	OutcomeSpyEscaped OutcomeKind = "SPY_ESCAPED"
)

// Outcome is the result of a resolved round.
type Outcome struct {
	Kind      OutcomeKind    `json:"kind"`
	SpyID     string         `json:"spy_id"`
	Location  string         `json:"location"`
	AccusedID string         `json:"accused_id,omitempty"`
	Tie       bool           `json:"tie"`
	Tally     map[string]int `json:"tally"`
}

// Session is the canonical record of one game, owned by the session store.
// Every committed mutation increments Version by exactly one.
type Session struct {
	ID         string            `json:"id"`
	Phase      Phase             `json:"phase"`
	Category   string            `json:"category,omitempty"`
	Players    []Player          `json:"players"`
	Entry      *CatalogEntry     `json:"entry,omitempty"`
	Assignment map[string]string `json:"assignment,omitempty"`
	SpyID      string            `json:"spy_id,omitempty"`
	Round      int               `json:"round"`
	Deadline   time.Time         `json:"deadline"`
	Votes      map[string]Vote   `json:"votes,omitempty"`
	Outcome    *Outcome          `json:"outcome,omitempty"`
	Version    int64             `json:"version"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// PlayerIndex returns the position of the player in join order, or -1.
func (s *Session) PlayerIndex(playerID string) int {
	for i, p := range s.Players {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}

// HasPlayer reports whether playerID is a current participant.
func (s *Session) HasPlayer(playerID string) bool {
	return s.PlayerIndex(playerID) >= 0
}

// Host returns the current host, if any.
func (s *Session) Host() (Player, bool) {
	for _, p := range s.Players {
		if p.Host {
			return p, true
		}
	}
	return Player{}, false
}

// IsHost reports whether playerID is the host.
func (s *Session) IsHost(playerID string) bool {
	h, ok := s.Host()
	return ok && h.ID == playerID
}

// PlayerIDs returns player identifiers in join order.
func (s *Session) PlayerIDs() []string {
	ids := make([]string, len(s.Players))
	for i, p := range s.Players {
		ids[i] = p.ID
	}
	return ids
}

// Summaries returns the public part of every player, in join order.
func (s *Session) Summaries() []PlayerSummary {
	out := make([]PlayerSummary, len(s.Players))
	for i, p := range s.Players {
		out[i] = PlayerSummary{ID: p.ID, Name: p.Name, Connected: p.Connected, Host: p.Host}
	}
	return out
}

// Clone returns a deep copy so callers can mutate it without touching the original.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Players != nil {
		c.Players = make([]Player, len(s.Players))
		copy(c.Players, s.Players)
	}
	if s.Entry != nil {
		e := *s.Entry
		e.Roles = append([]string(nil), s.Entry.Roles...)
		c.Entry = &e
	}
	if s.Assignment != nil {
		c.Assignment = make(map[string]string, len(s.Assignment))
		for k, v := range s.Assignment {
			c.Assignment[k] = v
		}
	}
	if s.Votes != nil {
		c.Votes = make(map[string]Vote, len(s.Votes))
		for k, v := range s.Votes {
			c.Votes[k] = v
		}
	}
	if s.Outcome != nil {
		o := *s.Outcome
		if s.Outcome.Tally != nil {
			o.Tally = make(map[string]int, len(s.Outcome.Tally))
			for k, v := range s.Outcome.Tally {
				o.Tally[k] = v
			}
		}
		c.Outcome = &o
	}
	return &c
}

// Trigger is a version-stamped instruction to advance a session once FireAt passes.
type Trigger struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	TargetPhase Phase     `json:"target_phase"`
	FireAt      time.Time `json:"fire_at"`
	Version     int64     `json:"version"`
}
