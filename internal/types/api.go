package types

import "time"

// PlayerSummary is the public part of a player record.
type PlayerSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	Host      bool   `json:"host"`
}

// Secret is what a single player is allowed to know about the round.
// Location is always empty for the spy.
type Secret struct {
	Spy      bool   `json:"spy"`
	Role     string `json:"role,omitempty"`
	Location string `json:"location,omitempty"`
}

// SessionView is the state of a session as seen by one requester.
type SessionView struct {
	ID        string          `json:"id"`
	Phase     Phase           `json:"phase"`
	Category  string          `json:"category,omitempty"`
	Round     int             `json:"round"`
	Deadline  *time.Time      `json:"deadline,omitempty"`
	Version   int64           `json:"version"`
	Players   []PlayerSummary `json:"players"`
	VotesCast int             `json:"votes_cast"`
	You       *Secret         `json:"you,omitempty"`
	YourVote  string          `json:"your_vote,omitempty"`
	Outcome   *Outcome        `json:"outcome,omitempty"`
}

// Delta is the compact change record broadcast after each commit.
// It never carries roles or the location before the round is resolved.
type Delta struct {
	SessionID string          `json:"session_id"`
	Phase     Phase           `json:"phase"`
	Version   int64           `json:"version"`
	Changed   []string        `json:"changed"`
	Players   []PlayerSummary `json:"players,omitempty"`
	Round     *int            `json:"round,omitempty"`
	Deadline  *time.Time      `json:"deadline,omitempty"`
	VotesCast *int            `json:"votes_cast,omitempty"`
	Outcome   *Outcome        `json:"outcome,omitempty"`
}

// CreateSessionRequest represents a request to create a session
type CreateSessionRequest struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

// PlayerRequest identifies the acting player for join/leave/start/restart/close.
type PlayerRequest struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name,omitempty"`
}

// VoteRequest represents an accusation
type VoteRequest struct {
	PlayerID  string `json:"player_id"`
	AccusedID string `json:"accused_id"`
}

// ListSessionsResponse is a page of active sessions.
type ListSessionsResponse struct {
	Total   int           `json:"total"`
	Limit   int           `json:"limit"`
	Offset  int           `json:"offset"`
	Results []SessionView `json:"results"`
}

// PlayerSessionResponse maps a player to the session they are in.
type PlayerSessionResponse struct {
	PlayerID  string `json:"player_id"`
	SessionID string `json:"session_id"`
}

// InviteResponse carries the join link for a session.
type InviteResponse struct {
	SessionID string `json:"session_id"`
	Link      string `json:"link"`
	QRCodeURL string `json:"qr_code_url"`
}

// StreamMessage is a frame pushed to websocket subscribers. View is sent on
// connect and whenever the phase changes; Delta after every other commit.
type StreamMessage struct {
	Type  string       `json:"type"`
	View  *SessionView `json:"view,omitempty"`
	Delta *Delta       `json:"delta,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
