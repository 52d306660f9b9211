package types

import "time"

// DeviceGame is a pass-and-play round dealt for players sharing one device.
// Seats are numbered from 0; only the host is bound in the player index.
type DeviceGame struct {
	ID          string       `json:"id"`
	HostID      string       `json:"host_id"`
	PlayerCount int          `json:"player_count"`
	Category    string       `json:"category,omitempty"`
	Entry       CatalogEntry `json:"entry"`
	SpySeat     int          `json:"spy_seat"`
	// Roles holds one role per seat; the spy's seat holds SpyMarker.
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
}

// Secret returns what the player in seat sees, or false for an unknown seat.
func (g *DeviceGame) Secret(seat int) (Secret, bool) {
	if seat < 0 || seat >= len(g.Roles) {
		return Secret{}, false
	}
	if seat == g.SpySeat {
		return Secret{Spy: true}, true
	}
	return Secret{Role: g.Roles[seat], Location: g.Entry.Location}, true
}

// CreateDeviceGameRequest represents a request to deal a single-device game.
type CreateDeviceGameRequest struct {
	PlayerID    string `json:"player_id"`
	PlayerCount int    `json:"player_count"`
	Category    string `json:"category,omitempty"`
}

// DeviceGameView is the public part of a device game; secrets are revealed per seat.
type DeviceGameView struct {
	ID          string    `json:"id"`
	HostID      string    `json:"host_id"`
	PlayerCount int       `json:"player_count"`
	Category    string    `json:"category,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// SeatResponse is the secret shown to one seat.
type SeatResponse struct {
	Seat int `json:"seat"`
	Secret
}
