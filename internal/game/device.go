package game

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/spotthespy/game-engine/internal/engine"
	"github.com/spotthespy/game-engine/internal/store"
	"github.com/spotthespy/game-engine/internal/types"
	"github.com/spotthespy/game-engine/pkg/logger"
)

var errDevicesDisabled = errors.New("device game storage is not configured")

// CreateDeviceGame deals a pass-and-play round for PlayerCount seats on the
// host's device. The host is bound in the player index like any session
// player, so they cannot be in a session and a device game at once.
func (s *Service) CreateDeviceGame(ctx context.Context, req types.CreateDeviceGameRequest) (*types.DeviceGame, error) {
	if s.devices == nil {
		return nil, wrap(ErrUnavailable, errDevicesDisabled)
	}
	hostID := strings.TrimSpace(req.PlayerID)
	if hostID == "" {
		return nil, wrap(ErrInvalidRequest, errors.New("player_id is required"))
	}
	if req.PlayerCount < s.cfg.MinPlayers || req.PlayerCount > s.cfg.MaxPlayers {
		return nil, ErrInvalidPlayerCount
	}

	entries, err := s.entriesFor(ctx, req.Category)
	if err != nil {
		return nil, err
	}
	recent, err := s.history.Recent(ctx, historyKey(hostID))
	if err != nil {
		s.logger.Warn("Failed to read location history", logger.F("host", hostID), logger.Err(err))
	}

	rnd := s.newRand()
	entry, err := engine.PickEntry(entries, recent, rnd)
	if err != nil {
		return nil, engineError(err)
	}
	seats := make([]string, req.PlayerCount)
	for i := range seats {
		seats[i] = strconv.Itoa(i)
	}
	assignment, err := s.gen.Assign(entry, seats, rnd)
	if err != nil {
		return nil, engineError(err)
	}

	g := &types.DeviceGame{
		ID:          s.newID(),
		HostID:      hostID,
		PlayerCount: req.PlayerCount,
		Category:    req.Category,
		Entry:       assignment.Entry,
		Roles:       make([]string, req.PlayerCount),
		CreatedAt:   s.now().UTC(),
	}
	for i, seat := range seats {
		g.Roles[i] = assignment.Roles[seat]
		if seat == assignment.SpyID {
			g.SpySeat = i
		}
	}

	if err := s.claim(ctx, hostID, g.ID); err != nil {
		return nil, err
	}
	if err := s.devices.CreateDeviceGame(ctx, g); err != nil {
		s.release(ctx, hostID, g.ID)
		s.logger.Error("Failed to create device game", logger.F("device_game_id", g.ID), logger.Err(err))
		return nil, wrap(ErrUnavailable, err)
	}

	if err := s.history.Remember(ctx, historyKey(hostID), g.Entry.Location, s.cfg.UniqueWindow); err != nil {
		s.logger.Warn("Failed to record location history", logger.F("host", hostID), logger.Err(err))
	}
	s.metrics.Commit("device_create")
	s.logger.Info("Device game created",
		logger.F("device_game_id", g.ID),
		logger.F("host", hostID),
		logger.F("players", strconv.Itoa(g.PlayerCount)))
	return g, nil
}

// DeviceGame returns a device game by id.
func (s *Service) DeviceGame(ctx context.Context, id string) (*types.DeviceGame, error) {
	if s.devices == nil {
		return nil, wrap(ErrUnavailable, errDevicesDisabled)
	}
	g, err := s.devices.GetDeviceGame(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrDeviceNotFound) {
			return nil, ErrDeviceGameNotFound
		}
		return nil, wrap(ErrUnavailable, err)
	}
	return g, nil
}

// RevealSeat returns the secret for one seat of a device game.
func (s *Service) RevealSeat(ctx context.Context, id string, seat int) (*types.SeatResponse, error) {
	g, err := s.DeviceGame(ctx, id)
	if err != nil {
		return nil, err
	}
	secret, ok := g.Secret(seat)
	if !ok {
		return nil, ErrUnknownSeat
	}
	return &types.SeatResponse{Seat: seat, Secret: secret}, nil
}

// EndDeviceGame removes the game and frees its host. Only the host may end it.
func (s *Service) EndDeviceGame(ctx context.Context, id, hostID string) error {
	g, err := s.DeviceGame(ctx, id)
	if err != nil {
		return err
	}
	if g.HostID != hostID {
		return ErrNotHost
	}
	if err := s.devices.DeleteDeviceGame(ctx, id); err != nil {
		return wrap(ErrUnavailable, err)
	}
	s.release(ctx, hostID, id)
	s.metrics.Commit("device_end")
	s.logger.Info("Device game ended", logger.F("device_game_id", id))
	return nil
}

// DeviceView is the public part of g.
func DeviceView(g *types.DeviceGame) types.DeviceGameView {
	return types.DeviceGameView{
		ID:          g.ID,
		HostID:      g.HostID,
		PlayerCount: g.PlayerCount,
		Category:    g.Category,
		CreatedAt:   g.CreatedAt,
	}
}
