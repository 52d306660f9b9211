package game

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spotthespy/game-engine/internal/catalog"
	"github.com/spotthespy/game-engine/internal/config"
	"github.com/spotthespy/game-engine/internal/engine"
	"github.com/spotthespy/game-engine/internal/metrics"
	"github.com/spotthespy/game-engine/internal/store"
	"github.com/spotthespy/game-engine/internal/types"
	"github.com/spotthespy/game-engine/pkg/logger"
)

// Scheduler arranges for a session to be advanced once fireAt passes.
type Scheduler interface {
	ScheduleTrigger(ctx context.Context, sessionID string, target types.Phase, fireAt time.Time, version int64) error
}

// Notifier broadcasts a committed change.
type Notifier interface {
	Notify(ctx context.Context, prev, next *types.Session)
}

// CloseHook runs after a session has been closed.
type CloseHook func(ctx context.Context, sessionID string)

// Deps are the collaborators of a Service. Scheduler, Notifier, Metrics and
// Devices are optional; without Devices single-device games are unavailable.
type Deps struct {
	Store     store.Store
	Devices   store.DeviceGames
	Players   store.PlayerIndex
	History   store.History
	Catalog   catalog.Catalog
	Scheduler Scheduler
	Notifier  Notifier
	Metrics   *metrics.Metrics
}

// Service is the session state machine. It keeps no session state of its
// own: every operation reads the record, applies its guard to a private copy
// and commits through compare-and-set, retrying on conflict.
type Service struct {
	store     store.Store
	devices   store.DeviceGames
	players   store.PlayerIndex
	history   store.History
	catalog   catalog.Catalog
	scheduler Scheduler
	notifier  Notifier
	metrics   *metrics.Metrics

	cfg     config.GameConfig
	gen     engine.Generator
	logger  *logger.Logger
	onClose []CloseHook

	now     func() time.Time
	newRand func() engine.Rand
	newID   func() string
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRand overrides the per-operation randomness source.
func WithRand(newRand func() engine.Rand) Option {
	return func(s *Service) { s.newRand = newRand }
}

// WithIDGenerator overrides session identifier generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// WithCloseHook registers h to run after every close.
func WithCloseHook(h CloseHook) Option {
	return func(s *Service) { s.onClose = append(s.onClose, h) }
}

// NewService creates a new game service
func NewService(d Deps, cfg config.GameConfig, log *logger.Logger, opts ...Option) *Service {
	if cfg.CommitAttempts < 1 {
		cfg.CommitAttempts = 1
	}
	s := &Service{
		store:     d.Store,
		devices:   d.Devices,
		players:   d.Players,
		history:   d.History,
		catalog:   d.Catalog,
		scheduler: d.Scheduler,
		notifier:  d.Notifier,
		metrics:   d.Metrics,
		cfg:       cfg,
		gen: engine.Generator{
			MinPlayers: cfg.MinPlayers,
			MaxPlayers: cfg.MaxPlayers,
			ReuseRoles: cfg.ReuseRoles,
		},
		logger:  log.With(logger.F("component", "game")),
		now:     time.Now,
		newRand: engine.NewRand,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens a new session in LOBBY with the creator as sole player and host.
func (s *Service) Create(ctx context.Context, req types.CreateSessionRequest) (*types.Session, error) {
	playerID := strings.TrimSpace(req.PlayerID)
	if playerID == "" {
		return nil, wrap(ErrInvalidRequest, errors.New("player_id is required"))
	}
	if req.Category != "" {
		if _, err := s.entriesFor(ctx, req.Category); err != nil {
			return nil, err
		}
	}

	id := s.newID()
	if err := s.claim(ctx, playerID, id); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	session := &types.Session{
		ID:       id,
		Phase:    types.PhaseLobby,
		Category: req.Category,
		Players: []types.Player{{
			ID:        playerID,
			Name:      displayName(req.Name, playerID),
			Connected: true,
			Host:      true,
			JoinedAt:  now,
		}},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.Create(ctx, session); err != nil {
		s.release(ctx, playerID, id)
		s.logger.Error("Failed to create session", logger.F("session_id", id), logger.Err(err))
		return nil, wrap(ErrUnavailable, err)
	}

	s.logger.Info("Session created", logger.F("session_id", id), logger.F("host", playerID))
	s.afterCommit(ctx, "create", nil, session)
	return session, nil
}

// Join adds a player to a session in LOBBY. Joining a session the player
// already belongs to reports ErrAlreadyInSession in any phase.
func (s *Service) Join(ctx context.Context, id, playerID, name string) (*types.Session, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return nil, wrap(ErrInvalidRequest, errors.New("player_id is required"))
	}
	claimed, err := s.claimFor(ctx, playerID, id)
	if err != nil {
		return nil, err
	}

	next, _, err := s.mutate(ctx, "join", id, func(sess *types.Session, now time.Time) error {
		if sess.HasPlayer(playerID) {
			return ErrAlreadyInSession
		}
		if sess.Phase != types.PhaseLobby {
			return ErrSessionNotJoinable
		}
		if len(sess.Players) >= s.cfg.MaxPlayers {
			return ErrSessionFull
		}
		sess.Players = append(sess.Players, types.Player{
			ID:        playerID,
			Name:      displayName(name, playerID),
			Connected: true,
			JoinedAt:  now,
		})
		return nil
	})
	if err != nil {
		if claimed && !errors.Is(err, ErrAlreadyInSession) {
			s.releaseUnlessMember(ctx, playerID, id)
		}
		return nil, err
	}
	return next, nil
}

// Leave removes a player. The host role passes to the player who joined next;
// a round that can no longer be played returns to LOBBY; the last player
// leaving closes the session.
func (s *Service) Leave(ctx context.Context, id, playerID string) (*types.Session, error) {
	next, _, err := s.mutate(ctx, "leave", id, func(sess *types.Session, now time.Time) error {
		return s.removePlayer(sess, playerID, now)
	})
	if err != nil {
		return nil, err
	}
	s.release(ctx, playerID, id)
	if next.Phase == types.PhaseClosed {
		s.closed(ctx, next)
	}
	return next, nil
}

func (s *Service) removePlayer(sess *types.Session, playerID string, now time.Time) error {
	if sess.Phase == types.PhaseClosed {
		return ErrWrongPhase
	}
	idx := sess.PlayerIndex(playerID)
	if idx < 0 {
		return ErrNotInSession
	}
	leaving := sess.Players[idx]
	wasSpy := sess.SpyID == playerID
	sess.Players = append(sess.Players[:idx], sess.Players[idx+1:]...)

	if len(sess.Players) == 0 {
		closeInto(sess)
		return nil
	}
	if leaving.Host {
		sess.Players[idx%len(sess.Players)].Host = true
	}

	switch sess.Phase {
	case types.PhaseDiscussion, types.PhaseVoting:
		switch {
		case wasSpy && s.cfg.AbortOnSpyLeave, len(sess.Players) < s.cfg.MinPlayers:
			resetToLobby(sess)
		case wasSpy:
			// Votes already cast against the spy still count.
			delete(sess.Assignment, playerID)
			delete(sess.Votes, playerID)
			s.resolveInto(sess, now)
		default:
			forgetPlayer(sess, playerID)
			if sess.Phase == types.PhaseVoting && s.allVoted(sess) {
				s.resolveInto(sess, now)
			}
		}
	case types.PhaseResolved:
		delete(sess.Assignment, playerID)
	}
	return nil
}

// Start deals a round and opens the discussion. Only the host may start.
func (s *Service) Start(ctx context.Context, id, hostID string) (*types.Session, error) {
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	entries, err := s.entriesFor(ctx, current.Category)
	if err != nil {
		return nil, err
	}
	recent, err := s.history.Recent(ctx, historyKey(hostID))
	if err != nil {
		// Fairness only; a round without history is still valid.
		s.logger.Warn("Failed to read location history", logger.F("host", hostID), logger.Err(err))
	}

	rnd := s.newRand()
	next, _, err := s.mutate(ctx, "start", id, func(sess *types.Session, now time.Time) error {
		if sess.Phase != types.PhaseLobby {
			return ErrWrongPhase
		}
		if !sess.IsHost(hostID) {
			return ErrNotHost
		}
		entry, err := engine.PickEntry(entries, recent, rnd)
		if err != nil {
			return engineError(err)
		}
		assignment, err := s.gen.Assign(entry, sess.PlayerIDs(), rnd)
		if err != nil {
			return engineError(err)
		}

		sess.Phase = types.PhaseDiscussion
		sess.Round++
		sess.Entry = &assignment.Entry
		sess.Assignment = assignment.Roles
		sess.SpyID = assignment.SpyID
		sess.Votes = nil
		sess.Outcome = nil
		sess.Deadline = now.Add(s.cfg.DiscussionDuration)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.history.Remember(ctx, historyKey(hostID), next.Entry.Location, s.cfg.UniqueWindow); err != nil {
		s.logger.Warn("Failed to record location history", logger.F("host", hostID), logger.Err(err))
	}
	s.logger.Info("Round started",
		logger.F("session_id", id),
		logger.F("round", strconv.Itoa(next.Round)),
		logger.F("players", strconv.Itoa(len(next.Players))))
	return next, nil
}

// CastVote records voter's accusation, replacing any earlier vote this round.
// When every player has voted the round resolves in the same commit.
func (s *Service) CastVote(ctx context.Context, id, voterID, accusedID string) (*types.Session, error) {
	if voterID == "" || accusedID == "" {
		return nil, wrap(ErrInvalidRequest, errors.New("player_id and accused_id are required"))
	}
	next, _, err := s.mutate(ctx, "vote", id, func(sess *types.Session, now time.Time) error {
		if sess.Phase != types.PhaseVoting {
			return ErrWrongPhase
		}
		if !sess.HasPlayer(voterID) {
			return ErrNotInSession
		}
		if !sess.HasPlayer(accusedID) {
			return ErrUnknownAccused
		}
		if prev, ok := sess.Votes[voterID]; ok && prev.AccusedID == accusedID {
			return errNoop
		}
		if sess.Votes == nil {
			sess.Votes = make(map[string]types.Vote)
		}
		sess.Votes[voterID] = types.Vote{VoterID: voterID, AccusedID: accusedID, CastAt: now}
		if s.allVoted(sess) {
			s.resolveInto(sess, now)
		}
		return nil
	})
	return next, err
}

// Advance moves a timed phase forward if the session is still at
// expectedVersion. A stale version is a no-op and reports false.
func (s *Service) Advance(ctx context.Context, id string, expectedVersion int64) (*types.Session, bool, error) {
	next, committed, err := s.mutate(ctx, "advance", id, func(sess *types.Session, now time.Time) error {
		if sess.Version != expectedVersion {
			return errNoop
		}
		return s.step(sess, now)
	})
	if err != nil {
		return nil, false, err
	}
	if !committed {
		s.logger.Debug("Stale advance ignored",
			logger.F("session_id", id),
			logger.F("expected_version", strconv.FormatInt(expectedVersion, 10)),
			logger.F("version", strconv.FormatInt(next.Version, 10)))
	}
	return next, committed, nil
}

// AdvanceNow lets the host skip the rest of the discussion or voting time.
func (s *Service) AdvanceNow(ctx context.Context, id, hostID string) (*types.Session, error) {
	next, _, err := s.mutate(ctx, "advance_now", id, func(sess *types.Session, now time.Time) error {
		if !sess.IsHost(hostID) {
			return ErrNotHost
		}
		if sess.Phase != types.PhaseDiscussion && sess.Phase != types.PhaseVoting {
			return ErrWrongPhase
		}
		return s.step(sess, now)
	})
	return next, err
}

// Restart takes a resolved session back to LOBBY with the same roster.
func (s *Service) Restart(ctx context.Context, id, hostID string) (*types.Session, error) {
	next, _, err := s.mutate(ctx, "restart", id, func(sess *types.Session, now time.Time) error {
		if !sess.IsHost(hostID) {
			return ErrNotHost
		}
		if sess.Phase != types.PhaseResolved {
			return ErrWrongPhase
		}
		resetToLobby(sess)
		return nil
	})
	return next, err
}

// Close ends the session from LOBBY or RESOLVED and frees its players.
func (s *Service) Close(ctx context.Context, id, hostID string) (*types.Session, error) {
	next, _, err := s.mutate(ctx, "close", id, func(sess *types.Session, now time.Time) error {
		if !sess.IsHost(hostID) {
			return ErrNotHost
		}
		if sess.Phase != types.PhaseLobby && sess.Phase != types.PhaseResolved {
			return ErrWrongPhase
		}
		closeInto(sess)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.closed(ctx, next)
	return next, nil
}

// CloseIfAbandoned closes a session that has no players, or whose players
// are all disconnected and that has not changed since idleBefore.
func (s *Service) CloseIfAbandoned(ctx context.Context, id string, idleBefore time.Time) (bool, error) {
	next, committed, err := s.mutate(ctx, "sweep_close", id, func(sess *types.Session, now time.Time) error {
		if sess.Phase == types.PhaseClosed {
			return errNoop
		}
		if len(sess.Players) > 0 {
			if idleBefore.IsZero() || sess.UpdatedAt.After(idleBefore) {
				return errNoop
			}
			for _, p := range sess.Players {
				if p.Connected {
					return errNoop
				}
			}
		}
		closeInto(sess)
		return nil
	})
	if err != nil || !committed {
		return false, err
	}
	s.logger.Info("Abandoned session closed", logger.F("session_id", id))
	s.closed(ctx, next)
	return true, nil
}

// SetPresence records whether a player currently holds a live connection.
func (s *Service) SetPresence(ctx context.Context, id, playerID string, connected bool) (*types.Session, error) {
	next, _, err := s.mutate(ctx, "presence", id, func(sess *types.Session, now time.Time) error {
		if sess.Phase == types.PhaseClosed {
			return errNoop
		}
		idx := sess.PlayerIndex(playerID)
		if idx < 0 {
			return ErrNotInSession
		}
		if sess.Players[idx].Connected == connected {
			return errNoop
		}
		sess.Players[idx].Connected = connected
		return nil
	})
	return next, err
}

// Get returns the current session record.
func (s *Service) Get(ctx context.Context, id string) (*types.Session, error) {
	return s.load(ctx, id)
}

// View returns the session as seen by playerID.
func (s *Service) View(ctx context.Context, id, playerID string) (*types.SessionView, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	v := BuildView(sess, playerID)
	return &v, nil
}

// List returns a page of public views of active sessions, ordered by id.
func (s *Service) List(ctx context.Context, limit, offset int) (*types.ListSessionsResponse, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		return nil, wrap(ErrInvalidRequest, errors.New("offset must not be negative"))
	}

	ids, err := s.store.ListActive(ctx)
	if err != nil {
		return nil, wrap(ErrUnavailable, err)
	}
	sort.Strings(ids)

	resp := &types.ListSessionsResponse{
		Total:   len(ids),
		Limit:   limit,
		Offset:  offset,
		Results: []types.SessionView{},
	}
	if offset >= len(ids) {
		return resp, nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	for _, id := range ids[offset:end] {
		sess, err := s.store.Get(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrSessionNotFound) {
				continue
			}
			return nil, wrap(ErrUnavailable, err)
		}
		if !sess.Phase.Active() {
			continue
		}
		resp.Results = append(resp.Results, BuildView(sess, ""))
	}
	return resp, nil
}

// PlayerSession returns the session a player currently belongs to.
func (s *Service) PlayerSession(ctx context.Context, playerID string) (string, error) {
	id, err := s.players.Lookup(ctx, playerID)
	if err != nil {
		if errors.Is(err, store.ErrPlayerNotFound) {
			return "", ErrPlayerNotFound
		}
		return "", wrap(ErrUnavailable, err)
	}
	return id, nil
}

// mutation edits a private copy of the session. Returning errNoop ends the
// operation without a commit.
type mutation func(sess *types.Session, now time.Time) error

// mutate runs fn against the latest record and commits the result with
// compare-and-set, re-reading and retrying up to CommitAttempts times.
// It reports whether a new version was committed.
func (s *Service) mutate(ctx context.Context, op, id string, fn mutation) (*types.Session, bool, error) {
	for attempt := 1; attempt <= s.cfg.CommitAttempts; attempt++ {
		current, err := s.load(ctx, id)
		if err != nil {
			return nil, false, err
		}

		next := current.Clone()
		now := s.now().UTC()
		if err := fn(next, now); err != nil {
			if errors.Is(err, errNoop) {
				return current, false, nil
			}
			return nil, false, err
		}
		next.Version = current.Version + 1
		next.UpdatedAt = now

		ok, err := s.store.CompareAndSet(ctx, id, current.Version, next)
		if err != nil {
			if errors.Is(err, store.ErrSessionNotFound) {
				return nil, false, ErrSessionNotFound
			}
			s.logger.Error("Failed to commit session",
				logger.F("session_id", id), logger.F("op", op), logger.Err(err))
			return nil, false, wrap(ErrUnavailable, err)
		}
		if ok {
			s.afterCommit(ctx, op, current, next)
			return next, true, nil
		}

		s.metrics.Conflict(op)
		s.logger.Debug("Commit conflict, retrying",
			logger.F("session_id", id),
			logger.F("op", op),
			logger.F("attempt", strconv.Itoa(attempt)))
	}
	return nil, false, ErrConcurrentModification
}

// afterCommit runs only for the winning write: broadcast, then re-stamp the
// phase trigger against the new version.
func (s *Service) afterCommit(ctx context.Context, op string, prev, next *types.Session) {
	s.metrics.Commit(op)
	prevPhase := types.Phase("")
	if prev != nil {
		prevPhase = prev.Phase
	}
	if prevPhase != next.Phase {
		s.metrics.Transition(string(prevPhase), string(next.Phase))
		if next.Phase == types.PhaseResolved && next.Outcome != nil {
			s.metrics.Resolved(string(next.Outcome.Kind))
			s.logger.Info("Round resolved",
				logger.F("session_id", next.ID),
				logger.F("outcome", string(next.Outcome.Kind)))
		}
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, prev, next)
	}
	s.schedule(ctx, next)
	if next.Phase != types.PhaseClosed {
		if err := s.players.Refresh(ctx, next.ID, next.PlayerIDs()); err != nil {
			s.logger.Warn("Failed to refresh player claims", logger.F("session_id", next.ID), logger.Err(err))
		}
	}
}

func (s *Service) schedule(ctx context.Context, sess *types.Session) {
	if s.scheduler == nil || !sess.Phase.Timed() || sess.Deadline.IsZero() {
		return
	}
	err := s.scheduler.ScheduleTrigger(ctx, sess.ID, sess.Phase.Next(), sess.Deadline, sess.Version)
	if err != nil {
		s.metrics.ScheduleFailed()
		s.logger.Warn(ErrSchedulingUnavailable.Message,
			logger.F("session_id", sess.ID),
			logger.F("phase", string(sess.Phase)),
			logger.Err(err))
	}
}

// step performs the timed transition out of the current phase.
func (s *Service) step(sess *types.Session, now time.Time) error {
	switch sess.Phase {
	case types.PhaseDiscussion:
		sess.Phase = types.PhaseVoting
		sess.Votes = nil
		sess.Deadline = now.Add(s.cfg.VotingDuration)
	case types.PhaseVoting:
		s.resolveInto(sess, now)
	case types.PhaseResolved:
		if s.cfg.ResultsDuration <= 0 {
			return errNoop
		}
		resetToLobby(sess)
	default:
		return errNoop
	}
	return nil
}

func (s *Service) resolveInto(sess *types.Session, now time.Time) {
	outcome := engine.Resolve(sess)
	sess.Outcome = &outcome
	sess.Phase = types.PhaseResolved
	sess.Deadline = time.Time{}
	if s.cfg.ResultsDuration > 0 {
		sess.Deadline = now.Add(s.cfg.ResultsDuration)
	}
}

func (s *Service) allVoted(sess *types.Session) bool {
	if !s.cfg.EarlyResolve || len(sess.Players) == 0 {
		return false
	}
	for _, p := range sess.Players {
		if _, ok := sess.Votes[p.ID]; !ok {
			return false
		}
	}
	return true
}

// closed releases every player still bound to the session and runs close hooks.
func (s *Service) closed(ctx context.Context, sess *types.Session) {
	for _, p := range sess.Players {
		s.release(ctx, p.ID, sess.ID)
	}
	for _, h := range s.onClose {
		h(ctx, sess.ID)
	}
	s.logger.Info("Session closed", logger.F("session_id", sess.ID))
}

func (s *Service) load(ctx context.Context, id string) (*types.Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, wrap(ErrUnavailable, err)
	}
	return sess, nil
}

func (s *Service) entriesFor(ctx context.Context, category string) ([]types.CatalogEntry, error) {
	entries, err := s.catalog.ListEntries(ctx)
	if err != nil {
		return nil, wrap(ErrUnavailable, err)
	}
	if category != "" {
		entries = catalog.FilterCategory(entries, category)
		if len(entries) == 0 {
			return nil, ErrUnknownCategory
		}
	}
	if len(entries) == 0 {
		return nil, wrap(ErrUnavailable, engine.ErrEmptyCatalog)
	}
	return entries, nil
}

func (s *Service) claim(ctx context.Context, playerID, sessionID string) error {
	if err := s.players.Claim(ctx, playerID, sessionID); err != nil {
		if errors.Is(err, store.ErrPlayerInGame) {
			return ErrPlayerInOtherSession
		}
		return wrap(ErrUnavailable, err)
	}
	return nil
}

// claimFor binds the player to sessionID and reports whether this call made
// the binding. An existing binding to the same session is left alone.
func (s *Service) claimFor(ctx context.Context, playerID, sessionID string) (bool, error) {
	bound, err := s.players.Lookup(ctx, playerID)
	switch {
	case err == nil && bound == sessionID:
		return false, nil
	case err == nil:
		return false, ErrPlayerInOtherSession
	case !errors.Is(err, store.ErrPlayerNotFound):
		return false, wrap(ErrUnavailable, err)
	}
	if err := s.claim(ctx, playerID, sessionID); err != nil {
		return false, err
	}
	return true, nil
}

// releaseUnlessMember drops a claim made for a join that did not commit. A
// concurrent join by the same player may have landed in the meantime, so the
// roster is checked first.
func (s *Service) releaseUnlessMember(ctx context.Context, playerID, sessionID string) {
	if sess, err := s.store.Get(ctx, sessionID); err == nil && sess.HasPlayer(playerID) {
		return
	}
	s.release(ctx, playerID, sessionID)
}

func (s *Service) release(ctx context.Context, playerID, sessionID string) {
	if err := s.players.Release(ctx, playerID, sessionID); err != nil {
		s.logger.Warn("Failed to release player",
			logger.F("player_id", playerID),
			logger.F("session_id", sessionID),
			logger.Err(err))
	}
}

func engineError(err error) error {
	switch {
	case errors.Is(err, engine.ErrInvalidPlayerCount):
		return wrap(ErrInvalidPlayerCount, err)
	case errors.Is(err, engine.ErrNotEnoughRoles):
		return wrap(ErrNotEnoughRoles, err)
	default:
		return wrap(ErrUnavailable, err)
	}
}

func resetToLobby(sess *types.Session) {
	sess.Phase = types.PhaseLobby
	sess.Entry = nil
	sess.Assignment = nil
	sess.SpyID = ""
	sess.Votes = nil
	sess.Outcome = nil
	sess.Deadline = time.Time{}
}

func closeInto(sess *types.Session) {
	sess.Phase = types.PhaseClosed
	sess.Deadline = time.Time{}
}

// forgetPlayer drops a departed player's role, vote and any votes against them.
func forgetPlayer(sess *types.Session, playerID string) {
	delete(sess.Assignment, playerID)
	delete(sess.Votes, playerID)
	for voter, v := range sess.Votes {
		if v.AccusedID == playerID {
			delete(sess.Votes, voter)
		}
	}
}

func historyKey(hostID string) string {
	return "host:" + hostID
}

func displayName(name, playerID string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return playerID
}
