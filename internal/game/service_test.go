package game

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spotthespy/game-engine/internal/catalog"
	"github.com/spotthespy/game-engine/internal/config"
	"github.com/spotthespy/game-engine/internal/engine"
	"github.com/spotthespy/game-engine/internal/store"
	"github.com/spotthespy/game-engine/internal/types"
	"github.com/spotthespy/game-engine/pkg/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingScheduler struct {
	mu       sync.Mutex
	triggers []types.Trigger
	err      error
}

func (r *recordingScheduler) ScheduleTrigger(ctx context.Context, sessionID string, target types.Phase, fireAt time.Time, version int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.triggers = append(r.triggers, types.Trigger{SessionID: sessionID, TargetPhase: target, FireAt: fireAt, Version: version})
	return nil
}

func (r *recordingScheduler) last(t *testing.T) types.Trigger {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.triggers, "expected a scheduled trigger")
	return r.triggers[len(r.triggers)-1]
}

type recordingNotifier struct {
	mu       sync.Mutex
	versions []int64
}

func (r *recordingNotifier) Notify(ctx context.Context, prev, next *types.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.versions = append(r.versions, next.Version)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.versions)
}

// conflictStore loses the next n compare-and-set calls; n < 0 loses all of them.
type conflictStore struct {
	store.Store
	n int
}

func (c *conflictStore) CompareAndSet(ctx context.Context, id string, expectedVersion int64, next *types.Session) (bool, error) {
	if c.n != 0 {
		if c.n > 0 {
			c.n--
		}
		return false, nil
	}
	return c.Store.CompareAndSet(ctx, id, expectedVersion, next)
}

var testEntries = []types.CatalogEntry{
	{Location: "Submarine", Roles: []string{"Captain", "Cook", "Sonar operator"}, Category: catalog.CategoryPlaces},
	{Location: "Bakery", Roles: []string{"Baker", "Customer"}, Category: catalog.CategoryFood},
}

type harness struct {
	svc    *Service
	mem    *store.MemoryStore
	conf   *conflictStore
	sched  *recordingScheduler
	notes  *recordingNotifier
	clock  *fakeClock
	closed []string
}

func testConfig() config.GameConfig {
	return config.GameConfig{
		MinPlayers:         3,
		MaxPlayers:         5,
		DiscussionDuration: 5 * time.Minute,
		VotingDuration:     time.Minute,
		UniqueWindow:       30,
		ReuseRoles:         true,
		AbortOnSpyLeave:    true,
		EarlyResolve:       true,
		CommitAttempts:     3,
	}
}

func newHarness(t *testing.T, mods ...func(*config.GameConfig)) *harness {
	t.Helper()
	cfg := testConfig()
	for _, m := range mods {
		m(&cfg)
	}

	h := &harness{
		mem:   store.NewMemoryStore(store.Options{}),
		sched: &recordingScheduler{},
		notes: &recordingNotifier{},
		clock: &fakeClock{now: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)},
	}
	h.conf = &conflictStore{Store: h.mem}

	seq := 0
	h.svc = NewService(Deps{
		Store:     h.conf,
		Devices:   h.mem,
		Players:   h.mem,
		History:   h.mem,
		Catalog:   catalog.NewStatic(testEntries),
		Scheduler: h.sched,
		Notifier:  h.notes,
	}, cfg, logger.Discard(),
		WithClock(h.clock.Now),
		WithRand(func() engine.Rand { return engine.SeededRand(42) }),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("s%d", seq)
		}),
		WithCloseHook(func(ctx context.Context, id string) { h.closed = append(h.closed, id) }),
	)
	return h
}

// lobby creates a session hosted by ids[0] that all ids joined.
func (h *harness) lobby(t *testing.T, ids ...string) *types.Session {
	t.Helper()
	ctx := context.Background()
	sess, err := h.svc.Create(ctx, types.CreateSessionRequest{PlayerID: ids[0], Name: "Host"})
	require.NoError(t, err)
	for _, id := range ids[1:] {
		sess, err = h.svc.Join(ctx, sess.ID, id, "")
		require.NoError(t, err)
	}
	return sess
}

func (h *harness) started(t *testing.T, ids ...string) *types.Session {
	t.Helper()
	sess := h.lobby(t, ids...)
	sess, err := h.svc.Start(context.Background(), sess.ID, ids[0])
	require.NoError(t, err)
	return sess
}

func (h *harness) voting(t *testing.T, ids ...string) *types.Session {
	t.Helper()
	sess := h.started(t, ids...)
	sess, advanced, err := h.svc.Advance(context.Background(), sess.ID, sess.Version)
	require.NoError(t, err)
	require.True(t, advanced)
	require.Equal(t, types.PhaseVoting, sess.Phase)
	return sess
}

func nonSpy(sess *types.Session) string {
	for _, id := range sess.PlayerIDs() {
		if id != sess.SpyID {
			return id
		}
	}
	return ""
}

func TestCreate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess, err := h.svc.Create(ctx, types.CreateSessionRequest{PlayerID: "p1", Name: " Ann "})
	require.NoError(t, err)

	assert.Equal(t, "s1", sess.ID)
	assert.Equal(t, types.PhaseLobby, sess.Phase)
	assert.Equal(t, int64(1), sess.Version)
	require.Len(t, sess.Players, 1)
	assert.Equal(t, "Ann", sess.Players[0].Name)
	assert.True(t, sess.IsHost("p1"))
	assert.Equal(t, 1, h.notes.count())

	bound, err := h.svc.PlayerSession(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "s1", bound)

	stored, err := h.mem.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, sess, stored)
}

func TestCreate_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Create(ctx, types.CreateSessionRequest{PlayerID: "  "})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = h.svc.Create(ctx, types.CreateSessionRequest{PlayerID: "p1", Category: "celebrities"})
	assert.ErrorIs(t, err, ErrUnknownCategory)

	_, err = h.svc.Create(ctx, types.CreateSessionRequest{PlayerID: "p1", Category: "FOOD"})
	require.NoError(t, err)

	_, err = h.svc.Create(ctx, types.CreateSessionRequest{PlayerID: "p1"})
	assert.ErrorIs(t, err, ErrPlayerInOtherSession)
}

func TestJoin_Guards(t *testing.T) {
	h := newHarness(t, func(c *config.GameConfig) { c.MaxPlayers = 3 })
	ctx := context.Background()

	sess := h.lobby(t, "p1", "p2", "p3")

	_, err := h.svc.Join(ctx, sess.ID, "p4", "")
	assert.ErrorIs(t, err, ErrSessionFull)
	_, err = h.svc.PlayerSession(ctx, "p4")
	assert.ErrorIs(t, err, ErrPlayerNotFound, "a rejected join must release the claim")

	_, err = h.svc.Join(ctx, sess.ID, "p2", "")
	assert.ErrorIs(t, err, ErrAlreadyInSession)
	bound, err := h.svc.PlayerSession(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, bound, "a duplicate join must keep the existing claim")

	_, err = h.svc.Join(ctx, "missing", "p5", "")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, KindNotFound, KindOf(err))

	other := h.lobby(t, "q1")
	_, err = h.svc.Join(ctx, other.ID, "p1", "")
	assert.ErrorIs(t, err, ErrPlayerInOtherSession)

	_, err = h.svc.Start(ctx, sess.ID, "p1")
	require.NoError(t, err)
	_, err = h.svc.Leave(ctx, other.ID, "q1")
	require.NoError(t, err)
	_, err = h.svc.Join(ctx, sess.ID, "q1", "")
	assert.ErrorIs(t, err, ErrSessionNotJoinable)
}

func TestJoin_MemberRejoinKeepsClaim(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess := h.started(t, "p1", "p2", "p3")

	_, err := h.svc.Join(ctx, sess.ID, "p2", "")
	assert.ErrorIs(t, err, ErrAlreadyInSession)
	bound, err := h.svc.PlayerSession(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, bound)

	_, err = h.svc.Create(ctx, types.CreateSessionRequest{PlayerID: "p2"})
	assert.ErrorIs(t, err, ErrPlayerInOtherSession)

	_, err = h.svc.Join(ctx, sess.ID, "p4", "")
	assert.ErrorIs(t, err, ErrSessionNotJoinable)
	_, err = h.svc.PlayerSession(ctx, "p4")
	assert.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestJoinLeave_PlayerSetAndHostInvariant(t *testing.T) {
	h := newHarness(t, func(c *config.GameConfig) { c.MaxPlayers = 8 })
	ctx := context.Background()

	sess := h.lobby(t, "a")
	want := map[string]bool{"a": true}

	ops := []struct {
		join bool
		id   string
	}{
		{true, "b"}, {true, "c"}, {false, "a"}, {true, "d"}, {false, "c"},
		{true, "e"}, {false, "b"}, {true, "a"}, {false, "e"},
	}

	var err error
	for _, op := range ops {
		if op.join {
			sess, err = h.svc.Join(ctx, sess.ID, op.id, "")
			want[op.id] = true
		} else {
			sess, err = h.svc.Leave(ctx, sess.ID, op.id)
			delete(want, op.id)
		}
		require.NoError(t, err)

		got := make(map[string]bool)
		hosts := 0
		for _, p := range sess.Players {
			got[p.ID] = true
			if p.Host {
				hosts++
			}
		}
		assert.Equal(t, want, got)
		assert.Equal(t, 1, hosts, "exactly one host after %+v", op)
	}
}

func TestLeave_HostPassesToNextJoined(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess := h.lobby(t, "p1", "p2", "p3")
	sess, err := h.svc.Leave(ctx, sess.ID, "p1")
	require.NoError(t, err)
	assert.True(t, sess.IsHost("p2"))

	_, err = h.svc.Leave(ctx, sess.ID, "p1")
	assert.ErrorIs(t, err, ErrNotInSession)
}

func TestLeave_LastPlayerClosesSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess := h.lobby(t, "p1", "p2")
	_, err := h.svc.Leave(ctx, sess.ID, "p2")
	require.NoError(t, err)
	sess, err = h.svc.Leave(ctx, sess.ID, "p1")
	require.NoError(t, err)

	assert.Equal(t, types.PhaseClosed, sess.Phase)
	assert.Equal(t, []string{sess.ID}, h.closed)
	_, err = h.svc.PlayerSession(ctx, "p1")
	assert.ErrorIs(t, err, ErrPlayerNotFound)

	active, err := h.mem.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestLeave_SpyAbortsRound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess := h.started(t, "p1", "p2", "p3", "p4")
	sess, err := h.svc.Leave(ctx, sess.ID, sess.SpyID)
	require.NoError(t, err)

	assert.Equal(t, types.PhaseLobby, sess.Phase)
	assert.Empty(t, sess.SpyID)
	assert.Nil(t, sess.Assignment)
	assert.Nil(t, sess.Entry)
	assert.True(t, sess.Deadline.IsZero())
	assert.Len(t, sess.Players, 3)
}

func TestLeave_SpyWithoutAbortResolves(t *testing.T) {
	h := newHarness(t, func(c *config.GameConfig) { c.AbortOnSpyLeave = false })
	ctx := context.Background()

	sess := h.started(t, "p1", "p2", "p3", "p4")
	spy := sess.SpyID
	sess, err := h.svc.Leave(ctx, sess.ID, spy)
	require.NoError(t, err)

	assert.Equal(t, types.PhaseResolved, sess.Phase)
	require.NotNil(t, sess.Outcome)
	assert.Equal(t, types.OutcomeSpyEscaped, sess.Outcome.Kind)
	assert.Equal(t, spy, sess.Outcome.SpyID)
}

func TestLeave_NonSpyDuringVoting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess := h.voting(t, "p1", "p2", "p3", "p4")
	leaver := nonSpy(sess)
	var others []string
	for _, id := range sess.PlayerIDs() {
		if id != leaver {
			others = append(others, id)
		}
	}

	_, err := h.svc.CastVote(ctx, sess.ID, others[0], leaver)
	require.NoError(t, err)
	_, err = h.svc.CastVote(ctx, sess.ID, leaver, others[0])
	require.NoError(t, err)

	sess, err = h.svc.Leave(ctx, sess.ID, leaver)
	require.NoError(t, err)

	assert.Equal(t, types.PhaseVoting, sess.Phase)
	assert.Empty(t, sess.Votes, "votes by and against the leaver are dropped")
	assert.NotContains(t, sess.Assignment, leaver)
	assert.Len(t, sess.Assignment, 3)

	// Dropping below the minimum aborts the round.
	sess, err = h.svc.Leave(ctx, sess.ID, nonSpy(sess))
	require.NoError(t, err)
	assert.Equal(t, types.PhaseLobby, sess.Phase)
}

func TestStart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	lobby := h.lobby(t, "p1", "p2")
	_, err := h.svc.Start(ctx, lobby.ID, "p1")
	assert.ErrorIs(t, err, ErrInvalidPlayerCount)

	lobby, err = h.svc.Join(ctx, lobby.ID, "p3", "")
	require.NoError(t, err)

	_, err = h.svc.Start(ctx, lobby.ID, "p2")
	assert.ErrorIs(t, err, ErrNotHost)
	assert.Equal(t, KindForbidden, KindOf(err))

	sess, err := h.svc.Start(ctx, lobby.ID, "p1")
	require.NoError(t, err)

	assert.Equal(t, types.PhaseDiscussion, sess.Phase)
	assert.Equal(t, 1, sess.Round)
	assert.Equal(t, lobby.Version+1, sess.Version)
	assert.Equal(t, h.clock.Now().Add(5*time.Minute), sess.Deadline)
	require.NotNil(t, sess.Entry)

	spies := 0
	for _, role := range sess.Assignment {
		if role == types.SpyMarker {
			spies++
		}
	}
	assert.Equal(t, 1, spies)
	assert.ElementsMatch(t, sess.PlayerIDs(), keys(sess.Assignment))

	trig := h.sched.last(t)
	assert.Equal(t, types.Trigger{SessionID: sess.ID, TargetPhase: types.PhaseVoting, FireAt: sess.Deadline, Version: sess.Version}, trig)

	_, err = h.svc.Start(ctx, lobby.ID, "p1")
	assert.ErrorIs(t, err, ErrWrongPhase)
}

func TestStart_NotEnoughRolesWhenReuseDisabled(t *testing.T) {
	h := newHarness(t, func(c *config.GameConfig) { c.ReuseRoles = false })
	ctx := context.Background()

	sess, err := h.svc.Create(ctx, types.CreateSessionRequest{PlayerID: "p1", Category: catalog.CategoryFood})
	require.NoError(t, err)
	for _, id := range []string{"p2", "p3", "p4"} {
		_, err = h.svc.Join(ctx, sess.ID, id, "")
		require.NoError(t, err)
	}

	_, err = h.svc.Start(ctx, sess.ID, "p1")
	assert.ErrorIs(t, err, ErrNotEnoughRoles)
}

func TestStart_AvoidsRecentLocations(t *testing.T) {
	h := newHarness(t, func(c *config.GameConfig) { c.EarlyResolve = false })
	ctx := context.Background()

	sess := h.started(t, "p1", "p2", "p3")
	first := sess.Entry.Location

	sess, err := h.svc.AdvanceNow(ctx, sess.ID, "p1")
	require.NoError(t, err)
	sess, err = h.svc.AdvanceNow(ctx, sess.ID, "p1")
	require.NoError(t, err)
	require.Equal(t, types.PhaseResolved, sess.Phase)
	_, err = h.svc.Restart(ctx, sess.ID, "p1")
	require.NoError(t, err)

	sess, err = h.svc.Start(ctx, sess.ID, "p1")
	require.NoError(t, err)
	assert.NotEqual(t, first, sess.Entry.Location)
	assert.Equal(t, 2, sess.Round)
}

func TestAdvance_StaleVersionIsNoop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess := h.started(t, "p1", "p2", "p3")
	before, err := h.mem.Get(ctx, sess.ID)
	require.NoError(t, err)
	notified := h.notes.count()

	for _, v := range []int64{sess.Version - 1, sess.Version + 1, 0} {
		got, advanced, err := h.svc.Advance(ctx, sess.ID, v)
		require.NoError(t, err)
		assert.False(t, advanced)
		assert.Equal(t, before, got)
	}

	after, err := h.mem.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, notified, h.notes.count(), "no-op advances must not broadcast")
}

func TestAdvance_DuplicateDelivery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess := h.started(t, "p1", "p2", "p3")
	trig := h.sched.last(t)

	first, advanced, err := h.svc.Advance(ctx, trig.SessionID, trig.Version)
	require.NoError(t, err)
	require.True(t, advanced)
	assert.Equal(t, types.PhaseVoting, first.Phase)

	second, advanced, err := h.svc.Advance(ctx, trig.SessionID, trig.Version)
	require.NoError(t, err)
	assert.False(t, advanced)
	assert.Equal(t, types.PhaseVoting, second.Phase)
	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, sess.Version+1, second.Version)
}

func TestConcreteRound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess := h.started(t, "P1", "P2", "P3")

	views := make(map[string]*types.SessionView)
	for _, id := range sess.PlayerIDs() {
		v, err := h.svc.View(ctx, sess.ID, id)
		require.NoError(t, err)
		require.NotNil(t, v.You)
		views[id] = v
	}
	var locations []string
	spies := 0
	for _, v := range views {
		if v.You.Spy {
			spies++
			assert.Empty(t, v.You.Location, "the spy must never see the location")
			continue
		}
		locations = append(locations, v.You.Location)
	}
	assert.Equal(t, 1, spies)
	require.Len(t, locations, 2)
	assert.Equal(t, locations[0], locations[1])
	assert.NotEmpty(t, locations[0])

	// Discussion time elapses and the scheduled trigger fires.
	h.clock.Add(5 * time.Minute)
	trig := h.sched.last(t)
	assert.Equal(t, types.PhaseVoting, trig.TargetPhase)
	sess, advanced, err := h.svc.Advance(ctx, trig.SessionID, trig.Version)
	require.NoError(t, err)
	require.True(t, advanced)
	require.Equal(t, types.PhaseVoting, sess.Phase)
	assert.Equal(t, h.clock.Now().Add(time.Minute), sess.Deadline)

	for _, v := range [][2]string{{"P1", "P2"}, {"P2", "P3"}, {"P3", "P2"}} {
		sess, err = h.svc.CastVote(ctx, sess.ID, v[0], v[1])
		require.NoError(t, err)
	}

	require.Equal(t, types.PhaseResolved, sess.Phase)
	require.NotNil(t, sess.Outcome)
	assert.Equal(t, map[string]int{"P2": 2, "P3": 1}, sess.Outcome.Tally)
	assert.Equal(t, sess.SpyID, sess.Outcome.SpyID)
	assert.Equal(t, sess.Entry.Location, sess.Outcome.Location)
	if sess.SpyID == "P2" {
		assert.Equal(t, types.OutcomeSpyCaught, sess.Outcome.Kind)
	} else {
		assert.Equal(t, types.OutcomeSpyEscaped, sess.Outcome.Kind)
	}

	stored, err := h.mem.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess, stored)
}

func TestCastVote(t *testing.T) {
	h := newHarness(t, func(c *config.GameConfig) { c.EarlyResolve = false })
	ctx := context.Background()

	lobby := h.lobby(t, "p1", "p2", "p3")
	_, err := h.svc.CastVote(ctx, lobby.ID, "p1", "p2")
	assert.ErrorIs(t, err, ErrWrongPhase)

	sess, err := h.svc.Start(ctx, lobby.ID, "p1")
	require.NoError(t, err)
	sess, _, err = h.svc.Advance(ctx, sess.ID, sess.Version)
	require.NoError(t, err)

	tests := []struct {
		name    string
		voter   string
		accused string
		wantErr error
	}{
		{name: "outsider", voter: "zz", accused: "p2", wantErr: ErrNotInSession},
		{name: "unknown accused", voter: "p1", accused: "zz", wantErr: ErrUnknownAccused},
		{name: "missing accused", voter: "p1", accused: "", wantErr: ErrInvalidRequest},
		{name: "vote", voter: "p1", accused: "p2"},
		{name: "overwrite", voter: "p1", accused: "p3"},
		{name: "self vote", voter: "p2", accused: "p2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.CastVote(ctx, sess.ID, tt.voter, tt.accused)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}

	sess, err = h.svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "p3", sess.Votes["p1"].AccusedID)
	assert.Equal(t, "p2", sess.Votes["p2"].AccusedID)

	// Repeating a vote commits nothing.
	again, err := h.svc.CastVote(ctx, sess.ID, "p1", "p3")
	require.NoError(t, err)
	assert.Equal(t, sess.Version, again.Version)

	// Every commit in a timed phase re-stamps the timeout trigger.
	trig := h.sched.last(t)
	assert.Equal(t, sess.Version, trig.Version)
	assert.Equal(t, types.PhaseResolved, trig.TargetPhase)
	assert.Equal(t, sess.Deadline, trig.FireAt)

	// All voted, but early resolve is off.
	sess, err = h.svc.CastVote(ctx, sess.ID, "p3", "p1")
	require.NoError(t, err)
	assert.Equal(t, types.PhaseVoting, sess.Phase)

	sess, advanced, err := h.svc.Advance(ctx, sess.ID, sess.Version)
	require.NoError(t, err)
	require.True(t, advanced)
	assert.Equal(t, types.PhaseResolved, sess.Phase)
	assert.True(t, sess.Outcome.Tie)
	assert.Equal(t, types.OutcomeSpyEscaped, sess.Outcome.Kind)
}

func TestResults_AutoRestart(t *testing.T) {
	h := newHarness(t, func(c *config.GameConfig) { c.ResultsDuration = 10 * time.Second })
	ctx := context.Background()

	sess := h.voting(t, "p1", "p2", "p3")
	for _, id := range sess.PlayerIDs() {
		sess, _ = h.svc.CastVote(ctx, sess.ID, id, "p1")
	}
	require.Equal(t, types.PhaseResolved, sess.Phase)
	assert.Equal(t, h.clock.Now().Add(10*time.Second), sess.Deadline)

	trig := h.sched.last(t)
	assert.Equal(t, types.PhaseLobby, trig.TargetPhase)

	sess, advanced, err := h.svc.Advance(ctx, trig.SessionID, trig.Version)
	require.NoError(t, err)
	require.True(t, advanced)
	assert.Equal(t, types.PhaseLobby, sess.Phase)
	assert.Len(t, sess.Players, 3)
	assert.Nil(t, sess.Outcome)
}

func TestResults_WaitForHostWithoutTimer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess := h.voting(t, "p1", "p2", "p3")
	sess, err := h.svc.AdvanceNow(ctx, sess.ID, "p1")
	require.NoError(t, err)
	require.Equal(t, types.PhaseResolved, sess.Phase)
	assert.True(t, sess.Deadline.IsZero())

	_, advanced, err := h.svc.Advance(ctx, sess.ID, sess.Version)
	require.NoError(t, err)
	assert.False(t, advanced)
}

func TestRestartAndClose(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess := h.started(t, "p1", "p2", "p3")

	_, err := h.svc.Restart(ctx, sess.ID, "p1")
	assert.ErrorIs(t, err, ErrWrongPhase)
	_, err = h.svc.Close(ctx, sess.ID, "p1")
	assert.ErrorIs(t, err, ErrWrongPhase)
	_, err = h.svc.AdvanceNow(ctx, sess.ID, "p2")
	assert.ErrorIs(t, err, ErrNotHost)

	sess, err = h.svc.AdvanceNow(ctx, sess.ID, "p1")
	require.NoError(t, err)
	sess, err = h.svc.AdvanceNow(ctx, sess.ID, "p1")
	require.NoError(t, err)
	require.Equal(t, types.PhaseResolved, sess.Phase)

	_, err = h.svc.Restart(ctx, sess.ID, "p3")
	assert.ErrorIs(t, err, ErrNotHost)

	sess, err = h.svc.Restart(ctx, sess.ID, "p1")
	require.NoError(t, err)
	assert.Equal(t, types.PhaseLobby, sess.Phase)
	assert.Equal(t, []string{"p1", "p2", "p3"}, sess.PlayerIDs())

	sess, err = h.svc.Close(ctx, sess.ID, "p1")
	require.NoError(t, err)
	assert.Equal(t, types.PhaseClosed, sess.Phase)
	assert.Equal(t, []string{sess.ID}, h.closed)

	for _, id := range []string{"p1", "p2", "p3"} {
		_, err := h.svc.PlayerSession(ctx, id)
		assert.ErrorIs(t, err, ErrPlayerNotFound)
	}

	_, err = h.svc.Join(ctx, sess.ID, "p4", "")
	assert.ErrorIs(t, err, ErrSessionNotJoinable)
	_, err = h.svc.Leave(ctx, sess.ID, "p1")
	assert.ErrorIs(t, err, ErrWrongPhase)
}

func TestMutate_RetriesOnConflict(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess := h.lobby(t, "p1", "p2")
	notified := h.notes.count()

	h.conf.n = 2
	next, err := h.svc.Join(ctx, sess.ID, "p3", "")
	require.NoError(t, err)
	assert.Equal(t, sess.Version+1, next.Version)
	assert.Equal(t, notified+1, h.notes.count(), "only the winning commit broadcasts")
}

func TestMutate_ExhaustedRetries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess := h.lobby(t, "p1", "p2")
	notified := h.notes.count()

	h.conf.n = -1
	_, err := h.svc.Join(ctx, sess.ID, "p3", "")
	assert.ErrorIs(t, err, ErrConcurrentModification)
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, notified, h.notes.count())

	_, err = h.svc.PlayerSession(ctx, "p3")
	assert.ErrorIs(t, err, ErrPlayerNotFound)

	h.conf.n = 0
	stored, err := h.svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess, stored)
}

func TestConcurrentVotes(t *testing.T) {
	h := newHarness(t, func(c *config.GameConfig) {
		c.MaxPlayers = 5
		c.CommitAttempts = 50
		c.EarlyResolve = false
	})
	ctx := context.Background()

	ids := []string{"p1", "p2", "p3", "p4", "p5"}
	sess := h.voting(t, ids...)

	var wg sync.WaitGroup
	errs := make(chan error, len(ids))
	for _, id := range ids {
		wg.Add(1)
		go func(voter string) {
			defer wg.Done()
			_, err := h.svc.CastVote(ctx, sess.ID, voter, "p1")
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	final, err := h.svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, final.Votes, len(ids))
	assert.Equal(t, sess.Version+int64(len(ids)), final.Version)
}

func TestSetPresence(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess := h.lobby(t, "p1", "p2")

	next, err := h.svc.SetPresence(ctx, sess.ID, "p2", false)
	require.NoError(t, err)
	assert.False(t, next.Players[1].Connected)
	assert.Equal(t, sess.Version+1, next.Version)

	same, err := h.svc.SetPresence(ctx, sess.ID, "p2", false)
	require.NoError(t, err)
	assert.Equal(t, next.Version, same.Version)

	_, err = h.svc.SetPresence(ctx, sess.ID, "zz", true)
	assert.ErrorIs(t, err, ErrNotInSession)
}

func TestCloseIfAbandoned(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess := h.lobby(t, "p1", "p2")
	cutoff := h.clock.Now().Add(time.Minute)

	closed, err := h.svc.CloseIfAbandoned(ctx, sess.ID, cutoff)
	require.NoError(t, err)
	assert.False(t, closed, "connected players keep the session alive")

	_, err = h.svc.SetPresence(ctx, sess.ID, "p1", false)
	require.NoError(t, err)
	_, err = h.svc.SetPresence(ctx, sess.ID, "p2", false)
	require.NoError(t, err)

	closed, err = h.svc.CloseIfAbandoned(ctx, sess.ID, h.clock.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, closed, "recently updated sessions are kept")

	closed, err = h.svc.CloseIfAbandoned(ctx, sess.ID, cutoff)
	require.NoError(t, err)
	assert.True(t, closed)
	assert.Equal(t, []string{sess.ID}, h.closed)

	closed, err = h.svc.CloseIfAbandoned(ctx, sess.ID, cutoff)
	require.NoError(t, err)
	assert.False(t, closed)
}

func TestScheduleFailureDoesNotFailOperation(t *testing.T) {
	h := newHarness(t)
	h.sched.err = errors.New("queue down")

	sess := h.started(t, "p1", "p2", "p3")
	assert.Equal(t, types.PhaseDiscussion, sess.Phase)
}

func TestView(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess := h.started(t, "p1", "p2", "p3")

	outsider, err := h.svc.View(ctx, sess.ID, "zz")
	require.NoError(t, err)
	assert.Nil(t, outsider.You)
	assert.Nil(t, outsider.Outcome)
	require.NotNil(t, outsider.Deadline)

	spy, err := h.svc.View(ctx, sess.ID, sess.SpyID)
	require.NoError(t, err)
	assert.Equal(t, &types.Secret{Spy: true}, spy.You)

	civ, err := h.svc.View(ctx, sess.ID, nonSpy(sess))
	require.NoError(t, err)
	assert.Equal(t, sess.Entry.Location, civ.You.Location)
	assert.NotEmpty(t, civ.You.Role)

	_, err = h.svc.View(ctx, "missing", "p1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestList(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		h.lobby(t, fmt.Sprintf("host%d", i))
	}
	closing := h.lobby(t, "leaver")
	_, err := h.svc.Leave(ctx, closing.ID, "leaver")
	require.NoError(t, err)

	page, err := h.svc.List(ctx, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 2, page.Limit)
	require.Len(t, page.Results, 2)
	assert.Equal(t, "s2", page.Results[0].ID)
	assert.Equal(t, "s3", page.Results[1].ID)

	empty, err := h.svc.List(ctx, 10, 50)
	require.NoError(t, err)
	assert.Empty(t, empty.Results)

	_, err = h.svc.List(ctx, 10, -1)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
