package engine

import (
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/spotthespy/game-engine/internal/types"
)

// DefaultRole is given to non-spies when a catalog entry has no roles at all.
const DefaultRole = "civilian"

var (
	ErrInvalidPlayerCount = errors.New("invalid player count")
	ErrNotEnoughRoles     = errors.New("catalog entry has fewer roles than players")
	ErrEmptyCatalog       = errors.New("catalog is empty")
)

// Rand is the randomness source used for spy and role selection.
type Rand interface {
	IntN(n int) int
}

// NewRand returns a ChaCha8 generator seeded from crypto/rand.
func NewRand() Rand {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		// crypto/rand failing is not recoverable in any useful way; fall back
		// to the runtime-seeded global source.
		return globalRand{}
	}
	return rand.New(rand.NewChaCha8(seed))
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// Assignment is the immutable result of dealing a round.
type Assignment struct {
	Entry types.CatalogEntry
	SpyID string
	// Roles maps every player to a role, or to types.SpyMarker for the spy.
	Roles map[string]string
}

// Generator deals spy and roles for a round.
type Generator struct {
	MinPlayers int
	MaxPlayers int
	// ReuseRoles cycles the role list when there are more non-spies than roles.
	// When false a short role list is an error.
	ReuseRoles bool
}

// Assign picks one spy uniformly at random and hands every other player a role
// from entry. It has no side effects.
func (g Generator) Assign(entry types.CatalogEntry, players []string, rnd Rand) (Assignment, error) {
	n := len(players)
	if n < g.MinPlayers || n > g.MaxPlayers {
		return Assignment{}, fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidPlayerCount, n, g.MinPlayers, g.MaxPlayers)
	}
	if !g.ReuseRoles && len(entry.Roles) > 0 && len(entry.Roles) < n-1 {
		return Assignment{}, fmt.Errorf("%w: %d roles for %d players", ErrNotEnoughRoles, len(entry.Roles), n-1)
	}
	if rnd == nil {
		rnd = NewRand()
	}

	spy := players[rnd.IntN(n)]

	roles := shuffled(entry.Roles, rnd)
	out := make(map[string]string, n)
	i := 0
	for _, id := range players {
		if id == spy {
			out[id] = types.SpyMarker
			continue
		}
		if len(roles) == 0 {
			out[id] = DefaultRole
		} else {
			out[id] = roles[i%len(roles)]
		}
		i++
	}

	e := entry
	e.Roles = append([]string(nil), entry.Roles...)
	return Assignment{Entry: e, SpyID: spy, Roles: out}, nil
}

// PickEntry chooses an entry uniformly among those whose location is not in
// recent. When every entry was played recently the whole catalog is eligible.
func PickEntry(entries []types.CatalogEntry, recent []string, rnd Rand) (types.CatalogEntry, error) {
	if len(entries) == 0 {
		return types.CatalogEntry{}, ErrEmptyCatalog
	}
	if rnd == nil {
		rnd = NewRand()
	}

	seen := make(map[string]struct{}, len(recent))
	for _, loc := range recent {
		seen[loc] = struct{}{}
	}
	fresh := make([]types.CatalogEntry, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.Location]; !ok {
			fresh = append(fresh, e)
		}
	}
	if len(fresh) == 0 {
		fresh = entries
	}
	return fresh[rnd.IntN(len(fresh))], nil
}

func shuffled(in []string, rnd Rand) []string {
	out := append([]string(nil), in...)
	for i := len(out) - 1; i > 0; i-- {
		j := rnd.IntN(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// SeededRand returns a deterministic generator for reproducible deals.
func SeededRand(seed uint64) Rand {
	var b [32]byte
	binary.LittleEndian.PutUint64(b[:8], seed)
	return rand.New(rand.NewChaCha8(b))
}
