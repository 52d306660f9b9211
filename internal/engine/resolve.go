package engine

import (
	"github.com/spotthespy/game-engine/internal/types"
)

// Resolve tallies the votes of a session and decides the round.
//
// The player with a strict plurality is the accused. A tie at the top, or no
// votes at all, lets the spy escape. Players who did not vote are ignored.
// Resolve is pure: it reads the session and returns the outcome.
func Resolve(s *types.Session) types.Outcome {
	tally := make(map[string]int)
	for _, v := range s.Votes {
		tally[v.AccusedID]++
	}

	var (
		top      string
		topCount int
		tie      bool
	)
	for accused, count := range tally {
		switch {
		case count > topCount:
			top, topCount, tie = accused, count, false
		case count == topCount:
			tie = true
		}
	}

	out := types.Outcome{
		Kind:  types.OutcomeSpyEscaped,
		SpyID: s.SpyID,
		Tally: tally,
		Tie:   tie,
	}
	if s.Entry != nil {
		out.Location = s.Entry.Location
	}
	if topCount == 0 || tie {
		return out
	}

	out.AccusedID = top
	if top == s.SpyID {
		out.Kind = types.OutcomeSpyCaught
	}
	return out
}
