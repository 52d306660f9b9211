package game

import "github.com/spotthespy/game-engine/internal/types"

// BuildView projects a session for one requester. Non-spies see their role
// and the location, the spy sees only that they are the spy, and everyone
// else sees no secrets. An empty playerID yields the public view.
func BuildView(sess *types.Session, playerID string) types.SessionView {
	v := types.SessionView{
		ID:        sess.ID,
		Phase:     sess.Phase,
		Category:  sess.Category,
		Round:     sess.Round,
		Version:   sess.Version,
		Players:   sess.Summaries(),
		VotesCast: len(sess.Votes),
	}
	if !sess.Deadline.IsZero() {
		deadline := sess.Deadline
		v.Deadline = &deadline
	}
	if playerID == "" {
		if sess.Phase == types.PhaseResolved {
			v.Outcome = sess.Outcome
		}
		return v
	}

	if vote, ok := sess.Votes[playerID]; ok {
		v.YourVote = vote.AccusedID
	}
	switch sess.Phase {
	case types.PhaseDiscussion, types.PhaseVoting, types.PhaseResolved:
		if role, ok := sess.Assignment[playerID]; ok && sess.Entry != nil {
			if role == types.SpyMarker {
				v.You = &types.Secret{Spy: true}
			} else {
				v.You = &types.Secret{Role: role, Location: sess.Entry.Location}
			}
		}
	}
	if sess.Phase == types.PhaseResolved {
		v.Outcome = sess.Outcome
	}
	return v
}
