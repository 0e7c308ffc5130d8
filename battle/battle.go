// Package battle holds pending challenges and running battles.
package battle

import (
	"time"

	"github.com/wfunc/petlobby/lobby"
	"github.com/wfunc/petlobby/state"
)

// Challenge is a battle waiting for the opponent's answer. The challenger is
// stored explicitly so that accept never has to guess it from the lobby.
type Challenge struct {
	BattleID       string
	ChallengerConn string
	OpponentConn   string
	ChallengerID   string
	ChallengerName string
	Challenger     lobby.Entry
	Opponent       lobby.Entry
	CreatedAt      time.Time
	TimerID        int64
}

// Involves reports whether connID is one of the two parties.
func (c *Challenge) Involves(connID string) bool {
	return c.ChallengerConn == connID || c.OpponentConn == connID
}

// Other returns the party that is not connID.
func (c *Challenge) Other(connID string) string {
	if c.ChallengerConn == connID {
		return c.OpponentConn
	}
	return c.ChallengerConn
}

// Battle is an accepted challenge. Player1 is the challenger, Player2 the
// accepter, both as they were in the lobby at acceptance time.
type Battle struct {
	ID        string
	Player1   lobby.Entry
	Player2   lobby.Entry
	StartedAt time.Time
	Lifecycle *state.BaseStateMachine
}

func (b *Battle) Phase() state.Phase {
	return b.Lifecycle.Current()
}

// Involves reports whether connID is a participant.
func (b *Battle) Involves(connID string) bool {
	return b.Player1.ConnectionID == connID || b.Player2.ConnectionID == connID
}

// Participants returns both connection ids.
func (b *Battle) Participants() []string {
	return []string{b.Player1.ConnectionID, b.Player2.ConnectionID}
}
