package battle

import (
	"errors"
	"time"

	"github.com/samber/lo"

	"github.com/wfunc/petlobby/lobby"
	"github.com/wfunc/petlobby/state"
)

var (
	ErrUnknownBattle = errors.New("unknown battle")
	ErrDuplicateID   = errors.New("battle id already in use")
)

// Table indexes challenges and battles by battle id.
//
// Table is not safe for concurrent use; the coordinator serialises access.
type Table struct {
	pending map[string]*Challenge
	active  map[string]*Battle
}

func NewTable() *Table {
	return &Table{
		pending: make(map[string]*Challenge),
		active:  make(map[string]*Battle),
	}
}

// AddChallenge records a new pending challenge.
func (t *Table) AddChallenge(c *Challenge) error {
	if t.inUse(c.BattleID) {
		return ErrDuplicateID
	}
	t.pending[c.BattleID] = c
	return nil
}

func (t *Table) inUse(id string) bool {
	_, pending := t.pending[id]
	_, active := t.active[id]
	return pending || active
}

// Challenge returns the pending challenge for battleID.
func (t *Table) Challenge(battleID string) (*Challenge, bool) {
	c, ok := t.pending[battleID]
	return c, ok
}

// DiscardChallenge removes a pending challenge.
func (t *Table) DiscardChallenge(battleID string) (*Challenge, bool) {
	c, ok := t.pending[battleID]
	if ok {
		delete(t.pending, battleID)
	}
	return c, ok
}

// Activate turns a pending challenge into an active battle between the
// challenger and accepter entries.
func (t *Table) Activate(battleID string, challenger, accepter lobby.Entry, now time.Time) (*Battle, error) {
	if _, ok := t.pending[battleID]; !ok {
		return nil, ErrUnknownBattle
	}

	lifecycle := state.NewBattleLifecycle()
	if err := lifecycle.ChangeState(state.PhaseActive); err != nil {
		return nil, err
	}
	b := &Battle{
		ID:        battleID,
		Player1:   challenger,
		Player2:   accepter,
		StartedAt: now,
		Lifecycle: lifecycle,
	}
	delete(t.pending, battleID)
	t.active[battleID] = b
	return b, nil
}

// Battle returns the active battle for battleID.
func (t *Table) Battle(battleID string) (*Battle, bool) {
	b, ok := t.active[battleID]
	return b, ok
}

// End moves the battle to ended and removes it from the table.
func (t *Table) End(battleID string) (*Battle, bool) {
	b, ok := t.active[battleID]
	if !ok {
		return nil, false
	}
	_ = b.Lifecycle.ChangeState(state.PhaseEnded)
	delete(t.active, battleID)
	return b, true
}

// ChallengesInvolving returns every pending challenge connID is a party to.
func (t *Table) ChallengesInvolving(connID string) []*Challenge {
	return lo.Filter(lo.Values(t.pending), func(c *Challenge, _ int) bool {
		return c.Involves(connID)
	})
}

// BattlesInvolving returns every active battle connID participates in.
func (t *Table) BattlesInvolving(connID string) []*Battle {
	return lo.Filter(lo.Values(t.active), func(b *Battle, _ int) bool {
		return b.Involves(connID)
	})
}

func (t *Table) PendingCount() int { return len(t.pending) }
func (t *Table) ActiveCount() int  { return len(t.active) }
