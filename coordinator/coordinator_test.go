package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/petlobby/lobby"
	"github.com/wfunc/petlobby/models"
	"github.com/wfunc/petlobby/network"
	"github.com/wfunc/petlobby/network/networktest"
	"github.com/wfunc/petlobby/room"
	"github.com/wfunc/petlobby/services"
	"github.com/wfunc/petlobby/session"
)

type entityMap map[string]*models.Entity

func (m entityMap) FindEntity(_ context.Context, id string) (*models.Entity, error) {
	if e, ok := m[id]; ok {
		return e, nil
	}
	return nil, services.ErrEntityNotFound
}

type recordSink struct {
	mu      sync.Mutex
	records []models.BattleRecord
}

func (r *recordSink) RecordBattle(record models.BattleRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
}

func (r *recordSink) all() []models.BattleRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.BattleRecord(nil), r.records...)
}

// manualTimers fires callbacks only when told to.
type manualTimers struct {
	next      int64
	callbacks map[int64]func()
}

func (m *manualTimers) AddTimer(_ time.Duration, _ time.Duration, callback func()) int64 {
	if m.callbacks == nil {
		m.callbacks = make(map[int64]func())
	}
	m.next++
	m.callbacks[m.next] = callback
	return m.next
}

func (m *manualTimers) RemoveTimer(id int64) { delete(m.callbacks, id) }

func (m *manualTimers) fireAll() {
	for id, cb := range m.callbacks {
		delete(m.callbacks, id)
		cb()
	}
}

type harness struct {
	t       *testing.T
	c       *Coordinator
	conns   map[string]*networktest.Recorder
	records *recordSink
	timers  *manualTimers
}

func newHarness(t *testing.T, timeout time.Duration) *harness {
	h := &harness{
		t:       t,
		conns:   make(map[string]*networktest.Recorder),
		records: &recordSink{},
		timers:  &manualTimers{},
	}
	seq := 0
	h.c = New(Options{
		Entities: entityMap{"p1": {ID: "p1", Name: "Mochi"}},
		Recorder: h.records,
		Timers:   h.timers,
		NewBattleID: func() string {
			seq++
			return fmt.Sprintf("battle_%d", seq)
		},
		Now:              func() time.Time { return time.UnixMilli(1700000000000) },
		ChallengeTimeout: timeout,
	})
	return h
}

func (h *harness) connect(ids ...string) {
	for _, id := range ids {
		rec := networktest.NewRecorder()
		h.conns[id] = rec
		h.c.Connect(session.NewSession(id, rec))
	}
}

func (h *harness) join(connID, entityID string) {
	h.c.JoinLobby(connID, network.JoinLobbyRequest{EntityID: entityID, Name: "name-" + entityID})
}

func (h *harness) challenge(from, opponent string) string {
	id, err := h.c.Challenge(from, network.ChallengeRequest{OpponentID: opponent})
	require.NoError(h.t, err)
	return id
}

func (h *harness) resetAll() {
	for _, rec := range h.conns {
		rec.Reset()
	}
}

func rosterIDs(t *testing.T, rec *networktest.Recorder) []string {
	var roster LobbyUpdated
	require.True(t, rec.Last(network.EventLobbyUpdated, &roster))
	ids := make([]string, 0, len(roster.Players))
	for _, p := range roster.Players {
		ids = append(ids, p.EntityID)
	}
	return ids
}

func TestLobbyRosterFollowsJoinAndLeave(t *testing.T) {
	h := newHarness(t, 0)
	h.connect("a", "b", "c")

	h.join("a", "p1")
	assert.Equal(t, []string{"p1"}, rosterIDs(t, h.conns["a"]))

	h.join("b", "p2")
	assert.Equal(t, []string{"p1", "p2"}, rosterIDs(t, h.conns["a"]))
	assert.Equal(t, []string{"p1", "p2"}, rosterIDs(t, h.conns["b"]))

	// re-join replaces in place
	h.join("a", "p3")
	assert.Equal(t, []string{"p3", "p2"}, rosterIDs(t, h.conns["b"]))

	// duplicates by entity id are kept
	h.join("c", "p2")
	assert.Equal(t, []string{"p3", "p2", "p2"}, rosterIDs(t, h.conns["a"]))

	h.c.LeaveLobby("a")
	assert.Equal(t, []string{"p2", "p2"}, rosterIDs(t, h.conns["b"]))
	assert.Len(t, h.c.LobbySnapshot(), 2)
}

func TestRosterCarriesConnectionAndStats(t *testing.T) {
	h := newHarness(t, 0)
	h.connect("a")
	h.c.JoinLobby("a", network.JoinLobbyRequest{EntityID: "p1", Name: "Mochi", Stats: json.RawMessage(`{"hp":9}`)})

	var roster LobbyUpdated
	require.True(t, h.conns["a"].Last(network.EventLobbyUpdated, &roster))
	require.Len(t, roster.Players, 1)
	assert.Equal(t, "a", roster.Players[0].ConnectionID)
	assert.Equal(t, "Mochi", roster.Players[0].Name)
	assert.JSONEq(t, `{"hp":9}`, string(roster.Players[0].Stats))
}

func TestLeaveWithoutEntryPublishesNothing(t *testing.T) {
	h := newHarness(t, 0)
	h.connect("a", "b")
	h.join("a", "p1")
	h.resetAll()

	h.c.LeaveLobby("b")
	assert.Empty(t, h.conns["a"].Events())
}

func TestDisconnectPublishesRosterOnce(t *testing.T) {
	h := newHarness(t, 0)
	h.connect("a", "b", "c")
	h.join("a", "p1")
	h.join("b", "p2")
	h.resetAll()

	h.c.Disconnect("b")
	assert.Len(t, h.conns["a"].Named(network.EventLobbyUpdated), 1)
	assert.Equal(t, []string{"p1"}, rosterIDs(t, h.conns["a"]))

	h.resetAll()
	h.c.Disconnect("c")
	assert.Empty(t, h.conns["a"].Events())
	assert.Equal(t, 1, h.c.Sessions().Count())
}

func TestChallengeUnknownOpponent(t *testing.T) {
	h := newHarness(t, 0)
	h.connect("a", "b")
	h.join("a", "p1")
	h.join("b", "p2")
	h.resetAll()

	_, err := h.c.Challenge("a", network.ChallengeRequest{OpponentID: "p9"})
	assert.ErrorIs(t, err, ErrOpponentNotFound)
	assert.Empty(t, h.conns["a"].Events())
	assert.Empty(t, h.conns["b"].Events())
	assert.Zero(t, h.c.battles.PendingCount())
}

func TestChallengeRequiresLobbyEntry(t *testing.T) {
	h := newHarness(t, 0)
	h.connect("a", "b")
	h.join("b", "p2")

	_, err := h.c.Challenge("a", network.ChallengeRequest{OpponentID: "p2"})
	assert.ErrorIs(t, err, ErrNotInLobby)
}

func TestChallengeSkipsOwnEntry(t *testing.T) {
	h := newHarness(t, 0)
	h.connect("a")
	h.join("a", "p1")

	_, err := h.c.Challenge("a", network.ChallengeRequest{OpponentID: "p1"})
	assert.ErrorIs(t, err, ErrOpponentNotFound)
}

func TestChallengeInvitesOpponentOnly(t *testing.T) {
	h := newHarness(t, 0)
	h.connect("a", "b", "c")
	h.join("a", "p1")
	h.join("b", "p2")
	h.join("c", "p3")
	h.resetAll()

	id, err := h.c.Challenge("a", network.ChallengeRequest{ChallengerID: "u-a", ChallengerName: "Alice", OpponentID: "p2"})
	require.NoError(t, err)

	var invite BattleInvited
	require.True(t, h.conns["b"].Last(network.EventBattleInvited, &invite))
	assert.Equal(t, BattleInvited{BattleID: id, ChallengerID: "u-a", ChallengerName: "Alice"}, invite)
	assert.Empty(t, h.conns["a"].Events())
	assert.Empty(t, h.conns["c"].Events())
}

func TestInviteFallsBackToLobbyEntry(t *testing.T) {
	h := newHarness(t, 0)
	h.connect("a", "b")
	h.join("a", "p1")
	h.join("b", "p2")

	h.challenge("a", "p2")

	var invite BattleInvited
	require.True(t, h.conns["b"].Last(network.EventBattleInvited, &invite))
	assert.Equal(t, "p1", invite.ChallengerID)
	assert.Equal(t, "name-p1", invite.ChallengerName)
}

func TestAcceptStartsBattle(t *testing.T) {
	h := newHarness(t, 0)
	h.connect("a", "b", "c")
	h.join("a", "p1")
	h.join("b", "p2")
	h.join("c", "p3")
	id := h.challenge("a", "p2")
	h.resetAll()

	require.NoError(t, h.c.Accept("b", network.AcceptRequest{BattleID: id}))

	b, ok := h.c.battles.Battle(id)
	require.True(t, ok)
	assert.Equal(t, "active", string(b.Phase()))
	assert.ElementsMatch(t, []string{"a", "b"}, h.c.Rooms().Members(room.BattleRoom(id)))

	for _, conn := range []string{"a", "b"} {
		var started BattleStarted
		require.True(t, h.conns[conn].Last(network.EventBattleStarted, &started), conn)
		assert.Equal(t, id, started.BattleID)
		assert.Equal(t, "p1", started.Player1.EntityID)
		assert.Equal(t, "p2", started.Player2.EntityID)
	}
	assert.Empty(t, h.conns["c"].Events())

	// replay
	assert.ErrorIs(t, h.c.Accept("b", network.AcceptRequest{BattleID: id}), ErrBattleSetupFailed)
	assert.Len(t, h.conns["a"].Named(network.EventBattleStarted), 1)
	assert.Equal(t, 1, h.c.battles.ActiveCount())
}

func TestAcceptResolvesChallengerWithCrowdedLobby(t *testing.T) {
	h := newHarness(t, 0)
	h.connect("a", "b", "c", "d")
	h.join("a", "p1")
	h.join("b", "p2")
	h.join("c", "p3")
	h.join("d", "p4")

	id := h.challenge("c", "p4")
	require.NoError(t, h.c.Accept("d", network.AcceptRequest{BattleID: id}))

	var started BattleStarted
	require.True(t, h.conns["c"].Last(network.EventBattleStarted, &started))
	assert.Equal(t, "c", started.Player1.ConnectionID)
	assert.Equal(t, "d", started.Player2.ConnectionID)
	assert.False(t, h.conns["a"].Last(network.EventBattleStarted, nil))
}

func TestAcceptFailures(t *testing.T) {
	h := newHarness(t, 0)
	h.connect("a", "b", "c", "x")
	h.join("a", "p1")
	h.join("b", "p2")
	h.join("c", "p3")
	id := h.challenge("a", "p2")

	assert.ErrorIs(t, h.c.Accept("b", network.AcceptRequest{BattleID: "nope"}), ErrBattleSetupFailed)
	// not in the lobby
	assert.ErrorIs(t, h.c.Accept("x", network.AcceptRequest{BattleID: id}), ErrBattleSetupFailed)
	// not the invited connection
	assert.ErrorIs(t, h.c.Accept("c", network.AcceptRequest{BattleID: id}), ErrBattleSetupFailed)

	assert.Equal(t, 1, h.c.battles.PendingCount())
	assert.Empty(t, h.c.Rooms().Members(room.BattleRoom(id)))

	require.NoError(t, h.c.Accept("b", network.AcceptRequest{BattleID: id}))
}

func TestAcceptAfterChallengerLeftLobby(t *testing.T) {
	h := newHarness(t, 0)
	h.connect("a", "b")
	h.join("a", "p1")
	h.join("b", "p2")
	id := h.challenge("a", "p2")

	h.c.LeaveLobby("a")
	assert.ErrorIs(t, h.c.Accept("b", network.AcceptRequest{BattleID: id}), ErrBattleSetupFailed)
	assert.Zero(t, h.c.battles.PendingCount())
	assert.Empty(t, h.c.Rooms().Members(room.BattleRoom(id)))
}

func TestDecline(t *testing.T) {
	h := newHarness(t, 0)
	h.connect("a", "b", "c")
	h.join("a", "p1")
	h.join("b", "p2")
	id := h.challenge("a", "p2")
	h.resetAll()

	// non-participant
	h.c.Decline("c", network.DeclineRequest{BattleID: id})
	assert.Equal(t, 1, h.c.battles.PendingCount())

	h.c.Decline("b", network.DeclineRequest{BattleID: id})
	var declined BattleDeclined
	require.True(t, h.conns["a"].Last(network.EventBattleDeclined, &declined))
	assert.Equal(t, BattleDeclined{BattleID: id}, declined)
	assert.Empty(t, h.conns["b"].Events())
	assert.Zero(t, h.c.battles.PendingCount())

	// unknown id
	h.resetAll()
	h.c.Decline("b", network.DeclineRequest{BattleID: id})
	assert.Empty(t, h.conns["a"].Events())

	assert.ErrorIs(t, h.c.Accept("b", network.AcceptRequest{BattleID: id}), ErrBattleSetupFailed)
}

func TestChallengerCancelNotifiesBoth(t *testing.T) {
	h := newHarness(t, 0)
	h.connect("a", "b")
	h.join("a", "p1")
	h.join("b", "p2")
	id := h.challenge("a", "p2")
	h.resetAll()

	h.c.Decline("a", network.DeclineRequest{BattleID: id})
	assert.True(t, h.conns["a"].Last(network.EventBattleDeclined, nil))
	assert.True(t, h.conns["b"].Last(network.EventBattleDeclined, nil))
}

func startBattle(t *testing.T, h *harness) string {
	h.connect("a", "b")
	h.join("a", "p1")
	h.join("b", "p2")
	id := h.challenge("a", "p2")
	require.NoError(t, h.c.Accept("b", network.AcceptRequest{BattleID: id}))
	h.resetAll()
	return id
}

func TestActionReachesOtherParticipantOnly(t *testing.T) {
	h := newHarness(t, 0)
	id := startBattle(t, h)
	h.connect("c")

	payload := json.RawMessage(fmt.Sprintf(`{"battleId":%q,"action":{"move":"x"}}`, id))
	h.c.Action("a", id, payload)

	assert.Empty(t, h.conns["a"].Events())
	frames := h.conns["b"].Named(network.EventBattleAction)
	require.Len(t, frames, 1)
	assert.JSONEq(t, string(payload), string(frames[0].Data))

	// outsiders are ignored
	h.c.Action("c", id, payload)
	assert.Len(t, h.conns["a"].Events(), 0)
}

func TestEndTearsDownBattle(t *testing.T) {
	h := newHarness(t, 0)
	id := startBattle(t, h)

	winner := "p1"
	h.c.End("a", network.EndRequest{BattleID: id, Winner: &winner})

	for _, conn := range []string{"a", "b"} {
		var ended BattleEnded
		require.True(t, h.conns[conn].Last(network.EventBattleEnded, &ended))
		require.NotNil(t, ended.Winner)
		assert.Equal(t, "p1", *ended.Winner)
	}
	_, ok := h.c.battles.Battle(id)
	assert.False(t, ok)
	assert.Empty(t, h.c.Rooms().Members(room.BattleRoom(id)))
	assert.ElementsMatch(t, []string{"a", "b"}, h.c.Rooms().Members(room.Lobby))

	h.resetAll()
	h.c.Action("a", id, json.RawMessage(`{}`))
	h.c.End("a", network.EndRequest{BattleID: id})
	assert.Empty(t, h.conns["a"].Events())
	assert.Empty(t, h.conns["b"].Events())

	records := h.records.all()
	require.Len(t, records, 1)
	assert.False(t, records[0].Abandoned)
	assert.Equal(t, "p2", records[0].Player2.EntityID)
}

func TestEndFromOutsiderIgnored(t *testing.T) {
	h := newHarness(t, 0)
	id := startBattle(t, h)
	h.connect("c")

	h.c.End("c", network.EndRequest{BattleID: id})
	_, ok := h.c.battles.Battle(id)
	assert.True(t, ok)
}

func TestScenarioBattleAbandonedByDisconnect(t *testing.T) {
	h := newHarness(t, 0)
	h.connect("a", "b")

	h.join("a", "p1")
	h.join("b", "p2")
	assert.Equal(t, []string{"p1", "p2"}, rosterIDs(t, h.conns["a"]))
	assert.Equal(t, []string{"p1", "p2"}, rosterIDs(t, h.conns["b"]))

	id := h.challenge("a", "p2")
	assert.True(t, h.conns["b"].Last(network.EventBattleInvited, nil))

	require.NoError(t, h.c.Accept("b", network.AcceptRequest{BattleID: id}))
	assert.True(t, h.conns["a"].Last(network.EventBattleStarted, nil))
	assert.True(t, h.conns["b"].Last(network.EventBattleStarted, nil))
	assert.True(t, h.c.Rooms().IsMember("a", room.BattleRoom(id)))
	assert.True(t, h.c.Rooms().IsMember("b", room.BattleRoom(id)))

	h.resetAll()
	h.c.Action("a", id, json.RawMessage(`{"battleId":"`+id+`","action":{"move":"x"}}`))
	assert.Empty(t, h.conns["a"].Events())
	assert.Len(t, h.conns["b"].Named(network.EventBattleAction), 1)

	h.c.Disconnect("b")

	frames := h.conns["a"].Named(network.EventBattleEnded)
	require.Len(t, frames, 1)
	assert.JSONEq(t, `{"battleId":"`+id+`","winner":null}`, string(frames[0].Data))
	assert.Empty(t, h.c.Rooms().Members(room.BattleRoom(id)))
	assert.Zero(t, h.c.battles.ActiveCount())

	records := h.records.all()
	require.Len(t, records, 1)
	assert.True(t, records[0].Abandoned)
	assert.Nil(t, records[0].Winner)
}

func TestScenarioOpponentLeavesBeforeAccept(t *testing.T) {
	h := newHarness(t, 0)
	h.connect("a", "b", "c")
	h.join("a", "p1")
	h.join("b", "p2")
	id := h.challenge("a", "p2")

	h.c.Disconnect("b")

	assert.False(t, h.conns["a"].Last(network.EventBattleStarted, nil))
	var ended BattleEnded
	require.True(t, h.conns["a"].Last(network.EventBattleEnded, &ended))
	assert.Equal(t, id, ended.BattleID)
	assert.Nil(t, ended.Winner)

	for _, conn := range []string{"a", "b", "c"} {
		assert.ErrorIs(t, h.c.Accept(conn, network.AcceptRequest{BattleID: id}), ErrBattleSetupFailed)
	}
	assert.Zero(t, h.c.battles.PendingCount())
	assert.Empty(t, h.records.all())
}

func TestChallengeTimeout(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.connect("a", "b")
	h.join("a", "p1")
	h.join("b", "p2")
	id := h.challenge("a", "p2")
	require.Len(t, h.timers.callbacks, 1)

	h.timers.fireAll()

	for _, conn := range []string{"a", "b"} {
		var declined BattleDeclined
		require.True(t, h.conns[conn].Last(network.EventBattleDeclined, &declined))
		assert.Equal(t, BattleDeclined{BattleID: id, Reason: "timeout"}, declined)
	}
	assert.ErrorIs(t, h.c.Accept("b", network.AcceptRequest{BattleID: id}), ErrBattleSetupFailed)
}

func TestResolvedChallengeCancelsTimer(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.connect("a", "b")
	h.join("a", "p1")
	h.join("b", "p2")
	id := h.challenge("a", "p2")

	require.NoError(t, h.c.Accept("b", network.AcceptRequest{BattleID: id}))
	assert.Empty(t, h.timers.callbacks)
}

func TestNoTimeoutByDefault(t *testing.T) {
	h := newHarness(t, 0)
	h.connect("a", "b")
	h.join("a", "p1")
	h.join("b", "p2")
	h.challenge("a", "p2")
	assert.Empty(t, h.timers.callbacks)
}

func TestUpdateStateEchoesToRoom(t *testing.T) {
	h := newHarness(t, 0)
	h.connect("a", "b", "c")
	require.NoError(t, h.c.JoinEntity("a", "p1"))
	require.NoError(t, h.c.JoinEntity("b", "p1"))

	err := h.c.UpdateState(context.Background(), "a", network.EntityUpdateRequest{
		EntityID: "p1",
		State:    json.RawMessage(`{"mood":"happy"}`),
	})
	require.NoError(t, err)

	for _, conn := range []string{"a", "b"} {
		var upd EntityUpdated
		require.True(t, h.conns[conn].Last(network.EventEntityUpdated, &upd))
		assert.Equal(t, "p1", upd.EntityID)
		assert.JSONEq(t, `{"mood":"happy"}`, string(upd.State))
		assert.Equal(t, int64(1700000000000), upd.Timestamp)
	}
	assert.Empty(t, h.conns["c"].Events())
}

func TestUpdateStateUnknownEntity(t *testing.T) {
	h := newHarness(t, 0)
	h.connect("a")
	require.NoError(t, h.c.JoinEntity("a", "p9"))

	err := h.c.UpdateState(context.Background(), "a", network.EntityUpdateRequest{EntityID: "p9", State: json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, ErrEntityNotFound)
	assert.Empty(t, h.conns["a"].Events())
}

func TestUpdateStateWithoutStateIsDropped(t *testing.T) {
	h := newHarness(t, 0)
	h.connect("a", "b")
	require.NoError(t, h.c.JoinEntity("a", "p1"))
	require.NoError(t, h.c.JoinEntity("b", "p1"))

	for _, state := range []json.RawMessage{nil, json.RawMessage(`null`)} {
		err := h.c.UpdateState(context.Background(), "a", network.EntityUpdateRequest{EntityID: "p1", State: state})
		assert.ErrorIs(t, err, ErrInvalidPayload)
	}
	assert.Empty(t, h.conns["a"].Events())
	assert.Empty(t, h.conns["b"].Events())
}

type failingLookup struct{}

func (failingLookup) FindEntity(context.Context, string) (*models.Entity, error) {
	return nil, errors.New("store down")
}

func TestUpdateStateLookupFailure(t *testing.T) {
	h := newHarness(t, 0)
	h.c.entities = failingLookup{}
	h.connect("a")

	err := h.c.UpdateState(context.Background(), "a", network.EntityUpdateRequest{EntityID: "p1", State: json.RawMessage(`{}`)})
	require.Error(t, err)
	assert.Equal(t, ErrUnknown.Error(), ClientMessage(err))
}

// blockingLookup lets the test disconnect the requester mid-lookup.
type blockingLookup struct {
	entered chan struct{}
	release chan struct{}
}

func (b blockingLookup) FindEntity(_ context.Context, id string) (*models.Entity, error) {
	close(b.entered)
	<-b.release
	return &models.Entity{ID: id}, nil
}

func TestUpdateStateDropsWhenRequesterGone(t *testing.T) {
	h := newHarness(t, 0)
	lookup := blockingLookup{entered: make(chan struct{}), release: make(chan struct{})}
	h.c.entities = lookup
	h.connect("a", "b")
	require.NoError(t, h.c.JoinEntity("b", "p1"))

	done := make(chan error, 1)
	go func() {
		done <- h.c.UpdateState(context.Background(), "a", network.EntityUpdateRequest{EntityID: "p1", State: json.RawMessage(`{}`)})
	}()
	<-lookup.entered
	h.c.Disconnect("a")
	close(lookup.release)

	require.NoError(t, <-done)
	assert.Empty(t, h.conns["b"].Events())
}

func TestReactionAndLocationSkipSender(t *testing.T) {
	h := newHarness(t, 0)
	h.connect("a", "b")
	require.NoError(t, h.c.JoinEntity("a", "p1"))
	require.NoError(t, h.c.JoinEntity("b", "p1"))

	require.NoError(t, h.c.BroadcastReaction("a", network.ReactionRequest{EntityID: "p1", Reaction: json.RawMessage(`"wave"`)}))
	require.NoError(t, h.c.BroadcastLocation("a", network.LocationRequest{EntityID: "p1", X: 1.5, Y: 2}))

	assert.Empty(t, h.conns["a"].Events())

	var reaction EntityReaction
	require.True(t, h.conns["b"].Last(network.EventEntityReaction, &reaction))
	assert.JSONEq(t, `"wave"`, string(reaction.Reaction))

	var loc LocationUpdated
	require.True(t, h.conns["b"].Last(network.EventLocationUpdated, &loc))
	assert.Equal(t, 1.5, loc.X)
	assert.Equal(t, 2.0, loc.Y)
	assert.Equal(t, int64(1700000000000), loc.Timestamp)
}

func TestJoinUserTargetsAllConnectionsOfUser(t *testing.T) {
	h := newHarness(t, 0)
	h.connect("a", "b", "c")
	require.NoError(t, h.c.JoinUser("a", "u1"))
	require.NoError(t, h.c.JoinUser("b", "u1"))
	assert.ErrorIs(t, h.c.JoinUser("c", ""), ErrInvalidPayload)

	require.NoError(t, h.c.Emit("notice", room.UserRoom("u1"), json.RawMessage(`{"n":1}`)))
	assert.Equal(t, []string{"notice"}, h.conns["a"].Events())
	assert.Equal(t, []string{"notice"}, h.conns["b"].Events())
	assert.Empty(t, h.conns["c"].Events())
	assert.Len(t, h.c.Sessions().GetByUserID("u1"), 2)
}

func TestEmitGlobal(t *testing.T) {
	h := newHarness(t, 0)
	h.connect("a", "b")

	require.NoError(t, h.c.Emit("maintenance", "", nil))
	assert.Equal(t, []string{"maintenance"}, h.conns["a"].Events())
	assert.Equal(t, []string{"maintenance"}, h.conns["b"].Events())
	assert.ErrorIs(t, h.c.Emit("", "", nil), ErrInvalidPayload)
}

func TestConcurrentLobbyTraffic(t *testing.T) {
	h := newHarness(t, 0)
	const n = 20
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("c%d", i)
	}
	h.connect(ids...)

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			h.join(id, fmt.Sprintf("p%d", i))
			if i%2 == 0 {
				h.c.Disconnect(id)
			}
		}(i, id)
	}
	wg.Wait()

	snapshot := h.c.LobbySnapshot()
	assert.Len(t, snapshot, n/2)
	for _, e := range snapshot {
		_, ok := h.c.Sessions().Get(e.ConnectionID)
		assert.True(t, ok)
	}
	assert.ElementsMatch(t,
		entryConns(snapshot),
		h.c.Rooms().Members(room.Lobby))
}

func entryConns(entries []lobby.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ConnectionID)
	}
	return out
}

func TestClientMessage(t *testing.T) {
	assert.Equal(t, "Opponent not found", ClientMessage(ErrOpponentNotFound))
	assert.Equal(t, "Battle setup failed", ClientMessage(fmt.Errorf("wrap: %w", ErrBattleSetupFailed)))
	assert.Equal(t, "Internal server error", ClientMessage(errors.New("boom")))
	assert.Equal(t, "entity_not_found", Kind(ErrEntityNotFound))
}
