// Package coordinator owns the lobby registry and the battle table and runs
// the matchmaking handshake, the battle relay, the state sync relay and
// disconnect cleanup on top of the room manager.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wfunc/petlobby/battle"
	"github.com/wfunc/petlobby/broadcast"
	"github.com/wfunc/petlobby/logger"
	"github.com/wfunc/petlobby/lobby"
	"github.com/wfunc/petlobby/models"
	"github.com/wfunc/petlobby/monitor"
	"github.com/wfunc/petlobby/network"
	"github.com/wfunc/petlobby/room"
	"github.com/wfunc/petlobby/services"
	"github.com/wfunc/petlobby/session"
)

// EntityLookup is the ownership check consulted before relaying entity:update.
type EntityLookup interface {
	FindEntity(ctx context.Context, id string) (*models.Entity, error)
}

// BattleRecorder receives a record for every battle leaving the table.
type BattleRecorder interface {
	RecordBattle(record models.BattleRecord)
}

// Scheduler runs the optional challenge timeout.
type Scheduler interface {
	AddTimer(delay time.Duration, interval time.Duration, callback func()) int64
	RemoveTimer(timerId int64)
}

type Options struct {
	Rooms       *room.Manager
	Sessions    *session.Manager
	Broadcaster broadcast.Broadcaster
	Entities    EntityLookup
	Recorder    BattleRecorder
	Timers      Scheduler
	Monitor     *monitor.Monitor

	// ChallengeTimeout discards unanswered challenges; zero disables it.
	ChallengeTimeout time.Duration

	NewBattleID func() string
	Now         func() time.Time
}

// Coordinator serialises every mutation of the lobby registry and the battle
// table behind mu. Room membership has its own lock and is always taken
// after mu.
type Coordinator struct {
	mu      sync.Mutex
	lobby   *lobby.Registry
	battles *battle.Table

	rooms    *room.Manager
	sessions *session.Manager
	out      broadcast.Broadcaster
	entities EntityLookup
	recorder BattleRecorder
	timers   Scheduler
	monitor  *monitor.Monitor

	challengeTimeout time.Duration
	newBattleID      func() string
	now              func() time.Time
}

func New(opts Options) *Coordinator {
	c := &Coordinator{
		lobby:            lobby.NewRegistry(),
		battles:          battle.NewTable(),
		rooms:            opts.Rooms,
		sessions:         opts.Sessions,
		out:              opts.Broadcaster,
		entities:         opts.Entities,
		recorder:         opts.Recorder,
		timers:           opts.Timers,
		monitor:          opts.Monitor,
		challengeTimeout: opts.ChallengeTimeout,
		newBattleID:      opts.NewBattleID,
		now:              opts.Now,
	}
	if c.rooms == nil {
		c.rooms = room.NewRoomManager()
	}
	if c.sessions == nil {
		c.sessions = session.NewManager()
	}
	if c.out == nil {
		c.out = broadcast.NewRoomBroadcaster(c.rooms, c.sessions)
	}
	if c.newBattleID == nil {
		c.newBattleID = func() string { return "battle_" + uuid.NewString() }
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

func (c *Coordinator) Rooms() *room.Manager       { return c.rooms }
func (c *Coordinator) Sessions() *session.Manager { return c.sessions }

// Connect registers an admitted connection.
func (c *Coordinator) Connect(s *session.Session) {
	c.sessions.Add(s)
	c.monitor.IncOnlinePlayers()
	logger.Log.Infow("connection admitted", "conn", s.ID, "session", s.SessionID)
}

// JoinUser subscribes the connection to user:<id>.
func (c *Coordinator) JoinUser(connID, userID string) error {
	if userID == "" {
		return ErrInvalidPayload
	}
	if s, ok := c.sessions.Get(connID); ok {
		s.SetUserID(userID)
	}
	c.rooms.Join(connID, room.UserRoom(userID))
	return nil
}

// JoinEntity subscribes the connection to the entity's watch room.
func (c *Coordinator) JoinEntity(connID, entityID string) error {
	if entityID == "" {
		return ErrInvalidPayload
	}
	c.rooms.Join(connID, room.EntityRoom(entityID))
	return nil
}

// JoinLobby inserts or replaces the connection's entry and publishes the roster.
func (c *Coordinator) JoinLobby(connID string, req network.JoinLobbyRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lobby.Join(connID, lobby.Entry{
		EntityID: req.EntityID,
		Name:     req.Name,
		Stats:    req.Stats,
	})
	c.rooms.Join(connID, room.Lobby)
	c.publishRoster()
	c.observe()
}

// LeaveLobby removes the connection's entry. Without an entry nothing is published.
func (c *Coordinator) LeaveLobby(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rooms.Leave(connID, room.Lobby)
	if _, ok := c.lobby.Leave(connID); !ok {
		return
	}
	c.publishRoster()
	c.observe()
}

// LobbySnapshot returns the roster in join order.
func (c *Coordinator) LobbySnapshot() []lobby.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lobby.Snapshot()
}

// Challenge invites the opponent and returns the new battle id.
func (c *Coordinator) Challenge(connID string, req network.ChallengeRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	challenger, ok := c.lobby.Get(connID)
	if !ok {
		return "", ErrNotInLobby
	}
	opponent, err := c.lobby.FindByEntityID(req.OpponentID, connID)
	if err != nil {
		c.monitor.IncChallenge("opponent_not_found")
		return "", ErrOpponentNotFound
	}

	ch := &battle.Challenge{
		BattleID:       c.newBattleID(),
		ChallengerConn: connID,
		OpponentConn:   opponent.ConnectionID,
		ChallengerID:   firstNonEmpty(req.ChallengerID, challenger.EntityID),
		ChallengerName: firstNonEmpty(req.ChallengerName, challenger.Name),
		Challenger:     challenger,
		Opponent:       opponent,
		CreatedAt:      c.now(),
	}
	if err := c.battles.AddChallenge(ch); err != nil {
		logger.Log.Errorw("add challenge failed", "battle", ch.BattleID, "error", err)
		return "", ErrBattleSetupFailed
	}
	if c.challengeTimeout > 0 && c.timers != nil {
		id := ch.BattleID
		ch.TimerID = c.timers.AddTimer(c.challengeTimeout, 0, func() { c.expire(id) })
	}

	if err := c.out.SendTo(opponent.ConnectionID, network.EventBattleInvited, BattleInvited{
		BattleID:       ch.BattleID,
		ChallengerID:   ch.ChallengerID,
		ChallengerName: ch.ChallengerName,
	}); err != nil {
		logger.Log.Warnw("invite delivery failed", "battle", ch.BattleID, "error", err)
	}

	c.monitor.IncChallenge("issued")
	c.observe()
	logger.Log.Debugw("challenge issued", "battle", ch.BattleID, "challenger", connID, "opponent", opponent.ConnectionID)
	return ch.BattleID, nil
}

// Accept starts the battle. Only the invited connection may accept, and both
// parties must still hold lobby entries.
func (c *Coordinator) Accept(connID string, req network.AcceptRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.battles.Challenge(req.BattleID)
	if !ok {
		return ErrBattleSetupFailed
	}
	accepter, ok := c.lobby.Get(connID)
	if !ok || connID != ch.OpponentConn {
		return ErrBattleSetupFailed
	}
	challenger, ok := c.lobby.Get(ch.ChallengerConn)
	if !ok {
		c.discardChallenge(ch)
		c.monitor.IncChallenge("challenger_gone")
		c.observe()
		return ErrBattleSetupFailed
	}

	b, err := c.battles.Activate(ch.BattleID, challenger, accepter, c.now())
	if err != nil {
		logger.Log.Errorw("activate battle failed", "battle", ch.BattleID, "error", err)
		return ErrBattleSetupFailed
	}
	c.cancelTimer(ch)

	battleRoom := room.BattleRoom(b.ID)
	for _, participant := range b.Participants() {
		c.rooms.Join(participant, battleRoom)
	}
	if err := c.out.Publish(battleRoom, network.EventBattleStarted, BattleStarted{
		BattleID: b.ID,
		Player1:  b.Player1,
		Player2:  b.Player2,
	}); err != nil {
		logger.Log.Errorw("publish battle:started failed", "battle", b.ID, "error", err)
	}

	c.monitor.IncChallenge("accepted")
	c.observe()
	logger.Log.Infow("battle started", "battle", b.ID, "player1", b.Player1.EntityID, "player2", b.Player2.EntityID)
	return nil
}

// Decline resolves a pending challenge without a battle. The challenger is
// always told; a cancel by the challenger also tells the opponent.
func (c *Coordinator) Decline(connID string, req network.DeclineRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.battles.Challenge(req.BattleID)
	if !ok || !ch.Involves(connID) {
		return
	}
	c.discardChallenge(ch)

	declined := BattleDeclined{BattleID: ch.BattleID}
	_ = c.out.SendTo(ch.ChallengerConn, network.EventBattleDeclined, declined)
	if connID == ch.ChallengerConn {
		_ = c.out.SendTo(ch.OpponentConn, network.EventBattleDeclined, declined)
		c.monitor.IncChallenge("cancelled")
	} else {
		c.monitor.IncChallenge("declined")
	}
	c.observe()
}

// expire is the challenge timeout callback.
func (c *Coordinator) expire(battleID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.battles.DiscardChallenge(battleID)
	if !ok {
		return
	}
	declined := BattleDeclined{BattleID: battleID, Reason: reasonTimeout}
	_ = c.out.SendTo(ch.ChallengerConn, network.EventBattleDeclined, declined)
	_ = c.out.SendTo(ch.OpponentConn, network.EventBattleDeclined, declined)

	c.monitor.IncChallenge("timeout")
	c.observe()
	logger.Log.Debugw("challenge expired", "battle", battleID)
}

// Action relays the raw battle:action payload to the other participant.
// Unknown battles and non-participants are ignored.
func (c *Coordinator) Action(connID string, battleID string, payload json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.battles.Battle(battleID)
	if !ok || !b.Involves(connID) {
		return
	}
	_ = c.out.PublishExcept(connID, room.BattleRoom(b.ID), network.EventBattleAction, payload)
}

// End publishes the result, then removes the battle and disbands its room.
// Participants keep their lobby membership.
func (c *Coordinator) End(connID string, req network.EndRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.battles.Battle(req.BattleID)
	if !ok || !b.Involves(connID) {
		return
	}
	c.finish(b, req.Winner, false)
	c.observe()
}

// finish tears a battle down. Caller holds mu.
func (c *Coordinator) finish(b *battle.Battle, winner *string, abandoned bool) {
	battleRoom := room.BattleRoom(b.ID)
	_ = c.out.Publish(battleRoom, network.EventBattleEnded, BattleEnded{BattleID: b.ID, Winner: winner})
	c.rooms.Disband(battleRoom)
	c.battles.End(b.ID)

	if c.recorder != nil {
		c.recorder.RecordBattle(models.BattleRecord{
			BattleID:  b.ID,
			Player1:   models.BattleParticipant{EntityID: b.Player1.EntityID, Name: b.Player1.Name},
			Player2:   models.BattleParticipant{EntityID: b.Player2.EntityID, Name: b.Player2.Name},
			Winner:    winner,
			Abandoned: abandoned,
			StartedAt: b.StartedAt,
			EndedAt:   c.now(),
		})
	}
	logger.Log.Infow("battle ended", "battle", b.ID, "abandoned", abandoned)
}

// UpdateState checks the entity exists, then publishes entity:updated to its
// room including the requester. No lock is held during the lookup.
func (c *Coordinator) UpdateState(ctx context.Context, connID string, req network.EntityUpdateRequest) error {
	if req.EntityID == "" || len(req.State) == 0 || string(req.State) == "null" {
		return ErrInvalidPayload
	}
	if c.entities == nil {
		return ErrEntityNotFound
	}

	entity, err := c.entities.FindEntity(ctx, req.EntityID)
	if err != nil {
		if errors.Is(err, services.ErrEntityNotFound) {
			return ErrEntityNotFound
		}
		return err
	}
	if entity == nil {
		return ErrEntityNotFound
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// 查询期间请求方可能已断开
	if _, ok := c.sessions.Get(connID); !ok {
		return nil
	}
	return c.out.Publish(room.EntityRoom(req.EntityID), network.EventEntityUpdated, EntityUpdated{
		EntityID:  req.EntityID,
		State:     req.State,
		Timestamp: c.now().UnixMilli(),
	})
}

// BroadcastReaction relays a reaction to the entity room without the sender.
func (c *Coordinator) BroadcastReaction(connID string, req network.ReactionRequest) error {
	if req.EntityID == "" {
		return ErrInvalidPayload
	}
	return c.out.PublishExcept(connID, room.EntityRoom(req.EntityID), network.EventEntityReaction, EntityReaction{
		EntityID:  req.EntityID,
		Reaction:  req.Reaction,
		Timestamp: c.now().UnixMilli(),
	})
}

// BroadcastLocation relays a position to the entity room without the sender.
func (c *Coordinator) BroadcastLocation(connID string, req network.LocationRequest) error {
	if req.EntityID == "" {
		return ErrInvalidPayload
	}
	return c.out.PublishExcept(connID, room.EntityRoom(req.EntityID), network.EventLocationUpdated, LocationUpdated{
		EntityID:  req.EntityID,
		X:         req.X,
		Y:         req.Y,
		Scene:     req.Scene,
		Timestamp: c.now().UnixMilli(),
	})
}

// Emit pushes an arbitrary event into a room, or to every connection when
// roomName is empty.
func (c *Coordinator) Emit(event, roomName string, data json.RawMessage) error {
	if event == "" {
		return ErrInvalidPayload
	}
	if roomName == "" {
		return c.out.PublishAll(event, data)
	}
	return c.out.Publish(roomName, event, data)
}

// Disconnect removes every trace of the connection in one step: rooms, lobby
// entry, pending challenges and active battles. Surviving parties are sent
// battle:ended with a null winner.
func (c *Coordinator) Disconnect(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rooms.DropConnection(connID)

	if _, ok := c.lobby.Leave(connID); ok {
		c.publishRoster()
	}

	for _, ch := range c.battles.ChallengesInvolving(connID) {
		c.discardChallenge(ch)
		_ = c.out.SendTo(ch.Other(connID), network.EventBattleEnded, BattleEnded{BattleID: ch.BattleID})
		c.monitor.IncChallenge("abandoned")
	}
	for _, b := range c.battles.BattlesInvolving(connID) {
		c.finish(b, nil, true)
	}

	if _, ok := c.sessions.Get(connID); ok {
		c.sessions.Remove(connID)
		c.monitor.DecOnlinePlayers()
	}
	c.observe()
	logger.Log.Infow("connection closed", "conn", connID)
}

func (c *Coordinator) discardChallenge(ch *battle.Challenge) {
	c.battles.DiscardChallenge(ch.BattleID)
	c.cancelTimer(ch)
}

func (c *Coordinator) cancelTimer(ch *battle.Challenge) {
	if ch.TimerID != 0 && c.timers != nil {
		c.timers.RemoveTimer(ch.TimerID)
	}
}

// publishRoster sends the full roster to the lobby room. Caller holds mu.
func (c *Coordinator) publishRoster() {
	if err := c.out.Publish(room.Lobby, network.EventLobbyUpdated, LobbyUpdated{Players: c.lobby.Snapshot()}); err != nil {
		logger.Log.Errorw("publish roster failed", "error", err)
	}
}

func (c *Coordinator) observe() {
	c.monitor.SetMatchmaking(c.lobby.Len(), c.battles.PendingCount(), c.battles.ActiveCount())
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
