package coordinator

import (
	"encoding/json"

	"github.com/wfunc/petlobby/lobby"
)

// Outbound payloads.

type LobbyUpdated struct {
	Players []lobby.Entry `json:"players"`
}

type BattleInvited struct {
	BattleID       string `json:"battleId"`
	ChallengerID   string `json:"challengerId"`
	ChallengerName string `json:"challengerName"`
}

type BattleStarted struct {
	BattleID string      `json:"battleId"`
	Player1  lobby.Entry `json:"player1"`
	Player2  lobby.Entry `json:"player2"`
}

type BattleDeclined struct {
	BattleID string `json:"battleId"`
	Reason   string `json:"reason,omitempty"`
}

// BattleEnded carries a null winner when the battle was abandoned.
type BattleEnded struct {
	BattleID string  `json:"battleId"`
	Winner   *string `json:"winner"`
}

type EntityUpdated struct {
	EntityID  string          `json:"entityId"`
	State     json.RawMessage `json:"state"`
	Timestamp int64           `json:"timestamp"`
}

type EntityReaction struct {
	EntityID  string          `json:"entityId"`
	Reaction  json.RawMessage `json:"reaction"`
	Timestamp int64           `json:"timestamp"`
}

type LocationUpdated struct {
	EntityID  string          `json:"entityId"`
	X         float64         `json:"x"`
	Y         float64         `json:"y"`
	Scene     json.RawMessage `json:"scene,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

const reasonTimeout = "timeout"
