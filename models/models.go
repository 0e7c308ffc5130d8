// models/models.go
package models

import (
	"encoding/json"
	"time"
)

// Entity is a player's pet as kept by the record store. The coordinator only
// needs to know that it exists; the remaining fields are carried for the
// store drivers.
type Entity struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"ownerId"`
	Name        string          `json:"name"`
	ClassName   string          `json:"className,omitempty"`
	Personality string          `json:"personality,omitempty"`
	Level       int             `json:"level"`
	Experience  int             `json:"experience"`
	Stats       json.RawMessage `json:"stats,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// BattleParticipant 对战参与者快照
type BattleParticipant struct {
	EntityID string `json:"entityId"`
	Name     string `json:"name"`
}

// BattleRecord is the history entry written when a battle leaves the table.
type BattleRecord struct {
	BattleID  string            `json:"battleId"`
	Player1   BattleParticipant `json:"player1"`
	Player2   BattleParticipant `json:"player2"`
	Winner    *string           `json:"winner"`
	Abandoned bool              `json:"abandoned"`
	StartedAt time.Time         `json:"startedAt"`
	EndedAt   time.Time         `json:"endedAt"`
}
