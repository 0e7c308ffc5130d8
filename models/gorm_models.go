// models/gorm_models.go
package models

import (
	"time"
)

// GormEntity 宠物记录
type GormEntity struct {
	ID          string `gorm:"primaryKey;size:64"`
	OwnerID     string `gorm:"index;not null"`
	Name        string `gorm:"not null"`
	ClassName   string
	Personality string
	Level       int    `gorm:"default:1"`
	Experience  int    `gorm:"default:0"`
	Stats       []byte `gorm:"type:jsonb"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (GormEntity) TableName() string { return "entities" }

func (g GormEntity) ToEntity() *Entity {
	return &Entity{
		ID:          g.ID,
		OwnerID:     g.OwnerID,
		Name:        g.Name,
		ClassName:   g.ClassName,
		Personality: g.Personality,
		Level:       g.Level,
		Experience:  g.Experience,
		Stats:       g.Stats,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}

func NewGormEntity(e *Entity) *GormEntity {
	return &GormEntity{
		ID:          e.ID,
		OwnerID:     e.OwnerID,
		Name:        e.Name,
		ClassName:   e.ClassName,
		Personality: e.Personality,
		Level:       e.Level,
		Experience:  e.Experience,
		Stats:       e.Stats,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

// GormBattleRecord 对战记录
type GormBattleRecord struct {
	ID           uint   `gorm:"primaryKey"`
	BattleID     string `gorm:"uniqueIndex;not null"`
	Player1ID    string `gorm:"index;not null"`
	Player1Name  string
	Player2ID    string `gorm:"index;not null"`
	Player2Name  string
	Winner       *string
	Abandoned    bool
	StartedAt    time.Time
	EndedAt      time.Time
	DurationSecs int
}

func (GormBattleRecord) TableName() string { return "battle_records" }

func NewGormBattleRecord(r *BattleRecord) *GormBattleRecord {
	return &GormBattleRecord{
		BattleID:     r.BattleID,
		Player1ID:    r.Player1.EntityID,
		Player1Name:  r.Player1.Name,
		Player2ID:    r.Player2.EntityID,
		Player2Name:  r.Player2.Name,
		Winner:       r.Winner,
		Abandoned:    r.Abandoned,
		StartedAt:    r.StartedAt,
		EndedAt:      r.EndedAt,
		DurationSecs: int(r.EndedAt.Sub(r.StartedAt).Seconds()),
	}
}
