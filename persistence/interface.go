// persistence/interface.go
package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/wfunc/petlobby/config"
	"github.com/wfunc/petlobby/models"
)

// Database 记录存储接口
type Database interface {
	FindEntity(ctx context.Context, id string) (*models.Entity, error)
	SaveEntity(ctx context.Context, entity *models.Entity) error
	SaveBattleRecord(ctx context.Context, record *models.BattleRecord) error
	Close() error
}

// 错误定义
var (
	ErrRecordNotFound = errors.New("record not found")
	ErrNoStore        = errors.New("no record store configured")
)

// Open connects the driver named in cfg.Store.Driver.
func Open(cfg *config.Config) (Database, error) {
	pg := cfg.Database.Postgres
	switch cfg.Store.Driver {
	case "redis":
		return NewRedisStore(cfg.Store.Redis.Addr, cfg.Store.Redis.Password, cfg.Store.Redis.DB)
	case "postgres":
		return NewPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	case "gorm":
		return NewGormPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	case "none", "":
		return NoStore{}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// NoStore knows no entities and drops battle records.
type NoStore struct{}

func (NoStore) FindEntity(context.Context, string) (*models.Entity, error) {
	return nil, ErrRecordNotFound
}

func (NoStore) SaveEntity(context.Context, *models.Entity) error { return ErrNoStore }

func (NoStore) SaveBattleRecord(context.Context, *models.BattleRecord) error { return nil }

func (NoStore) Close() error { return nil }
