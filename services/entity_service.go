// services/entity_service.go
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/wfunc/petlobby/logger"
	"github.com/wfunc/petlobby/models"
	"github.com/wfunc/petlobby/persistence"
)

// ErrEntityNotFound is returned when the record store has no such entity.
var ErrEntityNotFound = errors.New("entity not found")

// EntityService 宠物记录服务，协调器通过它查询宠物并写入对战记录
type EntityService struct {
	db      persistence.Database
	timeout time.Duration
}

func NewEntityService(db persistence.Database) *EntityService {
	return &EntityService{db: db, timeout: 5 * time.Second}
}

// FindEntity 查询宠物是否存在
func (s *EntityService) FindEntity(ctx context.Context, id string) (*models.Entity, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	entity, err := s.db.FindEntity(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return nil, ErrEntityNotFound
		}
		return nil, eris.Wrapf(err, "lookup entity %s", id)
	}
	return entity, nil
}

// RegisterEntity 保存宠物记录
func (s *EntityService) RegisterEntity(ctx context.Context, entity *models.Entity) error {
	if entity.ID == "" {
		return eris.New("entity id is required")
	}
	if entity.Level == 0 {
		entity.Level = 1
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return eris.Wrap(s.db.SaveEntity(ctx, entity), "register entity")
}

// RecordBattle 写入对战记录，失败只记日志
func (s *EntityService) RecordBattle(record models.BattleRecord) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if err := s.db.SaveBattleRecord(ctx, &record); err != nil {
			logger.Log.Warnw("save battle record failed", "battle", record.BattleID, "error", err)
			return
		}
		logger.Log.Debugw("battle recorded", "battle", record.BattleID, "abandoned", record.Abandoned)
	}()
}

// RecordBattleSync is RecordBattle without the goroutine.
func (s *EntityService) RecordBattleSync(ctx context.Context, record models.BattleRecord) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return eris.Wrap(s.db.SaveBattleRecord(ctx, &record), "record battle")
}
