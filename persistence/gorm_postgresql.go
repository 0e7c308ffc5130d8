// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/wfunc/petlobby/models"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	// 配置GORM日志
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, eris.Wrap(err, "open gorm postgres")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, eris.Wrap(err, "gorm sql handle")
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return NewGormWithDB(db)
}

// NewGormWithDB wraps an opened gorm handle and migrates the schema.
func NewGormWithDB(db *gorm.DB) (*GormPostgreSQL, error) {
	if err := db.AutoMigrate(&models.GormEntity{}, &models.GormBattleRecord{}); err != nil {
		return nil, eris.Wrap(err, "auto migrate")
	}
	return &GormPostgreSQL{db: db}, nil
}

func (p *GormPostgreSQL) FindEntity(ctx context.Context, id string) (*models.Entity, error) {
	var row models.GormEntity
	if err := p.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, eris.Wrapf(err, "find entity %s", id)
	}
	return row.ToEntity(), nil
}

func (p *GormPostgreSQL) SaveEntity(ctx context.Context, e *models.Entity) error {
	row := models.NewGormEntity(e)
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "class_name", "personality", "level", "experience", "stats", "updated_at"}),
	}).Create(row).Error
	return eris.Wrapf(err, "save entity %s", e.ID)
}

func (p *GormPostgreSQL) SaveBattleRecord(ctx context.Context, r *models.BattleRecord) error {
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(models.NewGormBattleRecord(r)).Error
	return eris.Wrapf(err, "save battle record %s", r.BattleID)
}

// BattlesOf 查询某只宠物参与的对战记录
func (p *GormPostgreSQL) BattlesOf(ctx context.Context, entityID string, limit int) ([]models.GormBattleRecord, error) {
	var rows []models.GormBattleRecord
	err := p.db.WithContext(ctx).
		Where("player1_id = ? OR player2_id = ?", entityID, entityID).
		Order("ended_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, eris.Wrapf(err, "battles of %s", entityID)
}

// Transaction 事务支持
func (p *GormPostgreSQL) Transaction(fn func(tx *gorm.DB) error) error {
	return p.db.Transaction(fn)
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
