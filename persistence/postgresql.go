// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// PostgreSQL 驱动
	_ "github.com/lib/pq"
	"github.com/rotisserie/eris"

	"github.com/wfunc/petlobby/models"
)

// PostgreSQL 数据库实现
type PostgreSQL struct {
	db *sql.DB
}

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, eris.Wrap(err, "open postgres")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, eris.Wrap(err, "ping postgres")
	}

	// 设置连接池参数
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(ctx, db); err != nil {
		return nil, eris.Wrap(err, "init tables")
	}

	return &PostgreSQL{db: db}, nil
}

// initTables 初始化数据库表结构
func initTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS entities (
            id VARCHAR(64) PRIMARY KEY,
            owner_id VARCHAR(64) NOT NULL,
            name VARCHAR(255) NOT NULL,
            class_name VARCHAR(100),
            personality VARCHAR(100),
            level INT NOT NULL DEFAULT 1,
            experience INT NOT NULL DEFAULT 0,
            stats JSONB,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS battle_records (
            id SERIAL PRIMARY KEY,
            battle_id VARCHAR(255) UNIQUE NOT NULL,
            player1_id VARCHAR(64) NOT NULL,
            player1_name VARCHAR(255),
            player2_id VARCHAR(64) NOT NULL,
            player2_name VARCHAR(255),
            winner VARCHAR(64),
            abandoned BOOLEAN NOT NULL DEFAULT FALSE,
            started_at TIMESTAMP NOT NULL,
            ended_at TIMESTAMP NOT NULL,
            duration_secs INT NOT NULL DEFAULT 0
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
        CREATE INDEX IF NOT EXISTS idx_entities_owner_id ON entities(owner_id);
        CREATE INDEX IF NOT EXISTS idx_battle_records_player1 ON battle_records(player1_id);
        CREATE INDEX IF NOT EXISTS idx_battle_records_player2 ON battle_records(player2_id);
    `)
	return err
}

func (p *PostgreSQL) FindEntity(ctx context.Context, id string) (*models.Entity, error) {
	var (
		e                      models.Entity
		className, personality sql.NullString
		stats                  []byte
	)
	query := `SELECT id, owner_id, name, class_name, personality, level, experience, stats, created_at, updated_at
              FROM entities WHERE id = $1`
	err := p.db.QueryRowContext(ctx, query, id).Scan(
		&e.ID, &e.OwnerID, &e.Name, &className, &personality,
		&e.Level, &e.Experience, &stats, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, eris.Wrapf(err, "find entity %s", id)
	}
	e.ClassName = className.String
	e.Personality = personality.String
	e.Stats = stats
	return &e, nil
}

// SaveEntity 使用 UPSERT 保存宠物记录
func (p *PostgreSQL) SaveEntity(ctx context.Context, e *models.Entity) error {
	var stats interface{}
	if len(e.Stats) > 0 {
		stats = []byte(e.Stats)
	}

	query := `
        INSERT INTO entities (id, owner_id, name, class_name, personality, level, experience, stats)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (id)
        DO UPDATE SET name = $3, class_name = $4, personality = $5, level = $6,
                      experience = $7, stats = $8, updated_at = CURRENT_TIMESTAMP
    `
	_, err := p.db.ExecContext(ctx, query,
		e.ID, e.OwnerID, e.Name, e.ClassName, e.Personality, e.Level, e.Experience, stats)
	return eris.Wrapf(err, "save entity %s", e.ID)
}

func (p *PostgreSQL) SaveBattleRecord(ctx context.Context, r *models.BattleRecord) error {
	query := `
        INSERT INTO battle_records (battle_id, player1_id, player1_name, player2_id, player2_name,
                                    winner, abandoned, started_at, ended_at, duration_secs)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (battle_id) DO NOTHING
    `
	_, err := p.db.ExecContext(ctx, query,
		r.BattleID, r.Player1.EntityID, r.Player1.Name, r.Player2.EntityID, r.Player2.Name,
		r.Winner, r.Abandoned, r.StartedAt, r.EndedAt, int(r.EndedAt.Sub(r.StartedAt).Seconds()))
	return eris.Wrapf(err, "save battle record %s", r.BattleID)
}

// Close 关闭数据库连接
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
