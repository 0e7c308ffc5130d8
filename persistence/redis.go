// persistence/redis.go
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/wfunc/petlobby/models"
)

const battleHistoryKey = "battles:history"

func entityKey(id string) string           { return "pet:" + id }
func ownerEntitiesKey(owner string) string { return "user:" + owner + ":pets" }

// RedisStore keeps entities as JSON under pet:<id> with a per-owner id set,
// and battle records in a capped list.
type RedisStore struct {
	client     *redis.Client
	historyCap int64
}

// NewRedisStore connects and pings the server.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, eris.Wrapf(err, "redis ping %s", addr)
	}
	return NewRedisStoreWithClient(client), nil
}

func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, historyCap: 1000}
}

func (r *RedisStore) FindEntity(ctx context.Context, id string) (*models.Entity, error) {
	raw, err := r.client.Get(ctx, entityKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRecordNotFound
		}
		return nil, eris.Wrapf(err, "get entity %s", id)
	}

	var entity models.Entity
	if err := json.Unmarshal(raw, &entity); err != nil {
		return nil, eris.Wrapf(err, "decode entity %s", id)
	}
	return &entity, nil
}

func (r *RedisStore) SaveEntity(ctx context.Context, entity *models.Entity) error {
	now := time.Now().UTC()
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = now
	}
	entity.UpdatedAt = now

	raw, err := json.Marshal(entity)
	if err != nil {
		return eris.Wrap(err, "encode entity")
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, entityKey(entity.ID), raw, 0)
		if entity.OwnerID != "" {
			pipe.SAdd(ctx, ownerEntitiesKey(entity.OwnerID), entity.ID)
		}
		return nil
	})
	return eris.Wrapf(err, "save entity %s", entity.ID)
}

// EntityIDsByOwner lists the entity ids registered for an owner.
func (r *RedisStore) EntityIDsByOwner(ctx context.Context, ownerID string) ([]string, error) {
	ids, err := r.client.SMembers(ctx, ownerEntitiesKey(ownerID)).Result()
	return ids, eris.Wrapf(err, "list entities of %s", ownerID)
}

func (r *RedisStore) SaveBattleRecord(ctx context.Context, record *models.BattleRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return eris.Wrap(err, "encode battle record")
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, battleHistoryKey, raw)
		pipe.LTrim(ctx, battleHistoryKey, 0, r.historyCap-1)
		return nil
	})
	return eris.Wrapf(err, "save battle record %s", record.BattleID)
}

// RecentBattles returns up to n records, newest first.
func (r *RedisStore) RecentBattles(ctx context.Context, n int64) ([]models.BattleRecord, error) {
	raws, err := r.client.LRange(ctx, battleHistoryKey, 0, n-1).Result()
	if err != nil {
		return nil, eris.Wrap(err, "list battle records")
	}

	records := make([]models.BattleRecord, 0, len(raws))
	for _, raw := range raws {
		var rec models.BattleRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, eris.Wrap(err, "decode battle record")
		}
		records = append(records, rec)
	}
	return records, nil
}

func (r *RedisStore) Close() error {
	return eris.Wrap(r.client.Close(), "close redis")
}
