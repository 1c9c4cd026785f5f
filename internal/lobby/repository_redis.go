package lobby

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisRepo struct {
	rdb *redis.Client
}

func NewRedisRepo(rdb *redis.Client) Repo {
	return &redisRepo{rdb: rdb}
}

// key 约定：
//
//	set: lobby:tables                 -> Set(tableID,...)
//	kv : lobby:table:{id}             -> TableSummary JSON（带 TTL，进程退出后自然过期）
//	kv : lobby:playerTable:{address}  -> tableID
const tablesKey = "lobby:tables"

func tableKey(id string) string {
	return fmt.Sprintf("lobby:table:%s", id)
}
func playerTableKey(addr string) string {
	return fmt.Sprintf("lobby:playerTable:%s", addr)
}

func (r *redisRepo) SaveTable(ctx context.Context, t TableSummary, ttlSeconds int) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	p := r.rdb.Pipeline()
	p.SAdd(ctx, tablesKey, t.ID)
	p.Set(ctx, tableKey(t.ID), data, time.Duration(ttlSeconds)*time.Second)
	_, err = p.Exec(ctx)
	return err
}

func (r *redisRepo) ListTables(ctx context.Context) ([]TableSummary, error) {
	ids, err := r.rdb.SMembers(ctx, tablesKey).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	out := make([]TableSummary, 0, len(ids))
	for _, id := range ids {
		t, ok, err := r.GetTable(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			// 摘要已过期，顺手清理集合
			_ = r.rdb.SRem(ctx, tablesKey, id).Err()
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *redisRepo) GetTable(ctx context.Context, id string) (TableSummary, bool, error) {
	var t TableSummary
	raw, err := r.rdb.Get(ctx, tableKey(id)).Bytes()
	if err == redis.Nil {
		return t, false, nil
	}
	if err != nil {
		return t, false, err
	}
	if err := json.Unmarshal(raw, &t); err != nil {
		return t, false, err
	}
	return t, true, nil
}

func (r *redisRepo) SetPlayerTable(ctx context.Context, address, tableID string) error {
	return r.rdb.Set(ctx, playerTableKey(address), tableID, 0).Err()
}

func (r *redisRepo) GetPlayerTable(ctx context.Context, address string) (string, error) {
	val, err := r.rdb.Get(ctx, playerTableKey(address)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (r *redisRepo) ClearPlayerTable(ctx context.Context, address string) error {
	return r.rdb.Del(ctx, playerTableKey(address)).Err()
}
