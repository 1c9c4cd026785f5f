package storage

import (
	"context"

	"github.com/redis/go-redis/v9"
)

var Rdb *redis.Client
var Ctx = context.Background()

func InitRedis(addr, password string, db int) error {
	Rdb = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return Rdb.Ping(Ctx).Err()
}

// CloseRedis 未初始化时什么也不做
func CloseRedis() error {
	if Rdb == nil {
		return nil
	}
	return Rdb.Close()
}
