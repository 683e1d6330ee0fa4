package database

import (
	"context"
	"time"

	"chai-builder-go/internal/config"
	"chai-builder-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

// RDB 被三类键共用：jwt 登出黑名单、点赞去重集合、索引任务失败计数。
var RDB *redis.Client

// InitRedis 初始化 Redis 客户端并做连通性探测。
func InitRedis(cfg config.RedisConfig) {
	RDB = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := RDB.Ping(ctx).Err(); err != nil {
		log.Fatal("failed to connect to redis", err)
	}

	log.Info("Redis client connected successfully")
}
