package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ConnectRedis подключается к Redis (с поддержкой Sentinel).
// Если указаны sentinelAddrs и masterName, используется Sentinel,
// иначе прямое подключение через redisURL.
func ConnectRedis(redisURL string, sentinelAddrs []string, masterName string, log *zap.Logger) (*redis.Client, error) {
	if len(sentinelAddrs) > 0 && masterName != "" {
		return connectRedisWithSentinel(sentinelAddrs, masterName, log)
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opt.PoolSize = 100
	opt.MinIdleConns = 10
	opt.MaxRetries = 3

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("✅ Redis connected successfully (direct connection)")
	return client, nil
}

func connectRedisWithSentinel(sentinelAddrs []string, masterName string, log *zap.Logger) (*redis.Client, error) {
	client := redis.NewFailoverClient(&redis.FailoverOptions{
		MasterName:    masterName,
		SentinelAddrs: sentinelAddrs,
		PoolSize:      100,
		MinIdleConns:  10,
		MaxRetries:    3,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis Sentinel: %w", err)
	}

	log.Info("✅ Redis Sentinel connected successfully",
		zap.String("master", masterName), zap.Strings("sentinels", sentinelAddrs))
	return client, nil
}

// CloseRedis закрывает подключение к Redis
func CloseRedis(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
