package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"coinledger/internal/config"

	"github.com/go-redis/redis/v8"
)

// InitRedis connects the redis client used for transfer request locking.
func InitRedis(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect redis: %w", err)
	}

	log.Println("[Redis] connected")
	return client, nil
}
