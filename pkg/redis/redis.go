// Package redis opens a go-redis client and checks the connection.
package redis

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

type Config interface {
	GetAddr() string
	GetPassword() string
	GetDB() int
}

func New(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.GetAddr(),
		Password: cfg.GetPassword(),
		DB:       cfg.GetDB(),
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}
