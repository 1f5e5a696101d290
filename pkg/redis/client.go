/*
Package redis wraps go-redis with a fixed connection-pool configuration
(PoolSize, MinIdleConns, dial/read/write timeouts). It carries no
package-level Client singleton: the chatservice instances and the
sequence/session/offline/pubsub managers built on this client are
constructed once by a composition root and handed the client
explicitly.
*/
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config is a Redis connection's configuration.
type Config struct {
	Addr     string
	Password string
	DB       int

	// PoolSize defaults to 100 when zero.
	PoolSize int
}

// Open dials Redis and verifies reachability with PING before returning.
func Open(cfg Config) (*redis.Client, error) {
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 100
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     cfg.PoolSize,
		MinIdleConns: 10,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: connect to %s: %w", cfg.Addr, err)
	}

	log.Printf("[Redis] connected to %s", cfg.Addr)
	return client, nil
}

// Pipeline runs fn against client's pipeliner, issuing every queued
// command in a single round trip.
func Pipeline(ctx context.Context, client *redis.Client, fn func(pipe redis.Pipeliner) error) error {
	_, err := client.Pipelined(ctx, fn)
	return err
}
