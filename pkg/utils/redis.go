package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig carries the connection settings for the metrics store and fire guard.
// Zero durations and sizes fall back to the defaults below.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	PoolSize    int
	DialTimeout time.Duration
	// IOTimeout bounds each read and write.
	IOTimeout time.Duration
}

const (
	defaultRedisPoolSize    = 10
	defaultRedisDialTimeout = 3 * time.Second
	defaultRedisIOTimeout   = 2 * time.Second
)

func (c RedisConfig) options() *redis.Options {
	pool := c.PoolSize
	if pool <= 0 {
		pool = defaultRedisPoolSize
	}
	dial := c.DialTimeout
	if dial <= 0 {
		dial = defaultRedisDialTimeout
	}
	io := c.IOTimeout
	if io <= 0 {
		io = defaultRedisIOTimeout
	}
	return &redis.Options{
		Addr:            c.Addr,
		Password:        c.Password,
		DB:              c.DB,
		DialTimeout:     dial,
		ReadTimeout:     io,
		WriteTimeout:    io,
		PoolSize:        pool,
		MinIdleConns:    pool / 4,
		PoolTimeout:     io + time.Second,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// OpenRedis connects and verifies the server answers PING within the dial timeout.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	opts := cfg.options()
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}
