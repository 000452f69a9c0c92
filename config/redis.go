package config

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
)

var RedisClient *redis.Client

// InitRedis connects the shared Redis client backing session snapshots, the
// audio turn stream, and live event pub/sub. The address is read from
// REDIS_ADDR, falling back to REDIS_URI then REDIS_URL; redis:// and
// rediss:// URLs are parsed for credentials and TLS.
func InitRedis() error {
	addr := os.Getenv("REDIS_ADDR")
	for _, alt := range []string{"REDIS_URI", "REDIS_URL"} {
		if addr != "" {
			break
		}
		addr = os.Getenv(alt)
	}
	if addr == "" {
		return errors.New("REDIS_ADDR (or REDIS_URI/REDIS_URL) environment variable is not set")
	}

	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opt, err := redis.ParseURL(addr)
		if err != nil {
			return err
		}
		RedisClient = redis.NewClient(opt)
	} else {
		RedisClient = redis.NewClient(&redis.Options{Addr: addr})
	}

	return RedisClient.Ping(context.Background()).Err()
}
