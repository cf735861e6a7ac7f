package utils

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cppla/incentive/config"
)

// after a failed call, Redis is skipped for this long and the local store serves alone
const redisBackoff = 30 * time.Second

var (
	redisClient *redis.Client
	redisOnce   sync.Once

	redisMu        sync.Mutex
	redisDownUntil time.Time
)

// GetRedis returns a singleton Redis client based on loaded config.
func GetRedis() *redis.Client {
	redisOnce.Do(func() {
		cfg := config.Get()
		redisClient = redis.NewClient(&redis.Options{
			Addr:         net.JoinHostPort(cfg.RedisHost, strconv.Itoa(cfg.RedisPort)),
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  3 * time.Second,
			ReadTimeout:  2 * time.Second,
			WriteTimeout: 2 * time.Second,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			markRedisDown(err)
		}
	})
	return redisClient
}

// liveRedis is GetRedis, or nil while the client is backing off after a failure.
func liveRedis() *redis.Client {
	rc := GetRedis()
	redisMu.Lock()
	defer redisMu.Unlock()
	if time.Now().Before(redisDownUntil) {
		return nil
	}
	return rc
}

func markRedisDown(err error) {
	redisMu.Lock()
	wasUp := !time.Now().Before(redisDownUntil)
	redisDownUntil = time.Now().Add(redisBackoff)
	redisMu.Unlock()
	if wasUp && Sugar != nil {
		Sugar.Warnf("redis unavailable, using local stores for %s: %v", redisBackoff, err)
	}
}

// CloseRedis releases the client on shutdown.
func CloseRedis() {
	if redisClient != nil {
		_ = redisClient.Close()
	}
}
