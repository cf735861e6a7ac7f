package utils

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisOpTimeout = 2 * time.Second

type memItem struct {
	value     string
	expiresAt time.Time
}

// memStore stands in for Redis inside one process. Entries expire lazily on access.
type memStore struct {
	mu    sync.Mutex
	items map[string]memItem
}

var local = &memStore{items: map[string]memItem{}}

// live returns the unexpired entry under key. Callers hold mu.
func (m *memStore) live(key string) (memItem, bool) {
	it, ok := m.items[key]
	if !ok {
		return memItem{}, false
	}
	if !time.Now().Before(it.expiresAt) {
		delete(m.items, key)
		return memItem{}, false
	}
	return it, true
}

func (m *memStore) set(key, value string, ttl time.Duration) {
	m.mu.Lock()
	m.items[key] = memItem{value: value, expiresAt: time.Now().Add(ttl)}
	m.mu.Unlock()
}

func (m *memStore) setNX(key, value string, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.live(key); ok {
		return false
	}
	m.items[key] = memItem{value: value, expiresAt: time.Now().Add(ttl)}
	return true
}

func (m *memStore) get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.live(key)
	return it.value, ok
}

func (m *memStore) getDel(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.live(key)
	delete(m.items, key)
	return it.value, ok
}

func (m *memStore) deletePrefix(prefix string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.items {
		if strings.HasPrefix(k, prefix) {
			delete(m.items, k)
		}
	}
}

// redisFailed reports whether err means Redis itself is unusable, as opposed to a missing key.
func redisFailed(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) {
		return false
	}
	markRedisDown(err)
	return true
}

// kvSet stores value for ttl in Redis, falling back to the local store.
func kvSet(ctx context.Context, key, value string, ttl time.Duration) {
	if rc := liveRedis(); rc != nil {
		cctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
		err := rc.Set(cctx, key, value, ttl).Err()
		cancel()
		if !redisFailed(err) {
			return
		}
	}
	local.set(key, value, ttl)
}

// kvSetNX claims key for ttl. It returns false while another holder has it.
func kvSetNX(ctx context.Context, key string, ttl time.Duration) bool {
	if rc := liveRedis(); rc != nil {
		cctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
		ok, err := rc.SetNX(cctx, key, "1", ttl).Result()
		cancel()
		if !redisFailed(err) {
			return ok
		}
	}
	return local.setNX(key, "1", ttl)
}

// kvGet reads key from Redis, then from the local store.
func kvGet(ctx context.Context, key string) (string, bool) {
	if rc := liveRedis(); rc != nil {
		cctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
		v, err := rc.Get(cctx, key).Result()
		cancel()
		if err == nil {
			return v, true
		}
		redisFailed(err)
	}
	return local.get(key)
}

// kvGetDel reads and removes key atomically. Redis >= 6.2 is required for GETDEL.
func kvGetDel(ctx context.Context, key string) (string, bool) {
	if rc := liveRedis(); rc != nil {
		cctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
		v, err := rc.GetDel(cctx, key).Result()
		cancel()
		if err == nil {
			return v, true
		}
		redisFailed(err)
	}
	return local.getDel(key)
}

// kvDeletePrefix removes every key under prefix in both stores.
func kvDeletePrefix(ctx context.Context, prefix string) {
	local.deletePrefix(prefix)
	rc := liveRedis()
	if rc == nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var cursor uint64
	for i := 0; i < 10; i++ {
		keys, next, err := rc.Scan(cctx, cursor, prefix+"*", 1000).Result()
		if redisFailed(err) {
			return
		}
		if len(keys) > 0 {
			rc.Del(cctx, keys...)
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}
