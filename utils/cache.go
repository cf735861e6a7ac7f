package utils

import (
	"context"
	"encoding/json"
	"time"
)

// CacheKeyLeaderboard prefixes cached leaderboard listings.
const CacheKeyLeaderboard = "cache:leaderboard:"

const leaderboardTTL = time.Minute

// CachedLeaderboard returns the rendered response body stored under name.
func CachedLeaderboard(name string) ([]byte, bool) {
	v, ok := kvGet(context.Background(), CacheKeyLeaderboard+name)
	if !ok {
		return nil, false
	}
	return []byte(v), true
}

// StoreLeaderboard caches the JSON rendering of body under name.
func StoreLeaderboard(name string, body any) {
	b, err := json.Marshal(body)
	if err != nil {
		if Sugar != nil {
			Sugar.Warnf("leaderboard cache encode %s: %v", name, err)
		}
		return
	}
	kvSet(context.Background(), CacheKeyLeaderboard+name, string(b), leaderboardTTL)
}

// InvalidateLeaderboards drops every cached leaderboard; called whenever points move.
func InvalidateLeaderboards() {
	kvDeletePrefix(context.Background(), CacheKeyLeaderboard)
}
