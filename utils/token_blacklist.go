package utils

import (
	"context"
	"time"
)

const blacklistKeyPrefix = "jwt:revoked:"

// BlacklistToken revokes a session JWT until its own expiry (logout).
func BlacklistToken(token string, expiresAt time.Time) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return
	}
	kvSet(context.Background(), blacklistKeyPrefix+token, "1", ttl)
}

// IsTokenBlacklisted reports whether a session JWT was revoked before it expired.
func IsTokenBlacklisted(token string) bool {
	_, revoked := kvGet(context.Background(), blacklistKeyPrefix+token)
	return revoked
}
