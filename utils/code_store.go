package utils

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"
)

const (
	codeKeyPrefix     = "otp:code:"
	cooldownKeyPrefix = "otp:cooldown:"
)

var ten = big.NewInt(10)

// GenerateVerificationCode returns n random decimal digits.
func GenerateVerificationCode(n int) string {
	if n <= 0 {
		n = 6
	}
	digits := make([]byte, n)
	for i := range digits {
		v, err := rand.Int(rand.Reader, ten)
		if err != nil {
			panic("crypto/rand unavailable: " + err.Error())
		}
		digits[i] = byte('0' + v.Int64())
	}
	return string(digits)
}

// SaveCode stores the one-time code for email, replacing any earlier one.
func SaveCode(email, code string, ttl time.Duration) {
	kvSet(context.Background(), codeKeyPrefix+email, code, ttl)
}

// VerifyAndConsumeCode reports whether code matches. A match consumes the code; a miss
// leaves it in place until it expires.
func VerifyAndConsumeCode(email, code string) bool {
	ctx := context.Background()
	key := codeKeyPrefix + email
	stored, ok := kvGet(ctx, key)
	if !ok || stored != code {
		return false
	}
	// a concurrent verify may have taken it between the read and the delete
	taken, ok := kvGetDel(ctx, key)
	return ok && taken == code
}

// EmailCooldownTrySet starts the resend cooldown for email. It returns false while one runs.
func EmailCooldownTrySet(email string, cooldown time.Duration) bool {
	return kvSetNX(context.Background(), cooldownKeyPrefix+email, cooldown)
}
