package utils

import (
	"context"
	"time"
)

// JobLease grants one holder per key for ttl, so a scheduled job fires at most once
// per window even when several processes run the scheduler. Without Redis the lease
// only covers this process.
type JobLease struct {
	prefix string
}

// NewJobLease returns a lease whose keys live under prefix.
func NewJobLease(prefix string) *JobLease {
	if prefix == "" {
		prefix = "job:lease:"
	}
	return &JobLease{prefix: prefix}
}

// Acquire returns true when the caller now holds key for ttl.
func (l *JobLease) Acquire(ctx context.Context, key string, ttl time.Duration) bool {
	return kvSetNX(ctx, l.prefix+key, ttl)
}
