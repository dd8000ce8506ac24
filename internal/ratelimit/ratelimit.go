// Package ratelimit provides Redis-based rate limiting for identity
// lookup, search, and share-code fetch operations.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"

	"github.com/Sansi-28/byteguard/internal/apierr"
)

// Limiter provides rate limiting functionality using Redis.
type Limiter struct {
	redis *redis.Client
	log   hclog.Logger
}

// NewLimiter creates a new rate limiter. A nil client disables limiting
// entirely (fail-open), matching Limiter's zero-value behavior.
func NewLimiter(client *redis.Client, log hclog.Logger) *Limiter {
	return &Limiter{redis: client, log: log}
}

// LookupLimits defines the rate limits for identity lookup and search.
type LookupLimits struct {
	// Per-caller: how many lookups a single session can make.
	CallerLimit  int
	CallerWindow time.Duration

	// Per-target: how many times a single identity can be looked up.
	// High counts indicate someone is enumerating identities.
	TargetLimit  int
	TargetWindow time.Duration
}

// DefaultLookupLimits returns the recommended lookup/search limits.
func DefaultLookupLimits() LookupLimits {
	return LookupLimits{
		CallerLimit:  30,
		CallerWindow: time.Minute,
		TargetLimit:  100,
		TargetWindow: time.Minute,
	}
}

// ShareCodeFetchLimits defines the rate limit for fetch-by-code attempts,
// independent of identity lookup: a share-code is a lookup handle, not a
// bearer secret, so the defense against guessing is rate limiting the
// caller rather than widening the code space.
type ShareCodeFetchLimits struct {
	CallerLimit  int
	CallerWindow time.Duration
}

// DefaultShareCodeFetchLimits returns the recommended fetch-by-code limit.
func DefaultShareCodeFetchLimits() ShareCodeFetchLimits {
	return ShareCodeFetchLimits{CallerLimit: 20, CallerWindow: time.Minute}
}

// CheckLookup enforces the per-caller and per-target limits on
// lookup-public-key and search. targetID may be empty for a prefix
// search with no single target.
func (l *Limiter) CheckLookup(ctx context.Context, callerID, targetID string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	limits := DefaultLookupLimits()

	callerKey := fmt.Sprintf("ratelimit:lookup:caller:%s", callerID)
	if err := l.checkLimit(ctx, callerKey, limits.CallerLimit, limits.CallerWindow); err != nil {
		return err
	}

	if targetID != "" {
		targetKey := fmt.Sprintf("ratelimit:lookup:target:%s", targetID)
		if err := l.checkLimit(ctx, targetKey, limits.TargetLimit, limits.TargetWindow); err != nil {
			l.log.Warn("ratelimit: target lookup limit exceeded, possible identity enumeration", "target", targetID)
			return err
		}
	}

	return nil
}

// CheckShareCodeFetch enforces the per-caller limit on fetch-by-code.
func (l *Limiter) CheckShareCodeFetch(ctx context.Context, callerID string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	limits := DefaultShareCodeFetchLimits()
	key := fmt.Sprintf("ratelimit:sharecode:caller:%s", callerID)
	return l.checkLimit(ctx, key, limits.CallerLimit, limits.CallerWindow)
}

// checkLimit performs the actual rate limit check using Redis INCR.
// Redis errors fail open to preserve availability.
func (l *Limiter) checkLimit(ctx context.Context, key string, limit int, window time.Duration) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return nil
	}

	if count == 1 {
		l.redis.Expire(ctx, key, window)
	}

	if int(count) > limit {
		return apierr.New(apierr.Forbidden, "rate limit exceeded")
	}
	return nil
}
