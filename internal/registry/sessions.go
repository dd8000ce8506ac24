package registry

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Sansi-28/byteguard/internal/apierr"
)

// Sessions is a Redis-backed bearer token table: a durable, race-free
// store so logout and session expiry do not depend on an in-process map.
// Tokens are opaque random strings resolved through Redis with a TTL.
type Sessions struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewSessions constructs a Sessions table with the given TTL.
func NewSessions(client *redis.Client, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Sessions{redis: client, ttl: ttl}
}

func sessionKey(token string) string {
	return "session:" + token
}

// Create mints a fresh opaque bearer token bound to researcherID with this
// table's TTL.
func (s *Sessions) Create(ctx context.Context, researcherID string) (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", apierr.Wrap(apierr.Internal, "generate session token", err)
	}
	token := base64.URLEncoding.EncodeToString(tokenBytes)

	if err := s.redis.Set(ctx, sessionKey(token), researcherID, s.ttl).Err(); err != nil {
		return "", apierr.Wrap(apierr.Internal, "persist session", err)
	}
	return token, nil
}

// Resolve returns the researcher-id bound to token, refreshing its TTL on
// every successful use (a sliding session window).
func (s *Sessions) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", apierr.New(apierr.Unauthorized, "missing session")
	}
	researcherID, err := s.redis.Get(ctx, sessionKey(token)).Result()
	if err == redis.Nil {
		return "", apierr.New(apierr.Unauthorized, "unknown session")
	}
	if err != nil {
		return "", apierr.Wrap(apierr.Internal, "resolve session", err)
	}
	s.redis.Expire(ctx, sessionKey(token), s.ttl)
	return researcherID, nil
}

// Destroy removes a session token immediately, independent of its TTL.
func (s *Sessions) Destroy(ctx context.Context, token string) error {
	if err := s.redis.Del(ctx, sessionKey(token)).Err(); err != nil {
		return apierr.Wrap(apierr.Internal, "destroy session", fmt.Errorf("%w", err))
	}
	return nil
}
