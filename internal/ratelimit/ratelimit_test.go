package ratelimit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/Sansi-28/byteguard/internal/apierr"
)

func newTestLimiter(t *testing.T) *Limiter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewLimiter(client, hclog.NewNullLogger())
}

func TestCheckLookupAllowsUnderLimit(t *testing.T) {
	l := newTestLimiter(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, l.CheckLookup(context.Background(), "alice", "bob"))
	}
}

func TestCheckLookupCallerLimitExceeded(t *testing.T) {
	l := newTestLimiter(t)
	limits := DefaultLookupLimits()
	for i := 0; i < limits.CallerLimit; i++ {
		require.NoError(t, l.CheckLookup(context.Background(), "alice", ""))
	}
	err := l.CheckLookup(context.Background(), "alice", "")
	require.Error(t, err)
	require.Equal(t, apierr.Forbidden, apierr.KindOf(err))
}

func TestCheckShareCodeFetchLimitExceeded(t *testing.T) {
	l := newTestLimiter(t)
	limits := DefaultShareCodeFetchLimits()
	for i := 0; i < limits.CallerLimit; i++ {
		require.NoError(t, l.CheckShareCodeFetch(context.Background(), "bob"))
	}
	err := l.CheckShareCodeFetch(context.Background(), "bob")
	require.Error(t, err)
	require.Equal(t, apierr.Forbidden, apierr.KindOf(err))
}

func TestNilLimiterFailsOpen(t *testing.T) {
	var l *Limiter
	require.NoError(t, l.CheckLookup(context.Background(), "alice", "bob"))
	require.NoError(t, l.CheckShareCodeFetch(context.Background(), "bob"))
}
