package registry

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/Sansi-28/byteguard/internal/apierr"
)

func newTestSessions(t *testing.T) *Sessions {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewSessions(client, time.Hour)
}

func TestSessionsCreateAndResolve(t *testing.T) {
	sessions := newTestSessions(t)
	ctx := context.Background()

	token, err := sessions.Create(ctx, "researcher-a")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	researcherID, err := sessions.Resolve(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "researcher-a", researcherID)
}

func TestSessionsResolveUnknownToken(t *testing.T) {
	sessions := newTestSessions(t)
	_, err := sessions.Resolve(context.Background(), "not-a-real-token")
	require.True(t, apierr.Is(err, apierr.Unauthorized))
}

func TestSessionsDestroy(t *testing.T) {
	sessions := newTestSessions(t)
	ctx := context.Background()

	token, err := sessions.Create(ctx, "researcher-a")
	require.NoError(t, err)

	require.NoError(t, sessions.Destroy(ctx, token))

	_, err = sessions.Resolve(ctx, token)
	require.True(t, apierr.Is(err, apierr.Unauthorized))
}
