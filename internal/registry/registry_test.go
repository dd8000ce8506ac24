package registry

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/Sansi-28/byteguard/internal/apierr"
)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := NewService(db, newTestSessions(t), hclog.NewNullLogger(), 20, 6)
	return svc, mock
}

func TestRegisterWeakPassword(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Register(context.Background(), "researcher-a", "short", nil)
	require.True(t, apierr.Is(err, apierr.WeakPassword))
}

func TestRegisterBadKeyLength(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Register(context.Background(), "researcher-a", "goodpassword", make([]byte, 10))
	require.True(t, apierr.Is(err, apierr.BadKey))
}

func TestRegisterAlreadyExists(t *testing.T) {
	svc, mock := newTestService(t)
	mock.ExpectExec("INSERT INTO identities").
		WillReturnError(&fakePQError{"duplicate key value violates unique constraint (SQLSTATE 23505)"})

	_, err := svc.Register(context.Background(), "researcher-a", "goodpassword", nil)
	require.True(t, apierr.Is(err, apierr.AlreadyExists))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterSuccess(t *testing.T) {
	svc, mock := newTestService(t)
	mock.ExpectExec("INSERT INTO identities").
		WillReturnResult(sqlmock.NewResult(1, 1))

	token, err := svc.Register(context.Background(), "researcher-a", "goodpassword", nil)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoginUnknownIdentifierIsBadCredentials(t *testing.T) {
	svc, mock := newTestService(t)
	mock.ExpectQuery("SELECT password_hash").
		WithArgs("nobody").
		WillReturnError(sqlmockNoRows)

	_, _, err := svc.Login(context.Background(), "nobody", "whatever")
	require.True(t, apierr.Is(err, apierr.BadCredentials))
}

func TestLoginWrongPasswordIsBadCredentials(t *testing.T) {
	svc, mock := newTestService(t)
	rows := sqlmock.NewRows([]string{"password_hash", "has_public_key", "created_at"}).
		AddRow(bcryptHash(t, "correct-password"), false, time.Now())
	mock.ExpectQuery("SELECT password_hash").
		WithArgs("researcher-a").
		WillReturnRows(rows)

	_, _, err := svc.Login(context.Background(), "researcher-a", "wrong-password")
	require.True(t, apierr.Is(err, apierr.BadCredentials))
}

func TestLoginSuccess(t *testing.T) {
	svc, mock := newTestService(t)
	rows := sqlmock.NewRows([]string{"password_hash", "has_public_key", "created_at"}).
		AddRow(bcryptHash(t, "correct-password"), true, time.Now())
	mock.ExpectQuery("SELECT password_hash").
		WithArgs("researcher-a").
		WillReturnRows(rows)

	token, snapshot, err := svc.Login(context.Background(), "researcher-a", "correct-password")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.True(t, snapshot.HasPublicKey)
}

func TestLookupPublicKeyNotFound(t *testing.T) {
	svc, mock := newTestService(t)
	mock.ExpectQuery("SELECT public_key FROM identities").
		WithArgs("researcher-a").
		WillReturnError(sqlmockNoRows)

	_, err := svc.LookupPublicKey(context.Background(), "researcher-a")
	require.True(t, apierr.Is(err, apierr.NotFound))
}
