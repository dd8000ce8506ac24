package registry

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var sqlmockNoRows = sql.ErrNoRows

type fakePQError struct {
	msg string
}

func (e *fakePQError) Error() string { return e.msg }

func bcryptHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	require.NoError(t, err)
	return string(hash)
}
