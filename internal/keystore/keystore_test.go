package keystore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Sansi-28/byteguard/internal/wire"
)

func testKeypair() (wire.KyberPublicKey, wire.KyberPrivateKey) {
	var pub wire.KyberPublicKey
	var priv wire.KyberPrivateKey
	for i := range pub {
		pub[i] = byte(i)
	}
	for i := range priv {
		priv[i] = byte(i + 1)
	}
	return pub, priv
}

func openTestStore(t *testing.T) *Keystore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keystore.db")
	ks, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { ks.Close() })
	return ks
}

func TestHasMissingIdentifier(t *testing.T) {
	ks := openTestStore(t)

	ok, err := ks.Has("researcher-a")
	require.NoError(t, err)
	require.False(t, ok)

	_, _, err = ks.Get("researcher-a")
	require.ErrorIs(t, err, ErrNoKeypair)
}

func TestPutThenGet(t *testing.T) {
	ks := openTestStore(t)
	pub, priv := testKeypair()

	require.NoError(t, ks.Put("researcher-a", pub, priv))

	ok, err := ks.Has("researcher-a")
	require.NoError(t, err)
	require.True(t, ok)

	gotPub, gotPriv, err := ks.Get("researcher-a")
	require.NoError(t, err)
	require.Equal(t, pub, gotPub)
	require.Equal(t, priv, gotPriv)
}

func TestGetOrGenerateOnlyGeneratesOnce(t *testing.T) {
	ks := openTestStore(t)
	calls := 0
	generate := func() (wire.KyberPublicKey, wire.KyberPrivateKey, error) {
		calls++
		pub, priv := testKeypair()
		return pub, priv, nil
	}

	_, _, created, err := ks.GetOrGenerate("researcher-a", generate)
	require.NoError(t, err)
	require.True(t, created)

	_, _, created, err = ks.GetOrGenerate("researcher-a", generate)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, 1, calls)
}
