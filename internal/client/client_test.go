package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Sansi-28/byteguard/internal/apierr"
	"github.com/Sansi-28/byteguard/internal/cryptoengine"
	"github.com/Sansi-28/byteguard/internal/keystore"
	"github.com/Sansi-28/byteguard/internal/wire"
)

func newTestKeystore(t *testing.T) *keystore.Keystore {
	t.Helper()
	ks, err := keystore.Open(filepath.Join(t.TempDir(), "keystore.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ks.Close() })
	return ks
}

func TestUploadSendsMultipartFieldsAndOwnerWrap(t *testing.T) {
	ks := newTestKeystore(t)

	var gotFileName, gotOriginalSize, gotOwnerKemCt string
	var gotFileBytes int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(10<<20))
		gotFileName = r.FormValue("fileName")
		gotOriginalSize = r.FormValue("originalSize")
		gotOwnerKemCt = r.FormValue("ownerKemCt")

		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		buf := make([]byte, 1<<20)
		n, _ := file.Read(buf)
		gotFileBytes = n

		json.NewEncoder(w).Encode(map[string]int64{"file_id": 42})
	}))
	defer srv.Close()

	c := New(srv.URL, ks)
	c.researcherID = "alice"
	_, _, _, err := ks.GetOrGenerate("alice", cryptoengine.GenerateKeypair)
	require.NoError(t, err)

	plaintext := []byte("hello, world")
	result, err := c.Upload(context.Background(), "greeting.txt", "text/plain", plaintext)
	require.NoError(t, err)
	require.Equal(t, int64(42), result.FileID)

	require.Equal(t, "greeting.txt", gotFileName)
	require.Equal(t, "12", gotOriginalSize)
	require.NotEmpty(t, gotOwnerKemCt)
	decoded, err := base64.StdEncoding.DecodeString(gotOwnerKemCt)
	require.NoError(t, err)
	require.Len(t, decoded, wire.KEMPayloadSize)
	require.Greater(t, gotFileBytes, 0)
}

func TestUploadWithNoKeypairFails(t *testing.T) {
	ks := newTestKeystore(t)
	c := New("http://unused", ks)
	c.researcherID = "alice"

	_, err := c.Upload(context.Background(), "f.txt", "text/plain", []byte("data"))
	require.Error(t, err)
	require.Equal(t, apierr.NoKeypair, apierr.KindOf(err))
}

func TestDoTranslatesErrorBody(t *testing.T) {
	ks := newTestKeystore(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{"error": "nope", "kind": "forbidden"})
	}))
	defer srv.Close()

	c := New(srv.URL, ks)
	_, err := c.LookupPublicKey(context.Background(), "bob")
	require.Error(t, err)
	require.Equal(t, apierr.Forbidden, apierr.KindOf(err))
}

func TestLoginGeneratesAndPublishesKeyOnFirstUse(t *testing.T) {
	ks := newTestKeystore(t)

	var publishedKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/identities/login":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"token":          "tok-123",
				"researcher_id":  "alice",
				"has_public_key": false,
			})
		case "/api/identities/public-key":
			var body struct {
				PublicKey string `json:"public_key"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			publishedKey = body.PublicKey
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, ks)
	err := c.Login(context.Background(), "alice", "correct horse battery staple")
	require.NoError(t, err)
	require.NotEmpty(t, publishedKey)

	has, err := ks.Has("alice")
	require.NoError(t, err)
	require.True(t, has)
}
