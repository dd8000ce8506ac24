package blobstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/Sansi-28/byteguard/internal/apierr"
)

func newTestService(t *testing.T, authorize AuthorizeFunc) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	return newTestServiceWithDeleteShares(t, authorize, nil)
}

func newTestServiceWithDeleteShares(t *testing.T, authorize AuthorizeFunc, deleteShares DeleteSharesFunc) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	if authorize == nil {
		authorize = func(ctx context.Context, fileID int64, caller string) (bool, error) {
			return true, nil
		}
	}

	svc, err := NewService(db, hclog.NewNullLogger(), t.TempDir(), nil, "", authorize, deleteShares)
	require.NoError(t, err)
	return svc, mock
}

func makeBlob(originalSize int) ([]byte, string) {
	blob := make([]byte, 12+originalSize+16)
	for i := range blob {
		blob[i] = byte(i)
	}
	sum := sha256.Sum256(blob[12:])
	return blob, hex.EncodeToString(sum[:])
}

func TestPutRejectsWrongLength(t *testing.T) {
	svc, _ := newTestService(t, nil)
	blob, fp := makeBlob(100)
	blob = blob[:len(blob)-1] // truncate by one byte

	_, err := svc.Put(context.Background(), blob, Metadata{
		Owner: "alice", DisplayName: "f.txt", OriginalSize: 100,
		ContentType: "text/plain", Fingerprint: fp,
	})
	require.Error(t, err)
	require.Equal(t, apierr.SizeMismatch, apierr.KindOf(err))
}

func TestPutRejectsBadFingerprint(t *testing.T) {
	svc, _ := newTestService(t, nil)
	blob, _ := makeBlob(100)

	_, err := svc.Put(context.Background(), blob, Metadata{
		Owner: "alice", DisplayName: "f.txt", OriginalSize: 100,
		ContentType: "text/plain", Fingerprint: "0000000000000000000000000000000000000000000000000000000000000000",
	})
	require.Error(t, err)
	require.Equal(t, apierr.FingerprintMismatch, apierr.KindOf(err))
}

func TestPutThenGetRoundTrip(t *testing.T) {
	svc, mock := newTestService(t, nil)
	blob, fp := makeBlob(64)

	mock.ExpectQuery("INSERT INTO file_records").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectExec("UPDATE file_records SET blob_ref").
		WillReturnResult(sqlmock.NewResult(0, 1))

	fileID, err := svc.Put(context.Background(), blob, Metadata{
		Owner: "alice", DisplayName: "f.bin", OriginalSize: 64,
		ContentType: "application/octet-stream", Fingerprint: fp,
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), fileID)

	mock.ExpectQuery("SELECT blob_ref FROM file_records").
		WillReturnRows(sqlmock.NewRows([]string{"blob_ref"}).AddRow("1.blob"))

	got, err := svc.Get(context.Background(), fileID, "alice")
	require.NoError(t, err)
	require.Equal(t, blob, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetForbidden(t *testing.T) {
	svc, _ := newTestService(t, func(ctx context.Context, fileID int64, caller string) (bool, error) {
		return false, nil
	})

	_, err := svc.Get(context.Background(), 1, "eve")
	require.Error(t, err)
	require.Equal(t, apierr.Forbidden, apierr.KindOf(err))
}

func TestMetadataNotFound(t *testing.T) {
	svc, mock := newTestService(t, nil)
	mock.ExpectQuery("SELECT id, owner").
		WillReturnError(sql.ErrNoRows)

	_, err := svc.Metadata(context.Background(), 99)
	require.Error(t, err)
	require.Equal(t, apierr.NotFound, apierr.KindOf(err))
}

func TestListOwnedEmpty(t *testing.T) {
	svc, mock := newTestService(t, nil)
	mock.ExpectQuery("SELECT id, owner").
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner", "display_name", "original_size", "ciphertext_size", "content_type", "fingerprint", "owner_wrap", "created_at"}))

	out, err := svc.ListOwned(context.Background(), "alice")
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestDeleteCascadesSharesBeforeRecord(t *testing.T) {
	deletedFor := int64(-1)
	deleteShares := func(ctx context.Context, fileID int64) error {
		deletedFor = fileID
		return nil
	}
	svc, mock := newTestServiceWithDeleteShares(t, nil, deleteShares)

	mock.ExpectQuery("SELECT id, owner").
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner", "display_name", "original_size", "ciphertext_size", "content_type", "fingerprint", "owner_wrap", "created_at"}).
			AddRow(int64(1), "alice", "f.bin", int64(64), int64(92), "application/octet-stream", "deadbeef", []byte{1, 2, 3}, time.Now()))
	mock.ExpectExec("DELETE FROM file_records").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.Delete(context.Background(), 1, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(1), deletedFor)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteAbortsIfShareCleanupFails(t *testing.T) {
	deleteShares := func(ctx context.Context, fileID int64) error {
		return apierr.New(apierr.Internal, "boom")
	}
	svc, mock := newTestServiceWithDeleteShares(t, nil, deleteShares)

	mock.ExpectQuery("SELECT id, owner").
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner", "display_name", "original_size", "ciphertext_size", "content_type", "fingerprint", "owner_wrap", "created_at"}).
			AddRow(int64(1), "alice", "f.bin", int64(64), int64(92), "application/octet-stream", "deadbeef", []byte{1, 2, 3}, time.Now()))

	err := svc.Delete(context.Background(), 1, "alice")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
