package ledger

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/Sansi-28/byteguard/internal/apierr"
	"github.com/Sansi-28/byteguard/internal/models"
)

func newTestService(t *testing.T, owner string) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	return newTestServiceWithKeys(t, owner, nil)
}

func newTestServiceWithKeys(t *testing.T, owner string, keys map[string][]byte) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	fileOwner := func(ctx context.Context, fileID int64) (string, error) {
		return owner, nil
	}
	publicKey := func(ctx context.Context, researcherID string) ([]byte, error) {
		key, ok := keys[researcherID]
		if !ok {
			return nil, apierr.New(apierr.NotFound, "identity has no public key")
		}
		return key, nil
	}
	return NewService(db, hclog.NewNullLogger(), fileOwner, publicKey), mock
}

func TestShareDirectRejectsNonOwner(t *testing.T) {
	svc, _ := newTestService(t, "alice")

	_, _, err := svc.ShareDirect(context.Background(), "mallory", 1, "bob", []byte("payload"), models.PermissionDownload)
	require.Error(t, err)
	require.Equal(t, apierr.NotOwner, apierr.KindOf(err))
}

func TestShareDirectSuccess(t *testing.T) {
	svc, mock := newTestService(t, "alice")

	mock.ExpectExec("INSERT INTO direct_shares").
		WillReturnResult(sqlmock.NewResult(0, 1))

	shareID, code, err := svc.ShareDirect(context.Background(), "alice", 1, "bob", []byte("payload"), models.PermissionDownload)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, shareID)
	require.Len(t, code, 6)
}

func TestFetchByCodeNotFound(t *testing.T) {
	svc, mock := newTestService(t, "alice")

	mock.ExpectQuery("SELECT ds.id, ds.file_id, ds.recipient").
		WillReturnError(sql.ErrNoRows)

	_, err := svc.FetchByCode(context.Background(), "bob", "abcdef")
	require.Error(t, err)
	require.Equal(t, apierr.NotFound, apierr.KindOf(err))
}

func TestFetchByCodeWrongRecipientIsForbidden(t *testing.T) {
	svc, mock := newTestService(t, "alice")

	id := uuid.New()
	mock.ExpectQuery("SELECT ds.id, ds.file_id, ds.recipient").
		WillReturnRows(sqlmock.NewRows([]string{"id", "file_id", "recipient", "payload", "permission", "state", "display_name", "content_type"}).
			AddRow(id, int64(1), "bob", []byte("payload"), "download", "active", "f.bin", "application/octet-stream"))

	_, err := svc.FetchByCode(context.Background(), "eve", "abcdef")
	require.Error(t, err)
	require.Equal(t, apierr.Forbidden, apierr.KindOf(err))
}

func TestFetchByCodeRevokedIsNotFound(t *testing.T) {
	svc, mock := newTestService(t, "alice")

	id := uuid.New()
	mock.ExpectQuery("SELECT ds.id, ds.file_id, ds.recipient").
		WillReturnRows(sqlmock.NewRows([]string{"id", "file_id", "recipient", "payload", "permission", "state", "display_name", "content_type"}).
			AddRow(id, int64(1), "bob", []byte("payload"), "download", "revoked", "f.bin", "application/octet-stream"))

	_, err := svc.FetchByCode(context.Background(), "bob", "abcdef")
	require.Error(t, err)
	require.Equal(t, apierr.NotFound, apierr.KindOf(err))
}

func TestFetchByCodeSuccessSetsViewed(t *testing.T) {
	svc, mock := newTestService(t, "alice")

	id := uuid.New()
	mock.ExpectQuery("SELECT ds.id, ds.file_id, ds.recipient").
		WillReturnRows(sqlmock.NewRows([]string{"id", "file_id", "recipient", "payload", "permission", "state", "display_name", "content_type"}).
			AddRow(id, int64(1), "bob", []byte("payload"), "download", "active", "f.bin", "application/octet-stream"))
	mock.ExpectExec("UPDATE direct_shares SET viewed").
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := svc.FetchByCode(context.Background(), "bob", "abcdef")
	require.NoError(t, err)
	require.Equal(t, int64(1), result.FileID)
	require.Equal(t, []byte("payload"), result.Payload)
	require.Equal(t, "f.bin", result.DisplayName)
	require.Equal(t, "application/octet-stream", result.ContentType)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeNotFoundForWrongOwner(t *testing.T) {
	svc, mock := newTestService(t, "alice")

	mock.ExpectExec("UPDATE direct_shares SET state").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := svc.Revoke(context.Background(), uuid.New(), "mallory")
	require.Error(t, err)
	require.Equal(t, apierr.NotFound, apierr.KindOf(err))
}

func TestAuthorizeReadOwnerAlwaysTrue(t *testing.T) {
	svc, _ := newTestService(t, "alice")

	ok, err := svc.AuthorizeRead(context.Background(), 1, "alice")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAuthorizeReadDeniedWithNoShare(t *testing.T) {
	svc, mock := newTestService(t, "alice")

	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	ok, err := svc.AuthorizeRead(context.Background(), 1, "eve")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestShareGroupAllOrNothing(t *testing.T) {
	svc, mock := newTestService(t, "alice")

	groupID := uuid.New()

	mock.ExpectQuery("SELECT role FROM group_members").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("owner"))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM group_members").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("INSERT INTO group_shares").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO group_share_payloads").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	groupShareID, err := svc.ShareGroup(context.Background(), "alice", 1, groupID, map[string][]byte{
		"bob": []byte("payload-for-bob"),
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, groupShareID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestShareGroupRollsBackOnNonMember(t *testing.T) {
	svc, mock := newTestService(t, "alice")

	groupID := uuid.New()

	mock.ExpectQuery("SELECT role FROM group_members").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("owner"))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM group_members").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	_, err := svc.ShareGroup(context.Background(), "alice", 1, groupID, map[string][]byte{
		"ghost": []byte("payload"),
	})
	require.Error(t, err)
	require.Equal(t, apierr.InvalidInput, apierr.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateGroupInsertsOwnerMember(t *testing.T) {
	svc, mock := newTestService(t, "alice")

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO groups").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectExec("INSERT INTO group_members").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	group, err := svc.CreateGroup(context.Background(), "alice", "research-team")
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, group.ID)
	require.Equal(t, "alice", group.CreatedBy)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddMemberRequiresOwnerOrAdmin(t *testing.T) {
	svc, mock := newTestService(t, "alice")

	groupID := uuid.New()
	mock.ExpectQuery("SELECT role FROM group_members").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("member"))

	err := svc.AddMember(context.Background(), groupID, "mallory", "bob", models.RoleMember)
	require.Error(t, err)
	require.Equal(t, apierr.Forbidden, apierr.KindOf(err))
}

func TestAddMemberSuccess(t *testing.T) {
	svc, mock := newTestService(t, "alice")

	groupID := uuid.New()
	mock.ExpectQuery("SELECT role FROM group_members").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("owner"))
	mock.ExpectExec("INSERT INTO group_members").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.AddMember(context.Background(), groupID, "alice", "bob", models.RoleMember)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveMemberNotFound(t *testing.T) {
	svc, mock := newTestService(t, "alice")

	groupID := uuid.New()
	mock.ExpectQuery("SELECT role FROM group_members").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("owner"))
	mock.ExpectExec("DELETE FROM group_members").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := svc.RemoveMember(context.Background(), groupID, "alice", "ghost")
	require.Error(t, err)
	require.Equal(t, apierr.NotFound, apierr.KindOf(err))
}

func TestListGroupPublicKeysSkipsMembersWithoutKeys(t *testing.T) {
	svc, mock := newTestServiceWithKeys(t, "alice", map[string][]byte{
		"alice": []byte("alice-pub"),
	})

	groupID := uuid.New()
	mock.ExpectQuery("SELECT role FROM group_members").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("owner"))
	mock.ExpectQuery("SELECT researcher_id FROM group_members").
		WillReturnRows(sqlmock.NewRows([]string{"researcher_id"}).AddRow("alice").AddRow("bob"))

	keys, err := svc.ListGroupPublicKeys(context.Background(), groupID, "alice")
	require.NoError(t, err)
	require.Equal(t, map[string][]byte{"alice": []byte("alice-pub")}, keys)
}

func TestListGroupPublicKeysDeniedForNonMember(t *testing.T) {
	svc, mock := newTestService(t, "alice")

	groupID := uuid.New()
	mock.ExpectQuery("SELECT role FROM group_members").
		WillReturnError(sql.ErrNoRows)

	_, err := svc.ListGroupPublicKeys(context.Background(), groupID, "eve")
	require.Error(t, err)
	require.Equal(t, apierr.Forbidden, apierr.KindOf(err))
}

func TestListGroupSharesReturnsCallerPayloadOnly(t *testing.T) {
	svc, mock := newTestService(t, "alice")

	groupID := uuid.New()
	shareID := uuid.New()
	mock.ExpectQuery("SELECT role FROM group_members").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("member"))
	mock.ExpectQuery("SELECT gs.id, gs.file_id").
		WillReturnRows(sqlmock.NewRows([]string{"id", "file_id", "group_id", "sender", "payload", "state", "viewed", "created_at"}).
			AddRow(shareID, int64(1), groupID, "alice", []byte("payload-for-bob"), "active", false, time.Now()))
	mock.ExpectExec("UPDATE group_share_payloads SET viewed").
		WillReturnResult(sqlmock.NewResult(0, 1))

	shares, err := svc.ListGroupShares(context.Background(), groupID, "bob")
	require.NoError(t, err)
	require.Len(t, shares, 1)
	require.Equal(t, []byte("payload-for-bob"), shares[0].Payload)
}

func TestDeleteSharesForFileRemovesDirectAndGroupShares(t *testing.T) {
	svc, mock := newTestService(t, "alice")

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM direct_shares WHERE file_id").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM group_share_payloads").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM group_shares WHERE file_id").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := svc.DeleteSharesForFile(context.Background(), 1)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
