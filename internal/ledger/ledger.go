// Package ledger implements the Share Ledger: the (recipient, wrapped-key
// payload) bookkeeping for direct shares and group fan-out, the
// active/revoked lifecycle, and the authorize-read predicate the Blob
// Store delegates to.
package ledger

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/Sansi-28/byteguard/internal/apierr"
	"github.com/Sansi-28/byteguard/internal/models"
)

// FileOwnerFunc answers "who owns file-id?" Injected so this package has
// no build dependency on the blobstore package.
type FileOwnerFunc func(ctx context.Context, fileID int64) (string, error)

// PublicKeyFunc answers "what is researcherID's registered public key?"
// Injected so this package has no build dependency on the registry
// package.
type PublicKeyFunc func(ctx context.Context, researcherID string) ([]byte, error)

// Service implements the Share Ledger against Postgres.
type Service struct {
	db        *sql.DB
	log       hclog.Logger
	fileOwner FileOwnerFunc
	publicKey PublicKeyFunc
}

// NewService constructs a Share Ledger service.
func NewService(db *sql.DB, log hclog.Logger, fileOwner FileOwnerFunc, publicKey PublicKeyFunc) *Service {
	return &Service{db: db, log: log, fileOwner: fileOwner, publicKey: publicKey}
}

const shareCodeRetries = 8

func newShareCode() (string, error) {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func (s *Service) requireOwner(ctx context.Context, fileID int64, sender string) error {
	owner, err := s.fileOwner(ctx, fileID)
	if err != nil {
		return err
	}
	if owner != sender {
		return apierr.New(apierr.NotOwner, "sender does not own this file")
	}
	return nil
}

// ShareDirect records a direct share of file-id to recipient-id, gated on
// sender owning the file. Returns the new share-id and its printable
// share-code. Code collisions retry up to shareCodeRetries times before
// giving up with Internal.
func (s *Service) ShareDirect(ctx context.Context, sender string, fileID int64, recipientID string, payload []byte, permission models.Permission) (uuid.UUID, string, error) {
	if err := s.requireOwner(ctx, fileID, sender); err != nil {
		return uuid.Nil, "", err
	}

	shareID := uuid.New()
	for attempt := 0; attempt < shareCodeRetries; attempt++ {
		code, err := newShareCode()
		if err != nil {
			return uuid.Nil, "", apierr.Wrap(apierr.Internal, "generate share code", err)
		}

		_, err = s.db.ExecContext(ctx, `
			INSERT INTO direct_shares (id, file_id, sender, recipient, payload, share_code, permission, state, viewed, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 'active', false, now())
		`, shareID, fileID, sender, recipientID, payload, code, string(permission))
		if err == nil {
			return shareID, code, nil
		}
		if isUniqueViolation(err) {
			continue
		}
		return uuid.Nil, "", apierr.Wrap(apierr.Internal, "insert direct share", err)
	}
	return uuid.Nil, "", apierr.New(apierr.Internal, "could not allocate a unique share code")
}

// ShareGroup fans a file out to every (member-id, payload) pair supplied,
// gated on sender being an admin or owner of the group. The fan-out is
// all-or-nothing: either every payload is recorded in the same
// transaction or none are.
func (s *Service) ShareGroup(ctx context.Context, sender string, fileID int64, groupID uuid.UUID, payloads map[string][]byte) (uuid.UUID, error) {
	if err := s.requireOwner(ctx, fileID, sender); err != nil {
		return uuid.Nil, err
	}

	role, err := s.memberRole(ctx, groupID, sender)
	if err != nil {
		return uuid.Nil, err
	}
	if role != models.RoleOwner && role != models.RoleAdmin {
		return uuid.Nil, apierr.New(apierr.Forbidden, "sender is not a group admin or owner")
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return uuid.Nil, apierr.Wrap(apierr.Internal, "begin group share transaction", err)
	}
	defer tx.Rollback()

	for memberID := range payloads {
		var isMember bool
		err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id = $1 AND researcher_id = $2)`, groupID, memberID).Scan(&isMember)
		if err != nil {
			return uuid.Nil, apierr.Wrap(apierr.Internal, "check group membership", err)
		}
		if !isMember {
			return uuid.Nil, apierr.New(apierr.InvalidInput, fmt.Sprintf("%q is not a current group member", memberID))
		}
	}

	groupShareID := uuid.New()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO group_shares (id, file_id, group_id, sender, state, created_at)
		VALUES ($1, $2, $3, $4, 'active', now())
	`, groupShareID, fileID, groupID, sender)
	if err != nil {
		return uuid.Nil, apierr.Wrap(apierr.Internal, "insert group share", err)
	}

	for memberID, payload := range payloads {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO group_share_payloads (group_share_id, researcher_id, payload, viewed)
			VALUES ($1, $2, $3, false)
		`, groupShareID, memberID, payload)
		if err != nil {
			return uuid.Nil, apierr.Wrap(apierr.Internal, "insert group share payload", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, apierr.Wrap(apierr.Internal, "commit group share transaction", err)
	}
	return groupShareID, nil
}

// FetchResult is what fetch-by-code returns.
type FetchResult struct {
	FileID      int64
	DisplayName string
	ContentType string
	Payload     []byte
	Permission  models.Permission
}

// FetchByCode resolves a share-code on behalf of caller, setting the
// viewed flag on first fetch by the addressed recipient. Returns
// Forbidden if caller is not the addressed recipient, NotFound if the
// code does not exist or the share has been revoked.
func (s *Service) FetchByCode(ctx context.Context, caller, shareCode string) (*FetchResult, error) {
	var (
		id          uuid.UUID
		fileID      int64
		recipient   string
		payload     []byte
		permission  string
		state       string
		displayName string
		contentType string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT ds.id, ds.file_id, ds.recipient, ds.payload, ds.permission, ds.state,
		       fr.display_name, fr.content_type
		FROM direct_shares ds
		JOIN file_records fr ON fr.id = ds.file_id
		WHERE ds.share_code = $1
	`, shareCode).Scan(&id, &fileID, &recipient, &payload, &permission, &state, &displayName, &contentType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.New(apierr.NotFound, "share code not found")
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, "lookup share code", err)
	}

	if state != string(models.ShareActive) {
		return nil, apierr.New(apierr.NotFound, "share has been revoked")
	}
	if recipient != caller {
		return nil, apierr.New(apierr.Forbidden, "caller is not the addressed recipient")
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE direct_shares SET viewed = true WHERE id = $1`, id); err != nil {
		s.log.Warn("ledger: failed to set viewed flag", "share_id", id, "error", err)
	}

	return &FetchResult{
		FileID:      fileID,
		DisplayName: displayName,
		ContentType: contentType,
		Payload:     payload,
		Permission:  models.Permission(permission),
	}, nil
}

// ListOutgoing returns every direct share the caller has created.
func (s *Service) ListOutgoing(ctx context.Context, owner string) ([]*models.DirectShare, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_id, sender, recipient, share_code, permission, state, viewed, created_at
		FROM direct_shares WHERE sender = $1 ORDER BY created_at DESC
	`, owner)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, "list outgoing shares", err)
	}
	defer rows.Close()

	var out []*models.DirectShare
	for rows.Next() {
		var sh models.DirectShare
		if err := rows.Scan(&sh.ID, &sh.FileID, &sh.Sender, &sh.Recipient, &sh.ShareCode, &sh.Permission, &sh.State, &sh.Viewed, &sh.CreatedAt); err != nil {
			return nil, apierr.Wrap(apierr.Internal, "scan direct share", err)
		}
		out = append(out, &sh)
	}
	return out, nil
}

// ListIncoming returns every active direct share addressed to recipient.
// Group shares are not yet included here; callers combine this with a
// per-group lookup when group membership needs to be surfaced too.
func (s *Service) ListIncoming(ctx context.Context, recipient string) ([]*models.DirectShare, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_id, sender, recipient, share_code, permission, state, viewed, created_at
		FROM direct_shares WHERE recipient = $1 AND state = 'active' ORDER BY created_at DESC
	`, recipient)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, "list incoming shares", err)
	}
	defer rows.Close()

	var out []*models.DirectShare
	for rows.Next() {
		var sh models.DirectShare
		if err := rows.Scan(&sh.ID, &sh.FileID, &sh.Sender, &sh.Recipient, &sh.ShareCode, &sh.Permission, &sh.State, &sh.Viewed, &sh.CreatedAt); err != nil {
			return nil, apierr.Wrap(apierr.Internal, "scan direct share", err)
		}
		out = append(out, &sh)
	}
	return out, nil
}

// Revoke transitions a direct share to revoked, owner-only. Subsequent
// FetchByCode calls return NotFound, for every caller including the
// original recipient.
func (s *Service) Revoke(ctx context.Context, shareID uuid.UUID, owner string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE direct_shares SET state = 'revoked' WHERE id = $1 AND sender = $2
	`, shareID, owner)
	if err != nil {
		return apierr.Wrap(apierr.Internal, "revoke share", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apierr.Wrap(apierr.Internal, "revoke share rows affected", err)
	}
	if n == 0 {
		return apierr.New(apierr.NotFound, "share not found, or caller is not its owner")
	}
	return nil
}

// AuthorizeRead is the predicate the Blob Store delegates to: true iff
// caller owns file-id, or there exists an active direct share to caller
// for file-id, or caller is a current member of a group with an active
// group share for file-id.
func (s *Service) AuthorizeRead(ctx context.Context, fileID int64, caller string) (bool, error) {
	owner, err := s.fileOwner(ctx, fileID)
	if err != nil {
		return false, err
	}
	if owner == caller {
		return true, nil
	}

	var directOK bool
	err = s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM direct_shares WHERE file_id = $1 AND recipient = $2 AND state = 'active')
	`, fileID, caller).Scan(&directOK)
	if err != nil {
		return false, apierr.Wrap(apierr.Internal, "check direct share authorization", err)
	}
	if directOK {
		return true, nil
	}

	var groupOK bool
	err = s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1
			FROM group_shares gs
			JOIN group_members gm ON gm.group_id = gs.group_id
			WHERE gs.file_id = $1 AND gs.state = 'active' AND gm.researcher_id = $2
		)
	`, fileID, caller).Scan(&groupOK)
	if err != nil {
		return false, apierr.Wrap(apierr.Internal, "check group share authorization", err)
	}
	return groupOK, nil
}

// CreateGroup creates a new group with creator as its sole member, in
// the owner role.
func (s *Service) CreateGroup(ctx context.Context, creator, name string) (*models.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apierr.New(apierr.InvalidInput, "group name is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, "begin create group transaction", err)
	}
	defer tx.Rollback()

	groupID := uuid.New()
	var createdAt time.Time
	err = tx.QueryRowContext(ctx, `
		INSERT INTO groups (id, name, created_by, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING created_at
	`, groupID, name, creator).Scan(&createdAt)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, "insert group", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO group_members (group_id, researcher_id, role, joined_at)
		VALUES ($1, $2, $3, now())
	`, groupID, creator, string(models.RoleOwner)); err != nil {
		return nil, apierr.Wrap(apierr.Internal, "insert group owner membership", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apierr.Wrap(apierr.Internal, "commit create group transaction", err)
	}

	return &models.Group{ID: groupID, Name: name, CreatedBy: creator, CreatedAt: createdAt}, nil
}

// AddMember adds researcherID to groupID with the given role, gated on
// actor being the group's owner or an admin.
func (s *Service) AddMember(ctx context.Context, groupID uuid.UUID, actor, researcherID string, role models.GroupRole) error {
	actorRole, err := s.memberRole(ctx, groupID, actor)
	if err != nil {
		return err
	}
	if actorRole != models.RoleOwner && actorRole != models.RoleAdmin {
		return apierr.New(apierr.Forbidden, "actor is not a group admin or owner")
	}
	if role == "" {
		role = models.RoleMember
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO group_members (group_id, researcher_id, role, joined_at)
		VALUES ($1, $2, $3, now())
	`, groupID, researcherID, string(role))
	if err != nil {
		if isUniqueViolation(err) {
			return apierr.New(apierr.AlreadyExists, "researcher is already a group member")
		}
		return apierr.Wrap(apierr.Internal, "insert group member", err)
	}
	return nil
}

// RemoveMember removes researcherID from groupID, gated on actor being
// the group's owner or an admin. Removing a member revokes future reads
// of files already shared with the group, but does not rescind payloads
// the member already fetched.
func (s *Service) RemoveMember(ctx context.Context, groupID uuid.UUID, actor, researcherID string) error {
	actorRole, err := s.memberRole(ctx, groupID, actor)
	if err != nil {
		return err
	}
	if actorRole != models.RoleOwner && actorRole != models.RoleAdmin {
		return apierr.New(apierr.Forbidden, "actor is not a group admin or owner")
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM group_members WHERE group_id = $1 AND researcher_id = $2
	`, groupID, researcherID)
	if err != nil {
		return apierr.Wrap(apierr.Internal, "remove group member", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apierr.Wrap(apierr.Internal, "rows affected", err)
	}
	if n == 0 {
		return apierr.New(apierr.NotFound, "researcher is not a group member")
	}
	return nil
}

// ListGroupPublicKeys returns the registered public key of every current
// member of groupID, gated on caller being a current member. Members
// with no registered public key are omitted from the result: callers
// use this to build the per-member payload mapping for ShareGroup, which
// records one entry per member who had a public key at fan-out time.
func (s *Service) ListGroupPublicKeys(ctx context.Context, groupID uuid.UUID, caller string) (map[string][]byte, error) {
	if _, err := s.memberRole(ctx, groupID, caller); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT researcher_id FROM group_members WHERE group_id = $1`, groupID)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, "list group members", err)
	}
	var members []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, apierr.Wrap(apierr.Internal, "scan group member", err)
		}
		members = append(members, id)
	}
	rows.Close()

	keys := make(map[string][]byte, len(members))
	for _, id := range members {
		key, err := s.publicKey(ctx, id)
		if err != nil {
			if apierr.KindOf(err) == apierr.NotFound {
				continue
			}
			return nil, err
		}
		keys[id] = key
	}
	return keys, nil
}

// GroupShareView is one group share as seen by a single member: it
// carries only that member's own wrapped payload, never anyone else's.
type GroupShareView struct {
	ID        uuid.UUID
	FileID    int64
	GroupID   uuid.UUID
	Sender    string
	Payload   []byte
	State     models.ShareState
	Viewed    bool
	CreatedAt time.Time
}

// ListGroupShares returns every active group share for groupID that
// addresses caller, each annotated with caller's own per-member wrapped
// payload, gated on caller being a current group member.
func (s *Service) ListGroupShares(ctx context.Context, groupID uuid.UUID, caller string) ([]*GroupShareView, error) {
	if _, err := s.memberRole(ctx, groupID, caller); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT gs.id, gs.file_id, gs.group_id, gs.sender, gsp.payload, gs.state, gsp.viewed, gs.created_at
		FROM group_shares gs
		JOIN group_share_payloads gsp ON gsp.group_share_id = gs.id
		WHERE gs.group_id = $1 AND gsp.researcher_id = $2 AND gs.state = 'active'
		ORDER BY gs.created_at DESC
	`, groupID, caller)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, "list group shares", err)
	}
	defer rows.Close()

	var out []*GroupShareView
	for rows.Next() {
		var sh GroupShareView
		var state string
		if err := rows.Scan(&sh.ID, &sh.FileID, &sh.GroupID, &sh.Sender, &sh.Payload, &state, &sh.Viewed, &sh.CreatedAt); err != nil {
			return nil, apierr.Wrap(apierr.Internal, "scan group share", err)
		}
		sh.State = models.ShareState(state)
		out = append(out, &sh)
	}

	for _, sh := range out {
		if _, err := s.db.ExecContext(ctx, `
			UPDATE group_share_payloads SET viewed = true WHERE group_share_id = $1 AND researcher_id = $2
		`, sh.ID, caller); err != nil {
			s.log.Warn("ledger: failed to set group share viewed flag", "group_share_id", sh.ID, "error", err)
		}
	}
	return out, nil
}

// DeleteSharesForFile removes every direct share, group share, and group
// share payload referencing fileID, in one transaction. Called as part
// of file deletion so no share record ever outlives the file it
// references.
func (s *Service) DeleteSharesForFile(ctx context.Context, fileID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apierr.Wrap(apierr.Internal, "begin delete shares transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM direct_shares WHERE file_id = $1`, fileID); err != nil {
		return apierr.Wrap(apierr.Internal, "delete direct shares", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM group_share_payloads WHERE group_share_id IN (SELECT id FROM group_shares WHERE file_id = $1)
	`, fileID); err != nil {
		return apierr.Wrap(apierr.Internal, "delete group share payloads", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM group_shares WHERE file_id = $1`, fileID); err != nil {
		return apierr.Wrap(apierr.Internal, "delete group shares", err)
	}

	if err := tx.Commit(); err != nil {
		return apierr.Wrap(apierr.Internal, "commit delete shares transaction", err)
	}
	return nil
}

func (s *Service) memberRole(ctx context.Context, groupID uuid.UUID, researcherID string) (models.GroupRole, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT role FROM group_members WHERE group_id = $1 AND researcher_id = $2
	`, groupID, researcherID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apierr.New(apierr.Forbidden, "caller is not a member of this group")
	}
	if err != nil {
		return "", apierr.Wrap(apierr.Internal, "lookup group membership", err)
	}
	return models.GroupRole(role), nil
}

func isUniqueViolation(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "23505") || strings.Contains(err.Error(), "duplicate key"))
}
