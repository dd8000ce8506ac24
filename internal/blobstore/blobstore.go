// Package blobstore implements the authoritative store for opaque
// ciphertext blobs: a content-addressed local filesystem directory keyed
// by file-id, backed by a Postgres file-record table for metadata, with
// an optional minio mirror. The store never inspects, re-encrypts, or
// re-compresses a blob; it only verifies size and fingerprint before
// committing a write, and delegates read authorization to an injected
// predicate.
package blobstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/minio/minio-go/v7"

	"github.com/Sansi-28/byteguard/internal/apierr"
	"github.com/Sansi-28/byteguard/internal/models"
)

// AuthorizeFunc answers "may caller read file-id?" for Get. It is
// injected rather than imported so this package has no build dependency
// on the ledger package.
type AuthorizeFunc func(ctx context.Context, fileID int64, caller string) (bool, error)

// DeleteSharesFunc removes every share record referencing file-id. It is
// injected rather than imported so this package has no build dependency
// on the ledger package. Delete runs it before removing the file record,
// so no share ever outlives the file it references.
type DeleteSharesFunc func(ctx context.Context, fileID int64) error

// Mirror is the subset of a minio client this package exercises. Only
// PutObject and RemoveObject are needed: the mirror is a write-behind
// secondary copy, never read from directly.
type Mirror interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// Metadata is everything Put needs besides the blob bytes.
type Metadata struct {
	Owner        string
	DisplayName  string
	OriginalSize int64
	ContentType  string
	Fingerprint  string
	OwnerWrap    []byte
}

// Service implements the Blob Store.
type Service struct {
	db  *sql.DB
	log hclog.Logger

	dir string

	mirror       Mirror
	mirrorBucket string

	authorize    AuthorizeFunc
	deleteShares DeleteSharesFunc
}

// NewService constructs a Blob Store rooted at dir. mirror may be nil,
// disabling the secondary copy. authorize gates every Get call;
// deleteShares is run as part of Delete to cascade share-record cleanup.
func NewService(db *sql.DB, log hclog.Logger, dir string, mirror Mirror, mirrorBucket string, authorize AuthorizeFunc, deleteShares DeleteSharesFunc) (*Service, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("blobstore: create root dir: %w", err)
	}
	return &Service{
		db:           db,
		log:          log,
		dir:          dir,
		mirror:       mirror,
		mirrorBucket: mirrorBucket,
		authorize:    authorize,
		deleteShares: deleteShares,
	}, nil
}

// blobPath returns the on-disk path for a file-id, sharded two levels
// deep by the last four hex digits of the id to keep any one directory
// from growing unbounded.
func (s *Service) blobPath(fileID int64) string {
	shard := fmt.Sprintf("%04x", uint16(fileID))
	return filepath.Join(s.dir, shard[:2], shard[2:], fmt.Sprintf("%d.blob", fileID))
}

// Put verifies the blob against metadata, inserts the file record with an
// empty blob_ref to obtain the file-id, commits the blob to the filesystem
// atomically, records its blob_ref, and mirrors it if a mirror is
// configured, returning the new file-id. A partial write never leaves a
// file record pointing at a missing or short blob: blob_ref is set only
// after the temp-file write, fsync, and rename succeed, a record with an
// empty blob_ref is never served, and a failed disk write deletes the
// record again.
func (s *Service) Put(ctx context.Context, blob []byte, meta Metadata) (int64, error) {
	wantLen := 12 + meta.OriginalSize + 16
	if int64(len(blob)) != wantLen {
		return 0, apierr.New(apierr.SizeMismatch, fmt.Sprintf("blob length %d, want %d", len(blob), wantLen))
	}

	sum := sha256.Sum256(blob[12:])
	got := hex.EncodeToString(sum[:])
	if got != meta.Fingerprint {
		return 0, apierr.New(apierr.FingerprintMismatch, "fingerprint does not match blob")
	}

	var fileID int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO file_records
			(owner, display_name, original_size, ciphertext_size, content_type, fingerprint, owner_wrap, blob_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, '', now())
		RETURNING id
	`, meta.Owner, meta.DisplayName, meta.OriginalSize, int64(len(blob)), meta.ContentType, meta.Fingerprint, meta.OwnerWrap).Scan(&fileID)
	if err != nil {
		return 0, apierr.Wrap(apierr.Internal, "insert file record", err)
	}

	path := s.blobPath(fileID)
	if err := writeAtomic(path, blob); err != nil {
		s.log.Error("blobstore: atomic write failed, rolling back file record", "file_id", fileID, "error", err)
		s.deleteRecord(ctx, fileID)
		return 0, apierr.Wrap(apierr.Internal, "commit blob to disk", err)
	}

	blobRef := filepath.Base(path)
	if _, err := s.db.ExecContext(ctx, `UPDATE file_records SET blob_ref = $1 WHERE id = $2`, blobRef, fileID); err != nil {
		return 0, apierr.Wrap(apierr.Internal, "record blob ref", err)
	}

	if s.mirror != nil {
		objectName := fmt.Sprintf("%d.blob", fileID)
		if _, err := s.mirror.PutObject(ctx, s.mirrorBucket, objectName, newByteReader(blob), int64(len(blob)), minio.PutObjectOptions{ContentType: "application/octet-stream"}); err != nil {
			s.log.Warn("blobstore: mirror upload failed", "file_id", fileID, "error", err)
		}
	}

	return fileID, nil
}

// Get returns the blob bytes for file-id after confirming caller may
// read it. Authorization is delegated entirely to the injected
// AuthorizeFunc.
func (s *Service) Get(ctx context.Context, fileID int64, caller string) ([]byte, error) {
	allowed, err := s.authorize(ctx, fileID, caller)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, apierr.New(apierr.Forbidden, "caller may not read this file")
	}

	blobRef, err := s.lookupBlobRef(ctx, fileID)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(filepath.Dir(s.blobPath(fileID)), blobRef)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, "read blob", err)
	}
	return data, nil
}

// Metadata looks up the file record for fileID without touching the
// blob's bytes, for the file-metadata and list-my-files operations.
func (s *Service) Metadata(ctx context.Context, fileID int64) (*models.FileRecord, error) {
	var rec models.FileRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner, display_name, original_size, ciphertext_size, content_type, fingerprint, owner_wrap, created_at
		FROM file_records WHERE id = $1
	`, fileID).Scan(&rec.ID, &rec.Owner, &rec.DisplayName, &rec.OriginalSize, &rec.CiphertextSize, &rec.ContentType, &rec.Fingerprint, &rec.OwnerWrap, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apierr.New(apierr.NotFound, "file not found")
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, "lookup file record", err)
	}
	return &rec, nil
}

// ListOwned returns every file record owned by researcherID, newest
// first.
func (s *Service) ListOwned(ctx context.Context, researcherID string) ([]*models.FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner, display_name, original_size, ciphertext_size, content_type, fingerprint, owner_wrap, created_at
		FROM file_records WHERE owner = $1 ORDER BY created_at DESC
	`, researcherID)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, "list owned files", err)
	}
	defer rows.Close()

	var out []*models.FileRecord
	for rows.Next() {
		var rec models.FileRecord
		if err := rows.Scan(&rec.ID, &rec.Owner, &rec.DisplayName, &rec.OriginalSize, &rec.CiphertextSize, &rec.ContentType, &rec.Fingerprint, &rec.OwnerWrap, &rec.CreatedAt); err != nil {
			return nil, apierr.Wrap(apierr.Internal, "scan file record", err)
		}
		out = append(out, &rec)
	}
	return out, nil
}

// Delete removes every share record referencing fileID, the file record
// itself, and its on-disk blob (and mirror copy, if configured).
// Deleting an already-missing blob file is not an error: the record is
// the source of truth. Share cleanup runs before the record and blob are
// removed, so a crash between steps never leaves a share pointing at a
// file-id that no longer exists.
func (s *Service) Delete(ctx context.Context, fileID int64, caller string) error {
	rec, err := s.Metadata(ctx, fileID)
	if err != nil {
		return err
	}
	if rec.Owner != caller {
		return apierr.New(apierr.NotOwner, "only the owner may delete a file")
	}

	if s.deleteShares != nil {
		if err := s.deleteShares(ctx, fileID); err != nil {
			return err
		}
	}

	path := s.blobPath(fileID)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return apierr.Wrap(apierr.Internal, "remove blob", err)
	}

	if s.mirror != nil {
		objectName := fmt.Sprintf("%d.blob", fileID)
		if err := s.mirror.RemoveObject(ctx, s.mirrorBucket, objectName, minio.RemoveObjectOptions{}); err != nil {
			s.log.Warn("blobstore: mirror delete failed", "file_id", fileID, "error", err)
		}
	}

	return s.deleteRecord(ctx, fileID)
}

func (s *Service) lookupBlobRef(ctx context.Context, fileID int64) (string, error) {
	var ref string
	err := s.db.QueryRowContext(ctx, `SELECT blob_ref FROM file_records WHERE id = $1`, fileID).Scan(&ref)
	if err == sql.ErrNoRows {
		return "", apierr.New(apierr.NotFound, "file not found")
	}
	if err != nil {
		return "", apierr.Wrap(apierr.Internal, "lookup blob ref", err)
	}
	if ref == "" {
		return "", apierr.New(apierr.Internal, "file record has no committed blob")
	}
	return ref, nil
}

func (s *Service) deleteRecord(ctx context.Context, fileID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM file_records WHERE id = $1`, fileID); err != nil {
		return apierr.Wrap(apierr.Internal, "delete file record", err)
	}
	return nil
}
