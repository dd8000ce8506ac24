// Package registry implements identity registration, login, session
// issuance, public-key binding, and prefix search, gating every other
// operation via bearer-token sessions.
package registry

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/crypto/bcrypt"

	"github.com/Sansi-28/byteguard/internal/apierr"
	"github.com/Sansi-28/byteguard/internal/wire"
)

// IdentitySnapshot is returned from login: the caller's public view of
// their own identity, including whether a public key is registered.
type IdentitySnapshot struct {
	ResearcherID string
	HasPublicKey bool
	CreatedAt    time.Time
}

// SearchResult is one row returned by Search.
type SearchResult struct {
	ResearcherID string
	HasPublicKey bool
}

// Service implements the Identity & Key Registry against Postgres for
// identities and Redis (via Sessions) for bearer tokens.
type Service struct {
	db       *sql.DB
	sessions *Sessions
	log      hclog.Logger

	searchLimit        int
	weakPasswordMinLen int
}

// NewService constructs a registry Service. searchLimit and
// weakPasswordMinLen come from internal/config (default 20 and 6
// respectively).
func NewService(db *sql.DB, sessions *Sessions, log hclog.Logger, searchLimit, weakPasswordMinLen int) *Service {
	if searchLimit <= 0 {
		searchLimit = 20
	}
	if weakPasswordMinLen <= 0 {
		weakPasswordMinLen = 6
	}
	return &Service{
		db:                 db,
		sessions:           sessions,
		log:                log.Named("registry"),
		searchLimit:        searchLimit,
		weakPasswordMinLen: weakPasswordMinLen,
	}
}

// Register creates an Identity and returns a fresh Session token.
func (s *Service) Register(ctx context.Context, researcherID, password string, publicKey []byte) (string, error) {
	if researcherID == "" || len(researcherID) > 64 {
		return "", apierr.New(apierr.InvalidInput, "researcher id must be 1-64 characters")
	}
	if len(password) < s.weakPasswordMinLen {
		return "", apierr.New(apierr.WeakPassword, fmt.Sprintf("password must be at least %d characters", s.weakPasswordMinLen))
	}
	if publicKey != nil && len(publicKey) != wire.KyberPublicKeySize {
		return "", apierr.New(apierr.BadKey, fmt.Sprintf("public key must be %d bytes", wire.KyberPublicKeySize))
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", apierr.Wrap(apierr.Internal, "hash password", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO identities (researcher_id, password_hash, public_key, created_at)
		VALUES ($1, $2, $3, $4)
	`, researcherID, string(passwordHash), publicKey, time.Now())
	if err != nil {
		if isUniqueViolation(err) {
			return "", apierr.New(apierr.AlreadyExists, "researcher id already registered")
		}
		return "", apierr.Wrap(apierr.Internal, "insert identity", err)
	}

	token, err := s.sessions.Create(ctx, researcherID)
	if err != nil {
		return "", err
	}

	s.log.Info("identity registered", "researcher_id", researcherID)
	return token, nil
}

// Login verifies the password and returns a fresh Session token plus an
// IdentitySnapshot. Failure is always BadCredentials, with no distinction
// in message or timing between an unknown identifier and a bad password:
// both paths run bcrypt.CompareHashAndPassword against a hash, falling
// back to a fixed dummy hash when the identifier is unknown so the two
// cases cost the same amount of CPU time.
func (s *Service) Login(ctx context.Context, researcherID, password string) (string, IdentitySnapshot, error) {
	var passwordHash string
	var hasPublicKey bool
	var createdAt time.Time

	err := s.db.QueryRowContext(ctx, `
		SELECT password_hash, public_key IS NOT NULL, created_at
		FROM identities WHERE researcher_id = $1
	`, researcherID).Scan(&passwordHash, &hasPublicKey, &createdAt)

	if err == sql.ErrNoRows {
		bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return "", IdentitySnapshot{}, apierr.New(apierr.BadCredentials, "invalid credentials")
	}
	if err != nil {
		return "", IdentitySnapshot{}, apierr.Wrap(apierr.Internal, "query identity", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		return "", IdentitySnapshot{}, apierr.New(apierr.BadCredentials, "invalid credentials")
	}

	token, err := s.sessions.Create(ctx, researcherID)
	if err != nil {
		return "", IdentitySnapshot{}, err
	}

	return token, IdentitySnapshot{
		ResearcherID: researcherID,
		HasPublicKey: hasPublicKey,
		CreatedAt:    createdAt,
	}, nil
}

// dummyHash is a fixed bcrypt hash used to keep the unknown-identifier
// path on the same timing profile as the wrong-password path.
const dummyHash = "$2a$10$CwTycUXWue0Thq9StjUM0uJ8Fk4Qd5E7C4nT1e2Xo0zGxQhT5ZJOy"

// Logout destroys a session token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Destroy(ctx, token)
}

// ResolveSession resolves a bearer token to a researcher-id.
func (s *Service) ResolveSession(ctx context.Context, token string) (string, error) {
	return s.sessions.Resolve(ctx, token)
}

// SetPublicKey overwrites the caller's stored key.
func (s *Service) SetPublicKey(ctx context.Context, researcherID string, publicKey []byte) error {
	if len(publicKey) != wire.KyberPublicKeySize {
		return apierr.New(apierr.BadKey, fmt.Sprintf("public key must be %d bytes", wire.KyberPublicKeySize))
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE identities SET public_key = $1 WHERE researcher_id = $2
	`, publicKey, researcherID)
	if err != nil {
		return apierr.Wrap(apierr.Internal, "update public key", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apierr.Wrap(apierr.Internal, "rows affected", err)
	}
	if n == 0 {
		return apierr.New(apierr.NotFound, "identity not found")
	}
	return nil
}

// LookupPublicKey returns the stored key for researcherID, or NotFound.
func (s *Service) LookupPublicKey(ctx context.Context, researcherID string) ([]byte, error) {
	var publicKey []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT public_key FROM identities WHERE researcher_id = $1
	`, researcherID).Scan(&publicKey)
	if err == sql.ErrNoRows {
		return nil, apierr.New(apierr.NotFound, "identity not found")
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, "query public key", err)
	}
	if publicKey == nil {
		return nil, apierr.New(apierr.NotFound, "identity has no public key")
	}
	return publicKey, nil
}

// Search returns up to searchLimit identities whose id starts with prefix,
// case-sensitive, each annotated with has-public-key.
func (s *Service) Search(ctx context.Context, prefix string) ([]SearchResult, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT researcher_id, public_key IS NOT NULL
		FROM identities
		WHERE researcher_id LIKE $1 || '%'
		ORDER BY researcher_id ASC
		LIMIT $2
	`, prefix, s.searchLimit)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, "search identities", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ResearcherID, &r.HasPublicKey); err != nil {
			return nil, apierr.Wrap(apierr.Internal, "scan search row", err)
		}
		results = append(results, r)
	}
	return results, nil
}

// isUniqueViolation matches the lib/pq unique-constraint SQLSTATE without
// importing the pq error type directly, so this package stays testable
// against go-sqlmock's generic driver errors.
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "23505") || strings.Contains(err.Error(), "duplicate key")
}
