// Package models defines the entity shapes shared across the registry,
// blob store, and ledger packages: one json-tagged struct per stored
// entity, following the same field-tagging convention throughout.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Identity is a registered researcher account. ResearcherID is the
// opaque, case-sensitive, caller-supplied identifier — not a generated
// UUID — so it is the primary key rather than an incidental column.
type Identity struct {
	ResearcherID   string    `json:"researcher_id"`
	PasswordHash   string    `json:"-"`
	PublicKey      []byte    `json:"-"` // raw 800-byte Kyber-512 public key, nil if unset
	HasPublicKey   bool      `json:"has_public_key"`
	CreatedAt      time.Time `json:"created_at"`
}

// Session is an opaque bearer token naming one Identity, backed by Redis
// with a TTL.
type Session struct {
	Token        string    `json:"token"`
	ResearcherID string    `json:"researcher_id"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// FileRecord is one uploaded, encrypted file's metadata row.
type FileRecord struct {
	ID              int64     `json:"id"`
	Owner           string    `json:"owner"`
	DisplayName     string    `json:"display_name"`
	OriginalSize    int64     `json:"original_size"`
	CiphertextSize  int64     `json:"ciphertext_size"`
	ContentType     string    `json:"content_type"`
	Fingerprint     string    `json:"fingerprint"`
	OwnerWrap       []byte    `json:"owner_wrap"` // 800-byte KEM payload
	BlobRef         string    `json:"-"`          // opaque reference into the Blob Store's filesystem layout
	CreatedAt       time.Time `json:"created_at"`
}

// Permission is one of {view, download, full}.
type Permission string

const (
	PermissionView     Permission = "view"
	PermissionDownload Permission = "download"
	PermissionFull     Permission = "full"
)

// ShareState is the lifecycle state of a direct share record: active ->
// revoked, terminal.
type ShareState string

const (
	ShareActive  ShareState = "active"
	ShareRevoked ShareState = "revoked"
)

// DirectShare is a single recipient's share of one file.
type DirectShare struct {
	ID          uuid.UUID  `json:"id"`
	FileID      int64      `json:"file_id"`
	Sender      string     `json:"sender"`
	Recipient   string     `json:"recipient"`
	Payload     []byte     `json:"-"` // 800-byte KEM payload, opaque to the server
	ShareCode   string     `json:"share_code"`
	Permission  Permission `json:"permission"`
	State       ShareState `json:"state"`
	Viewed      bool       `json:"viewed"`
	CreatedAt   time.Time  `json:"created_at"`
}

// GroupRole is one of {owner, admin, member}.
type GroupRole string

const (
	RoleOwner  GroupRole = "owner"
	RoleAdmin  GroupRole = "admin"
	RoleMember GroupRole = "member"
)

// Group is a named set of member Identities with roles.
type Group struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// GroupMember is one membership row.
type GroupMember struct {
	GroupID      uuid.UUID `json:"group_id"`
	ResearcherID string    `json:"researcher_id"`
	Role         GroupRole `json:"role"`
	JoinedAt     time.Time `json:"joined_at"`
}

// GroupShare is one file shared to a group: a per-member wrapped-key
// mapping frozen at fan-out time.
type GroupShare struct {
	ID        uuid.UUID             `json:"id"`
	FileID    int64                 `json:"file_id"`
	GroupID   uuid.UUID             `json:"group_id"`
	Sender    string                `json:"sender"`
	Payloads  map[string][]byte     `json:"-"` // member-id -> 800-byte KEM payload
	State     ShareState            `json:"state"`
	Viewed    map[string]bool       `json:"-"` // member-id -> has fetched
	CreatedAt time.Time             `json:"created_at"`
}
