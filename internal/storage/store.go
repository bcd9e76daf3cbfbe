package storage

import (
	"context"
	"errors"
	"time"

	"github.com/panchalshubham0608/securekey/internal/crypto"
)

var (
	ErrNotFound  = errors.New("document not found")
	ErrDuplicate = errors.New("document already exists")
)

// CryptoMetadata is the per-user record holding the password-wrapped MEK.
type CryptoMetadata struct {
	UID                  string          `bson:"_id" json:"uid"`
	KDF                  string          `bson:"kdf" json:"kdf"`
	Hash                 string          `bson:"hash" json:"hash"`
	Iterations           int             `bson:"iterations" json:"iterations"`
	Salt                 string          `bson:"salt" json:"salt"`
	EncryptedMEKPassword crypto.Envelope `bson:"encryptedMEK_password" json:"encryptedMEK_password"`
	CreatedAt            time.Time       `bson:"createdAt" json:"createdAt"`
}

type HistoryEntry struct {
	EncryptedPassword crypto.Envelope `bson:"encryptedPassword" json:"encryptedPassword"`
	UpdatedAt         time.Time       `bson:"updatedAt" json:"updatedAt"`
}

// VaultItem is one stored credential. History is append-only, oldest first.
type VaultItem struct {
	ID                string          `bson:"_id" json:"id"`
	Owner             string          `bson:"owner" json:"owner"`
	Account           string          `bson:"account" json:"account"`
	Username          string          `bson:"username" json:"username"`
	EncryptedPassword crypto.Envelope `bson:"encryptedPassword" json:"encryptedPassword"`
	History           []HistoryEntry  `bson:"history" json:"history"`
	CreatedAt         time.Time       `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time       `bson:"updatedAt" json:"updatedAt"`
}

type LegacyHistoryEntry struct {
	Password  string    `bson:"password" json:"password"`
	ChangedAt time.Time `bson:"changedAt" json:"changedAt"`
}

// LegacyItem is a credential written before the MEK existed. Owner is the
// user's uid; Password and history passwords are passphrase-mode strings.
type LegacyItem struct {
	ID         string               `bson:"_id" json:"id"`
	Owner      string               `bson:"owner" json:"owner"`
	Account    string               `bson:"account" json:"account"`
	Username   string               `bson:"username" json:"username"`
	Password   string               `bson:"password" json:"password"`
	History    []LegacyHistoryEntry `bson:"history" json:"history"`
	Migrated   bool                 `bson:"migrated" json:"migrated"`
	MigratedAt *time.Time           `bson:"migratedAt,omitempty" json:"migratedAt,omitempty"`
	CreatedAt  time.Time            `bson:"createdAt" json:"createdAt"`
}

// ItemFilter selects an owner's items. Empty Account or Username match any.
type ItemFilter struct {
	Owner    string
	Account  string
	Username string
}

type MetadataStore interface {
	GetMetadata(ctx context.Context, uid string) (CryptoMetadata, error)
	// CreateMetadata fails with ErrDuplicate if the uid already has a vault.
	CreateMetadata(ctx context.Context, meta CryptoMetadata) error
}

type ItemStore interface {
	FindItems(ctx context.Context, f ItemFilter) ([]VaultItem, error)
	GetItem(ctx context.Context, owner, id string) (VaultItem, error)
	// AddItem assigns an id when it.ID is empty and returns it.
	AddItem(ctx context.Context, it VaultItem) (string, error)
	// UpdatePassword replaces the current envelope and appends prev to history.
	UpdatePassword(ctx context.Context, owner, id string, pw crypto.Envelope, prev HistoryEntry, at time.Time) error
	DeleteItem(ctx context.Context, owner, id string) error
}

type LegacyStore interface {
	FindLegacy(ctx context.Context, owner string, pendingOnly bool) ([]LegacyItem, error)
	AddLegacy(ctx context.Context, it LegacyItem) (string, error)
	MarkMigrated(ctx context.Context, id string, at time.Time) error
}

type Store interface {
	MetadataStore
	ItemStore
	LegacyStore
	Close(ctx context.Context) error
}
