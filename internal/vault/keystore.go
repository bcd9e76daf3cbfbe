package vault

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/panchalshubham0608/securekey/internal/crypto"
	"github.com/panchalshubham0608/securekey/internal/logging"
	"github.com/panchalshubham0608/securekey/internal/storage"
	"github.com/panchalshubham0608/securekey/internal/vaulterr"
)

// One message for every unlock failure so callers cannot tell a wrong
// password from damaged metadata.
const msgUnlockFailed = "unable to unlock vault"

var errUnsupportedKDF = errors.New("unsupported kdf metadata")

type KeyStoreOptions struct {
	Iterations int
	Logger     *log.Logger
	Now        func() time.Time
}

func (o *KeyStoreOptions) setDefaults() {
	if o.Iterations <= 0 {
		o.Iterations = crypto.DefaultIterations
	}
	o.Logger = logging.OrNop(o.Logger)
	if o.Now == nil {
		o.Now = time.Now
	}
}

// KeyStore creates and opens the password-wrapped MEK of each vault.
type KeyStore struct {
	meta storage.MetadataStore
	opts KeyStoreOptions
}

func NewKeyStore(meta storage.MetadataStore, opts KeyStoreOptions) *KeyStore {
	opts.setDefaults()
	return &KeyStore{meta: meta, opts: opts}
}

// InitializeVault generates a new MEK for uid, stores it wrapped under a
// KEK derived from password, and returns the unlocked session.
func (k *KeyStore) InitializeVault(ctx context.Context, uid, password string) (*Session, error) {
	const op = "initialize vault"
	if strings.TrimSpace(uid) == "" {
		return nil, vaulterr.Validation(op, "uid is required")
	}
	if password == "" {
		return nil, vaulterr.Validation(op, "password is required")
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return nil, vaulterr.Crypto(op, "unable to generate salt", err)
	}
	mek, err := crypto.GenerateKey()
	if err != nil {
		return nil, vaulterr.Crypto(op, "unable to generate master key", err)
	}
	params := crypto.KDFParams{Iterations: k.opts.Iterations, Salt: salt}
	kek, err := crypto.DeriveKEK([]byte(password), params)
	if err != nil {
		crypto.Zero(mek)
		return nil, vaulterr.Crypto(op, "unable to derive key", err)
	}
	defer crypto.Zero(kek)

	wrapped, err := crypto.Seal(mek, kek)
	if err != nil {
		crypto.Zero(mek)
		return nil, vaulterr.Crypto(op, "unable to wrap master key", err)
	}

	md := storage.CryptoMetadata{
		UID:                  uid,
		KDF:                  crypto.KDFName,
		Hash:                 crypto.KDFHash,
		Iterations:           params.Iterations,
		Salt:                 crypto.EncodeBytes(salt),
		EncryptedMEKPassword: wrapped,
		CreatedAt:            k.opts.Now().UTC(),
	}
	if err := k.meta.CreateMetadata(ctx, md); err != nil {
		crypto.Zero(mek)
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, vaulterr.Duplicate(op, "vault already initialized")
		}
		return nil, vaulterr.Store(op, err)
	}

	sess, err := NewSession(uid, mek)
	if err != nil {
		return nil, err
	}
	k.opts.Logger.Info("vault initialized", "uid", uid, "iterations", params.Iterations)
	return sess, nil
}

// UnlockVault re-derives the KEK from password and unwraps the MEK.
func (k *KeyStore) UnlockVault(ctx context.Context, uid, password string) (*Session, error) {
	const op = "unlock vault"
	if strings.TrimSpace(uid) == "" {
		return nil, vaulterr.Validation(op, "uid is required")
	}
	if password == "" {
		return nil, vaulterr.Validation(op, "password is required")
	}

	md, err := k.meta.GetMetadata(ctx, uid)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, vaulterr.NotFound(op, "vault not initialized")
	}
	if err != nil {
		return nil, vaulterr.Store(op, err)
	}
	if md.KDF != crypto.KDFName || md.Hash != crypto.KDFHash || md.Iterations < 1 {
		return nil, vaulterr.Crypto(op, msgUnlockFailed, errUnsupportedKDF)
	}
	salt, err := crypto.DecodeBytes(md.Salt)
	if err != nil {
		return nil, vaulterr.Crypto(op, msgUnlockFailed, err)
	}

	kek, err := crypto.DeriveKEK([]byte(password), crypto.KDFParams{Iterations: md.Iterations, Salt: salt})
	if err != nil {
		return nil, vaulterr.Crypto(op, msgUnlockFailed, err)
	}
	defer crypto.Zero(kek)

	mek, err := crypto.Open(md.EncryptedMEKPassword, kek)
	if err != nil {
		k.opts.Logger.Warn("vault unlock failed", "uid", uid)
		return nil, vaulterr.Crypto(op, msgUnlockFailed, err)
	}
	if len(mek) != crypto.KeySize {
		crypto.Zero(mek)
		return nil, vaulterr.Crypto(op, msgUnlockFailed, crypto.ErrInvalidKey)
	}

	sess, err := NewSession(uid, mek)
	if err != nil {
		return nil, err
	}
	k.opts.Logger.Info("vault unlocked", "uid", uid)
	return sess, nil
}

// HasVault reports whether uid has initialized a vault.
func (k *KeyStore) HasVault(ctx context.Context, uid string) (bool, error) {
	_, err := k.meta.GetMetadata(ctx, uid)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrNotFound):
		return false, nil
	default:
		return false, vaulterr.Store("check vault", err)
	}
}
