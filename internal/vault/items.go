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

// Item describes a stored credential without its password.
type Item struct {
	ID        string    `json:"id"`
	Account   string    `json:"account"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PasswordVersion is one decrypted history entry.
type PasswordVersion struct {
	Password  string    `json:"password"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type NewItem struct {
	Account  string
	Username string
	Password string
	// History holds earlier passwords, oldest first.
	History []PasswordVersion
	// CreatedAt defaults to now.
	CreatedAt time.Time
}

type ItemsOptions struct {
	Logger *log.Logger
	Now    func() time.Time
}

// Items reads and writes vault entries. It holds no key material; every
// call takes the caller's session.
//
// The (account, username) uniqueness check is a read followed by a write
// and is not atomic. Concurrent adds of the same pair can both pass the
// check unless the store enforces uniqueness itself (MongoStore does).
type Items struct {
	store storage.ItemStore
	log   *log.Logger
	now   func() time.Time
}

func NewItems(store storage.ItemStore, opts ItemsOptions) *Items {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Items{store: store, log: logging.OrNop(opts.Logger), now: opts.Now}
}

func (s *Items) Add(ctx context.Context, sess *Session, in NewItem) (string, error) {
	const op = "add item"
	if err := checkSession(op, sess); err != nil {
		return "", err
	}
	switch {
	case strings.TrimSpace(in.Account) == "":
		return "", vaulterr.Validation(op, "account is required")
	case strings.TrimSpace(in.Username) == "":
		return "", vaulterr.Validation(op, "username is required")
	case in.Password == "":
		return "", vaulterr.Validation(op, "password is required")
	}
	for _, h := range in.History {
		if h.Password == "" {
			return "", vaulterr.Validation(op, "history entries need a password")
		}
	}

	existing, err := s.store.FindItems(ctx, storage.ItemFilter{Owner: sess.UID(), Account: in.Account, Username: in.Username})
	if err != nil {
		return "", vaulterr.Store(op, err)
	}
	if len(existing) > 0 {
		return "", vaulterr.Duplicate(op, "an entry for this account and username already exists")
	}

	now := s.now().UTC()
	it := storage.VaultItem{
		Owner:     sess.UID(),
		Account:   in.Account,
		Username:  in.Username,
		History:   make([]storage.HistoryEntry, 0, len(in.History)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if !in.CreatedAt.IsZero() {
		it.CreatedAt = in.CreatedAt.UTC()
	}
	err = sess.Use(func(mek []byte) error {
		var err error
		if it.EncryptedPassword, err = crypto.SealString(in.Password, mek); err != nil {
			return err
		}
		for _, h := range in.History {
			env, err := crypto.SealString(h.Password, mek)
			if err != nil {
				return err
			}
			it.History = append(it.History, storage.HistoryEntry{EncryptedPassword: env, UpdatedAt: h.UpdatedAt.UTC()})
		}
		return nil
	})
	if err != nil {
		return "", sessionOrCrypto(op, "unable to encrypt entry", err)
	}

	id, err := s.store.AddItem(ctx, it)
	if errors.Is(err, storage.ErrDuplicate) {
		return "", vaulterr.Duplicate(op, "an entry for this account and username already exists")
	}
	if err != nil {
		return "", vaulterr.Store(op, err)
	}
	s.log.Info("item added", "uid", sess.UID(), "id", id, "history", len(it.History))
	return id, nil
}

// List returns the owner's items without passwords.
func (s *Items) List(ctx context.Context, sess *Session) ([]Item, error) {
	const op = "list items"
	if err := checkSession(op, sess); err != nil {
		return nil, err
	}
	docs, err := s.store.FindItems(ctx, storage.ItemFilter{Owner: sess.UID()})
	if err != nil {
		return nil, vaulterr.Store(op, err)
	}
	out := make([]Item, 0, len(docs))
	for _, d := range docs {
		out = append(out, summary(d))
	}
	return out, nil
}

func (s *Items) Get(ctx context.Context, sess *Session, id string) (Item, error) {
	const op = "get item"
	d, err := s.load(ctx, op, sess, id)
	if err != nil {
		return Item{}, err
	}
	return summary(d), nil
}

// Password decrypts the current password of the (account, username) entry.
func (s *Items) Password(ctx context.Context, sess *Session, account, username string) (string, error) {
	const op = "get password"
	if err := checkSession(op, sess); err != nil {
		return "", err
	}
	if account == "" || username == "" {
		return "", vaulterr.Validation(op, "account and username are required")
	}
	docs, err := s.store.FindItems(ctx, storage.ItemFilter{Owner: sess.UID(), Account: account, Username: username})
	if err != nil {
		return "", vaulterr.Store(op, err)
	}
	switch len(docs) {
	case 0:
		return "", vaulterr.NotFound(op, "no entry for this account and username")
	case 1:
	default:
		return "", vaulterr.Duplicate(op, "multiple entries for this account and username")
	}
	return s.decrypt(op, sess, docs[0].EncryptedPassword)
}

// PasswordByID decrypts the current password of item id.
func (s *Items) PasswordByID(ctx context.Context, sess *Session, id string) (string, error) {
	const op = "get password"
	d, err := s.load(ctx, op, sess, id)
	if err != nil {
		return "", err
	}
	return s.decrypt(op, sess, d.EncryptedPassword)
}

// UpdatePassword stores newPassword and appends the previous ciphertext,
// with the time it was set, to the item's history.
func (s *Items) UpdatePassword(ctx context.Context, sess *Session, id, newPassword string) error {
	const op = "update password"
	if newPassword == "" {
		return vaulterr.Validation(op, "password is required")
	}
	d, err := s.load(ctx, op, sess, id)
	if err != nil {
		return err
	}
	var env crypto.Envelope
	err = sess.Use(func(mek []byte) error {
		var err error
		env, err = crypto.SealString(newPassword, mek)
		return err
	})
	if err != nil {
		return sessionOrCrypto(op, "unable to encrypt entry", err)
	}

	prev := storage.HistoryEntry{EncryptedPassword: d.EncryptedPassword, UpdatedAt: d.UpdatedAt}
	err = s.store.UpdatePassword(ctx, sess.UID(), id, env, prev, s.now().UTC())
	if errors.Is(err, storage.ErrNotFound) {
		return vaulterr.NotFound(op, "item not found")
	}
	if err != nil {
		return vaulterr.Store(op, err)
	}
	s.log.Info("item password updated", "uid", sess.UID(), "id", id, "history", len(d.History)+1)
	return nil
}

func (s *Items) Delete(ctx context.Context, sess *Session, id string) error {
	const op = "delete item"
	if err := checkSession(op, sess); err != nil {
		return err
	}
	if id == "" {
		return vaulterr.Validation(op, "item id is required")
	}
	err := s.store.DeleteItem(ctx, sess.UID(), id)
	if errors.Is(err, storage.ErrNotFound) {
		return vaulterr.NotFound(op, "item not found")
	}
	if err != nil {
		return vaulterr.Store(op, err)
	}
	s.log.Info("item deleted", "uid", sess.UID(), "id", id)
	return nil
}

// History returns the item's previous passwords, most recent first.
func (s *Items) History(ctx context.Context, sess *Session, id string) ([]PasswordVersion, error) {
	const op = "item history"
	d, err := s.load(ctx, op, sess, id)
	if err != nil {
		return nil, err
	}
	out := make([]PasswordVersion, len(d.History))
	err = sess.Use(func(mek []byte) error {
		for i, h := range d.History {
			pw, err := crypto.OpenString(h.EncryptedPassword, mek)
			if err != nil {
				return err
			}
			out[len(d.History)-1-i] = PasswordVersion{Password: pw, UpdatedAt: h.UpdatedAt}
		}
		return nil
	})
	if err != nil {
		return nil, sessionOrCrypto(op, "unable to decrypt history", err)
	}
	return out, nil
}

func (s *Items) load(ctx context.Context, op string, sess *Session, id string) (storage.VaultItem, error) {
	if err := checkSession(op, sess); err != nil {
		return storage.VaultItem{}, err
	}
	if id == "" {
		return storage.VaultItem{}, vaulterr.Validation(op, "item id is required")
	}
	d, err := s.store.GetItem(ctx, sess.UID(), id)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.VaultItem{}, vaulterr.NotFound(op, "item not found")
	}
	if err != nil {
		return storage.VaultItem{}, vaulterr.Store(op, err)
	}
	return d, nil
}

func (s *Items) decrypt(op string, sess *Session, env crypto.Envelope) (string, error) {
	var pw string
	err := sess.Use(func(mek []byte) error {
		var err error
		pw, err = crypto.OpenString(env, mek)
		return err
	})
	if err != nil {
		return "", sessionOrCrypto(op, "unable to decrypt entry", err)
	}
	return pw, nil
}

func summary(d storage.VaultItem) Item {
	return Item{ID: d.ID, Account: d.Account, Username: d.Username, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt}
}

// sessionOrCrypto passes a locked-session error through and reports
// anything else as a crypto failure.
func sessionOrCrypto(op, msg string, err error) error {
	if vaulterr.KindOf(err) == vaulterr.KindValidation {
		return err
	}
	return vaulterr.Crypto(op, msg, err)
}
