// Package migration moves legacy passphrase-encrypted entries into the
// MEK-encrypted vault.
package migration

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"github.com/panchalshubham0608/securekey/internal/crypto"
	"github.com/panchalshubham0608/securekey/internal/logging"
	"github.com/panchalshubham0608/securekey/internal/storage"
	"github.com/panchalshubham0608/securekey/internal/vault"
	"github.com/panchalshubham0608/securekey/internal/vaulterr"
)

// Progress is called after each migrated entry.
type Progress func(done, total int)

// Pending describes a legacy entry that has not been migrated.
type Pending struct {
	ID        string    `json:"id"`
	Account   string    `json:"account"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}

type Report struct {
	Total    int `json:"total"`
	Migrated int `json:"migrated"`
	// Resumed counts entries already present in the vault from an
	// interrupted run. They are marked migrated without a second add.
	Resumed int `json:"resumed"`
}

type Options struct {
	Logger *log.Logger
	Now    func() time.Time
	// OnMigrated is called with the legacy id and the new vault item id.
	// The item id is empty for resumed entries.
	OnMigrated func(legacyID, itemID string)
}

type Engine struct {
	legacy storage.LegacyStore
	items  *vault.Items
	opts   Options
	log    *log.Logger
}

func New(legacy storage.LegacyStore, items *vault.Items, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{legacy: legacy, items: items, opts: opts, log: logging.OrNop(opts.Logger)}
}

// Pending lists the owner's entries that still need migrating.
func (e *Engine) Pending(ctx context.Context, owner string) ([]Pending, error) {
	const op = "list legacy entries"
	if owner == "" {
		return nil, vaulterr.Validation(op, "owner is required")
	}
	docs, err := e.legacy.FindLegacy(ctx, owner, true)
	if err != nil {
		return nil, vaulterr.Store(op, err)
	}
	out := make([]Pending, 0, len(docs))
	for _, d := range docs {
		out = append(out, Pending{ID: d.ID, Account: d.Account, Username: d.Username, CreatedAt: d.CreatedAt})
	}
	return out, nil
}

// Run migrates every pending entry of the session's owner, one at a time,
// and stops at the first failure. Entries are marked migrated only after
// the vault add succeeds, so a rerun picks up where a failed run stopped.
func (e *Engine) Run(ctx context.Context, sess *vault.Session, legacySecret string, progress Progress) (Report, error) {
	const op = "migrate"
	var rep Report
	if sess.Locked() {
		return rep, vaulterr.Validation(op, "vault is locked")
	}
	if legacySecret == "" {
		return rep, vaulterr.Validation(op, "legacy password is required")
	}
	owner := sess.UID()
	docs, err := e.legacy.FindLegacy(ctx, owner, true)
	if err != nil {
		return rep, vaulterr.Store(op, err)
	}
	rep.Total = len(docs)
	e.log.Info("migration started", "uid", owner, "pending", rep.Total)

	for i, d := range docs {
		if err := ctx.Err(); err != nil {
			return rep, &vaulterr.Error{Kind: vaulterr.KindStore, Op: op, Msg: "migration interrupted", Err: err}
		}
		resumed, err := e.migrateOne(ctx, sess, d, legacySecret)
		if err != nil {
			e.log.Error("migration stopped", "uid", owner, "legacy_id", d.ID, "done", i, "total", rep.Total, "err", err)
			return rep, err
		}
		rep.Migrated++
		if resumed {
			rep.Resumed++
		}
		if progress != nil {
			progress(i+1, rep.Total)
		}
	}
	e.log.Info("migration finished", "uid", owner, "migrated", rep.Migrated, "resumed", rep.Resumed)
	return rep, nil
}

func (e *Engine) migrateOne(ctx context.Context, sess *vault.Session, d storage.LegacyItem, legacySecret string) (resumed bool, err error) {
	const op = "migrate entry"
	secret := []byte(legacySecret)
	defer crypto.Zero(secret)

	in, err := decodeLegacy(op, d, secret)
	if err != nil {
		return false, err
	}

	id, err := e.items.Add(ctx, sess, in)
	if errors.Is(err, vaulterr.ErrDuplicate) {
		// A previous run may have added the entry and died before
		// marking it. Only an identical password counts as that case.
		existing, perr := e.items.Password(ctx, sess, d.Account, d.Username)
		if perr != nil || existing != in.Password {
			return false, err
		}
		resumed = true
	} else if err != nil {
		return false, err
	}

	if err := e.legacy.MarkMigrated(ctx, d.ID, e.opts.Now().UTC()); err != nil {
		return false, vaulterr.Store(op, err)
	}
	if e.opts.OnMigrated != nil {
		e.opts.OnMigrated(d.ID, id)
	}
	e.log.Debug("entry migrated", "uid", sess.UID(), "legacy_id", d.ID, "item_id", id, "resumed", resumed)
	return resumed, nil
}

func decodeLegacy(op string, d storage.LegacyItem, secret []byte) (vault.NewItem, error) {
	pw, err := crypto.OpenLegacy(crypto.LegacyEnvelope(d.Password), secret)
	if err != nil {
		return vault.NewItem{}, vaulterr.Crypto(op, "unable to decrypt legacy entry", err)
	}
	in := vault.NewItem{
		Account:   d.Account,
		Username:  d.Username,
		Password:  string(pw),
		History:   make([]vault.PasswordVersion, 0, len(d.History)),
		CreatedAt: d.CreatedAt,
	}
	for _, h := range d.History {
		hp, err := crypto.OpenLegacy(crypto.LegacyEnvelope(h.Password), secret)
		if err != nil {
			return vault.NewItem{}, vaulterr.Crypto(op, "unable to decrypt legacy history", err)
		}
		in.History = append(in.History, vault.PasswordVersion{Password: string(hp), UpdatedAt: h.ChangedAt})
	}
	return in, nil
}

// WithHook returns a copy of e that also calls fn for every migrated entry.
func (e *Engine) WithHook(fn func(legacyID, itemID string)) *Engine {
	c := *e
	prev := e.opts.OnMigrated
	c.opts.OnMigrated = func(legacyID, itemID string) {
		if prev != nil {
			prev(legacyID, itemID)
		}
		fn(legacyID, itemID)
	}
	return &c
}
