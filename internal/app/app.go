// Package app wires the identity provider, vault, quick unlock, migration,
// and audit log into the flows a client runs.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/panchalshubham0608/securekey/internal/audit"
	"github.com/panchalshubham0608/securekey/internal/auth"
	"github.com/panchalshubham0608/securekey/internal/ceremony"
	"github.com/panchalshubham0608/securekey/internal/config"
	"github.com/panchalshubham0608/securekey/internal/logging"
	"github.com/panchalshubham0608/securekey/internal/migration"
	"github.com/panchalshubham0608/securekey/internal/platform"
	"github.com/panchalshubham0608/securekey/internal/quickunlock"
	"github.com/panchalshubham0608/securekey/internal/storage"
	"github.com/panchalshubham0608/securekey/internal/vault"
	"github.com/panchalshubham0608/securekey/internal/vaulterr"
)

// Options overrides pieces New would otherwise build from the config.
type Options struct {
	Logger *log.Logger
	// Presence answers the software authenticator's PIN prompt. Defaults
	// to ceremony.ContextPresence.
	Presence ceremony.PresenceFunc
	// Authenticator replaces the software authenticator.
	Authenticator ceremony.Authenticator
	Store         storage.Store
	Users         auth.UserStore
	Device        platform.DeviceStore
	PasswordArgon auth.ArgonParams
	PINArgon      ceremony.ArgonParams
}

type App struct {
	Config    config.Config
	Users     *auth.LocalProvider
	Keys      *vault.KeyStore
	Items     *vault.Items
	Quick     *quickunlock.Service
	Migration *migration.Engine
	Audit     *audit.Log
	Store     storage.Store

	log     *log.Logger
	closers []func(context.Context) error
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{Config: cfg, log: logging.OrNop(opts.Logger)}
	if err := a.openStores(ctx, &opts); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	a.Store = opts.Store
	a.Audit = audit.New(a.log.WithPrefix("audit"))
	a.Users = auth.NewLocalProvider(opts.Users, auth.LocalProviderOptions{Argon: opts.PasswordArgon, Logger: a.log})
	a.Keys = vault.NewKeyStore(opts.Store, vault.KeyStoreOptions{Iterations: cfg.KDF.Iterations, Logger: a.log})
	a.Items = vault.NewItems(opts.Store, vault.ItemsOptions{Logger: a.log})
	a.Migration = migration.New(opts.Store, a.Items, migration.Options{Logger: a.log})

	authn := opts.Authenticator
	if authn == nil {
		presence := opts.Presence
		if presence == nil {
			presence = ceremony.ContextPresence
		}
		argon := opts.PINArgon
		if argon.Time == 0 {
			argon = ceremony.DefaultArgon
		}
		authn = ceremony.NewSoftware(opts.Device, presence, argon)
	}
	a.Quick = quickunlock.New(ctx, opts.Device, authn, quickunlock.Config{
		Mode:    quickunlock.Mode(cfg.QuickUnlock.Mode),
		Timeout: cfg.QuickUnlock.Timeout,
		RPID:    cfg.QuickUnlock.RPID,
		RPName:  cfg.QuickUnlock.RPName,
		Logger:  a.log.WithPrefix("quick-unlock"),
	})
	return a, nil
}

func (a *App) openStores(ctx context.Context, opts *Options) error {
	if opts.Store == nil || opts.Users == nil {
		switch a.Config.Store {
		case config.StoreMongo:
			m := a.Config.Mongo
			cli, err := storage.Connect(ctx, m.URI)
			if err != nil {
				return vaulterr.Store("open store", err)
			}
			a.closers = append(a.closers, cli.Disconnect)
			st, err := storage.NewMongoStoreWithClient(ctx, cli, storage.MongoConfig{
				Database:           m.Database,
				MetadataCollection: m.MetadataCollection,
				ItemsCollection:    m.ItemsCollection,
				LegacyCollection:   m.LegacyCollection,
			})
			if err != nil {
				return vaulterr.Store("open store", err)
			}
			users, err := auth.NewMongoUserStore(ctx, cli, m.Database, m.UsersCollection)
			if err != nil {
				return vaulterr.Store("open store", err)
			}
			if opts.Store == nil {
				opts.Store = st
			}
			if opts.Users == nil {
				opts.Users = users
			}
		default:
			if opts.Store == nil {
				opts.Store = storage.NewMemoryStore()
			}
			if opts.Users == nil {
				opts.Users = auth.NewMemoryUserStore()
			}
		}
	}

	if opts.Device == nil {
		path := a.Config.Device.Path
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return fmt.Errorf("device store: %w", err)
		}
		dev, err := platform.OpenBoltDeviceStore(path)
		if err != nil {
			return fmt.Errorf("device store: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return dev.Close() })
		opts.Device = dev
	}
	return nil
}

// Close releases the stores New opened, in reverse order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}

// SignUp creates the account, signs it in, and initializes its vault.
func (a *App) SignUp(ctx context.Context, email, password string) (auth.Identity, *vault.Session, error) {
	id, err := a.Users.SignUp(ctx, email, password)
	if err != nil {
		return auth.Identity{}, nil, err
	}
	sess, err := a.createVault(ctx, id, password)
	return id, sess, err
}

// Register is SignUp without touching the process's signed-in identity.
func (a *App) Register(ctx context.Context, email, password string) (auth.Identity, *vault.Session, error) {
	id, err := a.Users.Register(ctx, email, password)
	if err != nil {
		return auth.Identity{}, nil, err
	}
	sess, err := a.createVault(ctx, id, password)
	return id, sess, err
}

func (a *App) createVault(ctx context.Context, id auth.Identity, password string) (*vault.Session, error) {
	sess, err := a.Keys.InitializeVault(ctx, id.UID, password)
	if err != nil {
		return nil, err
	}
	a.Audit.Append(id.UID, audit.VaultInitialized, "")
	return sess, nil
}

// SignIn authenticates, signs in, and unlocks the vault with the same
// password.
func (a *App) SignIn(ctx context.Context, email, password string) (auth.Identity, *vault.Session, error) {
	id, err := a.Users.SignIn(ctx, email, password)
	if err != nil {
		return auth.Identity{}, nil, err
	}
	sess, err := a.Unlock(ctx, id.UID, password)
	if err != nil {
		_ = a.Users.SignOut(ctx)
		return auth.Identity{}, nil, err
	}
	return id, sess, nil
}

// Login is SignIn without touching the process's signed-in identity.
func (a *App) Login(ctx context.Context, email, password string) (auth.Identity, *vault.Session, error) {
	id, err := a.Users.Authenticate(ctx, email, password)
	if err != nil {
		return auth.Identity{}, nil, err
	}
	sess, err := a.Unlock(ctx, id.UID, password)
	if err != nil {
		return auth.Identity{}, nil, err
	}
	return id, sess, nil
}

// Unlock opens uid's vault with password. An account whose sign-up
// stopped before the vault was created gets its vault now.
func (a *App) Unlock(ctx context.Context, uid, password string) (*vault.Session, error) {
	sess, err := a.Keys.UnlockVault(ctx, uid, password)
	if errors.Is(err, vaulterr.ErrNotFound) {
		a.log.Warn("vault missing at sign in, initializing", "uid", uid)
		sess, err = a.Keys.InitializeVault(ctx, uid, password)
		if err == nil {
			a.Audit.Append(uid, audit.VaultInitialized, "at sign in")
		}
		return sess, err
	}
	if err != nil {
		a.Audit.Append(uid, audit.VaultUnlockFailed, "")
		return nil, err
	}
	a.Audit.Append(uid, audit.VaultUnlocked, "password")
	return sess, nil
}

// QuickUnlock tries the device's enrollment for uid. ok is false when the
// device is not enrolled for uid; the caller then falls back to a password.
func (a *App) QuickUnlock(ctx context.Context, uid string) (sess *vault.Session, ok bool, err error) {
	sess, ok, err = a.Quick.Unlock(ctx, uid)
	switch {
	case err != nil:
		a.Audit.Append(uid, audit.QuickUnlockFailed, vaulterr.KindOf(err).String())
	case ok:
		a.Audit.Append(uid, audit.QuickUnlockUsed, "")
	}
	return sess, ok, err
}

// EnableQuickUnlock enrolls this device for id. A device enrolled for
// another uid must be disabled by that user first.
func (a *App) EnableQuickUnlock(ctx context.Context, id auth.Identity, sess *vault.Session) error {
	if uid, ok := a.Quick.EnrolledUID(ctx); ok && uid != id.UID {
		return vaulterr.Duplicate("enable quick unlock", "device is enrolled for another account")
	}
	err := a.Quick.Enable(ctx, quickunlock.Identity{UID: id.UID, Email: id.Email}, sess)
	if err != nil {
		return err
	}
	a.Audit.Append(id.UID, audit.QuickUnlockEnabled, a.Config.QuickUnlock.Mode)
	return nil
}

func (a *App) DisableQuickUnlock(ctx context.Context, uid string) error {
	if err := a.Quick.Disable(ctx); err != nil {
		return err
	}
	a.Audit.Append(uid, audit.QuickUnlockRemoved, "")
	return nil
}

// Lock wipes the session's MEK.
func (a *App) Lock(sess *vault.Session) {
	if sess.Locked() {
		return
	}
	uid := sess.UID()
	sess.Lock()
	a.Audit.Append(uid, audit.VaultLocked, "")
}

// SignOut locks the session and clears the signed-in identity. Quick
// unlock stays enrolled.
func (a *App) SignOut(ctx context.Context, sess *vault.Session) error {
	uid := ""
	if !sess.Locked() {
		uid = sess.UID()
	}
	a.Lock(sess)
	if cur := a.Users.Current(); cur != nil && uid == "" {
		uid = cur.UID
	}
	if err := a.Users.SignOut(ctx); err != nil {
		return err
	}
	a.Audit.Append(uid, audit.SignedOut, "")
	return nil
}

// Migrate moves the session owner's legacy entries into the vault.
func (a *App) Migrate(ctx context.Context, sess *vault.Session, legacySecret string, progress migration.Progress) (migration.Report, error) {
	uid := ""
	if !sess.Locked() {
		uid = sess.UID()
	}
	eng := a.Migration.WithHook(func(legacyID, itemID string) {
		a.Audit.Append(uid, audit.ItemMigrated, "legacy="+legacyID+" item="+itemID)
	})
	rep, err := eng.Run(ctx, sess, legacySecret, progress)
	if err != nil {
		return rep, err
	}
	a.Audit.Append(uid, audit.MigrationFinished, fmt.Sprintf("migrated=%d resumed=%d", rep.Migrated, rep.Resumed))
	return rep, nil
}

// Policy returns the session timers from the configuration.
func (a *App) Policy() vault.Policy {
	p := vault.DefaultPolicy()
	if a.Config.Vault.LockTimeout >= 0 {
		p.LockTimeout = a.Config.Vault.LockTimeout
	}
	if a.Config.Clipboard.TTL > 0 {
		p.ClipboardTimeout = a.Config.Clipboard.TTL
	}
	return p
}
