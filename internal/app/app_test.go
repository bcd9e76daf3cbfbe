package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panchalshubham0608/securekey/internal/audit"
	"github.com/panchalshubham0608/securekey/internal/auth"
	"github.com/panchalshubham0608/securekey/internal/ceremony"
	"github.com/panchalshubham0608/securekey/internal/config"
	"github.com/panchalshubham0608/securekey/internal/crypto"
	"github.com/panchalshubham0608/securekey/internal/storage"
	"github.com/panchalshubham0608/securekey/internal/vault"
	"github.com/panchalshubham0608/securekey/internal/vaulterr"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := config.Default()
	cfg.KDF.Iterations = 1000
	cfg.Device.Path = filepath.Join(t.TempDir(), "device", "device.db")
	a, err := New(context.Background(), cfg, Options{
		Presence:      func(context.Context, string) (string, error) { return "2468", nil },
		PasswordArgon: auth.ArgonParams{Memory: 1024, Time: 1, Parallelism: 1, SaltLen: 16, KeyLen: 32},
		PINArgon:      ceremony.ArgonParams{Time: 1, Memory: 1024, Threads: 1},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func events(a *App, uid string) []audit.Event {
	var out []audit.Event
	for _, e := range a.Audit.ForUser(uid) {
		out = append(out, e.Event)
	}
	return out
}

func TestSignUpSignOutSignIn(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)

	id, sess, err := a.SignUp(ctx, "alice@example.com", "Secr3t!")
	require.NoError(t, err)
	require.Equal(t, id.UID, sess.UID())
	_, err = a.Items.Add(ctx, sess, vault.NewItem{Account: "github.com", Username: "alice", Password: "gh-pass"})
	require.NoError(t, err)

	require.NoError(t, a.SignOut(ctx, sess))
	assert.True(t, sess.Locked())
	assert.Nil(t, a.Users.Current())

	got, sess2, err := a.SignIn(ctx, "alice@example.com", "Secr3t!")
	require.NoError(t, err)
	defer sess2.Lock()
	assert.Equal(t, id, got)
	assert.Equal(t, id.UID, a.Users.Current().UID)

	pw, err := a.Items.Password(ctx, sess2, "github.com", "alice")
	require.NoError(t, err)
	assert.Equal(t, "gh-pass", pw)

	assert.Equal(t, []audit.Event{audit.VaultInitialized, audit.VaultLocked, audit.SignedOut, audit.VaultUnlocked}, events(a, id.UID))
	require.NoError(t, a.Audit.Verify())
}

func TestSignInWrongPassword(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)
	_, sess, err := a.SignUp(ctx, "alice@example.com", "Secr3t!")
	require.NoError(t, err)
	require.NoError(t, a.SignOut(ctx, sess))

	_, _, err = a.SignIn(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, vaulterr.ErrValidation)
	assert.Nil(t, a.Users.Current())
}

func TestSignInCreatesMissingVault(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)
	id, err := a.Users.Register(ctx, "bob@example.com", "B0b-pass")
	require.NoError(t, err)

	_, sess, err := a.SignIn(ctx, "bob@example.com", "B0b-pass")
	require.NoError(t, err)
	defer sess.Lock()
	ok, err := a.Keys.HasVault(ctx, id.UID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []audit.Event{audit.VaultInitialized}, events(a, id.UID))
}

func TestQuickUnlockFlow(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)
	id, sess, err := a.Register(ctx, "alice@example.com", "Secr3t!")
	require.NoError(t, err)
	_, err = a.Items.Add(ctx, sess, vault.NewItem{Account: "mail", Username: "alice", Password: "mail-pass"})
	require.NoError(t, err)

	_, ok, err := a.QuickUnlock(ctx, id.UID)
	require.NoError(t, err)
	assert.False(t, ok, "not enrolled yet")

	require.NoError(t, a.EnableQuickUnlock(ctx, id, sess))
	a.Lock(sess)

	quick, ok, err := a.QuickUnlock(ctx, id.UID)
	require.NoError(t, err)
	require.True(t, ok)
	pw, err := a.Items.Password(ctx, quick, "mail", "alice")
	require.NoError(t, err)
	assert.Equal(t, "mail-pass", pw)
	a.Lock(quick)

	require.NoError(t, a.DisableQuickUnlock(ctx, id.UID))
	_, ok, err = a.QuickUnlock(ctx, id.UID)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, []audit.Event{
		audit.VaultInitialized,
		audit.QuickUnlockEnabled,
		audit.VaultLocked,
		audit.QuickUnlockUsed,
		audit.VaultLocked,
		audit.QuickUnlockRemoved,
	}, events(a, id.UID))
}

func TestEnableQuickUnlockKeepsOtherEnrollment(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)
	alice, aliceSess, err := a.Register(ctx, "alice@example.com", "Secr3t!")
	require.NoError(t, err)
	bob, bobSess, err := a.Register(ctx, "bob@example.com", "B0b-pass")
	require.NoError(t, err)
	defer bobSess.Lock()

	require.NoError(t, a.EnableQuickUnlock(ctx, alice, aliceSess))
	a.Lock(aliceSess)

	err = a.EnableQuickUnlock(ctx, bob, bobSess)
	assert.ErrorIs(t, err, vaulterr.ErrDuplicate)
	assert.True(t, a.Quick.IsEnabled(ctx, alice.UID))
	assert.False(t, a.Quick.IsEnabled(ctx, bob.UID))

	sess, ok, err := a.QuickUnlock(ctx, alice.UID)
	require.NoError(t, err)
	require.True(t, ok)
	a.Lock(sess)

	// Re-enrolling the same user is allowed.
	sess, err = a.Unlock(ctx, alice.UID, "Secr3t!")
	require.NoError(t, err)
	defer sess.Lock()
	assert.NoError(t, a.EnableQuickUnlock(ctx, alice, sess))
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)
	id, sess, err := a.Register(ctx, "alice@example.com", "N3w-pass")
	require.NoError(t, err)
	defer sess.Lock()

	env, err := crypto.SealLegacy([]byte("old-gh"), []byte("Old-pass"))
	require.NoError(t, err)
	_, err = a.Store.AddLegacy(ctx, storage.LegacyItem{Owner: id.UID, Account: "github.com", Username: "alice", Password: env.Ciphertext})
	require.NoError(t, err)

	rep, err := a.Migrate(ctx, sess, "Old-pass", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Migrated)

	pw, err := a.Items.Password(ctx, sess, "github.com", "alice")
	require.NoError(t, err)
	assert.Equal(t, "old-gh", pw)
	assert.Equal(t, []audit.Event{audit.VaultInitialized, audit.ItemMigrated, audit.MigrationFinished}, events(a, id.UID))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Store = "sqlite"
	_, err := New(context.Background(), cfg, Options{})
	assert.Error(t, err)
}
