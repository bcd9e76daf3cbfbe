package vault

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panchalshubham0608/securekey/internal/vaulterr"
)

func TestAddUpdateHistoryExample(t *testing.T) {
	ctx := context.Background()
	items, sess := newTestItems(t)

	id, err := items.Add(ctx, sess, NewItem{Account: "GitHub", Username: "octocat", Password: "hunter2"})
	require.NoError(t, err)
	require.NoError(t, items.UpdatePassword(ctx, sess, id, "hunter3"))

	hist, err := items.History(ctx, sess, id)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "hunter2", hist[0].Password)

	pw, err := items.Password(ctx, sess, "GitHub", "octocat")
	require.NoError(t, err)
	assert.Equal(t, "hunter3", pw)

	pw, err = items.PasswordByID(ctx, sess, id)
	require.NoError(t, err)
	assert.Equal(t, "hunter3", pw)
}

func TestHistoryMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	items, sess := newTestItems(t)

	id, err := items.Add(ctx, sess, NewItem{Account: "bank", Username: "me", Password: "v0"})
	require.NoError(t, err)
	for _, pw := range []string{"v1", "v2", "v3", "v4"} {
		require.NoError(t, items.UpdatePassword(ctx, sess, id, pw))
	}

	hist, err := items.History(ctx, sess, id)
	require.NoError(t, err)
	require.Len(t, hist, 4)
	for i, want := range []string{"v3", "v2", "v1", "v0"} {
		assert.Equal(t, want, hist[i].Password)
	}
	for i := 1; i < len(hist); i++ {
		assert.True(t, hist[i-1].UpdatedAt.After(hist[i].UpdatedAt))
	}
}

func TestAddWithHistoryEncryptsEachEntry(t *testing.T) {
	ctx := context.Background()
	items, sess := newTestItems(t)
	t0 := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	id, err := items.Add(ctx, sess, NewItem{
		Account:  "mail",
		Username: "me",
		Password: "current",
		History: []PasswordVersion{
			{Password: "oldest", UpdatedAt: t0},
			{Password: "older", UpdatedAt: t0.Add(time.Hour)},
		},
		CreatedAt: t0,
	})
	require.NoError(t, err)

	got, err := items.Get(ctx, sess, id)
	require.NoError(t, err)
	assert.Equal(t, t0, got.CreatedAt)

	hist, err := items.History(ctx, sess, id)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "older", hist[0].Password)
	assert.Equal(t, "oldest", hist[1].Password)
}

func TestAddRejectsDuplicatePair(t *testing.T) {
	ctx := context.Background()
	items, sess := newTestItems(t)

	_, err := items.Add(ctx, sess, NewItem{Account: "GitHub", Username: "octocat", Password: "a"})
	require.NoError(t, err)
	_, err = items.Add(ctx, sess, NewItem{Account: "GitHub", Username: "octocat", Password: "b"})
	require.ErrorIs(t, err, vaulterr.ErrDuplicate)

	_, err = items.Add(ctx, sess, NewItem{Account: "GitHub", Username: "hubot", Password: "b"})
	require.NoError(t, err)
}

func TestAddValidation(t *testing.T) {
	ctx := context.Background()
	items, sess := newTestItems(t)
	cases := []NewItem{
		{Username: "u", Password: "p"},
		{Account: "a", Username: " ", Password: "p"},
		{Account: "a", Username: "u"},
		{Account: "a", Username: "u", Password: "p", History: []PasswordVersion{{}}},
	}
	for _, in := range cases {
		_, err := items.Add(ctx, sess, in)
		assert.ErrorIs(t, err, vaulterr.ErrValidation)
	}
}

func TestListOmitsPasswords(t *testing.T) {
	ctx := context.Background()
	items, sess := newTestItems(t)
	_, err := items.Add(ctx, sess, NewItem{Account: "a", Username: "u", Password: "s3cret-value"})
	require.NoError(t, err)

	list, err := items.List(ctx, sess)
	require.NoError(t, err)
	require.Len(t, list, 1)
	b, err := json.Marshal(list)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "password")
	assert.NotContains(t, string(b), "s3cret-value")
}

func TestItemsScopedToSessionOwner(t *testing.T) {
	ctx := context.Background()
	ks, st := newTestKeyStore(t)
	items := NewItems(st, ItemsOptions{})

	alice, err := ks.InitializeVault(ctx, "alice", "pw-a")
	require.NoError(t, err)
	bob, err := ks.InitializeVault(ctx, "bob", "pw-b")
	require.NoError(t, err)

	id, err := items.Add(ctx, alice, NewItem{Account: "a", Username: "u", Password: "p"})
	require.NoError(t, err)

	_, err = items.Get(ctx, bob, id)
	require.ErrorIs(t, err, vaulterr.ErrNotFound)
	require.ErrorIs(t, items.Delete(ctx, bob, id), vaulterr.ErrNotFound)

	list, err := items.List(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestWrongKeyYieldsCryptoError(t *testing.T) {
	ctx := context.Background()
	ks, st := newTestKeyStore(t)
	items := NewItems(st, ItemsOptions{})
	sess, err := ks.InitializeVault(ctx, "u1", "pw")
	require.NoError(t, err)
	id, err := items.Add(ctx, sess, NewItem{Account: "a", Username: "u", Password: "p"})
	require.NoError(t, err)

	forged, err := NewSession("u1", make([]byte, 32))
	require.NoError(t, err)
	_, err = items.PasswordByID(ctx, forged, id)
	require.ErrorIs(t, err, vaulterr.ErrCrypto)
}

func TestLockedSessionRejected(t *testing.T) {
	ctx := context.Background()
	items, sess := newTestItems(t)
	id, err := items.Add(ctx, sess, NewItem{Account: "a", Username: "u", Password: "p"})
	require.NoError(t, err)

	sess.Lock()
	_, err = items.List(ctx, sess)
	require.ErrorIs(t, err, vaulterr.ErrValidation)
	_, err = items.PasswordByID(ctx, sess, id)
	require.ErrorIs(t, err, vaulterr.ErrValidation)
}

func TestNotFoundPaths(t *testing.T) {
	ctx := context.Background()
	items, sess := newTestItems(t)

	_, err := items.Password(ctx, sess, "none", "none")
	require.ErrorIs(t, err, vaulterr.ErrNotFound)
	require.ErrorIs(t, items.UpdatePassword(ctx, sess, "missing", "x"), vaulterr.ErrNotFound)
	_, err = items.History(ctx, sess, "missing")
	require.ErrorIs(t, err, vaulterr.ErrNotFound)
	require.ErrorIs(t, items.Delete(ctx, sess, "missing"), vaulterr.ErrNotFound)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	items, sess := newTestItems(t)
	id, err := items.Add(ctx, sess, NewItem{Account: "a", Username: "u", Password: "p"})
	require.NoError(t, err)
	require.NoError(t, items.Delete(ctx, sess, id))

	// The pair is free again.
	_, err = items.Add(ctx, sess, NewItem{Account: "a", Username: "u", Password: "p2"})
	require.NoError(t, err)
}

func BenchmarkItemsAdd(b *testing.B) {
	ctx := context.Background()
	items, sess := newTestItems(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := items.Add(ctx, sess, NewItem{Account: "site", Username: "user-" + strconv.Itoa(i), Password: "secret"}); err != nil {
			b.Fatalf("add item: %v", err)
		}
	}
}

func BenchmarkItemsPassword(b *testing.B) {
	ctx := context.Background()
	items, sess := newTestItems(b)
	if _, err := items.Add(ctx, sess, NewItem{Account: "site", Username: "alice", Password: "secret"}); err != nil {
		b.Fatalf("add item: %v", err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := items.Password(ctx, sess, "site", "alice"); err != nil {
			b.Fatalf("get password: %v", err)
		}
	}
}
