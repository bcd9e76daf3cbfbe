package vault

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/panchalshubham0608/securekey/internal/storage"
)

const testIterations = 1000

func newTestKeyStore(t testing.TB) (*KeyStore, *storage.MemoryStore) {
	t.Helper()
	st := storage.NewMemoryStore()
	return NewKeyStore(st, KeyStoreOptions{Iterations: testIterations}), st
}

// steppingClock returns a clock that advances one second per call.
func steppingClock() func() time.Time {
	t := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newTestItems(t testing.TB) (*Items, *Session) {
	t.Helper()
	ks, st := newTestKeyStore(t)
	sess, err := ks.InitializeVault(context.Background(), "u1", "Secr3t!")
	require.NoError(t, err)
	t.Cleanup(sess.Lock)
	return NewItems(st, ItemsOptions{Now: steppingClock()}), sess
}

func mekOf(t testing.TB, s *Session) []byte {
	t.Helper()
	var out []byte
	require.NoError(t, s.Use(func(mek []byte) error {
		out = append([]byte(nil), mek...)
		return nil
	}))
	return out
}
