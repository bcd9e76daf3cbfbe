package ceremony

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panchalshubham0608/securekey/internal/platform"
)

var fastArgon = ArgonParams{Time: 1, Memory: 1024, Threads: 1}

func pinPresence(pin string) PresenceFunc {
	return func(context.Context, string) (string, error) { return pin, nil }
}

func createCredential(t *testing.T, store platform.DeviceStore) Credential {
	t.Helper()
	sw := NewSoftware(store, pinPresence("2468"), fastArgon)
	cred, err := sw.Create(context.Background(), CreateOptions{
		Challenge: []byte("create-challenge"),
		RP:        RelyingParty{ID: "securekey", Name: "SecureKey"},
		User:      User{ID: []byte("u1"), Name: "alice@example.com"},
	})
	require.NoError(t, err)
	require.Len(t, cred.ID, 32)
	return cred
}

func TestSoftwareCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := platform.NewMemoryDeviceStore()
	cred := createCredential(t, store)

	sw := NewSoftware(store, pinPresence("2468"), fastArgon)
	challenge := []byte("fresh-challenge")
	a, err := sw.Get(ctx, GetOptions{Challenge: challenge, RPID: "securekey", AllowCredentials: [][]byte{cred.ID}, PRFSalt: []byte("salt-1")})
	require.NoError(t, err)
	assert.Equal(t, cred.ID, a.CredentialID)
	assert.True(t, VerifyAssertion(cred.PublicKey, "securekey", challenge, a))
	assert.False(t, VerifyAssertion(cred.PublicKey, "securekey", []byte("other"), a))
	assert.False(t, VerifyAssertion(cred.PublicKey, "elsewhere", challenge, a))
	require.Len(t, a.PRF, 32)

	again, err := sw.Get(ctx, GetOptions{Challenge: []byte("second"), AllowCredentials: [][]byte{cred.ID}, PRFSalt: []byte("salt-1")})
	require.NoError(t, err)
	assert.Equal(t, a.PRF, again.PRF, "prf is stable for a salt")

	other, err := sw.Get(ctx, GetOptions{Challenge: []byte("third"), AllowCredentials: [][]byte{cred.ID}, PRFSalt: []byte("salt-2")})
	require.NoError(t, err)
	assert.NotEqual(t, a.PRF, other.PRF)

	noPRF, err := sw.Get(ctx, GetOptions{Challenge: []byte("fourth"), AllowCredentials: [][]byte{cred.ID}})
	require.NoError(t, err)
	assert.Nil(t, noPRF.PRF)
}

func TestSoftwareWrongPIN(t *testing.T) {
	store := platform.NewMemoryDeviceStore()
	cred := createCredential(t, store)

	sw := NewSoftware(store, pinPresence("0000"), fastArgon)
	_, err := sw.Get(context.Background(), GetOptions{Challenge: []byte("c"), AllowCredentials: [][]byte{cred.ID}})
	require.ErrorIs(t, err, ErrVerificationFailed)
}

func TestSoftwareUnknownCredential(t *testing.T) {
	sw := NewSoftware(platform.NewMemoryDeviceStore(), pinPresence("2468"), fastArgon)
	_, err := sw.Get(context.Background(), GetOptions{Challenge: []byte("c"), AllowCredentials: [][]byte{[]byte("nope")}})
	require.ErrorIs(t, err, ErrUnknownCredential)
}

func TestSoftwareRemove(t *testing.T) {
	ctx := context.Background()
	store := platform.NewMemoryDeviceStore()
	cred := createCredential(t, store)
	sw := NewSoftware(store, pinPresence("2468"), fastArgon)
	require.NoError(t, sw.Remove(ctx, cred.ID))
	_, err := sw.Get(ctx, GetOptions{Challenge: []byte("c"), AllowCredentials: [][]byte{cred.ID}})
	require.ErrorIs(t, err, ErrUnknownCredential)
}

func TestSoftwareShortPIN(t *testing.T) {
	sw := NewSoftware(platform.NewMemoryDeviceStore(), pinPresence("12"), fastArgon)
	_, err := sw.Create(context.Background(), CreateOptions{Challenge: []byte("c")})
	require.ErrorIs(t, err, ErrVerificationFailed)
}

func TestSoftwareCancelled(t *testing.T) {
	sw := NewSoftware(platform.NewMemoryDeviceStore(), func(context.Context, string) (string, error) {
		return "", errors.New("user pressed escape")
	}, fastArgon)
	_, err := sw.Create(context.Background(), CreateOptions{Challenge: []byte("c")})
	require.ErrorIs(t, err, ErrCancelled)

	sw = NewSoftware(platform.NewMemoryDeviceStore(), pinPresence(""), fastArgon)
	_, err = sw.Create(context.Background(), CreateOptions{Challenge: []byte("c")})
	require.ErrorIs(t, err, ErrCancelled)
}

func TestSoftwareTimeoutDoesNotHang(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	sw := NewSoftware(platform.NewMemoryDeviceStore(), func(context.Context, string) (string, error) {
		<-block
		return "2468", nil
	}, fastArgon)

	start := time.Now()
	_, err := sw.Create(context.Background(), CreateOptions{Challenge: []byte("c"), Timeout: 20 * time.Millisecond})
	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSoftwareCallerCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sw := NewSoftware(platform.NewMemoryDeviceStore(), func(ctx context.Context, _ string) (string, error) {
		cancel()
		<-ctx.Done()
		return "", ctx.Err()
	}, fastArgon)
	_, err := sw.Create(ctx, CreateOptions{Challenge: []byte("c")})
	require.ErrorIs(t, err, ErrCancelled)
}

func TestContextPresence(t *testing.T) {
	pin, err := ContextPresence(WithPIN(context.Background(), "2468"), "")
	require.NoError(t, err)
	assert.Equal(t, "2468", pin)

	_, err = ContextPresence(context.Background(), "")
	require.ErrorIs(t, err, ErrCancelled)
}

func TestSupported(t *testing.T) {
	assert.True(t, NewSoftware(platform.NewMemoryDeviceStore(), ContextPresence, fastArgon).Supported())
	assert.False(t, NewSoftware(platform.NewMemoryDeviceStore(), nil, fastArgon).Supported())

	_, err := NewSoftware(nil, nil, fastArgon).Get(context.Background(), GetOptions{Challenge: []byte("c")})
	require.ErrorIs(t, err, ErrUnsupported)
}
