package ceremony

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"

	"github.com/panchalshubham0608/securekey/internal/crypto"
	"github.com/panchalshubham0608/securekey/internal/platform"
)

// PresenceFunc asks the user to prove presence and returns the PIN they
// entered. It should return promptly once ctx is done.
type PresenceFunc func(ctx context.Context, prompt string) (string, error)

type pinKey struct{}

// WithPIN attaches a PIN for ContextPresence to return.
func WithPIN(ctx context.Context, pin string) context.Context {
	return context.WithValue(ctx, pinKey{}, pin)
}

// ContextPresence reads the PIN attached by WithPIN. A missing PIN counts
// as a cancelled ceremony.
func ContextPresence(ctx context.Context, _ string) (string, error) {
	pin, _ := ctx.Value(pinKey{}).(string)
	if pin == "" {
		return "", ErrCancelled
	}
	return pin, nil
}

type ArgonParams struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

var DefaultArgon = ArgonParams{Time: 3, Memory: 64 * 1024, Threads: 1}

const (
	credentialPrefix = "ceremony/credential/"
	minPINLength     = 4
	prfLabel         = "WebAuthn PRF\x00"
)

// Software is a device-bound authenticator kept in a DeviceStore. The
// signing seed and PRF secret are sealed under an argon2id key derived
// from the user's PIN, so a ceremony cannot complete without the PIN.
type Software struct {
	store    platform.DeviceStore
	presence PresenceFunc
	argon    ArgonParams
	now      func() time.Time
}

func NewSoftware(store platform.DeviceStore, presence PresenceFunc, argon ArgonParams) *Software {
	if argon.Time == 0 || argon.Memory == 0 || argon.Threads == 0 {
		argon = DefaultArgon
	}
	return &Software{store: store, presence: presence, argon: argon, now: time.Now}
}

type credentialRecord struct {
	ID        []byte          `json:"id"`
	PublicKey []byte          `json:"publicKey"`
	RPID      string          `json:"rpId"`
	UserID    []byte          `json:"userId"`
	PINSalt   []byte          `json:"pinSalt"`
	Sealed    crypto.Envelope `json:"sealed"`
	CreatedAt time.Time       `json:"createdAt"`
}

func (s *Software) Supported() bool {
	return s != nil && s.store != nil && s.presence != nil
}

func (s *Software) Create(ctx context.Context, opts CreateOptions) (Credential, error) {
	if !s.Supported() {
		return Credential{}, ErrUnsupported
	}
	if len(opts.Challenge) == 0 {
		return Credential{}, errors.New("ceremony: challenge is required")
	}
	ctx, cancel := withTimeout(ctx, opts.Timeout)
	defer cancel()

	pin, err := s.ask(ctx, fmt.Sprintf("Choose a PIN to enable quick unlock for %s", displayName(opts)))
	if err != nil {
		return Credential{}, err
	}
	if len(pin) < minPINLength {
		return Credential{}, fmt.Errorf("%w: PIN must be at least %d characters", ErrVerificationFailed, minPINLength)
	}

	pub, priv, err := crypto.NewSigningKey()
	if err != nil {
		return Credential{}, err
	}
	secret := make([]byte, 64)
	copy(secret, priv.Seed())
	defer crypto.Zero(secret)
	if _, err := rand.Read(secret[32:]); err != nil {
		return Credential{}, err
	}
	id := make([]byte, 32)
	salt := make([]byte, 16)
	if _, err := rand.Read(id); err != nil {
		return Credential{}, err
	}
	if _, err := rand.Read(salt); err != nil {
		return Credential{}, err
	}

	key := s.pinKey(pin, salt)
	defer crypto.Zero(key)
	sealed, err := crypto.Seal(secret, key)
	if err != nil {
		return Credential{}, err
	}
	rec := credentialRecord{
		ID:        id,
		PublicKey: pub,
		RPID:      opts.RP.ID,
		UserID:    opts.User.ID,
		PINSalt:   salt,
		Sealed:    sealed,
		CreatedAt: s.now().UTC(),
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return Credential{}, err
	}
	if err := s.store.Put(ctx, recordKey(id), b); err != nil {
		return Credential{}, err
	}
	return Credential{ID: id, PublicKey: pub}, nil
}

func (s *Software) Get(ctx context.Context, opts GetOptions) (Assertion, error) {
	if !s.Supported() {
		return Assertion{}, ErrUnsupported
	}
	if len(opts.Challenge) == 0 {
		return Assertion{}, errors.New("ceremony: challenge is required")
	}
	ctx, cancel := withTimeout(ctx, opts.Timeout)
	defer cancel()

	rec, err := s.find(ctx, opts.AllowCredentials)
	if err != nil {
		return Assertion{}, err
	}
	if opts.RPID != "" && rec.RPID != opts.RPID {
		return Assertion{}, ErrUnknownCredential
	}

	pin, err := s.ask(ctx, fmt.Sprintf("Enter your PIN to unlock %s", rec.RPID))
	if err != nil {
		return Assertion{}, err
	}
	key := s.pinKey(pin, rec.PINSalt)
	defer crypto.Zero(key)
	secret, err := crypto.Open(rec.Sealed, key)
	if err != nil {
		return Assertion{}, ErrVerificationFailed
	}
	defer crypto.Zero(secret)
	if len(secret) != 64 {
		return Assertion{}, ErrVerificationFailed
	}

	priv, err := crypto.SigningKeyFromSeed(secret[:32])
	if err != nil {
		return Assertion{}, ErrVerificationFailed
	}
	a := Assertion{
		CredentialID: rec.ID,
		Challenge:    append([]byte(nil), opts.Challenge...),
		Signature:    crypto.Sign(priv, SignedData(rec.RPID, opts.Challenge)),
	}
	if len(opts.PRFSalt) > 0 {
		mac := hmac.New(sha256.New, secret[32:])
		mac.Write([]byte(prfLabel))
		mac.Write(opts.PRFSalt)
		a.PRF = mac.Sum(nil)
	}
	return a, nil
}

func (s *Software) Remove(ctx context.Context, credentialID []byte) error {
	return s.store.Delete(ctx, recordKey(credentialID))
}

func (s *Software) find(ctx context.Context, allow [][]byte) (credentialRecord, error) {
	for _, id := range allow {
		b, err := s.store.Get(ctx, recordKey(id))
		if errors.Is(err, platform.ErrNotFound) {
			continue
		}
		if err != nil {
			return credentialRecord{}, err
		}
		var rec credentialRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			return credentialRecord{}, fmt.Errorf("ceremony: corrupt credential record: %w", err)
		}
		return rec, nil
	}
	return credentialRecord{}, ErrUnknownCredential
}

// ask runs the presence prompt and gives up when ctx ends, even if the
// prompt itself is still blocked on input.
func (s *Software) ask(ctx context.Context, prompt string) (string, error) {
	type result struct {
		pin string
		err error
	}
	ch := make(chan result, 1)
	go func() {
		pin, err := s.presence(ctx, prompt)
		ch <- result{pin, err}
	}()
	select {
	case <-ctx.Done():
		return "", ctxErr(ctx)
	case r := <-ch:
		switch {
		case r.err == nil && r.pin != "":
			return r.pin, nil
		case r.err == nil, errors.Is(r.err, ErrCancelled):
			return "", ErrCancelled
		case errors.Is(r.err, ErrTimeout), errors.Is(r.err, context.DeadlineExceeded):
			return "", ErrTimeout
		default:
			return "", fmt.Errorf("%w: %w", ErrCancelled, r.err)
		}
	}
}

func (s *Software) pinKey(pin string, salt []byte) []byte {
	return argon2.IDKey([]byte(pin), salt, s.argon.Time, s.argon.Memory, s.argon.Threads, crypto.KeySize)
}

func recordKey(id []byte) string {
	return credentialPrefix + base64.RawURLEncoding.EncodeToString(id)
}

func displayName(opts CreateOptions) string {
	if n := strings.TrimSpace(opts.User.DisplayName); n != "" {
		return n
	}
	if opts.RP.Name != "" {
		return opts.RP.Name
	}
	return "this device"
}
