// Package quickunlock enables password-free vault unlock on one device.
//
// Three device-local artifacts make up an enrollment: the credential
// record, the device key record, and the MEK wrapped under the device key.
// If any one is missing the device is treated as not enrolled.
package quickunlock

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/panchalshubham0608/securekey/internal/ceremony"
	"github.com/panchalshubham0608/securekey/internal/crypto"
	"github.com/panchalshubham0608/securekey/internal/logging"
	"github.com/panchalshubham0608/securekey/internal/platform"
	"github.com/panchalshubham0608/securekey/internal/vault"
	"github.com/panchalshubham0608/securekey/internal/vaulterr"
)

const (
	keyCredential = "quickunlock/credential_id"
	keyDeviceKey  = "quickunlock/device_key"
	keyWrappedMEK = "quickunlock/encrypted_mek"

	wrapInfo = "securekey/quick-unlock/v1"
)

var errBadAssertion = errors.New("assertion signature did not verify")

type Identity struct {
	UID   string
	Email string
}

type Config struct {
	Mode    Mode
	Timeout time.Duration
	RPID    string
	RPName  string
	Logger  *log.Logger
	// OnTransition observes every state change.
	OnTransition func(from, to State)
}

func (c *Config) setDefaults() {
	if c.Mode == "" {
		c.Mode = ModeBound
	}
	if c.Timeout <= 0 {
		c.Timeout = ceremony.DefaultTimeout
	}
	if c.RPID == "" {
		c.RPID = "securekey"
	}
	if c.RPName == "" {
		c.RPName = "SecureKey"
	}
	c.Logger = logging.OrNop(c.Logger)
}

type credentialRecord struct {
	ID        []byte `json:"id"`
	PublicKey []byte `json:"publicKey"`
	UID       string `json:"uid"`
	RPID      string `json:"rpId"`
}

type deviceKeyRecord struct {
	Mode    Mode             `json:"mode"`
	Key     []byte           `json:"key,omitempty"`
	PRFSalt []byte           `json:"prfSalt,omitempty"`
	Wrapped *crypto.Envelope `json:"wrapped,omitempty"`
}

// complete reports whether the record carries key material for its mode.
func (r deviceKeyRecord) complete() bool {
	switch r.Mode {
	case ModeRaw:
		return len(r.Key) > 0
	case ModeBound:
		return r.Wrapped != nil && len(r.PRFSalt) > 0
	default:
		return false
	}
}

type Service struct {
	mu    sync.Mutex
	store platform.DeviceStore
	auth  ceremony.Authenticator
	cfg   Config
	state State
}

// New reads the device store once to recover the enrollment state.
func New(ctx context.Context, store platform.DeviceStore, auth ceremony.Authenticator, cfg Config) *Service {
	cfg.setDefaults()
	s := &Service{store: store, auth: auth, cfg: cfg}
	if _, _, _, ok, err := s.load(ctx); err == nil && ok {
		s.state = Enrolled
	}
	return s
}

func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsSupported probes the authenticator without starting a ceremony.
func (s *Service) IsSupported() bool {
	return s.auth != nil && s.auth.Supported()
}

// IsEnabled reports whether uid is enrolled on this device.
func (s *Service) IsEnabled(ctx context.Context, uid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, _, _, ok, err := s.load(ctx)
	return err == nil && ok && cred.UID == uid
}

// EnrolledUID returns the uid of the device's enrollment, if any.
func (s *Service) EnrolledUID(ctx context.Context) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, _, _, ok, err := s.load(ctx)
	if err != nil || !ok {
		return "", false
	}
	return cred.UID, true
}

// Enable enrolls this device for id using the MEK held by sess. The user
// completes one ceremony (two on first enrollment).
func (s *Service) Enable(ctx context.Context, id Identity, sess *vault.Session) error {
	const op = "enable quick unlock"
	if sess.Locked() {
		return vaulterr.Validation(op, "vault is locked")
	}
	if id.UID == "" || sess.UID() != id.UID {
		return vaulterr.Validation(op, "session does not belong to this user")
	}
	if !s.IsSupported() {
		return vaulterr.PlatformAuth(op, "quick unlock is not supported on this device", ceremony.ErrUnsupported)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.transition(Enrolling)
	if err := s.enable(ctx, op, id, sess); err != nil {
		s.transition(s.settledState(ctx))
		s.cfg.Logger.Warn("quick unlock enrollment failed", "uid", id.UID, "err", err)
		return err
	}
	s.transition(Enrolled)
	s.cfg.Logger.Info("quick unlock enabled", "uid", id.UID, "mode", s.cfg.Mode)
	return nil
}

func (s *Service) enable(ctx context.Context, op string, id Identity, sess *vault.Session) error {
	cred, err := s.loadCredential(ctx)
	if err != nil && !errors.Is(err, platform.ErrNotFound) {
		return vaulterr.Store(op, err)
	}
	if err != nil || cred.UID != id.UID {
		if err == nil {
			// Another user's enrollment is replaced, not merged.
			if err := s.clear(ctx, cred); err != nil {
				return vaulterr.Store(op, err)
			}
		}
		if cred, err = s.createCredential(ctx, op, id); err != nil {
			return err
		}
	}

	var prfSalt []byte
	if s.cfg.Mode == ModeBound {
		if prfSalt, err = random(32); err != nil {
			return vaulterr.Crypto(op, "unable to generate salt", err)
		}
	}
	a, err := s.assert(ctx, op, cred, prfSalt)
	if err != nil {
		return err
	}

	deviceKey, err := crypto.GenerateKey()
	if err != nil {
		return vaulterr.Crypto(op, "unable to generate device key", err)
	}
	defer crypto.Zero(deviceKey)

	rec := deviceKeyRecord{Mode: s.cfg.Mode}
	switch s.cfg.Mode {
	case ModeBound:
		if len(a.PRF) == 0 {
			return vaulterr.PlatformAuth(op, "authenticator does not provide a PRF output", ceremony.ErrUnsupported)
		}
		wrapKey, err := crypto.DeriveWrappingKey(a.PRF, prfSalt, wrapInfo)
		if err != nil {
			return vaulterr.Crypto(op, "unable to derive wrapping key", err)
		}
		wrapped, err := crypto.Seal(deviceKey, wrapKey)
		crypto.Zero(wrapKey)
		if err != nil {
			return vaulterr.Crypto(op, "unable to wrap device key", err)
		}
		rec.PRFSalt = prfSalt
		rec.Wrapped = &wrapped
	case ModeRaw:
		rec.Key = append([]byte(nil), deviceKey...)
	default:
		return vaulterr.Validation(op, "unknown quick unlock mode")
	}

	var wrappedMEK crypto.Envelope
	err = sess.Use(func(mek []byte) error {
		var err error
		wrappedMEK, err = crypto.Seal(mek, deviceKey)
		return err
	})
	if err != nil {
		return vaulterr.Crypto(op, "unable to wrap master key", err)
	}

	if err := s.putJSON(ctx, keyDeviceKey, rec); err != nil {
		s.discard(ctx)
		return vaulterr.Store(op, err)
	}
	if err := s.putJSON(ctx, keyWrappedMEK, wrappedMEK); err != nil {
		s.discard(ctx)
		return vaulterr.Store(op, err)
	}
	return nil
}

func (s *Service) createCredential(ctx context.Context, op string, id Identity) (credentialRecord, error) {
	challenge, err := random(32)
	if err != nil {
		return credentialRecord{}, vaulterr.Crypto(op, "unable to generate challenge", err)
	}
	cctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	c, err := s.auth.Create(cctx, ceremony.CreateOptions{
		Challenge:        challenge,
		RP:               ceremony.RelyingParty{ID: s.cfg.RPID, Name: s.cfg.RPName},
		User:             ceremony.User{ID: []byte(id.UID), Name: id.Email, DisplayName: id.Email},
		UserVerification: ceremony.VerificationRequired,
		Timeout:          s.cfg.Timeout,
	})
	if err != nil {
		return credentialRecord{}, ceremonyError(op, err)
	}
	cred := credentialRecord{ID: c.ID, PublicKey: c.PublicKey, UID: id.UID, RPID: s.cfg.RPID}
	if err := s.putJSON(ctx, keyCredential, cred); err != nil {
		return credentialRecord{}, vaulterr.Store(op, err)
	}
	return cred, nil
}

// assert runs a get ceremony against a fresh challenge and checks the
// signature with the enrolled public key.
func (s *Service) assert(ctx context.Context, op string, cred credentialRecord, prfSalt []byte) (ceremony.Assertion, error) {
	challenge, err := random(32)
	if err != nil {
		return ceremony.Assertion{}, vaulterr.Crypto(op, "unable to generate challenge", err)
	}
	cctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	a, err := s.auth.Get(cctx, ceremony.GetOptions{
		Challenge:        challenge,
		RPID:             cred.RPID,
		AllowCredentials: [][]byte{cred.ID},
		UserVerification: ceremony.VerificationRequired,
		Timeout:          s.cfg.Timeout,
		PRFSalt:          prfSalt,
	})
	if err != nil {
		return ceremony.Assertion{}, ceremonyError(op, err)
	}
	if !ceremony.VerifyAssertion(cred.PublicKey, cred.RPID, challenge, a) {
		return ceremony.Assertion{}, vaulterr.Crypto(op, "device verification failed", errBadAssertion)
	}
	return a, nil
}

// Unlock recovers the MEK for uid after a successful ceremony. It returns
// ok=false, with no error, when this device is not enrolled for uid.
func (s *Service) Unlock(ctx context.Context, uid string) (sess *vault.Session, ok bool, err error) {
	const op = "quick unlock"
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, dk, wrappedMEK, ok, err := s.load(ctx)
	if err != nil {
		return nil, false, vaulterr.Store(op, err)
	}
	if !ok {
		s.state = NotEnrolled
		return nil, false, nil
	}
	if cred.UID != uid {
		return nil, false, nil
	}

	s.transition(Unlocking)
	sess, err = s.unlock(ctx, op, cred, dk, wrappedMEK)
	if err != nil {
		s.transition(Failed)
		s.transition(Enrolled)
		s.cfg.Logger.Warn("quick unlock failed", "uid", uid, "err", err)
		return nil, true, err
	}
	s.transition(Unlocked)
	s.transition(Enrolled)
	s.cfg.Logger.Info("quick unlock succeeded", "uid", uid)
	return sess, true, nil
}

func (s *Service) unlock(ctx context.Context, op string, cred credentialRecord, dk deviceKeyRecord, wrappedMEK crypto.Envelope) (*vault.Session, error) {
	a, err := s.assert(ctx, op, cred, dk.PRFSalt)
	if err != nil {
		return nil, err
	}

	var deviceKey []byte
	switch dk.Mode {
	case ModeBound:
		if dk.Wrapped == nil || len(a.PRF) == 0 {
			return nil, vaulterr.Crypto(op, "unable to unlock vault", crypto.ErrMalformedEnvelope)
		}
		wrapKey, err := crypto.DeriveWrappingKey(a.PRF, dk.PRFSalt, wrapInfo)
		if err != nil {
			return nil, vaulterr.Crypto(op, "unable to unlock vault", err)
		}
		deviceKey, err = crypto.Open(*dk.Wrapped, wrapKey)
		crypto.Zero(wrapKey)
		if err != nil {
			return nil, vaulterr.Crypto(op, "unable to unlock vault", err)
		}
	case ModeRaw:
		deviceKey = append([]byte(nil), dk.Key...)
	default:
		return nil, vaulterr.Crypto(op, "unable to unlock vault", crypto.ErrMalformedEnvelope)
	}
	defer crypto.Zero(deviceKey)

	mek, err := crypto.Open(wrappedMEK, deviceKey)
	if err != nil {
		return nil, vaulterr.Crypto(op, "unable to unlock vault", err)
	}
	return vault.NewSession(cred.UID, mek)
}

// Disable removes every quick-unlock artifact from this device.
func (s *Service) Disable(ctx context.Context) error {
	const op = "disable quick unlock"
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, err := s.loadCredential(ctx)
	if err != nil && !errors.Is(err, platform.ErrNotFound) {
		return vaulterr.Store(op, err)
	}
	if err := s.clear(ctx, cred); err != nil {
		return vaulterr.Store(op, err)
	}
	s.transition(NotEnrolled)
	s.cfg.Logger.Info("quick unlock disabled", "uid", cred.UID)
	return nil
}

func (s *Service) clear(ctx context.Context, cred credentialRecord) error {
	for _, k := range []string{keyWrappedMEK, keyDeviceKey, keyCredential} {
		if err := s.store.Delete(ctx, k); err != nil {
			return err
		}
	}
	if r, ok := s.auth.(ceremony.Remover); ok && len(cred.ID) > 0 {
		if err := r.Remove(ctx, cred.ID); err != nil {
			s.cfg.Logger.Warn("unable to remove device credential", "err", err)
		}
	}
	return nil
}

// discard drops a half-written enrollment so a stale wrapped MEK never
// pairs with a new device key.
func (s *Service) discard(ctx context.Context) {
	_ = s.store.Delete(ctx, keyWrappedMEK)
	_ = s.store.Delete(ctx, keyDeviceKey)
}

func (s *Service) load(ctx context.Context) (cred credentialRecord, dk deviceKeyRecord, wrapped crypto.Envelope, ok bool, err error) {
	cred, err = s.loadCredential(ctx)
	if errors.Is(err, platform.ErrNotFound) {
		return cred, dk, wrapped, false, nil
	}
	if err != nil {
		return cred, dk, wrapped, false, err
	}
	found, err := s.getJSON(ctx, keyDeviceKey, &dk)
	if err != nil || !found || !dk.complete() {
		return cred, dk, wrapped, false, err
	}
	found, err = s.getJSON(ctx, keyWrappedMEK, &wrapped)
	if err != nil || !found {
		return cred, dk, wrapped, false, err
	}
	return cred, dk, wrapped, true, nil
}

func (s *Service) loadCredential(ctx context.Context) (credentialRecord, error) {
	var cred credentialRecord
	found, err := s.getJSON(ctx, keyCredential, &cred)
	if err != nil {
		return credentialRecord{}, err
	}
	if !found || len(cred.ID) == 0 {
		return credentialRecord{}, platform.ErrNotFound
	}
	return cred, nil
}

// getJSON treats a corrupt record the same as a missing one.
func (s *Service) getJSON(ctx context.Context, key string, v any) (bool, error) {
	b, err := s.store.Get(ctx, key)
	if errors.Is(err, platform.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		s.cfg.Logger.Warn("ignoring corrupt quick unlock record", "key", key)
		return false, nil
	}
	return true, nil
}

func (s *Service) putJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.store.Put(ctx, key, b)
}

func (s *Service) settledState(ctx context.Context) State {
	if _, _, _, ok, err := s.load(ctx); err == nil && ok {
		return Enrolled
	}
	return NotEnrolled
}

func (s *Service) transition(to State) {
	from := s.state
	s.state = to
	s.cfg.Logger.Debug("quick unlock state", "from", from, "to", to)
	if s.cfg.OnTransition != nil {
		s.cfg.OnTransition(from, to)
	}
}

func ceremonyError(op string, err error) error {
	switch {
	case errors.Is(err, ceremony.ErrCancelled):
		return vaulterr.PlatformAuth(op, "verification was cancelled", err)
	case errors.Is(err, ceremony.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return vaulterr.PlatformAuth(op, "verification timed out", err)
	case errors.Is(err, ceremony.ErrUnsupported):
		return vaulterr.PlatformAuth(op, "quick unlock is not supported on this device", err)
	case errors.Is(err, ceremony.ErrUnknownCredential):
		return vaulterr.PlatformAuth(op, "device credential not found", err)
	default:
		return vaulterr.PlatformAuth(op, "verification failed", err)
	}
}

func random(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}
