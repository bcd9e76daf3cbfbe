package vault

import (
	"errors"
	"strings"

	"github.com/panchalshubham0608/securekey/internal/crypto"
	"github.com/panchalshubham0608/securekey/internal/vaulterr"
)

// Session is an unlocked vault: the owner's uid and the MEK, held in
// locked memory. Sessions are created by an unlock and destroyed by Lock.
// Every vault operation takes the session explicitly.
type Session struct {
	uid string
	key *crypto.SecureKey
}

// NewSession takes ownership of mek; the slice is wiped before returning.
func NewSession(uid string, mek []byte) (*Session, error) {
	const op = "new session"
	if strings.TrimSpace(uid) == "" {
		crypto.Zero(mek)
		return nil, vaulterr.Validation(op, "uid is required")
	}
	key, err := crypto.NewSecureKey(mek)
	if err != nil {
		return nil, vaulterr.Validation(op, "master key must be 32 bytes")
	}
	return &Session{uid: uid, key: key}, nil
}

func (s *Session) UID() string {
	if s == nil {
		return ""
	}
	return s.uid
}

// Use runs fn with the plaintext MEK. fn must not retain the slice.
func (s *Session) Use(fn func(mek []byte) error) error {
	if s == nil || s.key == nil {
		return errLocked
	}
	err := s.key.Use(fn)
	if errors.Is(err, crypto.ErrKeyDestroyed) {
		return errLocked
	}
	return err
}

// Lock destroys the MEK. The session cannot be reused.
func (s *Session) Lock() {
	if s != nil && s.key != nil {
		s.key.Destroy()
	}
}

func (s *Session) Locked() bool {
	return s == nil || s.key == nil || s.key.Destroyed()
}

var errLocked = vaulterr.Validation("session", "vault is locked")

func checkSession(op string, s *Session) error {
	if s.Locked() {
		return vaulterr.Validation(op, "vault is locked")
	}
	return nil
}
