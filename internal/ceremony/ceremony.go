// Package ceremony models the platform authenticator used for quick unlock:
// credential creation and assertion with a user-verification step, a fresh
// challenge per call and an optional PRF output bound to a salt.
package ceremony

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"time"

	"github.com/panchalshubham0608/securekey/internal/crypto"
)

// DefaultTimeout bounds every ceremony.
const DefaultTimeout = 60 * time.Second

var (
	ErrUnsupported        = errors.New("ceremony: authenticator not available")
	ErrCancelled          = errors.New("ceremony: cancelled by user")
	ErrTimeout            = errors.New("ceremony: timed out")
	ErrVerificationFailed = errors.New("ceremony: user verification failed")
	ErrUnknownCredential  = errors.New("ceremony: credential not found")
)

type UserVerification string

const (
	VerificationRequired  UserVerification = "required"
	VerificationPreferred UserVerification = "preferred"
)

type RelyingParty struct {
	ID   string
	Name string
}

type User struct {
	ID          []byte
	Name        string
	DisplayName string
}

type CreateOptions struct {
	Challenge        []byte
	RP               RelyingParty
	User             User
	UserVerification UserVerification
	Timeout          time.Duration
}

type GetOptions struct {
	Challenge        []byte
	RPID             string
	AllowCredentials [][]byte
	UserVerification UserVerification
	Timeout          time.Duration
	// PRFSalt requests a PRF output for this salt. Nil skips PRF.
	PRFSalt []byte
}

type Credential struct {
	ID        []byte
	PublicKey ed25519.PublicKey
}

type Assertion struct {
	CredentialID []byte
	Challenge    []byte
	Signature    []byte
	// PRF is a 32-byte secret that only this credential can reproduce for
	// the requested salt.
	PRF []byte
}

type Authenticator interface {
	// Supported is a cheap probe; it never starts a ceremony.
	Supported() bool
	Create(ctx context.Context, opts CreateOptions) (Credential, error)
	Get(ctx context.Context, opts GetOptions) (Assertion, error)
}

// Remover is implemented by authenticators that can discard a credential.
type Remover interface {
	Remove(ctx context.Context, credentialID []byte) error
}

// SignedData is the message an assertion signature covers.
func SignedData(rpID string, challenge []byte) []byte {
	h := sha256.Sum256([]byte(rpID))
	out := make([]byte, 0, len(h)+len(challenge))
	out = append(out, h[:]...)
	return append(out, challenge...)
}

// VerifyAssertion checks that a was produced for challenge by the holder
// of pub.
func VerifyAssertion(pub ed25519.PublicKey, rpID string, challenge []byte, a Assertion) bool {
	if len(challenge) == 0 || string(a.Challenge) != string(challenge) {
		return false
	}
	return crypto.Verify(pub, SignedData(rpID, challenge), a.Signature)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultTimeout
	}
	return context.WithTimeout(ctx, d)
}

// ctxErr maps a finished context to the ceremony error it stands for.
func ctxErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrCancelled
}
