// Package vaulterr defines the error kinds surfaced by vault operations.
//
// Every error returned across a service boundary is a *Error whose Kind
// identifies the failure class. Callers match with errors.Is against the
// kind sentinels:
//
//	if errors.Is(err, vaulterr.ErrCrypto) { ... }
//
// Error() is safe to show to a user. It carries the operation and a fixed
// message, never plaintext, ciphertext or key material. The underlying
// cause is reachable through errors.Unwrap for logging.
package vaulterr

import "errors"

type Kind uint8

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindCrypto
	KindDuplicate
	KindPlatformAuth
	KindStore
)

var (
	// ErrValidation marks missing or malformed input.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a vault, item or metadata record that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrCrypto marks an authentication failure, a wrong password or corrupt data.
	ErrCrypto = errors.New("crypto error")
	// ErrDuplicate marks an (account, username) pair that already exists.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrPlatformAuth marks a cancelled, timed out or unsupported device ceremony.
	ErrPlatformAuth = errors.New("platform authentication error")
	// ErrStore marks a persistence failure.
	ErrStore = errors.New("store error")
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindCrypto:
		return "crypto"
	case KindDuplicate:
		return "duplicate"
	case KindPlatformAuth:
		return "platform_auth"
	case KindStore:
		return "store"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindNotFound:
		return ErrNotFound
	case KindCrypto:
		return ErrCrypto
	case KindDuplicate:
		return ErrDuplicate
	case KindPlatformAuth:
		return ErrPlatformAuth
	case KindStore:
		return ErrStore
	default:
		return nil
	}
}

type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Msg
	}
	return e.Op + ": " + e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

func Validation(op, msg string) error {
	return &Error{Kind: KindValidation, Op: op, Msg: msg}
}

func NotFound(op, msg string) error {
	return &Error{Kind: KindNotFound, Op: op, Msg: msg}
}

func Crypto(op, msg string, err error) error {
	return &Error{Kind: KindCrypto, Op: op, Msg: msg, Err: err}
}

func Duplicate(op, msg string) error {
	return &Error{Kind: KindDuplicate, Op: op, Msg: msg}
}

func PlatformAuth(op, msg string, err error) error {
	return &Error{Kind: KindPlatformAuth, Op: op, Msg: msg, Err: err}
}

func Store(op string, err error) error {
	return &Error{Kind: KindStore, Op: op, Msg: "storage unavailable", Err: err}
}

// KindOf returns the kind of err, or 0 when err is not a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
