package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"

	"golang.org/x/crypto/pbkdf2"
)

const (
	KDFName           = "PBKDF2"
	KDFHash           = "SHA-256"
	DefaultIterations = 310000
	SaltSize          = 16
	KeySize           = 32
)

var ErrInvalidKDFParams = errors.New("crypto: invalid kdf parameters")

type KDFParams struct {
	Iterations int
	Salt       []byte
}

// DefaultKDF returns the production parameters with a fresh salt.
func DefaultKDF() (KDFParams, error) {
	salt, err := GenerateSalt()
	if err != nil {
		return KDFParams{}, err
	}
	return KDFParams{Iterations: DefaultIterations, Salt: salt}, nil
}

// DeriveKEK stretches password into a 32-byte AES-256-GCM key with
// PBKDF2-HMAC-SHA-256. The caller owns the result and must Zero it.
func DeriveKEK(password []byte, p KDFParams) ([]byte, error) {
	if len(password) == 0 || len(p.Salt) == 0 || p.Iterations < 1 {
		return nil, ErrInvalidKDFParams
	}
	return pbkdf2.Key(password, p.Salt, p.Iterations, KeySize, sha256.New), nil
}

func GenerateSalt() ([]byte, error) {
	return randomBytes(SaltSize)
}

// GenerateKey returns 32 random bytes for a master or device key.
func GenerateKey() ([]byte, error) {
	return randomBytes(KeySize)
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}
