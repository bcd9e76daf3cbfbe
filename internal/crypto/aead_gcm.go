package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
)

const (
	ivSize  = 12
	tagSize = 16
)

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plaintext under a 32-byte key with a fresh random IV.
func Seal(plaintext, key []byte) (Envelope, error) {
	aead, err := newGCM(key)
	if err != nil {
		return Envelope{}, err
	}
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return Envelope{}, err
	}
	ct := aead.Seal(nil, iv, plaintext, nil)
	return Envelope{
		Ciphertext: EncodeBytes(ct),
		IV:         EncodeBytes(iv),
		Version:    EraMEK,
	}, nil
}

// Open authenticates and decrypts env. Any tampering with the ciphertext,
// tag or IV, and any wrong key, yields ErrAuthFailed.
func Open(env Envelope, key []byte) ([]byte, error) {
	if env.Era() != EraMEK {
		return nil, ErrWrongEra
	}
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	ct, iv, err := env.decode()
	if err != nil {
		return nil, err
	}
	if len(iv) != ivSize || len(ct) < tagSize {
		return nil, ErrMalformedEnvelope
	}
	pt, err := aead.Open(nil, iv, ct, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return pt, nil
}

func SealString(plaintext string, key []byte) (Envelope, error) {
	return Seal([]byte(plaintext), key)
}

func OpenString(env Envelope, key []byte) (string, error) {
	pt, err := Open(env, key)
	if err != nil {
		return "", err
	}
	s := string(pt)
	Zero(pt)
	return s, nil
}
