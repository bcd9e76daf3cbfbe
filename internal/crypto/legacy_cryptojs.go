package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"unicode/utf8"
)

// Legacy ciphertexts use the OpenSSL passphrase format:
// base64("Salted__" || salt[8] || AES-256-CBC(PKCS#7)), with key and IV
// derived by EVP_BytesToKey over MD5 with a single round.
const (
	legacyMagic    = "Salted__"
	legacySaltSize = 8
)

// LegacyEnvelope tags a stored passphrase-mode string as era 1.
func LegacyEnvelope(s string) Envelope {
	return Envelope{Ciphertext: s, Version: EraLegacy}
}

// OpenLegacy decrypts an era 1 envelope with the user's old passphrase.
// Bad padding, malformed UTF-8 or an empty result all mean the passphrase
// is wrong and yield ErrAuthFailed.
func OpenLegacy(env Envelope, passphrase []byte) ([]byte, error) {
	if env.Version != EraLegacy {
		return nil, ErrWrongEra
	}
	raw, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, ErrMalformedEnvelope
	}
	hdr := len(legacyMagic) + legacySaltSize
	if len(raw) < hdr+aes.BlockSize || !bytes.Equal(raw[:len(legacyMagic)], []byte(legacyMagic)) {
		return nil, ErrMalformedEnvelope
	}
	salt, body := raw[len(legacyMagic):hdr], raw[hdr:]
	if len(body)%aes.BlockSize != 0 {
		return nil, ErrMalformedEnvelope
	}

	key, iv := evpBytesToKey(passphrase, salt)
	defer Zero(key)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	pt := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(pt, body)

	pt, ok := pkcs7Unpad(pt)
	if !ok || len(pt) == 0 || !utf8.Valid(pt) {
		return nil, ErrAuthFailed
	}
	return pt, nil
}

// SealLegacy produces an era 1 envelope. Only fixtures and seeding tools
// write this format.
func SealLegacy(plaintext, passphrase []byte) (Envelope, error) {
	salt := make([]byte, legacySaltSize)
	if _, err := rand.Read(salt); err != nil {
		return Envelope{}, err
	}
	key, iv := evpBytesToKey(passphrase, salt)
	defer Zero(key)
	block, err := aes.NewCipher(key)
	if err != nil {
		return Envelope{}, err
	}
	padded := pkcs7Pad(plaintext)
	out := make([]byte, 0, len(legacyMagic)+legacySaltSize+len(padded))
	out = append(out, legacyMagic...)
	out = append(out, salt...)
	body := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(body, padded)
	out = append(out, body...)
	return LegacyEnvelope(base64.StdEncoding.EncodeToString(out)), nil
}

func evpBytesToKey(passphrase, salt []byte) (key, iv []byte) {
	const need = KeySize + aes.BlockSize
	var derived, prev []byte
	for len(derived) < need {
		h := md5.New()
		h.Write(prev)
		h.Write(passphrase)
		h.Write(salt)
		prev = h.Sum(nil)
		derived = append(derived, prev...)
	}
	return derived[:KeySize], derived[KeySize:need]
}

func pkcs7Pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	out := make([]byte, len(b), len(b)+n)
	copy(out, b)
	return append(out, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte) ([]byte, bool) {
	if len(b) == 0 {
		return nil, false
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, false
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, false
		}
	}
	return b[:len(b)-n], true
}
