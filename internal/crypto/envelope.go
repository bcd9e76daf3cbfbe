package crypto

import (
	"encoding/base64"
	"errors"
)

// Era identifies the encryption scheme that produced an Envelope.
type Era int

const (
	// EraLegacy is the passphrase-mode AES-CBC scheme used before the
	// master key existed. Only the migration path may open it.
	EraLegacy Era = 1
	// EraMEK is AES-256-GCM under the master encryption key.
	EraMEK Era = 2
)

var (
	ErrAuthFailed        = errors.New("crypto: message authentication failed")
	ErrInvalidKey        = errors.New("crypto: invalid key length")
	ErrMalformedEnvelope = errors.New("crypto: malformed envelope")
	ErrWrongEra          = errors.New("crypto: envelope belongs to another era")
)

// Envelope is the persisted form of one ciphertext: base64 ciphertext
// (GCM tag appended), base64 IV and the era tag.
type Envelope struct {
	Ciphertext string `json:"ciphertext" bson:"ciphertext"`
	IV         string `json:"iv,omitempty" bson:"iv,omitempty"`
	Version    Era    `json:"version,omitempty" bson:"version,omitempty"`
}

// Era returns the envelope's era. Records written without a version tag
// belong to the current era.
func (e Envelope) Era() Era {
	if e.Version == 0 {
		return EraMEK
	}
	return e.Version
}

func (e Envelope) IsZero() bool {
	return e.Ciphertext == "" && e.IV == ""
}

func (e Envelope) decode() (ct, iv []byte, err error) {
	ct, err = base64.StdEncoding.DecodeString(e.Ciphertext)
	if err != nil {
		return nil, nil, ErrMalformedEnvelope
	}
	iv, err = base64.StdEncoding.DecodeString(e.IV)
	if err != nil {
		return nil, nil, ErrMalformedEnvelope
	}
	return ct, iv, nil
}

func EncodeBytes(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func DecodeBytes(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrMalformedEnvelope
	}
	return b, nil
}
