package crypto

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

var ErrKeyDestroyed = errors.New("crypto: key destroyed")

// SecureKey keeps a 32-byte key in a memguard locked buffer: guard pages
// around it, never swapped, wiped on Destroy.
type SecureKey struct {
	mu  sync.RWMutex
	buf *memguard.LockedBuffer
}

// NewSecureKey moves key into locked memory and wipes the source slice.
func NewSecureKey(key []byte) (*SecureKey, error) {
	if len(key) != KeySize {
		Zero(key)
		return nil, ErrInvalidKey
	}
	return &SecureKey{buf: memguard.NewBufferFromBytes(key)}, nil
}

// Use hands fn the key. The slice must not outlive the call.
func (k *SecureKey) Use(fn func(key []byte) error) error {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.buf == nil || !k.buf.IsAlive() {
		return ErrKeyDestroyed
	}
	return fn(k.buf.Bytes())
}

// Destroy wipes the key and releases its memory. It waits for running Use
// calls.
func (k *SecureKey) Destroy() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.buf != nil {
		k.buf.Destroy()
		k.buf = nil
	}
}

func (k *SecureKey) Destroyed() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.buf == nil
}
