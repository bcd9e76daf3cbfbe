package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestSecureKeyUseAndDestroy(t *testing.T) {
	src := randBytes(t, KeySize)
	want := append([]byte(nil), src...)

	k, err := NewSecureKey(src)
	if err != nil {
		t.Fatalf("new secure key: %v", err)
	}
	if !bytes.Equal(src, make([]byte, KeySize)) {
		t.Fatal("source slice not wiped")
	}
	err = k.Use(func(key []byte) error {
		if !bytes.Equal(key, want) {
			t.Fatal("locked buffer holds a different key")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("use: %v", err)
	}

	buf := k.buf
	k.Destroy()
	if buf.IsAlive() {
		t.Fatal("locked buffer still alive after destroy")
	}
	k.Destroy()
	if !k.Destroyed() {
		t.Fatal("expected destroyed")
	}
	if err := k.Use(func([]byte) error { return nil }); !errors.Is(err, ErrKeyDestroyed) {
		t.Fatalf("expected ErrKeyDestroyed, got %v", err)
	}
}

func TestSecureKeyRejectsShortKey(t *testing.T) {
	if _, err := NewSecureKey(randBytes(t, 16)); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestSigningKeyFromSeed(t *testing.T) {
	pub, priv, err := NewSigningKey()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	again, err := SigningKeyFromSeed(priv.Seed())
	if err != nil {
		t.Fatalf("from seed: %v", err)
	}
	sig := Sign(again, []byte("challenge"))
	if !Verify(pub, []byte("challenge"), sig) {
		t.Fatal("signature from rebuilt key did not verify")
	}
	if Verify(pub[:10], []byte("challenge"), sig) {
		t.Fatal("short public key verified")
	}
}
