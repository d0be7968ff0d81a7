package crypto

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return key
}

func TestSealOpenRoundtrip(t *testing.T) {
	s, err := NewSealer("k1", testKey(t))
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	plaintext := []byte(`{"chat":[{"type":"assistant","text":"hi"}]}`)

	sealed, err := s.Seal(plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(sealed.Ciphertext, plaintext) {
		t.Fatal("ciphertext must not contain plaintext bytes")
	}
	if len(sealed.Nonce) != NonceSize {
		t.Fatalf("nonce size = %d, want %d", len(sealed.Nonce), NonceSize)
	}
	if len(sealed.Tag) != TagSize {
		t.Fatalf("tag size = %d, want %d", len(sealed.Tag), TagSize)
	}

	recovered, err := s.Open(sealed.Ciphertext, sealed.Nonce, sealed.Tag)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(recovered, plaintext) {
		t.Fatalf("recovered = %q, want %q", recovered, plaintext)
	}
}

func TestOpenTamperDetection(t *testing.T) {
	s, err := NewSealer("k1", testKey(t))
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	sealed, err := s.Seal([]byte("payload"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	tampered := make([]byte, len(sealed.Ciphertext))
	copy(tampered, sealed.Ciphertext)
	tampered[0] ^= 0xFF

	if _, err := s.Open(tampered, sealed.Nonce, sealed.Tag); err != ErrAuthFailed {
		t.Fatalf("Open(tampered ciphertext) = %v, want ErrAuthFailed", err)
	}

	badTag := make([]byte, len(sealed.Tag))
	copy(badTag, sealed.Tag)
	badTag[0] ^= 0xFF
	if _, err := s.Open(sealed.Ciphertext, sealed.Nonce, badTag); err != ErrAuthFailed {
		t.Fatalf("Open(tampered tag) = %v, want ErrAuthFailed", err)
	}
}

func TestNonceUniqueness(t *testing.T) {
	s, err := NewSealer("k1", testKey(t))
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		sealed, err := s.Seal([]byte("payload"))
		if err != nil {
			t.Fatalf("Seal: %v", err)
		}
		k := string(sealed.Nonce)
		if seen[k] {
			t.Fatal("duplicate nonce observed across 10 successive seals")
		}
		seen[k] = true
	}
}

func TestWrapUnwrapRoundtrip(t *testing.T) {
	s, err := NewSealer("k1", testKey(t))
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatalf("marshal pub key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	wrapped, err := s.WrapForWorker(pubPEM)
	if err != nil {
		t.Fatalf("WrapForWorker: %v", err)
	}
	recovered, err := Unwrap(priv, wrapped)
	if err != nil {
		t.Fatalf("Unwrap: %v", err)
	}
	if !bytes.Equal(recovered, s.key) {
		t.Fatal("unwrapped key does not match original master key")
	}
}

func TestWrapRejectsSmallKey(t *testing.T) {
	s, err := NewSealer("k1", testKey(t))
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatalf("marshal pub key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	if _, err := s.WrapForWorker(pubPEM); err == nil {
		t.Fatal("expected error wrapping to a too-small public key")
	}
}
