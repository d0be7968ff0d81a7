// Package crypto implements the authenticated-encryption and key-wrapping
// primitives used by DeltaDatabase: AES-256-GCM sealing of entity
// plaintext with a per-write nonce, and RSA-OAEP wrapping of the master
// symmetric key for transport to a subscribing Processing Worker.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

const (
	// KeySize is the master key length in bytes (AES-256).
	KeySize = 32
	// NonceSize is the AES-GCM nonce length in bytes.
	NonceSize = 12
	// TagSize is the AES-GCM authentication tag length in bytes.
	TagSize = 16
)

// ErrAuthFailed is returned by Open when the authentication tag does not
// match. It never distinguishes *why* (ciphertext vs nonce vs tag
// mismatch) per spec §4.5, so callers must map it to a single Internal
// error kind rather than leaking which check failed.
var ErrAuthFailed = fmt.Errorf("authentication failed")

// Sealer holds a master symmetric key and a stable identifier for it. It
// is the single holder of key material in a Processing Worker process;
// the key is never logged and never written to disk in the clear.
type Sealer struct {
	keyID string
	key   []byte
}

// NewSealer constructs a Sealer from a 32-byte master key.
func NewSealer(keyID string, key []byte) (*Sealer, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", KeySize, len(key))
	}
	cp := make([]byte, KeySize)
	copy(cp, key)
	return &Sealer{keyID: keyID, key: cp}, nil
}

// KeyID returns the stable identifier for this Sealer's master key.
func (s *Sealer) KeyID() string { return s.keyID }

// Sealed is the detached-nonce/tag output of a Seal call. Ciphertext,
// Nonce and Tag are each stored separately in entity metadata per spec
// §3 (the blob file holds only Ciphertext).
type Sealed struct {
	Ciphertext []byte
	Nonce      []byte
	Tag        []byte
}

// Seal draws a fresh CSPRNG nonce and AES-256-GCM encrypts plaintext with
// empty AAD, returning the ciphertext with the trailing tag split off.
func (s *Sealer) Seal(plaintext []byte) (Sealed, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return Sealed{}, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithTagSize(block, TagSize)
	if err != nil {
		return Sealed{}, fmt.Errorf("init gcm: %w", err)
	}
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return Sealed{}, fmt.Errorf("draw nonce: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	ct := sealed[:len(sealed)-TagSize]
	tag := sealed[len(sealed)-TagSize:]
	return Sealed{Ciphertext: ct, Nonce: nonce, Tag: tag}, nil
}

// Open verifies tag against ciphertext under nonce and returns the
// recovered plaintext, or ErrAuthFailed on any mismatch.
func (s *Sealer) Open(ciphertext, nonce, tag []byte) ([]byte, error) {
	if len(nonce) != NonceSize || len(tag) != TagSize {
		return nil, ErrAuthFailed
	}
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithTagSize(block, TagSize)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	combined := make([]byte, 0, len(ciphertext)+len(tag))
	combined = append(combined, ciphertext...)
	combined = append(combined, tag...)
	plaintext, err := gcm.Open(nil, nonce, combined, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

// WrapForWorker RSA-OAEP(SHA-256) encrypts the master key to pubPEM, an
// X.509/PKIX PEM-encoded RSA public key supplied by a subscribing worker.
func (s *Sealer) WrapForWorker(pubPEM []byte) ([]byte, error) {
	pub, err := ParsePublicKey(pubPEM)
	if err != nil {
		return nil, err
	}
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, s.key, nil)
	if err != nil {
		return nil, fmt.Errorf("wrap master key: %w", err)
	}
	return wrapped, nil
}

// ParsePublicKey decodes a PEM-encoded PKIX RSA public key, rejecting
// malformed or non-RSA input.
func ParsePublicKey(pubPEM []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pubPEM)
	if block == nil {
		return nil, fmt.Errorf("malformed public key PEM")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not RSA")
	}
	if rsaKey.N.BitLen() < 2048 {
		return nil, fmt.Errorf("public key too small")
	}
	return rsaKey, nil
}

// Unwrap RSA-OAEP(SHA-256) decrypts a wrapped master key with the
// subscribing worker's own private key. Used only on the Processing
// Worker side, immediately after Subscribe returns.
func Unwrap(priv *rsa.PrivateKey, wrapped []byte) ([]byte, error) {
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrapped, nil)
	if err != nil {
		return nil, fmt.Errorf("unwrap master key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("unwrapped key has wrong size")
	}
	return key, nil
}
