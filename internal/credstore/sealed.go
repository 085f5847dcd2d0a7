package credstore

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	saltSize  = 16
	nonceSize = 24
	keySize   = 32
)

var sealedMagic = []byte("SUI1")

// SealedBackend encrypts values before handing them to another backend.
//
// Layout: magic | salt | nonce | secretbox(value). The key is derived from
// the passphrase with Argon2id using the per-value salt.
type SealedBackend struct {
	inner      Backend
	passphrase []byte
}

// NewSealedBackend wraps inner. The passphrase must not be empty.
func NewSealedBackend(inner Backend, passphrase string) (*SealedBackend, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("sealed backend requires a passphrase")
	}
	return &SealedBackend{inner: inner, passphrase: []byte(passphrase)}, nil
}

// Name implements Backend.
func (s *SealedBackend) Name() string { return s.inner.Name() + "+sealed" }

// Load implements Backend. Values that fail to open yield ErrCorrupt.
func (s *SealedBackend) Load(ctx context.Context, key string) ([]byte, error) {
	sealed, err := s.inner.Load(ctx, key)
	if err != nil {
		return nil, err
	}

	header := len(sealedMagic) + saltSize + nonceSize
	if len(sealed) < header+secretbox.Overhead || !bytes.HasPrefix(sealed, sealedMagic) {
		return nil, fmt.Errorf("%w: not a sealed value", ErrCorrupt)
	}

	salt := sealed[len(sealedMagic) : len(sealedMagic)+saltSize]
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[len(sealedMagic)+saltSize:header])

	key32 := s.deriveKey(salt)
	plain, ok := secretbox.Open(nil, sealed[header:], &nonce, &key32)
	if !ok {
		return nil, fmt.Errorf("%w: authentication failed", ErrCorrupt)
	}
	return plain, nil
}

// Save implements Backend.
func (s *SealedBackend) Save(ctx context.Context, key string, value []byte) error {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}

	key32 := s.deriveKey(salt)
	out := make([]byte, 0, len(sealedMagic)+saltSize+nonceSize+len(value)+secretbox.Overhead)
	out = append(out, sealedMagic...)
	out = append(out, salt...)
	out = append(out, nonce[:]...)
	out = secretbox.Seal(out, value, &nonce, &key32)

	return s.inner.Save(ctx, key, out)
}

// Delete implements Backend.
func (s *SealedBackend) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

// Close implements Backend.
func (s *SealedBackend) Close() error {
	return s.inner.Close()
}

func (s *SealedBackend) deriveKey(salt []byte) [keySize]byte {
	var key [keySize]byte
	copy(key[:], argon2.IDKey(s.passphrase, salt, 2, 19*1024, 1, keySize))
	return key
}
