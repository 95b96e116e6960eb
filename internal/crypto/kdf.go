// Package crypto implements the lockit envelope: HKDF-SHA256 key derivation
// and AES-256-GCM sealing of whole buffers.
//
// CRITICAL: the envelope layout and derivation parameters are a file format.
// Changing any constant here makes existing files undecryptable.
package crypto

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"io"

	lerrors "lockit/internal/errors"

	"golang.org/x/crypto/hkdf"
)

const (
	SaltSize = 16
	KeySize  = 32
)

// RandomBytes returns n bytes from crypto/rand.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, lerrors.NewCryptoError("rand", err)
	}

	// An all-zero result from a CSPRNG means the source is broken, not unlucky.
	if n >= 8 && bytes.Equal(b, make([]byte, n)) {
		return nil, lerrors.NewCryptoError("rand", lerrors.ErrRandFailure)
	}

	return b, nil
}

// DeriveKey turns a passphrase and salt into a 32-byte key with
// HKDF-Extract(salt, passphrase) followed by HKDF-Expand with empty info.
//
// This is derivation, not stretching: there is no work factor, so resistance
// to offline guessing rests entirely on passphrase entropy.
func DeriveKey(passphrase, salt []byte) ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, passphrase, salt, nil), key); err != nil {
		return nil, lerrors.NewCryptoError("hkdf", err)
	}
	return key, nil
}
