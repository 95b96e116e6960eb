package crypto

import (
	"crypto/aes"
	"crypto/cipher"

	lerrors "lockit/internal/errors"
)

// Envelope layout: salt(16) || nonce(12) || ciphertext || tag(16).
const (
	NonceSize    = 12
	TagSize      = 16
	HeaderSize   = SaltSize + NonceSize
	EnvelopeSize = HeaderSize + TagSize // overhead added to every plaintext
)

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, lerrors.NewCryptoError("cipher", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, lerrors.NewCryptoError("cipher", err)
	}
	return aead, nil
}

// Encrypt seals data under a key derived from passphrase and a fresh salt,
// with a fresh nonce. Every call produces a different envelope.
func Encrypt(data, passphrase []byte) ([]byte, error) {
	salt, err := RandomBytes(SaltSize)
	if err != nil {
		return nil, err
	}
	nonce, err := RandomBytes(NonceSize)
	if err != nil {
		return nil, err
	}

	key, err := DeriveKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	defer SecureZero(key)

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, HeaderSize, HeaderSize+len(data)+aead.Overhead())
	copy(out, salt)
	copy(out[SaltSize:], nonce)
	return aead.Seal(out, nonce, data, nil), nil
}

// Decrypt opens an envelope produced by Encrypt. A wrong passphrase, a
// modified byte anywhere in the envelope and a truncated envelope all yield
// ErrAuthFailed and no plaintext.
func Decrypt(envelope, passphrase []byte) ([]byte, error) {
	if len(envelope) < EnvelopeSize {
		return nil, lerrors.ErrAuthFailed
	}
	salt := envelope[:SaltSize]
	nonce := envelope[SaltSize:HeaderSize]
	sealed := envelope[HeaderSize:]

	key, err := DeriveKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	defer SecureZero(key)

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, lerrors.ErrAuthFailed
	}
	return plaintext, nil
}
