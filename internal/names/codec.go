// Package names obfuscates single path components. A name is sealed with the
// same envelope as file contents and hex-encoded so the result is a valid
// filename on every platform. Sealing is randomized, so equal names encrypt
// to unrelated strings.
package names

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"lockit/internal/crypto"
	lerrors "lockit/internal/errors"
)

// Encrypt seals name under passphrase and returns lowercase hex.
// name must be a single path component.
func Encrypt(name string, passphrase []byte) (string, error) {
	if err := checkComponent(name); err != nil {
		return "", err
	}
	sealed, err := crypto.Encrypt([]byte(name), passphrase)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Invalid hex or a plaintext that is not UTF-8
// yields ErrCorruptName; a wrong passphrase yields ErrAuthFailed.
func Decrypt(encoded string, passphrase []byte) (string, error) {
	sealed, err := hex.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", lerrors.ErrCorruptName, err)
	}
	plain, err := crypto.Decrypt(sealed, passphrase)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(plain) {
		return "", fmt.Errorf("%w: not valid UTF-8", lerrors.ErrCorruptName)
	}
	name := string(plain)
	if err := checkComponent(name); err != nil {
		return "", fmt.Errorf("%w: %v", lerrors.ErrCorruptName, err)
	}
	return name, nil
}

func checkComponent(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return lerrors.NewValidationError("name", fmt.Sprintf("%q is not a file name", name))
	case strings.ContainsAny(name, `/\`), strings.ContainsRune(name, 0):
		return lerrors.NewValidationError("name", fmt.Sprintf("%q contains a separator", name))
	}
	return nil
}
