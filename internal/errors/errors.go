// Package errors provides typed errors for lockit operations.
// Callers use errors.Is() and errors.As() to tell an expected skip from a
// real failure, and Kind() to label a failure in diagnostics.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors. Wrap them with %w so errors.Is keeps working.
var (
	// Cryptographic envelope
	ErrAuthFailed  = errors.New("authentication failed")
	ErrRandFailure = errors.New("crypto/rand failure")
	ErrCorruptName = errors.New("encrypted name corrupted")
	ErrCorruptData = errors.New("data corrupted")

	// Pipeline stages
	ErrCompression      = errors.New("malformed compressed data")
	ErrMalformedArchive = errors.New("malformed archive stream")
	ErrVerification     = errors.New("overwrite verification failed")

	// Skips and policy
	ErrUnsupportedExtension = errors.New("unsupported extension")
	ErrUnsupportedEntry     = errors.New("unsupported filesystem entry")
	ErrInvalidMode          = errors.New("invalid mode")
	ErrReservedName         = errors.New("name ends with the directory archive suffix")
	ErrFileExists           = errors.New("file already exists")
	ErrDepthExceeded        = errors.New("maximum directory depth exceeded")
	ErrCancelled            = errors.New("operation cancelled")
)

// CryptoError represents a failure inside a cryptographic primitive.
type CryptoError struct {
	Op  string // "rand", "hkdf", "cipher"
	Err error
}

func (e *CryptoError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("crypto %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("crypto %s failed", e.Op)
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}

// NewCryptoError creates a new CryptoError.
func NewCryptoError(op string, err error) *CryptoError {
	return &CryptoError{Op: op, Err: err}
}

// FileError represents a filesystem failure on a specific path.
type FileError struct {
	Op   string // "open", "read", "write", "stat", "rename", "remove", "sync"
	Path string
	Err  error
}

func (e *FileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s failed", e.Op, e.Path)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// NewFileError creates a new FileError.
func NewFileError(op, path string, err error) *FileError {
	return &FileError{Op: op, Path: path, Err: err}
}

// ValidationError represents invalid input or configuration.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Join wraps errors.Join so callers need a single errors import.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsAuthFailed reports whether err is a failed AEAD open.
func IsAuthFailed(err error) bool {
	return errors.Is(err, ErrAuthFailed)
}

// IsSkip reports whether err marks a path that was deliberately left alone
// rather than one that failed.
func IsSkip(err error) bool {
	return errors.Is(err, ErrUnsupportedExtension) || errors.Is(err, ErrUnsupportedEntry)
}

// Kind returns a short label for the failure class of err.
// The checks run from most to least specific: a FileError wrapping a
// verification failure is reported as "verification".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthFailed):
		return "authentication"
	case errors.Is(err, ErrCorruptName), errors.Is(err, ErrReservedName):
		return "name"
	case errors.Is(err, ErrCompression):
		return "compression"
	case errors.Is(err, ErrVerification):
		return "verification"
	case errors.Is(err, ErrUnsupportedExtension):
		return "unsupported-extension"
	case errors.Is(err, ErrUnsupportedEntry):
		return "unsupported-entry"
	case errors.Is(err, ErrInvalidMode):
		return "invalid-mode"
	case errors.Is(err, ErrMalformedArchive):
		return "archive"
	case errors.Is(err, ErrCorruptData):
		return "corrupt"
	case errors.Is(err, ErrFileExists):
		return "exists"
	case errors.Is(err, ErrDepthExceeded):
		return "depth"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return "validation"
	}
	var ce *CryptoError
	if errors.As(err, &ce) {
		return "crypto"
	}
	return "io"
}
