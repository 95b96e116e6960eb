// Package config holds the immutable settings lockit runs with.
//
// A Config is built once at process start: compiled defaults first (which a
// release build may override with -ldflags -X on the variables below), then
// LOCKIT_* environment variables, then command-line flags. The resulting value
// is passed down to every component; nothing reads global state after that.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	lerrors "lockit/internal/errors"
)

// Build-time defaults. Set with e.g.
//
//	go build -ldflags "-X lockit/internal/config.DefaultExtension=enc"
//
// DefaultPassphrase is intentionally empty: a release artifact must not carry
// a usable secret. Tests and private builds may inject one.
var (
	DefaultPassphrase    = ""
	DefaultMode          = "encrypt"
	DefaultExtension     = "lockit"
	DefaultDirMarker     = "dir"
	DefaultEncryptNames  = "true"
	DefaultSelfDestruct  = "false"
	DefaultSkipOverwrite = "false"
)

// Mode selects what happens to a path.
type Mode int

const (
	Encrypt Mode = iota
	Decrypt
	Remove
)

func (m Mode) String() string {
	switch m {
	case Encrypt:
		return "encrypt"
	case Decrypt:
		return "decrypt"
	case Remove:
		return "remove"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode maps a mode name to a Mode. Remove has the aliases delete, rm
// and del.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "encrypt":
		return Encrypt, nil
	case "decrypt":
		return Decrypt, nil
	case "remove", "delete", "rm", "del":
		return Remove, nil
	}
	return Encrypt, fmt.Errorf("%w: %q", lerrors.ErrInvalidMode, s)
}

// ResolveMode parses s and falls back to fallback when s is not a known mode.
// The error is still returned so the caller can warn; it wraps ErrInvalidMode.
func ResolveMode(s string, fallback Mode) (Mode, error) {
	m, err := ParseMode(s)
	if err != nil {
		return fallback, err
	}
	return m, nil
}

// Config is the full set of settings. Treat it as a value: copy, don't share
// pointers.
type Config struct {
	DefaultPassphrase string
	DefaultMode       Mode
	Extension         string // marker appended to every encrypted name
	DirMarker         string // extra marker for directory archives
	EncryptNames      bool
	SelfDestruct      bool
	SkipOverwrite     bool
}

// Defaults returns the compiled-in configuration. Unparseable build-time
// values fall back to the safe choice.
func Defaults() Config {
	mode, err := ParseMode(DefaultMode)
	if err != nil {
		mode = Encrypt
	}
	return Config{
		DefaultPassphrase: DefaultPassphrase,
		DefaultMode:       mode,
		Extension:         DefaultExtension,
		DirMarker:         DefaultDirMarker,
		EncryptNames:      parseBoolOr(DefaultEncryptNames, true),
		SelfDestruct:      parseBoolOr(DefaultSelfDestruct, false),
		SkipOverwrite:     parseBoolOr(DefaultSkipOverwrite, false),
	}
}

// Env is the environment lookup used by FromEnv. os.LookupEnv satisfies it.
type Env func(key string) (string, bool)

// FromEnv applies LOCKIT_* overrides on top of base. The passphrase is never
// taken from the environment. An invalid LOCKIT_MODE leaves the mode
// unchanged and returns an error wrapping ErrInvalidMode alongside the
// otherwise complete Config.
func FromEnv(base Config, env Env) (Config, error) {
	if env == nil {
		env = os.LookupEnv
	}
	cfg := base
	var modeErr error

	if v, ok := env("LOCKIT_MODE"); ok {
		cfg.DefaultMode, modeErr = ResolveMode(v, base.DefaultMode)
	}
	if v, ok := env("LOCKIT_EXTENSION"); ok {
		cfg.Extension = v
	}
	if v, ok := env("LOCKIT_DIR_MARKER"); ok {
		cfg.DirMarker = v
	}
	if v, ok := env("LOCKIT_ENCRYPT_NAMES"); ok {
		cfg.EncryptNames = parseBoolOr(v, cfg.EncryptNames)
	}
	if v, ok := env("LOCKIT_SELF_DESTRUCT"); ok {
		cfg.SelfDestruct = parseBoolOr(v, cfg.SelfDestruct)
	}
	if v, ok := env("LOCKIT_SKIP_OVERWRITE"); ok {
		cfg.SkipOverwrite = parseBoolOr(v, cfg.SkipOverwrite)
	}
	return cfg, modeErr
}

// Validate checks that the markers can be used as name suffixes.
func (c Config) Validate() error {
	if err := validateMarker("extension", c.Extension); err != nil {
		return err
	}
	if err := validateMarker("dir marker", c.DirMarker); err != nil {
		return err
	}
	if c.Extension == c.DirMarker {
		return lerrors.NewValidationError("dir marker", "must differ from extension")
	}
	return nil
}

// FileSuffix is the suffix of an encrypted file, e.g. ".lockit".
func (c Config) FileSuffix() string {
	return "." + c.Extension
}

// ArchiveSuffix is the suffix of an encrypted directory archive,
// e.g. ".dir.lockit".
func (c Config) ArchiveSuffix() string {
	return "." + c.DirMarker + "." + c.Extension
}

func validateMarker(field, v string) error {
	if v == "" {
		return lerrors.NewValidationError(field, "must not be empty")
	}
	if strings.ContainsAny(v, `./\`) || strings.ContainsRune(v, os.PathSeparator) {
		return lerrors.NewValidationError(field, "must not contain dots or path separators")
	}
	return nil
}

func parseBoolOr(s string, fallback bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return b
}
