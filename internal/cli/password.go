package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/Picocrypt/zxcvbn-go"
	"golang.org/x/term"
)

var (
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrPasswordEmpty    = errors.New("password cannot be empty")
	ErrNoTerminal       = errors.New("no terminal to prompt on; use -p or a configured default")
)

// minStrength is the lowest zxcvbn score (0-4) accepted without a warning.
const minStrength = 3

// stdin is swapped out by tests.
var stdin io.Reader = os.Stdin

// isTerminal returns true if stdin is a terminal (not piped/redirected).
func isTerminal() bool {
	return term.IsTerminal(int(syscall.Stdin))
}

// readPasswordSecure reads a password from fd without echo.
func readPasswordSecure(prompt string, fd int) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pw), nil
}

// ReadPasswordInteractive prompts for password on the terminal at fd.
// If confirm is true, asks for confirmation (for encryption).
func ReadPasswordInteractive(fd int, confirm bool) (string, error) {
	password, err := readPasswordSecure("Password: ", fd)
	if err != nil {
		return "", err
	}

	if password == "" {
		return "", ErrPasswordEmpty
	}

	if confirm {
		confirm, err := readPasswordSecure("Confirm password: ", fd)
		if err != nil {
			return "", err
		}
		if password != confirm {
			return "", ErrPasswordMismatch
		}
	}

	return password, nil
}

// ReadPasswordFromStdin reads password from the first line of r (for piped
// input with -P).
func ReadPasswordFromStdin(r io.Reader) (string, error) {
	reader := bufio.NewReader(r)
	pw, err := reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && pw != "") {
		return "", fmt.Errorf("reading password from stdin: %w", err)
	}
	pw = strings.TrimSuffix(pw, "\n")
	pw = strings.TrimSuffix(pw, "\r")
	return pw, nil
}

// resolvePassword picks the passphrase source in order: -p, -P, --ask, the
// configured default, then an interactive prompt on stdin.
func resolvePassword(confirm bool) (string, error) {
	var pw string
	var err error

	switch {
	case flagPassword != "":
		pw = flagPassword
	case flagPasswordStdin:
		pw, err = ReadPasswordFromStdin(stdin)
	case !flagAsk && cfg.DefaultPassphrase != "":
		pw = cfg.DefaultPassphrase
	case isTerminal():
		pw, err = ReadPasswordInteractive(int(syscall.Stdin), confirm)
	default:
		err = ErrNoTerminal
	}
	if err != nil {
		return "", err
	}
	if pw == "" {
		return "", ErrPasswordEmpty
	}
	return pw, nil
}

// resolvePipePassword is resolvePassword for when stdin carries data: the
// prompt goes to the controlling terminal instead.
func resolvePipePassword(confirm bool) (string, error) {
	switch {
	case flagPasswordStdin:
		return "", errors.New("-P cannot be used with pipe: stdin carries the data")
	case flagPassword != "":
		return flagPassword, nil
	case !flagAsk && cfg.DefaultPassphrase != "":
		return cfg.DefaultPassphrase, nil
	}

	tty, err := os.Open("/dev/tty")
	if err != nil {
		return "", ErrNoTerminal
	}
	defer tty.Close()
	if !term.IsTerminal(int(tty.Fd())) {
		return "", ErrNoTerminal
	}
	return ReadPasswordInteractive(int(tty.Fd()), confirm)
}

// passwordScore returns the zxcvbn strength score of pw, 0 to 4.
func passwordScore(pw string) int {
	return zxcvbn.PasswordStrength(pw, nil).Score
}

// warnIfWeak warns when pw is easy to guess. Key derivation adds no work
// factor, so a weak passphrase falls to an offline search quickly.
func warnIfWeak(pw string) {
	if score := passwordScore(pw); score < minStrength {
		warnf("weak passphrase (strength %d/4); it is the only protection against offline guessing", score)
	}
}
