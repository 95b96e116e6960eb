// lockit encrypts files and directory trees in place with a passphrase:
//   - HKDF-SHA256 key derivation from a fresh salt per file
//   - AES-256-GCM authenticated encryption
//   - zstd compression before encryption
//   - Optional encryption of file names
//   - Verified three-pass overwrite before originals are unlinked
//
// Build-time defaults can be changed with -ldflags, for example:
//
//	go build -ldflags "-X main.version=v1.2.0 -X lockit/internal/config.DefaultMode=decrypt" ./cmd/lockit
package main

import (
	"os"

	"lockit/internal/cli"
)

// version is the application version reported by --version.
var version = "dev"

func main() {
	os.Exit(cli.Execute(version))
}
