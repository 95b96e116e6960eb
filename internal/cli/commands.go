package cli

import (
	"fmt"
	"os"

	"lockit/internal/config"
	"lockit/internal/fileops"
	"lockit/internal/log"
	"lockit/internal/processor"

	"github.com/spf13/cobra"
)

var encryptCmd = &cobra.Command{
	Use:   "encrypt [paths...]",
	Short: "Encrypt files and directories in place",
	Long: `Encrypt each path in place. Files become <name>.lockit and the original is
securely erased. Directories are processed file by file, keeping their shape,
unless --dir is given, in which case each directory becomes one
<name>.dir.lockit archive.

Examples:
  # Encrypt everything below the current directory (prompts for passphrase)
  lockit encrypt

  # Encrypt a folder as a single archive, keeping names readable
  lockit encrypt --dir --no-encrypt-names ~/photos

  # Read the passphrase from stdin (for scripts)
  echo "passphrase" | lockit encrypt -P notes.txt`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMode(config.Encrypt, args)
	},
}

var decryptCmd = &cobra.Command{
	Use:   "decrypt [paths...]",
	Short: "Decrypt files and archives in place",
	Long: `Decrypt each path in place. Files ending in .lockit are restored under their
original name and .dir.lockit archives are unpacked into a sibling directory.
Other files are skipped. Nothing is written when the passphrase is wrong.

Examples:
  lockit decrypt
  lockit decrypt -p "passphrase" 3fa1c0de.lockit`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMode(config.Decrypt, args)
	},
}

var removeCmd = &cobra.Command{
	Use:     "remove [paths...]",
	Aliases: []string{"delete", "rm", "del"},
	Short:   "Securely erase files and directories",
	Long: `Overwrite each file three times (0xFF, 0x00, random), verify the last pass
and unlink it. Directories are erased recursively. No passphrase is needed.

Overwriting cannot reach copies kept by copy-on-write filesystems, snapshots
or SSD wear levelling.`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMode(config.Remove, args)
	},
}

func init() {
	rootCmd.AddCommand(encryptCmd, decryptCmd, removeCmd)
}

// runMode resolves the passphrase, processes every path and handles
// self-destruct. Paths default to the current directory.
func runMode(mode config.Mode, paths []string) error {
	if len(paths) == 0 {
		paths = []string{"."}
	}
	if flagDir && mode != config.Encrypt {
		warnf("--dir only applies to encrypt; archives are detected by name on decrypt")
	}

	var passphrase string
	if mode != config.Remove {
		var err error
		passphrase, err = resolvePassword(mode == config.Encrypt)
		if err != nil {
			return fmt.Errorf("password input: %w", err)
		}
		if mode == config.Encrypt {
			warnIfWeak(passphrase)
		}
	}

	reporter := NewReporter(flagQuiet)
	globalReporter = reporter

	opts := processor.OptionsFromConfig(cfg)
	opts.ArchiveDirs = flagDir
	opts.Reporter = reporter

	log.Debug("starting batch", log.Mode(mode), log.Int("paths", len(paths)))
	sum := processor.New(cfg, opts).ProcessPaths(paths, passphrase, mode)
	reporter.PrintSummary(mode, sum)

	var sdErr error
	if cfg.SelfDestruct {
		sdErr = selfDestruct(cfg.SkipOverwrite)
	}

	switch {
	case sdErr != nil:
		return sdErr
	case !sum.OK():
		return errFailures
	}
	return nil
}

// executable is swapped out by tests.
var executable = os.Executable

// selfDestruct securely erases the running binary. Not knowing which file
// that is counts as fatal.
func selfDestruct(skipOverwrite bool) error {
	exe, err := executable()
	if err != nil {
		return fmt.Errorf("self-destruct: cannot resolve executable: %w", err)
	}
	log.Info("self-destruct", log.Path(exe))
	if err := fileops.Erase(exe, skipOverwrite); err != nil {
		return fmt.Errorf("self-destruct: %w", err)
	}
	return nil
}
