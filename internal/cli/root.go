package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"lockit/internal/config"
	lerrors "lockit/internal/errors"
	"lockit/internal/log"

	"github.com/spf13/cobra"
)

// Version is set by main.go
var Version = "dev"

// errFailures marks a batch that ran but had failed paths. The paths were
// already reported one by one, so Execute only turns it into the exit code.
var errFailures = errors.New("one or more paths failed")

// rootCmd runs the configured default mode when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "lockit [paths...]",
	Short: "Password-based file and directory encryption",
	Long: `lockit encrypts files and directory trees in place with a passphrase:
  - HKDF-SHA256 key derivation from a fresh random salt per file
  - AES-256-GCM authenticated encryption (fails closed on a wrong passphrase)
  - zstd compression before encryption
  - Optional encryption of file names
  - Three-pass overwrite with verification before originals are unlinked

Without a subcommand the configured default mode runs (encrypt unless changed
at build time or through LOCKIT_MODE). Paths default to the current directory.

HKDF adds no brute-force cost: the passphrase alone carries the security.`,
	Args:              cobra.ArbitraryArgs,
	PersistentPreRunE: setup,
	RunE:              runDefault,
	SilenceErrors:     true,
	SilenceUsage:      true,
}

// Global flags
var (
	flagEncryptNames   bool
	flagNoEncryptNames bool
	flagDir            bool
	flagSkipOverwrite  bool
	flagSelfDestruct   bool
	flagNoSelfDestruct bool
	flagPassword       string
	flagPasswordStdin  bool
	flagAsk            bool
	flagQuiet          bool
	flagVerbose        bool
	flagLogFile        string
	flagLogLevel       string
	flagMode           string
)

// Resolved by setup before any command runs.
var (
	cfg       config.Config
	logCloser io.Closer
)

// lookupEnv is swapped out by tests.
var lookupEnv config.Env = os.LookupEnv

// Global reporter for signal handling
var globalReporter *Reporter

func init() {
	// Disable default completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&flagEncryptNames, "encrypt-names", false, "Encrypt file and directory names (default from config)")
	pf.BoolVar(&flagNoEncryptNames, "no-encrypt-names", false, "Keep file and directory names readable")
	pf.BoolVar(&flagDir, "dir", false, "Encrypt each directory as a single archive instead of file by file")
	pf.BoolVar(&flagSkipOverwrite, "skip-overwrite", false, "Unlink originals without overwriting them first")
	pf.BoolVar(&flagSelfDestruct, "self-destruct", false, "Securely delete the lockit executable when done")
	pf.BoolVar(&flagNoSelfDestruct, "no-self-destruct", false, "Never delete the executable, whatever the config says")
	pf.StringVarP(&flagPassword, "password", "p", "", "Passphrase (visible in shell history and process lists)")
	pf.BoolVarP(&flagPasswordStdin, "password-stdin", "P", false, "Read the passphrase from the first line of stdin")
	pf.BoolVar(&flagAsk, "ask", false, "Prompt for the passphrase even if a default is configured")
	pf.BoolVarP(&flagQuiet, "quiet", "q", false, "Only print errors")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "Write debug logs to stderr")
	pf.StringVar(&flagLogFile, "log-file", "", "Append logs to this file")
	pf.StringVar(&flagLogLevel, "log-level", "", "Minimum log level: debug, info, warn or error (default debug with -v, info for --log-file)")

	rootCmd.Flags().StringVar(&flagMode, "mode", "", "Mode to run: encrypt, decrypt or remove (default from config)")
}

// Execute runs the CLI application and returns the process exit code.
func Execute(version string) int {
	Version = version
	rootCmd.Version = version

	// Set up signal handling for graceful cancellation
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		if globalReporter != nil {
			globalReporter.Cancel()
			fmt.Fprintln(os.Stderr, "\nCancelling after the current entry...")
		} else {
			os.Exit(1)
		}
	}()

	err := rootCmd.Execute()
	if logCloser != nil {
		_ = logCloser.Close()
	}
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errFailures):
		return 1
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
}

// setup builds the configuration from build defaults, the environment and
// flags, and switches logging on if asked to.
func setup(cmd *cobra.Command, args []string) error {
	stderrLevel, fileLevel := log.LevelDebug, log.LevelInfo
	if flagVerbose {
		fileLevel = log.LevelDebug
	}
	if flagLogLevel != "" {
		level, err := log.ParseLevel(flagLogLevel)
		if err != nil {
			return lerrors.NewValidationError("log-level", err.Error())
		}
		stderrLevel, fileLevel = level, level
	}

	if flagVerbose {
		log.ToStderr(stderrLevel)
	}
	if flagLogFile != "" {
		closer, err := log.ToFile(flagLogFile, fileLevel)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		logCloser = closer
	}

	c, err := config.FromEnv(config.Defaults(), lookupEnv)
	if err != nil {
		if !lerrors.Is(err, lerrors.ErrInvalidMode) {
			return err
		}
		warnf("%v, using %s", err, c.DefaultMode)
	}

	flags := cmd.Flags()
	if flags.Changed("encrypt-names") {
		c.EncryptNames = flagEncryptNames
	}
	if flagNoEncryptNames {
		c.EncryptNames = false
	}
	if flagSkipOverwrite {
		c.SkipOverwrite = true
	}
	if flags.Changed("self-destruct") {
		c.SelfDestruct = flagSelfDestruct
	}
	if flagNoSelfDestruct {
		c.SelfDestruct = false
	}

	if err := c.Validate(); err != nil {
		return err
	}
	cfg = c
	log.Debug("configuration resolved",
		log.Mode(cfg.DefaultMode),
		log.String("extension", cfg.Extension),
		log.String("dir_marker", cfg.DirMarker),
		log.Bool("encrypt_names", cfg.EncryptNames),
		log.Bool("skip_overwrite", cfg.SkipOverwrite),
		log.Bool("self_destruct", cfg.SelfDestruct))
	return nil
}

func runDefault(cmd *cobra.Command, args []string) error {
	mode := cfg.DefaultMode
	if cmd.Flags().Changed("mode") {
		var err error
		mode, err = config.ResolveMode(flagMode, cfg.DefaultMode)
		if err != nil {
			warnf("%v, using %s", err, mode)
		}
	}
	return runMode(mode, args)
}

// warnf prints a non-fatal diagnostic unless --quiet is set.
func warnf(format string, args ...any) {
	log.Warn(fmt.Sprintf(format, args...))
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
	}
}
