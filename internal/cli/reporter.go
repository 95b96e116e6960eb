// Package cli provides the lockit command-line interface.
package cli

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"lockit/internal/config"
	lerrors "lockit/internal/errors"
	"lockit/internal/processor"
	"lockit/internal/util"
)

// Ensure Reporter implements processor.Reporter
var _ processor.Reporter = (*Reporter)(nil)

// Reporter implements processor.Reporter for terminal output. Every outcome
// is one line on stderr; failures are printed even in quiet mode.
type Reporter struct {
	mu        sync.Mutex
	out       io.Writer
	quiet     bool
	cancelled atomic.Bool
}

// NewReporter creates a new CLI reporter.
// If quiet is true, only errors are printed.
func NewReporter(quiet bool) *Reporter {
	return &Reporter{
		out:   os.Stderr,
		quiet: quiet,
	}
}

// Report implements processor.Reporter.
func (r *Reporter) Report(o processor.Outcome) {
	switch {
	case o.Failed():
		if o.NewPath != "" {
			r.PrintError("%s: %v [%s] (output kept at %s)", o.Path, o.Err, lerrors.Kind(o.Err), o.NewPath)
			return
		}
		r.PrintError("%s: %v [%s]", o.Path, o.Err, lerrors.Kind(o.Err))
	case o.Skipped():
		r.PrintSuccess("Skipped %s [%s]", o.Path, lerrors.Kind(o.Err))
	case o.Mode == config.Remove:
		r.PrintSuccess("Erased %s (%s)", o.Path, util.Sizeify(o.Size))
	default:
		r.PrintSuccess("%s %s -> %s (%s)", verb(o.Mode), o.Path, o.NewPath, util.Sizeify(o.Size))
	}
}

// IsCancelled checks if the operation was cancelled.
func (r *Reporter) IsCancelled() bool {
	return r.cancelled.Load()
}

// Cancel marks the operation as cancelled.
func (r *Reporter) Cancel() {
	r.cancelled.Store(true)
}

// PrintError prints an error message.
func (r *Reporter) PrintError(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "Error: "+format+"\n", args...)
}

// PrintSuccess prints a success message.
func (r *Reporter) PrintSuccess(format string, args ...any) {
	if r.quiet {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format+"\n", args...)
}

// PrintSummary prints the batch totals.
func (r *Reporter) PrintSummary(mode config.Mode, sum processor.Summary) {
	if sum.Cancelled {
		r.PrintError("%s cancelled: %d done, %d skipped, %d failed", mode, sum.Succeeded, sum.Skipped, sum.Failed)
		return
	}
	if sum.Failed > 0 {
		r.PrintError("%s finished with %d failure(s): %d done, %d skipped", mode, sum.Failed, sum.Succeeded, sum.Skipped)
		return
	}
	r.PrintSuccess("%s finished: %d done, %d skipped", mode, sum.Succeeded, sum.Skipped)
}

func verb(m config.Mode) string {
	switch m {
	case config.Encrypt:
		return "Encrypted"
	case config.Decrypt:
		return "Decrypted"
	default:
		return "Processed"
	}
}
