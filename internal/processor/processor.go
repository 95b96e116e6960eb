// Package processor decides, per path, which transformation to apply and runs
// it end to end.
//
// Encrypt pipeline for a file:
//  1. Read the plaintext
//  2. Compress (zstd)
//  3. Seal in an envelope (HKDF-SHA256 + AES-256-GCM)
//  4. Name the output <name>.<ext>, with <name> itself sealed and hex encoded
//     when name encryption is on
//  5. Stage, sync and rename the output into place
//  6. Securely erase the original
//
// Decrypt is the exact inverse. Directory archive mode packs a whole tree into
// one tar stream before step 2 and unpacks it into a sibling directory on the
// way back.
//
// Every file-level result (success, skip or failure) is reported through the
// Reporter exactly once, from where it happened, so a caller running a batch
// sees each file individually even when it passed a directory.
package processor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"lockit/internal/config"
	"lockit/internal/crypto"
	lerrors "lockit/internal/errors"
	"lockit/internal/fileops"
	"lockit/internal/log"
	"lockit/internal/names"
)

// Reporter receives per-file outcomes. Implementations are called from the
// goroutine running the batch; IsCancelled may be called from anywhere.
type Reporter interface {
	Report(o Outcome)  // One call per file-level result
	IsCancelled() bool // Checked between entries; true stops the batch
}

// Outcome is the result of one file-level operation.
type Outcome struct {
	Path    string      // Input path
	NewPath string      // Resulting path; empty on failure before the output existed
	Mode    config.Mode // Operation that ran
	Size    int64       // Input size in bytes, where known
	Err     error       // nil on success
}

// Skipped reports whether the outcome is an expected, non-fatal skip.
func (o Outcome) Skipped() bool { return o.Err != nil && lerrors.IsSkip(o.Err) }

// Failed reports whether the outcome is a real failure.
func (o Outcome) Failed() bool { return o.Err != nil && !lerrors.IsSkip(o.Err) }

// Summary aggregates the outcomes of a batch.
type Summary struct {
	Succeeded int
	Skipped   int
	Failed    int
	Cancelled bool
}

// OK reports whether the batch finished with no failures.
func (s Summary) OK() bool { return s.Failed == 0 && !s.Cancelled }

func (s *Summary) add(o Outcome) {
	switch {
	case o.Err == nil:
		s.Succeeded++
	case o.Skipped():
		s.Skipped++
	default:
		s.Failed++
	}
}

// Options selects per-run behavior on top of the configuration.
type Options struct {
	EncryptNames  bool     // Seal file and archive names
	ArchiveDirs   bool     // Encrypt directories as single archives instead of recursing
	SkipOverwrite bool     // Unlink originals without the overwrite passes
	Reporter      Reporter // May be nil
}

// OptionsFromConfig returns the options implied by cfg alone.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		EncryptNames:  cfg.EncryptNames,
		SkipOverwrite: cfg.SkipOverwrite,
	}
}

// Processor applies one mode to paths. It holds no state between paths apart
// from the running Summary and is not safe for concurrent use.
type Processor struct {
	cfg     config.Config
	opts    Options
	summary Summary
}

// New returns a Processor for cfg and opts.
func New(cfg config.Config, opts Options) *Processor {
	return &Processor{cfg: cfg, opts: opts}
}

// ProcessPaths runs mode over every path in order and returns the aggregate
// of all reported outcomes. A failure on one path never stops the others; a
// cancellation stops the batch before the next entry.
func (p *Processor) ProcessPaths(paths []string, passphrase string, mode config.Mode) Summary {
	p.summary = Summary{}
	start := time.Now()

	for _, path := range paths {
		if p.cancelled() {
			p.summary.Cancelled = true
			break
		}
		if _, err := p.ProcessPath(path, passphrase, mode); lerrors.Is(err, lerrors.ErrCancelled) {
			p.summary.Cancelled = true
			break
		}
	}

	log.Info("batch finished",
		log.Mode(mode),
		log.Int("succeeded", p.summary.Succeeded),
		log.Int("skipped", p.summary.Skipped),
		log.Int("failed", p.summary.Failed),
		log.Bool("cancelled", p.summary.Cancelled),
		log.Duration("elapsed", time.Since(start)))
	return p.summary
}

// ProcessPath applies mode to a single path and returns the resulting path.
//
// Dispatch:
//  1. Remove: secure erase of the file or tree, no cryptography.
//  2. Decrypt of a <name>.<dirmarker>.<ext> file: unpack the archive into a
//     sibling directory, then erase the archive.
//  3. Any other file: the single-file pipeline. Decrypt requires the .<ext>
//     suffix and skips other files with ErrUnsupportedExtension.
//  4. Encrypt of a directory with ArchiveDirs: pack, seal, erase the tree.
//  5. Any other directory: recurse into its entries in name order. Directories
//     themselves are never renamed, created or removed in this mode.
//
// For a directory handled by recursion the returned path is the directory and
// the error summarizes failed entries; each entry is reported individually.
// Symlinks and special files are skipped with ErrUnsupportedEntry, except in
// Remove mode where they are unlinked without being followed.
func (p *Processor) ProcessPath(path, passphrase string, mode config.Mode) (string, error) {
	path = filepath.Clean(path)
	if mode != config.Encrypt && mode != config.Decrypt && mode != config.Remove {
		err := lerrors.NewFileError("process", path, fmt.Errorf("%w: %s", lerrors.ErrInvalidMode, mode))
		return "", p.report(Outcome{Path: path, Mode: mode, Err: err})
	}

	pass := []byte(passphrase)
	defer crypto.SecureZero(pass)
	return p.process(path, pass, mode, 0)
}

func (p *Processor) process(path string, pass []byte, mode config.Mode, depth int) (string, error) {
	if depth > fileops.MaxDepth {
		return "", p.report(Outcome{Path: path, Mode: mode, Err: lerrors.NewFileError("walk", path, lerrors.ErrDepthExceeded)})
	}

	info, err := os.Lstat(path)
	if err != nil {
		return "", p.report(Outcome{Path: path, Mode: mode, Err: lerrors.NewFileError("stat", path, err)})
	}

	if mode == config.Remove {
		return "", p.report(Outcome{Path: path, Mode: mode, Size: sizeOf(info), Err: SecureDelete(path, p.opts.SkipOverwrite)})
	}

	switch {
	case info.Mode().IsRegular():
		o := Outcome{Path: path, Mode: mode, Size: info.Size()}
		switch {
		case mode == config.Decrypt && p.isArchive(path):
			o.NewPath, o.Err = p.decryptArchive(path, pass)
		case mode == config.Decrypt:
			o.NewPath, o.Err = p.decryptFile(path, pass)
		default:
			o.NewPath, o.Err = p.encryptFile(path, pass)
		}
		return o.NewPath, p.report(o)

	case info.IsDir() && mode == config.Encrypt && p.opts.ArchiveDirs:
		o := Outcome{Path: path, Mode: mode}
		o.NewPath, o.Size, o.Err = p.encryptArchive(path, pass)
		return o.NewPath, p.report(o)

	case info.IsDir():
		return path, p.walk(path, pass, mode, depth)

	default:
		err := lerrors.NewFileError("process", path, fmt.Errorf("%w: %s", lerrors.ErrUnsupportedEntry, info.Mode().Type()))
		return "", p.report(Outcome{Path: path, Mode: mode, Err: err})
	}
}

// walk processes the entries of dir. The listing is taken once up front so
// outputs created during the walk are not visited.
func (p *Processor) walk(dir string, pass []byte, mode config.Mode, depth int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return p.report(Outcome{Path: dir, Mode: mode, Err: lerrors.NewFileError("readdir", dir, err)})
	}
	log.Debug("walking directory", log.Path(dir), log.Int("entries", len(entries)), log.Int("depth", depth))

	failed := 0
	for _, ent := range entries {
		if p.cancelled() {
			return lerrors.ErrCancelled
		}
		_, err := p.process(filepath.Join(dir, ent.Name()), pass, mode, depth+1)
		switch {
		case err == nil, lerrors.IsSkip(err):
		case lerrors.Is(err, lerrors.ErrCancelled):
			return err
		default:
			failed++
		}
	}
	if failed > 0 {
		return lerrors.NewFileError("process", dir, fmt.Errorf("%d of %d entries failed", failed, len(entries)))
	}
	return nil
}

func (p *Processor) encryptFile(path string, pass []byte) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", lerrors.NewFileError("read", path, err)
	}
	defer crypto.SecureZero(data)

	sealed, err := crypto.Seal(data, pass)
	if err != nil {
		return "", lerrors.NewFileError("encrypt", path, err)
	}
	name, err := p.encodeName(filepath.Base(path), pass)
	if err != nil {
		return "", lerrors.NewFileError("encrypt", path, err)
	}

	// A readable name like "backup.dir" would come out as an archive name
	// and be unpacked on decrypt.
	dest := filepath.Join(filepath.Dir(path), name+p.cfg.FileSuffix())
	if p.isArchive(dest) {
		return "", lerrors.NewFileError("encrypt", path, lerrors.ErrReservedName)
	}
	return dest, p.commit(path, dest, sealed, false)
}

func (p *Processor) decryptFile(path string, pass []byte) (string, error) {
	base := filepath.Base(path)
	suffix := p.cfg.FileSuffix()
	if !strings.HasSuffix(base, suffix) {
		return "", lerrors.NewFileError("decrypt", path, lerrors.ErrUnsupportedExtension)
	}

	name, err := p.decodeName(strings.TrimSuffix(base, suffix), pass)
	if err != nil {
		return "", lerrors.NewFileError("decrypt", path, err)
	}

	plain, err := p.open(path, pass)
	if err != nil {
		return "", err
	}
	defer crypto.SecureZero(plain)

	dest := filepath.Join(filepath.Dir(path), name)
	return dest, p.commit(path, dest, plain, false)
}

func (p *Processor) encryptArchive(dir string, pass []byte) (string, int64, error) {
	// The name of "." or "dir/.." is only known once the path is absolute.
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", 0, lerrors.NewFileError("abs", dir, err)
	}
	if filepath.Dir(abs) == abs {
		return "", 0, lerrors.NewFileError("archive", dir, errors.New("refusing to archive a filesystem root"))
	}

	tarData, err := fileops.Pack(abs)
	if err != nil {
		return "", 0, err
	}
	defer crypto.SecureZero(tarData)
	size := int64(len(tarData))

	sealed, err := crypto.Seal(tarData, pass)
	if err != nil {
		return "", size, lerrors.NewFileError("encrypt", dir, err)
	}
	name, err := p.encodeName(filepath.Base(abs), pass)
	if err != nil {
		return "", size, lerrors.NewFileError("encrypt", dir, err)
	}

	dest := filepath.Join(filepath.Dir(abs), name+p.cfg.ArchiveSuffix())
	return dest, size, p.commit(abs, dest, sealed, true)
}

func (p *Processor) decryptArchive(path string, pass []byte) (string, error) {
	stem := strings.TrimSuffix(filepath.Base(path), p.cfg.ArchiveSuffix())
	name, err := p.decodeName(stem, pass)
	if err != nil {
		return "", lerrors.NewFileError("decrypt", path, err)
	}

	tarData, err := p.open(path, pass)
	if err != nil {
		return "", err
	}
	defer crypto.SecureZero(tarData)

	dest := filepath.Join(filepath.Dir(path), name)
	if err := fileops.UnpackNew(tarData, dest); err != nil {
		return "", err
	}
	log.Debug("unpacked archive", log.Path(path), log.String("to", dest))

	if err := fileops.Erase(path, p.opts.SkipOverwrite); err != nil {
		return dest, err
	}
	return dest, nil
}

// open reads an envelope from path and returns the decompressed plaintext.
func (p *Processor) open(path string, pass []byte) ([]byte, error) {
	sealed, err := os.ReadFile(path)
	if err != nil {
		return nil, lerrors.NewFileError("read", path, err)
	}
	plain, err := crypto.Open(sealed, pass)
	if err != nil {
		return nil, lerrors.NewFileError("decrypt", path, err)
	}
	return plain, nil
}

// commit writes data to dest and erases src once dest is durable. When the
// erase fails both copies exist; the error says so and NewPath still points
// at the output.
func (p *Processor) commit(src, dest string, data []byte, srcIsDir bool) error {
	if err := fileops.WriteNew(dest, data, 0600); err != nil {
		return err
	}

	var err error
	if srcIsDir {
		err = fileops.EraseDirectory(src, p.opts.SkipOverwrite)
	} else {
		err = fileops.Erase(src, p.opts.SkipOverwrite)
	}
	if err != nil {
		log.Warn("output written but original not erased", log.Path(src), log.String("output", dest), log.Err(err))
		return err
	}
	return nil
}

func (p *Processor) isArchive(path string) bool {
	return strings.HasSuffix(filepath.Base(path), p.cfg.ArchiveSuffix())
}

func (p *Processor) encodeName(name string, pass []byte) (string, error) {
	if !p.opts.EncryptNames {
		return name, nil
	}
	return names.Encrypt(name, pass)
}

func (p *Processor) decodeName(stem string, pass []byte) (string, error) {
	if !p.opts.EncryptNames {
		if stem == "" || stem == "." || stem == ".." {
			return "", lerrors.ErrCorruptName
		}
		return stem, nil
	}
	return names.Decrypt(stem, pass)
}

func (p *Processor) report(o Outcome) error {
	p.summary.add(o)

	switch {
	case o.Err == nil:
		log.Info("processed", log.Mode(o.Mode), log.Path(o.Path), log.String("to", o.NewPath), log.Int64("size", o.Size))
	case o.Skipped():
		log.Debug("skipped", log.Mode(o.Mode), log.Path(o.Path), log.Err(o.Err))
	default:
		fields := []log.Field{log.Mode(o.Mode), log.Path(o.Path), log.String("kind", lerrors.Kind(o.Err))}
		var fe *lerrors.FileError
		if lerrors.As(o.Err, &fe) {
			fields = append(fields, log.String("op", fe.Op))
		}
		log.Error("failed", append(fields, log.Err(o.Err))...)
	}

	if p.opts.Reporter != nil {
		p.opts.Reporter.Report(o)
	}
	return o.Err
}

func (p *Processor) cancelled() bool {
	return p.opts.Reporter != nil && p.opts.Reporter.IsCancelled()
}

// SecureDelete erases a file or, recursively, a directory.
func SecureDelete(path string, skipOverwrite bool) error {
	info, err := os.Lstat(path)
	if err != nil {
		return lerrors.NewFileError("stat", path, err)
	}
	if info.IsDir() {
		return fileops.EraseDirectory(path, skipOverwrite)
	}
	return fileops.Erase(path, skipOverwrite)
}

func sizeOf(info os.FileInfo) int64 {
	if info.Mode().IsRegular() {
		return info.Size()
	}
	return 0
}
