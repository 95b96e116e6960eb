package fileops

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"lockit/internal/crypto"
	lerrors "lockit/internal/errors"
	"lockit/internal/log"
	"lockit/internal/util"

	"golang.org/x/crypto/chacha20"
)

// MaxDepth bounds directory recursion in every walker of this package.
const MaxDepth = 256

// Overwrite patterns for the first two passes. The third pass is random.
const (
	passOnes  = 0xFF
	passZeros = 0x00
)

// wipeStream is a pair of ChaCha20 keystreams under one ephemeral key.
// The writer produces the random overwrite pass; the reader regenerates the
// same bytes to verify what landed on disk without holding a file-sized
// buffer in memory.
//
// SECURITY: Call Close() to zero the key once the pass is verified.
type wipeStream struct {
	writer *chacha20.Cipher
	reader *chacha20.Cipher
	key    []byte
	nonce  []byte
}

func newWipeStream() (*wipeStream, error) {
	key, err := crypto.RandomBytes(chacha20.KeySize)
	if err != nil {
		return nil, err
	}
	nonce, err := crypto.RandomBytes(chacha20.NonceSize)
	if err != nil {
		return nil, err
	}

	writer, err := chacha20.NewUnauthenticatedCipher(key, nonce)
	if err != nil {
		return nil, lerrors.NewCryptoError("cipher", err)
	}
	reader, err := chacha20.NewUnauthenticatedCipher(key, nonce)
	if err != nil {
		return nil, lerrors.NewCryptoError("cipher", err)
	}

	return &wipeStream{writer: writer, reader: reader, key: key, nonce: nonce}, nil
}

// next fills b with the next len(b) keystream bytes of c.
func next(c *chacha20.Cipher, b []byte) {
	util.Fill(b, 0)
	c.XORKeyStream(b, b)
}

func (w *wipeStream) Close() {
	if w == nil {
		return
	}
	crypto.SecureZeroMultiple(w.key, w.nonce)
	w.key, w.nonce = nil, nil
	w.writer, w.reader = nil, nil
}

// Eraser destroys files by overwriting them before unlinking.
//
// With SkipOverwrite unset every regular file gets three passes over its full
// length, each synced to stable storage: 0xFF, 0x00, then random bytes. The
// random pass is read back and compared byte for byte; on a mismatch the file
// is left on disk and ErrVerification is returned.
//
// This cannot reach blocks retained by copy-on-write filesystems, snapshots
// or SSD wear levelling. A crash between passes leaves a partially
// overwritten file.
type Eraser struct {
	SkipOverwrite bool

	// Test hooks.
	beforeVerify func(f *os.File) error
	beforeRemove func(path string) error
}

// Erase securely deletes a single file. Symlinks and other non-regular
// entries are unlinked without overwrite; directories are refused.
func Erase(path string, skipOverwrite bool) error {
	e := &Eraser{SkipOverwrite: skipOverwrite}
	return e.Erase(path)
}

// EraseDirectory securely deletes a directory tree.
func EraseDirectory(path string, skipOverwrite bool) error {
	e := &Eraser{SkipOverwrite: skipOverwrite}
	return e.EraseDirectory(path)
}

// Erase securely deletes the file at path.
func (e *Eraser) Erase(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return lerrors.NewFileError("stat", path, err)
	}
	if info.IsDir() {
		return lerrors.NewFileError("erase", path, errors.New("is a directory"))
	}

	if !e.SkipOverwrite && info.Mode().IsRegular() {
		// Read-only files are still ours to destroy.
		if perm := info.Mode().Perm(); perm&0200 == 0 {
			if err := os.Chmod(path, perm|0600); err != nil {
				return lerrors.NewFileError("chmod", path, err)
			}
		}
		if err := e.overwrite(path, info.Size()); err != nil {
			return err
		}
	}

	if e.beforeRemove != nil {
		if err := e.beforeRemove(path); err != nil {
			return err
		}
	}
	if err := os.Remove(path); err != nil {
		return lerrors.NewFileError("remove", path, err)
	}
	log.Debug("erased", log.Path(path), log.Int64("size", info.Size()), log.Bool("overwritten", !e.SkipOverwrite))
	return nil
}

// EraseDirectory erases every file below path depth first, then removes the
// emptied directories. A failure on one entry is collected and does not stop
// its siblings; a directory that still has children after that is left in
// place. Symlinks are unlinked, never followed.
func (e *Eraser) EraseDirectory(path string) error {
	return e.eraseDir(path, 0)
}

func (e *Eraser) eraseDir(dir string, depth int) error {
	if depth > MaxDepth {
		return lerrors.NewFileError("erase", dir, lerrors.ErrDepthExceeded)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return lerrors.NewFileError("readdir", dir, err)
	}

	var errs []error
	for _, ent := range entries {
		p := filepath.Join(dir, ent.Name())
		var err error
		if ent.IsDir() {
			err = e.eraseDir(p, depth+1)
		} else {
			err = e.Erase(p)
		}
		if err != nil {
			log.Warn("erase failed", log.Path(p), log.Err(err))
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return lerrors.Join(errs...)
	}

	if err := os.Remove(dir); err != nil {
		return lerrors.NewFileError("remove", dir, err)
	}
	return nil
}

func (e *Eraser) overwrite(path string, size int64) (retErr error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return lerrors.NewFileError("open", path, err)
	}
	defer func() {
		if f == nil {
			return
		}
		if err := f.Close(); err != nil && retErr == nil {
			retErr = lerrors.NewFileError("close", path, err)
		}
	}()

	fill := func(v byte) func([]byte) {
		return func(b []byte) { util.Fill(b, v) }
	}
	if err := writePass(f, size, fill(passOnes)); err != nil {
		return lerrors.NewFileError("overwrite", path, err)
	}
	if err := writePass(f, size, fill(passZeros)); err != nil {
		return lerrors.NewFileError("overwrite", path, err)
	}

	ws, err := newWipeStream()
	if err != nil {
		return err
	}
	defer ws.Close()

	if err := writePass(f, size, func(b []byte) { next(ws.writer, b) }); err != nil {
		return lerrors.NewFileError("overwrite", path, err)
	}

	if e.beforeVerify != nil {
		if err := e.beforeVerify(f); err != nil {
			return err
		}
	}
	if err := verifyPass(f, size, ws.reader); err != nil {
		return lerrors.NewFileError("verify", path, err)
	}

	err = f.Close()
	f = nil
	if err != nil {
		return lerrors.NewFileError("close", path, err)
	}
	return nil
}

// writePass writes size bytes produced by fill from offset 0, then syncs.
func writePass(f *os.File, size int64, fill func([]byte)) error {
	buf := util.MiBPool.Get()
	defer util.MiBPool.Put(buf)

	for off := int64(0); off < size; {
		chunk := buf[:min(int64(len(buf)), size-off)]
		fill(chunk)
		n, err := f.WriteAt(chunk, off)
		if err != nil {
			return err
		}
		off += int64(n)
	}
	return f.Sync()
}

// verifyPass reads the region back and compares it with the keystream.
func verifyPass(f *os.File, size int64, c *chacha20.Cipher) error {
	got := util.MiBPool.Get()
	defer util.MiBPool.Put(got)
	want := util.MiBPool.Get()
	defer util.MiBPool.Put(want)

	for off := int64(0); off < size; {
		n := min(int64(len(got)), size-off)
		if _, err := f.ReadAt(got[:n], off); err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: file shrank at offset %d", lerrors.ErrVerification, off)
			}
			return err
		}
		next(c, want[:n])
		if !bytes.Equal(got[:n], want[:n]) {
			return fmt.Errorf("%w: mismatch in block at offset %d", lerrors.ErrVerification, off)
		}
		off += n
	}
	return nil
}
