package fileops

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	lerrors "lockit/internal/errors"
	"lockit/internal/util"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestWipeStream(t *testing.T) {
	ws, err := newWipeStream()
	if err != nil {
		t.Fatalf("newWipeStream() failed: %v", err)
	}

	a := make([]byte, 4096)
	b := make([]byte, 4096)
	next(ws.writer, a)
	next(ws.reader, b)
	if !bytes.Equal(a, b) {
		t.Fatal("writer and reader keystreams diverged")
	}
	if bytes.Equal(a, make([]byte, len(a))) {
		t.Fatal("keystream is all zeros")
	}

	keyRef, nonceRef := ws.key, ws.nonce
	ws.Close()
	if !bytes.Equal(keyRef, make([]byte, len(keyRef))) {
		t.Error("key should be zeroed after Close()")
	}
	if !bytes.Equal(nonceRef, make([]byte, len(nonceRef))) {
		t.Error("nonce should be zeroed after Close()")
	}
	if ws.writer != nil || ws.reader != nil {
		t.Error("ciphers should be nil after Close()")
	}
}

func TestEraseOverwritesBeforeRemoval(t *testing.T) {
	sizes := []int{0, 1, 4096, util.MiB + 17}

	for _, size := range sizes {
		path := filepath.Join(t.TempDir(), "victim.bin")
		pattern := bytes.Repeat([]byte{0xA5}, size)
		writeFile(t, path, pattern)

		var onDisk []byte
		e := &Eraser{
			beforeRemove: func(p string) error {
				var err error
				onDisk, err = os.ReadFile(p)
				return err
			},
		}
		if err := e.Erase(path); err != nil {
			t.Fatalf("size %d: Erase failed: %v", size, err)
		}

		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("size %d: file still exists after Erase", size)
		}
		if len(onDisk) != size {
			t.Errorf("size %d: length on disk changed to %d", size, len(onDisk))
		}
		if size > 0 && bytes.Equal(onDisk, pattern) {
			t.Errorf("size %d: original content still on disk before unlink", size)
		}
		if size > 64 && (bytes.Equal(onDisk, make([]byte, size)) || bytes.Equal(onDisk, bytes.Repeat([]byte{0xFF}, size))) {
			t.Errorf("size %d: last pass should be random, not a fixed pattern", size)
		}
	}
}

func TestEraseVerificationFailureKeepsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "victim.bin")
	writeFile(t, path, bytes.Repeat([]byte("x"), 8192))

	e := &Eraser{
		beforeVerify: func(f *os.File) error {
			_, err := f.WriteAt([]byte("tampered"), 100)
			return err
		},
	}
	err := e.Erase(path)
	if !lerrors.Is(err, lerrors.ErrVerification) {
		t.Fatalf("err = %v, want ErrVerification", err)
	}
	if _, statErr := os.Stat(path); statErr != nil {
		t.Errorf("file must be left in place after failed verification: %v", statErr)
	}
}

func TestEraseSkipOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.txt")
	writeFile(t, path, []byte("hello"))

	var onDisk []byte
	e := &Eraser{
		SkipOverwrite: true,
		beforeRemove: func(p string) error {
			onDisk, _ = os.ReadFile(p)
			return nil
		},
	}
	if err := e.Erase(path); err != nil {
		t.Fatalf("Erase failed: %v", err)
	}
	if string(onDisk) != "hello" {
		t.Errorf("skip-overwrite must not touch content, got %q", onDisk)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file still exists")
	}
}

func TestEraseReadOnlyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ro.txt")
	writeFile(t, path, []byte("read only"))
	if err := os.Chmod(path, 0400); err != nil {
		t.Fatalf("Chmod: %v", err)
	}

	if err := Erase(path, false); err != nil {
		t.Fatalf("Erase failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file still exists")
	}
}

func TestEraseSymlinkDoesNotTouchTarget(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target.txt")
	link := filepath.Join(dir, "link")
	writeFile(t, target, []byte("keep me"))
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	if err := Erase(link, false); err != nil {
		t.Fatalf("Erase failed: %v", err)
	}
	if _, err := os.Lstat(link); !os.IsNotExist(err) {
		t.Error("link still exists")
	}
	got, err := os.ReadFile(target)
	if err != nil || string(got) != "keep me" {
		t.Errorf("target changed: %q, %v", got, err)
	}
}

func TestEraseErrors(t *testing.T) {
	dir := t.TempDir()

	var fe *lerrors.FileError
	if err := Erase(filepath.Join(dir, "missing"), false); !lerrors.As(err, &fe) {
		t.Errorf("missing file: err = %v, want FileError", err)
	}
	if err := Erase(dir, false); err == nil {
		t.Error("Erase on a directory should fail")
	}
}

func TestEraseDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "tree")
	writeFile(t, filepath.Join(root, "a.txt"), []byte("a"))
	writeFile(t, filepath.Join(root, "sub", "b.txt"), []byte("b"))
	writeFile(t, filepath.Join(root, "sub", "deeper", "c.txt"), []byte("c"))
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0700); err != nil {
		t.Fatal(err)
	}

	if err := EraseDirectory(root, false); err != nil {
		t.Fatalf("EraseDirectory failed: %v", err)
	}
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Error("root still exists")
	}
}

func TestEraseDirectoryContinuesPastFailures(t *testing.T) {
	root := filepath.Join(t.TempDir(), "tree")
	writeFile(t, filepath.Join(root, "a.txt"), []byte("a"))
	writeFile(t, filepath.Join(root, "b.txt"), []byte("b"))
	writeFile(t, filepath.Join(root, "c.txt"), []byte("c"))

	bad := filepath.Join(root, "b.txt")
	e := &Eraser{
		beforeVerify: func(f *os.File) error {
			if f.Name() != bad {
				return nil
			}
			b := make([]byte, 1)
			if _, err := f.ReadAt(b, 0); err != nil {
				return err
			}
			b[0] ^= 0xFF
			_, err := f.WriteAt(b, 0)
			return err
		},
	}

	err := e.EraseDirectory(root)
	if !lerrors.Is(err, lerrors.ErrVerification) {
		t.Fatalf("err = %v, want ErrVerification", err)
	}
	for _, name := range []string{"a.txt", "c.txt"} {
		if _, err := os.Stat(filepath.Join(root, name)); !os.IsNotExist(err) {
			t.Errorf("%s should have been erased despite sibling failure", name)
		}
	}
	if _, err := os.Stat(bad); err != nil {
		t.Errorf("failed file should remain: %v", err)
	}
	if _, err := os.Stat(root); err != nil {
		t.Errorf("non-empty directory should remain: %v", err)
	}
}
