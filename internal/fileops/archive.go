// Package fileops provides the filesystem side of lockit: tar packing and
// unpacking of directory trees, multi-pass secure erase, and staged writes
// that never leave a half-written file under its final name.
//
// Nothing here follows symlinks. Walkers stop at MaxDepth.
package fileops

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	lerrors "lockit/internal/errors"
)

// Pack serializes the tree below root into a tar stream. Entry names are
// slash-separated and relative to root; root itself is not an entry.
// Directories get their own entries so empty ones survive the round trip.
// Permission bits and modification times are recorded, ownership is not.
//
// Symlinks and special files are refused with ErrUnsupportedEntry: packing
// happens before the original tree is erased, so refusing here loses nothing.
func Pack(root string) ([]byte, error) {
	info, err := os.Lstat(root)
	if err != nil {
		return nil, lerrors.NewFileError("stat", root, err)
	}
	if !info.IsDir() {
		return nil, lerrors.NewFileError("pack", root, errors.New("not a directory"))
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return lerrors.NewFileError("walk", p, walkErr)
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if strings.Count(name, "/") >= MaxDepth {
			return lerrors.NewFileError("pack", p, lerrors.ErrDepthExceeded)
		}

		switch {
		case d.IsDir():
			return addEntry(tw, p, name+"/")
		case d.Type().IsRegular():
			return addEntry(tw, p, name)
		default:
			return lerrors.NewFileError("pack", p, fmt.Errorf("%w: %s", lerrors.ErrUnsupportedEntry, d.Type()))
		}
	})
	if err != nil {
		return nil, err
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close tar writer: %w", err)
	}
	return buf.Bytes(), nil
}

func addEntry(tw *tar.Writer, p, name string) error {
	info, err := os.Lstat(p)
	if err != nil {
		return lerrors.NewFileError("stat", p, err)
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return lerrors.NewFileError("pack", p, err)
	}
	hdr.Name = name
	hdr.Format = tar.FormatPAX
	hdr.Uid, hdr.Gid = 0, 0
	hdr.Uname, hdr.Gname = "", ""
	hdr.ModTime = info.ModTime().Truncate(time.Second)
	hdr.AccessTime, hdr.ChangeTime = time.Time{}, time.Time{}

	if err := tw.WriteHeader(hdr); err != nil {
		return lerrors.NewFileError("pack", p, err)
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(p)
	if err != nil {
		return lerrors.NewFileError("open", p, err)
	}
	defer f.Close()
	if _, err := io.Copy(tw, f); err != nil {
		return lerrors.NewFileError("read", p, err)
	}
	return nil
}

type dirMeta struct {
	path  string
	mode  os.FileMode
	mtime time.Time
}

// Unpack recreates a tree produced by Pack below dest, creating dest if
// needed. Entries that would land outside dest, and entry types other than
// directories and regular files, are rejected. Existing files are never
// overwritten.
func Unpack(data []byte, dest string) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty stream", lerrors.ErrMalformedArchive)
	}
	if err := os.MkdirAll(dest, 0700); err != nil {
		return lerrors.NewFileError("mkdir", dest, err)
	}

	var dirs []dirMeta
	tr := tar.NewReader(bytes.NewReader(data))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %v", lerrors.ErrMalformedArchive, err)
		}

		name := path.Clean(hdr.Name)
		local := filepath.FromSlash(name)
		if !filepath.IsLocal(local) && name != "." {
			return fmt.Errorf("%w: entry %q escapes destination", lerrors.ErrMalformedArchive, hdr.Name)
		}
		target := filepath.Join(dest, local)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0700); err != nil {
				return lerrors.NewFileError("mkdir", target, err)
			}
			dirs = append(dirs, dirMeta{target, hdr.FileInfo().Mode().Perm(), hdr.ModTime})
		case tar.TypeReg:
			if err := extractFile(tr, hdr, target); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: %q has type %q", lerrors.ErrUnsupportedEntry, hdr.Name, hdr.Typeflag)
		}
	}

	// Deepest first, so restrictive modes and mtimes on a parent are applied
	// after its children are in place.
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i].path) > len(dirs[j].path) })
	for _, d := range dirs {
		if err := os.Chmod(d.path, d.mode|0700); err != nil {
			return lerrors.NewFileError("chmod", d.path, err)
		}
		if err := os.Chtimes(d.path, d.mtime, d.mtime); err != nil {
			return lerrors.NewFileError("chtimes", d.path, err)
		}
	}
	return nil
}

func extractFile(r io.Reader, hdr *tar.Header, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0700); err != nil {
		return lerrors.NewFileError("mkdir", filepath.Dir(target), err)
	}
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return lerrors.NewFileError("create", target, lerrors.ErrFileExists)
		}
		return lerrors.NewFileError("create", target, err)
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(target)
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: %q truncated", lerrors.ErrMalformedArchive, hdr.Name)
		}
		return lerrors.NewFileError("write", target, err)
	}
	if err := f.Close(); err != nil {
		return lerrors.NewFileError("close", target, err)
	}
	if err := os.Chmod(target, hdr.FileInfo().Mode().Perm()); err != nil {
		return lerrors.NewFileError("chmod", target, err)
	}
	if err := os.Chtimes(target, hdr.ModTime, hdr.ModTime); err != nil {
		return lerrors.NewFileError("chtimes", target, err)
	}
	return nil
}
