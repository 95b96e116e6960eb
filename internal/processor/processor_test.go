package processor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lockit/internal/config"
	lerrors "lockit/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	outcomes    []Outcome
	cancelAfter int
}

func (r *recorder) Report(o Outcome) { r.outcomes = append(r.outcomes, o) }

func (r *recorder) IsCancelled() bool {
	return r.cancelAfter > 0 && len(r.outcomes) >= r.cancelAfter
}

func newTestProcessor(t *testing.T, encryptNames, archiveDirs bool) (*Processor, *recorder) {
	t.Helper()
	rec := &recorder{}
	p := New(config.Defaults(), Options{
		EncryptNames: encryptNames,
		ArchiveDirs:  archiveDirs,
		Reporter:     rec,
	})
	return p, rec
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out
}

func TestEncryptDecryptFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "notes.txt")
	write(t, src, "hello world")

	p, rec := newTestProcessor(t, true, false)
	enc, err := p.ProcessPath(src, "pw123", config.Encrypt)
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(enc, ".lockit"))
	assert.NotContains(t, filepath.Base(enc), "notes")
	assert.NoFileExists(t, src)
	assert.Equal(t, []string{filepath.Base(enc)}, listDir(t, dir))

	dec, err := p.ProcessPath(enc, "pw123", config.Decrypt)
	require.NoError(t, err)
	assert.Equal(t, src, dec)
	assert.Equal(t, "hello world", read(t, src))
	assert.NoFileExists(t, enc)

	require.Len(t, rec.outcomes, 2)
	assert.Equal(t, int64(len("hello world")), rec.outcomes[0].Size)
	assert.Equal(t, enc, rec.outcomes[0].NewPath)
}

func TestEncryptTwiceDiffers(t *testing.T) {
	p, _ := newTestProcessor(t, true, false)

	var outputs []string
	for i := 0; i < 2; i++ {
		src := filepath.Join(t.TempDir(), "notes.txt")
		write(t, src, "hello world")
		enc, err := p.ProcessPath(src, "pw123", config.Encrypt)
		require.NoError(t, err)
		outputs = append(outputs, read(t, enc))
	}
	assert.NotEqual(t, outputs[0], outputs[1])
}

func TestDecryptWrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "notes.txt")
	write(t, src, "hello world")

	p, rec := newTestProcessor(t, true, false)
	enc, err := p.ProcessPath(src, "pw123", config.Encrypt)
	require.NoError(t, err)

	_, err = p.ProcessPath(enc, "wrong", config.Decrypt)
	require.Error(t, err)
	assert.True(t, lerrors.IsAuthFailed(err))
	assert.Equal(t, "authentication", lerrors.Kind(err))

	assert.FileExists(t, enc)
	assert.NoFileExists(t, src)
	assert.Equal(t, []string{filepath.Base(enc)}, listDir(t, dir))
	assert.True(t, rec.outcomes[len(rec.outcomes)-1].Failed())
}

func TestDecryptWrongPassphraseNamesDisabled(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "notes.txt")
	write(t, src, "hello world")

	p, _ := newTestProcessor(t, false, false)
	enc, err := p.ProcessPath(src, "pw123", config.Encrypt)
	require.NoError(t, err)

	_, err = p.ProcessPath(enc, "wrong", config.Decrypt)
	assert.True(t, lerrors.IsAuthFailed(err))
	assert.NoFileExists(t, src)
}

func TestEncryptRefusesArchiveLookalikeName(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "backup.dir")
	write(t, src, "not a directory")

	p, rec := newTestProcessor(t, false, false)
	_, err := p.ProcessPath(src, "pw", config.Encrypt)
	assert.ErrorIs(t, err, lerrors.ErrReservedName)
	assert.Equal(t, "name", lerrors.Kind(err))
	assert.Equal(t, "not a directory", read(t, src))
	assert.Equal(t, []string{"backup.dir"}, listDir(t, dir))
	require.Len(t, rec.outcomes, 1)
	assert.True(t, rec.outcomes[0].Failed())

	// Encrypted names never end in the archive suffix, so the same file
	// round-trips.
	p, _ = newTestProcessor(t, true, false)
	enc, err := p.ProcessPath(src, "pw", config.Encrypt)
	require.NoError(t, err)
	assert.False(t, strings.HasSuffix(enc, ".dir.lockit"))

	dec, err := p.ProcessPath(enc, "pw", config.Decrypt)
	require.NoError(t, err)
	assert.Equal(t, src, dec)
	assert.Equal(t, "not a directory", read(t, src))
}

func TestArchiveRoundTrip(t *testing.T) {
	root := t.TempDir()
	tree := filepath.Join(root, "a")
	write(t, filepath.Join(tree, "b.txt"), "bee")
	write(t, filepath.Join(tree, "c", "d.txt"), "dee")
	require.NoError(t, os.MkdirAll(filepath.Join(tree, "e"), 0700))

	p, rec := newTestProcessor(t, true, true)
	archive, err := p.ProcessPath(tree, "pw123", config.Encrypt)
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(archive, ".dir.lockit"))
	assert.NoDirExists(t, tree)
	assert.Equal(t, []string{filepath.Base(archive)}, listDir(t, root))
	require.Len(t, rec.outcomes, 1)

	restored, err := p.ProcessPath(archive, "pw123", config.Decrypt)
	require.NoError(t, err)
	assert.Equal(t, tree, restored)
	assert.Equal(t, "bee", read(t, filepath.Join(tree, "b.txt")))
	assert.Equal(t, "dee", read(t, filepath.Join(tree, "c", "d.txt")))
	assert.DirExists(t, filepath.Join(tree, "e"))
	assert.NoFileExists(t, archive)
	assert.Equal(t, []string{"a"}, listDir(t, root))
}

func TestArchiveNamesDisabled(t *testing.T) {
	root := t.TempDir()
	tree := filepath.Join(root, "photos")
	write(t, filepath.Join(tree, "x.jpg"), "x")

	p, _ := newTestProcessor(t, false, true)
	archive, err := p.ProcessPath(tree, "pw", config.Encrypt)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "photos.dir.lockit"), archive)

	restored, err := p.ProcessPath(archive, "pw", config.Decrypt)
	require.NoError(t, err)
	assert.Equal(t, tree, restored)
	assert.Equal(t, "x", read(t, filepath.Join(tree, "x.jpg")))
}

func TestArchiveRejectsSymlink(t *testing.T) {
	root := t.TempDir()
	tree := filepath.Join(root, "a")
	write(t, filepath.Join(tree, "b.txt"), "bee")
	if err := os.Symlink("b.txt", filepath.Join(tree, "link")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	p, _ := newTestProcessor(t, true, true)
	_, err := p.ProcessPath(tree, "pw", config.Encrypt)
	assert.True(t, lerrors.Is(err, lerrors.ErrUnsupportedEntry))
	assert.Equal(t, "bee", read(t, filepath.Join(tree, "b.txt")))
	assert.Equal(t, []string{"a"}, listDir(t, root))
}

func TestRecursivePreservesTreeShape(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "one.txt"), "1")
	write(t, filepath.Join(root, "sub", "two.txt"), "2")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0700))

	p, _ := newTestProcessor(t, true, false)
	sum := p.ProcessPaths([]string{root}, "pw", config.Encrypt)
	assert.Equal(t, Summary{Succeeded: 2}, sum)

	assert.DirExists(t, filepath.Join(root, "sub"))
	assert.DirExists(t, filepath.Join(root, "empty"))
	for _, dir := range []string{root, filepath.Join(root, "sub")} {
		for _, name := range listDir(t, dir) {
			if name == "sub" || name == "empty" {
				continue
			}
			assert.True(t, strings.HasSuffix(name, ".lockit"), name)
		}
	}

	sum = p.ProcessPaths([]string{root}, "pw", config.Decrypt)
	assert.Equal(t, Summary{Succeeded: 2}, sum)
	assert.Equal(t, "1", read(t, filepath.Join(root, "one.txt")))
	assert.Equal(t, "2", read(t, filepath.Join(root, "sub", "two.txt")))
	assert.ElementsMatch(t, []string{"empty", "one.txt", "sub"}, listDir(t, root))
}

func TestDecryptSkipsUnsupportedExtension(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "readme.md"), "plain")

	p, rec := newTestProcessor(t, true, false)
	sum := p.ProcessPaths([]string{root}, "pw", config.Decrypt)

	assert.Equal(t, Summary{Skipped: 1}, sum)
	assert.True(t, sum.OK())
	require.Len(t, rec.outcomes, 1)
	assert.True(t, lerrors.Is(rec.outcomes[0].Err, lerrors.ErrUnsupportedExtension))
	assert.Equal(t, "plain", read(t, filepath.Join(root, "readme.md")))
}

func TestEncryptSkipsSymlink(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "target.txt"), "t")
	if err := os.Symlink("target.txt", filepath.Join(root, "link")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	p, rec := newTestProcessor(t, false, false)
	sum := p.ProcessPaths([]string{root}, "pw", config.Encrypt)

	assert.Equal(t, Summary{Succeeded: 1, Skipped: 1}, sum)
	var skipped []string
	for _, o := range rec.outcomes {
		if o.Skipped() {
			skipped = append(skipped, filepath.Base(o.Path))
		}
	}
	assert.Equal(t, []string{"link"}, skipped)
}

func TestDecryptRefusesExistingDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "notes.txt")
	write(t, src, "hello world")

	p, _ := newTestProcessor(t, false, false)
	enc, err := p.ProcessPath(src, "pw", config.Encrypt)
	require.NoError(t, err)

	write(t, src, "newer")
	_, err = p.ProcessPath(enc, "pw", config.Decrypt)
	assert.True(t, lerrors.Is(err, lerrors.ErrFileExists))
	assert.Equal(t, "newer", read(t, src))
	assert.FileExists(t, enc)
}

func TestRemoveMode(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "secret.txt")
	tree := filepath.Join(root, "tree")
	write(t, file, "s")
	write(t, filepath.Join(tree, "x", "y.txt"), "y")

	p, rec := newTestProcessor(t, true, false)
	sum := p.ProcessPaths([]string{file, tree}, "", config.Remove)

	assert.Equal(t, Summary{Succeeded: 2}, sum)
	assert.NoFileExists(t, file)
	assert.NoDirExists(t, tree)
	require.Len(t, rec.outcomes, 2)
	assert.Equal(t, int64(1), rec.outcomes[0].Size)
}

func TestMissingPathFails(t *testing.T) {
	p, rec := newTestProcessor(t, true, false)
	sum := p.ProcessPaths([]string{filepath.Join(t.TempDir(), "nope")}, "pw", config.Encrypt)

	assert.Equal(t, Summary{Failed: 1}, sum)
	assert.False(t, sum.OK())
	var fe *lerrors.FileError
	require.Len(t, rec.outcomes, 1)
	assert.True(t, lerrors.As(rec.outcomes[0].Err, &fe))
	assert.Equal(t, "io", lerrors.Kind(rec.outcomes[0].Err))
}

func TestBatchContinuesPastFailure(t *testing.T) {
	root := t.TempDir()
	good := filepath.Join(root, "good.txt")
	write(t, good, "g")

	p, _ := newTestProcessor(t, false, false)
	sum := p.ProcessPaths([]string{filepath.Join(root, "missing"), good}, "pw", config.Encrypt)

	assert.Equal(t, Summary{Succeeded: 1, Failed: 1}, sum)
	assert.FileExists(t, good+".lockit")
}

func TestCancellationStopsBatch(t *testing.T) {
	root := t.TempDir()
	for _, n := range []string{"a.txt", "b.txt", "c.txt"} {
		write(t, filepath.Join(root, n), n)
	}

	rec := &recorder{cancelAfter: 1}
	p := New(config.Defaults(), Options{Reporter: rec})
	sum := p.ProcessPaths([]string{root}, "pw", config.Encrypt)

	assert.True(t, sum.Cancelled)
	assert.False(t, sum.OK())
	assert.Equal(t, 1, sum.Succeeded)
	assert.ElementsMatch(t, []string{"a.txt.lockit", "b.txt", "c.txt"}, listDir(t, root))
}

func TestInvalidMode(t *testing.T) {
	src := filepath.Join(t.TempDir(), "f.txt")
	write(t, src, "f")

	p, _ := newTestProcessor(t, true, false)
	_, err := p.ProcessPath(src, "pw", config.Mode(42))
	assert.True(t, lerrors.Is(err, lerrors.ErrInvalidMode))
	assert.Equal(t, "f", read(t, src))
}

func TestSecureDelete(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "f.txt")
	write(t, file, "f")
	write(t, filepath.Join(root, "d", "g.txt"), "g")

	require.NoError(t, SecureDelete(file, false))
	require.NoError(t, SecureDelete(filepath.Join(root, "d"), true))
	assert.Empty(t, listDir(t, root))

	assert.Error(t, SecureDelete(file, false))
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.SkipOverwrite = true
	opts := OptionsFromConfig(cfg)
	assert.True(t, opts.EncryptNames)
	assert.True(t, opts.SkipOverwrite)
	assert.False(t, opts.ArchiveDirs)
}
