package fsops

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errLocked = errors.New("file is locked by another process")

// writeTree creates files (relative path -> content) below root.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
}

// lockPaths makes removeEntry and copyEntry fail for the given paths.
func lockPaths(t *testing.T, locked ...string) {
	t.Helper()
	set := make(map[string]bool, len(locked))
	for _, p := range locked {
		set[filepath.Clean(p)] = true
	}

	origRemove, origCopy := removeEntry, copyEntry
	removeEntry = func(name string) error {
		if set[filepath.Clean(name)] {
			return errLocked
		}
		return origRemove(name)
	}
	copyEntry = func(src, dst string) error {
		if set[filepath.Clean(src)] {
			return errLocked
		}
		return origCopy(src, dst)
	}
	t.Cleanup(func() {
		removeEntry, copyEntry = origRemove, origCopy
	})
}

func TestDeleteTree_RemovesEverything(t *testing.T) {
	root := filepath.Join(t.TempDir(), "install")
	writeTree(t, root, map[string]string{
		"game.exe":               "bin",
		"Data/level1.assets":     "a",
		"Data/Nested/deep.json":  "{}",
		"Data/Nested/Other/x.md": "x",
	})

	r := DeleteTree(root)

	assert.True(t, r.OK(), "unexpected failures: %v", r.Err())
	assert.NoError(t, r.Err())
	assert.NoDirExists(t, root)
	// 4 files + 4 directories (root, Data, Nested, Other)
	assert.Equal(t, 8, r.Succeeded)
}

func TestDeleteTree_ReadOnlyFile(t *testing.T) {
	root := filepath.Join(t.TempDir(), "install")
	writeTree(t, root, map[string]string{"readonly.txt": "r"})
	require.NoError(t, os.Chmod(filepath.Join(root, "readonly.txt"), 0444))

	r := DeleteTree(root)

	assert.True(t, r.OK(), "unexpected failures: %v", r.Err())
	assert.NoDirExists(t, root)
}

func TestDeleteTree_ContinuesPastLockedFile(t *testing.T) {
	root := filepath.Join(t.TempDir(), "install")
	writeTree(t, root, map[string]string{
		"a.txt":          "a",
		"Locked/held.db": "held",
		"Locked/b.txt":   "b",
		"Other/c.txt":    "c",
		"z.txt":          "z",
	})
	held := filepath.Join(root, "Locked", "held.db")
	lockPaths(t, held)

	r := DeleteTree(root)

	assert.False(t, r.OK())
	assert.FileExists(t, held)
	for _, gone := range []string{"a.txt", "z.txt", "Other", filepath.Join("Locked", "b.txt")} {
		assert.NoFileExists(t, filepath.Join(root, gone))
		assert.NoDirExists(t, filepath.Join(root, gone))
	}
	// the held file plus the two directories that could not be emptied
	assert.ElementsMatch(t, []string{held, filepath.Join(root, "Locked"), root}, r.FailedPaths())
	assert.ErrorIs(t, r.Err(), errLocked)
}

func TestDeleteTree_MissingPath(t *testing.T) {
	r := DeleteTree(filepath.Join(t.TempDir(), "does-not-exist"))

	assert.False(t, r.OK())
	require.Len(t, r.Failures, 1)
	assert.ErrorIs(t, r.Failures[0].Err, os.ErrNotExist)
}

func TestDeleteTree_SkipsSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation needs elevated privileges on Windows")
	}
	base := t.TempDir()
	outside := filepath.Join(base, "outside")
	writeTree(t, outside, map[string]string{"keep.txt": "keep"})

	root := filepath.Join(base, "install")
	writeTree(t, root, map[string]string{"a.txt": "a"})
	link := filepath.Join(root, "link")
	require.NoError(t, os.Symlink(outside, link))

	r := DeleteTree(root)

	assert.Equal(t, []string{link}, r.Skipped)
	assert.FileExists(t, filepath.Join(outside, "keep.txt"))
	assert.NoFileExists(t, filepath.Join(root, "a.txt"))
	// the skipped link keeps the root from being removed
	assert.ElementsMatch(t, []string{root}, r.FailedPaths())
}

func TestCopyTree_CopiesEverything(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	dst := filepath.Join(base, "dst", "nested")
	files := map[string]string{
		"Custom.json":            `{"a":1}`,
		"CustomMode/pack/a.png":  "png",
		"CustomMode/pack/b.json": "b",
	}
	writeTree(t, src, files)

	r := CopyTree(src, dst)

	assert.True(t, r.OK(), "unexpected failures: %v", r.Err())
	assert.Equal(t, 3, r.Succeeded)
	for rel, content := range files {
		data, err := os.ReadFile(filepath.Join(dst, filepath.FromSlash(rel)))
		require.NoError(t, err)
		assert.Equal(t, content, string(data))
	}
	// source untouched
	assert.FileExists(t, filepath.Join(src, "Custom.json"))
}

func TestCopyTree_OverwritesReadOnlyDestination(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	dst := filepath.Join(base, "dst")
	writeTree(t, src, map[string]string{"Misc.json": "new"})
	writeTree(t, dst, map[string]string{"Misc.json": "old"})
	require.NoError(t, os.Chmod(filepath.Join(dst, "Misc.json"), 0444))

	r := CopyTree(src, dst)

	assert.True(t, r.OK(), "unexpected failures: %v", r.Err())
	data, err := os.ReadFile(filepath.Join(dst, "Misc.json"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestCopyTree_MissingSource(t *testing.T) {
	base := t.TempDir()
	dst := filepath.Join(base, "dst")

	r := CopyTree(filepath.Join(base, "missing"), dst)

	assert.False(t, r.OK())
	assert.ErrorIs(t, r.Err(), ErrSourceMissing)
	assert.Zero(t, r.Succeeded)
	assert.NoDirExists(t, dst, "a refused copy must not create the destination")
}

func TestCopyTree_ContinuesPastUnreadableFile(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	dst := filepath.Join(base, "dst")
	writeTree(t, src, map[string]string{
		"a.txt":         "a",
		"Sub/bad.bin":   "bad",
		"Sub/good.txt":  "good",
		"Sub2/more.txt": "more",
	})
	bad := filepath.Join(src, "Sub", "bad.bin")
	lockPaths(t, bad)

	r := CopyTree(src, dst)

	assert.False(t, r.OK())
	assert.Equal(t, []string{bad}, r.FailedPaths())
	assert.Equal(t, 3, r.Succeeded)
	assert.FileExists(t, filepath.Join(dst, "a.txt"))
	assert.FileExists(t, filepath.Join(dst, "Sub", "good.txt"))
	assert.FileExists(t, filepath.Join(dst, "Sub2", "more.txt"))
	assert.NoFileExists(t, filepath.Join(dst, "Sub", "bad.bin"))
}

func TestCopyTree_UnreadableFilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced here")
	}
	base := t.TempDir()
	src := filepath.Join(base, "src")
	dst := filepath.Join(base, "dst")
	writeTree(t, src, map[string]string{"secret.bin": "s", "open.txt": "o"})
	require.NoError(t, os.Chmod(filepath.Join(src, "secret.bin"), 0000))

	r := CopyTree(src, dst)

	assert.False(t, r.OK())
	assert.FileExists(t, filepath.Join(dst, "open.txt"))
}

func TestMovePath(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "install", "Data", "CustomMode")
	writeTree(t, src, map[string]string{"mod.json": "m"})
	file := filepath.Join(base, "install", "Data", "Custom.json")
	writeTree(t, filepath.Dir(file), map[string]string{"Custom.json": "c"})

	dst := filepath.Join(base, "staging", "Data", "CustomMode")
	require.NoError(t, MovePath(src, dst))
	assert.NoDirExists(t, src)
	assert.FileExists(t, filepath.Join(dst, "mod.json"))

	fileDst := filepath.Join(base, "staging", "Data", "Custom.json")
	require.NoError(t, MovePath(file, fileDst))
	assert.NoFileExists(t, file)
	assert.FileExists(t, fileDst)

	err := MovePath(filepath.Join(base, "nothing"), filepath.Join(base, "elsewhere"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReport(t *testing.T) {
	var r Report
	assert.True(t, r.OK())
	assert.NoError(t, r.Err())

	r.Succeeded = 2
	r.fail("/a", errLocked)
	other := Report{Succeeded: 1, Skipped: []string{"/link"}}
	other.fail("/b", os.ErrPermission)
	r.Merge(other)

	assert.Equal(t, 3, r.Succeeded)
	assert.Equal(t, []string{"/link"}, r.Skipped)
	assert.Equal(t, []string{"/a", "/b"}, r.FailedPaths())

	err := r.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, errLocked)
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.Contains(t, err.Error(), "2 entries failed")
}

func TestExistsAndIsDir(t *testing.T) {
	base := t.TempDir()
	writeTree(t, base, map[string]string{"f.txt": "f"})

	assert.True(t, Exists(filepath.Join(base, "f.txt")))
	assert.False(t, IsDir(filepath.Join(base, "f.txt")))
	assert.True(t, IsDir(base))
	assert.False(t, Exists(filepath.Join(base, "nope")))
}
