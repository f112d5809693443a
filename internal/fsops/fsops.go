package fsops

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Entry-level primitives, swapped out in tests to simulate locked files.
var (
	removeEntry = os.Remove
	copyEntry   = copyFile
)

// DeleteTree deletes every file and subdirectory below path and then path
// itself. Symlinks and reparse points are skipped, which leaves their parent
// directories in place. Failures are recorded and traversal continues.
func DeleteTree(path string) Report {
	var r Report
	deleteTree(path, &r)
	return r
}

func deleteTree(path string, r *Report) {
	entries, err := os.ReadDir(path)
	if err != nil {
		r.fail(path, err)
		return
	}

	var dirs []string
	for _, entry := range entries {
		child := filepath.Join(path, entry.Name())
		if isReparsePoint(child, entry) {
			r.skip(child)
			continue
		}
		if entry.IsDir() {
			dirs = append(dirs, child)
			continue
		}
		if err := clearAttributes(child); err != nil {
			r.fail(child, err)
			continue
		}
		if err := removeEntry(child); err != nil {
			r.fail(child, err)
			continue
		}
		r.Succeeded++
	}

	for _, dir := range dirs {
		deleteTree(dir, r)
	}

	if err := removeEntry(path); err != nil {
		r.fail(path, err)
		return
	}
	r.Succeeded++
}

// CopyTree copies the directory from onto to, creating to when needed and
// overwriting existing files. A missing source is refused outright with
// ErrSourceMissing and nothing is created. Otherwise every entry is attempted.
func CopyTree(from, to string) Report {
	var r Report

	info, err := os.Stat(from)
	if err != nil || !info.IsDir() {
		if err == nil {
			err = fmt.Errorf("not a directory")
		}
		r.fail(from, fmt.Errorf("%w: %v", ErrSourceMissing, err))
		return r
	}

	copyTree(from, to, &r)
	return r
}

func copyTree(from, to string, r *Report) {
	if err := os.MkdirAll(to, 0755); err != nil {
		r.fail(to, err)
		return
	}

	entries, err := os.ReadDir(from)
	if err != nil {
		r.fail(from, err)
		return
	}

	var dirs []string
	for _, entry := range entries {
		src := filepath.Join(from, entry.Name())
		if isReparsePoint(src, entry) {
			r.skip(src)
			continue
		}
		if entry.IsDir() {
			dirs = append(dirs, entry.Name())
			continue
		}

		dst := filepath.Join(to, entry.Name())
		if err := clearAttributes(src); err != nil {
			r.fail(src, err)
			continue
		}
		if _, err := os.Lstat(dst); err == nil {
			if err := clearAttributes(dst); err != nil {
				r.fail(dst, err)
				continue
			}
		}
		if err := copyEntry(src, dst); err != nil {
			r.fail(src, err)
			continue
		}
		r.Succeeded++
	}

	for _, name := range dirs {
		copyTree(filepath.Join(from, name), filepath.Join(to, name), r)
	}
}

// MovePath moves a file or directory to dst, creating dst's parent
// directories. When a plain rename is not possible (for example across
// volumes) it falls back to a best-effort copy followed by a delete.
func MovePath(src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	renameErr := os.Rename(src, dst)
	if renameErr == nil {
		return nil
	}

	if !info.IsDir() {
		if err := copyEntry(src, dst); err != nil {
			return fmt.Errorf("move %s: rename: %v; copy: %w", src, renameErr, err)
		}
		if err := removeEntry(src); err != nil {
			return fmt.Errorf("move %s: remove source: %w", src, err)
		}
		return nil
	}

	report := CopyTree(src, dst)
	if !report.OK() {
		return fmt.Errorf("move %s: rename: %v; copy: %w", src, renameErr, report.Err())
	}
	if report := DeleteTree(src); !report.OK() {
		return fmt.Errorf("move %s: remove source: %w", src, report.Err())
	}
	return nil
}

// Exists reports whether anything (file, directory or link) exists at path.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// IsDir reports whether path is an existing directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
