//go:build !windows

package fsops

import (
	"io/fs"
	"os"
)

func isReparsePoint(path string, entry fs.DirEntry) bool {
	if entry != nil {
		return entry.Type()&fs.ModeSymlink != 0
	}
	info, err := os.Lstat(path)
	if err != nil {
		return false
	}
	return info.Mode()&fs.ModeSymlink != 0
}

// clearAttributes makes the file owner-writable, the closest thing to
// clearing the read-only attribute.
func clearAttributes(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	perm := info.Mode().Perm()
	if perm&0200 != 0 {
		return nil
	}
	return os.Chmod(path, perm|0200)
}
