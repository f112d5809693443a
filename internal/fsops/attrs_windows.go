//go:build windows

package fsops

import (
	"io/fs"

	"golang.org/x/sys/windows"
)

// isReparsePoint reports whether path is a symlink, junction or other
// reparse point.
func isReparsePoint(path string, _ fs.DirEntry) bool {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return false
	}
	attrs, err := windows.GetFileAttributes(p)
	if err != nil {
		return false
	}
	return attrs&windows.FILE_ATTRIBUTE_REPARSE_POINT != 0
}

// clearAttributes resets read-only, hidden and system flags so the file can
// be overwritten or deleted.
func clearAttributes(path string) error {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}
	return windows.SetFileAttributes(p, windows.FILE_ATTRIBUTE_NORMAL)
}
