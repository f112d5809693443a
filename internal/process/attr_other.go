//go:build !windows

package process

import "syscall"

// detachedAttr starts the game in its own process group so signals sent to
// the launcher do not reach it.
func detachedAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
