package process

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// detachedAttr starts the game in its own process group so console signals
// sent to the launcher do not reach it.
func detachedAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP,
	}
}
