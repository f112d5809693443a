// Package updater downloads the game archive and replaces the local
// installation while carrying user content across the replacement.
package updater

import (
	"errors"

	"github.com/rennerdo30/ys-launcher/internal/fetch"
)

var (
	// ErrServiceNotFound indicates the service directory has no usable entry
	// for the file host.
	ErrServiceNotFound = fetch.ErrServiceNotFound

	// ErrCannotLogin indicates the hosting session never authenticated.
	ErrCannotLogin = errors.New("cannot log in to file host")

	// ErrCannotConnect indicates node resolution or the transfer failed after
	// the session was opened.
	ErrCannotConnect = errors.New("cannot connect to file host")

	// ErrNoRemoteVersion indicates the remote version could not be determined.
	ErrNoRemoteVersion = errors.New("remote version unavailable")

	// ErrUpdateInProgress indicates another update holds the install lock.
	ErrUpdateInProgress = errors.New("update already in progress")

	// ErrBackupIncomplete indicates preserved content could not be staged and
	// strict backup mode refused to wipe the installation.
	ErrBackupIncomplete = errors.New("backup of preserved content incomplete")

	// ErrUnpackFailed indicates the archive could not be extracted.
	ErrUnpackFailed = errors.New("unpack failed")

	// ErrEmptyArchive indicates the archive holds no files.
	ErrEmptyArchive = errors.New("archive contains no files")

	// ErrUnsafeArchive indicates an archive entry would escape the target.
	ErrUnsafeArchive = errors.New("archive entry escapes destination")
)
