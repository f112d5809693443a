package updater

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rennerdo30/ys-launcher/internal/logging"
	"github.com/rennerdo30/ys-launcher/internal/process"
)

// pidAlive is swapped out in tests.
var pidAlive = process.Alive

// unownedLockGrace is how long a lock file without a PID is honored. The
// owner creates the file and writes its PID in two steps.
const unownedLockGrace = 10 * time.Second

// installLock is an exclusive lock file holding the owner's PID.
type installLock struct {
	path string
}

// acquireLock creates the lock file. A lock whose owner is no longer running
// is reclaimed once. A lock without a readable PID is only reclaimed after
// unownedLockGrace.
func acquireLock(ctx context.Context, path string) (*installLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			_, werr := f.WriteString(strconv.Itoa(os.Getpid()))
			cerr := f.Close()
			if werr != nil || cerr != nil {
				os.Remove(path)
				return nil, fmt.Errorf("write lock file: %w", errors.Join(werr, cerr))
			}
			return &installLock{path: path}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}

		pid := readLockPID(path)
		if pid > 0 && pidAlive(ctx, pid) {
			return nil, fmt.Errorf("%w (pid %d)", ErrUpdateInProgress, pid)
		}
		if pid <= 0 {
			if info, err := os.Stat(path); err == nil && time.Since(info.ModTime()) < unownedLockGrace {
				return nil, fmt.Errorf("%w (lock file %s is being written)", ErrUpdateInProgress, path)
			}
		}
		logging.Warn("reclaiming stale update lock", "path", path, "pid", pid)
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale lock: %w", err)
		}
	}
	return nil, fmt.Errorf("%w: lock file %s keeps reappearing", ErrUpdateInProgress, path)
}

func readLockPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

// Release removes the lock file.
func (l *installLock) Release() {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Warn("failed to remove update lock", "path", l.path, "error", err)
	}
}
