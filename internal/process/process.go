// Package process finds and starts the game process.
package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/rennerdo30/ys-launcher/internal/logging"
)

// ErrNotInstalled is returned when the executable to launch does not exist.
var ErrNotInstalled = errors.New("executable not found")

// processes is swapped out in tests.
var processes = process.ProcessesWithContext

// NormalizeName lower-cases and trims a process name and drops a trailing
// ".exe", so "YandereSimulator.exe" and "yanderesimulator" compare equal.
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.TrimSuffix(name, ".exe")
}

// Find returns the PIDs of all processes whose normalized name equals name.
func Find(ctx context.Context, name string) ([]int32, error) {
	want := NormalizeName(name)
	procs, err := processes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	var pids []int32
	for _, p := range procs {
		n, err := p.NameWithContext(ctx)
		if err != nil {
			// Processes exit while we iterate, and some are not ours to inspect.
			continue
		}
		if NormalizeName(n) == want {
			pids = append(pids, p.Pid)
		}
	}
	return pids, nil
}

// Exists reports whether a process named name is running. Enumeration errors
// are logged and reported as not running.
func Exists(ctx context.Context, name string) bool {
	pids, err := Find(ctx, name)
	if err != nil {
		logging.Debug("process lookup failed", "name", name, "error", err)
		return false
	}
	return len(pids) > 0
}

// Alive reports whether a process with the given PID exists.
func Alive(ctx context.Context, pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := process.PidExistsWithContext(ctx, int32(pid))
	return err == nil && ok
}

// IsInstalled reports whether the executable exists as a regular file.
func IsInstalled(exePath string) bool {
	info, err := os.Stat(exePath)
	return err == nil && info.Mode().IsRegular()
}

// Launch starts the executable without a shell and without waiting for it.
// The working directory is the executable's directory.
func Launch(exePath string, args ...string) (int, error) {
	if !IsInstalled(exePath) {
		return 0, fmt.Errorf("%w: %s", ErrNotInstalled, exePath)
	}

	abs, err := filepath.Abs(exePath)
	if err != nil {
		return 0, err
	}

	cmd := exec.Command(abs, args...)
	cmd.Dir = filepath.Dir(abs)
	cmd.SysProcAttr = detachedAttr()

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", abs, err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		logging.Warn("failed to release launched process", "pid", pid, "error", err)
	}

	logging.Info("launched", "path", abs, "pid", pid)
	return pid, nil
}
