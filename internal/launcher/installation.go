package launcher

import (
	"context"

	"github.com/rennerdo30/ys-launcher/internal/config"
	"github.com/rennerdo30/ys-launcher/internal/process"
	"github.com/rennerdo30/ys-launcher/internal/versioncheck"
)

// Installation is the locally installed game.
type Installation struct {
	Executable  string
	ProcessName string
	VersionFile string
}

// NewInstallation resolves the installation described by cfg.
func NewInstallation(cfg *config.LauncherConfig) *Installation {
	return &Installation{
		Executable:  cfg.Path(cfg.Install.Executable),
		ProcessName: cfg.Install.ProcessName,
		VersionFile: cfg.Path(cfg.Install.VersionFile),
	}
}

// Installed reports whether the game executable exists.
func (i *Installation) Installed() bool {
	return process.IsInstalled(i.Executable)
}

// Running reports whether the game process is running.
func (i *Installation) Running(ctx context.Context) bool {
	return process.Exists(ctx, i.ProcessName)
}

// LocalVersion returns the installed version token, or "" when unknown.
func (i *Installation) LocalVersion() string {
	return versioncheck.ReadMarker(i.VersionFile)
}

// Launch starts the game and returns its PID.
func (i *Installation) Launch() (int, error) {
	return process.Launch(i.Executable)
}
