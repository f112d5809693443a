package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/rennerdo30/ys-launcher/internal/logging"
	"github.com/rennerdo30/ys-launcher/internal/ratelimit"
)

// LauncherConfig is the main configuration for the launcher.
type LauncherConfig struct {
	Install InstallConfig  `yaml:"install" json:"install"`
	Remote  RemoteConfig   `yaml:"remote" json:"remote"`
	Check   CheckConfig    `yaml:"check" json:"check"`
	Logging logging.Config `yaml:"logging" json:"logging"`
	Metrics MetricsConfig  `yaml:"metrics" json:"metrics"`
	API     APIConfig      `yaml:"api" json:"api"`
}

// InstallConfig describes the on-disk layout. Every path except the
// preserved paths is relative to BaseDir; preserved paths are relative to Root.
type InstallConfig struct {
	BaseDir        string   `yaml:"base_dir" json:"base_dir"`
	Root           string   `yaml:"root" json:"root"`
	Executable     string   `yaml:"executable" json:"executable"`
	ProcessName    string   `yaml:"process_name" json:"process_name"`
	StagingDir     string   `yaml:"staging_dir" json:"staging_dir"`
	VersionFile    string   `yaml:"version_file" json:"version_file"`
	ArchiveFile    string   `yaml:"archive_file" json:"archive_file"`
	StateFile      string   `yaml:"state_file" json:"state_file"`
	LockFile       string   `yaml:"lock_file" json:"lock_file"`
	PreservedDirs  []string `yaml:"preserved_dirs" json:"preserved_dirs"`
	PreservedFiles []string `yaml:"preserved_files" json:"preserved_files"`

	// StrictBackup aborts an update before the wipe when a preserved
	// path could not be staged.
	StrictBackup bool `yaml:"strict_backup" json:"strict_backup"`
}

// RemoteConfig contains the remote documents the launcher consults.
// URLs may be given with or without a scheme; fetches always try https first.
type RemoteConfig struct {
	VersionURL          string   `yaml:"version_url" json:"version_url"`
	LauncherVersionURL  string   `yaml:"launcher_version_url" json:"launcher_version_url"`
	ServiceDirectoryURL string   `yaml:"service_directory_url" json:"service_directory_url"`
	ServiceToken        string   `yaml:"service_token" json:"service_token"`
	Timeout             Duration `yaml:"timeout" json:"timeout"`
	ProxyURL            string   `yaml:"proxy_url,omitempty" json:"proxy_url,omitempty"`
	UserAgent           string   `yaml:"user_agent,omitempty" json:"user_agent,omitempty"`
	// MaxDownloadRate limits archive downloads, e.g. "20Mbps" or "2MB/s".
	MaxDownloadRate string `yaml:"max_download_rate,omitempty" json:"max_download_rate,omitempty"`
}

// CheckConfig contains version check settings.
type CheckConfig struct {
	MinLatency Duration `yaml:"min_latency" json:"min_latency"`
}

// MetricsConfig contains metrics export settings.
type MetricsConfig struct {
	Textfile string `yaml:"textfile,omitempty" json:"textfile,omitempty"`
}

// APIConfig contains settings for the local status API.
type APIConfig struct {
	Listen string `yaml:"listen" json:"listen"`
	Token  string `yaml:"token,omitempty" json:"token,omitempty"`
}

// DefaultLauncherConfig returns a launcher configuration with the stock layout.
func DefaultLauncherConfig() LauncherConfig {
	return LauncherConfig{
		Install: InstallConfig{
			BaseDir:     ".",
			Root:        "YandereSimulator",
			Executable:  "YandereSimulator/YandereSimulator.exe",
			ProcessName: "yanderesimulator",
			StagingDir:  "Temp",
			VersionFile: "YandereSimulator/GameVersion.txt",
			ArchiveFile: "YandereSimulator.zip",
			StateFile:   "update-state.json",
			LockFile:    "update.lock",
			PreservedDirs: []string{
				"YandereSimulator_Data/StreamingAssets/CustomMode",
				"YandereSimulator_Data/StreamingAssets/PortraitsCustom",
			},
			PreservedFiles: []string{
				"YandereSimulator_Data/StreamingAssets/JSON/Custom.json",
				"YandereSimulator_Data/StreamingAssets/JSON/CustomTopics.json",
				"YandereSimulator_Data/StreamingAssets/JSON/Misc.json",
			},
		},
		Remote: RemoteConfig{
			VersionURL:          "www.yanderesimulator.com/version.txt",
			LauncherVersionURL:  "www.yanderesimulator.com/launcherversion.txt",
			ServiceDirectoryURL: "www.yanderesimulator.com/urls.txt",
			ServiceToken:        "mega.nz",
			Timeout:             Duration(30 * time.Second),
		},
		Check: CheckConfig{
			MinLatency: Duration(500 * time.Millisecond),
		},
		Logging: logging.DefaultConfig(),
		API: APIConfig{
			Listen: "127.0.0.1:7390",
		},
	}
}

// Validate validates the launcher configuration.
func (c *LauncherConfig) Validate() error {
	in := c.Install
	required := map[string]string{
		"install.root":         in.Root,
		"install.executable":   in.Executable,
		"install.staging_dir":  in.StagingDir,
		"install.version_file": in.VersionFile,
		"install.archive_file": in.ArchiveFile,
		"install.state_file":   in.StateFile,
		"install.lock_file":    in.LockFile,
	}
	for name, value := range required {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if c.Path(in.Root) == c.Path(in.StagingDir) {
		return fmt.Errorf("install.staging_dir must differ from install.root")
	}
	if isWithin(c.Path(in.Root), c.Path(in.StagingDir)) {
		return fmt.Errorf("install.staging_dir must not live inside install.root")
	}
	for _, p := range []string{in.StateFile, in.LockFile, in.ArchiveFile} {
		if isWithin(c.Path(in.Root), c.Path(p)) {
			return fmt.Errorf("%s must not live inside install.root", p)
		}
	}

	for _, p := range append(append([]string{}, in.PreservedDirs...), in.PreservedFiles...) {
		if err := validateRelative(p); err != nil {
			return fmt.Errorf("preserved path %q: %w", p, err)
		}
	}

	if c.Remote.VersionURL == "" {
		return fmt.Errorf("remote.version_url is required")
	}
	if c.Remote.ServiceDirectoryURL == "" {
		return fmt.Errorf("remote.service_directory_url is required")
	}
	if c.Remote.ServiceToken == "" {
		return fmt.Errorf("remote.service_token is required")
	}
	if c.Remote.Timeout.Duration() <= 0 {
		return fmt.Errorf("remote.timeout must be positive")
	}
	if c.Remote.ProxyURL != "" {
		if _, err := url.Parse(c.Remote.ProxyURL); err != nil {
			return fmt.Errorf("remote.proxy_url: %w", err)
		}
	}
	if _, err := ratelimit.ParseBandwidth(c.Remote.MaxDownloadRate); err != nil {
		return fmt.Errorf("remote.max_download_rate: %w", err)
	}
	if c.Check.MinLatency.Duration() < 0 {
		return fmt.Errorf("check.min_latency must be non-negative")
	}

	return nil
}

// Path resolves a base-relative path from the install section.
func (c *LauncherConfig) Path(p string) string {
	p = filepath.FromSlash(p)
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	base := c.Install.BaseDir
	if base == "" {
		base = "."
	}
	return filepath.Join(base, p)
}

func validateRelative(p string) error {
	if strings.TrimSpace(p) == "" {
		return fmt.Errorf("empty path")
	}
	native := filepath.FromSlash(p)
	if filepath.IsAbs(native) {
		return fmt.Errorf("must be relative to install.root")
	}
	clean := filepath.Clean(native)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("must stay inside install.root")
	}
	return nil
}

func isWithin(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "."
}
