// Package launcher wires configuration, version checks, the updater and
// process control into the operations exposed by the CLI and the local API.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rennerdo30/ys-launcher/internal/config"
	"github.com/rennerdo30/ys-launcher/internal/fetch"
	"github.com/rennerdo30/ys-launcher/internal/hosting"
	"github.com/rennerdo30/ys-launcher/internal/logging"
	"github.com/rennerdo30/ys-launcher/internal/metrics"
	"github.com/rennerdo30/ys-launcher/internal/process"
	"github.com/rennerdo30/ys-launcher/internal/ratelimit"
	"github.com/rennerdo30/ys-launcher/internal/updater"
	"github.com/rennerdo30/ys-launcher/internal/version"
	"github.com/rennerdo30/ys-launcher/internal/versioncheck"
)

var (
	// ErrGameRunning is returned when an operation needs the game closed.
	ErrGameRunning = errors.New("game is running")

	// ErrNotInstalled is returned when launching a missing installation.
	ErrNotInstalled = process.ErrNotInstalled
)

// Status summarizes the local installation.
type Status struct {
	Installed     bool           `json:"installed"`
	Running       bool           `json:"running"`
	LocalVersion  string         `json:"local_version,omitempty"`
	Executable    string         `json:"executable"`
	LauncherBuild int            `json:"launcher_build"`
	LastUpdate    *updater.State `json:"last_update,omitempty"`
}

// PlayResult describes what Play did.
type PlayResult struct {
	Check   versioncheck.Result `json:"check"`
	Updated bool                `json:"updated"`
	Update  *updater.Result     `json:"update,omitempty"`
	PID     int                 `json:"pid"`
}

// Option customizes an App.
type Option func(*options)

type options struct {
	host      hosting.Client
	extractor updater.Extractor
	metrics   *metrics.Metrics
}

// WithHost replaces the direct-link file host.
func WithHost(h hosting.Client) Option {
	return func(o *options) { o.host = h }
}

// WithExtractor replaces the archive extractor.
func WithExtractor(e updater.Extractor) Option {
	return func(o *options) { o.extractor = e }
}

// WithMetrics uses m instead of a fresh registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// App is the assembled launcher.
type App struct {
	Config  *config.LauncherConfig
	Metrics *metrics.Metrics
	Fetcher *fetch.Client
	Checker *versioncheck.Checker
	Updater *updater.Updater
	Install *Installation

	logger *slog.Logger
}

// New assembles an App from cfg.
func New(cfg *config.LauncherConfig, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = metrics.New()
	}

	downloadRate, err := ratelimit.ParseBandwidth(cfg.Remote.MaxDownloadRate)
	if err != nil {
		return nil, fmt.Errorf("parse download rate: %w", err)
	}
	userAgent := cfg.Remote.UserAgent
	if userAgent == "" {
		userAgent = version.UserAgent()
	}
	fetcher, err := fetch.New(fetch.Config{
		Timeout:         cfg.Remote.Timeout.Duration(),
		UserAgent:       userAgent,
		ProxyURL:        cfg.Remote.ProxyURL,
		MaxDownloadRate: downloadRate,
	})
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}
	if o.host == nil {
		o.host = hosting.NewHTTPClient(fetcher)
	}

	install := NewInstallation(cfg)
	checker := versioncheck.NewChecker(versioncheck.Config{
		VersionURL:         cfg.Remote.VersionURL,
		LauncherVersionURL: cfg.Remote.LauncherVersionURL,
		MarkerPath:         install.VersionFile,
		MinLatency:         cfg.Check.MinLatency.Duration(),
	}, fetcher, o.metrics)

	upd, err := updater.New(updater.Options{
		Paths:               updater.PathsFromConfig(cfg),
		ServiceDirectoryURL: cfg.Remote.ServiceDirectoryURL,
		ServiceToken:        cfg.Remote.ServiceToken,
		Versions:            checker,
		Resolver:            fetcher,
		Host:                o.host,
		Extractor:           o.extractor,
		Metrics:             o.metrics,
		StrictBackup:        cfg.Install.StrictBackup,
	})
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:  cfg,
		Metrics: o.metrics,
		Fetcher: fetcher,
		Checker: checker,
		Updater: upd,
		Install: install,
		logger:  logging.WithComponent("launcher"),
	}
	if downloadRate > 0 {
		app.logger.Info("download bandwidth limited", "rate", ratelimit.FormatBandwidth(downloadRate))
	}
	return app, nil
}

// Status reports the state of the installation.
func (a *App) Status(ctx context.Context) Status {
	st := Status{
		Installed:     a.Install.Installed(),
		Running:       a.Install.Running(ctx),
		LocalVersion:  a.Install.LocalVersion(),
		Executable:    a.Install.Executable,
		LauncherBuild: version.BuildNumber(),
	}
	state, err := a.Updater.State()
	if err != nil {
		a.logger.Warn("unreadable update state", "error", err)
	}
	st.LastUpdate = state
	return st
}

// Check compares the game and launcher against their remote versions.
func (a *App) Check(ctx context.Context) (app, launcher versioncheck.Result) {
	app, launcher = a.Checker.CheckAll(ctx, version.BuildNumber())
	a.FlushMetrics()
	return app, launcher
}

// Update runs an update cycle. It refuses to touch a running game.
func (a *App) Update(ctx context.Context, cb updater.Callbacks) (*updater.Result, error) {
	if a.Install.Running(ctx) {
		return nil, ErrGameRunning
	}
	defer a.FlushMetrics()
	return a.Updater.DownloadAndInstall(ctx, cb)
}

// Launch starts the game unless it is already running.
func (a *App) Launch(ctx context.Context) (int, error) {
	if a.Install.Running(ctx) {
		return 0, ErrGameRunning
	}
	return a.Install.Launch()
}

// Play updates the game when the remote build is newer and then launches
// it. A check that cannot reach the server launches the installed build.
func (a *App) Play(ctx context.Context, cb updater.Callbacks) (PlayResult, error) {
	var res PlayResult
	if a.Install.Running(ctx) {
		return res, ErrGameRunning
	}

	res.Check = a.Checker.CheckApp(ctx)
	needUpdate := res.Check.UpdateRequired()
	if res.Check.Status == versioncheck.StatusUnknown && a.Install.Installed() {
		a.logger.Warn("version check failed, launching installed build", "error", res.Check.Err)
		needUpdate = false
	}

	if needUpdate {
		upd, err := a.Update(ctx, cb)
		res.Update = upd
		if err != nil {
			return res, err
		}
		res.Updated = true
	}

	pid, err := a.Launch(ctx)
	if err != nil {
		return res, err
	}
	res.PID = pid
	return res, nil
}

// FlushMetrics writes the metrics textfile when one is configured.
func (a *App) FlushMetrics() {
	if err := a.Metrics.WriteTextfile(a.Config.Metrics.Textfile); err != nil {
		a.logger.Warn("failed to write metrics textfile", "path", a.Config.Metrics.Textfile, "error", err)
	}
}

// Collector returns a collector publishing installation gauges.
func (a *App) Collector() *metrics.Collector {
	return metrics.NewCollector(a.Metrics, a.Install, 0)
}
