package versioncheck

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rennerdo30/ys-launcher/internal/fetch"
	"github.com/rennerdo30/ys-launcher/internal/logging"
	"github.com/rennerdo30/ys-launcher/internal/metrics"
)

// Status is the outcome of a version check.
type Status string

const (
	// StatusUpdateAvailable means the remote build is newer.
	StatusUpdateAvailable Status = "update_available"
	// StatusUpToDate means the local build is current.
	StatusUpToDate Status = "up_to_date"
	// StatusUnknown means the remote version could not be determined.
	StatusUnknown Status = "unknown"
)

// Check targets.
const (
	TargetApp      = "app"
	TargetLauncher = "launcher"
)

// Result is the outcome of one version check.
type Result struct {
	Target string `json:"target"`
	Status Status `json:"status"`
	Remote string `json:"remote,omitempty"`
	Local  string `json:"local,omitempty"`
	// Err explains an unknown result; it is never surfaced as a failure.
	Err error `json:"-"`
}

// UpdateRequired applies the update rule to the result: a check whose local
// side is unknown requires an update even when the remote side is unknown too.
func (r Result) UpdateRequired() bool {
	if r.Target == TargetLauncher {
		return r.Status == StatusUpdateAvailable
	}
	return IsUpdateRequired(r.Remote, r.Local)
}

// Fetcher retrieves a remote text document.
type Fetcher interface {
	Fetch(ctx context.Context, url string) fetch.Result
}

// Config configures a Checker.
type Config struct {
	VersionURL         string
	LauncherVersionURL string
	MarkerPath         string
	// MinLatency is the minimum time a check takes, so a fast answer does not
	// flash past in the UI.
	MinLatency time.Duration
}

// Checker compares remote versions against the local installation.
type Checker struct {
	cfg     Config
	fetcher Fetcher
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewChecker creates a Checker. m may be nil.
func NewChecker(cfg Config, fetcher Fetcher, m *metrics.Metrics) *Checker {
	return &Checker{
		cfg:     cfg,
		fetcher: fetcher,
		metrics: m,
		logger:  logging.WithComponent("versioncheck"),
	}
}

// LocalVersion returns the installed version token, or "" when unknown.
func (c *Checker) LocalVersion() string {
	return ReadMarker(c.cfg.MarkerPath)
}

// RemoteVersion fetches the remote application version token.
func (c *Checker) RemoteVersion(ctx context.Context) (string, error) {
	res := c.fetcher.Fetch(ctx, c.cfg.VersionURL)
	return strings.TrimSpace(res.Text), res.Err
}

// CheckApp compares the remote application version with the version marker.
func (c *Checker) CheckApp(ctx context.Context) Result {
	res := Result{Target: TargetApp, Local: c.LocalVersion()}
	c.debounce(ctx, func(ctx context.Context) {
		res.Remote, res.Err = c.RemoteVersion(ctx)
	})

	if _, ok := ParseToken(res.Remote); !ok {
		res.Status = StatusUnknown
	} else if IsUpdateRequired(res.Remote, res.Local) {
		res.Status = StatusUpdateAvailable
	} else {
		res.Status = StatusUpToDate
	}
	c.record(res)
	return res
}

// CheckLauncher compares the remote launcher version with build.
func (c *Checker) CheckLauncher(ctx context.Context, build int) Result {
	res := Result{Target: TargetLauncher, Local: strconv.Itoa(build)}
	c.debounce(ctx, func(ctx context.Context) {
		r := c.fetcher.Fetch(ctx, c.cfg.LauncherVersionURL)
		res.Remote, res.Err = strings.TrimSpace(r.Text), r.Err
	})

	if _, ok := ParseToken(res.Remote); !ok {
		res.Status = StatusUnknown
	} else if IsLauncherUpdateRequired(res.Remote, build) {
		res.Status = StatusUpdateAvailable
	} else {
		res.Status = StatusUpToDate
	}
	c.record(res)
	return res
}

// CheckAll runs the application and launcher checks concurrently.
func (c *Checker) CheckAll(ctx context.Context, build int) (app, launcher Result) {
	var g errgroup.Group
	g.Go(func() error {
		app = c.CheckApp(ctx)
		return nil
	})
	g.Go(func() error {
		launcher = c.CheckLauncher(ctx, build)
		return nil
	})
	_ = g.Wait()
	return app, launcher
}

// debounce runs fn and waits until at least MinLatency has passed, unless ctx
// is cancelled first.
func (c *Checker) debounce(ctx context.Context, fn func(ctx context.Context)) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fn(gctx)
		return nil
	})
	g.Go(func() error {
		if c.cfg.MinLatency <= 0 {
			return nil
		}
		t := time.NewTimer(c.cfg.MinLatency)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
		}
		return nil
	})
	_ = g.Wait()
}

func (c *Checker) record(res Result) {
	c.metrics.RecordCheck(res.Target, string(res.Status))
	if res.Status == StatusUnknown {
		c.logger.Debug("version check inconclusive", "target", res.Target, "error", res.Err)
		return
	}
	c.logger.Debug("version check finished", "target", res.Target, "status", res.Status, "remote", res.Remote, "local", res.Local)
}
