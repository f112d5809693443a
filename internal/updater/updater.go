package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/rennerdo30/ys-launcher/internal/config"
	"github.com/rennerdo30/ys-launcher/internal/fsops"
	"github.com/rennerdo30/ys-launcher/internal/hosting"
	"github.com/rennerdo30/ys-launcher/internal/logging"
	"github.com/rennerdo30/ys-launcher/internal/metrics"
	"github.com/rennerdo30/ys-launcher/internal/versioncheck"
)

// Paths locates everything an update cycle touches. Preserved paths are
// relative to Root; everything else is absolute or relative to the working
// directory.
type Paths struct {
	Root           string
	StagingDir     string
	VersionFile    string
	ArchiveFile    string
	StateFile      string
	LockFile       string
	PreservedDirs  []string
	PreservedFiles []string
}

// PathsFromConfig resolves the install section of cfg.
func PathsFromConfig(cfg *config.LauncherConfig) Paths {
	in := cfg.Install
	return Paths{
		Root:           cfg.Path(in.Root),
		StagingDir:     cfg.Path(in.StagingDir),
		VersionFile:    cfg.Path(in.VersionFile),
		ArchiveFile:    cfg.Path(in.ArchiveFile),
		StateFile:      cfg.Path(in.StateFile),
		LockFile:       cfg.Path(in.LockFile),
		PreservedDirs:  append([]string(nil), in.PreservedDirs...),
		PreservedFiles: append([]string(nil), in.PreservedFiles...),
	}
}

// VersionSource provides the remote version token.
type VersionSource interface {
	RemoteVersion(ctx context.Context) (string, error)
}

// ServiceResolver maps a service token to its URL through a service directory.
type ServiceResolver interface {
	ResolveServiceURL(ctx context.Context, indirectionURL, token string) (string, error)
}

// Options configures an Updater.
type Options struct {
	Paths               Paths
	ServiceDirectoryURL string
	ServiceToken        string

	Versions  VersionSource
	Resolver  ServiceResolver
	Host      hosting.Client
	Extractor Extractor
	Metrics   *metrics.Metrics

	// StrictBackup refuses to wipe the installation when any preserved path
	// could not be staged.
	StrictBackup bool

	Now func() time.Time
}

// Callbacks receive progress of an update cycle. Both are optional.
type Callbacks struct {
	Progress ProgressFunc
	// UnpackStarting is called once, right before extraction.
	UnpackStarting func()
}

// Result describes a completed update cycle.
type Result struct {
	RemoteVersion string `json:"remote_version"`

	// BackupSkipped is set when a staging area from an earlier cycle was found
	// and left untouched.
	BackupSkipped bool `json:"backup_skipped"`
	// BackupResumed is set when an interrupted staging step was continued.
	BackupResumed bool `json:"backup_resumed"`
	// BackupRefreshed is set when a staging area kept by an incomplete
	// restore was updated from the root before the wipe.
	BackupRefreshed bool `json:"backup_refreshed"`

	Backup  fsops.Report `json:"backup"`
	Wipe    fsops.Report `json:"wipe"`
	Restore fsops.Report `json:"restore"`
	Cleanup fsops.Report `json:"cleanup"`

	// Restored is set when a staging area was copied back onto the root.
	Restored bool `json:"restored"`
	// StagingKept is set when restoration failed partially. The staging area
	// is kept and the phase is left at restore_pending for the next cycle.
	StagingKept    bool `json:"staging_kept"`
	ArchiveRemoved bool `json:"archive_removed"`

	Duration time.Duration `json:"duration"`
}

// Clean reports whether every best-effort step fully succeeded.
func (r *Result) Clean() bool {
	return r.Backup.OK() && r.Wipe.OK() && r.Restore.OK() && r.Cleanup.OK() &&
		r.ArchiveRemoved && !r.StagingKept
}

// Err aggregates the partial failures of the cycle, or returns nil.
func (r *Result) Err() error {
	var result *multierror.Error
	for _, step := range []struct {
		name   string
		report fsops.Report
	}{
		{"backup", r.Backup},
		{"wipe", r.Wipe},
		{"restore", r.Restore},
		{"cleanup", r.Cleanup},
	} {
		if err := step.report.Err(); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", step.name, err))
		}
	}
	if !r.ArchiveRemoved {
		result = multierror.Append(result, errors.New("downloaded archive was not removed"))
	}
	return result.ErrorOrNil()
}

// movePath is replaced in tests.
var movePath = fsops.MovePath

// Updater replaces the local installation with the remote build.
type Updater struct {
	opts      Options
	resolver  ServiceResolver
	host      hosting.Client
	extractor Extractor
	logger    *slog.Logger

	// mu serializes cycles within one process; the lock file covers others.
	mu sync.Mutex
}

// New creates an Updater.
func New(opts Options) (*Updater, error) {
	p := opts.Paths
	switch {
	case p.Root == "":
		return nil, errors.New("updater: install root is required")
	case p.StagingDir == "":
		return nil, errors.New("updater: staging directory is required")
	case p.VersionFile == "":
		return nil, errors.New("updater: version file is required")
	case p.ArchiveFile == "":
		return nil, errors.New("updater: archive file is required")
	case opts.Versions == nil:
		return nil, errors.New("updater: version source is required")
	case opts.Resolver == nil:
		return nil, errors.New("updater: service resolver is required")
	case opts.Host == nil:
		return nil, errors.New("updater: hosting client is required")
	}

	if opts.Extractor == nil {
		opts.Extractor = ArchiveExtractor{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Paths.StateFile == "" {
		opts.Paths.StateFile = filepath.Join(filepath.Dir(p.ArchiveFile), "update-state.json")
	}
	if opts.Paths.LockFile == "" {
		opts.Paths.LockFile = filepath.Join(filepath.Dir(p.ArchiveFile), "update.lock")
	}

	return &Updater{
		opts:      opts,
		resolver:  opts.Resolver,
		host:      opts.Host,
		extractor: opts.Extractor,
		logger:    logging.WithComponent("updater"),
	}, nil
}

// State returns the persisted phase marker, or nil when no cycle has run.
func (u *Updater) State() (*State, error) {
	return LoadState(u.opts.Paths.StateFile)
}

// DownloadAndInstall runs a full update cycle: fetch the remote version,
// download and verify the archive, stage preserved content, wipe the
// installation, unpack, write the version marker, remove the archive and
// restore preserved content.
//
// Errors are returned for the version fetch, the download, archive
// verification, extraction and the version marker. Partial filesystem
// failures never abort the cycle unless StrictBackup is set; they are logged
// and reported in the Result.
func (u *Updater) DownloadAndInstall(ctx context.Context, cb Callbacks) (*Result, error) {
	if !u.mu.TryLock() {
		return nil, ErrUpdateInProgress
	}
	defer u.mu.Unlock()

	lock, err := acquireLock(ctx, u.opts.Paths.LockFile)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	cycle := uuid.NewString()
	ctx = logging.ContextWith(logging.WithContext(ctx, u.logger), "cycle", cycle)
	log := logging.FromContext(ctx)

	start := u.opts.Now()
	res, err := u.run(ctx, cb, &State{CycleID: cycle, StartedAt: start})
	if res != nil {
		res.Duration = u.opts.Now().Sub(start)
	}

	outcome := "success"
	switch {
	case err != nil:
		outcome = "failed"
		log.Error("update failed", "error", err)
	case !res.Clean():
		outcome = "partial"
		log.Warn("update finished with residue", "version", res.RemoteVersion, "error", res.Err())
	default:
		log.Info("update finished", "version", res.RemoteVersion, "duration", res.Duration)
	}
	u.opts.Metrics.RecordUpdate(outcome, u.opts.Now().Sub(start))
	return res, err
}

func (u *Updater) run(ctx context.Context, cb Callbacks, state *State) (*Result, error) {
	p := u.opts.Paths
	log := logging.FromContext(ctx)

	prev, err := LoadState(p.StateFile)
	if err != nil {
		log.Warn("ignoring unreadable state file", "error", err)
		prev = nil
	}
	if !prev.Finished() {
		log.Info("previous update did not finish", "phase", prev.Phase, "version", prev.RemoteVersion, "previous_cycle", prev.CycleID)
	}

	remote, err := u.opts.Versions.RemoteVersion(ctx)
	if _, ok := versioncheck.ParseToken(remote); !ok {
		if err == nil {
			err = fmt.Errorf("unparseable token %q", remote)
		}
		return nil, fmt.Errorf("%w: %v", ErrNoRemoteVersion, err)
	}
	res := &Result{RemoteVersion: remote}
	state.RemoteVersion = remote

	if err := u.fetchArchive(ctx, cb.Progress); err != nil {
		return nil, err
	}
	if err := u.extractor.Verify(p.ArchiveFile); err != nil {
		if rmErr := os.Remove(p.ArchiveFile); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			log.Warn("failed to remove rejected archive", "path", p.ArchiveFile, "error", rmErr)
		}
		return nil, fmt.Errorf("%w: %w", ErrUnpackFailed, err)
	}
	u.setPhase(ctx, state, PhaseDownloaded)

	// Past this point the installation is being modified; cancellation no
	// longer interrupts the cycle.
	ctx = context.WithoutCancel(ctx)

	if fsops.IsDir(p.Root) {
		switch {
		case !fsops.Exists(p.StagingDir):
			u.setPhase(ctx, state, PhaseStaging)
			res.Backup = u.stage(ctx, false)
		case prev != nil && prev.Phase == PhaseStaging:
			log.Info("resuming interrupted backup", "staging", p.StagingDir)
			u.setPhase(ctx, state, PhaseStaging)
			res.Backup = u.stage(ctx, true)
			res.BackupResumed = true
		case prev != nil && prev.Phase == PhaseRestorePending:
			// The phase stays restore_pending until the refresh is complete so
			// an interrupted refresh is simply repeated.
			log.Info("refreshing staging area kept by an incomplete restore", "staging", p.StagingDir)
			res.Backup = u.refreshStaging(ctx)
			res.BackupRefreshed = true
		default:
			log.Warn("staging area from an earlier update found, skipping backup", "staging", p.StagingDir)
			res.BackupSkipped = true
		}
		u.report(ctx, "backup", res.Backup)

		if !res.Backup.OK() && u.opts.StrictBackup {
			err := fmt.Errorf("%w: %v", ErrBackupIncomplete, res.Backup.Err())
			if !res.BackupSkipped && !res.BackupRefreshed {
				u.unstage(ctx)
			}
			return res, err
		}
		u.setPhase(ctx, state, PhaseStaged)

		res.Wipe = fsops.DeleteTree(p.Root)
		u.report(ctx, "wipe", res.Wipe)
		u.setPhase(ctx, state, PhaseWiped)
	}

	if cb.UnpackStarting != nil {
		cb.UnpackStarting()
	}
	if err := u.extractor.Extract(ctx, p.ArchiveFile, p.Root); err != nil {
		return res, fmt.Errorf("%w: %w", ErrUnpackFailed, err)
	}
	u.setPhase(ctx, state, PhaseUnpacked)

	if err := versioncheck.WriteMarker(p.VersionFile, remote); err != nil {
		return res, err
	}
	u.setPhase(ctx, state, PhaseVersioned)

	if err := os.Remove(p.ArchiveFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("failed to remove downloaded archive", "path", p.ArchiveFile, "error", err)
	} else {
		res.ArchiveRemoved = true
	}

	if !fsops.IsDir(p.StagingDir) {
		u.setPhase(ctx, state, PhaseDone)
		return res, nil
	}

	u.setPhase(ctx, state, PhaseRestoring)
	res.Restore = fsops.CopyTree(p.StagingDir, p.Root)
	res.Restored = true
	u.report(ctx, "restore", res.Restore)

	if !res.Restore.OK() {
		res.StagingKept = true
		log.Warn("keeping staging area until preserved content is fully restored",
			"staging", p.StagingDir, "failed", res.Restore.FailedPaths())
		u.setPhase(ctx, state, PhaseRestorePending)
		return res, nil
	}

	res.Cleanup = fsops.DeleteTree(p.StagingDir)
	u.report(ctx, "cleanup", res.Cleanup)
	u.setPhase(ctx, state, PhaseDone)
	return res, nil
}

// preservedPaths lists the preserved entries as root and staging path pairs,
// directories first.
func (u *Updater) preservedPaths() [][2]string {
	p := u.opts.Paths
	rels := append(append([]string(nil), p.PreservedDirs...), p.PreservedFiles...)
	pairs := make([][2]string, 0, len(rels))
	for _, rel := range rels {
		pairs = append(pairs, [2]string{
			filepath.Join(p.Root, filepath.FromSlash(rel)),
			filepath.Join(p.StagingDir, filepath.FromSlash(rel)),
		})
	}
	return pairs
}

// stage moves every preserved path from the root into the staging area,
// mirroring relative paths. Missing preserved paths are skipped. When resume
// is set, paths already present in the staging area are left alone.
func (u *Updater) stage(ctx context.Context, resume bool) fsops.Report {
	log := logging.FromContext(ctx)
	var r fsops.Report

	if err := os.MkdirAll(u.opts.Paths.StagingDir, 0755); err != nil {
		r.Failures = append(r.Failures, fsops.Failure{Path: u.opts.Paths.StagingDir, Err: err})
		return r
	}

	for _, pair := range u.preservedPaths() {
		src, dst := pair[0], pair[1]
		if !fsops.Exists(src) {
			log.Debug("preserved path not present", "path", src)
			continue
		}
		if resume && fsops.Exists(dst) {
			log.Debug("preserved path already staged", "path", dst)
			continue
		}
		if err := movePath(src, dst); err != nil {
			r.Failures = append(r.Failures, fsops.Failure{Path: src, Err: err})
			continue
		}
		r.Succeeded++
	}
	return r
}

// refreshStaging brings a kept staging area up to date with preserved content
// edited in the root since the incomplete restore. Directories are merged with
// the root copy winning; files are replaced. When the root holds a different
// kind of entry than the staging area, the staged entry is kept.
func (u *Updater) refreshStaging(ctx context.Context) fsops.Report {
	log := logging.FromContext(ctx)
	var r fsops.Report

	for _, pair := range u.preservedPaths() {
		src, dst := pair[0], pair[1]
		if !fsops.Exists(src) {
			continue
		}
		srcDir := fsops.IsDir(src)
		switch {
		case !fsops.Exists(dst):
			if err := movePath(src, dst); err != nil {
				r.Failures = append(r.Failures, fsops.Failure{Path: src, Err: err})
				continue
			}
			r.Succeeded++
		case srcDir != fsops.IsDir(dst):
			log.Warn("root entry differs in kind from staged copy, keeping staged copy", "path", src)
		case srcDir:
			copied := fsops.CopyTree(src, dst)
			r.Merge(copied)
			if copied.OK() {
				r.Merge(fsops.DeleteTree(src))
			}
		default:
			if err := os.Remove(dst); err != nil {
				r.Failures = append(r.Failures, fsops.Failure{Path: dst, Err: err})
				continue
			}
			if err := movePath(src, dst); err != nil {
				r.Failures = append(r.Failures, fsops.Failure{Path: src, Err: err})
				continue
			}
			r.Succeeded++
		}
	}
	return r
}

// unstage moves staged content back into the root after an aborted backup
// and removes the staging area once it is empty. Entries that cannot be moved
// back stay staged and the phase is left at staging so the next cycle resumes
// from there.
func (u *Updater) unstage(ctx context.Context) {
	log := logging.FromContext(ctx)
	p := u.opts.Paths

	for _, pair := range u.preservedPaths() {
		src, dst := pair[0], pair[1]
		if !fsops.Exists(dst) || fsops.Exists(src) {
			continue
		}
		if err := movePath(dst, src); err != nil {
			log.Warn("failed to move staged content back", "path", dst, "error", err)
		}
	}

	pruneEmptyDirs(p.StagingDir)
	if fsops.Exists(p.StagingDir) {
		log.Warn("staging area still holds content after aborted backup", "staging", p.StagingDir)
		return
	}
	if err := os.Remove(p.StateFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("failed to clear update phase", "error", err)
	}
}

// pruneEmptyDirs removes dir and every directory below it that holds no files.
func pruneEmptyDirs(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			pruneEmptyDirs(filepath.Join(dir, e.Name()))
		}
	}
	// Fails on a non-empty directory, which is what we want.
	_ = os.Remove(dir)
}

func (u *Updater) report(ctx context.Context, op string, r fsops.Report) {
	log := logging.FromContext(ctx)
	u.opts.Metrics.RecordFS(op, r.Succeeded, len(r.Skipped), len(r.Failures))
	for _, path := range r.Skipped {
		log.Warn("skipped link", "op", op, "path", path)
	}
	for _, f := range r.Failures {
		log.Warn("filesystem entry failed", "op", op, "path", f.Path, "error", f.Err)
	}
}

// setPhase persists the marker. Write failures are logged and the cycle
// continues.
func (u *Updater) setPhase(ctx context.Context, s *State, phase Phase) {
	s.Phase = phase
	s.UpdatedAt = u.opts.Now()
	if err := s.Save(u.opts.Paths.StateFile); err != nil {
		logging.FromContext(ctx).Warn("failed to persist update phase", "phase", phase, "error", err)
	}
}
