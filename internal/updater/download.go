package updater

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rennerdo30/ys-launcher/internal/logging"
)

// ProgressFunc receives download progress in bytes.
type ProgressFunc func(downloaded, total float64)

// FetchRemoteArchive resolves the file host URL from the service directory and
// downloads the archive to the configured archive path, replacing any stale
// copy. Progress is reported in bytes derived from the host's percentage.
func (u *Updater) FetchRemoteArchive(ctx context.Context, progress ProgressFunc) error {
	return u.fetchArchive(logging.WithContext(ctx, u.logger), progress)
}

func (u *Updater) fetchArchive(ctx context.Context, progress ProgressFunc) error {
	link, err := u.resolver.ResolveServiceURL(ctx, u.opts.ServiceDirectoryURL, u.opts.ServiceToken)
	if err != nil {
		return err
	}

	archive := u.opts.Paths.ArchiveFile
	if err := os.Remove(archive); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale archive: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(archive), 0755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}

	logging.FromContext(ctx).Info("downloading archive", "link", link, "dest", archive)
	return u.download(ctx, link, archive, progress)
}

// download runs one anonymous hosting session. The session is always closed
// when it was opened, and a session that never opened turns every outcome
// into ErrCannotLogin.
func (u *Updater) download(ctx context.Context, link, dest string, progress ProgressFunc) (err error) {
	host := u.host

	defer func() {
		if !host.IsLoggedIn() {
			if err == nil {
				err = ErrCannotLogin
			} else if !errors.Is(err, ErrCannotLogin) {
				err = fmt.Errorf("%w: %v", ErrCannotLogin, err)
			}
			return
		}
		if lerr := host.Logout(context.WithoutCancel(ctx)); lerr != nil {
			logging.FromContext(ctx).Warn("hosting logout failed", "error", lerr)
		}
	}()

	if err := host.LoginAnonymous(ctx); err != nil {
		return err
	}

	node, err := host.NodeFromLink(ctx, link)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCannotConnect, err)
	}
	total := float64(node.Size)
	logging.FromContext(ctx).Debug("resolved hosted archive", "name", node.Name, "size", node.Size)

	err = host.Download(ctx, link, dest, func(percent float64) {
		// Hosts that do not report a size leave nothing to scale against.
		if progress != nil && total > 0 {
			progress(percent*total/100, total)
		}
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCannotConnect, err)
	}

	if info, err := os.Stat(dest); err == nil {
		u.opts.Metrics.AddDownloadBytes(info.Size())
	}
	return nil
}
