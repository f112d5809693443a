package updater

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rennerdo30/ys-launcher/internal/logging"
)

// Extractor unpacks an archive into a directory. Verify is called before the
// installation is touched and must reject anything Extract would fail on
// structurally.
type Extractor interface {
	Verify(archivePath string) error
	Extract(ctx context.Context, archivePath, dest string) error
}

// ArchiveExtractor extracts .zip archives, and .tar.gz / .tgz archives by
// file name. Existing files are overwritten. Link entries are skipped.
type ArchiveExtractor struct{}

// Extract unpacks archivePath into dest, creating dest when needed.
func (ArchiveExtractor) Extract(ctx context.Context, archivePath, dest string) error {
	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	if isTarGz(archivePath) {
		return extractTarGz(ctx, archivePath, dest)
	}
	return extractZip(ctx, archivePath, dest)
}

func isTarGz(archivePath string) bool {
	lower := strings.ToLower(archivePath)
	return strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".tgz")
}

// Verify checks that archivePath is a readable archive with at least one
// file and no entry escaping the destination. Zip archives are checked from
// the central directory; tar archives are scanned end to end.
func (ArchiveExtractor) Verify(archivePath string) error {
	var (
		files int
		err   error
	)
	if isTarGz(archivePath) {
		files, err = verifyTarGz(archivePath)
	} else {
		files, err = verifyZip(archivePath)
	}
	if err != nil {
		return err
	}
	if files == 0 {
		return ErrEmptyArchive
	}
	return nil
}

// verifyRoot only anchors entryPath checks; nothing is written below it.
const verifyRoot = "verify"

func verifyZip(archivePath string) (int, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return 0, fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	files := 0
	for _, f := range r.File {
		if _, err := entryPath(verifyRoot, f.Name); err != nil {
			return 0, err
		}
		if !f.Mode().IsRegular() {
			continue
		}
		// Open fails for unsupported compression methods.
		rc, err := f.Open()
		if err != nil {
			return 0, fmt.Errorf("open file in zip: %s: %w", f.Name, err)
		}
		rc.Close()
		files++
	}
	return files, nil
}

func verifyTarGz(archivePath string) (int, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	gzr, err := gzip.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gzr.Close()

	files := 0
	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return files, nil
		}
		if err != nil {
			return 0, fmt.Errorf("read tar: %w", err)
		}
		if _, err := entryPath(verifyRoot, header.Name); err != nil {
			return 0, err
		}
		if header.Typeflag == tar.TypeReg {
			files++
		}
	}
}

// entryPath maps an archive entry name to a path below dest, rejecting names
// that would land outside it.
func entryPath(dest, name string) (string, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	if strings.HasPrefix(name, "/") || filepath.IsAbs(filepath.FromSlash(name)) || filepath.VolumeName(filepath.FromSlash(name)) != "" {
		return "", fmt.Errorf("%w: %s", ErrUnsafeArchive, name)
	}
	target := filepath.Join(dest, filepath.FromSlash(name))
	rel, err := filepath.Rel(dest, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafeArchive, name)
	}
	return target, nil
}

// extractZip extracts a .zip archive.
func extractZip(ctx context.Context, archivePath, dest string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}

		target, err := entryPath(dest, f.Name)
		if err != nil {
			return err
		}

		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("create directory: %w", err)
			}
		case mode&fs.ModeSymlink != 0:
			logging.Debug("skipping link in archive", "entry", f.Name)
		default:
			src, err := f.Open()
			if err != nil {
				return fmt.Errorf("open file in zip: %w", err)
			}
			err = writeEntry(target, src, mode.Perm())
			src.Close()
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// extractTarGz extracts a .tar.gz archive.
func extractTarGz(ctx context.Context, archivePath, dest string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	gzr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("create gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}

		target, err := entryPath(dest, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("create directory: %w", err)
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr, fs.FileMode(header.Mode).Perm()); err != nil {
				return err
			}
		default:
			logging.Debug("skipping non-regular tar entry", "entry", header.Name, "type", header.Typeflag)
		}
	}
}

func writeEntry(target string, src io.Reader, perm fs.FileMode) error {
	if perm == 0 {
		perm = 0644
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	out, err := os.OpenFile(target, flags, perm|0200)
	if errors.Is(err, fs.ErrPermission) {
		// read-only leftover from a partial wipe
		if info, serr := os.Lstat(target); serr == nil && info.Mode().IsRegular() {
			if os.Chmod(target, info.Mode().Perm()|0200) == nil {
				out, err = os.OpenFile(target, flags, perm|0200)
			}
		}
	}
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("extract %s: %w", target, err)
	}
	return out.Close()
}
