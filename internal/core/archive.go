package core

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	apperrors "github.com/ReturnMyTime/returnmytime-cli/internal/errors"
)

// MaxArchiveFileSize is the maximum size of a single extracted file (100MB).
const MaxArchiveFileSize = 100 * 1024 * 1024

var archiveExtensions = []string{".zip", ".tar.gz", ".tgz"}

// IsArchivePath reports whether p names a supported archive.
func IsArchivePath(p string) bool {
	lower := strings.ToLower(p)
	for _, ext := range archiveExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// PrepareArchive extracts an archive into a new registered temp directory and
// returns that directory.
func PrepareArchive(reg *TempRegistry, archivePath string) (string, error) {
	dir, err := reg.MkdirTemp("archive")
	if err != nil {
		return "", err
	}
	if err := ExtractArchive(archivePath, dir); err != nil {
		return "", err
	}
	return dir, nil
}

// ExtractArchive extracts a zip or gzipped tar archive into destDir. Entry
// names are normalized so that every file lands inside destDir.
func ExtractArchive(archivePath, destDir string) error {
	lower := strings.ToLower(archivePath)
	var err error
	switch {
	case strings.HasSuffix(lower, ".zip"):
		err = extractZip(archivePath, destDir)
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		err = extractTarGz(archivePath, destDir)
	default:
		return apperrors.Newf(apperrors.ErrArchive, "unsupported archive format: %s", filepath.Base(archivePath))
	}
	if err != nil {
		return apperrors.Wrapf(err, apperrors.ErrArchive, "extracting %s", filepath.Base(archivePath))
	}
	return nil
}

// archiveEntryPath maps an entry name to a destination path. It returns ""
// for entries that are skipped.
func archiveEntryPath(destDir, name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimLeft(name, "/")
	if name == "" || strings.HasSuffix(name, "/") {
		return "", nil
	}
	if strings.HasPrefix(name, "__MACOSX/") {
		return "", nil
	}

	// Rooting the name before cleaning drops any leading ".." segments.
	cleaned := strings.TrimPrefix(path.Clean("/"+name), "/")
	if cleaned == "" {
		return "", nil
	}

	target := filepath.Join(destDir, filepath.FromSlash(cleaned))
	if !IsPathSafe(destDir, target) || target == filepath.Clean(destDir) {
		return "", fmt.Errorf("invalid path in archive: %s", name)
	}
	return target, nil
}

func extractZip(archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return err
	}
	defer func() { _ = r.Close() }()

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if f.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("archive contains disallowed link: %s", f.Name)
		}

		target, err := archiveEntryPath(destDir, f.Name)
		if err != nil {
			return err
		}
		if target == "" {
			continue
		}
		if f.UncompressedSize64 > MaxArchiveFileSize {
			return fmt.Errorf("file %s exceeds maximum size of %d bytes", f.Name, MaxArchiveFileSize)
		}

		rc, err := f.Open()
		if err != nil {
			return err
		}
		mode := os.FileMode(0o644)
		if f.Mode()&0o111 != 0 {
			mode = 0o755
		}
		err = writeArchiveFile(target, rc, mode)
		_ = rc.Close()
		if err != nil {
			return fmt.Errorf("writing %s: %w", f.Name, err)
		}
	}
	return nil
}

func extractTarGz(archivePath, destDir string) error {
	fh, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer func() { _ = fh.Close() }()

	gz, err := gzip.NewReader(fh)
	if err != nil {
		return err
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil && !errors.Is(err, tar.ErrInsecurePath) {
			return fmt.Errorf("reading tar header: %w", err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir, tar.TypeXGlobalHeader:
			continue
		case tar.TypeSymlink, tar.TypeLink:
			return fmt.Errorf("archive contains disallowed link type: %s", hdr.Name)
		case tar.TypeReg:
		default:
			return fmt.Errorf("archive contains disallowed entry type %d: %s", hdr.Typeflag, hdr.Name)
		}

		target, err := archiveEntryPath(destDir, hdr.Name)
		if err != nil {
			return err
		}
		if target == "" {
			continue
		}
		if hdr.Size > MaxArchiveFileSize {
			return fmt.Errorf("file %s exceeds maximum size of %d bytes", hdr.Name, MaxArchiveFileSize)
		}

		mode := os.FileMode(0o644)
		if hdr.Mode&0o111 != 0 {
			mode = 0o755
		}
		if err := writeArchiveFile(target, tr, mode); err != nil {
			return fmt.Errorf("writing %s: %w", hdr.Name, err)
		}
	}
}

func writeArchiveFile(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	n, err := io.Copy(out, io.LimitReader(r, MaxArchiveFileSize+1))
	if err != nil {
		_ = out.Close()
		return err
	}
	if n > MaxArchiveFileSize {
		_ = out.Close()
		return fmt.Errorf("exceeds maximum size of %d bytes", MaxArchiveFileSize)
	}
	return out.Close()
}
