package core

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/ReturnMyTime/returnmytime-cli/internal/errors"
	"github.com/rs/zerolog"
)

// excludedFiles are files/dirs excluded when copying skills.
var excludedFiles = map[string]bool{
	"README.md":     true,
	"metadata.json": true,
	".git":          true,
}

func isExcluded(name string) bool {
	return excludedFiles[name] || strings.HasPrefix(name, "_")
}

// copyDirectory copies the contents of src to dst, excluding certain files.
// Symlinks inside the tree are recreated, not followed.
func copyDirectory(src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == src {
			return nil
		}

		if isExcluded(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		dstPath := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			return os.MkdirAll(dstPath, 0o755)
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			_ = os.Remove(dstPath)
			return os.Symlink(target, dstPath)
		case d.Type().IsRegular():
			return copyFile(path, dstPath)
		default:
			return nil
		}
	})
}

// copyFile copies a single file from src to dst.
func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = srcFile.Close() }()

	info, err := srcFile.Stat()
	if err != nil {
		return err
	}

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		_ = dstFile.Close()
		return err
	}
	return dstFile.Close()
}

// replaceDir makes dst an exact filtered copy of src. src is resolved through
// every symlink first. When it already is dst nothing happens; when one of
// the two contains the other the copy is refused.
func replaceDir(src, dst string) error {
	realSrc := resolvePath(src)
	realDst := resolveParent(dst)
	if !isSymlink(dst) {
		realDst = resolvePath(dst)
	}
	if realSrc == realDst {
		return nil
	}
	if IsPathSafe(realDst, realSrc) || IsPathSafe(realSrc, realDst) {
		return apperrors.Newf(apperrors.ErrUnsafePath, "cannot copy %s over %s: the paths overlap", src, dst)
	}
	if err := os.RemoveAll(dst); err != nil {
		return err
	}
	return copyDirectory(realSrc, dst)
}

// createSymlink points linkPath at target using a relative link. An identical
// existing link is left alone; anything else at linkPath is removed first.
func createSymlink(target, linkPath string, symlink func(oldname, newname string) error) error {
	if samePath(target, linkPath) {
		return nil
	}

	if info, err := os.Lstat(linkPath); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			if existing, err := os.Readlink(linkPath); err == nil {
				if !filepath.IsAbs(existing) {
					existing = filepath.Join(filepath.Dir(linkPath), existing)
				}
				if samePath(existing, target) {
					return nil
				}
			}
			if err := os.Remove(linkPath); err != nil {
				return err
			}
		} else if err := os.RemoveAll(linkPath); err != nil {
			return err
		}
	}

	linkDir := filepath.Dir(linkPath)
	if err := os.MkdirAll(linkDir, 0o755); err != nil {
		return err
	}

	rel, err := filepath.Rel(linkDir, target)
	if err != nil {
		return err
	}
	return symlink(rel, linkPath)
}

// samePath compares two paths after resolving symlinks in their parent
// directories, so a link dir that is itself a symlink to the store matches.
func samePath(a, b string) bool {
	return resolveParent(a) == resolveParent(b)
}

// resolvePath resolves every symlink in p when it exists, and only those in
// its parent otherwise.
func resolvePath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return resolveParent(abs)
}

func resolveParent(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	dir, base := filepath.Split(abs)
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		return filepath.Join(resolved, base)
	}
	return abs
}

// cleanupEmptyDir removes a directory if it is empty.
func cleanupEmptyDir(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	if len(entries) == 0 {
		_ = os.Remove(dir)
	}
}

// pathExists reports whether anything (including a dangling symlink) is at p.
func pathExists(p string) bool {
	_, err := os.Lstat(p)
	return err == nil
}

// dirExists returns true if the path exists and is a directory.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func isSymlink(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode()&os.ModeSymlink != 0
}

// bestEffort runs a cleanup step whose failure must not change the outcome of
// the surrounding operation. Errors are logged at debug level and dropped.
func bestEffort(logger zerolog.Logger, op string, fn func() error) {
	if err := fn(); err != nil {
		logger.Debug().Err(err).Str("op", op).Msg("cleanup failed")
	}
}
