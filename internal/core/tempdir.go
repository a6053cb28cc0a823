package core

import (
	"os"
	"sort"
	"sync"

	apperrors "github.com/ReturnMyTime/returnmytime-cli/internal/errors"
	"github.com/rs/zerolog"
)

const tempPrefix = "returnmytime-"

// TempRegistry tracks the temporary working directories created during one
// process run so they can be removed at the end, on error, or on interrupt.
// One registry is created by the caller and passed to every component that
// creates temp directories.
type TempRegistry struct {
	mu     sync.Mutex
	dirs   map[string]struct{}
	logger zerolog.Logger
}

// NewTempRegistry creates an empty registry.
func NewTempRegistry(logger zerolog.Logger) *TempRegistry {
	return &TempRegistry{
		dirs:   make(map[string]struct{}),
		logger: logger,
	}
}

// IsTempPathSafe reports whether dir lies strictly below the system temp
// root. The root itself is never safe to remove.
func IsTempPathSafe(dir string) bool {
	root := os.TempDir()
	return IsPathSafe(root, dir) && !samePath(root, dir)
}

// MkdirTemp creates and registers a new temp directory.
func (r *TempRegistry) MkdirTemp(kind string) (string, error) {
	dir, err := os.MkdirTemp("", tempPrefix+kind+"-*")
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrFileWrite, "creating temp dir")
	}
	r.Register(dir)
	return dir, nil
}

// Register adds an existing directory to the registry.
func (r *TempRegistry) Register(dir string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dirs[dir] = struct{}{}
}

// Unregister forgets a directory without removing it.
func (r *TempRegistry) Unregister(dir string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.dirs, dir)
}

// Dirs returns the registered directories, sorted.
func (r *TempRegistry) Dirs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.dirs))
	for d := range r.dirs {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Remove deletes one directory and unregisters it. Paths outside the temp
// root are refused.
func (r *TempRegistry) Remove(dir string) error {
	if !IsTempPathSafe(dir) {
		return apperrors.Newf(apperrors.ErrUnsafePath, "refusing to remove %s: outside of temp directory", dir)
	}
	defer r.Unregister(dir)
	return os.RemoveAll(dir)
}

// Cleanup removes every registered directory. Failures are logged and the
// registry is emptied regardless.
func (r *TempRegistry) Cleanup() {
	for _, dir := range r.Dirs() {
		bestEffort(r.logger, "remove temp dir", func() error {
			return r.Remove(dir)
		})
		r.Unregister(dir)
	}
}
