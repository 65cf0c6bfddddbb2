// Package staging manages the exclusive per-run directory that holds upload
// files between the build and transfer phases.
package staging

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gofrs/flock"

	"github.com/couchcryptid/ndbc-transfer/internal/domain"
)

// Area is an acquired staging directory. It must be released on every exit
// path once Acquire succeeds.
type Area struct {
	dir      string
	lock     *flock.Flock
	logger   *slog.Logger
	files    []string
	released bool
}

func lockPath(dir string) string {
	return filepath.Clean(dir) + ".lock"
}

// Acquire creates dir exclusively. It fails with domain.ErrStagingAreaConflict
// when another run holds the lock or when dir survives from an unclean run.
func Acquire(dir string, logger *slog.Logger) (*Area, error) {
	dir = filepath.Clean(strings.TrimSpace(dir))
	if dir == "." || dir == "" {
		return nil, fmt.Errorf("%w: staging directory not set", domain.ErrStagingAreaConflict)
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create parent of %s: %w", domain.ErrStagingAreaConflict, dir, err)
	}

	lock := flock.New(lockPath(dir))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("%w: lock %s: %w", domain.ErrStagingAreaConflict, lock.Path(), err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s is held by another run", domain.ErrStagingAreaConflict, dir)
	}

	if err := os.Mkdir(dir, 0o750); err != nil {
		_ = lock.Unlock()
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s already exists (left by an unclean run?)", domain.ErrStagingAreaConflict, dir)
		}
		return nil, fmt.Errorf("%w: create %s: %w", domain.ErrStagingAreaConflict, dir, err)
	}

	logger.Debug("staging area acquired", "path", dir)
	return &Area{dir: dir, lock: lock, logger: logger}, nil
}

// Dir returns the staging directory path.
func (a *Area) Dir() string { return a.dir }

// Write stores data under name and returns the file path. Names are plain
// file names; an existing file is never overwritten.
func (a *Area) Write(name string, data []byte) (string, error) {
	if a.released {
		return "", errors.New("staging area already released")
	}
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid staging file name %q", name)
	}

	path := filepath.Join(a.dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}

	a.files = append(a.files, path)
	return path, nil
}

// Files returns the paths written so far, in write order.
func (a *Area) Files() []string {
	return slices.Clone(a.files)
}

// Release removes the directory and its files and drops the lock. It is safe
// to call more than once.
func (a *Area) Release() error {
	if a.released {
		return nil
	}
	a.released = true

	var errs []error
	if err := os.RemoveAll(a.dir); err != nil {
		errs = append(errs, fmt.Errorf("remove %s: %w", a.dir, err))
	}
	if err := a.lock.Unlock(); err != nil {
		errs = append(errs, fmt.Errorf("unlock %s: %w", a.lock.Path(), err))
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("staging cleanup incomplete", "path", a.dir, "error", err)
		return err
	}
	a.logger.Debug("staging area released", "path", a.dir, "files", len(a.files))
	return nil
}

// Clean removes a staging directory left behind by an unclean run. It
// refuses while a run holds the lock and reports whether anything was removed.
func Clean(dir string, logger *slog.Logger) (bool, error) {
	dir = filepath.Clean(strings.TrimSpace(dir))
	if dir == "." || dir == "" {
		return false, errors.New("staging directory not set")
	}

	if _, err := os.Stat(filepath.Dir(dir)); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	lock := flock.New(lockPath(dir))
	ok, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("lock %s: %w", lock.Path(), err)
	}
	if !ok {
		return false, fmt.Errorf("%w: %s is held by a running transfer", domain.ErrStagingAreaConflict, dir)
	}
	defer func() { _ = lock.Unlock() }()

	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return false, fmt.Errorf("remove %s: %w", dir, err)
	}
	logger.Info("removed stale staging directory", "path", dir)
	return true, nil
}
