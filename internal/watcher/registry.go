package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Registry owns the live watch set: one kernel watch per directory, keyed by
// path and by descriptor. In recursive mode it grows and shrinks with the
// tree as the translator reports directories appearing and disappearing; in
// non-recursive mode it only ever holds the root.
//
// A Registry is owned by a single goroutine (the Monitor loop) and is not
// safe for concurrent use.
type Registry struct {
	n         Notifier
	root      string
	rootIsDir bool
	recursive bool
	logger    *slog.Logger

	byPath map[string]int
	byWd   map[int]string
	closed bool
}

// NewRegistry establishes the initial watch set for root. In recursive mode
// every directory beneath root is watched before NewRegistry returns;
// subdirectories that cannot be watched are logged and skipped. Failures on
// root itself are fatal: ErrPathNotFound when it does not exist and
// ErrPathNotReadable when the process lacks permission.
//
// A directory created while the initial traversal runs may be missed.
func NewRegistry(n Notifier, root string, recursive bool, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	root = filepath.Clean(root)

	info, err := os.Stat(root)
	if err != nil {
		return nil, classifyRootError(root, err)
	}

	r := &Registry{
		n:         n,
		root:      root,
		rootIsDir: info.IsDir(),
		recursive: recursive,
		logger:    logger,
		byPath:    make(map[string]int),
		byWd:      make(map[int]string),
	}

	if err := r.add(root); err != nil {
		return nil, classifyRootError(root, err)
	}
	if recursive && r.rootIsDir {
		r.watchTree(root)
	}

	r.logger.Debug("watch registry established",
		slog.String("root", root),
		slog.Bool("recursive", recursive),
		slog.Int("watches", len(r.byPath)))
	return r, nil
}

// classifyRootError maps a stat or add-watch failure on the root onto the
// startup error taxonomy.
func classifyRootError(root string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s", ErrPathNotFound, root)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %s: %v", ErrPathNotReadable, root, err)
	default:
		return fmt.Errorf("watcher: watch %s: %w", root, err)
	}
}

// add places a watch on path unless one is already registered for it.
func (r *Registry) add(path string) error {
	if _, ok := r.byPath[path]; ok {
		return nil
	}

	wd, err := r.n.AddWatch(path)
	if err != nil {
		return err
	}

	// The kernel hands back the existing descriptor when the inode is
	// already watched, e.g. a directory that was renamed. Re-key it.
	if old, ok := r.byWd[wd]; ok && old != path {
		delete(r.byPath, old)
	}

	r.byPath[path] = wd
	r.byWd[wd] = path
	r.logger.Debug("added watch", slog.String("path", path), slog.Int("wd", wd))
	return nil
}

// watchTree watches every directory beneath dir. dir itself must already be
// watched. Entries that vanish or cannot be read are skipped.
func (r *Registry) watchTree(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			r.logger.Warn("cannot list directory; its subdirectories are not watched",
				slog.String("path", dir),
				slog.Any("error", err))
		}
		return
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if err := r.add(p); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				r.logger.Warn("cannot watch directory; skipping",
					slog.String("path", p),
					slog.Any("error", err))
			}
			continue
		}
		r.watchTree(p)
	}
}

// OnDirectoryCreated watches a directory that just appeared under a watched
// directory, plus any directories already inside it (mkdir -p, or a subtree
// moved in). It is a no-op in non-recursive mode and when the directory has
// already vanished again.
func (r *Registry) OnDirectoryCreated(path string) error {
	if r.closed {
		return ErrRegistryClosed
	}
	if !r.recursive {
		return nil
	}

	path = filepath.Clean(path)
	if err := r.add(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.logger.Debug("directory vanished before it could be watched", slog.String("path", path))
			return nil
		}
		return fmt.Errorf("watcher: watch %s: %w", path, err)
	}
	r.watchTree(path)
	return nil
}

// OnDirectoryRemoved releases the watch on path and every watch beneath it.
// Removing a path that is not watched is a no-op.
func (r *Registry) OnDirectoryRemoved(path string) error {
	if r.closed {
		return ErrRegistryClosed
	}

	path = filepath.Clean(path)
	for p, wd := range r.byPath {
		if within(p, path) {
			r.release(p, wd)
		}
	}
	return nil
}

// within reports whether p is dir or lies beneath it.
func within(p, dir string) bool {
	if p == dir {
		return true
	}
	prefix := dir
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(p, prefix)
}

// release removes the kernel watch and its bookkeeping. The kernel may have
// already dropped the watch; that is not worth more than a debug line.
func (r *Registry) release(path string, wd int) {
	if err := r.n.RemoveWatch(wd); err != nil {
		r.logger.Debug("remove watch failed",
			slog.String("path", path),
			slog.Int("wd", wd),
			slog.Any("error", err))
	}
	delete(r.byPath, path)
	delete(r.byWd, wd)
	r.logger.Debug("removed watch", slog.String("path", path), slog.Int("wd", wd))
}

// Forget drops the bookkeeping for a watch the kernel has already released
// (IN_IGNORED). No syscall is made.
func (r *Registry) Forget(wd int) {
	if path, ok := r.byWd[wd]; ok {
		delete(r.byWd, wd)
		if r.byPath[path] == wd {
			delete(r.byPath, path)
		}
		r.logger.Debug("kernel released watch", slog.String("path", path), slog.Int("wd", wd))
	}
}

// PathOf returns the path watched by wd.
func (r *Registry) PathOf(wd int) (string, bool) {
	p, ok := r.byWd[wd]
	return p, ok
}

// isDirWatch reports whether the watch on path is a directory. Only the root
// can be a plain file.
func (r *Registry) isDirWatch(path string) bool {
	return path != r.root || r.rootIsDir
}

// Len returns the number of live watches.
func (r *Registry) Len() int { return len(r.byPath) }

// Paths returns the watched paths in lexical order.
func (r *Registry) Paths() []string {
	paths := make([]string, 0, len(r.byPath))
	for p := range r.byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Root returns the cleaned root path.
func (r *Registry) Root() string { return r.root }

// Recursive reports whether the registry follows the whole subtree.
func (r *Registry) Recursive() bool { return r.recursive }

// Shutdown releases every watch. It is safe to call multiple times; all
// other operations fail with ErrRegistryClosed afterwards.
func (r *Registry) Shutdown() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	for p, wd := range r.byPath {
		if err := r.n.RemoveWatch(wd); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", p, err))
		}
	}
	r.byPath = make(map[string]int)
	r.byWd = make(map[int]string)
	return errors.Join(errs...)
}
