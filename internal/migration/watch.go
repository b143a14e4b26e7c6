package migration

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce is used when Watch is given a non-positive debounce.
const DefaultWatchDebounce = 500 * time.Millisecond

// OwnerFunc is invoked for an owner whose markdown directory changed.
type OwnerFunc func(ctx context.Context, ownerID string)

// Watch observes root (a markdown source laid out as <root>/<owner>/...)
// and calls fn once per changed owner after changes have settled for the
// debounce interval. It blocks until ctx is cancelled.
func Watch(ctx context.Context, root string, debounce time.Duration, logger *slog.Logger, fn OwnerFunc) error {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", root))

	pending := make(map[string]struct{})
	timer := time.NewTimer(debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("watcher: stopped")
			return nil

		case <-timer.C:
			owners := make([]string, 0, len(pending))
			for o := range pending {
				owners = append(owners, o)
			}
			clear(pending)
			sort.Strings(owners)
			for _, o := range owners {
				logger.Debug("watcher: migrating", slog.String("owner", o))
				fn(ctx, o)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					// Files may already exist inside a directory moved in whole.
					if owner := ownerOf(root, ev.Name); owner != "" {
						pending[owner] = struct{}{}
						timer.Reset(debounce)
					}
					continue
				}
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 ||
				!strings.HasSuffix(ev.Name, ".md") {
				continue
			}
			owner := ownerOf(root, ev.Name)
			if owner == "" {
				continue
			}
			pending[owner] = struct{}{}
			timer.Reset(debounce)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// ownerOf returns the first path element of p below root, or "" when p is
// the root itself, lies outside it or is hidden.
func ownerOf(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	first, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	if strings.HasPrefix(first, ".") {
		return ""
	}
	if !strings.Contains(filepath.ToSlash(rel), "/") {
		// A file directly in root belongs to no owner.
		if info, err := os.Stat(p); err != nil || !info.IsDir() {
			return ""
		}
	}
	return first
}

func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return w.Add(path)
		}
		return nil
	})
}
