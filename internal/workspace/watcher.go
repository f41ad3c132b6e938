package workspace

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reconcileDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the workspace root and applies file
// changes until ctx is cancelled.
//
// New directories created at runtime are added to the watch list. Rename
// events trigger a debounced reconciliation pass that removes files no
// longer on disk and ingests files that appeared under a new name.
func (s *Service) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := s.store.Root()
	if err := s.addDirsRecursive(w, root); err != nil {
		return err
	}

	s.logger.Info("watcher: started", slog.String("root", root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			s.logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			s.reconcile(ctx)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name
			rel, relErr := filepath.Rel(root, absPath)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if s.store.Ignored(rel) {
						continue
					}
					if addErr := s.addDirsRecursive(w, absPath); addErr != nil {
						s.logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						s.logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					s.syncNewDir(ctx, root, absPath)
					continue
				}
			}

			if !s.store.IsCandidate(rel) {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				s.syncPath(ctx, rel)

			case ev.Op&fsnotify.Remove != 0:
				if err := s.Remove(ctx, rel); err != nil {
					s.logger.Warn("watcher: remove failed", slog.String("path", rel), slog.String("error", err.Error()))
				}

			case ev.Op&fsnotify.Rename != 0:
				// Rename fires on the old path only; the new path arrives as a
				// Create when it stays inside a watched directory.
				if err := s.Remove(ctx, rel); err != nil {
					s.logger.Warn("watcher: rename remove failed", slog.String("path", rel), slog.String("error", err.Error()))
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func (s *Service) syncPath(ctx context.Context, rel string) {
	changed, err := s.Sync(ctx, rel)
	if err != nil {
		s.logger.Warn("watcher: sync failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	if changed {
		s.logger.Debug("watcher: applied", slog.String("path", rel))
	}
}

// reconcile compares the index with the disk and applies the difference.
func (s *Service) reconcile(ctx context.Context) {
	checksums, err := s.db.AllChecksums()
	if err != nil {
		s.logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}
	metas, err := s.store.List("")
	if err != nil {
		s.logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]string, len(metas))
	for _, m := range metas {
		disk[m.Path] = m.Checksum
	}
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := s.Remove(ctx, p); err == nil {
				s.logger.Debug("reconcile: removed stale", slog.String("path", p))
			}
		}
	}
	for p, cs := range disk {
		if checksums[p] == cs {
			continue
		}
		s.syncPath(ctx, p)
	}
}

// syncNewDir applies the candidate files found in a newly created directory.
func (s *Service) syncNewDir(ctx context.Context, root, dir string) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if s.store.IsCandidate(rel) {
			s.syncPath(ctx, rel)
		}
		return nil
	})
}

// addDirsRecursive adds root and all its non-skipped subdirectories to the watcher.
func (s *Service) addDirsRecursive(w *fsnotify.Watcher, dir string) error {
	root := s.store.Root()
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if rel, relErr := filepath.Rel(root, p); relErr == nil && rel != "." && s.store.Ignored(filepath.ToSlash(rel)) {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}
