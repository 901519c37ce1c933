package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/folio/internal/checksum"
	"github.com/starford/folio/internal/storage"
)

// Change kinds reported to an EventCallback.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// reconcileDelay debounces the rescan that follows a rename.
const reconcileDelay = 200 * time.Millisecond

// EventCallback is called after a watcher-driven index change.
type EventCallback func(kind string, path string)

type watcher struct {
	db     *DB
	store  storage.Provider
	root   string
	logger *slog.Logger
	cb     EventCallback
	fsw    *fsnotify.Watcher
}

// Watch keeps the index in step with edits made to the content root outside
// the API until ctx is cancelled.
//
// A file whose checksum already matches the index is skipped, so writes made
// through the article service (which index synchronously) are not reported
// twice. Directories created at runtime join the watch list, and a rename
// schedules a debounced rescan that drops entries whose files are gone.
func Watch(ctx context.Context, db *DB, store storage.Provider, logger *slog.Logger, cb EventCallback) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	w := &watcher{db: db, store: store, root: store.Root(), logger: logger, cb: cb, fsw: fsw}
	if err := w.addTree(w.root); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", w.root))

	reconcile := time.NewTimer(reconcileDelay)
	reconcile.Stop()
	defer reconcile.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case <-reconcile.C:
			w.reconcile()

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if w.handle(ev) {
				reconcile.Reset(reconcileDelay)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", err.Error()))
		}
	}
}

// handle applies one fsnotify event and reports whether a rescan is needed.
func (w *watcher) handle(ev fsnotify.Event) bool {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.addDir(ev.Name, info.Name())
			return false
		}
	}
	if !storage.IsArticle(filepath.Base(ev.Name)) {
		return false
	}
	rel, ok := w.rel(ev.Name)
	if !ok {
		return false
	}

	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		w.index(rel)
	case ev.Has(fsnotify.Remove):
		w.remove(rel)
	case ev.Has(fsnotify.Rename):
		// fsnotify reports Rename on the old path only; the new path
		// arrives as a Create if it stays under a watched dir.
		w.remove(rel)
		return true
	}
	return false
}

func (w *watcher) addDir(abs, name string) {
	if strings.HasPrefix(name, ".") {
		return
	}
	if err := w.addTree(abs); err != nil {
		w.logger.Warn("watcher: add new dir failed",
			slog.String("path", abs),
			slog.String("error", err.Error()))
		return
	}
	w.logger.Debug("watcher: watching new dir", slog.String("path", abs))

	// Files may land before the watch is registered.
	_ = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !storage.IsArticle(d.Name()) {
			return nil
		}
		if rel, ok := w.rel(p); ok {
			w.index(rel)
		}
		return nil
	})
}

func (w *watcher) rel(abs string) (string, bool) {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// index re-reads rel and indexes it unless the index already holds that
// exact content.
func (w *watcher) index(rel string) {
	data, err := w.store.Read(rel)
	if err != nil {
		w.logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	prev, err := w.db.GetChecksum(rel)
	if err != nil {
		w.logger.Warn("watcher: checksum lookup failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	if prev == checksum.Sum(data) {
		return
	}
	if err := IndexFile(w.db, rel, data); err != nil {
		w.logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	kind := EventUpdated
	if prev == "" {
		kind = EventCreated
	}
	w.logger.Debug("watcher: indexed", slog.String("path", rel), slog.String("op", kind))
	w.emit(kind, rel)
}

func (w *watcher) remove(rel string) {
	prev, err := w.db.GetChecksum(rel)
	if err != nil || prev == "" {
		return
	}
	if err := w.db.DeleteArticle(rel); err != nil {
		w.logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	w.logger.Debug("watcher: deleted", slog.String("path", rel))
	w.emit(EventDeleted, rel)
}

// reconcile repairs drift in both directions after a rename.
func (w *watcher) reconcile() {
	d, err := scan(w.db, w.store)
	if err != nil {
		w.logger.Warn("reconcile: scan failed", slog.String("error", err.Error()))
		return
	}
	for _, p := range d.stale {
		w.index(p)
	}
	for _, p := range d.gone {
		w.remove(p)
	}
}

func (w *watcher) emit(kind, rel string) {
	if w.cb != nil {
		w.cb(kind, rel)
	}
}

// addTree adds root and all its non-hidden subdirectories to the watcher.
func (w *watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.fsw.Add(p)
	})
}
