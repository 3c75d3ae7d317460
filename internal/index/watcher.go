package index

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/projects/internal/apperr"
	"github.com/starford/projects/internal/checksum"
	"github.com/starford/projects/internal/storage"
)

// Event kinds passed to an EventCallback.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// EventCallback is called after a watcher-driven index change.
// kind is one of EventCreated, EventUpdated, EventDeleted.
type EventCallback func(kind string, path string)

const (
	// settleDelay batches the burst of events a single save produces.
	settleDelay    = 100 * time.Millisecond
	reconcileDelay = 200 * time.Millisecond
)

type watcher struct {
	fs     *fsnotify.Watcher
	db     *DB
	store  storage.Provider
	root   string
	logger *slog.Logger
	cb     EventCallback

	// pending collects the ops seen per note since the last flush.
	pending map[string]fsnotify.Op
	// seen holds the checksum last reported per note.
	seen map[string]string
}

// Watch starts an fsnotify watcher on the vault root and processes file
// change events until ctx is cancelled. Events for one note are batched for
// a short settle delay; cb (if non-nil) is called once per batch that
// changed a note. Notes this process wrote through DB.NoteWritten or deleted
// through DB.NoteDeleted produce no callback.
//
// Hidden directories are not watched. New directories created at runtime
// are added to the watch list. Rename events trigger a reconciliation pass
// that removes stale index entries whose files no longer exist on disk.
func Watch(ctx context.Context, db *DB, store storage.Provider, vaultRoot string, logger *slog.Logger, cb EventCallback) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	w := &watcher{
		fs:      fw,
		db:      db,
		store:   store,
		root:    vaultRoot,
		logger:  logger,
		cb:      cb,
		pending: make(map[string]fsnotify.Op),
		seen:    make(map[string]string),
	}
	if err := w.addTree(vaultRoot); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", vaultRoot))
	return w.loop(ctx)
}

func (w *watcher) loop(ctx context.Context) error {
	settle := newIdleTimer()
	reconcile := newIdleTimer()
	defer settle.Stop()
	defer reconcile.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher: stopped")
			return nil

		case <-settle.C:
			w.flush()

		case <-reconcile.C:
			w.reconcile()

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			switch w.handle(ev) {
			case actionSettle:
				settle.Reset(settleDelay)
			case actionReconcile:
				reconcile.Reset(reconcileDelay)
			}

		case watchErr, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// newIdleTimer returns a stopped timer.
func newIdleTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return t
}

type action int

const (
	actionNone action = iota
	actionSettle
	actionReconcile
)

func (w *watcher) handle(ev fsnotify.Event) action {
	rel, ok := w.rel(ev.Name)
	if !ok {
		return actionNone
	}

	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.logger.Warn("watcher: add new dir failed",
					slog.String("path", ev.Name),
					slog.String("error", err.Error()))
			} else {
				w.logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
			}
			w.indexTree(ev.Name)
			return actionNone
		}
	}

	if !strings.HasSuffix(rel, ".md") {
		return actionNone
	}

	if ev.Op&fsnotify.Rename != 0 {
		// fsnotify fires Rename on the old path only. The new path arrives
		// as a separate Create when it stays within a watched dir.
		delete(w.pending, rel)
		w.remove(rel)
		return actionReconcile
	}
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove) == 0 {
		return actionNone
	}
	w.pending[rel] |= ev.Op
	return actionSettle
}

// rel returns the vault path of abs. Paths inside hidden directories are
// rejected.
func (w *watcher) rel(abs string) (string, bool) {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil || rel == "." {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return "", false
		}
	}
	return rel, true
}

// flush applies the pending batch in path order.
func (w *watcher) flush() {
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	slices.Sort(paths)

	for _, p := range paths {
		op := w.pending[p]
		delete(w.pending, p)

		data, err := w.store.Read(p)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			w.remove(p)
		case err != nil:
			w.logger.Warn("watcher: read failed", slog.String("path", p), slog.String("error", err.Error()))
		default:
			w.index(p, data)
		}
		w.logger.Debug("watcher: flushed", slog.String("path", p), slog.String("op", op.String()))
	}
}

// index re-indexes p and reports it. Content this process wrote itself, or
// that the watcher already reported, is not reported again. Content another
// process indexed into a shared index file is.
func (w *watcher) index(p string, data []byte) {
	sum := checksum.Sum(data)
	if w.db.own.matches(p, sum) {
		w.seen[p] = sum
		return
	}
	if w.seen[p] == sum {
		return
	}
	prev, _ := w.db.GetChecksum(p)
	if prev != sum {
		if err := w.db.IndexNote(p, data); err != nil {
			w.logger.Warn("watcher: index failed", slog.String("path", p), slog.String("error", err.Error()))
			return
		}
	}
	w.seen[p] = sum
	kind := EventUpdated
	if prev == "" {
		kind = EventCreated
	}
	w.logger.Debug("watcher: indexed", slog.String("path", p), slog.String("op", kind))
	w.notify(kind, p)
}

// remove drops p from the index and reports it unless this process deleted
// it. The note may already be gone from a shared index.
func (w *watcher) remove(p string) {
	delete(w.seen, p)
	if w.db.own.matches(p, "") {
		return
	}
	if prev, _ := w.db.GetChecksum(p); prev != "" {
		if err := w.db.DeleteNote(p); err != nil {
			w.logger.Warn("watcher: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			return
		}
	}
	w.logger.Debug("watcher: deleted", slog.String("path", p))
	w.notify(EventDeleted, p)
}

func (w *watcher) notify(kind, p string) {
	if w.cb != nil {
		w.cb(kind, p)
	}
}

// reconcile compares the index with the vault after a rename: entries
// without a file are removed and files that are missing or stale in the
// index are indexed.
func (w *watcher) reconcile() {
	checksums, err := w.db.AllChecksums()
	if err != nil {
		w.logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}
	files, err := w.store.List("", true)
	if err != nil {
		w.logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]struct{}, len(files))
	for _, f := range files {
		disk[f.Path] = struct{}{}
		if checksums[f.Path] == f.Checksum {
			continue
		}
		if data, err := w.store.Read(f.Path); err == nil {
			w.index(f.Path, data)
		}
	}
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			w.remove(p)
		}
	}
}

// indexTree indexes the notes of a directory that appeared at runtime.
func (w *watcher) indexTree(dir string) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, ok := w.rel(p)
		if !ok || !strings.HasSuffix(rel, ".md") {
			return nil
		}
		if data, err := w.store.Read(rel); err == nil {
			w.index(rel, data)
		}
		return nil
	})
}

// addTree adds root and its non-hidden subdirectories to the watcher.
func (w *watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.fs.Add(p)
	})
}
