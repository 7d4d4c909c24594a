// Package watcher turns filesystem events into debounced change batches for
// the dev server: rapid saves collapse into one batch, and each batch drives
// one rebuild/reload cycle.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/liveserve/internal/logging"
)

// Handler receives one debounced batch of changed paths.
type Handler func(paths []string)

// Watcher wraps an fsnotify watcher with recursive registration, extension
// filtering, and debouncing.
type Watcher struct {
	fs         *fsnotify.Watcher
	logger     logging.Logger
	debounce   time.Duration
	extensions map[string]struct{}

	mu       sync.Mutex
	handlers []Handler
	pending  map[string]struct{}
	timer    *time.Timer
}

// New creates a watcher. An empty extensions list watches every file;
// otherwise only files with one of the given extensions (e.g. ".html")
// produce events.
func New(debounce time.Duration, extensions []string, logger logging.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = logging.NewNop()
	}

	w := &Watcher{
		fs:       fsWatcher,
		logger:   logger.WithComponent("watcher"),
		debounce: debounce,
		pending:  make(map[string]struct{}),
	}

	if len(extensions) > 0 {
		w.extensions = make(map[string]struct{}, len(extensions))
		for _, ext := range extensions {
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			w.extensions[strings.ToLower(ext)] = struct{}{}
		}
	}

	return w, nil
}

// OnChange registers a handler for debounced change batches.
func (w *Watcher) OnChange(handler Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// AddRecursive watches root and every non-hidden directory below it.
func (w *Watcher) AddRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		// Hidden directories below the root (.git and friends) are not
		// watched; an explicitly hidden root still is.
		if path != root && strings.HasPrefix(entry.Name(), ".") {
			return filepath.SkipDir
		}
		return w.fs.Add(path)
	})
}

// Run processes filesystem events until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, err, "watch error")
		}
	}
}

// Close stops the underlying watcher and any pending debounce timer.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	return w.fs.Close()
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	// Newly created directories join the watch set so edits inside them
	// are not missed.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !strings.HasPrefix(filepath.Base(event.Name), ".") {
				if err := w.fs.Add(event.Name); err != nil {
					w.logger.Warn(ctx, err, "cannot watch new directory", "path", event.Name)
				}
			}
			return
		}
	}

	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) &&
		!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return
	}

	if !w.matches(event.Name) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[event.Name] = struct{}{}

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) matches(path string) bool {
	if w.extensions == nil {
		return true
	}
	_, ok := w.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// flush delivers the pending batch, deduplicated and sorted for stable
// handler input.
func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}

	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		paths = append(paths, path)
	}
	w.pending = make(map[string]struct{})
	handlers := append([]Handler{}, w.handlers...)
	w.mu.Unlock()

	sort.Strings(paths)
	for _, handler := range handlers {
		handler(paths)
	}
}
