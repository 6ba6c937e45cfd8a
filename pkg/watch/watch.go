// Package watch re-runs a handler when files under a directory tree change.
// Bursts of filesystem events are coalesced into one call.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/papercomputeco/frames/pkg/merkle"
)

// DefaultDebounce is how long the watcher waits for more events before
// calling the handler.
const DefaultDebounce = 250 * time.Millisecond

// Handler receives the sorted, deduplicated paths that changed, relative to
// the watched root. A returned error is logged and watching continues.
type Handler func(ctx context.Context, changed []string) error

// Options tunes a Watcher.
type Options struct {
	Debounce time.Duration

	// Ignore lists entry names skipped at any depth. Nil means
	// merkle.DefaultIgnore.
	Ignore []string

	Logger *slog.Logger
}

// Watcher watches a directory tree.
type Watcher struct {
	root     string
	handler  Handler
	debounce time.Duration
	ignore   []string
	logger   *slog.Logger
	fsw      *fsnotify.Watcher
}

// New creates a watcher over root. Call Run to start watching.
func New(root string, h Handler, opts Options) (*Watcher, error) {
	if h == nil {
		return nil, errors.New("watch handler is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	w := &Watcher{
		root:     abs,
		handler:  h,
		debounce: opts.Debounce,
		ignore:   opts.Ignore,
		logger:   opts.Logger,
		fsw:      fsw,
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	if w.ignore == nil {
		w.ignore = merkle.DefaultIgnore
	}
	if w.logger == nil {
		w.logger = slog.New(slog.DiscardHandler)
	}

	if err := w.addRecursive(abs); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run processes events until ctx ends. It closes the watcher on return.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	pending := make(map[string]struct{})
	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			rel, skip := w.relative(ev.Name)
			if skip {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(ev.Name); err != nil {
						w.logger.Warn("could not watch new directory", "path", ev.Name, "error", err)
					}
				}
			}

			pending[rel] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case <-timerC:
			timer, timerC = nil, nil
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			clear(pending)
			slices.Sort(changed)

			w.logger.Debug("tree changed", "root", w.root, "paths", len(changed))
			if err := w.handler(ctx, changed); err != nil {
				w.logger.Error("watch handler failed", "root", w.root, "error", err)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "root", w.root, "error", err)
		}
	}
}

// Close stops watching. Run returns once it observes the closed channels.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && slices.Contains(w.ignore, d.Name()) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// relative maps an event path onto the root, reporting whether any of its
// components is ignored.
func (w *Watcher) relative(name string) (string, bool) {
	rel, err := filepath.Rel(w.root, name)
	if err != nil {
		return "", true
	}
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", true
	}
	rel = filepath.ToSlash(rel)
	for _, part := range strings.Split(rel, "/") {
		if slices.Contains(w.ignore, part) {
			return "", true
		}
	}
	return rel, false
}
