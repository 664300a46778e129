// Package watch reports changes under the served root. It follows the root
// when it is replaced.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"capserve/internal/appstate"
	"capserve/internal/discover"
	"capserve/internal/pathguard"
)

const (
	// EventWatching is emitted once watches on a root are in place.
	EventWatching = "watching"
	// EventFilesChanged carries the root-relative paths touched since the
	// previous event.
	EventFilesChanged = "files_changed"
)

// Event is one notification sent to the caller of Run.
type Event struct {
	Type  string   `json:"type"`
	Root  string   `json:"root"`
	Paths []string `json:"paths,omitempty"`
}

// Options configures a Watcher.
type Options struct {
	// Debounce coalesces bursts of filesystem events. Default 200ms.
	Debounce time.Duration
	// MaxDirs caps how many directories are watched. Default discover.DefaultMaxEntries.
	MaxDirs  int
	Excludes []string
	Logger   *zerolog.Logger
}

// Watcher watches the root held by a RootState.
type Watcher struct {
	state *appstate.RootState
	opts  Options
	log   zerolog.Logger
}

func New(state *appstate.RootState, opts Options) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = 200 * time.Millisecond
	}
	if opts.MaxDirs <= 0 {
		opts.MaxDirs = discover.DefaultMaxEntries
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Watcher{state: state, opts: opts, log: logger.With().Str("component", "watch").Logger()}
}

// Run watches until ctx is done, calling emit from this goroutine only.
func (w *Watcher) Run(ctx context.Context, emit func(Event)) error {
	changes, cancel := w.state.Subscribe()
	defer cancel()

	root := w.state.Root()
	fsw, err := w.watchTree(root)
	if err != nil {
		return err
	}
	defer func() {
		if fsw != nil {
			_ = fsw.Close()
		}
	}()
	emit(Event{Type: EventWatching, Root: root})

	pending := map[string]struct{}{}
	timer := time.NewTimer(w.opts.Debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		var events <-chan fsnotify.Event
		var errs <-chan error
		if fsw != nil {
			events, errs = fsw.Events, fsw.Errors
		}

		select {
		case <-ctx.Done():
			return nil

		case next := <-changes:
			timer.Stop()
			clear(pending)
			if fsw != nil {
				_ = fsw.Close()
				fsw = nil
			}
			root = next
			fsw, err = w.watchTree(root)
			if err != nil {
				// Keep following root changes; the next one may be watchable.
				w.log.Warn().Err(err).Str("root", root).Msg("cannot watch root")
				continue
			}
			w.log.Info().Str("root", root).Msg("watching new root")
			emit(Event{Type: EventWatching, Root: root})

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !pathguard.IsContained(root, ev.Name) {
				continue
			}
			rel := pathguard.Rel(root, ev.Name)
			if rel == "" || discover.IsExcluded(rel, w.opts.Excludes) {
				continue
			}
			if ev.Has(fsnotify.Create) && isDir(ev.Name) {
				if err := fsw.Add(ev.Name); err != nil {
					w.log.Debug().Err(err).Str("dir", ev.Name).Msg("skip unwatchable directory")
				}
			}
			pending[rel] = struct{}{}
			timer.Reset(w.opts.Debounce)

		case err, ok := <-errs:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("watch error")

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			clear(pending)
			emit(Event{Type: EventFilesChanged, Root: root, Paths: paths})
		}
	}
}

// watchTree adds a watch on root and every directory below it.
func (w *Watcher) watchTree(root string) (*fsnotify.Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(root); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", root, err)
	}
	count := 1
	errLimit := errors.New("watch limit reached")
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || path == root || !d.IsDir() {
			return nil
		}
		if discover.IsExcluded(pathguard.Rel(root, path), w.opts.Excludes) {
			return filepath.SkipDir
		}
		if count >= w.opts.MaxDirs {
			return errLimit
		}
		if err := fsw.Add(path); err != nil {
			w.log.Debug().Err(err).Str("dir", path).Msg("skip unwatchable directory")
			return filepath.SkipDir
		}
		count++
		return nil
	})
	if errors.Is(walkErr, errLimit) {
		w.log.Warn().Int("max_dirs", w.opts.MaxDirs).Msg("directory watch limit reached")
	}
	return fsw, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
