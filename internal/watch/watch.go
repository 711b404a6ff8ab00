// Package watch rebuilds when project sources change. Builds never overlap:
// changes made during a build queue exactly one follow-up build.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/psantana5/pyship/internal/logging"
)

// Config controls the watch loop
type Config struct {
	// Root is the directory watched recursively.
	Root string
	// Exclude lists absolute paths never watched, typically the build
	// outputs and the state dir, so a build does not trigger itself.
	Exclude []string
	// Debounce waits for changes to settle before building.
	Debounce time.Duration
	// MinInterval is the minimum time between two build starts.
	MinInterval time.Duration
	// Initial runs one build before waiting for changes.
	Initial bool
	Logger  *logging.Logger
}

// BuildFunc runs one build. Its error is logged, never fatal to the watch.
type BuildFunc func(ctx context.Context) error

// Watcher runs builds on source changes
type Watcher struct {
	cfg     Config
	build   BuildFunc
	fsw     *fsnotify.Watcher
	limiter *rate.Limiter
	logger  *logging.Logger
	builds  int
}

// New creates a watcher; call Run to start it
func New(cfg Config, build BuildFunc) (*Watcher, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		cfg:     cfg,
		build:   build,
		fsw:     fsw,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
	if err := w.addTree(cfg.Root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Builds returns how many builds were started
func (w *Watcher) Builds() int {
	return w.builds
}

func (w *Watcher) excluded(path string) bool {
	for _, ex := range w.cfg.Exclude {
		if path == ex || strings.HasPrefix(path, ex+string(filepath.Separator)) {
			return true
		}
	}
	base := filepath.Base(path)
	return path != w.cfg.Root && (strings.HasPrefix(base, ".") || base == "__pycache__")
}

// addTree watches dir and every non-excluded directory below it
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.excluded(path) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// relevant filters out editor noise and events inside excluded paths
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if w.excluded(ev.Name) {
		return false
	}
	base := filepath.Base(ev.Name)
	if strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp") || strings.HasSuffix(base, ".pyc") {
		return false
	}
	return ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0
}

// Run blocks until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	if w.cfg.Initial {
		w.runBuild(ctx)
	}

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending []string
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					if err := w.addTree(ev.Name); err != nil {
						w.logger.Warn("failed to watch new directory", logging.Fields{"dir": ev.Name, "error": err.Error()})
					}
				}
			}
			pending = append(pending, ev.Name)
			if timer == nil {
				timer = time.NewTimer(w.cfg.Debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.cfg.Debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			w.logger.Info("sources changed", logging.Fields{"files": len(pending), "first": pending[0]})
			pending = nil
			w.runBuild(ctx)
			// events that arrived during the build are still queued in fsw.Events
			// and restart the debounce timer on the next iteration

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", logging.Fields{"error": err.Error()})
		}
	}
}

func (w *Watcher) runBuild(ctx context.Context) {
	if err := w.limiter.Wait(ctx); err != nil {
		return
	}
	w.builds++
	if err := w.build(ctx); err != nil {
		w.logger.Error("build failed, waiting for changes", logging.Fields{"error": err.Error()})
		return
	}
	w.logger.Info("build succeeded, waiting for changes")
}
