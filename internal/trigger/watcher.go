package trigger

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/JonMunkholm/sheetload/internal/logging"
	"github.com/JonMunkholm/sheetload/internal/source"
)

// DefaultSettleDelay is how long a file must stay quiet before it is handled.
const DefaultSettleDelay = 500 * time.Millisecond

// Watcher turns file writes under one container of a DirStore into
// notifications. Each path is handled once it has been quiet for the settle
// delay, so a workbook still being copied is not read half-written.
type Watcher struct {
	store     *source.DirStore
	handler   Handler
	container string
	settle    time.Duration
	ready     chan struct{}
}

// NewWatcher watches root/container of store. A non-positive settle uses
// DefaultSettleDelay.
func NewWatcher(store *source.DirStore, handler Handler, container string, settle time.Duration) *Watcher {
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	return &Watcher{
		store:     store,
		handler:   handler,
		container: container,
		settle:    settle,
		ready:     make(chan struct{}),
	}
}

// Ready is closed once the initial directories are being watched.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Run watches until ctx is cancelled and waits for in-flight handlers.
func (w *Watcher) Run(ctx context.Context) error {
	ctx = logging.ContextWithOrigin(ctx, "watch")
	logger := logging.FromContext(ctx)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	base := filepath.Join(w.store.Root, w.container)
	if err := os.MkdirAll(base, 0o755); err != nil {
		return fmt.Errorf("create inbox %s: %w", base, err)
	}
	if err := w.addTree(fw, base); err != nil {
		return err
	}
	close(w.ready)
	logger.Info("watcher started", "path", base, "settle_ms", w.settle.Milliseconds())

	deb := newDebouncer(w.settle)
	defer func() {
		deb.stop()
		logger.Info("watcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if IsTemporaryPath(event.Name) {
				continue
			}

			info, err := os.Stat(event.Name)
			if err != nil {
				continue
			}
			if info.IsDir() {
				// New directories are watched too; files copied in with them
				// are picked up by the sweep.
				if err := w.addTree(fw, event.Name); err != nil {
					logger.Warn("failed to watch directory", "path", event.Name, "error", err)
				}
				continue
			}

			container, objectPath, ok := w.store.Locate(event.Name)
			if !ok || container != w.container {
				continue
			}

			deb.schedule(event.Name, func() {
				if ctx.Err() != nil {
					return
				}
				report := w.handler.Handle(ctx, NotificationFor(container, objectPath))
				logger.Info("watched object handled",
					"name", objectPath,
					"status", report.Status,
					"run_id", report.RunID,
				)
			})
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err)
		}
	}
}

// debouncer runs one callback per key once the key has been quiet for the
// settle delay. A new schedule for a pending key restarts its timer.
type debouncer struct {
	settle   time.Duration
	mu       sync.Mutex
	timers   map[string]*time.Timer
	inflight sync.WaitGroup
}

func newDebouncer(settle time.Duration) *debouncer {
	return &debouncer{settle: settle, timers: make(map[string]*time.Timer)}
}

func (d *debouncer) schedule(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, exists := d.timers[key]; exists && t.Stop() {
		d.inflight.Done()
	}
	d.inflight.Add(1)

	// t is assigned under mu; the callback reads it only after taking mu.
	var t *time.Timer
	t = time.AfterFunc(d.settle, func() {
		defer d.inflight.Done()
		d.mu.Lock()
		d.forget(key, t)
		d.mu.Unlock()
		fn()
	})
	d.timers[key] = t
}

// forget drops key unless a newer timer has replaced t. Callers hold mu.
func (d *debouncer) forget(key string, t *time.Timer) {
	if d.timers[key] == t {
		delete(d.timers, key)
	}
}

// stop cancels pending timers and waits for running callbacks.
func (d *debouncer) stop() {
	d.mu.Lock()
	for key, t := range d.timers {
		if t.Stop() {
			d.inflight.Done()
		}
		delete(d.timers, key)
	}
	d.mu.Unlock()
	d.inflight.Wait()
}

// addTree watches dir and every directory below it.
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && source.IsTemporary(d.Name()) {
			return filepath.SkipDir
		}
		if err := fw.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}

// IsTemporaryPath applies source.IsTemporary to the base name of a file path.
func IsTemporaryPath(p string) bool {
	return source.IsTemporary(filepath.Base(p))
}
