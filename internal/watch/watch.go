// Package watch reports journal files in a directory once they stop
// changing.
package watch

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tinytelemetry/journalscope/internal/model"
)

// Options tunes a Watcher.
type Options struct {
	Pattern  string        // glob matched against the base name
	Debounce time.Duration // quiet period before a path is reported
}

// Watcher emits the path of each matching file that was created or
// written, once no further event for it arrived within the debounce
// window. A file rewritten later is reported again.
type Watcher struct {
	dir      string
	pattern  string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	paths    chan string
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	mu      sync.Mutex
	started bool
	pending map[string]time.Time
}

// New creates a watcher for dir. Empty options fall back to
// model.DefaultWatchPattern and model.DefaultWatchDebounce.
func New(dir string, opts Options) (*Watcher, error) {
	if opts.Pattern == "" {
		opts.Pattern = model.DefaultWatchPattern
	}
	if _, err := filepath.Match(opts.Pattern, ""); err != nil {
		return nil, fmt.Errorf("watch: pattern %q: %w", opts.Pattern, err)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = model.DefaultWatchDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch: add %s: %w", dir, err)
	}

	return &Watcher{
		dir:      dir,
		pattern:  opts.Pattern,
		debounce: opts.Debounce,
		watcher:  fw,
		paths:    make(chan string, 64),
		done:     make(chan struct{}),
		pending:  make(map[string]time.Time),
	}, nil
}

// Paths returns the channel of settled paths. It is closed after Stop or
// once the context passed to Start ends.
func (w *Watcher) Paths() <-chan string { return w.paths }

// Start begins watching in the background. Calling it again is a no-op.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.loop(ctx)
}

// Stop ends watching and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
		w.wg.Wait()
	})
}

func (w *Watcher) matches(path string) bool {
	ok, _ := filepath.Match(w.pattern, filepath.Base(path))
	return ok
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	defer close(w.paths)

	ticker := time.NewTicker(max(w.debounce/4, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !w.matches(ev.Name) {
				continue
			}
			w.mu.Lock()
			w.pending[ev.Name] = time.Now()
			w.mu.Unlock()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("watch: %s: %v", w.dir, err)
		case now := <-ticker.C:
			for _, p := range w.settled(now) {
				select {
				case w.paths <- p:
				case <-ctx.Done():
					return
				case <-w.done:
					return
				}
			}
		}
	}
}

// settled removes and returns, in name order, the paths quiet for at
// least the debounce window.
func (w *Watcher) settled(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for p, last := range w.pending {
		if now.Sub(last) >= w.debounce {
			out = append(out, p)
			delete(w.pending, p)
		}
	}
	sort.Strings(out)
	return out
}
