// Package watch invalidates cached sections and results when documents
// change on disk. The engine assumes documents are immutable while cached;
// a host that cannot guarantee that runs a Watcher.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nainya/sectionquery/internal/logger"
)

// DefaultDebounce batches bursts of writes to one file
const DefaultDebounce = 100 * time.Millisecond

// Invalidator drops cached state for a document
type Invalidator interface {
	ClearDocumentCache(docID string) int
}

// IDFunc maps a changed file path to the document id it is cached under
type IDFunc func(path string) string

// Watcher watches a directory tree and clears the cache entries of
// every document that changes
type Watcher struct {
	root     string
	fsw      *fsnotify.Watcher
	target   Invalidator
	ids      IDFunc
	debounce time.Duration
	log      *logger.Logger
	onFlush  func(ids []string)

	mu       sync.Mutex
	watching bool
	done      chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Option configures a Watcher
type Option func(*Watcher)

// WithDebounce sets the quiet period before a batch is flushed
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithLogger sets the watcher logger
func WithLogger(l *logger.Logger) Option {
	return func(w *Watcher) { w.log = l }
}

// WithFlushHook is called with the ids cleared by each flush
func WithFlushHook(fn func(ids []string)) Option {
	return func(w *Watcher) { w.onFlush = fn }
}

// New creates a watcher over root. ids defaults to the path itself.
func New(root string, target Invalidator, ids IDFunc, opts ...Option) (*Watcher, error) {
	if root == "" {
		return nil, fmt.Errorf("watch: root directory is required")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	if ids == nil {
		ids = filepath.Clean
	}

	w := &Watcher{
		root:     root,
		fsw:      fsw,
		target:   target,
		ids:      ids,
		debounce: DefaultDebounce,
		log:      logger.Nop(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start adds the tree and begins watching until ctx ends or Stop is called.
// A failed Start can be retried; once ctx ends the watcher is closed.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	if err := w.addRecursive(w.root); err != nil {
		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
		return fmt.Errorf("watch %s: %w", w.root, err)
	}

	w.wg.Add(1)
	go w.loop(ctx)

	w.log.Info("Watching documents").Str("root", w.root).Dur("debounce", w.debounce).Send()
	return nil
}

// Stop ends watching and waits for the event loop to exit
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.closeWatcher()
		w.wg.Wait()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

func (w *Watcher) closeWatcher() {
	w.closeOnce.Do(func() {
		if err := w.fsw.Close(); err != nil {
			w.log.Warn("Closing watcher failed").Err(err).Send()
		}
	})
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	pending := make(map[string]struct{})
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
		if len(pending) == 0 {
			return
		}
		ids := make([]string, 0, len(pending))
		for path := range pending {
			id := w.ids(path)
			n := w.target.ClearDocumentCache(id)
			w.log.Debug("Document changed").Str("document", id).Int("entries", n).Send()
			ids = append(ids, id)
		}
		clear(pending)
		if w.onFlush != nil {
			w.onFlush(ids)
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			w.closeWatcher()
			return
		case <-w.done:
			flush()
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				flush()
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if isDir(event.Name) {
					_ = w.addRecursive(event.Name)
					continue
				}
			}
			pending[event.Name] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case <-timerC:
			timer, timerC = nil, nil
			flush()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				flush()
				return
			}
			w.log.Warn("Watch error").Err(err).Send()
		}
	}
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
