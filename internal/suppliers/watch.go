package suppliers

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 250 * time.Millisecond

// Watcher reloads a store when its backing file is changed by someone else.
type Watcher struct {
	store    *Store
	backend  *FileBackend
	logger   *zap.Logger
	debounce time.Duration
	onReload func(ids []string)

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher watches the directory holding the backend's file, since an
// atomic save replaces the file rather than writing to it.
func NewWatcher(store *Store, backend *FileBackend, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	dir := filepath.Dir(backend.Path())
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &Watcher{
		store:    store,
		backend:  backend,
		logger:   logger,
		debounce: defaultDebounce,
		watcher:  fw,
		done:     make(chan struct{}),
	}, nil
}

// OnReload registers a callback run after every successful reload.
func (w *Watcher) OnReload(fn func(ids []string)) {
	w.onReload = fn
}

// Start begins processing file events in the background.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.run()
}

func (w *Watcher) run() {
	defer w.wg.Done()

	target := filepath.Clean(w.backend.Path())
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Supplier file watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	changed, err := w.backend.Changed()
	if err != nil || !changed {
		return
	}
	// a broken edit keeps the profiles already in memory
	doc, err := w.backend.Load(context.Background())
	if err != nil {
		w.logger.Warn("Ignoring unreadable supplier file", zap.Error(err))
		return
	}
	w.store.Replace(decodeProfiles(doc, w.logger))
	w.logger.Info("Supplier profiles reloaded from disk", zap.String("path", w.backend.Path()))
	if w.onReload != nil {
		w.onReload(w.store.IDs())
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
