// Package watch turns an operator-created sentinel file into run
// cancellation, so an in-flight run can be interrupted without signalling the
// process.
package watch

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// CancelWatcher fires a callback once when the sentinel file appears in the
// watched control directory.
type CancelWatcher struct {
	dir      string
	sentinel string
	onCancel func()
	logger   *log.Logger

	watcher *fsnotify.Watcher
	once    sync.Once
	done    chan struct{}

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

// New creates a watcher for dir/sentinel. onCancel is invoked at most once.
// logger may be nil.
func New(dir, sentinel string, onCancel func(), logger *log.Logger) *CancelWatcher {
	return &CancelWatcher{
		dir:      dir,
		sentinel: sentinel,
		onCancel: onCancel,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start begins watching. A sentinel that already exists fires immediately.
func (w *CancelWatcher) Start() error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("ensure control dir %s: %w", w.dir, err)
	}

	if _, err := os.Stat(filepath.Join(w.dir, w.sentinel)); err == nil {
		w.fire("pre-existing")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.watcher = watcher

	go w.loop()
	return nil
}

// Close stops the watcher. Safe to call after a fired cancel.
func (w *CancelWatcher) Close() error {
	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *CancelWatcher) loop() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != w.sentinel {
				continue
			}
			if ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write) {
				w.debounceFire()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log("watch_error error=%v", err)
		}
	}
}

// debounceFire absorbs the create/write burst an editor or touch produces.
func (w *CancelWatcher) debounceFire() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(50*time.Millisecond, func() {
		w.fire("sentinel")
	})
}

func (w *CancelWatcher) fire(trigger string) {
	w.once.Do(func() {
		w.log("cancel_requested trigger=%s file=%s", trigger, filepath.Join(w.dir, w.sentinel))
		if w.onCancel != nil {
			w.onCancel()
		}
	})
}

func (w *CancelWatcher) log(format string, args ...any) {
	if w.logger == nil {
		return
	}
	w.logger.Printf("%s INFO watch: %s", time.Now().Format(time.RFC3339), fmt.Sprintf(format, args...))
}
