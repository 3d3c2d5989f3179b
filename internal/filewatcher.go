package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce is how long the watcher waits for events to quiet down before
// firing the callback. Files are often written in chunks; firing on the
// first write would hand the callback a half-written file.
const debounce = 100 * time.Millisecond

// FileWatcher watches a single file and calls back when it changes. The
// relay server uses it to hot-reload its config file.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	filename string
	callback func()
	closeC   chan struct{}
	started  atomic.Bool
}

// NewFileWatcher creates a watcher for path. Start begins watching.
func NewFileWatcher(path string, callback func()) *FileWatcher {
	return &FileWatcher{
		dir:      filepath.Dir(path),
		filename: filepath.Base(path),
		callback: callback,
	}
}

func (fw *FileWatcher) Start() error {
	if !fw.started.CompareAndSwap(false, true) {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fw.started.Store(false)
		return fmt.Errorf("start watcher: %w", err)
	}
	// Watch the directory, not the file: editors and atomic writers replace
	// the file, which would silently detach a direct watch.
	if err := watcher.Add(fw.dir); err != nil {
		watcher.Close()
		fw.started.Store(false)
		return fmt.Errorf("watch %s: %w", fw.dir, err)
	}
	fw.watcher = watcher
	fw.closeC = make(chan struct{})
	go fw.watchLoop()
	return nil
}

func (fw *FileWatcher) Close() error {
	if !fw.started.CompareAndSwap(true, false) {
		return nil
	}
	close(fw.closeC)
	return fw.watcher.Close()
}

func (fw *FileWatcher) watchLoop() {
	var (
		timer       *time.Timer
		timerAccess sync.Mutex
	)
	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != fw.filename {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			slog.Debug("watched file changed", "file", event.Name, "op", event.Op)

			timerAccess.Lock()
			if timer == nil {
				timer = time.AfterFunc(debounce, func() {
					fw.callback()
					timerAccess.Lock()
					timer = nil
					timerAccess.Unlock()
				})
			} else {
				timer.Reset(debounce)
			}
			timerAccess.Unlock()
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("watching file", "error", err)
		case <-fw.closeC:
			return
		}
	}
}
