package profile

import (
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/actionpipe/pipeline"
)

// Watcher errors.
var (
	// ErrWatcherClosed is returned when operations are attempted on a
	// closed watcher.
	ErrWatcherClosed = errors.New("profile: watcher is closed")
)

// Watcher reloads a profile file on change and applies it to an engine.
//
// The parent directory is watched rather than the file itself so that
// editors which replace the file (rename-over-write) still trigger a
// reload.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	engine  *pipeline.Engine

	errs    chan error
	reloads atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// Watch loads the profile at path, applies it to eng, and starts watching
// for changes.
func Watch(path string, eng *pipeline.Engine) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	doc, err := Load(absPath)
	if err != nil {
		return nil, err
	}
	if err := doc.Apply(eng); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		watcher: fsw,
		path:    absPath,
		engine:  eng,
		errs:    make(chan error, 16),
		done:    make(chan struct{}),
	}

	w.wg.Add(1)
	go w.processLoop()

	return w, nil
}

// Errors returns the channel of reload errors. Errors are dropped when the
// channel is full.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// Reloads returns the number of successful reloads since Watch.
func (w *Watcher) Reloads() uint64 {
	return w.reloads.Load()
}

// Close stops watching. Safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) processLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.reportError(err)
		}
	}
}

func (w *Watcher) reload() {
	doc, err := Load(w.path)
	if err != nil {
		w.reportError(err)
		return
	}
	if doc == nil {
		// File removed mid-rename; keep current configuration.
		return
	}
	if err := doc.Apply(w.engine); err != nil {
		w.reportError(err)
		return
	}
	w.reloads.Add(1)
}

func (w *Watcher) reportError(err error) {
	select {
	case w.errs <- err:
	default:
		// Channel full, drop error.
	}
}
