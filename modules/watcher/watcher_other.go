//go:build !linux

package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Leantar/incrond/models"
	"github.com/fsnotify/fsnotify"
)

// Watcher emulates inotify watches on top of fsnotify. Event masks are
// translated to inotify bits so tables behave the same on every platform,
// as far as the native backend reports the change.
type Watcher struct {
	Events  chan Event
	Errors  chan error
	watcher *fsnotify.Watcher
	ids     map[string]int
	paths   map[int]string
	next    int
	mu      *sync.Mutex
	done    chan struct{}
}

func New() (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		Events:  make(chan Event),
		Errors:  make(chan error),
		watcher: fw,
		ids:     make(map[string]int),
		paths:   make(map[int]string),
		next:    1,
		mu:      &sync.Mutex{},
		done:    make(chan struct{}),
	}

	go w.readEvents()

	return w, nil
}

func (w *Watcher) Add(path string, mask uint32) (int, error) {
	path = filepath.Clean(path)

	w.mu.Lock()
	defer w.mu.Unlock()

	if id, ok := w.ids[path]; ok {
		return id, nil
	}

	err := w.watcher.Add(path)
	if err != nil {
		return -1, fmt.Errorf("failed to add watch for %s: %w", path, err)
	}

	id := w.next
	w.next++
	w.ids[path] = id
	w.paths[id] = path

	return id, nil
}

func (w *Watcher) Remove(wd int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	path, ok := w.paths[wd]
	if !ok {
		return nil
	}

	delete(w.paths, wd)
	delete(w.ids, path)

	return w.watcher.Remove(path)
}

func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) readEvents() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			evt, ok := w.translate(event)
			if !ok {
				continue
			}

			select {
			case w.Events <- evt:
			case <-w.done:
				return
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}

			select {
			case w.Errors <- err:
			case <-w.done:
				return
			}
		case <-w.done:
			return
		}
	}
}

// translate maps an fsnotify event to the watch it belongs to. Events on the
// watched path itself become *_SELF events with an empty name, events on an
// entry of a watched directory carry the entry name.
func (w *Watcher) translate(event fsnotify.Event) (Event, bool) {
	name := filepath.Clean(event.Name)

	w.mu.Lock()
	id, self := w.ids[name]
	if !self {
		id, self = w.ids[filepath.Dir(name)], false
	}
	w.mu.Unlock()

	if id == 0 {
		return Event{}, false
	}

	evt := Event{WatchID: id}
	if !self {
		evt.Name = filepath.Base(name)
	}

	evt.Mask = translateOp(event.Op, self)

	if event.Has(fsnotify.Create) {
		if info, err := os.Lstat(name); err == nil && info.IsDir() {
			evt.Mask |= models.InIsDir
		}
	}

	return evt, evt.Mask != 0
}

func translateOp(op fsnotify.Op, self bool) uint32 {
	var mask uint32

	if op.Has(fsnotify.Create) {
		mask |= models.InCreate
	}
	if op.Has(fsnotify.Write) {
		mask |= models.InModify
	}
	if op.Has(fsnotify.Chmod) {
		mask |= models.InAttrib
	}
	if op.Has(fsnotify.Remove) {
		if self {
			mask |= models.InDeleteSelf
		} else {
			mask |= models.InDelete
		}
	}
	if op.Has(fsnotify.Rename) {
		if self {
			mask |= models.InMoveSelf
		} else {
			mask |= models.InMovedFrom
		}
	}

	return mask
}
