package main

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 100 * time.Millisecond

// fileWatcher signals on Events whenever one file changes. The directory is
// watched rather than the file so editors that save by rename are seen.
type fileWatcher struct {
	watcher *fsnotify.Watcher
	name    string
	Events  chan struct{}
	closeCh chan struct{}
	once    sync.Once
}

func newFileWatcher(path string) (*fileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, err
	}

	fw := &fileWatcher{
		watcher: w,
		name:    filepath.Base(abs),
		Events:  make(chan struct{}, 1),
		closeCh: make(chan struct{}),
	}
	go fw.run()
	return fw, nil
}

func (fw *fileWatcher) Close() error {
	var err error
	fw.once.Do(func() {
		close(fw.closeCh)
		err = fw.watcher.Close()
	})
	return err
}

// run coalesces bursts of events into one signal sent reloadDebounce after
// the last of them.
func (fw *fileWatcher) run() {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Base(event.Name) != fw.name {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(reloadDebounce, fw.signal)
			} else {
				timer.Reset(reloadDebounce)
			}
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("Offsets file watch: ", err)
		case <-fw.closeCh:
			return
		}
	}
}

func (fw *fileWatcher) signal() {
	select {
	case fw.Events <- struct{}{}:
	default: // a reload is already pending
	}
}
