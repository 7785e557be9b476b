package host

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/fsnotify/fsnotify"
)

// watcher triggers onChange once per burst of Go source changes below dir.
type watcher struct {
	fs       *fsnotify.Watcher
	log      log.Logger
	debounce time.Duration
	onChange func()
	stopCh   chan struct{}
	doneCh   chan struct{}
	once     sync.Once
}

func newWatcher(dir string, debounce time.Duration, logger log.Logger, onChange func()) (*watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &watcher{
		fs:       fw,
		log:      logger,
		debounce: debounce,
		onChange: onChange,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	if err := w.addTree(dir); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return w, nil
}

func skipDir(name string) bool {
	return name == "vendor" || name == "testdata" || name == "node_modules" ||
		strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}

func (w *watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.fs.Add(p)
	})
}

func (w *watcher) start(wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.run()
	}()
}

func (w *watcher) stop() {
	w.once.Do(func() {
		close(w.stopCh)
		<-w.doneCh
		if err := w.fs.Close(); err != nil {
			w.log.Warn("Error closing source watcher", "err", err)
		}
	})
}

func (w *watcher) run() {
	defer close(w.doneCh)

	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-w.stopCh:
			timer.Stop()
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.log.Debug("Source changed", "file", event.Name, "op", event.Op)
			timer.Reset(w.debounce)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("Source watcher error", "err", err)
		case <-timer.C:
			w.onChange()
		}
	}
}

func (w *watcher) relevant(event fsnotify.Event) bool {
	if event.Op&fsnotify.Create != 0 && !strings.HasSuffix(event.Name, ".go") {
		// New directories are watched as they appear.
		if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() && !skipDir(fi.Name()) {
			if err := w.addTree(event.Name); err != nil {
				w.log.Warn("Failed to watch new directory", "dir", event.Name, "err", err)
			}
			return false
		}
	}
	if !strings.HasSuffix(event.Name, ".go") && filepath.Base(event.Name) != "go.mod" {
		return false
	}
	return event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}
