package filemedium

import (
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"ssw-trace-core/internal/bterr"
)

// DirectoryWatcher watches a trace directory for newly created stream
// files, so a file medium's source component can add output ports for
// streams that appear after the graph has already started running.
type DirectoryWatcher struct {
	watcher *fsnotify.Watcher
	logger  *logrus.Entry
	NewFile chan string
	Errors  chan error
}

// WatchDirectory begins watching dir for new regular files. Index
// sidecars (anything under an `index/` subdirectory) are not reported
// as new streams.
func WatchDirectory(dir string, logger *logrus.Entry) (*DirectoryWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, bterr.Wrap(err, bterr.KindIO, bterr.ActorUnknown, "filemedium", "watch_directory", "creating fsnotify watcher")
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, bterr.Wrap(err, bterr.KindIO, bterr.ActorUnknown, "filemedium", "watch_directory", dir)
	}

	dw := &DirectoryWatcher{
		watcher: w,
		logger:  logger,
		NewFile: make(chan string, 16),
		Errors:  make(chan error, 4),
	}
	go dw.loop()
	return dw, nil
}

func (dw *DirectoryWatcher) loop() {
	for {
		select {
		case ev, ok := <-dw.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&fsnotify.Create == 0 {
				continue
			}
			if strings.Contains(filepath.ToSlash(ev.Name), "/index/") {
				continue
			}
			dw.logger.WithField("path", ev.Name).Debug("new stream file discovered")
			dw.NewFile <- ev.Name
		case err, ok := <-dw.watcher.Errors:
			if !ok {
				return
			}
			dw.Errors <- err
		}
	}
}

// Close stops the watcher and its event loop.
func (dw *DirectoryWatcher) Close() error {
	return dw.watcher.Close()
}
