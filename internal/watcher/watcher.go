// Package watcher reports PDF files dropped into an upload directory.
package watcher

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"ragchat/internal/logger"
)

const defaultSettle = 500 * time.Millisecond

// Watcher emits the path of every PDF created or rewritten in a directory,
// once writes to it have settled.
type Watcher struct {
	watcher *fsnotify.Watcher
	settle  time.Duration
	log     *logrus.Logger
}

// New creates a watcher. A non-positive settle uses 500ms.
func New(settle time.Duration) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if settle <= 0 {
		settle = defaultSettle
	}
	return &Watcher{watcher: w, settle: settle, log: logger.GetLogger()}, nil
}

// Watch starts monitoring dir. The returned channel is closed when ctx is
// done or the watcher is stopped.
func (w *Watcher) Watch(ctx context.Context, dir string) (<-chan string, error) {
	if err := w.watcher.Add(dir); err != nil {
		return nil, err
	}

	files := make(chan string, 16)
	ready := make(chan string)
	var (
		mu     sync.Mutex
		timers = map[string]*time.Timer{}
	)

	go func() {
		defer close(files)
		defer func() {
			mu.Lock()
			for _, t := range timers {
				t.Stop()
			}
			mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !isPDF(event.Name) || !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
					continue
				}
				// copies arrive as a burst of writes; wait for quiet
				mu.Lock()
				if t, ok := timers[event.Name]; ok {
					t.Reset(w.settle)
				} else {
					name := event.Name
					timers[name] = time.AfterFunc(w.settle, func() {
						select {
						case ready <- name:
						case <-ctx.Done():
						}
					})
				}
				mu.Unlock()
			case name := <-ready:
				mu.Lock()
				delete(timers, name)
				mu.Unlock()
				w.log.WithField("file", name).Info("new document in watch directory")
				select {
				case files <- name:
				case <-ctx.Done():
					return
				}
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.log.WithError(err).Warn("watch error")
			}
		}
	}()

	return files, nil
}

// Stop releases the underlying watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}
