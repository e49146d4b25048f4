// Package devsync watches a directory of YAML form definitions on disk and
// re-syncs them into the database, for local development against files
// under version control instead of the HTTP API.
package devsync

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// EventType is the kind of filesystem change observed.
type EventType int

const (
	EventCreated EventType = iota
	EventModified
	EventDeleted
	EventRenamed
)

func (e EventType) String() string {
	switch e {
	case EventCreated:
		return "created"
	case EventModified:
		return "modified"
	case EventDeleted:
		return "deleted"
	case EventRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FileEvent is a debounced filesystem change.
type FileEvent struct {
	Type EventType
	Path string
	Name string
}

const watchDebounce = 200 * time.Millisecond

// Watcher watches a single directory for file changes, debouncing rapid
// successive events on the same path before dispatching a handler.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	debounce  time.Duration
	handler   func(FileEvent)

	events chan FileEvent
	done   chan struct{}
	wg     sync.WaitGroup

	pendingMu sync.Mutex
	pending   map[string]*time.Timer
}

// NewWatcher creates a Watcher over dir, calling handler for every create,
// write, remove or rename of a .yaml/.yml file under it.
func NewWatcher(dir string, handler func(FileEvent)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	return &Watcher{
		fsWatcher: fsw,
		debounce:  watchDebounce,
		handler:   handler,
		events:    make(chan FileEvent, 100),
		done:      make(chan struct{}),
		pending:   make(map[string]*time.Timer),
	}, nil
}

// Start begins watching in the background until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		w.processLoop(ctx)
	}()
	go func() {
		defer w.wg.Done()
		w.dispatchLoop(ctx)
	}()
}

// Stop halts watching and releases the underlying OS watch.
func (w *Watcher) Stop() error {
	close(w.done)
	w.wg.Wait()
	return w.fsWatcher.Close()
}

func (w *Watcher) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("form definition watcher error")
		}
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	var eventType EventType
	switch {
	case event.Op&fsnotify.Create != 0:
		eventType = EventCreated
	case event.Op&fsnotify.Write != 0:
		eventType = EventModified
	case event.Op&fsnotify.Remove != 0:
		eventType = EventDeleted
	case event.Op&fsnotify.Rename != 0:
		eventType = EventRenamed
	default:
		return
	}
	if !isFormDefinitionFile(event.Name) {
		return
	}

	fileEvent := FileEvent{Type: eventType, Path: event.Name, Name: filepath.Base(event.Name)}

	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	if timer, exists := w.pending[event.Name]; exists {
		timer.Stop()
	}
	w.pending[event.Name] = time.AfterFunc(w.debounce, func() {
		w.pendingMu.Lock()
		delete(w.pending, event.Name)
		w.pendingMu.Unlock()

		select {
		case w.events <- fileEvent:
		default:
			log.Warn().Str("path", event.Name).Msg("form definition watcher event channel full, dropping event")
		}
	})
}

func (w *Watcher) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event := <-w.events:
			w.handler(event)
		}
	}
}

func isFormDefinitionFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
