// Package watch reloads a workbook when it changes on disk.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce absorbs the burst of events a single save produces.
const DefaultDebounce = 500 * time.Millisecond

// Event records one reload triggered by a file change.
type Event struct {
	Time      time.Time `json:"time"`
	Path      string    `json:"path"`
	Operation string    `json:"operation"`
	Status    string    `json:"status"` // "processed", "error"
	Error     string    `json:"error,omitempty"`
}

// Handler is called with the watched path after it settles.
type Handler func(path string) error

// Watcher monitors one file. It watches the parent directory so that
// editors which save by rename-and-replace are still noticed.
type Watcher struct {
	Path     string
	Debounce time.Duration
	Handler  Handler
	Logger   *slog.Logger

	mu      sync.Mutex
	events  []Event
	timer   *time.Timer
	watcher *fsnotify.Watcher
}

// New creates a watcher for path.
func New(path string, handler Handler) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("could not resolve %s: %w", path, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("could not create file watcher: %w", err)
	}

	return &Watcher{
		Path:     abs,
		Debounce: DefaultDebounce,
		Handler:  handler,
		Logger:   slog.Default(),
		watcher:  fsw,
	}, nil
}

// Start begins watching. It blocks until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.Path)
	if err := w.watcher.Add(dir); err != nil {
		w.watcher.Close()
		return fmt.Errorf("could not watch %s: %w", dir, err)
	}
	w.Logger.Info("watching workbook", slog.String("path", w.Path))

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return w.watcher.Close()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.Logger.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.Path {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	// Debounce: wait before processing to avoid rapid fire
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	op := event.Op.String()
	w.timer = time.AfterFunc(w.Debounce, func() {
		w.process(op)
	})
}

func (w *Watcher) process(operation string) {
	evt := Event{Time: time.Now(), Path: w.Path, Operation: operation, Status: "processed"}

	if w.Handler != nil {
		if err := w.Handler(w.Path); err != nil {
			evt.Status = "error"
			evt.Error = err.Error()
			w.Logger.Warn("reload failed", slog.String("path", w.Path), slog.String("error", err.Error()))
		} else {
			w.Logger.Info("workbook reloaded", slog.String("path", w.Path))
		}
	}

	w.mu.Lock()
	w.events = append(w.events, evt)
	w.mu.Unlock()
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

// Events returns all recorded reloads.
func (w *Watcher) Events() []Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	events := make([]Event, len(w.events))
	copy(events, w.events)
	return events
}
