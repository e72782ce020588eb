package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cortesi/hotkey-manager/logger"
)

// debounceDelay coalesces the burst of filesystem events an editor
// produces when saving a file.
const debounceDelay = 100 * time.Millisecond

// Watcher reloads a configuration file whenever it changes on disk.
// A reload that fails to parse is logged and dropped; the previously
// loaded configuration stays in effect.
type Watcher struct {
	path      string
	fsWatcher *fsnotify.Watcher
	changes   chan *Config

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
}

// NewWatcher builds a watcher over the config file at path. The parent
// directory is watched rather than the file itself so editors that
// replace the file on save are still observed.
func NewWatcher(path string) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}
	return &Watcher{
		path:      path,
		fsWatcher: fsWatcher,
		changes:   make(chan *Config, 1),
	}, nil
}

// Changes delivers each successfully reloaded configuration. The
// channel is closed by Stop.
func (w *Watcher) Changes() <-chan *Config {
	return w.changes
}

// Start begins watching. Reloads are debounced so an editor's
// write-then-rename save produces a single reload.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.stopChan = make(chan struct{})
	w.mu.Unlock()

	go w.run()
	return nil
}

func (w *Watcher) run() {
	defer close(w.changes)
	log := logger.WithComponent("config")

	var pending <-chan time.Time
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Rename) {
				pending = time.After(debounceDelay)
			}

		case <-pending:
			pending = nil
			cfg, err := Load(w.path)
			if err != nil {
				log.Warn("config reload failed, keeping previous config", "error", err)
				continue
			}
			log.Info("config reloaded", "path", w.path)
			// Replace any reload still waiting to be consumed.
			select {
			case <-w.changes:
			default:
			}
			select {
			case w.changes <- cfg:
			case <-w.stopChan:
				return
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Warn("file watcher error", "error", err)

		case <-w.stopChan:
			return
		}
	}
}

// Stop halts the watcher. The change channel is closed once the event
// loop has wound down. Safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	close(w.stopChan)
	w.fsWatcher.Close()
	w.running = false
}
