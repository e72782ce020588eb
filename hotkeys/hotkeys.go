// Package hotkeys owns the server-side hotkey registry. A Backend wraps
// the OS-level registration primitive; the Manager layers identifiers and
// callbacks on top of it and dispatches press events.
package hotkeys

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cortesi/hotkey-manager/key"
	"github.com/cortesi/hotkey-manager/logger"
)

// ErrNotFound is returned when unbinding a registration id that does not exist.
var ErrNotFound = errors.New("hotkey not found")

// Callback is invoked with the registration's identifier when its key is
// pressed. Callbacks run on the manager's dispatch goroutine and should
// not block for long.
type Callback func(identifier string)

// Event is emitted by a Backend when a registered key combination is pressed.
type Event struct {
	// ID is the opaque registration id returned by Register.
	ID string
}

// Backend abstracts the OS-level global hotkey primitive. Implementations
// assign an opaque id per registration and emit an Event carrying that id
// on every press.
type Backend interface {
	// Register registers a key combination and returns its registration id.
	Register(spec key.Spec) (string, error)

	// Unregister removes a registration by id.
	Unregister(id string) error

	// Events returns the stream of press events. The channel is closed
	// when the backend shuts down.
	Events() <-chan Event

	// Close releases the backend's OS resources.
	Close() error
}

// Registration describes one active binding in the registry.
type Registration struct {
	ID         string
	Identifier string
	Key        key.Spec
}

type entry struct {
	identifier string
	spec       key.Spec
	callback   Callback
}

// Manager maps registration ids to identifiers and callbacks on top of a
// Backend. The registry is guarded by a mutex taken by both the dispatch
// goroutine and request-handling code; the lock is released before a
// callback runs, so a slow callback cannot stall new registrations.
type Manager struct {
	backend Backend
	log     *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry

	done     chan struct{}
	dispatch sync.WaitGroup
}

// NewManager creates a Manager over the given backend and starts its
// event dispatch goroutine.
func NewManager(backend Backend) *Manager {
	m := &Manager{
		backend: backend,
		log:     logger.WithComponent("hotkeys"),
		entries: make(map[string]*entry),
		done:    make(chan struct{}),
	}

	m.dispatch.Add(1)
	go m.run()
	return m
}

func (m *Manager) run() {
	defer m.dispatch.Done()

	for {
		select {
		case <-m.done:
			return
		case ev, ok := <-m.backend.Events():
			if !ok {
				return
			}

			m.mu.Lock()
			e := m.entries[ev.ID]
			m.mu.Unlock()

			if e == nil {
				m.log.Debug("press for unknown registration", "id", ev.ID)
				continue
			}
			m.log.Debug("dispatching press", "identifier", e.identifier)
			e.callback(e.identifier)
		}
	}
}

// Bind registers a key combination under the given identifier. The
// callback receives the identifier on every press. Returns the backend's
// registration id.
func (m *Manager) Bind(identifier string, spec key.Spec, cb Callback) (string, error) {
	id, err := m.backend.Register(spec)
	if err != nil {
		return "", fmt.Errorf("failed to register hotkey %s: %w", spec, err)
	}

	m.mu.Lock()
	m.entries[id] = &entry{identifier: identifier, spec: spec, callback: cb}
	m.mu.Unlock()

	m.log.Debug("bound hotkey", "identifier", identifier, "key", spec.String(), "id", id)
	return id, nil
}

// BindKey parses a key string and binds it. Convenience wrapper over Bind.
func (m *Manager) BindKey(identifier, keyStr string, cb Callback) (string, error) {
	spec, err := key.Parse(keyStr)
	if err != nil {
		return "", err
	}
	return m.Bind(identifier, spec, cb)
}

// Unbind removes a registration by id.
func (m *Manager) Unbind(id string) error {
	m.mu.Lock()
	e, ok := m.entries[id]
	if ok {
		delete(m.entries, id)
	}
	m.mu.Unlock()

	if !ok {
		return ErrNotFound
	}

	if err := m.backend.Unregister(id); err != nil {
		return fmt.Errorf("failed to unregister hotkey %s: %w", e.spec, err)
	}
	return nil
}

// UnbindAll removes every registration. Entries are removed from the
// registry even if the backend fails to unregister some of them; the
// first backend error is returned.
func (m *Manager) UnbindAll() error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	m.entries = make(map[string]*entry)
	m.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := m.backend.Unregister(id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// List returns a snapshot of all active registrations.
func (m *Manager) List() []Registration {
	m.mu.Lock()
	defer m.mu.Unlock()

	regs := make([]Registration, 0, len(m.entries))
	for id, e := range m.entries {
		regs = append(regs, Registration{ID: id, Identifier: e.identifier, Key: e.spec})
	}
	return regs
}

// Close stops the dispatch goroutine and closes the backend.
func (m *Manager) Close() error {
	close(m.done)
	m.dispatch.Wait()
	return m.backend.Close()
}
