package hotkeys

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/cortesi/hotkey-manager/key"
)

// MockBackend is an in-memory Backend for tests. Registration ids are
// random UUIDs; presses are injected with Press. Individual keys can be
// made to fail registration to exercise rollback paths.
type MockBackend struct {
	mu         sync.Mutex
	registered map[string]key.Spec
	failing    map[key.Spec]error
	events     chan Event
	closed     bool
}

// NewMockBackend creates a MockBackend with a buffered event stream.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		registered: make(map[string]key.Spec),
		failing:    make(map[key.Spec]error),
		events:     make(chan Event, 16),
	}
}

// FailKey makes future Register calls for spec return err.
func (b *MockBackend) FailKey(spec key.Spec, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failing[spec] = err
}

// Register assigns a UUID registration id, or fails if the key was marked
// failing or is already registered.
func (b *MockBackend) Register(spec key.Spec) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err, ok := b.failing[spec]; ok {
		return "", err
	}
	for _, existing := range b.registered {
		if existing == spec {
			return "", fmt.Errorf("already registered: %s", spec)
		}
	}

	id := uuid.NewString()
	b.registered[id] = spec
	return id, nil
}

// Unregister removes a registration by id.
func (b *MockBackend) Unregister(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.registered[id]; !ok {
		return fmt.Errorf("unknown registration id: %s", id)
	}
	delete(b.registered, id)
	return nil
}

// Events returns the injected press stream.
func (b *MockBackend) Events() <-chan Event {
	return b.events
}

// Press injects a press event for the given key. Returns false if the key
// is not currently registered.
func (b *MockBackend) Press(spec key.Spec) bool {
	b.mu.Lock()
	var id string
	found := false
	for regID, existing := range b.registered {
		if existing == spec {
			id, found = regID, true
			break
		}
	}
	closed := b.closed
	b.mu.Unlock()

	if !found || closed {
		return false
	}
	b.events <- Event{ID: id}
	return true
}

// Registered returns a snapshot of the currently registered keys.
func (b *MockBackend) Registered() []key.Spec {
	b.mu.Lock()
	defer b.mu.Unlock()

	specs := make([]key.Spec, 0, len(b.registered))
	for _, spec := range b.registered {
		specs = append(specs, spec)
	}
	return specs
}

// Close closes the event stream.
func (b *MockBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.events)
	}
	return nil
}

var _ Backend = (*MockBackend)(nil)
