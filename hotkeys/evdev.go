//go:build linux

package hotkeys

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	evdev "github.com/holoplot/go-evdev"

	"github.com/cortesi/hotkey-manager/key"
	"github.com/cortesi/hotkey-manager/logger"
)

// evdevCodes maps chord base keys to Linux input event codes.
var evdevCodes = map[key.Code]evdev.EvCode{
	key.CodeA: evdev.KEY_A, key.CodeB: evdev.KEY_B, key.CodeC: evdev.KEY_C,
	key.CodeD: evdev.KEY_D, key.CodeE: evdev.KEY_E, key.CodeF: evdev.KEY_F,
	key.CodeG: evdev.KEY_G, key.CodeH: evdev.KEY_H, key.CodeI: evdev.KEY_I,
	key.CodeJ: evdev.KEY_J, key.CodeK: evdev.KEY_K, key.CodeL: evdev.KEY_L,
	key.CodeM: evdev.KEY_M, key.CodeN: evdev.KEY_N, key.CodeO: evdev.KEY_O,
	key.CodeP: evdev.KEY_P, key.CodeQ: evdev.KEY_Q, key.CodeR: evdev.KEY_R,
	key.CodeS: evdev.KEY_S, key.CodeT: evdev.KEY_T, key.CodeU: evdev.KEY_U,
	key.CodeV: evdev.KEY_V, key.CodeW: evdev.KEY_W, key.CodeX: evdev.KEY_X,
	key.CodeY: evdev.KEY_Y, key.CodeZ: evdev.KEY_Z,

	key.CodeDigit0: evdev.KEY_0, key.CodeDigit1: evdev.KEY_1,
	key.CodeDigit2: evdev.KEY_2, key.CodeDigit3: evdev.KEY_3,
	key.CodeDigit4: evdev.KEY_4, key.CodeDigit5: evdev.KEY_5,
	key.CodeDigit6: evdev.KEY_6, key.CodeDigit7: evdev.KEY_7,
	key.CodeDigit8: evdev.KEY_8, key.CodeDigit9: evdev.KEY_9,

	key.CodeF1: evdev.KEY_F1, key.CodeF2: evdev.KEY_F2,
	key.CodeF3: evdev.KEY_F3, key.CodeF4: evdev.KEY_F4,
	key.CodeF5: evdev.KEY_F5, key.CodeF6: evdev.KEY_F6,
	key.CodeF7: evdev.KEY_F7, key.CodeF8: evdev.KEY_F8,
	key.CodeF9: evdev.KEY_F9, key.CodeF10: evdev.KEY_F10,
	key.CodeF11: evdev.KEY_F11, key.CodeF12: evdev.KEY_F12,

	key.CodeEscape:    evdev.KEY_ESC,
	key.CodeSpace:     evdev.KEY_SPACE,
	key.CodeEnter:     evdev.KEY_ENTER,
	key.CodeTab:       evdev.KEY_TAB,
	key.CodeBackspace: evdev.KEY_BACKSPACE,
	key.CodeDelete:    evdev.KEY_DELETE,
	key.CodeInsert:    evdev.KEY_INSERT,
	key.CodeHome:      evdev.KEY_HOME,
	key.CodeEnd:       evdev.KEY_END,
	key.CodePageUp:    evdev.KEY_PAGEUP,
	key.CodePageDown:  evdev.KEY_PAGEDOWN,

	key.CodeLeft:  evdev.KEY_LEFT,
	key.CodeRight: evdev.KEY_RIGHT,
	key.CodeUp:    evdev.KEY_UP,
	key.CodeDown:  evdev.KEY_DOWN,

	key.CodeMinus:        evdev.KEY_MINUS,
	key.CodeEqual:        evdev.KEY_EQUAL,
	key.CodeBracketLeft:  evdev.KEY_LEFTBRACE,
	key.CodeBracketRight: evdev.KEY_RIGHTBRACE,
	key.CodeBackslash:    evdev.KEY_BACKSLASH,
	key.CodeSemicolon:    evdev.KEY_SEMICOLON,
	key.CodeQuote:        evdev.KEY_APOSTROPHE,
	key.CodeComma:        evdev.KEY_COMMA,
	key.CodePeriod:       evdev.KEY_DOT,
	key.CodeSlash:        evdev.KEY_SLASH,
	key.CodeBackquote:    evdev.KEY_GRAVE,
}

// baseCodes is the inverse of evdevCodes.
var baseCodes = func() map[evdev.EvCode]key.Code {
	m := make(map[evdev.EvCode]key.Code, len(evdevCodes))
	for k, v := range evdevCodes {
		m[v] = k
	}
	return m
}()

// modifierCodes maps modifier event codes to the modifier bit they toggle.
var modifierCodes = map[evdev.EvCode]key.Modifiers{
	evdev.KEY_LEFTCTRL:   key.ModCtrl,
	evdev.KEY_RIGHTCTRL:  key.ModCtrl,
	evdev.KEY_LEFTALT:    key.ModAlt,
	evdev.KEY_RIGHTALT:   key.ModAlt,
	evdev.KEY_LEFTSHIFT:  key.ModShift,
	evdev.KEY_RIGHTSHIFT: key.ModShift,
	evdev.KEY_LEFTMETA:   key.ModSuper,
	evdev.KEY_RIGHTMETA:  key.ModSuper,
}

// EvdevBackend captures global key chords by reading Linux input devices
// directly. It opens every device that looks like a keyboard, tracks the
// held modifier set, and matches each non-modifier press against the
// registered chords. Requires read access to /dev/input.
type EvdevBackend struct {
	log *slog.Logger

	mu         sync.Mutex
	registered map[string]key.Spec
	held       key.Modifiers
	closed     bool

	events  chan Event
	devices []*evdev.InputDevice
	readers sync.WaitGroup
}

// NewEvdevBackend scans /dev/input for keyboards and starts a reader per
// device. Fails if no keyboard device can be opened.
func NewEvdevBackend() (*EvdevBackend, error) {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return nil, fmt.Errorf("failed to list input devices: %w", err)
	}

	b := &EvdevBackend{
		log:        logger.WithComponent("evdev"),
		registered: make(map[string]key.Spec),
		events:     make(chan Event, 16),
	}

	for _, p := range paths {
		dev, err := evdev.Open(p.Path)
		if err != nil {
			continue
		}
		if !isKeyboard(dev) {
			dev.Close()
			continue
		}
		b.log.Info("attached keyboard", "name", p.Name, "path", p.Path)
		b.devices = append(b.devices, dev)
	}

	if len(b.devices) == 0 {
		return nil, fmt.Errorf("no keyboard devices found under /dev/input")
	}

	for _, dev := range b.devices {
		b.readers.Add(1)
		go b.readDevice(dev)
	}
	return b, nil
}

// isKeyboard reports whether the device exposes a letter key, falling
// back to a name check.
func isKeyboard(dev *evdev.InputDevice) bool {
	for _, t := range dev.CapableTypes() {
		if t != evdev.EV_KEY {
			continue
		}
		for _, code := range dev.CapableEvents(t) {
			if code == evdev.KEY_A {
				return true
			}
		}
	}
	name, err := dev.Name()
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(name), "keyboard")
}

func (b *EvdevBackend) readDevice(dev *evdev.InputDevice) {
	defer b.readers.Done()

	for {
		ev, err := dev.ReadOne()
		if err != nil {
			// Device closed or disconnected.
			return
		}
		if ev.Type != evdev.EV_KEY {
			continue
		}

		if mod, ok := modifierCodes[ev.Code]; ok {
			b.mu.Lock()
			switch ev.Value {
			case 1:
				b.held |= mod
			case 0:
				b.held &^= mod
			}
			b.mu.Unlock()
			continue
		}

		// Value 1 is a press; 0 is release, 2 is autorepeat.
		if ev.Value != 1 {
			continue
		}
		base, ok := baseCodes[ev.Code]
		if !ok {
			continue
		}

		b.mu.Lock()
		spec := key.Spec{Mods: b.held, Code: base}
		var id string
		found := false
		for regID, registered := range b.registered {
			if registered == spec {
				id, found = regID, true
				break
			}
		}
		closed := b.closed
		b.mu.Unlock()

		if found && !closed {
			select {
			case b.events <- Event{ID: id}:
			default:
				b.log.Warn("event queue full, dropping press", "key", spec.String())
			}
		}
	}
}

// Register registers a chord for matching. Fails on chords whose base key
// has no Linux event code and on duplicates.
func (b *EvdevBackend) Register(spec key.Spec) (string, error) {
	if _, ok := evdevCodes[spec.Code]; !ok {
		return "", fmt.Errorf("key %s has no input event code", spec)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

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
func (b *EvdevBackend) Unregister(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.registered[id]; !ok {
		return fmt.Errorf("unknown registration id: %s", id)
	}
	delete(b.registered, id)
	return nil
}

// Events returns the press event stream.
func (b *EvdevBackend) Events() <-chan Event {
	return b.events
}

// Close closes all devices and the event stream.
func (b *EvdevBackend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	for _, dev := range b.devices {
		dev.Close()
	}
	b.readers.Wait()
	close(b.events)
	return nil
}

var _ Backend = (*EvdevBackend)(nil)
