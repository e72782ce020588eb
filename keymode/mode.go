// Package keymode implements the hierarchical key binding model: a tree
// of modes whose bindings map key identifiers to actions, and a stateful
// dispatcher that walks the tree as keys arrive.
package keymode

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/cortesi/hotkey-manager/key"
)

// Attrs modify how a binding behaves once matched.
type Attrs struct {
	// Sticky suppresses the return to the root mode that normally
	// follows a command.
	Sticky bool `yaml:"sticky,omitempty"`
	// Global makes the binding reachable from any mode below its
	// defining one, not only the mode it appears in.
	Global bool `yaml:"global,omitempty"`
	// Hidden excludes the binding from key listings. It still
	// dispatches.
	Hidden bool `yaml:"hidden,omitempty"`
}

// ActionKind discriminates the Action variants.
type ActionKind int

const (
	// ActionRunCommand executes a shell command line.
	ActionRunCommand ActionKind = iota
	// ActionEnter pushes a nested mode onto the stack.
	ActionEnter
	// ActionAscend pops one mode off the stack.
	ActionAscend
	// ActionTerminate ends the session.
	ActionTerminate
)

// Action is what a binding does when its key is pressed. Command is set
// for ActionRunCommand, Mode for ActionEnter.
type Action struct {
	Kind    ActionKind
	Command string
	Mode    *Mode
}

// RunCommand builds a shell command action.
func RunCommand(cmd string) Action {
	return Action{Kind: ActionRunCommand, Command: cmd}
}

// Enter builds an action that descends into a nested mode.
func Enter(mode *Mode) Action {
	return Action{Kind: ActionEnter, Mode: mode}
}

// Ascend builds an action that pops one mode level.
func Ascend() Action {
	return Action{Kind: ActionAscend}
}

// Terminate builds an action that ends the session.
func Terminate() Action {
	return Action{Kind: ActionTerminate}
}

// Equal reports structural equality, recursing into nested modes.
func (a Action) Equal(b Action) bool {
	if a.Kind != b.Kind || a.Command != b.Command {
		return false
	}
	if (a.Mode == nil) != (b.Mode == nil) {
		return false
	}
	if a.Mode != nil && !a.Mode.Equal(b.Mode) {
		return false
	}
	return true
}

// Binding ties a key identifier to a named action.
type Binding struct {
	Key    string
	Name   string
	Action Action
	Attrs  Attrs
}

// Equal reports structural equality.
func (b Binding) Equal(o Binding) bool {
	return b.Key == o.Key && b.Name == o.Name && b.Attrs == o.Attrs && b.Action.Equal(o.Action)
}

// Mode is an ordered set of bindings. Modes nest through ActionEnter,
// forming a tree that is immutable once loaded.
type Mode struct {
	Bindings []Binding
}

// Equal reports whether two modes hold the same binding sequence,
// element-wise and recursively through nested modes.
func (m *Mode) Equal(o *Mode) bool {
	if m == nil || o == nil {
		return m == o
	}
	if len(m.Bindings) != len(o.Bindings) {
		return false
	}
	for i := range m.Bindings {
		if !m.Bindings[i].Equal(o.Bindings[i]) {
			return false
		}
	}
	return true
}

// Get returns the action and attributes bound to identifier, matching
// either the binding's literal key string or its canonical form.
func (m *Mode) Get(identifier string) (Action, Attrs, bool) {
	for _, b := range m.Bindings {
		if b.matches(identifier) {
			return b.Action, b.Attrs, true
		}
	}
	return Action{}, Attrs{}, false
}

func (b Binding) matches(identifier string) bool {
	if b.Key == identifier {
		return true
	}
	spec, err := key.Parse(b.Key)
	return err == nil && spec.String() == identifier
}

// identifier returns the canonical form of the binding's key, falling
// back to the literal string when it does not parse.
func (b Binding) identifier() string {
	spec, err := key.Parse(b.Key)
	if err != nil {
		return b.Key
	}
	return spec.String()
}

// Validate checks that every key string in the mode tree parses,
// recursing into nested modes. Errors carry the offending key and its
// binding name so the source file can be fixed.
func (m *Mode) Validate() error {
	for _, b := range m.Bindings {
		if _, err := key.Parse(b.Key); err != nil {
			return fmt.Errorf("invalid key '%s' (%s): %w", b.Key, b.Name, err)
		}
		if b.Action.Kind == ActionEnter && b.Action.Mode != nil {
			if err := b.Action.Mode.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Keys returns the key specs of every binding in the mode, in order.
// The mode must have been validated.
func (m *Mode) Keys() ([]key.Spec, error) {
	specs := make([]key.Spec, 0, len(m.Bindings))
	for _, b := range m.Bindings {
		spec, err := key.Parse(b.Key)
		if err != nil {
			return nil, fmt.Errorf("invalid key '%s' (%s): %w", b.Key, b.Name, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// Action words used in configuration files.
const (
	actionWordShell = "shell"
	actionWordMode  = "mode"
	actionWordPop   = "pop"
	actionWordExit  = "exit"
)

// UnmarshalYAML decodes an action, which is either a bare marker word
// ("pop", "exit") or a single-key mapping ({shell: cmd} or
// {mode: [...]}).
func (a *Action) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		switch node.Value {
		case actionWordPop:
			*a = Ascend()
			return nil
		case actionWordExit:
			*a = Terminate()
			return nil
		default:
			return fmt.Errorf("unknown action %q (expected %q or %q)", node.Value, actionWordPop, actionWordExit)
		}
	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return fmt.Errorf("action mapping must have exactly one entry")
		}
		tag := node.Content[0].Value
		value := node.Content[1]
		switch tag {
		case actionWordShell:
			var cmd string
			if err := value.Decode(&cmd); err != nil {
				return fmt.Errorf("shell action: %w", err)
			}
			*a = RunCommand(cmd)
			return nil
		case actionWordMode:
			var mode Mode
			if err := value.Decode(&mode); err != nil {
				return fmt.Errorf("mode action: %w", err)
			}
			*a = Enter(&mode)
			return nil
		default:
			return fmt.Errorf("unknown action %q (expected %q or %q)", tag, actionWordShell, actionWordMode)
		}
	default:
		return fmt.Errorf("action must be a marker word or a single-entry mapping")
	}
}

// MarshalYAML encodes the action in the same shape UnmarshalYAML reads.
func (a Action) MarshalYAML() (interface{}, error) {
	switch a.Kind {
	case ActionRunCommand:
		return map[string]string{actionWordShell: a.Command}, nil
	case ActionEnter:
		return map[string]*Mode{actionWordMode: a.Mode}, nil
	case ActionAscend:
		return actionWordPop, nil
	case ActionTerminate:
		return actionWordExit, nil
	default:
		return nil, fmt.Errorf("unknown action kind %d", a.Kind)
	}
}

// UnmarshalYAML decodes a mode as a sequence of bindings, each a 3
// element tuple [key, name, action] optionally extended to 4 elements
// with an attributes mapping.
func (m *Mode) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		return fmt.Errorf("mode must be a sequence of bindings")
	}
	bindings := make([]Binding, 0, len(node.Content))
	for _, entry := range node.Content {
		if entry.Kind != yaml.SequenceNode || len(entry.Content) < 3 || len(entry.Content) > 4 {
			return fmt.Errorf("binding must be [key, name, action] or [key, name, action, attrs]")
		}
		var b Binding
		if err := entry.Content[0].Decode(&b.Key); err != nil {
			return fmt.Errorf("binding key: %w", err)
		}
		if err := entry.Content[1].Decode(&b.Name); err != nil {
			return fmt.Errorf("binding name: %w", err)
		}
		if err := entry.Content[2].Decode(&b.Action); err != nil {
			return fmt.Errorf("binding '%s' (%s): %w", b.Key, b.Name, err)
		}
		if len(entry.Content) == 4 {
			if err := entry.Content[3].Decode(&b.Attrs); err != nil {
				return fmt.Errorf("binding '%s' (%s) attrs: %w", b.Key, b.Name, err)
			}
		}
		bindings = append(bindings, b)
	}
	m.Bindings = bindings
	return nil
}

// MarshalYAML encodes the mode as binding tuples, omitting the attrs
// element when all attributes are defaults.
func (m *Mode) MarshalYAML() (interface{}, error) {
	entries := make([]interface{}, 0, len(m.Bindings))
	for _, b := range m.Bindings {
		if b.Attrs == (Attrs{}) {
			entries = append(entries, []interface{}{b.Key, b.Name, b.Action})
		} else {
			entries = append(entries, []interface{}{b.Key, b.Name, b.Action, b.Attrs})
		}
	}
	return entries, nil
}

// ParseMode loads and validates a YAML mode tree.
func ParseMode(data []byte) (*Mode, error) {
	var mode Mode
	if err := yaml.Unmarshal(data, &mode); err != nil {
		return nil, fmt.Errorf("failed to parse mode tree: %w", err)
	}
	if err := mode.Validate(); err != nil {
		return nil, err
	}
	return &mode, nil
}
