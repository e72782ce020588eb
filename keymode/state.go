package keymode

import (
	"context"
	"log/slog"

	"github.com/cortesi/hotkey-manager/exec"
	"github.com/cortesi/hotkey-manager/logger"
)

// Outcome describes what a dispatch did. Recognized is false when the
// identifier matched no binding in scope, in which case the other
// fields are zero.
type Outcome struct {
	Recognized bool
	// RanCommand holds the command line that was started, if any.
	RanCommand string
	// ChangedMode is set when the dispatch changed the stack depth.
	ChangedMode bool
	// Terminated is set when the session should end.
	Terminated bool
}

// State tracks the currently active mode as a stack over a fixed root.
// An empty stack means the root mode is active. State is not safe for
// concurrent use; it is owned by the event loop that feeds it.
type State struct {
	root  *Mode
	stack []*Mode
	log   *slog.Logger
}

// NewState builds a State over root, positioned at the root.
func NewState(root *Mode) *State {
	return &State{
		root: root,
		log:  logger.WithComponent("keymode"),
	}
}

// Depth reports how many modes have been entered. Zero means the root
// mode is active.
func (s *State) Depth() int {
	return len(s.stack)
}

// Reset returns to the root mode.
func (s *State) Reset() {
	s.stack = s.stack[:0]
}

// current returns the mode at the top of the stack, or the root.
func (s *State) current() *Mode {
	if n := len(s.stack); n > 0 {
		return s.stack[n-1]
	}
	return s.root
}

// Dispatch resolves identifier against the active mode and executes the
// matched action. Lookup tries the active mode first; on a miss it
// walks the ancestor modes from nearest to farthest, finishing at the
// root, considering only bindings marked global. The first match wins,
// so a binding in the active mode shadows a same-key global one from an
// ancestor.
func (s *State) Dispatch(identifier string) Outcome {
	if action, attrs, ok := s.current().Get(identifier); ok {
		return s.execute(action, attrs)
	}

	for i := len(s.stack) - 2; i >= 0; i-- {
		if action, attrs, ok := s.stack[i].Get(identifier); ok && attrs.Global {
			return s.execute(action, attrs)
		}
	}
	if len(s.stack) > 0 {
		if action, attrs, ok := s.root.Get(identifier); ok && attrs.Global {
			return s.execute(action, attrs)
		}
	}

	s.log.Debug("unrecognized key", "identifier", identifier, "depth", len(s.stack))
	return Outcome{}
}

func (s *State) execute(action Action, attrs Attrs) Outcome {
	before := len(s.stack)
	out := Outcome{Recognized: true}

	switch action.Kind {
	case ActionEnter:
		s.stack = append(s.stack, action.Mode)
	case ActionAscend:
		if len(s.stack) > 0 {
			s.stack = s.stack[:len(s.stack)-1]
		} else {
			// Nothing above the root to ascend to.
			out.Terminated = true
		}
	case ActionRunCommand:
		if err := exec.Shell(context.Background(), s.log, action.Command); err != nil {
			s.log.Warn("failed to start command", "command", action.Command, "error", err)
		}
		out.RanCommand = action.Command
		if !attrs.Sticky {
			s.Reset()
		}
	case ActionTerminate:
		if !attrs.Sticky {
			s.Reset()
		}
		out.Terminated = true
	}

	out.ChangedMode = len(s.stack) != before
	return out
}

// KeysInScope returns every binding reachable at the current depth: the
// active mode's bindings plus the global bindings of each ancestor down
// to the root. On a key collision the nearest definition wins and the
// farther ones are dropped. Hidden bindings are included; filtering
// them is a display concern.
func (s *State) KeysInScope() []Binding {
	var keys []Binding
	seen := make(map[string]bool)

	for _, b := range s.current().Bindings {
		id := b.identifier()
		if seen[id] {
			continue
		}
		seen[id] = true
		keys = append(keys, b)
	}

	for i := len(s.stack) - 2; i >= 0; i-- {
		for _, b := range s.stack[i].Bindings {
			id := b.identifier()
			if !b.Attrs.Global || seen[id] {
				continue
			}
			seen[id] = true
			keys = append(keys, b)
		}
	}
	if len(s.stack) > 0 {
		for _, b := range s.root.Bindings {
			id := b.identifier()
			if !b.Attrs.Global || seen[id] {
				continue
			}
			seen[id] = true
			keys = append(keys, b)
		}
	}

	return keys
}
