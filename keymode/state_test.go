package keymode

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/cortesi/hotkey-manager/exec"
	"github.com/cortesi/hotkey-manager/logger"
)

// setupState parses tree, installs a mock executor so commands never
// actually run, and returns the state plus the mock for inspection.
func setupState(t *testing.T, tree string) (*State, *exec.MockExecutor) {
	t.Helper()

	logger.Reset()
	if err := logger.Init(filepath.Join(t.TempDir(), "test.log")); err != nil {
		t.Fatalf("logger.Init: %v", err)
	}
	t.Cleanup(logger.Reset)

	mock := exec.NewMockExecutor(nil)
	prev := exec.GetDefaultExecutor()
	exec.SetDefaultExecutor(mock)
	t.Cleanup(func() { exec.SetDefaultExecutor(prev) })

	mode, err := ParseMode([]byte(tree))
	if err != nil {
		t.Fatalf("ParseMode: %v", err)
	}
	return NewState(mode), mock
}

func TestDispatchNavigation(t *testing.T) {
	state, _ := setupState(t, `
- ["q", "Exit", exit]
- ["2", "Mode 2", {mode: [
    ["p", "Back", pop],
    ["s", "Shell", {shell: "ls"}],
    ["e", "Exit", exit],
  ]}]
- ["h", "Hello", {shell: "echo hello"}]
`)

	if state.Depth() != 0 {
		t.Fatalf("initial depth = %d", state.Depth())
	}

	// Commands at root leave the depth at zero.
	out := state.Dispatch("h")
	if !out.Recognized || out.RanCommand != "echo hello" || out.ChangedMode {
		t.Errorf("h outcome = %+v", out)
	}
	if state.Depth() != 0 {
		t.Errorf("depth after root command = %d", state.Depth())
	}

	// Entering a mode pushes one level.
	out = state.Dispatch("2")
	if !out.Recognized || !out.ChangedMode || out.Terminated {
		t.Errorf("enter outcome = %+v", out)
	}
	if state.Depth() != 1 {
		t.Fatalf("depth after enter = %d", state.Depth())
	}

	// A command inside a mode resets to root.
	out = state.Dispatch("s")
	if out.RanCommand != "ls" || !out.ChangedMode {
		t.Errorf("s outcome = %+v", out)
	}
	if state.Depth() != 0 {
		t.Errorf("depth after nested command = %d", state.Depth())
	}

	// Exit inside a mode resets and terminates.
	state.Dispatch("2")
	out = state.Dispatch("e")
	if !out.Terminated || !out.ChangedMode {
		t.Errorf("e outcome = %+v", out)
	}
	if state.Depth() != 0 {
		t.Errorf("depth after exit = %d", state.Depth())
	}

	// Pop returns one level.
	state.Dispatch("2")
	out = state.Dispatch("p")
	if out.Terminated || !out.ChangedMode {
		t.Errorf("pop outcome = %+v", out)
	}
	if state.Depth() != 0 {
		t.Errorf("depth after pop = %d", state.Depth())
	}
}

func TestDispatchAscendAtRootTerminates(t *testing.T) {
	state, _ := setupState(t, `
- ["p", "Pop", pop]
`)
	out := state.Dispatch("p")
	if !out.Recognized || !out.Terminated {
		t.Errorf("pop at root outcome = %+v, want terminated", out)
	}
	if out.ChangedMode {
		t.Error("pop at root should not report a mode change")
	}
	if state.Depth() != 0 {
		t.Errorf("depth = %d", state.Depth())
	}
}

func TestDispatchUnrecognized(t *testing.T) {
	state, _ := setupState(t, `
- ["a", "Action", {shell: "true"}]
`)
	out := state.Dispatch("z")
	if out.Recognized {
		t.Errorf("z outcome = %+v, want unrecognized", out)
	}
	if out != (Outcome{}) {
		t.Errorf("unrecognized outcome should be zero, got %+v", out)
	}
}

func TestDispatchSticky(t *testing.T) {
	state, _ := setupState(t, `
- ["m", "Menu", {mode: [
    ["n", "Normal", {shell: "echo normal"}],
    ["s", "Sticky", {shell: "echo sticky"}, {sticky: true}],
    ["d", "Deep", {mode: [
      ["y", "Sticky Deep", {shell: "echo deep"}, {sticky: true}],
    ]}],
  ]}]
`)

	state.Dispatch("m")
	out := state.Dispatch("s")
	if out.RanCommand != "echo sticky" || out.ChangedMode {
		t.Errorf("sticky outcome = %+v", out)
	}
	if state.Depth() != 1 {
		t.Errorf("depth after sticky command = %d, want 1", state.Depth())
	}

	// Non-sticky still resets.
	out = state.Dispatch("n")
	if state.Depth() != 0 || !out.ChangedMode {
		t.Errorf("depth after normal command = %d, outcome %+v", state.Depth(), out)
	}

	// Sticky holds at depth 2 as well.
	state.Dispatch("m")
	state.Dispatch("d")
	state.Dispatch("y")
	if state.Depth() != 2 {
		t.Errorf("depth after deep sticky command = %d, want 2", state.Depth())
	}
}

const globalTree = `
- ["g", "Global root", {shell: "echo global root"}, {global: true}]
- ["r", "Regular root", {shell: "echo regular root"}]
- ["m", "Menu", {mode: [
    ["a", "Action A", {shell: "echo a"}],
    ["h", "Global menu", {shell: "echo global menu"}, {global: true}],
    ["s", "Submenu", {mode: [
      ["x", "Action X", {shell: "echo x"}],
    ]}],
  ]}]
- ["n", "Other menu", {mode: [
    ["z", "Action Z", {shell: "echo z"}],
  ]}]
`

func TestDispatchGlobalKeys(t *testing.T) {
	state, _ := setupState(t, globalTree)

	// A root global fires from inside a mode.
	state.Dispatch("m")
	out := state.Dispatch("g")
	if out.RanCommand != "echo global root" {
		t.Errorf("g outcome = %+v", out)
	}
	if state.Depth() != 0 {
		t.Errorf("depth after global command = %d", state.Depth())
	}

	// A non-global root key does not.
	state.Dispatch("m")
	out = state.Dispatch("r")
	if out.Recognized {
		t.Errorf("r should be out of scope inside the menu, got %+v", out)
	}
	if state.Depth() != 1 {
		t.Errorf("depth = %d", state.Depth())
	}

	// A mid-stack global fires from deeper down.
	state.Dispatch("s")
	out = state.Dispatch("h")
	if out.RanCommand != "echo global menu" {
		t.Errorf("h outcome = %+v", out)
	}

	// Globals from a sibling subtree are not in scope.
	state.Dispatch("n")
	out = state.Dispatch("h")
	if out.Recognized {
		t.Errorf("h should not reach into a sibling subtree, got %+v", out)
	}
	out = state.Dispatch("g")
	if out.RanCommand != "echo global root" {
		t.Errorf("root global should still fire, got %+v", out)
	}
}

func TestDispatchGlobalShadowing(t *testing.T) {
	state, mock := setupState(t, `
- ["x", "Global X", {shell: "echo outer"}, {global: true}]
- ["m", "Menu", {mode: [
    ["x", "Local X", {shell: "echo inner"}],
  ]}]
`)

	state.Dispatch("m")
	out := state.Dispatch("x")
	if out.RanCommand != "echo inner" {
		t.Errorf("x outcome = %+v, want the local binding to win", out)
	}

	calls := mock.GetCalls()
	if len(calls) != 1 || !reflect.DeepEqual(calls[0].Args, []string{"-c", "echo inner"}) {
		t.Errorf("calls = %+v", calls)
	}
}

func TestDispatchGlobalSticky(t *testing.T) {
	state, _ := setupState(t, `
- ["g", "Global sticky", {shell: "echo g"}, {global: true, sticky: true}]
- ["m", "Menu", {mode: [
    ["s", "Submenu", {mode: [
      ["x", "X", {shell: "echo x"}],
    ]}],
  ]}]
`)
	state.Dispatch("m")
	state.Dispatch("s")
	state.Dispatch("g")
	if state.Depth() != 2 {
		t.Errorf("depth = %d, sticky global should not reset", state.Depth())
	}
}

func TestDispatchHiddenStillFires(t *testing.T) {
	state, _ := setupState(t, `
- ["h", "Hidden", {shell: "echo hidden"}, {hidden: true}]
`)
	out := state.Dispatch("h")
	if out.RanCommand != "echo hidden" {
		t.Errorf("hidden binding did not dispatch: %+v", out)
	}
}

func TestDispatchDeterminism(t *testing.T) {
	presses := []string{"m", "a", "m", "h", "m", "s", "x", "g", "n", "z", "r"}

	run := func() (depths []int, outcomes []Outcome) {
		state, _ := setupState(t, globalTree)
		for _, p := range presses {
			outcomes = append(outcomes, state.Dispatch(p))
			depths = append(depths, state.Depth())
		}
		return depths, outcomes
	}

	d1, o1 := run()
	d2, o2 := run()
	if !reflect.DeepEqual(d1, d2) {
		t.Errorf("depth sequences differ: %v vs %v", d1, d2)
	}
	if !reflect.DeepEqual(o1, o2) {
		t.Errorf("outcome sequences differ: %v vs %v", o1, o2)
	}
}

func TestDispatchCanonicalIdentifier(t *testing.T) {
	// Bindings authored with alias spellings still match the canonical
	// identifier that trigger events carry.
	state, _ := setupState(t, `
- ["command+shift+n", "New", {shell: "echo new"}]
`)
	out := state.Dispatch("shift+cmd+n")
	if out.RanCommand != "echo new" {
		t.Errorf("canonical identifier did not match aliased binding: %+v", out)
	}
}

func TestKeysInScope(t *testing.T) {
	state, _ := setupState(t, globalTree)

	ids := func() []string {
		var out []string
		for _, b := range state.KeysInScope() {
			out = append(out, b.Key)
		}
		return out
	}

	// At root every root binding is in scope, global or not.
	root := ids()
	if !reflect.DeepEqual(root, []string{"g", "r", "m", "n"}) {
		t.Errorf("root scope = %v", root)
	}

	// Inside the menu: its own bindings plus the root global.
	state.Dispatch("m")
	menu := ids()
	if !reflect.DeepEqual(menu, []string{"a", "h", "s", "g"}) {
		t.Errorf("menu scope = %v", menu)
	}

	// In the submenu: own binding, menu global, root global.
	state.Dispatch("s")
	sub := ids()
	if !reflect.DeepEqual(sub, []string{"x", "h", "g"}) {
		t.Errorf("submenu scope = %v", sub)
	}
}

func TestKeysInScopeShadowing(t *testing.T) {
	state, _ := setupState(t, `
- ["x", "Root X", {shell: "echo root"}, {global: true}]
- ["m", "Menu", {mode: [
    ["x", "Menu X", {shell: "echo menu"}, {global: true}],
    ["s", "Submenu", {mode: [
      ["y", "Y", {shell: "echo y"}],
    ]}],
  ]}]
`)

	state.Dispatch("m")
	state.Dispatch("s")
	keys := state.KeysInScope()
	if len(keys) != 2 {
		t.Fatalf("scope = %+v, want 2 bindings", keys)
	}
	// The menu's x shadows the root's x; the nearer name wins.
	var found bool
	for _, b := range keys {
		if b.Key == "x" {
			found = true
			if b.Name != "Menu X" {
				t.Errorf("x resolved to %q, want the nearer binding", b.Name)
			}
		}
	}
	if !found {
		t.Error("x missing from scope")
	}
}

func TestKeysInScopeIncludesHidden(t *testing.T) {
	state, _ := setupState(t, `
- ["v", "Visible", {shell: "echo v"}]
- ["h", "Hidden", {shell: "echo h"}, {hidden: true}]
`)
	keys := state.KeysInScope()
	if len(keys) != 2 {
		t.Fatalf("scope = %+v, want both bindings", keys)
	}
	visible := 0
	for _, b := range keys {
		if !b.Attrs.Hidden {
			visible++
		}
	}
	if visible != 1 {
		t.Errorf("visible = %d, want 1", visible)
	}
}

func TestReset(t *testing.T) {
	state, _ := setupState(t, `
- ["m", "Menu", {mode: [
    ["x", "X", exit],
  ]}]
`)
	state.Dispatch("m")
	if state.Depth() != 1 {
		t.Fatalf("depth = %d", state.Depth())
	}
	state.Reset()
	if state.Depth() != 0 {
		t.Errorf("depth after Reset = %d", state.Depth())
	}
}
