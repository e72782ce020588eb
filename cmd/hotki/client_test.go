package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cortesi/hotkey-manager/config"
	"github.com/cortesi/hotkey-manager/exec"
	"github.com/cortesi/hotkey-manager/hotkeys"
	"github.com/cortesi/hotkey-manager/ipc"
	"github.com/cortesi/hotkey-manager/key"
	"github.com/cortesi/hotkey-manager/keymode"
	"github.com/cortesi/hotkey-manager/logger"
)

// startLoop wires a real server over a MockBackend to an eventLoop run
// in the background, returning handles to drive both sides.
func startLoop(t *testing.T, tree string) (*hotkeys.MockBackend, chan os.Signal, chan error) {
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

	backend := hotkeys.NewMockBackend()
	manager := hotkeys.NewManager(backend)
	t.Cleanup(func() { manager.Close() })

	socketPath := filepath.Join(t.TempDir(), "hotki.sock")
	srv, err := ipc.NewServer(socketPath, manager)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	srv.Start()
	srv.WaitReady()

	conn, err := ipc.Dial(socketPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	mode, err := keymode.ParseMode([]byte(tree))
	if err != nil {
		t.Fatalf("ParseMode: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() {
		done <- eventLoop(conn, keymode.NewState(mode), make(chan *config.Config), sigCh)
	}()
	return backend, sigCh, done
}

// waitRegistered polls until the backend holds the given key.
func waitRegistered(t *testing.T, backend *hotkeys.MockBackend, spec key.Spec) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, r := range backend.Registered() {
			if r == spec {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("key %v never registered", spec)
}

func TestEventLoopTerminateBinding(t *testing.T) {
	backend, _, done := startLoop(t, `
- ["q", "Exit", exit]
- ["h", "Hello", {shell: "echo hello"}]
`)

	spec, err := key.Parse("q")
	if err != nil {
		t.Fatalf("key.Parse: %v", err)
	}
	waitRegistered(t, backend, spec)

	if !backend.Press(spec) {
		t.Fatal("press did not match a registration")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("eventLoop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("eventLoop did not exit on terminate binding")
	}
}

func TestEventLoopRebindsOnModeChange(t *testing.T) {
	backend, sigCh, done := startLoop(t, `
- ["m", "Menu", {mode: [
    ["x", "X", {shell: "echo x"}],
  ]}]
`)

	enter, err := key.Parse("m")
	if err != nil {
		t.Fatalf("key.Parse: %v", err)
	}
	inner, err := key.Parse("x")
	if err != nil {
		t.Fatalf("key.Parse: %v", err)
	}

	waitRegistered(t, backend, enter)
	if !backend.Press(enter) {
		t.Fatal("press did not match a registration")
	}

	// Entering the menu re-registers its key set.
	waitRegistered(t, backend, inner)

	sigCh <- os.Interrupt
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("eventLoop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("eventLoop did not exit on signal")
	}
}
