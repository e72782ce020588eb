package process

import (
	"strings"
	"testing"
	"time"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig("/usr/local/bin/hotki")

	if cfg.Executable != "/usr/local/bin/hotki" {
		t.Errorf("Executable = %q", cfg.Executable)
	}
	if len(cfg.Args) != 1 || cfg.Args[0] != "--server" {
		t.Errorf("Args = %v, want [--server]", cfg.Args)
	}
	if !cfg.InheritEnv {
		t.Error("InheritEnv should default to true")
	}
	if cfg.StartupDelay != DefaultStartupDelay {
		t.Errorf("StartupDelay = %v, want %v", cfg.StartupDelay, DefaultStartupDelay)
	}
}

func TestStartStop(t *testing.T) {
	cfg := Config{
		Executable:   "sleep",
		Args:         []string{"30"},
		InheritEnv:   true,
		StartupDelay: 50 * time.Millisecond,
	}
	p := NewServerProcess(cfg)

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !p.IsRunning() {
		t.Error("IsRunning should be true after Start")
	}
	if p.Pid() == 0 {
		t.Error("Pid should be nonzero after Start")
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if p.IsRunning() {
		t.Error("IsRunning should be false after Stop")
	}
	if p.Pid() != 0 {
		t.Error("Pid should be zero after Stop")
	}
}

func TestStart_AlreadyRunning(t *testing.T) {
	cfg := Config{
		Executable:   "sleep",
		Args:         []string{"30"},
		InheritEnv:   true,
		StartupDelay: 50 * time.Millisecond,
	}
	p := NewServerProcess(cfg)

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	if err := p.Start(); err == nil {
		t.Error("second Start should fail while running")
	}
}

func TestStart_SpawnFailure(t *testing.T) {
	cfg := Config{
		Executable:   "/nonexistent/binary",
		InheritEnv:   true,
		StartupDelay: 10 * time.Millisecond,
	}
	p := NewServerProcess(cfg)

	if err := p.Start(); err == nil {
		t.Error("Start of a nonexistent executable should fail")
	}
	if p.IsRunning() {
		t.Error("IsRunning should be false after failed Start")
	}
}

func TestStart_DiesDuringGracePeriod(t *testing.T) {
	cfg := Config{
		Executable:   "false",
		Args:         nil,
		InheritEnv:   true,
		StartupDelay: 200 * time.Millisecond,
	}
	p := NewServerProcess(cfg)

	err := p.Start()
	if err == nil {
		p.Stop()
		t.Fatal("Start should fail when the process exits during the grace period")
	}
	if !strings.Contains(err.Error(), "died during startup") {
		t.Errorf("err = %v, want died-during-startup", err)
	}
}

func TestStop_Idempotent(t *testing.T) {
	cfg := Config{
		Executable:   "sleep",
		Args:         []string{"30"},
		InheritEnv:   true,
		StartupDelay: 50 * time.Millisecond,
	}
	p := NewServerProcess(cfg)

	// Stop before Start is a no-op.
	if err := p.Stop(); err != nil {
		t.Errorf("Stop before Start: %v", err)
	}

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestRestart(t *testing.T) {
	cfg := Config{
		Executable:   "sleep",
		Args:         []string{"30"},
		InheritEnv:   true,
		StartupDelay: 50 * time.Millisecond,
	}
	p := NewServerProcess(cfg)

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	firstPid := p.Pid()

	if err := p.Restart(); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	defer p.Stop()

	if !p.IsRunning() {
		t.Error("IsRunning should be true after Restart")
	}
	if p.Pid() == firstPid {
		t.Error("Restart should produce a new process")
	}
}

func TestEnvClear(t *testing.T) {
	// With InheritEnv false the child sees only the configured entries.
	cfg := Config{
		Executable:   "sh",
		Args:         []string{"-c", "test -z \"$HOME\" && test \"$MARKER\" = yes && sleep 30"},
		Env:          []string{"MARKER=yes"},
		InheritEnv:   false,
		StartupDelay: 200 * time.Millisecond,
	}
	p := NewServerProcess(cfg)

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	p.Stop()
}
