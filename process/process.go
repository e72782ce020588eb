// Package process supervises the background hotkey server as an OS
// subprocess: spawn with a startup grace period and liveness probe,
// forceful idempotent stop, and orphan cleanup after unclean exits.
package process

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/cortesi/hotkey-manager/logger"
)

// DefaultStartupDelay is the grace period after spawning before the
// process is probed and declared started.
const DefaultStartupDelay = 500 * time.Millisecond

// stopWaitTimeout bounds how long Stop waits for the killed process to
// be reaped before giving up.
const stopWaitTimeout = 5 * time.Second

// Config describes how to launch the server process.
type Config struct {
	// Executable is the path to the server binary. By convention this
	// is the caller's own executable re-invoked with a server flag.
	Executable string

	// Args are passed to the executable. Defaults to ["--server"].
	Args []string

	// Env lists extra "KEY=value" environment entries.
	Env []string

	// InheritEnv controls whether the parent's environment is passed
	// through. Extra Env entries are appended either way.
	InheritEnv bool

	// StartupDelay is how long to wait after spawning before the
	// liveness probe decides whether startup succeeded.
	StartupDelay time.Duration
}

// NewConfig returns a Config with the conventional defaults for the
// given executable.
func NewConfig(executable string) Config {
	return Config{
		Executable:   executable,
		Args:         []string{"--server"},
		InheritEnv:   true,
		StartupDelay: DefaultStartupDelay,
	}
}

// ServerProcess supervises one spawned server subprocess.
type ServerProcess struct {
	config Config
	log    *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	running bool

	// waitDone is closed by monitorExit when cmd.Wait() completes.
	// Stop() selects on this channel instead of calling cmd.Wait()
	// again, since cmd.Wait() must only be called once.
	waitDone chan struct{}
}

// NewServerProcess creates a supervisor for the given configuration.
// Nothing is spawned until Start.
func NewServerProcess(config Config) *ServerProcess {
	return &ServerProcess{
		config: config,
		log:    logger.WithComponent("process"),
	}
}

// Config returns the launch configuration.
func (p *ServerProcess) Config() Config {
	return p.config
}

// Start spawns the process, waits the startup grace period, and probes
// that it is still alive. A process that exits during the grace period
// is a startup failure.
func (p *ServerProcess) Start() error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("server is already running")
	}

	p.log.Info("starting server process", "executable", p.config.Executable, "args", p.config.Args)

	cmd := exec.Command(p.config.Executable, p.config.Args...)
	if p.config.InheritEnv {
		cmd.Env = append(os.Environ(), p.config.Env...)
	} else {
		cmd.Env = p.config.Env
	}

	if err := cmd.Start(); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("failed to spawn server process: %w", err)
	}

	p.cmd = cmd
	p.running = true
	p.waitDone = make(chan struct{})
	waitDone := p.waitDone
	p.mu.Unlock()

	p.log.Info("server process spawned", "pid", cmd.Process.Pid)

	// Sole caller of cmd.Wait(); Stop coordinates via waitDone.
	go func() {
		cmd.Wait()
		close(waitDone)
	}()

	delay := p.config.StartupDelay
	if delay <= 0 {
		delay = DefaultStartupDelay
	}
	time.Sleep(delay)

	if !p.IsRunning() {
		return fmt.Errorf("server process died during startup")
	}
	return nil
}

// Stop kills the process and waits synchronously for it to be reaped.
// Idempotent: stopping an already-stopped or already-dead process is
// not an error. Safe to call from teardown paths.
func (p *ServerProcess) Stop() error {
	p.mu.Lock()
	cmd := p.cmd
	waitDone := p.waitDone
	p.cmd = nil
	p.running = false
	p.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	p.log.Info("stopping server process", "pid", cmd.Process.Pid)
	if err := cmd.Process.Kill(); err != nil && !isAlreadyFinished(err) {
		return fmt.Errorf("failed to kill server process: %w", err)
	}

	select {
	case <-waitDone:
	case <-time.After(stopWaitTimeout):
		p.log.Warn("timed out waiting for server process to exit", "pid", cmd.Process.Pid)
	}
	return nil
}

// Restart stops the process if running and starts it again.
func (p *ServerProcess) Restart() error {
	p.log.Info("restarting server process")
	if err := p.Stop(); err != nil {
		return err
	}
	return p.Start()
}

// IsRunning probes the process with a no-op signal and reports whether
// it is still alive.
func (p *ServerProcess) IsRunning() bool {
	p.mu.Lock()
	cmd := p.cmd
	running := p.running
	p.mu.Unlock()

	if !running || cmd == nil || cmd.Process == nil {
		return false
	}

	// Signal 0 delivers nothing but reports whether the pid is alive.
	if err := cmd.Process.Signal(syscall.Signal(0)); err != nil {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
		return false
	}
	return true
}

// Pid returns the process id, or 0 if nothing is running.
func (p *ServerProcess) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func isAlreadyFinished(err error) bool {
	return errors.Is(err, os.ErrProcessDone)
}
