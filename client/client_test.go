package client

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cortesi/hotkey-manager/hotkeys"
	"github.com/cortesi/hotkey-manager/ipc"
	"github.com/cortesi/hotkey-manager/key"
	"github.com/cortesi/hotkey-manager/logger"
	"github.com/cortesi/hotkey-manager/process"
)

func initTestLogger(t *testing.T) {
	t.Helper()
	logger.Reset()
	if err := logger.Init(filepath.Join(t.TempDir(), "test.log")); err != nil {
		t.Fatalf("logger.Init: %v", err)
	}
	t.Cleanup(logger.Reset)
}

// startTestServer runs a real server over a MockBackend on a temp
// socket and returns the socket path.
func startTestServer(t *testing.T) string {
	t.Helper()

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
	return socketPath
}

func TestNewDefaults(t *testing.T) {
	initTestLogger(t)

	c := New()
	if c.socketPath == "" {
		t.Error("expected a default socket path")
	}
	if c.serverConfig != nil {
		t.Error("expected no server config by default")
	}
	if c.serverStartupTimeout != DefaultServerStartupTimeout {
		t.Errorf("startup timeout = %v, want %v", c.serverStartupTimeout, DefaultServerStartupTimeout)
	}
	if c.connectionTimeout != DefaultConnectionTimeout {
		t.Errorf("connection timeout = %v, want %v", c.connectionTimeout, DefaultConnectionTimeout)
	}
	if c.maxConnectionAttempts != DefaultMaxConnectionAttempts {
		t.Errorf("max attempts = %d, want %d", c.maxConnectionAttempts, DefaultMaxConnectionAttempts)
	}
	if c.connectionRetryDelay != DefaultConnectionRetryDelay {
		t.Errorf("retry delay = %v, want %v", c.connectionRetryDelay, DefaultConnectionRetryDelay)
	}
	if c.IsConnected() {
		t.Error("new client should not report connected")
	}
}

func TestOptions(t *testing.T) {
	initTestLogger(t)

	cfg := process.NewConfig("/usr/local/bin/hotki")
	c := New(
		WithSocketPath("/tmp/custom.sock"),
		WithServerConfig(cfg),
		WithServerStartupTimeout(2*time.Second),
		WithConnectionTimeout(time.Second),
		WithMaxConnectionAttempts(3),
		WithConnectionRetryDelay(50*time.Millisecond),
	)
	if c.SocketPath() != "/tmp/custom.sock" {
		t.Errorf("socket path = %q", c.SocketPath())
	}
	if c.serverConfig == nil || c.serverConfig.Executable != "/usr/local/bin/hotki" {
		t.Errorf("server config not applied: %+v", c.serverConfig)
	}
	if c.serverStartupTimeout != 2*time.Second {
		t.Errorf("startup timeout = %v", c.serverStartupTimeout)
	}
	if c.maxConnectionAttempts != 3 {
		t.Errorf("max attempts = %d", c.maxConnectionAttempts)
	}
}

func TestWithServerConfigCopies(t *testing.T) {
	initTestLogger(t)

	cfg := process.NewConfig("/bin/a")
	c := New(WithServerConfig(cfg))
	cfg.Executable = "/bin/b"
	if c.serverConfig.Executable != "/bin/a" {
		t.Errorf("config aliased caller value: %q", c.serverConfig.Executable)
	}
}

func TestConnectNoServerNoSpawn(t *testing.T) {
	initTestLogger(t)

	c := New(WithSocketPath(filepath.Join(t.TempDir(), "missing.sock")))
	err := c.Connect()
	if !errors.Is(err, ErrNoServer) {
		t.Fatalf("Connect error = %v, want ErrNoServer", err)
	}
	if c.IsConnected() {
		t.Error("client should not report connected after failure")
	}
	if _, err := c.Conn(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Conn error = %v, want ErrNotConnected", err)
	}
}

func TestConnectRunningServer(t *testing.T) {
	initTestLogger(t)

	socketPath := startTestServer(t)
	c := New(WithSocketPath(socketPath))
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !c.IsConnected() {
		t.Fatal("client should report connected")
	}
	if pid := c.ServerPid(); pid != 0 {
		t.Errorf("ServerPid = %d for a server the client did not spawn", pid)
	}

	// The connection is usable for requests.
	spec, err := key.Parse("ctrl+a")
	if err != nil {
		t.Fatalf("key.Parse: %v", err)
	}
	conn, err := c.Conn()
	if err != nil {
		t.Fatalf("Conn: %v", err)
	}
	if err := conn.Rebind([]key.Spec{spec}); err != nil {
		t.Fatalf("Rebind: %v", err)
	}

	if err := c.Disconnect(false); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if c.IsConnected() {
		t.Error("client should not report connected after Disconnect")
	}
}

func TestConnectIdempotent(t *testing.T) {
	initTestLogger(t)

	socketPath := startTestServer(t)
	c := New(WithSocketPath(socketPath))
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Connect(); err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	c.Disconnect(false)
}

func TestConnectSpawnsServer(t *testing.T) {
	initTestLogger(t)

	// The spawned process is a stand-in that stays alive; the listener
	// it would have opened is brought up separately a beat later, which
	// exercises the startup polling path.
	socketPath := filepath.Join(t.TempDir(), "hotki.sock")
	go func() {
		time.Sleep(150 * time.Millisecond)

		backend := hotkeys.NewMockBackend()
		manager := hotkeys.NewManager(backend)
		srv, err := ipc.NewServer(socketPath, manager)
		if err != nil {
			return
		}
		srv.Start()
	}()

	c := New(
		WithSocketPath(socketPath),
		WithServerConfig(process.Config{
			Executable:   "sleep",
			Args:         []string{"30"},
			InheritEnv:   true,
			StartupDelay: 10 * time.Millisecond,
		}),
		WithServerStartupTimeout(3*time.Second),
	)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if pid := c.ServerPid(); pid <= 0 {
		t.Errorf("ServerPid = %d, want spawned pid", pid)
	}
	if err := c.Disconnect(true); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if c.ServerPid() != 0 {
		t.Error("ServerPid should be zero after stopping the spawned server")
	}
}

func TestConnectSpawnFailureCleansUp(t *testing.T) {
	initTestLogger(t)

	c := New(
		WithSocketPath(filepath.Join(t.TempDir(), "never.sock")),
		WithServerConfig(process.Config{
			Executable:   "sleep",
			Args:         []string{"30"},
			InheritEnv:   true,
			StartupDelay: 10 * time.Millisecond,
		}),
		WithServerStartupTimeout(50*time.Millisecond),
		WithMaxConnectionAttempts(1),
		WithConnectionRetryDelay(10*time.Millisecond),
	)
	if err := c.Connect(); err == nil {
		t.Fatal("Connect should fail when the spawned server never listens")
	}
	if c.IsConnected() {
		t.Error("client should not report connected")
	}
	if c.ServerPid() != 0 {
		t.Error("spawned server should have been stopped")
	}
}
