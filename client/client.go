// Package client manages the lifecycle of a connection to a hotkey
// server: dialing the unix socket, optionally spawning a server process
// when none is listening, and tearing both down again.
package client

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cortesi/hotkey-manager/ipc"
	"github.com/cortesi/hotkey-manager/logger"
	"github.com/cortesi/hotkey-manager/paths"
	"github.com/cortesi/hotkey-manager/process"
)

const (
	// DefaultServerStartupTimeout bounds how long Connect waits for a
	// freshly spawned server to begin accepting connections.
	DefaultServerStartupTimeout = 1000 * time.Millisecond

	// DefaultConnectionTimeout bounds a single dial attempt.
	DefaultConnectionTimeout = 5 * time.Second

	// DefaultMaxConnectionAttempts is the number of evenly spaced dial
	// retries made after the startup window has elapsed.
	DefaultMaxConnectionAttempts = 5

	// DefaultConnectionRetryDelay is the pause between those retries.
	DefaultConnectionRetryDelay = 200 * time.Millisecond

	// Poll interval growth while waiting inside the startup window. The
	// interval starts small so a fast server is picked up quickly, then
	// backs off to avoid hammering the socket.
	initialPollInterval = 10 * time.Millisecond
	pollIntervalStep    = 10 * time.Millisecond
	maxPollInterval     = 100 * time.Millisecond
)

// ErrNoServer is returned by Connect when nothing is listening on the
// socket and the client has no server configuration to spawn one.
var ErrNoServer = errors.New("no server running and no server configuration provided")

// ErrNotConnected is returned by operations that require an
// established connection.
var ErrNotConnected = errors.New("not connected to server")

// Client connects to a hotkey server over its unix socket, spawning the
// server process first when configured to. A Client is not safe for
// concurrent use.
type Client struct {
	socketPath            string
	serverConfig          *process.Config
	serverStartupTimeout  time.Duration
	connectionTimeout     time.Duration
	maxConnectionAttempts int
	connectionRetryDelay  time.Duration

	log    *slog.Logger
	server *process.ServerProcess
	conn   *ipc.Conn
}

// Option configures a Client.
type Option func(*Client)

// WithSocketPath sets the unix socket path to connect on.
func WithSocketPath(path string) Option {
	return func(c *Client) {
		c.socketPath = path
	}
}

// WithServerConfig supplies the process configuration used to spawn a
// server when nothing is listening on the socket.
func WithServerConfig(config process.Config) Option {
	return func(c *Client) {
		cfg := config
		c.serverConfig = &cfg
	}
}

// WithAutoSpawnServer configures the client to spawn the current
// executable in server mode when no server is listening.
func WithAutoSpawnServer() Option {
	return func(c *Client) {
		exe, err := os.Executable()
		if err != nil {
			// Leave serverConfig unset; Connect reports ErrNoServer
			// if the spawn path is actually needed.
			return
		}
		cfg := process.NewConfig(exe)
		c.serverConfig = &cfg
	}
}

// WithServerStartupTimeout sets how long Connect polls a spawned server
// before falling back to fixed retries.
func WithServerStartupTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.serverStartupTimeout = d
	}
}

// WithConnectionTimeout bounds each individual dial attempt.
func WithConnectionTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.connectionTimeout = d
	}
}

// WithMaxConnectionAttempts sets the number of dial retries made after
// the startup window.
func WithMaxConnectionAttempts(n int) Option {
	return func(c *Client) {
		c.maxConnectionAttempts = n
	}
}

// WithConnectionRetryDelay sets the pause between dial retries.
func WithConnectionRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.connectionRetryDelay = d
	}
}

// New builds a Client. Without options it connects to the default
// socket and never spawns a server.
func New(opts ...Option) *Client {
	c := &Client{
		socketPath:            paths.DefaultSocketPath(),
		serverStartupTimeout:  DefaultServerStartupTimeout,
		connectionTimeout:     DefaultConnectionTimeout,
		maxConnectionAttempts: DefaultMaxConnectionAttempts,
		connectionRetryDelay:  DefaultConnectionRetryDelay,
		log:                   logger.WithComponent("client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SocketPath reports the socket path the client targets.
func (c *Client) SocketPath() string {
	return c.socketPath
}

// Connect establishes a connection to the server. If nothing is
// listening and a server configuration was provided, the server process
// is spawned and polled until it accepts or the startup window plus the
// configured retries are exhausted. A spawned server that never accepts
// is stopped before the error is returned, so no orphan is left behind.
func (c *Client) Connect() error {
	if c.conn != nil {
		return nil
	}

	conn, err := ipc.DialTimeout(c.socketPath, c.connectionTimeout)
	if err == nil {
		c.conn = conn
		return nil
	}

	if c.serverConfig == nil {
		return fmt.Errorf("%w (socket %s)", ErrNoServer, c.socketPath)
	}

	c.log.Info("no server listening, spawning one", "socket", c.socketPath, "executable", c.serverConfig.Executable)
	server := process.NewServerProcess(*c.serverConfig)
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to spawn server: %w", err)
	}

	conn, err = c.awaitServer()
	if err != nil {
		if stopErr := server.Stop(); stopErr != nil {
			c.log.Warn("failed to stop unresponsive server", "error", stopErr)
		}
		return fmt.Errorf("spawned server never accepted a connection: %w", err)
	}

	c.server = server
	c.conn = conn
	return nil
}

// awaitServer polls the socket for the startup window, then makes the
// configured number of fixed-delay retries.
func (c *Client) awaitServer() (*ipc.Conn, error) {
	deadline := time.Now().Add(c.serverStartupTimeout)
	interval := initialPollInterval
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := ipc.DialTimeout(c.socketPath, c.connectionTimeout)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		time.Sleep(interval)
		interval += pollIntervalStep
		if interval > maxPollInterval {
			interval = maxPollInterval
		}
	}
	for attempt := 0; attempt < c.maxConnectionAttempts; attempt++ {
		conn, err := ipc.DialTimeout(c.socketPath, c.connectionTimeout)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		time.Sleep(c.connectionRetryDelay)
	}
	return nil, lastErr
}

// Conn exposes the established connection for request and event
// traffic. It fails before Connect succeeds.
func (c *Client) Conn() (*ipc.Conn, error) {
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	return c.conn, nil
}

// IsConnected reports whether the client currently holds a connection.
func (c *Client) IsConnected() bool {
	return c.conn != nil
}

// ServerPid reports the pid of the server this client spawned, or zero
// if it connected to a pre-existing server.
func (c *Client) ServerPid() int {
	if c.server == nil {
		return 0
	}
	return c.server.Pid()
}

// Disconnect closes the connection. When stopServer is set, a
// best-effort shutdown request is sent first and the spawned server
// process, if any, is stopped. A server the client did not spawn is
// never killed.
func (c *Client) Disconnect(stopServer bool) error {
	var errs []error
	if c.conn != nil {
		if stopServer {
			if err := c.conn.Shutdown(); err != nil {
				c.log.Debug("shutdown request failed", "error", err)
			}
		}
		if err := c.conn.Close(); err != nil {
			errs = append(errs, err)
		}
		c.conn = nil
	}
	if stopServer && c.server != nil {
		if err := c.server.Stop(); err != nil {
			errs = append(errs, err)
		}
		c.server = nil
	}
	return errors.Join(errs...)
}
