// Package server wires a hotkey registry to a socket listener: the
// background role of the binary.
package server

import (
	"fmt"
	"os"

	"github.com/cortesi/hotkey-manager/hotkeys"
	"github.com/cortesi/hotkey-manager/ipc"
	"github.com/cortesi/hotkey-manager/logger"
	"github.com/cortesi/hotkey-manager/paths"
)

// Options configure a server run.
type Options struct {
	// SocketPath is where the server listens. Empty means the default
	// per-user socket.
	SocketPath string
	// MultiClient keeps the server alive across client disconnects and
	// broadcasts trigger events to every connected client.
	MultiClient bool
	// Backend overrides the platform hotkey backend. Nil selects the
	// platform default; tests inject a mock here.
	Backend hotkeys.Backend
}

// Run starts the server and blocks until it shuts down: in
// single-client mode when its one client disconnects, in multi-client
// mode when a client requests shutdown.
func Run(opts Options) error {
	socketPath := opts.SocketPath
	if socketPath == "" {
		socketPath = paths.DefaultSocketPath()
	}

	log := logger.WithComponent("server")
	log.Info("starting hotkey server", "socket", socketPath, "pid", os.Getpid(), "multi_client", opts.MultiClient)

	backend := opts.Backend
	if backend == nil {
		var err error
		backend, err = defaultBackend()
		if err != nil {
			return fmt.Errorf("failed to initialize hotkey backend: %w", err)
		}
	}

	manager := hotkeys.NewManager(backend)
	defer manager.Close()

	var serverOpts []ipc.ServerOption
	if opts.MultiClient {
		serverOpts = append(serverOpts, ipc.WithMultiClient())
	}
	srv, err := ipc.NewServer(socketPath, manager, serverOpts...)
	if err != nil {
		return fmt.Errorf("failed to start listener: %w", err)
	}
	defer srv.Close()

	srv.Start()
	srv.Wait()
	log.Info("server shut down")
	return nil
}
