package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cortesi/hotkey-manager/cli"
	"github.com/cortesi/hotkey-manager/client"
	"github.com/cortesi/hotkey-manager/config"
	"github.com/cortesi/hotkey-manager/ipc"
	"github.com/cortesi/hotkey-manager/key"
	"github.com/cortesi/hotkey-manager/keymode"
	"github.com/cortesi/hotkey-manager/logger"
	"github.com/cortesi/hotkey-manager/paths"
	"github.com/cortesi/hotkey-manager/process"
)

// rebindReplyTimeout bounds how long the event loop waits for the
// server to acknowledge a rebind.
const rebindReplyTimeout = 5 * time.Second

// runClient loads the mode tree and drives the interactive loop:
// connect (spawning the server if needed), push the current key scope,
// wait for trigger events, dispatch them, repeat.
func runClient(configPath, socketFlag string, multiFlag bool) error {
	log := logger.WithComponent("cli")

	if err := cli.ValidateRequired(cli.DefaultPrerequisites()); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	socketPath := socketFlag
	if socketPath == "" {
		socketPath = cfg.Settings.Socket
	}
	if socketPath == "" {
		socketPath = paths.DefaultSocketPath()
	}
	multiClient := multiFlag || cfg.Settings.MultiClient

	opts := []client.Option{client.WithSocketPath(socketPath)}
	if exe, err := os.Executable(); err == nil {
		spawn := process.NewConfig(exe)
		spawn.Args = []string{"--server", "--socket", socketPath}
		if multiClient {
			spawn.Args = append(spawn.Args, "--multi-client")
		}
		opts = append(opts, client.WithServerConfig(spawn))
	}
	if d := cfg.Settings.ServerStartupTimeout(); d > 0 {
		opts = append(opts, client.WithServerStartupTimeout(d))
	}

	c := client.New(opts...)
	if err := c.Connect(); err != nil {
		return fmt.Errorf("failed to connect to hotkey server: %w", err)
	}
	defer func() {
		if err := c.Disconnect(true); err != nil {
			log.Debug("disconnect error", "error", err)
		}
	}()
	log.Info("connected", "socket", socketPath, "server_pid", c.ServerPid())

	conn, err := c.Conn()
	if err != nil {
		return err
	}

	watcher, err := config.NewWatcher(configPath)
	if err != nil {
		return fmt.Errorf("failed to watch config file: %w", err)
	}
	if err := watcher.Start(); err != nil {
		return err
	}
	defer watcher.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return eventLoop(conn, keymode.NewState(cfg.Keys), watcher.Changes(), sigCh)
}

// eventLoop is the client's main loop. A single reader goroutine owns
// the connection's read side; rebind replies and trigger events arrive
// interleaved on the same channel and are told apart by type.
func eventLoop(conn *ipc.Conn, state *keymode.State, changes <-chan *config.Config, sigCh <-chan os.Signal) error {
	log := logger.WithComponent("cli")

	responses := make(chan ipc.Response, 16)
	readErr := make(chan error, 1)
	go func() {
		for {
			resp, err := conn.RecvEvent()
			if err != nil {
				readErr <- err
				return
			}
			responses <- resp
		}
	}()

	// Triggers that arrive while a rebind reply is pending are held
	// here and dispatched in order.
	var pending []string

	for {
		scope := state.KeysInScope()
		if err := rebindScope(conn, scope, responses, readErr, &pending); err != nil {
			return err
		}
		printScope(scope)

		var identifier string
		if len(pending) > 0 {
			identifier = pending[0]
			pending = pending[1:]
		} else {
			select {
			case <-sigCh:
				fmt.Println("\nShutting down...")
				return nil

			case newCfg, ok := <-changes:
				if !ok {
					changes = nil
					continue
				}
				log.Info("applying reloaded config")
				state = keymode.NewState(newCfg.Keys)
				continue

			case err := <-readErr:
				return fmt.Errorf("connection lost: %w", err)

			case resp := <-responses:
				if resp.Type != ipc.ResponseTriggered {
					log.Debug("ignoring non-event response", "type", resp.Type)
					continue
				}
				identifier = resp.Identifier
			}
		}

		out := state.Dispatch(identifier)
		log.Debug("dispatched", "identifier", identifier, "outcome", fmt.Sprintf("%+v", out))
		if out.Terminated {
			fmt.Println("Exiting.")
			return nil
		}
	}
}

// rebindScope pushes the bindings in scope to the server and waits for
// the acknowledgement, queueing any trigger events that arrive first.
func rebindScope(conn *ipc.Conn, scope []keymode.Binding, responses <-chan ipc.Response, readErr <-chan error, pending *[]string) error {
	specs := make([]key.Spec, 0, len(scope))
	for _, b := range scope {
		spec, err := key.Parse(b.Key)
		if err != nil {
			return fmt.Errorf("invalid key '%s' (%s): %w", b.Key, b.Name, err)
		}
		specs = append(specs, spec)
	}

	if err := conn.Send(ipc.Request{Type: ipc.RequestRebind, Keys: specs}); err != nil {
		return fmt.Errorf("failed to send rebind: %w", err)
	}

	deadline := time.After(rebindReplyTimeout)
	for {
		select {
		case resp := <-responses:
			switch resp.Type {
			case ipc.ResponseSuccess:
				return nil
			case ipc.ResponseError:
				return fmt.Errorf("rebind rejected: %s", resp.Message)
			case ipc.ResponseTriggered:
				*pending = append(*pending, resp.Identifier)
			}
		case err := <-readErr:
			return fmt.Errorf("connection lost: %w", err)
		case <-deadline:
			return fmt.Errorf("timed out waiting for rebind reply")
		}
	}
}

// printScope lists the keys a user can press now, skipping hidden
// bindings.
func printScope(scope []keymode.Binding) {
	fmt.Println("\nAvailable keys:")
	for _, b := range scope {
		if b.Attrs.Hidden {
			continue
		}
		fmt.Printf("  %s - %s\n", b.Key, b.Name)
	}
}
