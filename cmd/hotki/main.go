package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cortesi/hotkey-manager/logger"
	"github.com/cortesi/hotkey-manager/server"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		serverMode  bool
		socketPath  string
		multiClient bool
		debug       bool
	)

	cmd := &cobra.Command{
		Use:   "hotki [config]",
		Short: "Hotkey manager client and server",
		Long: `Hotki binds global hotkeys through a background server process and
drives a hierarchical key menu from a YAML mode definition.

Run with a config file to start the client, which spawns the server on
demand. The --server flag runs the background role directly.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.SetDebug(debug)

			if serverMode {
				if path, err := logger.ServerLogPath(os.Getpid()); err == nil {
					if err := logger.Init(path); err != nil {
						fmt.Fprintln(os.Stderr, "Warning: could not open log file:", err)
					}
				}
				defer logger.Close()
				return server.Run(server.Options{
					SocketPath:  socketPath,
					MultiClient: multiClient,
				})
			}

			if len(args) == 0 {
				return fmt.Errorf("a config file is required in client mode (or pass --server)")
			}
			if path, err := logger.DefaultLogPath(); err == nil {
				if err := logger.Init(path); err != nil {
					fmt.Fprintln(os.Stderr, "Warning: could not open log file:", err)
				}
			}
			defer logger.Close()
			return runClient(args[0], socketPath, multiClient)
		},
	}

	cmd.Flags().BoolVar(&serverMode, "server", false, "run in server mode")
	cmd.Flags().StringVar(&socketPath, "socket", "", "socket path (defaults to the per-user runtime dir)")
	cmd.Flags().BoolVar(&multiClient, "multi-client", false, "serve multiple clients and broadcast events")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")

	cmd.AddCommand(doctorCmd())
	cmd.AddCommand(cleanupCmd())

	return cmd
}
