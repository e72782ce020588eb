package main

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/cortesi/hotkey-manager/cli"
	"github.com/cortesi/hotkey-manager/paths"
	"github.com/cortesi/hotkey-manager/process"
)

// doctorCmd reports the health of the local installation: host tools,
// socket status, and any server processes left behind.
func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check host tools and server status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			results := cli.CheckAll(cli.DefaultPrerequisites())
			fmt.Print(cli.FormatCheckResults(results))

			socketPath := paths.DefaultSocketPath()
			fmt.Printf("\nSocket: %s\n", socketPath)
			conn, err := net.DialTimeout("unix", socketPath, time.Second)
			if err != nil {
				fmt.Println("  no server listening")
			} else {
				conn.Close()
				fmt.Println("  server is listening")
			}

			servers, err := process.FindServerProcesses()
			if err != nil {
				fmt.Printf("\nServer processes: lookup failed (%v)\n", err)
				return cli.ValidateRequired(cli.DefaultPrerequisites())
			}
			fmt.Printf("\nServer processes: %d\n", len(servers))
			for _, s := range servers {
				fmt.Printf("  pid %d: %s\n", s.PID, s.Command)
			}

			return cli.ValidateRequired(cli.DefaultPrerequisites())
		},
	}
}

// cleanupCmd kills server processes that no client is using.
func cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Kill orphaned server processes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			killed, err := process.CleanupOrphanedServers(nil)
			if err != nil {
				return err
			}
			fmt.Printf("Killed %d orphaned server(s)\n", killed)
			return nil
		},
	}
}
