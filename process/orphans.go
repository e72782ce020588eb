package process

import (
	"errors"
	"os/exec"
	"strconv"
	"strings"

	"github.com/cortesi/hotkey-manager/logger"
)

// ServerInstance describes a running hotkey server process found on the
// system.
type ServerInstance struct {
	PID     int    // Process ID
	Command string // Full command line
}

// FindServerProcesses finds all running hotkey server processes. Useful
// for detecting servers left behind after a client crash.
func FindServerProcesses() ([]ServerInstance, error) {
	log := logger.WithComponent("process")

	// pgrep exits 1 when nothing matches.
	cmd := exec.Command("pgrep", "-f", "hotki.*--server")
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, err
	}

	var servers []ServerInstance
	for _, pidStr := range strings.Fields(string(output)) {
		pid, err := strconv.Atoi(pidStr)
		if err != nil {
			continue
		}

		psCmd := exec.Command("ps", "-p", pidStr, "-o", "args=")
		psOutput, err := psCmd.Output()
		if err != nil {
			continue
		}

		servers = append(servers, ServerInstance{
			PID:     pid,
			Command: strings.TrimSpace(string(psOutput)),
		})
	}

	log.Debug("found server processes", "count", len(servers))
	return servers, nil
}

// KillProcess kills a process by PID.
func KillProcess(pid int) error {
	return exec.Command("kill", "-9", strconv.Itoa(pid)).Run()
}

// CleanupOrphanedServers kills every hotkey server whose pid is not in
// knownPids. Returns the number of processes killed.
func CleanupOrphanedServers(knownPids map[int]bool) (int, error) {
	servers, err := FindServerProcesses()
	if err != nil {
		return 0, err
	}

	log := logger.WithComponent("process")
	killed := 0
	for _, srv := range servers {
		if knownPids[srv.PID] {
			continue
		}
		log.Info("killing orphaned server process", "pid", srv.PID)
		if err := KillProcess(srv.PID); err != nil {
			log.Error("failed to kill process", "pid", srv.PID, "error", err)
			continue
		}
		killed++
	}

	return killed, nil
}
