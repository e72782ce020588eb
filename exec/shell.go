package exec

import (
	"context"
	"log/slog"
)

// Shell starts a command line under "sh -c" without waiting for it.
// The command is reaped in the background; a nonzero exit is logged but
// never surfaced, since the invoker has already moved on.
func Shell(ctx context.Context, log *slog.Logger, cmdline string) error {
	handle, err := GetDefaultExecutor().Start(ctx, "", "sh", "-c", cmdline)
	if err != nil {
		return err
	}

	go func() {
		_, stderr, err := handle.Wait()
		if err != nil {
			log.Warn("shell command failed", "command", cmdline, "err", err, "stderr", string(stderr))
		}
	}()

	return nil
}
