//go:build !linux

package server

import (
	"fmt"
	"runtime"

	"github.com/cortesi/hotkey-manager/hotkeys"
)

func defaultBackend() (hotkeys.Backend, error) {
	return nil, fmt.Errorf("no hotkey backend available on %s", runtime.GOOS)
}
