//go:build linux

package server

import "github.com/cortesi/hotkey-manager/hotkeys"

func defaultBackend() (hotkeys.Backend, error) {
	return hotkeys.NewEvdevBackend()
}
