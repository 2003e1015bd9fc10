//go:build unix

package listener

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// Lets the server rebind its port right after a restart.
func control(network, address string, rc syscall.RawConn) error {
	var opErr error
	err := rc.Control(func(fd uintptr) {
		opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return opErr
}
