//go:build unix

package dialtone

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// controlSetReuseAddr sets SO_REUSEADDR on the listening socket before
// bind, via golang.org/x/sys rather than a TLS/handshake use of the same
// dependency, since dialtone has no TLS layer (spec.md §1).
func controlSetReuseAddr(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
