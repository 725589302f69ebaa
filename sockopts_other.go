//go:build !unix

package dialtone

import "syscall"

// controlSetReuseAddr is a no-op on non-Unix platforms.
func controlSetReuseAddr(network, address string, c syscall.RawConn) error {
	return nil
}
