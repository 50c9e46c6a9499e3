//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package core

import "syscall"

// socketControl leaves socket options at their defaults on platforms without
// golang.org/x/sys/unix.
func socketControl(bool) func(network, address string, c syscall.RawConn) error {
	return nil
}
