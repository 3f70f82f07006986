//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd || solaris || illumos

package channel

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// connCheck does a non-blocking one-byte read on conn. It returns io.EOF
// when the peer closed, errUnexpectedRead when unread data is waiting,
// and nil when the link looks idle and open. Connections without a file
// descriptor are not checked.
func connCheck(conn net.Conn) error {
	sysConn, ok := conn.(syscall.Conn)
	if !ok {
		return nil
	}
	rawConn, err := sysConn.SyscallConn()
	if err != nil {
		return err
	}

	var sysErr error
	err = rawConn.Read(func(fd uintptr) bool {
		var buf [1]byte
		n, err := syscall.Read(int(fd), buf[:])
		switch {
		case n == 0 && err == nil:
			sysErr = io.EOF
		case n > 0:
			sysErr = errUnexpectedRead
		case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EWOULDBLOCK):
			sysErr = nil
		default:
			sysErr = err
		}
		return true
	})
	if err != nil {
		return err
	}
	return sysErr
}
