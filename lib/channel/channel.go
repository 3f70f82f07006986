// Package channel defines the raw transport link handled by the pools and
// adapts net.Conn to it.
//
// A Channel carries a close notification (CloseFuture) that completes
// exactly once, whether the channel was closed locally or the transport
// dropped it (peer disconnect, I/O error).
package channel

import (
	"net"
	"time"

	"github.com/go-i2p/netpool/lib/future"
)

// Channel is a live transport-level link to a remote endpoint.
type Channel interface {
	// ID returns a unique identifier for the channel.
	ID() string
	// Read reads from the link.
	Read(b []byte) (int, error)
	// Write writes to the link.
	Write(b []byte) (int, error)
	// LocalAddr returns the local network address.
	LocalAddr() net.Addr
	// RemoteAddr returns the remote network address.
	RemoteAddr() net.Addr
	// SetDeadline sets read and write deadlines.
	SetDeadline(t time.Time) error
	// IsActive reports whether the link is still open.
	IsActive() bool
	// Close closes the link and waits for the result.
	Close() error
	// CloseAsync closes the link and completes promise with the result.
	// A nil promise is replaced by a fresh one. The returned future is
	// the promise.
	CloseAsync(promise *future.Promise[struct{}]) future.Future[struct{}]
	// CloseFuture completes once the link is closed for any reason.
	CloseFuture() future.Future[struct{}]
}

// Prober is implemented by channels that can check an idle link for a
// peer close without blocking.
type Prober interface {
	// Probe reports whether the link is still usable. A dead link is
	// closed, so its CloseFuture completes.
	Probe() bool
}
