package channel

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/go-i2p/netpool/lib/future"
	"github.com/go-i2p/netpool/lib/metrics"
)

// errUnexpectedRead is the close cause of an idle channel that had data
// waiting when probed.
var errUnexpectedRead = errors.New("channel: unexpected read from idle channel")

// NetChannel adapts a net.Conn to Channel.
//
// A read or write that fails with a terminal error (EOF, use of closed
// connection, reset) marks the channel inactive and completes its close
// future on the channel's event loop. Deadline expiries are not terminal.
// An idle channel learns of a peer close through Probe.
type NetChannel struct {
	id   string
	conn net.Conn
	loop *EventLoop

	active      atomic.Bool
	closeFuture *future.Promise[struct{}]

	mu    sync.Mutex
	cause error
}

var (
	_ Channel = (*NetChannel)(nil)
	_ Prober  = (*NetChannel)(nil)
)

// NewNetChannel wraps conn. The channel owns conn from now on.
func NewNetChannel(conn net.Conn) *NetChannel {
	id := uuid.NewString()
	c := &NetChannel{
		id:          id,
		conn:        conn,
		loop:        NewEventLoop(id),
		closeFuture: future.NewPromise[struct{}](),
	}
	c.active.Store(true)
	metrics.ChannelsOpen.Inc()

	log.WithField("channel", id).WithField("remote", addrString(conn.RemoteAddr())).Debug("channel opened")
	return c
}

// ID implements Channel.
func (c *NetChannel) ID() string {
	return c.id
}

// EventLoop returns the loop that delivers this channel's completions.
func (c *NetChannel) EventLoop() *EventLoop {
	return c.loop
}

// Read implements Channel.
func (c *NetChannel) Read(b []byte) (int, error) {
	n, err := c.conn.Read(b)
	if err != nil && isTerminal(err) {
		c.shutdown(err)
	}
	return n, err
}

// Write implements Channel.
func (c *NetChannel) Write(b []byte) (int, error) {
	n, err := c.conn.Write(b)
	if err != nil && isTerminal(err) {
		c.shutdown(err)
	}
	return n, err
}

// LocalAddr implements Channel.
func (c *NetChannel) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr implements Channel.
func (c *NetChannel) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// SetDeadline implements Channel.
func (c *NetChannel) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// IsActive implements Channel.
func (c *NetChannel) IsActive() bool {
	return c.active.Load()
}

// Probe implements Prober. It must not run while someone else reads from
// the channel. A peer close, or unread data on an idle channel, closes it.
func (c *NetChannel) Probe() bool {
	if !c.active.Load() {
		return false
	}
	if err := connCheck(c.conn); err != nil {
		c.shutdown(err)
		return false
	}
	return true
}

// Close implements Channel.
func (c *NetChannel) Close() error {
	_, err := c.CloseAsync(nil).Get()
	return err
}

// CloseAsync implements Channel. Closing an already closed channel
// succeeds without touching the connection again.
func (c *NetChannel) CloseAsync(promise *future.Promise[struct{}]) future.Future[struct{}] {
	if promise == nil {
		promise = future.NewPromise[struct{}]()
	}
	promise.Complete(struct{}{}, c.shutdown(nil))
	return promise
}

// CloseFuture implements Channel.
func (c *NetChannel) CloseFuture() future.Future[struct{}] {
	return c.closeFuture
}

// CloseCause returns the transport error that closed the channel, or nil
// if it is open or was closed locally.
func (c *NetChannel) CloseCause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cause
}

// shutdown closes the connection once. cause is nil for a local close.
func (c *NetChannel) shutdown(cause error) error {
	if !c.active.CompareAndSwap(true, false) {
		return nil
	}

	c.mu.Lock()
	c.cause = cause
	c.mu.Unlock()

	err := c.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}

	metrics.ChannelsOpen.Dec()
	if cause != nil {
		metrics.ChannelsDropped.Inc()
		log.WithField("channel", c.id).WithError(cause).Debug("channel closed by transport")
	} else {
		log.WithField("channel", c.id).Debug("channel closed")
	}

	notify := func() { c.closeFuture.Succeed(struct{}{}) }
	if execErr := c.loop.Execute(notify); execErr != nil {
		notify()
	}
	c.loop.Shutdown()
	return err
}

// isTerminal reports whether err means the link is gone.
func isTerminal(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false
	}
	return true
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
