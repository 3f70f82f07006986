package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/go-i2p/netpool/lib/channel"
	"github.com/go-i2p/netpool/lib/future"
)

type fakeAddr string

func (a fakeAddr) Network() string { return "fake" }
func (a fakeAddr) String() string  { return string(a) }

// FakeChannel is an in-memory channel. Writes are buffered and read
// back, so it behaves as a loopback link.
type FakeChannel struct {
	id          string
	active      atomic.Bool
	closeCalls  atomic.Int32
	closeFuture *future.Promise[struct{}]

	mu  sync.Mutex
	buf bytes.Buffer
}

var _ channel.Channel = (*FakeChannel)(nil)

// NewFakeChannel returns an open channel with the given id.
func NewFakeChannel(id string) *FakeChannel {
	c := &FakeChannel{
		id:          id,
		closeFuture: future.NewPromise[struct{}](),
	}
	c.active.Store(true)
	return c
}

func (c *FakeChannel) ID() string { return c.id }

func (c *FakeChannel) Read(b []byte) (int, error) {
	if !c.IsActive() {
		return 0, io.EOF
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Read(b)
}

func (c *FakeChannel) Write(b []byte) (int, error) {
	if !c.IsActive() {
		return 0, net.ErrClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(b)
}

func (c *FakeChannel) LocalAddr() net.Addr            { return fakeAddr("local") }
func (c *FakeChannel) RemoteAddr() net.Addr           { return fakeAddr(c.id) }
func (c *FakeChannel) SetDeadline(t time.Time) error { return nil }
func (c *FakeChannel) IsActive() bool                 { return c.active.Load() }

func (c *FakeChannel) Close() error {
	_, err := c.CloseAsync(nil).Get()
	return err
}

// CloseAsync closes the channel for real and counts the call.
func (c *FakeChannel) CloseAsync(promise *future.Promise[struct{}]) future.Future[struct{}] {
	if promise == nil {
		promise = future.NewPromise[struct{}]()
	}
	c.closeCalls.Inc()
	c.shutdown()
	promise.Succeed(struct{}{})
	return promise
}

func (c *FakeChannel) CloseFuture() future.Future[struct{}] {
	return c.closeFuture
}

// SimulateRemoteClose drops the channel as the transport would on a
// peer disconnect. It does not count as a close call.
func (c *FakeChannel) SimulateRemoteClose() {
	c.shutdown()
}

// CloseCalls returns how many times CloseAsync (or Close) was called.
func (c *FakeChannel) CloseCalls() int {
	return int(c.closeCalls.Load())
}

func (c *FakeChannel) shutdown() {
	if c.active.CompareAndSwap(true, false) {
		c.closeFuture.Succeed(struct{}{})
	}
}

// FakeConnector hands out FakeChannels and counts connect attempts.
type FakeConnector struct {
	connects atomic.Int64

	mu       sync.Mutex
	err      error
	hold     chan struct{}
	channels []*FakeChannel
}

// NewFakeConnector returns a connector whose attempts succeed at once.
func NewFakeConnector() *FakeConnector {
	return &FakeConnector{}
}

// FailWith makes later attempts fail with err. nil restores success.
func (c *FakeConnector) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Hold makes later attempts wait until Resume is called. Held attempts
// ignore context cancellation, like a connect already on the wire.
func (c *FakeConnector) Hold() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hold == nil {
		c.hold = make(chan struct{})
	}
}

// Resume releases held attempts.
func (c *FakeConnector) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hold != nil {
		close(c.hold)
		c.hold = nil
	}
}

// Connects returns the number of connect attempts.
func (c *FakeConnector) Connects() int {
	return int(c.connects.Load())
}

// Channels returns every channel handed out, in connect order.
func (c *FakeConnector) Channels() []*FakeChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*FakeChannel, len(c.channels))
	copy(out, c.channels)
	return out
}

// Connect starts an attempt. A channel delivered after the returned
// future was cancelled is closed.
func (c *FakeConnector) Connect(ctx context.Context) future.Future[channel.Channel] {
	n := c.connects.Inc()
	promise := future.NewPromise[channel.Channel]()

	c.mu.Lock()
	err, hold := c.err, c.hold
	c.mu.Unlock()

	if err != nil {
		promise.Fail(err)
		return promise
	}

	deliver := func() {
		ch := NewFakeChannel(fmt.Sprintf("fake-%d", n))
		c.mu.Lock()
		c.channels = append(c.channels, ch)
		c.mu.Unlock()
		if !promise.Succeed(ch) {
			ch.Close()
		}
	}

	if hold == nil {
		if ctx.Err() != nil {
			promise.Fail(ctx.Err())
			return promise
		}
		deliver()
		return promise
	}

	go func() {
		<-hold
		deliver()
	}()
	return promise
}
