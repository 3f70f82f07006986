package pool

import (
	"context"

	"go.uber.org/atomic"

	"github.com/go-i2p/netpool/lib/channel"
	"github.com/go-i2p/netpool/lib/future"
)

// ReleaseOnClosePool lends channels from a delegate pool wrapped so that
// closing them returns them to the delegate. Channels cannot be handed
// back through Release; it always fails with ErrUnsupportedOperation.
//
// A lent channel is released exactly once: either by the borrower's
// close or, if the transport closes it first, by the pool itself.
type ReleaseOnClosePool struct {
	delegate ChannelPool
	events   EventHandler
	closed   atomic.Bool
}

var _ ChannelPool = (*ReleaseOnClosePool)(nil)

// NewReleaseOnClosePool decorates delegate. events may be nil.
func NewReleaseOnClosePool(delegate ChannelPool, events EventHandler) *ReleaseOnClosePool {
	return &ReleaseOnClosePool{delegate: delegate, events: events}
}

// Delegate returns the decorated pool.
func (p *ReleaseOnClosePool) Delegate() ChannelPool {
	return p.delegate
}

// Acquire implements ChannelPool. The returned future is an
// *Acquisition whose channel is a *WrappedChannel.
func (p *ReleaseOnClosePool) Acquire(ctx context.Context) future.Future[channel.Channel] {
	return p.AcquireInto(ctx, nil)
}

// AcquireInto implements ChannelPool.
func (p *ReleaseOnClosePool) AcquireInto(ctx context.Context, promise *future.Promise[channel.Channel]) future.Future[channel.Channel] {
	var raw future.Future[channel.Channel]
	if p.closed.Load() {
		raw = future.Failed[channel.Channel](ErrPoolClosed)
	} else {
		raw = p.delegate.Acquire(ctx)
	}

	a := newAcquisition(raw, func(ch channel.Channel) *WrappedChannel {
		return newCheckout(p, ch)
	}, promise)

	a.AddListener(func(ch channel.Channel, err error) {
		if err != nil {
			p.events.emit(EventAcquireFailed, "release-on-close", "", err)
			return
		}
		p.events.emit(EventAcquired, "release-on-close", ch.ID(), nil)
	})
	return a
}

// Release always fails: lent channels go back by being closed.
func (p *ReleaseOnClosePool) Release(ch channel.Channel) future.Future[struct{}] {
	return p.ReleaseInto(ch, nil)
}

// ReleaseInto always fails promise with ErrUnsupportedOperation.
func (p *ReleaseOnClosePool) ReleaseInto(ch channel.Channel, promise *future.Promise[struct{}]) future.Future[struct{}] {
	promise = orNew(promise)
	id := ""
	if ch != nil {
		id = ch.ID()
	}
	PoolReleaseRejectedTotal.Inc()
	p.events.emit(EventReleaseRejected, "release-on-close", id, ErrUnsupportedOperation)
	promise.Fail(ErrUnsupportedOperation)
	return promise
}

// release hands raw back to the delegate and reports the outcome.
func (p *ReleaseOnClosePool) release(raw channel.Channel, kind EventKind) future.Future[struct{}] {
	done := p.delegate.Release(raw)
	done.AddListener(func(_ struct{}, err error) {
		if err != nil {
			p.events.emit(EventReleaseFailed, "release-on-close", raw.ID(), err)
			return
		}
		p.events.emit(kind, "release-on-close", raw.ID(), nil)
	})
	return done
}

// Close closes the delegate pool. Later acquisitions fail with
// ErrPoolClosed; channels still lent out are released into the closed
// delegate when closed, which disposes of them. Closing twice is a no-op.
func (p *ReleaseOnClosePool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := p.delegate.Close()
	p.events.emit(EventClosed, "release-on-close", "", err)
	return err
}
