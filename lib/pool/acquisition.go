package pool

import (
	"context"
	"sync"

	"github.com/go-i2p/netpool/lib/channel"
	"github.com/go-i2p/netpool/lib/future"
)

// Acquisition is the future returned by ReleaseOnClosePool.Acquire. It
// follows one acquisition from the underlying pool and yields the
// channel wrapped so that closing it releases it.
type Acquisition struct {
	raw    future.Future[channel.Channel]
	result *future.Promise[channel.Channel]
	wrap   func(channel.Channel) *WrappedChannel

	once   sync.Once
	cached *WrappedChannel
}

var _ future.Future[channel.Channel] = (*Acquisition)(nil)

// newAcquisition follows raw. If caller is non-nil it receives the same
// outcome; cancelling caller cancels raw, and a channel that can no
// longer be handed to caller is closed, which releases it.
func newAcquisition(raw future.Future[channel.Channel], wrap func(channel.Channel) *WrappedChannel, caller *future.Promise[channel.Channel]) *Acquisition {
	a := &Acquisition{
		raw:    raw,
		result: future.NewPromise[channel.Channel](),
		wrap:   wrap,
	}

	if caller != nil {
		caller.OnCancel(func() { raw.Cancel() })
		a.result.AddListener(func(ch channel.Channel, err error) {
			if err != nil {
				caller.Fail(err)
				return
			}
			if !caller.Succeed(ch) {
				ch.CloseAsync(nil)
			}
		})
	}

	raw.AddListener(func(ch channel.Channel, err error) {
		if err != nil {
			a.result.Fail(err)
			return
		}
		a.result.Succeed(a.wrapped(ch))
	})
	return a
}

// wrapped returns the wrapped form of raw, creating it on first use.
// Only the listener on the underlying acquisition calls it.
func (a *Acquisition) wrapped(raw channel.Channel) *WrappedChannel {
	a.once.Do(func() {
		a.cached = a.wrap(raw)
	})
	return a.cached
}

// Wrapped returns the wrapped channel once the acquisition succeeded.
func (a *Acquisition) Wrapped() (*WrappedChannel, bool) {
	if !a.result.IsSuccess() {
		return nil, false
	}
	ch, ok := a.result.Now()
	if !ok {
		return nil, false
	}
	w, ok := ch.(*WrappedChannel)
	return w, ok
}

// Done implements future.Future.
func (a *Acquisition) Done() <-chan struct{} { return a.result.Done() }

// IsDone implements future.Future.
func (a *Acquisition) IsDone() bool { return a.result.IsDone() }

// IsSuccess implements future.Future.
func (a *Acquisition) IsSuccess() bool { return a.result.IsSuccess() }

// IsCancelled reports whether the underlying acquisition was cancelled.
func (a *Acquisition) IsCancelled() bool { return a.raw.IsCancelled() }

// Cause implements future.Future.
func (a *Acquisition) Cause() error { return a.result.Cause() }

// Now implements future.Future.
func (a *Acquisition) Now() (channel.Channel, bool) { return a.result.Now() }

// Await implements future.Future.
func (a *Acquisition) Await(ctx context.Context) (channel.Channel, error) {
	return a.result.Await(ctx)
}

// Get implements future.Future.
func (a *Acquisition) Get() (channel.Channel, error) { return a.result.Get() }

// AddListener implements future.Future.
func (a *Acquisition) AddListener(fn future.Listener[channel.Channel]) future.Subscription {
	return a.result.AddListener(fn)
}

// RemoveListener implements future.Future.
func (a *Acquisition) RemoveListener(id future.Subscription) bool {
	return a.result.RemoveListener(id)
}

// Cancel cancels the underlying acquisition. It has no effect once the
// acquisition completed.
func (a *Acquisition) Cancel() bool { return a.raw.Cancel() }
