package pool

import (
	"context"
	"fmt"

	"go.uber.org/atomic"

	"github.com/go-i2p/netpool/lib/channel"
	apperrors "github.com/go-i2p/netpool/lib/errors"
	"github.com/go-i2p/netpool/lib/future"
)

// NonPoolingPool opens a fresh channel for every acquisition and closes
// it on release. It keeps no channels.
type NonPoolingPool struct {
	connector Connector
	events    EventHandler
	closed    atomic.Bool
}

var _ ChannelPool = (*NonPoolingPool)(nil)

// NewNonPoolingPool returns a pool that connects through connector.
// events may be nil.
func NewNonPoolingPool(connector Connector, events EventHandler) *NonPoolingPool {
	return &NonPoolingPool{connector: connector, events: events}
}

// Acquire implements ChannelPool.
func (p *NonPoolingPool) Acquire(ctx context.Context) future.Future[channel.Channel] {
	return p.AcquireInto(ctx, nil)
}

// AcquireInto implements ChannelPool. Connect errors fail promise as is;
// nothing is retried. A channel that connects after promise was
// completed elsewhere is closed.
func (p *NonPoolingPool) AcquireInto(ctx context.Context, promise *future.Promise[channel.Channel]) future.Future[channel.Channel] {
	promise = orNew(promise)
	if p.closed.Load() {
		p.events.emit(EventAcquireFailed, "non-pooling", "", ErrPoolClosed)
		promise.Fail(ErrPoolClosed)
		return promise
	}

	connect := p.connector.Connect(ctx)
	promise.OnCancel(func() { connect.Cancel() })

	connect.AddListener(func(ch channel.Channel, err error) {
		if err != nil {
			p.events.emit(EventAcquireFailed, "non-pooling", "", err)
			promise.Fail(err)
			return
		}
		if !promise.Succeed(ch) {
			ch.CloseAsync(nil)
			return
		}
		p.events.emit(EventAcquired, "non-pooling", ch.ID(), nil)
	})
	return promise
}

// Release implements ChannelPool.
func (p *NonPoolingPool) Release(ch channel.Channel) future.Future[struct{}] {
	return p.ReleaseInto(ch, nil)
}

// ReleaseInto implements ChannelPool by closing ch.
func (p *NonPoolingPool) ReleaseInto(ch channel.Channel, promise *future.Promise[struct{}]) future.Future[struct{}] {
	promise = orNew(promise)
	if ch == nil {
		promise.Fail(fmt.Errorf("pool: release nil channel: %w", apperrors.ErrInvalidInput))
		return promise
	}
	PoolReleaseTotal.Inc()
	p.events.emit(EventReleased, "non-pooling", ch.ID(), nil)
	return ch.CloseAsync(promise)
}

// Close marks the pool closed; later acquisitions fail with
// ErrPoolClosed. Channels already handed out are left to their owners.
func (p *NonPoolingPool) Close() error {
	if p.closed.CompareAndSwap(false, true) {
		p.events.emit(EventClosed, "non-pooling", "", nil)
	}
	return nil
}
