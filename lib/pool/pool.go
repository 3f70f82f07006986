package pool

import (
	"context"

	"github.com/go-i2p/netpool/lib/channel"
	"github.com/go-i2p/netpool/lib/future"
)

// Connector establishes raw channels. transport.Dialer implements it.
type Connector interface {
	// Connect starts a connect attempt. Cancelling the returned future
	// should abort the attempt; a channel that still arrives afterwards
	// must be closed by the connector.
	Connect(ctx context.Context) future.Future[channel.Channel]
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context) future.Future[channel.Channel]

// Connect implements Connector.
func (f ConnectorFunc) Connect(ctx context.Context) future.Future[channel.Channel] {
	return f(ctx)
}

// ChannelPool lends channels to callers. None of its methods block; all
// outcomes are delivered through futures.
type ChannelPool interface {
	// Acquire obtains a channel.
	Acquire(ctx context.Context) future.Future[channel.Channel]
	// AcquireInto obtains a channel and also completes promise with the
	// outcome. Cancelling promise cancels the acquisition. A nil promise
	// is replaced by a fresh one.
	AcquireInto(ctx context.Context, promise *future.Promise[channel.Channel]) future.Future[channel.Channel]
	// Release gives a channel back.
	Release(ch channel.Channel) future.Future[struct{}]
	// ReleaseInto gives a channel back and completes promise with the
	// outcome. A nil promise is replaced by a fresh one.
	ReleaseInto(ch channel.Channel, promise *future.Promise[struct{}]) future.Future[struct{}]
	// Close shuts the pool down. It is safe to call more than once.
	Close() error
}

func orNew[T any](p *future.Promise[T]) *future.Promise[T] {
	if p == nil {
		return future.NewPromise[T]()
	}
	return p
}
