package pool

import (
	"go.uber.org/atomic"

	"github.com/go-i2p/netpool/lib/channel"
	"github.com/go-i2p/netpool/lib/future"
)

// checkout is the CloseInterceptor for one lent channel. It makes sure
// the channel goes back to the pool exactly once, whether the borrower
// closes it or the transport drops it first.
type checkout struct {
	pool *ReleaseOnClosePool
	raw  channel.Channel

	released atomic.Bool
	closeSub future.Subscription
}

func newCheckout(p *ReleaseOnClosePool, raw channel.Channel) *WrappedChannel {
	c := &checkout{pool: p, raw: raw}
	c.closeSub = raw.CloseFuture().AddListener(func(struct{}, error) {
		c.channelClosed()
	})
	return Wrap(raw, c)
}

// InterceptClose releases the channel into the pool instead of closing
// it. Only the first close does so; later ones complete at once.
func (c *checkout) InterceptClose(ch channel.Channel, promise *future.Promise[struct{}]) bool {
	if !c.released.CompareAndSwap(false, true) {
		promise.Succeed(struct{}{})
		return true
	}

	c.raw.CloseFuture().RemoveListener(c.closeSub)
	PoolReleaseViaCloseTotal.Inc()
	c.pool.release(ch, EventReleased).AddListener(func(struct{}, error) {
		promise.Succeed(struct{}{})
	})
	return true
}

// channelClosed runs when the transport closes the channel while it is
// lent out.
func (c *checkout) channelClosed() {
	if !c.released.CompareAndSwap(false, true) {
		return
	}
	PoolUnsolicitedCloseTotal.Inc()
	c.pool.release(c.raw, EventUnsolicitedClose)
}
