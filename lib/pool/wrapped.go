package pool

import (
	"github.com/go-i2p/netpool/lib/channel"
	"github.com/go-i2p/netpool/lib/future"
)

// CloseInterceptor can take over the closing of a channel.
type CloseInterceptor interface {
	// InterceptClose is offered the close of ch. Returning true means the
	// interceptor handled it and will complete promise; returning false
	// lets the channel close for real.
	InterceptClose(ch channel.Channel, promise *future.Promise[struct{}]) bool
}

// CloseInterceptorFunc adapts a function to CloseInterceptor.
type CloseInterceptorFunc func(ch channel.Channel, promise *future.Promise[struct{}]) bool

// InterceptClose implements CloseInterceptor.
func (f CloseInterceptorFunc) InterceptClose(ch channel.Channel, promise *future.Promise[struct{}]) bool {
	return f(ch, promise)
}

// WrappedChannel forwards every operation to the channel it wraps,
// except closing, which is first offered to its CloseInterceptor.
type WrappedChannel struct {
	channel.Channel
	interceptor CloseInterceptor
}

var _ channel.Channel = (*WrappedChannel)(nil)

// Wrap returns ch with its close routed through interceptor.
func Wrap(ch channel.Channel, interceptor CloseInterceptor) *WrappedChannel {
	return &WrappedChannel{Channel: ch, interceptor: interceptor}
}

// Unwrap returns the underlying channel.
func (w *WrappedChannel) Unwrap() channel.Channel {
	return w.Channel
}

// CloseAsync offers the close to the interceptor and falls back to
// closing the underlying channel.
func (w *WrappedChannel) CloseAsync(promise *future.Promise[struct{}]) future.Future[struct{}] {
	promise = orNew(promise)
	if w.interceptor != nil && w.interceptor.InterceptClose(w.Channel, promise) {
		return promise
	}
	return w.Channel.CloseAsync(promise)
}

// Close calls CloseAsync and waits for it.
func (w *WrappedChannel) Close() error {
	_, err := w.CloseAsync(nil).Get()
	return err
}
