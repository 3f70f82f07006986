package future

import (
	"context"
	"sync"

	"go.uber.org/atomic"
)

// Future is a read-only handle for the eventual result of an
// asynchronous operation.
type Future[T any] interface {
	// Done is closed once the outcome is known.
	Done() <-chan struct{}
	// IsDone reports whether the operation has completed in any way.
	IsDone() bool
	// IsSuccess reports whether the operation completed successfully.
	IsSuccess() bool
	// IsCancelled reports whether the operation was cancelled.
	IsCancelled() bool
	// Cause returns the failure, or nil while pending or on success.
	Cause() error
	// Now returns the result without blocking. ok is false unless the
	// operation completed successfully.
	Now() (value T, ok bool)
	// Await blocks until completion or until ctx is done.
	Await(ctx context.Context) (T, error)
	// Get blocks until completion.
	Get() (T, error)
	// AddListener registers fn; it fires immediately if already complete.
	AddListener(fn Listener[T]) Subscription
	// RemoveListener removes a listener that has not fired yet.
	RemoveListener(id Subscription) bool
	// Cancel attempts to cancel the operation. It returns false if the
	// operation had already completed.
	Cancel() bool
}

// Promise is a Future whose outcome is set exactly once by its owner.
// Use NewPromise to create one.
type Promise[T any] struct {
	fanout Fanout[T]
	done   chan struct{}

	mu       sync.Mutex
	settled  bool
	value    T
	err      error
	onCancel []func()

	cancelled atomic.Bool
}

var _ Future[struct{}] = (*Promise[struct{}])(nil)

// NewPromise returns a pending promise.
func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{done: make(chan struct{})}
}

// Succeeded returns a promise already completed with value.
func Succeeded[T any](value T) *Promise[T] {
	p := NewPromise[T]()
	p.Succeed(value)
	return p
}

// Failed returns a promise already failed with err.
func Failed[T any](err error) *Promise[T] {
	p := NewPromise[T]()
	p.Fail(err)
	return p
}

// Succeed completes the promise with value.
func (p *Promise[T]) Succeed(value T) bool {
	return p.Complete(value, nil)
}

// Fail completes the promise with err.
func (p *Promise[T]) Fail(err error) bool {
	if err == nil {
		err = ErrNilFailure
	}
	var zero T
	return p.Complete(zero, err)
}

// Complete sets the outcome. Only the first completion wins; later
// calls return false and change nothing.
func (p *Promise[T]) Complete(value T, err error) bool {
	if !p.settle(value, err, false) {
		return false
	}
	p.fanout.Complete(value, err)
	return true
}

// Cancel fails the promise with ErrCancelled and runs the hooks
// registered with OnCancel.
func (p *Promise[T]) Cancel() bool {
	var zero T
	if !p.settle(zero, ErrCancelled, true) {
		return false
	}

	p.mu.Lock()
	hooks := p.onCancel
	p.onCancel = nil
	p.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}

	p.fanout.Complete(zero, ErrCancelled)
	return true
}

// OnCancel registers fn to run if the promise is cancelled. fn runs
// immediately when the promise is already cancelled and never runs
// once the promise completed any other way.
func (p *Promise[T]) OnCancel(fn func()) {
	p.mu.Lock()
	if !p.settled {
		p.onCancel = append(p.onCancel, fn)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	if p.cancelled.Load() {
		fn()
	}
}

func (p *Promise[T]) settle(value T, err error, cancel bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.settled {
		return false
	}
	p.settled = true
	p.value = value
	p.err = err
	if cancel {
		p.cancelled.Store(true)
	} else {
		p.onCancel = nil
	}
	close(p.done)
	return true
}

// Done implements Future.
func (p *Promise[T]) Done() <-chan struct{} {
	return p.done
}

// IsDone implements Future.
func (p *Promise[T]) IsDone() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// IsSuccess implements Future.
func (p *Promise[T]) IsSuccess() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settled && p.err == nil
}

// IsCancelled implements Future.
func (p *Promise[T]) IsCancelled() bool {
	return p.cancelled.Load()
}

// Cause implements Future.
func (p *Promise[T]) Cause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Now implements Future.
func (p *Promise[T]) Now() (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.settled || p.err != nil {
		var zero T
		return zero, false
	}
	return p.value, true
}

// Await implements Future.
func (p *Promise[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Get implements Future.
func (p *Promise[T]) Get() (T, error) {
	<-p.done
	return p.result()
}

func (p *Promise[T]) result() (T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.err
}

// AddListener implements Future.
func (p *Promise[T]) AddListener(fn Listener[T]) Subscription {
	return p.fanout.Subscribe(fn)
}

// RemoveListener implements Future.
func (p *Promise[T]) RemoveListener(id Subscription) bool {
	return p.fanout.Unsubscribe(id)
}

// Cascade completes dst with the outcome of src once src completes.
// It returns dst for chaining.
func Cascade[T any](src Future[T], dst *Promise[T]) *Promise[T] {
	src.AddListener(func(value T, err error) {
		dst.Complete(value, err)
	})
	return dst
}
