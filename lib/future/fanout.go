// Package future provides one-shot asynchronous results for the netpool
// client: a broadcast primitive for completion listeners and a settable
// promise built on top of it.
//
// Neither type knows anything about networking. They are used by the
// channel, transport and pool packages to deliver connect, acquire and
// close outcomes without blocking the caller.
package future

import "sync"

// Listener receives the outcome of a one-shot operation.
// err is nil on success.
type Listener[T any] func(value T, err error)

// Subscription identifies a registered listener so it can be removed
// before it fires.
type Subscription uint64

type subscriber[T any] struct {
	id Subscription
	fn Listener[T]
}

// Fanout broadcasts a single outcome to every subscribed listener.
//
// Listeners registered before Complete are queued and fire in
// registration order once the outcome is known. Listeners registered
// afterwards fire immediately with the stored outcome. Every listener
// fires at most once, and never while the fanout's lock is held, so a
// listener may subscribe to the same fanout again.
//
// The zero value is ready to use.
type Fanout[T any] struct {
	mu        sync.Mutex
	done      bool
	notifying bool
	value     T
	err       error
	nextID    Subscription
	pending   []subscriber[T]
}

// Subscribe registers fn for the outcome.
func (f *Fanout[T]) Subscribe(fn Listener[T]) Subscription {
	f.mu.Lock()
	f.nextID++
	id := f.nextID

	// While queued listeners are still being drained a late subscriber
	// joins the queue so registration order is preserved.
	if !f.done || f.notifying {
		f.pending = append(f.pending, subscriber[T]{id: id, fn: fn})
		f.mu.Unlock()
		return id
	}
	value, err := f.value, f.err
	f.mu.Unlock()

	fn(value, err)
	return id
}

// Unsubscribe removes a listener that has not fired yet. It reports
// whether the listener was removed.
func (f *Fanout[T]) Unsubscribe(id Subscription) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, s := range f.pending {
		if s.id == id {
			f.pending = append(f.pending[:i], f.pending[i+1:]...)
			return true
		}
	}
	return false
}

// Complete records the outcome and notifies queued listeners.
// Only the first call has any effect; it returns false for later calls.
func (f *Fanout[T]) Complete(value T, err error) bool {
	f.mu.Lock()
	if f.done {
		f.mu.Unlock()
		return false
	}
	f.done = true
	f.notifying = true
	f.value = value
	f.err = err
	f.mu.Unlock()

	f.drain()
	return true
}

// drain fires queued listeners one at a time until the queue stays empty.
// Popping a single entry per iteration keeps Unsubscribe effective for
// listeners that have not been reached yet.
func (f *Fanout[T]) drain() {
	for {
		f.mu.Lock()
		if len(f.pending) == 0 {
			f.pending = nil
			f.notifying = false
			f.mu.Unlock()
			return
		}
		s := f.pending[0]
		f.pending = f.pending[1:]
		value, err := f.value, f.err
		f.mu.Unlock()

		s.fn(value, err)
	}
}
