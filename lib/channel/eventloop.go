package channel

import (
	"fmt"
	"sync"

	"github.com/eapache/queue"

	apperrors "github.com/go-i2p/netpool/lib/errors"
)

// EventLoop runs submitted tasks one at a time, in submission order, on a
// single goroutine. Every NetChannel owns one, so all completions for a
// channel are delivered serially while different channels complete
// concurrently.
type EventLoop struct {
	name string

	mu      sync.Mutex
	cond    *sync.Cond
	tasks   *queue.Queue
	stopped bool
	done    chan struct{}
}

// NewEventLoop starts a new event loop goroutine.
func NewEventLoop(name string) *EventLoop {
	l := &EventLoop{
		name:  name,
		tasks: queue.New(),
		done:  make(chan struct{}),
	}
	l.cond = sync.NewCond(&l.mu)
	go l.run()
	return l
}

// Execute queues task. It fails with ErrEventLoopStopped after Shutdown.
func (l *EventLoop) Execute(task func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return apperrors.ErrEventLoopStopped
	}
	l.tasks.Add(task)
	l.cond.Signal()
	return nil
}

// Shutdown stops accepting tasks. Tasks already queued still run.
func (l *EventLoop) Shutdown() {
	l.mu.Lock()
	l.stopped = true
	l.cond.Broadcast()
	l.mu.Unlock()
}

// Done is closed once the loop has drained its queue after Shutdown.
func (l *EventLoop) Done() <-chan struct{} {
	return l.done
}

func (l *EventLoop) run() {
	defer close(l.done)

	for {
		l.mu.Lock()
		for l.tasks.Length() == 0 && !l.stopped {
			l.cond.Wait()
		}
		if l.tasks.Length() == 0 {
			l.mu.Unlock()
			return
		}
		task := l.tasks.Remove().(func())
		l.mu.Unlock()

		l.runTask(task)
	}
}

// runTask keeps a panicking listener from killing the loop.
func (l *EventLoop) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("loop", l.name).WithError(fmt.Errorf("panic: %v", r)).Error("event loop task panicked")
		}
	}()
	task()
}
