package pool

import (
	"time"
)

// EventKind identifies a pool event.
type EventKind int

const (
	// EventAcquired means a channel was handed to a caller.
	EventAcquired EventKind = iota
	// EventAcquireFailed means an acquisition failed.
	EventAcquireFailed
	// EventReleased means a checked-out channel went back to the pool
	// through its Close method.
	EventReleased
	// EventUnsolicitedClose means the transport closed a checked-out
	// channel and the pool reclaimed it.
	EventUnsolicitedClose
	// EventReleaseRejected means Release was called directly on a pool
	// that forbids it.
	EventReleaseRejected
	// EventReleaseFailed means the underlying pool failed to take a
	// channel back.
	EventReleaseFailed
	// EventClosed means the pool was closed.
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventAcquired:
		return "acquired"
	case EventAcquireFailed:
		return "acquire_failed"
	case EventReleased:
		return "released"
	case EventUnsolicitedClose:
		return "unsolicited_close"
	case EventReleaseRejected:
		return "release_rejected"
	case EventReleaseFailed:
		return "release_failed"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event describes something a pool did.
type Event struct {
	Kind      EventKind
	Pool      string
	ChannelID string
	Err       error
	Time      time.Time
}

// EventHandler receives pool events. It is called synchronously from
// the goroutine that caused the event and must not block.
type EventHandler func(Event)

func (h EventHandler) emit(kind EventKind, pool, channelID string, err error) {
	if h == nil {
		return
	}
	h(Event{
		Kind:      kind,
		Pool:      pool,
		ChannelID: channelID,
		Err:       err,
		Time:      time.Now(),
	})
}

// LogEvents returns a handler that writes events to the package logger.
func LogEvents() EventHandler {
	return func(e Event) {
		switch {
		case e.Err != nil:
			log.WithField("pool", e.Pool).WithField("event", e.Kind.String()).WithField("channel", e.ChannelID).
				WithError(e.Err).Warn("pool event")
		case e.Kind == EventUnsolicitedClose:
			log.WithField("pool", e.Pool).WithField("event", e.Kind.String()).WithField("channel", e.ChannelID).
				Info("pool event")
		default:
			log.WithField("pool", e.Pool).WithField("event", e.Kind.String()).WithField("channel", e.ChannelID).
				Debug("pool event")
		}
	}
}

// Events fans an event out to several handlers in order.
func Events(handlers ...EventHandler) EventHandler {
	return func(e Event) {
		for _, h := range handlers {
			if h != nil {
				h(e)
			}
		}
	}
}
