package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/atomic"

	"github.com/go-i2p/netpool/lib/channel"
	apperrors "github.com/go-i2p/netpool/lib/errors"
	"github.com/go-i2p/netpool/lib/metrics"
	"github.com/go-i2p/netpool/lib/pool"
	"github.com/go-i2p/netpool/lib/resilience"
	"github.com/go-i2p/netpool/lib/transport"
)

// ErrClientClosed is returned by a Client after Close.
var ErrClientClosed = fmt.Errorf("client: %w", apperrors.ErrClosed)

// Client lends channels to one remote endpoint.
//
// Every channel it hands out is released by closing it. In fixed mode the
// release returns the channel to a bounded pool; in "none" mode it closes
// the connection.
type Client struct {
	config  *Config
	dialer  *transport.Dialer
	breaker *resilience.Instrumented
	pool    *pool.ReleaseOnClosePool

	closed    atomic.Bool
	startedAt time.Time
}

// NewClient validates cfg and builds the dialer and pool stack it
// describes. handlers receive pool events in addition to the logger
// enabled by pool.log_events.
func NewClient(cfg *Config, handlers ...pool.EventHandler) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("client: nil config: %w", apperrors.ErrInvalidInput)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	c := &Client{
		config:    cfg,
		startedAt: time.Now(),
	}

	dc := cfg.DialerSettings()
	if cfg.Breaker.Enabled {
		c.breaker = resilience.NewInstrumented(cfg.Client.Name, cfg.Breaker.Config)
		dc.Breaker = c.breaker
	}
	dialer, err := transport.NewDialer(dc)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	c.dialer = dialer

	if cfg.Pool.LogEvents {
		handlers = append(handlers, pool.LogEvents())
	}
	events := pool.Events(handlers...)

	var delegate pool.ChannelPool
	switch cfg.Pool.Mode {
	case PoolModeNone:
		delegate = pool.NewNonPoolingPool(dialer, events)
	default:
		pc := cfg.PoolSettings()
		pc.Events = events
		delegate = pool.NewFixedChannelPool(dialer, pc)
	}
	c.pool = pool.NewReleaseOnClosePool(delegate, events)

	log.WithField("client", cfg.Client.Name).WithField("target", dialer.Target()).
		WithField("mode", cfg.Pool.Mode).Info("client started")
	return c, nil
}

// Config returns the client configuration.
func (c *Client) Config() *Config {
	return c.config
}

// Pool returns the release-on-close pool the client lends from.
func (c *Client) Pool() *pool.ReleaseOnClosePool {
	return c.pool
}

// Acquire obtains a channel. The caller must Close it to release it.
func (c *Client) Acquire(ctx context.Context) (channel.Channel, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	f := c.pool.Acquire(ctx)
	ch, err := f.Await(ctx)
	if err == nil {
		return ch, nil
	}
	if !f.IsDone() {
		// Gave up waiting; make sure a channel that still arrives is released.
		f.Cancel()
		f.AddListener(func(late channel.Channel, err error) {
			if err == nil {
				late.CloseAsync(nil)
			}
		})
	}
	return nil, err
}

// Do acquires a channel, runs fn with it and releases it. If fn fails the
// channel is discarded instead of being returned for reuse.
func (c *Client) Do(ctx context.Context, fn func(ctx context.Context, ch channel.Channel) error) error {
	metrics.RequestsTotal.Inc()

	ch, err := c.Acquire(ctx)
	if err != nil {
		metrics.RequestsFailed.Inc()
		return err
	}

	if err := fn(ctx, ch); err != nil {
		metrics.RequestsFailed.Inc()
		log.WithField("channel", ch.ID()).WithError(err).Debug("request failed, discarding channel")
		discard(ch)
		return err
	}

	return ch.Close()
}

// discard closes the underlying link. The close notification releases the
// wrapped channel, and the pool drops it as inactive.
func discard(ch channel.Channel) {
	if w, ok := ch.(*pool.WrappedChannel); ok {
		w.Unwrap().Close()
		return
	}
	ch.Close()
}

// Stats is a snapshot of a Client.
type Stats struct {
	Name   string
	Mode   string
	Target string
	// Pool is the fixed pool snapshot; zero in "none" mode.
	Pool pool.Stats
	// Breaker is nil when the breaker is disabled.
	Breaker *resilience.Stats
	Uptime  time.Duration
	Closed  bool
}

// Stats returns a snapshot of the client.
func (c *Client) Stats() Stats {
	s := Stats{
		Name:   c.config.Client.Name,
		Mode:   c.config.Pool.Mode,
		Target: c.dialer.Target(),
		Uptime: time.Since(c.startedAt),
		Closed: c.closed.Load(),
	}
	if fixed, ok := c.pool.Delegate().(*pool.FixedChannelPool); ok {
		s.Pool = fixed.Stats()
	}
	if c.breaker != nil {
		bs := c.breaker.Stats()
		s.Breaker = &bs
	}
	return s
}

// Close shuts the pool and the dialer down. Channels still lent out are
// closed when their borrowers release them. Close is idempotent.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	err := errors.Join(c.pool.Close(), c.dialer.Close())
	log.WithField("client", c.config.Client.Name).WithField("uptime", time.Since(c.startedAt).String()).Info("client stopped")
	return err
}
