package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/go-i2p/netpool/lib/channel"
	apperrors "github.com/go-i2p/netpool/lib/errors"
	"github.com/go-i2p/netpool/lib/future"
	"github.com/go-i2p/netpool/lib/metrics"
)

// HealthChecker reports whether a channel may be reused.
type HealthChecker func(ch channel.Channel) bool

// IsActive is the default HealthChecker. Channels that implement
// channel.Prober are probed for a peer close; others report IsActive.
func IsActive(ch channel.Channel) bool {
	if p, ok := ch.(channel.Prober); ok {
		return p.Probe()
	}
	return ch.IsActive()
}

// Config configures a FixedChannelPool.
type Config struct {
	// MaxSize is the maximum number of open channels, idle or in use.
	// Default: 10
	MaxSize int `toml:"max_size"`
	// MaxIdleTime is how long a channel may sit idle before it is closed.
	// Default: 10 minutes
	MaxIdleTime time.Duration `toml:"max_idle_time"`
	// AcquireTimeout bounds an acquisition whose context has no deadline.
	// Default: 30 seconds
	AcquireTimeout time.Duration `toml:"acquire_timeout"`
	// HealthCheckInterval is how often idle channels are checked.
	// Set to 0 to disable periodic health checks.
	// Default: 1 minute
	HealthCheckInterval time.Duration `toml:"health_check_interval"`
	// HealthCheck decides whether a channel may be reused. It runs on
	// release, on reuse and periodically.
	// Default: IsActive
	HealthCheck HealthChecker `toml:"-"`
	// Events receives pool events. May be nil.
	Events EventHandler `toml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxSize:             10,
		MaxIdleTime:         10 * time.Minute,
		AcquireTimeout:      30 * time.Second,
		HealthCheckInterval: 1 * time.Minute,
		HealthCheck:         IsActive,
	}
}

type idleChannel struct {
	ch       channel.Channel
	lastUsed time.Time
}

// FixedChannelPool keeps up to MaxSize channels to one target and lends
// them out. Idle channels are reused most-recently-released first.
type FixedChannelPool struct {
	connector Connector
	config    Config

	mu         sync.Mutex
	cond       *sync.Cond
	idle       []*idleChannel
	leased     map[string]channel.Channel
	numOpen    int
	closed     bool
	stopHealth chan struct{}
	healthDone chan struct{}

	acquireCount   atomic.Uint64
	acquireSuccess atomic.Uint64
	acquireFailed  atomic.Uint64
	releaseCount   atomic.Uint64
	healthFails    atomic.Uint64
}

var _ ChannelPool = (*FixedChannelPool)(nil)

// NewFixedChannelPool creates a pool that opens channels with connector.
func NewFixedChannelPool(connector Connector, cfg Config) *FixedChannelPool {
	def := DefaultConfig()
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = def.MaxSize
	}
	if cfg.MaxIdleTime <= 0 {
		cfg.MaxIdleTime = def.MaxIdleTime
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = def.AcquireTimeout
	}
	if cfg.HealthCheck == nil {
		cfg.HealthCheck = IsActive
	}

	p := &FixedChannelPool{
		connector:  connector,
		config:     cfg,
		idle:       make([]*idleChannel, 0, cfg.MaxSize),
		leased:     make(map[string]channel.Channel),
		stopHealth: make(chan struct{}),
		healthDone: make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)

	if cfg.HealthCheckInterval > 0 {
		go p.healthCheckLoop()
	} else {
		close(p.healthDone)
	}

	PoolConnectionsTotal.Set(int64(cfg.MaxSize))
	log.WithField("maxSize", cfg.MaxSize).WithField("maxIdleTime", cfg.MaxIdleTime).Debug("pool created")
	return p
}

// Acquire implements ChannelPool.
func (p *FixedChannelPool) Acquire(ctx context.Context) future.Future[channel.Channel] {
	return p.AcquireInto(ctx, nil)
}

// AcquireInto implements ChannelPool. If promise is cancelled while a
// new channel is being connected and the connect still succeeds, the
// channel is put back into the pool.
func (p *FixedChannelPool) AcquireInto(ctx context.Context, promise *future.Promise[channel.Channel]) future.Future[channel.Channel] {
	promise = orNew(promise)

	ctx, cancel := context.WithCancel(ctx)
	promise.OnCancel(cancel)

	go func() {
		defer cancel()

		ch, err := p.acquire(ctx)
		if err != nil {
			p.config.Events.emit(EventAcquireFailed, "fixed", "", err)
			promise.Fail(err)
			return
		}
		if !promise.Succeed(ch) {
			log.WithField("channel", ch.ID()).Debug("acquisition abandoned, returning channel")
			p.put(ch)
			return
		}
		p.config.Events.emit(EventAcquired, "fixed", ch.ID(), nil)
	}()

	return promise
}

// acquire blocks until a channel is available or ctx is done.
func (p *FixedChannelPool) acquire(ctx context.Context) (channel.Channel, error) {
	p.acquireCount.Inc()
	PoolAcquireTotal.Inc()
	timer := metrics.NewTimer(PoolAcquireLatency)

	// Use configured timeout if context has no deadline
	acquireCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && p.config.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, p.config.AcquireTimeout)
		defer cancel()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if p.closed {
			return nil, p.failed(ErrPoolClosed)
		}

		select {
		case <-acquireCtx.Done():
			if ctx.Err() == nil && acquireCtx.Err() == context.DeadlineExceeded {
				return nil, p.failed(ErrTimeout)
			}
			if ctx.Err() == context.DeadlineExceeded {
				return nil, p.failed(fmt.Errorf("%w: %w", ErrTimeout, ctx.Err()))
			}
			return nil, p.failed(fmt.Errorf("%w: %w", apperrors.ErrCancelled, ctx.Err()))
		default:
		}

		if ch, ok := p.getIdleLocked(); ok {
			p.leaseLocked(ch)
			p.succeeded(timer)
			log.WithField("channel", ch.ID()).Debug("reusing idle channel")
			return ch, nil
		}

		if p.numOpen < p.config.MaxSize {
			p.numOpen++
			p.mu.Unlock()

			// The connector honours acquireCtx; waiting on the future
			// alone means a channel that arrives after cancellation
			// still comes back here instead of leaking.
			ch, err := p.connector.Connect(acquireCtx).Get()

			p.mu.Lock()
			if err != nil {
				p.numOpen--
				p.cond.Signal()
				log.WithError(err).Debug("failed to open channel")
				if acquireCtx.Err() != nil && ctx.Err() == nil {
					return nil, p.failed(ErrTimeout)
				}
				return nil, p.failed(err)
			}
			if p.closed {
				p.numOpen--
				go ch.Close()
				return nil, p.failed(ErrPoolClosed)
			}

			p.leaseLocked(ch)
			p.succeeded(timer)
			log.WithField("channel", ch.ID()).Debug("opened new channel")
			return ch, nil
		}

		log.Debug("waiting for available channel")
		p.waitWithContext(acquireCtx)
	}
}

func (p *FixedChannelPool) failed(err error) error {
	p.acquireFailed.Inc()
	PoolAcquireFailedTotal.Inc()
	return err
}

func (p *FixedChannelPool) succeeded(timer *metrics.Timer) {
	p.acquireSuccess.Inc()
	PoolAcquireSuccessTotal.Inc()
	timer.ObserveDuration()
	p.updateGaugesLocked()
}

// leaseLocked must be called with mu held.
func (p *FixedChannelPool) leaseLocked(ch channel.Channel) {
	p.leased[ch.ID()] = ch
}

// getIdleLocked gets an idle channel (caller must hold lock).
// It drops stale and unhealthy channels on the way.
func (p *FixedChannelPool) getIdleLocked() (channel.Channel, bool) {
	now := time.Now()
	for len(p.idle) > 0 {
		ic := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]

		if now.Sub(ic.lastUsed) > p.config.MaxIdleTime {
			log.WithField("channel", ic.ch.ID()).Debug("closing stale channel")
			p.numOpen--
			go ic.ch.Close()
			continue
		}

		if !p.config.HealthCheck(ic.ch) {
			log.WithField("channel", ic.ch.ID()).Debug("closing unhealthy channel")
			p.healthFails.Inc()
			PoolHealthCheckFailsTotal.Inc()
			p.numOpen--
			go ic.ch.Close()
			continue
		}

		return ic.ch, true
	}
	return nil, false
}

// waitWithContext waits for a condition signal or context cancellation.
func (p *FixedChannelPool) waitWithContext(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.cond.Broadcast()
			p.mu.Unlock()
		case <-done:
		}
	}()
	p.cond.Wait()
	close(done)
}

// Release implements ChannelPool.
func (p *FixedChannelPool) Release(ch channel.Channel) future.Future[struct{}] {
	return p.ReleaseInto(ch, nil)
}

// ReleaseInto implements ChannelPool. A channel that fails the health
// check, or is released into a closed pool, is closed instead of kept.
// Releasing a channel this pool did not hand out fails with
// ErrForeignChannel.
func (p *FixedChannelPool) ReleaseInto(ch channel.Channel, promise *future.Promise[struct{}]) future.Future[struct{}] {
	promise = orNew(promise)
	if ch == nil {
		promise.Fail(fmt.Errorf("pool: release nil channel: %w", apperrors.ErrInvalidInput))
		return promise
	}

	if !p.put(ch) {
		promise.Fail(ErrForeignChannel)
		return promise
	}
	promise.Succeed(struct{}{})
	return promise
}

// put returns a leased channel to the idle list or closes it. It reports
// false, and does nothing, if ch is not currently leased from this pool.
func (p *FixedChannelPool) put(ch channel.Channel) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if leased, ok := p.leased[ch.ID()]; !ok || leased != ch {
		return false
	}
	delete(p.leased, ch.ID())
	defer p.updateGaugesLocked()

	p.releaseCount.Inc()
	PoolReleaseTotal.Inc()

	if p.closed {
		log.WithField("channel", ch.ID()).Debug("pool closed, closing channel")
		p.numOpen--
		go ch.Close()
		return true
	}

	if !p.config.HealthCheck(ch) {
		log.WithField("channel", ch.ID()).Debug("discarding unhealthy channel")
		p.healthFails.Inc()
		PoolHealthCheckFailsTotal.Inc()
		p.numOpen--
		p.cond.Signal()
		go ch.Close()
		return true
	}

	p.idle = append(p.idle, &idleChannel{ch: ch, lastUsed: time.Now()})
	p.cond.Signal()
	log.WithField("channel", ch.ID()).Debug("channel released to pool")
	return true
}

// Discard closes a leased channel and frees its slot.
// Use this when a channel is known to be bad.
func (p *FixedChannelPool) Discard(ch channel.Channel) {
	if ch == nil {
		return
	}

	p.mu.Lock()
	if leased, ok := p.leased[ch.ID()]; !ok || leased != ch {
		p.mu.Unlock()
		return
	}
	delete(p.leased, ch.ID())
	p.numOpen--
	p.cond.Signal()
	p.updateGaugesLocked()
	p.mu.Unlock()

	log.WithField("channel", ch.ID()).Debug("discarding bad channel")
	ch.Close()
}

// Close closes the pool and its idle channels. Leased channels are
// closed when they are released. Closing twice is a no-op.
func (p *FixedChannelPool) Close() error {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return nil
	}

	p.closed = true
	close(p.stopHealth)

	for _, ic := range p.idle {
		p.numOpen--
		go ic.ch.Close()
	}
	p.idle = nil
	p.updateGaugesLocked()

	p.cond.Broadcast()
	p.mu.Unlock()

	<-p.healthDone

	p.config.Events.emit(EventClosed, "fixed", "", nil)
	log.Debug("pool closed")
	return nil
}

// healthCheckLoop periodically checks idle channels.
func (p *FixedChannelPool) healthCheckLoop() {
	defer close(p.healthDone)

	ticker := time.NewTicker(p.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopHealth:
			return
		case <-ticker.C:
			p.runHealthCheck()
		}
	}
}

// runHealthCheck removes stale and unhealthy idle channels.
func (p *FixedChannelPool) runHealthCheck() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	var toClose []channel.Channel
	healthy := make([]*idleChannel, 0, len(p.idle))
	now := time.Now()

	for _, ic := range p.idle {
		if now.Sub(ic.lastUsed) > p.config.MaxIdleTime {
			toClose = append(toClose, ic.ch)
			p.numOpen--
			continue
		}
		if !p.config.HealthCheck(ic.ch) {
			p.healthFails.Inc()
			PoolHealthCheckFailsTotal.Inc()
			toClose = append(toClose, ic.ch)
			p.numOpen--
			continue
		}
		healthy = append(healthy, ic)
	}

	p.idle = healthy

	for _, ch := range toClose {
		go ch.Close()
	}

	if len(toClose) > 0 {
		p.cond.Broadcast()
		p.updateGaugesLocked()
		log.WithField("closed", len(toClose)).Debug("health check removed channels")
	}
}

// Stats holds pool statistics.
type Stats struct {
	// MaxSize is the maximum pool size.
	MaxSize int
	// NumOpen is the current number of open channels.
	NumOpen int
	// NumIdle is the current number of idle channels.
	NumIdle int
	// NumInUse is the number of channels currently lent out.
	NumInUse int
	// AcquireCount is the total number of acquire attempts.
	AcquireCount uint64
	// AcquireSuccess is the number of successful acquires.
	AcquireSuccess uint64
	// AcquireFailed is the number of failed acquires.
	AcquireFailed uint64
	// ReleaseCount is the number of releases.
	ReleaseCount uint64
	// HealthCheckFails is the number of channels that failed health checks.
	HealthCheckFails uint64
}

// Stats returns current pool statistics.
func (p *FixedChannelPool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statsLocked()
}

func (p *FixedChannelPool) statsLocked() Stats {
	return Stats{
		MaxSize:          p.config.MaxSize,
		NumOpen:          p.numOpen,
		NumIdle:          len(p.idle),
		NumInUse:         len(p.leased),
		AcquireCount:     p.acquireCount.Load(),
		AcquireSuccess:   p.acquireSuccess.Load(),
		AcquireFailed:    p.acquireFailed.Load(),
		ReleaseCount:     p.releaseCount.Load(),
		HealthCheckFails: p.healthFails.Load(),
	}
}

func (p *FixedChannelPool) updateGaugesLocked() {
	UpdateMetrics(p.statsLocked())
}
