// Package transport establishes raw channels for the pools. A Dialer turns
// a configured target (TCP, Unix socket or I2P destination) into a
// future.Future[channel.Channel], honouring context cancellation, an
// optional connect rate limit and an optional circuit breaker.
//
// Connect is never retried here; a failed attempt fails the future with an
// error matching errors.ErrConnect.
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/go-i2p/onramp"

	"github.com/go-i2p/netpool/lib/channel"
	apperrors "github.com/go-i2p/netpool/lib/errors"
	"github.com/go-i2p/netpool/lib/future"
	"github.com/go-i2p/netpool/lib/metrics"
	"github.com/go-i2p/netpool/lib/ratelimit"
)

// Supported networks.
const (
	NetworkTCP  = "tcp"
	NetworkUnix = "unix"
	NetworkI2P  = "i2p"
)

// Default dialer values
const (
	DefaultDialTimeout = 10 * time.Second
	DefaultKeepAlive   = 3 * time.Minute
	DefaultSAMAddress  = "127.0.0.1:7656"
	DefaultTunnelName  = "netpool"
)

// Guard gates connect attempts. *resilience.Breaker implements it.
type Guard interface {
	ExecuteWithContext(ctx context.Context, fn func(context.Context) error) error
}

// Config configures a Dialer.
type Config struct {
	// Network is one of "tcp", "tcp4", "tcp6", "unix" or "i2p".
	Network string
	// Address is the dial target: host:port, socket path or I2P destination.
	Address string
	// DialTimeout bounds a single connect attempt.
	// Default: 10 seconds
	DialTimeout time.Duration
	// KeepAlive is the TCP keep-alive period. Negative disables it.
	// Default: 3 minutes
	KeepAlive time.Duration
	// ConnectRate caps connect attempts per second. Zero means unlimited.
	ConnectRate float64
	// ConnectBurst is the number of attempts allowed back to back when
	// ConnectRate is set.
	// Default: 1
	ConnectBurst int
	// SAMAddress is the SAM bridge used for I2P targets.
	SAMAddress string
	// TunnelName names the I2P tunnel opened for outgoing streams.
	TunnelName string
	// I2POptions are SAM tunnel options. Empty means onramp.OPT_DEFAULTS.
	I2POptions []string
	// SAMCheckInterval is how often the SAM bridge is probed once a
	// session is open. Negative disables the probe.
	// Default: 30 seconds
	SAMCheckInterval time.Duration
	// Breaker, if set, gates connect attempts.
	Breaker Guard
}

// DefaultConfig returns a Config with sensible defaults and no target.
func DefaultConfig() Config {
	return Config{
		Network:     NetworkTCP,
		DialTimeout: DefaultDialTimeout,
		KeepAlive:   DefaultKeepAlive,
		SAMAddress:  DefaultSAMAddress,
		TunnelName:  DefaultTunnelName,

		SAMCheckInterval: DefaultSAMCheckInterval,
	}
}

// Dialer connects to one target.
type Dialer struct {
	config  Config
	target  string
	net     net.Dialer
	limiter *ratelimit.Limiter

	mu      sync.Mutex
	garlic  *onramp.Garlic
	monitor *SAMMonitor
	closed  bool
}

// NewDialer validates cfg and returns a Dialer for it.
func NewDialer(cfg Config) (*Dialer, error) {
	if cfg.Network == "" {
		cfg.Network = NetworkTCP
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = DefaultKeepAlive
	}
	if cfg.Address == "" {
		return nil, apperrors.ErrNoTarget
	}

	target := cfg.Address
	switch cfg.Network {
	case NetworkTCP, "tcp4", "tcp6", NetworkUnix:
	case NetworkI2P:
		if cfg.SAMAddress == "" {
			cfg.SAMAddress = DefaultSAMAddress
		}
		if cfg.TunnelName == "" {
			cfg.TunnelName = DefaultTunnelName
		}
		if cfg.SAMCheckInterval == 0 {
			cfg.SAMCheckInterval = DefaultSAMCheckInterval
		}
		var err error
		if target, err = normalizeI2PTarget(cfg.Address); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("transport: unsupported network %q: %w", cfg.Network, apperrors.ErrInvalidInput)
	}

	d := &Dialer{
		config: cfg,
		target: target,
		net: net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: cfg.KeepAlive,
		},
	}

	if cfg.ConnectRate > 0 {
		d.limiter = ratelimit.New(cfg.ConnectRate, cfg.ConnectBurst)
	}

	log.WithField("network", cfg.Network).WithField("target", target).Debug("dialer created")
	return d, nil
}

// Target returns the normalized dial target.
func (d *Dialer) Target() string {
	return d.target
}

// Network returns the configured network.
func (d *Dialer) Network() string {
	return d.config.Network
}

// Connect starts a connect attempt. Cancelling the returned future cancels
// the attempt; a connection that still completes afterwards is closed.
func (d *Dialer) Connect(ctx context.Context) future.Future[channel.Channel] {
	promise := future.NewPromise[channel.Channel]()

	ctx, cancel := context.WithCancel(ctx)
	promise.OnCancel(cancel)

	go func() {
		defer cancel()

		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				promise.Fail(err)
				return
			}
		}

		conn, err := d.dialGuarded(ctx)
		if err != nil {
			promise.Fail(err)
			return
		}

		ch := channel.NewNetChannel(conn)
		if !promise.Succeed(ch) {
			log.WithField("channel", ch.ID()).Debug("connect completed after cancellation, closing")
			ch.Close()
		}
	}()

	return promise
}

// Close stops the SAM monitor and releases the I2P session, if one was
// opened. Connect attempts after Close to an I2P target fail.
func (d *Dialer) Close() error {
	d.mu.Lock()
	d.closed = true
	monitor, garlic := d.monitor, d.garlic
	d.monitor, d.garlic = nil, nil
	d.mu.Unlock()

	if monitor != nil {
		monitor.Stop()
	}
	if garlic == nil {
		return nil
	}
	metrics.I2PSessionOpen.Set(0)
	return garlic.Close()
}

func (d *Dialer) dialGuarded(ctx context.Context) (net.Conn, error) {
	if d.config.Breaker == nil {
		return d.dial(ctx)
	}

	var conn net.Conn
	err := d.config.Breaker.ExecuteWithContext(ctx, func(ctx context.Context) error {
		var err error
		conn, err = d.dial(ctx)
		return err
	})
	if err != nil {
		if conn != nil {
			conn.Close()
		}
		return nil, err
	}
	return conn, nil
}

func (d *Dialer) dial(ctx context.Context) (net.Conn, error) {
	metrics.ConnectsTotal.Inc()
	timer := metrics.NewTimer(metrics.ConnectLatency)

	var (
		conn net.Conn
		err  error
	)
	if d.config.Network == NetworkI2P {
		conn, err = d.dialI2P(ctx)
	} else {
		conn, err = d.net.DialContext(ctx, d.config.Network, d.target)
	}

	if err != nil {
		metrics.ConnectsFailed.Inc()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.WithError(err).WithField("target", d.target).Debug("connect failed")
		return nil, apperrors.ConnectFailure(err)
	}
	timer.ObserveDuration()
	return conn, nil
}
