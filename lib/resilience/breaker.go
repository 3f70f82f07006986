// Package resilience guards connect attempts against a failing remote.
//
// A Breaker counts consecutive connect failures. Once the threshold is
// reached it opens and rejects attempts with ErrCircuitOpen until the
// cool-down elapses; it then lets a limited number of probes through
// and closes again after enough of them succeed.
//
//	closed --failures--> open --cool-down--> half-open --successes--> closed
//	                      ^                      |
//	                      +------- failure ------+
package resilience

import (
	"context"
	"sync"
	"time"
)

// State is the position of a Breaker.
type State int

const (
	// StateClosed lets every attempt through.
	StateClosed State = iota
	// StateOpen rejects attempts until the cool-down elapses.
	StateOpen
	// StateHalfOpen admits a limited number of probes.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes a Breaker.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the breaker.
	// Default: 5
	FailureThreshold int `toml:"failure_threshold"`
	// SuccessThreshold is the number of successful probes that closes it.
	// Default: 2
	SuccessThreshold int `toml:"success_threshold"`
	// CoolDown is how long the breaker stays open.
	// Default: 30 seconds
	CoolDown time.Duration `toml:"cool_down"`
	// MaxProbes caps attempts admitted while half-open.
	// Default: 1
	MaxProbes int `toml:"max_probes"`
}

// DefaultConfig returns the default breaker tuning.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		CoolDown:         30 * time.Second,
		MaxProbes:        1,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = d.SuccessThreshold
	}
	if c.CoolDown <= 0 {
		c.CoolDown = d.CoolDown
	}
	if c.MaxProbes <= 0 {
		c.MaxProbes = d.MaxProbes
	}
	return c
}

// Breaker is a circuit breaker. It is safe for concurrent use.
type Breaker struct {
	name   string
	config Config

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	probes    int
	openedAt  time.Time
	changedAt time.Time
	lastErrAt time.Time

	onChange func(from, to State)
}

// New returns a closed breaker. Zero fields of cfg take their defaults.
func New(name string, cfg Config) *Breaker {
	return &Breaker{
		name:      name,
		config:    cfg.withDefaults(),
		state:     StateClosed,
		changedAt: time.Now(),
	}
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// OnStateChange registers fn to be called, on its own goroutine, after
// each transition.
func (b *Breaker) OnStateChange(fn func(from, to State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = fn
}

// State returns the current state. An open breaker whose cool-down has
// elapsed reports half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && time.Since(b.openedAt) >= b.config.CoolDown {
		return StateHalfOpen
	}
	return b.state
}

// Allow reports whether an attempt may proceed. A true result must be
// followed by Success or Failure.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(b.openedAt) < b.config.CoolDown {
			return false
		}
		b.moveTo(StateHalfOpen)
		b.probes = 1
		return true
	case StateHalfOpen:
		if b.probes >= b.config.MaxProbes {
			return false
		}
		b.probes++
		return true
	}
	return false
}

// Success records a successful attempt.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.moveTo(StateClosed)
		} else if b.probes > 0 {
			b.probes--
		}
	}
}

// Failure records a failed attempt.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastErrAt = time.Now()
	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.moveTo(StateOpen)
		}
	case StateHalfOpen:
		b.moveTo(StateOpen)
	}
}

// moveTo must be called with mu held.
func (b *Breaker) moveTo(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.changedAt = time.Now()
	b.successes = 0

	switch to {
	case StateClosed:
		b.failures = 0
		b.probes = 0
	case StateOpen:
		b.openedAt = b.changedAt
	case StateHalfOpen:
		b.probes = 0
	}

	log.WithField("breaker", b.name).
		WithField("from", from.String()).
		WithField("to", to.String()).
		Info("breaker state changed")

	if fn := b.onChange; fn != nil {
		go fn(from, to)
	}
}

// ExecuteWithContext runs fn if the breaker allows it and records the
// outcome. An error caused by ctx ending is returned without counting
// as a failure.
func (b *Breaker) ExecuteWithContext(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !b.Allow() {
		return ErrCircuitOpen
	}

	if err := fn(ctx); err != nil {
		if ctx.Err() != nil {
			// The attempt never reached a verdict.
			b.release()
			return ctx.Err()
		}
		b.Failure()
		return err
	}
	b.Success()
	return nil
}

// release hands back a half-open probe slot without a verdict.
func (b *Breaker) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen && b.probes > 0 {
		b.probes--
	}
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.moveTo(StateClosed)
	b.failures = 0
	b.successes = 0
	b.probes = 0
	b.openedAt = time.Time{}
}

// Stats is a snapshot of a Breaker.
type Stats struct {
	Name        string
	State       State
	Failures    int
	Successes   int
	LastFailure time.Time
	LastChange  time.Time
	Config      Config
}

// Stats returns a snapshot of the breaker.
func (b *Breaker) Stats() Stats {
	state := b.State()

	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Name:        b.name,
		State:       state,
		Failures:    b.failures,
		Successes:   b.successes,
		LastFailure: b.lastErrAt,
		LastChange:  b.changedAt,
		Config:      b.config,
	}
}
