package resilience

import (
	"context"

	"github.com/go-i2p/netpool/lib/metrics"
)

// Breaker metrics for Prometheus exposition.
var (
	// BreakerState is the state of the most recently changed breaker.
	// 0 = closed, 1 = open, 2 = half-open
	BreakerState = metrics.NewGauge(
		"netpool_breaker_state",
		"Current state of the connect breaker (0=closed, 1=open, 2=half-open)",
	)
	// BreakerTrips counts transitions into the open state.
	BreakerTrips = metrics.NewCounter(
		"netpool_breaker_trips_total",
		"Total number of times the connect breaker opened",
	)
	// BreakerRejections counts attempts rejected by an open breaker.
	BreakerRejections = metrics.NewCounter(
		"netpool_breaker_rejections_total",
		"Total connect attempts rejected by the breaker",
	)
)

func recordTransition(_, to State) {
	BreakerState.Set(int64(to))
	if to == StateOpen {
		BreakerTrips.Inc()
	}
}

// Instrumented is a Breaker that reports to the metrics registry.
type Instrumented struct {
	*Breaker
}

// NewInstrumented returns a breaker whose transitions and rejections are
// recorded as metrics.
func NewInstrumented(name string, cfg Config) *Instrumented {
	b := New(name, cfg)
	b.OnStateChange(recordTransition)
	return &Instrumented{Breaker: b}
}

// ExecuteWithContext runs fn through the breaker and counts rejections.
func (i *Instrumented) ExecuteWithContext(ctx context.Context, fn func(context.Context) error) error {
	err := i.Breaker.ExecuteWithContext(ctx, fn)
	if err == ErrCircuitOpen {
		BreakerRejections.Inc()
	}
	return err
}
