package pool

import (
	"context"
	"testing"
	"time"

	"github.com/go-i2p/netpool/lib/channel"
	"github.com/go-i2p/netpool/lib/future"
	"github.com/go-i2p/netpool/lib/testutil"
)

// get waits for f with a test timeout.
func get[T any](t *testing.T, f future.Future[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := f.Await(ctx)
	if err == context.DeadlineExceeded {
		t.Fatal("future did not complete in time")
	}
	return v, err
}

// mustAcquire acquires from p and fails the test on error.
func mustAcquire(t *testing.T, p ChannelPool) channel.Channel {
	t.Helper()
	ch, err := get(t, p.Acquire(context.Background()))
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	return ch
}

// waitFor polls cond until it holds or the test times out.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func fake(ch channel.Channel) *testutil.FakeChannel {
	if w, ok := ch.(*WrappedChannel); ok {
		ch = w.Unwrap()
	}
	return ch.(*testutil.FakeChannel)
}

func newFixed(connector Connector, mutate func(*Config)) *FixedChannelPool {
	cfg := DefaultConfig()
	cfg.HealthCheckInterval = 0
	if mutate != nil {
		mutate(&cfg)
	}
	return NewFixedChannelPool(connector, cfg)
}
