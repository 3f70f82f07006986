package core

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/go-i2p/netpool/lib/channel"
	apperrors "github.com/go-i2p/netpool/lib/errors"
	"github.com/go-i2p/netpool/lib/pool"
	"github.com/go-i2p/netpool/lib/resilience"
	"github.com/go-i2p/netpool/lib/testutil"
)

// testConfig returns a config for target with background work disabled.
func testConfig(target string) *Config {
	cfg := DefaultConfig()
	cfg.Client.Target = target
	cfg.Client.DialTimeout = time.Second
	cfg.Pool.HealthCheckInterval = 0
	cfg.Pool.AcquireTimeout = 2 * time.Second
	return cfg
}

func newEcho(t *testing.T) *testutil.EchoServer {
	t.Helper()
	srv, err := testutil.NewEchoServer()
	if err != nil {
		t.Fatalf("NewEchoServer failed: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv
}

func newClient(t *testing.T, cfg *Config, handlers ...pool.EventHandler) *Client {
	t.Helper()
	c, err := NewClient(cfg, handlers...)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

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

func ping(_ context.Context, ch channel.Channel) error {
	if _, err := ch.Write([]byte("ping")); err != nil {
		return err
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(ch, buf); err != nil {
		return err
	}
	if string(buf) != "ping" {
		return errors.New("unexpected echo " + string(buf))
	}
	return nil
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(nil); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("nil config should be invalid input, got %v", err)
	}

	if _, err := NewClient(DefaultConfig()); !errors.Is(err, apperrors.ErrNoTarget) {
		t.Errorf("missing target should fail with ErrNoTarget, got %v", err)
	}

	cfg := testConfig("127.0.0.1:1")
	cfg.Pool.Mode = "lifo"
	if _, err := NewClient(cfg); err == nil {
		t.Error("invalid pool mode should be rejected")
	}
}

func TestClientDoReusesChannel(t *testing.T) {
	srv := newEcho(t)
	c := newClient(t, testConfig(srv.Addr()))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := c.Do(ctx, ping); err != nil {
			t.Fatalf("Do #%d failed: %v", i, err)
		}
	}

	stats := c.Stats()
	if stats.Pool.NumOpen != 1 {
		t.Errorf("expected one open channel, got %d", stats.Pool.NumOpen)
	}
	if stats.Pool.NumInUse != 0 {
		t.Errorf("expected no channel in use, got %d", stats.Pool.NumInUse)
	}
	if stats.Pool.AcquireSuccess != 3 {
		t.Errorf("expected 3 successful acquires, got %d", stats.Pool.AcquireSuccess)
	}
	waitFor(t, "server accept", func() bool { return srv.Accepted() == 1 })
}

func TestClientDoDiscardsOnError(t *testing.T) {
	srv := newEcho(t)
	c := newClient(t, testConfig(srv.Addr()))

	boom := errors.New("boom")
	err := c.Do(context.Background(), func(ctx context.Context, ch channel.Channel) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Do should return the function error, got %v", err)
	}

	waitFor(t, "discarded channel", func() bool {
		s := c.Stats().Pool
		return s.NumOpen == 0 && s.NumInUse == 0
	})

	if err := c.Do(context.Background(), ping); err != nil {
		t.Fatalf("Do after discard failed: %v", err)
	}
	waitFor(t, "second connection", func() bool { return srv.Accepted() == 2 })
}

func TestClientNonPoolingMode(t *testing.T) {
	srv := newEcho(t)
	cfg := testConfig(srv.Addr())
	cfg.Pool.Mode = PoolModeNone
	c := newClient(t, cfg)

	for i := 0; i < 3; i++ {
		if err := c.Do(context.Background(), ping); err != nil {
			t.Fatalf("Do #%d failed: %v", i, err)
		}
	}

	waitFor(t, "one connection per request", func() bool { return srv.Accepted() == 3 })
	if c.Stats().Pool != (pool.Stats{}) {
		t.Error("non-pooling mode should report empty pool stats")
	}
}

func TestClientAcquireAndRelease(t *testing.T) {
	srv := newEcho(t)
	c := newClient(t, testConfig(srv.Addr()))

	ch, err := c.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if _, ok := ch.(*pool.WrappedChannel); !ok {
		t.Fatalf("expected a wrapped channel, got %T", ch)
	}
	if got := c.Stats().Pool.NumInUse; got != 1 {
		t.Errorf("expected one channel in use, got %d", got)
	}

	if err := ch.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := c.Stats().Pool.NumIdle; got != 1 {
		t.Errorf("closed channel should be idle in the pool, got %d idle", got)
	}
	if !ch.IsActive() {
		t.Error("released channel should stay connected")
	}

	// A second close is a no-op.
	if err := ch.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if got := c.Stats().Pool.ReleaseCount; got != 1 {
		t.Errorf("expected one release, got %d", got)
	}
}

func TestClientConcurrentRequests(t *testing.T) {
	srv := newEcho(t)
	cfg := testConfig(srv.Addr())
	cfg.Pool.MaxSize = 2
	c := newClient(t, cfg)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.Do(context.Background(), ping)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Do failed: %v", err)
		}
	}
	if got := c.Stats().Pool.NumOpen; got > 2 {
		t.Errorf("pool exceeded its size: %d open", got)
	}
}

func TestClientBreakerOpens(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	cfg := testConfig(addr)
	cfg.Breaker.FailureThreshold = 1
	cfg.Breaker.CoolDown = time.Minute
	c := newClient(t, cfg)

	err = c.Do(context.Background(), ping)
	if !apperrors.IsConnectFailure(err) {
		t.Fatalf("first request should fail to connect, got %v", err)
	}

	err = c.Do(context.Background(), ping)
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("second request should be rejected by the breaker, got %v", err)
	}

	stats := c.Stats()
	if stats.Breaker == nil || stats.Breaker.State != resilience.StateOpen {
		t.Errorf("breaker should be open, got %+v", stats.Breaker)
	}
}

func TestClientBreakerDisabled(t *testing.T) {
	srv := newEcho(t)
	cfg := testConfig(srv.Addr())
	cfg.Breaker.Enabled = false
	c := newClient(t, cfg)

	if c.Stats().Breaker != nil {
		t.Error("disabled breaker should not report stats")
	}
	if err := c.Do(context.Background(), ping); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
}

func TestClientEvents(t *testing.T) {
	srv := newEcho(t)

	var mu sync.Mutex
	var kinds []pool.EventKind
	c := newClient(t, testConfig(srv.Addr()), func(e pool.Event) {
		mu.Lock()
		defer mu.Unlock()
		kinds = append(kinds, e.Kind)
	})

	if err := c.Do(context.Background(), ping); err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	waitFor(t, "release event", func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, k := range kinds {
			if k == pool.EventReleased {
				return true
			}
		}
		return false
	})
}

func TestClientAcquireCancelled(t *testing.T) {
	srv := newEcho(t)
	cfg := testConfig(srv.Addr())
	cfg.Pool.MaxSize = 1
	c := newClient(t, cfg)

	held, err := c.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Acquire(ctx); err == nil {
		t.Fatal("Acquire on an exhausted pool should fail when the context expires")
	}

	held.Close()
	waitFor(t, "idle channel", func() bool { return c.Stats().Pool.NumIdle == 1 })
	if got := c.Stats().Pool.NumOpen; got != 1 {
		t.Errorf("expected one open channel, got %d", got)
	}
}

func TestClientClose(t *testing.T) {
	srv := newEcho(t)
	c := newClient(t, testConfig(srv.Addr()))

	if err := c.Do(context.Background(), ping); err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
	if !c.Stats().Closed {
		t.Error("stats should report the client closed")
	}

	if _, err := c.Acquire(context.Background()); !errors.Is(err, ErrClientClosed) {
		t.Errorf("Acquire after Close should fail with ErrClientClosed, got %v", err)
	}
	if err := c.Do(context.Background(), ping); !errors.Is(err, apperrors.ErrClosed) {
		t.Errorf("Do after Close should fail, got %v", err)
	}
}

func TestClientPeerCloseReleasesLentChannel(t *testing.T) {
	srv := newEcho(t)
	c := newClient(t, testConfig(srv.Addr()))

	ch, err := c.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	srv.DropAll()

	buf := make([]byte, 1)
	if _, err := ch.Read(buf); err == nil {
		t.Fatal("read from a dropped connection should fail")
	}

	waitFor(t, "unsolicited close to release the channel", func() bool {
		s := c.Stats().Pool
		return s.NumOpen == 0 && s.NumInUse == 0 && s.ReleaseCount == 1
	})

	if err := ch.Close(); err != nil {
		t.Fatalf("Close after peer close failed: %v", err)
	}
	if got := c.Stats().Pool.ReleaseCount; got != 1 {
		t.Errorf("expected a single release, got %d", got)
	}

	if err := c.Do(context.Background(), ping); err != nil {
		t.Fatalf("Do after peer close failed: %v", err)
	}
	waitFor(t, "reconnect", func() bool { return srv.Accepted() == 2 })
}

func TestClientReconnectsAfterIdlePeerClose(t *testing.T) {
	srv := newEcho(t)
	c := newClient(t, testConfig(srv.Addr()))

	if err := c.Do(context.Background(), ping); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	srv.DropAll()
	time.Sleep(50 * time.Millisecond)

	if err := c.Do(context.Background(), ping); err != nil {
		t.Fatalf("Do on a pool whose idle channel was dropped failed: %v", err)
	}
	if got := c.Stats().Pool.HealthCheckFails; got != 1 {
		t.Errorf("expected the dropped channel to fail its reuse check, got %d", got)
	}
	waitFor(t, "reconnect", func() bool { return srv.Accepted() == 2 })
}
