package main

import (
	"context"
	"testing"
	"time"

	"github.com/go-i2p/netpool/lib/core"
	apperrors "github.com/go-i2p/netpool/lib/errors"
	"github.com/go-i2p/netpool/lib/testutil"
)

func newProbeClient(t *testing.T, target, mode string) *core.Client {
	t.Helper()
	cfg := core.DefaultConfig()
	cfg.Client.Target = target
	cfg.Client.DialTimeout = time.Second
	cfg.Pool.Mode = mode
	cfg.Pool.MaxSize = 2
	cfg.Pool.HealthCheckInterval = 0

	c, err := core.NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestProbe(t *testing.T) {
	srv, err := testutil.NewEchoServer()
	if err != nil {
		t.Fatalf("NewEchoServer failed: %v", err)
	}
	defer srv.Close()

	for _, mode := range []string{core.PoolModeFixed, core.PoolModeNone} {
		t.Run(mode, func(t *testing.T) {
			c := newProbeClient(t, srv.Addr(), mode)

			res := probe(context.Background(), c, 3, 4, []byte("hello"), time.Second)
			if res.Requests != 12 || res.Succeeded != 12 || res.Failed != 0 {
				t.Errorf("unexpected result: %+v", res)
			}
			if res.LastError != "" || res.Failures != nil {
				t.Errorf("unexpected error: %s %v", res.LastError, res.Failures)
			}
		})
	}
}

func TestProbeCountsFailures(t *testing.T) {
	srv, err := testutil.NewEchoServer()
	if err != nil {
		t.Fatalf("NewEchoServer failed: %v", err)
	}
	addr := srv.Addr()
	srv.Close()

	c := newProbeClient(t, addr, core.PoolModeNone)

	res := probe(context.Background(), c, 2, 2, []byte("hello"), time.Second)
	if res.Failed != 4 || res.Succeeded != 0 {
		t.Errorf("expected every request to fail, got %+v", res)
	}
	if res.LastError == "" {
		t.Error("the last error should be reported")
	}
	var counted int64
	for code, n := range res.Failures {
		if code != apperrors.CodeConnection && code != apperrors.CodeUnavailable {
			t.Errorf("unexpected failure category %q", code)
		}
		counted += n
	}
	if counted != res.Failed {
		t.Errorf("failure categories add up to %d, want %d", counted, res.Failed)
	}
}

func TestProbeStopsOnCancel(t *testing.T) {
	srv, err := testutil.NewEchoServer()
	if err != nil {
		t.Fatalf("NewEchoServer failed: %v", err)
	}
	defer srv.Close()

	c := newProbeClient(t, srv.Addr(), core.PoolModeFixed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := probe(ctx, c, 2, 100, []byte("hello"), time.Second)
	if res.Requests != 0 {
		t.Errorf("a cancelled probe should issue no requests, got %d", res.Requests)
	}
}
