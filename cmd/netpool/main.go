// netpool is a probe for the netpool client. It connects to an echo-style
// endpoint over TCP, a Unix socket or I2P, and drives request rounds
// through the configured channel pool from several workers at once.
//
// Usage:
//
//	netpool [flags]
//
// Flags:
//
//	-config string
//	    Path to configuration file (default "~/.netpool/config.toml")
//	-target string
//	    Endpoint address (overrides config)
//	-network string
//	    tcp, unix or i2p (overrides config)
//	-mode string
//	    Pool mode, fixed or none (overrides config)
//	-n int
//	    Concurrent workers (default 4)
//	-rounds int
//	    Requests per worker (default 10)
//	-message string
//	    Payload each request writes and expects back (default "ping")
//	-timeout duration
//	    Deadline for a single request (default 10s)
//	-json
//	    Print the final statistics as JSON
//	-metrics
//	    Print the metrics registry after the run
//	-listen string
//	    Serve stats, health and metrics over HTTP while probing
//	-write-config string
//	    Write the effective configuration to this path and exit
//	-version
//	    Print version and exit
//
// Debug logging is enabled with DEBUG_I2P=debug.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/go-i2p/netpool/lib/channel"
	"github.com/go-i2p/netpool/lib/core"
	apperrors "github.com/go-i2p/netpool/lib/errors"
	"github.com/go-i2p/netpool/lib/metrics"
	"github.com/go-i2p/netpool/lib/web"
	"github.com/go-i2p/netpool/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	defaultConfigPath := filepath.Join(homeDir, ".netpool", "config.toml")

	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	target := flag.String("target", "", "Endpoint address (overrides config)")
	network := flag.String("network", "", "tcp, unix or i2p (overrides config)")
	mode := flag.String("mode", "", "Pool mode, fixed or none (overrides config)")
	workers := flag.Int("n", 4, "Concurrent workers")
	rounds := flag.Int("rounds", 10, "Requests per worker")
	message := flag.String("message", "ping", "Payload each request writes and expects back")
	timeout := flag.Duration("timeout", 10*time.Second, "Deadline for a single request")
	asJSON := flag.Bool("json", false, "Print the final statistics as JSON")
	showMetrics := flag.Bool("metrics", false, "Print the metrics registry after the run")
	listen := flag.String("listen", "", "Serve stats, health and metrics over HTTP while probing (e.g. 127.0.0.1:9180)")
	writeConfig := flag.String("write-config", "", "Write the effective configuration to this path and exit")
	showVersion := flag.Bool("version", false, "Print version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "netpool - connection pool probe\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  netpool [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Environment:\n")
		fmt.Fprintf(os.Stderr, "  NETPOOL_*       configuration overrides (see config.toml keys)\n")
		fmt.Fprintf(os.Stderr, "  DEBUG_I2P       log level (debug, warn, error)\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("netpool version %s\n", version.Full())
		return 0
	}

	cfg, err := core.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return 1
	}
	if *target != "" {
		cfg.Client.Target = *target
	}
	if *network != "" {
		cfg.Client.Network = *network
	}
	if *mode != "" {
		cfg.Pool.Mode = *mode
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return 1
	}

	if *writeConfig != "" {
		if err := core.SaveConfig(cfg, *writeConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing config: %v\n", err)
			return 1
		}
		fmt.Printf("Configuration written to %s\n", *writeConfig)
		return 0
	}

	if *workers < 1 || *rounds < 1 {
		fmt.Fprintf(os.Stderr, "-n and -rounds must be at least 1\n")
		return 1
	}

	metrics.RecordStartTime()

	client, err := core.NewClient(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating client: %v\n", err)
		return 1
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *listen != "" {
		srv, err := web.New(web.Config{ListenAddr: *listen, Source: client})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating status server: %v\n", err)
			return 1
		}
		if err := srv.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting status server: %v\n", err)
			return 1
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Stop(shutdownCtx)
		}()
		fmt.Printf("Status server listening on http://%s\n", srv.Addr())
	}

	result := probe(ctx, client, *workers, *rounds, []byte(*message), *timeout)

	if err := client.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error closing client: %v\n", err)
	}

	if *asJSON {
		printJSON(result, client.Stats())
	} else {
		printSummary(result, client.Stats())
	}
	if *showMetrics {
		fmt.Println()
		fmt.Print(metrics.Expose())
	}

	if result.Failed > 0 || ctx.Err() != nil {
		return 1
	}
	return 0
}

// probeResult summarizes a probe run.
type probeResult struct {
	Requests  int64         `json:"requests"`
	Succeeded int64         `json:"succeeded"`
	Failed    int64         `json:"failed"`
	Elapsed   time.Duration `json:"elapsed"`
	LastError string        `json:"last_error,omitempty"`
	// Failures counts failed requests by error category.
	Failures map[apperrors.Code]int64 `json:"failures,omitempty"`
}

// probe runs rounds requests on each of workers goroutines. A failed
// request is counted and the worker moves on.
func probe(ctx context.Context, client *core.Client, workers, rounds int, message []byte, timeout time.Duration) probeResult {
	var (
		ok, failed atomic.Int64
		lastErr    atomic.Error

		mu       sync.Mutex
		failures = make(map[apperrors.Code]int64)
	)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for r := 0; r < rounds; r++ {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				reqCtx, cancel := context.WithTimeout(gctx, timeout)
				err := client.Do(reqCtx, echo(message))
				cancel()
				if err != nil {
					failed.Inc()
					lastErr.Store(err)
					mu.Lock()
					failures[apperrors.CodeOf(err)]++
					mu.Unlock()
					continue
				}
				ok.Inc()
			}
			return nil
		})
	}
	g.Wait()

	res := probeResult{
		Requests:  ok.Load() + failed.Load(),
		Succeeded: ok.Load(),
		Failed:    failed.Load(),
		Elapsed:   time.Since(start),
	}
	if err := lastErr.Load(); err != nil {
		res.LastError = err.Error()
	}
	if len(failures) > 0 {
		res.Failures = failures
	}
	return res
}

// echo writes message and expects the same bytes back.
func echo(message []byte) func(context.Context, channel.Channel) error {
	return func(ctx context.Context, ch channel.Channel) error {
		if deadline, ok := ctx.Deadline(); ok {
			if err := ch.SetDeadline(deadline); err != nil {
				return err
			}
			defer ch.SetDeadline(time.Time{})
		}

		if _, err := ch.Write(message); err != nil {
			return fmt.Errorf("write: %w", err)
		}
		reply := make([]byte, len(message))
		if _, err := io.ReadFull(ch, reply); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if !bytes.Equal(reply, message) {
			return errors.New("reply does not match request")
		}
		return nil
	}
}

func printSummary(res probeResult, stats core.Stats) {
	fmt.Printf("Target:     %s (%s pool)\n", stats.Target, stats.Mode)
	fmt.Printf("Requests:   %d (%d ok, %d failed)\n", res.Requests, res.Succeeded, res.Failed)
	fmt.Printf("Elapsed:    %s\n", res.Elapsed.Round(time.Millisecond))
	if res.LastError != "" {
		fmt.Printf("Last error: %s\n", res.LastError)
	}
	if len(res.Failures) > 0 {
		codes := make([]string, 0, len(res.Failures))
		for code := range res.Failures {
			codes = append(codes, string(code))
		}
		sort.Strings(codes)
		for _, code := range codes {
			fmt.Printf("  %-12s %d\n", code+":", res.Failures[apperrors.Code(code)])
		}
	}
	if stats.Mode == core.PoolModeFixed {
		fmt.Printf("Pool:       %d acquires, %d released, %d health check failures\n",
			stats.Pool.AcquireCount, stats.Pool.ReleaseCount, stats.Pool.HealthCheckFails)
	}
	if stats.Breaker != nil {
		fmt.Printf("Breaker:    %s (%d failures)\n", stats.Breaker.State, stats.Breaker.Failures)
	}
}

func printJSON(res probeResult, stats core.Stats) {
	out := struct {
		Result probeResult `json:"result"`
		Client core.Stats  `json:"client"`
	}{res, stats}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding stats: %v\n", err)
		return
	}
	fmt.Println(string(data))
}
