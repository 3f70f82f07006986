// Package pool lends reusable channels to callers.
//
// Three pools implement ChannelPool:
//   - NonPoolingPool connects a fresh channel per acquisition and closes
//     it on release.
//   - FixedChannelPool keeps up to MaxSize channels to one target, with
//     idle eviction, health checks and acquisition timeouts.
//   - ReleaseOnClosePool decorates another pool. The channels it lends
//     are *WrappedChannel values whose Close returns them to the
//     decorated pool; its own Release always fails.
//
// # Basic Usage
//
//	dialer, err := transport.NewDialer(transport.Config{Address: "example.com:80"})
//	if err != nil {
//	    return err
//	}
//
//	cfg := pool.DefaultConfig()
//	cfg.MaxSize = 10
//
//	p := pool.NewReleaseOnClosePool(pool.NewFixedChannelPool(dialer, cfg), pool.LogEvents())
//	defer p.Close()
//
//	ch, err := p.Acquire(ctx).Await(ctx)
//	if err != nil {
//	    return err
//	}
//	defer ch.Close() // back to the pool
//
//	// Use channel...
//
// If the transport drops a lent channel before the borrower closes it,
// the pool reclaims it at that moment and the borrower's later Close is
// a no-op. Either way the decorated pool sees exactly one release.
//
// # Metrics
//
// Pool metrics are registered with the metrics package:
//   - netpool_pool_channels_max: Maximum pool size
//   - netpool_pool_channels_open: Current open channels
//   - netpool_pool_channels_idle: Current idle channels
//   - netpool_pool_channels_in_use: Channels currently lent out
//   - netpool_pool_acquire_total: Total acquire attempts
//   - netpool_pool_acquire_success_total: Successful acquires
//   - netpool_pool_acquire_failed_total: Failed acquires
//   - netpool_pool_release_total: Total releases
//   - netpool_pool_release_via_close_total: Releases by closing a lent channel
//   - netpool_pool_unsolicited_close_total: Lent channels dropped by the transport
//   - netpool_pool_release_rejected_total: Rejected direct releases
//   - netpool_pool_healthcheck_fails_total: Health check failures
package pool
