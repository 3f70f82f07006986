package pool

import "github.com/go-i2p/netpool/lib/metrics"

// Pool utilization metrics
var (
	// PoolConnectionsTotal is the maximum pool size.
	PoolConnectionsTotal = metrics.NewGauge(
		"netpool_pool_channels_max",
		"Maximum number of channels in the pool",
	)
	// PoolConnectionsOpen is the current number of open channels.
	PoolConnectionsOpen = metrics.NewGauge(
		"netpool_pool_channels_open",
		"Current number of open pooled channels",
	)
	// PoolConnectionsIdle is the current number of idle channels.
	PoolConnectionsIdle = metrics.NewGauge(
		"netpool_pool_channels_idle",
		"Current number of idle channels in the pool",
	)
	// PoolConnectionsInUse is the number of channels currently lent out.
	PoolConnectionsInUse = metrics.NewGauge(
		"netpool_pool_channels_in_use",
		"Number of channels currently lent out",
	)
	// PoolAcquireTotal is the total number of acquire attempts.
	PoolAcquireTotal = metrics.NewCounter(
		"netpool_pool_acquire_total",
		"Total number of channel acquire attempts",
	)
	// PoolAcquireSuccessTotal is the number of successful acquires.
	PoolAcquireSuccessTotal = metrics.NewCounter(
		"netpool_pool_acquire_success_total",
		"Total number of successful channel acquires",
	)
	// PoolAcquireFailedTotal is the number of failed acquires.
	PoolAcquireFailedTotal = metrics.NewCounter(
		"netpool_pool_acquire_failed_total",
		"Total number of failed channel acquires",
	)
	// PoolReleaseTotal is the number of channels handed back.
	PoolReleaseTotal = metrics.NewCounter(
		"netpool_pool_release_total",
		"Total number of channel releases",
	)
	// PoolReleaseViaCloseTotal counts releases triggered by closing a
	// checked-out channel.
	PoolReleaseViaCloseTotal = metrics.NewCounter(
		"netpool_pool_release_via_close_total",
		"Total releases triggered by closing a checked-out channel",
	)
	// PoolUnsolicitedCloseTotal counts checked-out channels reclaimed
	// after the transport closed them.
	PoolUnsolicitedCloseTotal = metrics.NewCounter(
		"netpool_pool_unsolicited_close_total",
		"Total checked-out channels closed by the transport",
	)
	// PoolReleaseRejectedTotal counts direct Release calls rejected by a
	// release-on-close pool.
	PoolReleaseRejectedTotal = metrics.NewCounter(
		"netpool_pool_release_rejected_total",
		"Total direct releases rejected by a release-on-close pool",
	)
	// PoolHealthCheckFailsTotal is the number of health check failures.
	PoolHealthCheckFailsTotal = metrics.NewCounter(
		"netpool_pool_healthcheck_fails_total",
		"Total number of channels that failed health checks",
	)
	// PoolAcquireLatency tracks time spent acquiring channels.
	PoolAcquireLatency = metrics.NewHistogram(
		"netpool_pool_acquire_duration_seconds",
		"Time spent acquiring a channel from the pool",
		metrics.DefaultLatencyBuckets,
	)
)

// UpdateMetrics updates the pool gauges from Stats.
func UpdateMetrics(stats Stats) {
	PoolConnectionsTotal.Set(int64(stats.MaxSize))
	PoolConnectionsOpen.Set(int64(stats.NumOpen))
	PoolConnectionsIdle.Set(int64(stats.NumIdle))
	PoolConnectionsInUse.Set(int64(stats.NumInUse))
}
