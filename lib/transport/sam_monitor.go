package transport

import (
	"context"
	"net"
	"sync"
	"time"
)

// DefaultSAMCheckInterval is how often the I2P dialer probes its SAM bridge.
const DefaultSAMCheckInterval = 30 * time.Second

// SAMState is the reachability of a SAM bridge.
type SAMState int

const (
	// SAMStateUnknown is the state before the first probe.
	SAMStateUnknown SAMState = iota
	// SAMStateUp means the bridge accepts connections.
	SAMStateUp
	// SAMStateDown means the last probe failed.
	SAMStateDown
	// SAMStateResetting means the session is being discarded.
	SAMStateResetting
)

func (s SAMState) String() string {
	switch s {
	case SAMStateUp:
		return "up"
	case SAMStateDown:
		return "down"
	case SAMStateResetting:
		return "resetting"
	default:
		return "unknown"
	}
}

// samMonitorResetAfter is the number of consecutive failed probes that
// triggers a session reset. A reset happens once per outage.
const samMonitorResetAfter = 2

// SAMMonitor probes a SAM bridge and resets the I2P session once the
// bridge has been unreachable for consecutive probes. The next connect
// attempt then opens a fresh session.
type SAMMonitor struct {
	mu       sync.RWMutex
	addr     string
	interval time.Duration
	timeout  time.Duration
	reset    func() error

	state            SAMState
	lastCheck        time.Time
	consecutiveFails int
	resets           int

	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSAMMonitor creates a monitor for the bridge at addr. reset is called
// from the monitor goroutine and may be nil.
func NewSAMMonitor(addr string, interval, timeout time.Duration, reset func() error) *SAMMonitor {
	if interval <= 0 {
		interval = DefaultSAMCheckInterval
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SAMMonitor{
		addr:     addr,
		interval: interval,
		timeout:  timeout,
		reset:    reset,
	}
}

// Start begins probing in the background. Starting twice is a no-op.
func (m *SAMMonitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.mu.Unlock()

	log.WithField("sam", m.addr).WithField("interval", m.interval.String()).Debug("starting SAM monitor")

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.loop(ctx)
	}()
}

// Stop halts probing and waits for the monitor goroutine to exit.
func (m *SAMMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.cancel()
	m.mu.Unlock()

	m.wg.Wait()
}

// State returns the bridge state seen by the last probe.
func (m *SAMMonitor) State() SAMState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// LastCheck returns the time of the last probe.
func (m *SAMMonitor) LastCheck() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastCheck
}

// ConsecutiveFailures returns the number of failed probes in a row.
func (m *SAMMonitor) ConsecutiveFailures() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.consecutiveFails
}

// Resets returns how many times the session was reset.
func (m *SAMMonitor) Resets() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.resets
}

func (m *SAMMonitor) loop(ctx context.Context) {
	m.Check()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check()
		}
	}
}

// Check probes the bridge once and resets the session if it has been
// down for long enough.
func (m *SAMMonitor) Check() {
	up := m.probe()

	m.mu.Lock()
	m.lastCheck = time.Now()
	if up {
		if m.state != SAMStateUp {
			log.WithField("sam", m.addr).Debug("SAM bridge reachable")
		}
		m.state = SAMStateUp
		m.consecutiveFails = 0
		m.mu.Unlock()
		return
	}

	m.consecutiveFails++
	if m.state == SAMStateUp {
		log.WithField("sam", m.addr).Warn("SAM bridge unreachable")
	}
	m.state = SAMStateDown

	if m.consecutiveFails != samMonitorResetAfter || m.reset == nil {
		m.mu.Unlock()
		return
	}
	m.state = SAMStateResetting
	m.resets++
	fails := m.consecutiveFails
	m.mu.Unlock()

	log.WithField("sam", m.addr).WithField("consecutiveFails", fails).Info("resetting i2p session")
	if err := m.reset(); err != nil {
		log.WithError(err).WithField("sam", m.addr).Warn("i2p session reset failed")
	}
}

func (m *SAMMonitor) probe() bool {
	conn, err := net.DialTimeout("tcp", m.addr, m.timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
