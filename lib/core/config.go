// Package core wires the netpool components into a ready-to-use client:
// a transport dialer guarded by a circuit breaker, feeding either a
// release-on-close fixed pool or a non-pooling pool, configured from TOML.
package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/go-i2p/netpool/lib/pool"
	"github.com/go-i2p/netpool/lib/resilience"
	"github.com/go-i2p/netpool/lib/transport"
	"github.com/go-i2p/netpool/lib/validation"
)

// Pool modes
const (
	// PoolModeFixed lends channels from a bounded, reusable pool and
	// releases them when the caller closes the channel.
	PoolModeFixed = "fixed"
	// PoolModeNone opens a new channel per acquire and closes it on release.
	PoolModeNone = "none"
)

// envPrefix prefixes every environment override.
const envPrefix = "NETPOOL_"

// Config holds all configuration for a netpool client.
type Config struct {
	Client  ClientConfig  `toml:"client"`
	Pool    PoolConfig    `toml:"pool"`
	I2P     I2PConfig     `toml:"i2p"`
	Breaker BreakerConfig `toml:"breaker"`
}

// ClientConfig describes the remote endpoint.
type ClientConfig struct {
	// Name identifies the client in logs and breaker metrics
	Name string `toml:"name"`
	// Network is one of tcp, tcp4, tcp6, unix or i2p
	Network string `toml:"network"`
	// Target is the address to connect to
	Target string `toml:"target"`
	// DialTimeout bounds a single connect attempt
	DialTimeout time.Duration `toml:"dial_timeout"`
	// KeepAlive is the TCP keep-alive period
	KeepAlive time.Duration `toml:"keep_alive"`
	// ConnectRate caps connect attempts per second, 0 means unlimited
	ConnectRate float64 `toml:"connect_rate"`
	// ConnectBurst is the number of attempts allowed back to back
	ConnectBurst int `toml:"connect_burst"`
}

// PoolConfig selects and sizes the channel pool.
type PoolConfig struct {
	// Mode is "fixed" or "none"
	Mode string `toml:"mode"`
	// MaxSize bounds open channels in fixed mode
	MaxSize int `toml:"max_size"`
	// MaxIdleTime evicts channels idle for longer
	MaxIdleTime time.Duration `toml:"max_idle_time"`
	// AcquireTimeout bounds the wait for a free channel
	AcquireTimeout time.Duration `toml:"acquire_timeout"`
	// HealthCheckInterval is how often idle channels are checked, 0 disables
	HealthCheckInterval time.Duration `toml:"health_check_interval"`
	// LogEvents logs every pool event through the package logger
	LogEvents bool `toml:"log_events"`
}

// I2PConfig contains I2P router connection settings, used when
// client.network is "i2p".
type I2PConfig struct {
	// SAMAddress is the address of the I2P SAM bridge
	SAMAddress string `toml:"sam_address"`
	// TunnelName names the outgoing tunnel
	TunnelName string `toml:"tunnel_name"`
	// Options are SAM tunnel options such as "inbound.length=2"
	Options []string `toml:"options,omitempty"`
	// CheckInterval is how often the SAM bridge is probed, negative disables
	CheckInterval time.Duration `toml:"check_interval"`
}

// BreakerConfig configures the circuit breaker around connect attempts.
type BreakerConfig struct {
	// Enabled turns the breaker on
	Enabled bool `toml:"enabled"`
	resilience.Config
}

// DefaultConfig returns a Config with sensible defaults and no target.
func DefaultConfig() *Config {
	pc := pool.DefaultConfig()
	return &Config{
		Client: ClientConfig{
			Name:        "netpool",
			Network:     transport.NetworkTCP,
			DialTimeout: transport.DefaultDialTimeout,
			KeepAlive:   transport.DefaultKeepAlive,
		},
		Pool: PoolConfig{
			Mode:                PoolModeFixed,
			MaxSize:             pc.MaxSize,
			MaxIdleTime:         pc.MaxIdleTime,
			AcquireTimeout:      pc.AcquireTimeout,
			HealthCheckInterval: pc.HealthCheckInterval,
		},
		I2P: I2PConfig{
			SAMAddress:    transport.DefaultSAMAddress,
			TunnelName:    transport.DefaultTunnelName,
			CheckInterval: transport.DefaultSAMCheckInterval,
		},
		Breaker: BreakerConfig{
			Enabled: true,
			Config:  resilience.DefaultConfig(),
		},
	}
}

// LoadConfig reads configuration from a TOML file and applies NETPOOL_*
// environment overrides. If the file doesn't exist, the defaults are used.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveConfig writes the configuration to a TOML file.
// It creates the parent directory if it doesn't exist.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Validate checks the configuration and reports every invalid field. An
// empty target is allowed here; NewClient rejects it.
func (c *Config) Validate() error {
	var errs validation.Errors

	errs.Add(validation.Required("client.name", c.Client.Name))
	errs.Add(validation.OneOf("client.network", c.Client.Network,
		transport.NetworkTCP, "tcp4", "tcp6", transport.NetworkUnix, transport.NetworkI2P))
	if c.Client.Network == transport.NetworkI2P {
		errs.Add(validation.HostPort("i2p.sam_address", c.I2P.SAMAddress))
	}
	errs.Add(validation.NonNegativeDuration("client.dial_timeout", c.Client.DialTimeout))
	errs.Add(validation.NonNegativeFloat("client.connect_rate", c.Client.ConnectRate))
	errs.Add(validation.NonNegative("client.connect_burst", c.Client.ConnectBurst))

	errs.Add(validation.OneOf("pool.mode", c.Pool.Mode, PoolModeFixed, PoolModeNone))
	if c.Pool.Mode == PoolModeFixed {
		errs.Add(validation.Positive("pool.max_size", c.Pool.MaxSize))
	}
	errs.Add(validation.NonNegativeDuration("pool.max_idle_time", c.Pool.MaxIdleTime))
	errs.Add(validation.NonNegativeDuration("pool.acquire_timeout", c.Pool.AcquireTimeout))
	errs.Add(validation.NonNegativeDuration("pool.health_check_interval", c.Pool.HealthCheckInterval))

	if c.Breaker.Enabled {
		errs.Add(validation.Positive("breaker.failure_threshold", c.Breaker.FailureThreshold))
		errs.Add(validation.Positive("breaker.success_threshold", c.Breaker.SuccessThreshold))
		errs.Add(validation.PositiveDuration("breaker.cool_down", c.Breaker.CoolDown))
	}

	return errs.Err()
}

// PoolSettings converts the pool section to a pool.Config.
func (c *Config) PoolSettings() pool.Config {
	pc := pool.DefaultConfig()
	pc.MaxSize = c.Pool.MaxSize
	pc.MaxIdleTime = c.Pool.MaxIdleTime
	pc.AcquireTimeout = c.Pool.AcquireTimeout
	pc.HealthCheckInterval = c.Pool.HealthCheckInterval
	return pc
}

// DialerSettings converts the client and i2p sections to a transport.Config.
// The breaker is attached by NewClient.
func (c *Config) DialerSettings() transport.Config {
	return transport.Config{
		Network:      c.Client.Network,
		Address:      c.Client.Target,
		DialTimeout:  c.Client.DialTimeout,
		KeepAlive:    c.Client.KeepAlive,
		ConnectRate:  c.Client.ConnectRate,
		ConnectBurst: c.Client.ConnectBurst,
		SAMAddress:   c.I2P.SAMAddress,
		TunnelName:   c.I2P.TunnelName,
		I2POptions:   c.I2P.Options,

		SAMCheckInterval: c.I2P.CheckInterval,
	}
}

// applyEnvOverrides overwrites cfg with NETPOOL_* environment variables.
// Durations are given in seconds. Unparseable values are ignored.
func applyEnvOverrides(cfg *Config) {
	envString("CLIENT_NAME", &cfg.Client.Name)
	envString("NETWORK", &cfg.Client.Network)
	envString("TARGET", &cfg.Client.Target)
	envSeconds("DIAL_TIMEOUT", &cfg.Client.DialTimeout)
	envFloat("CONNECT_RATE", &cfg.Client.ConnectRate)

	envString("POOL_MODE", &cfg.Pool.Mode)
	envInt("POOL_MAX_SIZE", &cfg.Pool.MaxSize)
	envSeconds("POOL_MAX_IDLE_TIME", &cfg.Pool.MaxIdleTime)
	envSeconds("POOL_ACQUIRE_TIMEOUT", &cfg.Pool.AcquireTimeout)
	envSeconds("POOL_HEALTH_CHECK_INTERVAL", &cfg.Pool.HealthCheckInterval)
	envBool("POOL_LOG_EVENTS", &cfg.Pool.LogEvents)

	envString("SAM_ADDRESS", &cfg.I2P.SAMAddress)
	envString("TUNNEL_NAME", &cfg.I2P.TunnelName)
	if v, ok := os.LookupEnv(envPrefix + "I2P_OPTIONS"); ok {
		cfg.I2P.Options = splitList(v)
	}

	envBool("BREAKER_ENABLED", &cfg.Breaker.Enabled)
	envInt("BREAKER_FAILURE_THRESHOLD", &cfg.Breaker.FailureThreshold)
	envSeconds("BREAKER_COOL_DOWN", &cfg.Breaker.CoolDown)
}

func envString(key string, dst *string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		} else {
			log.WithField("key", envPrefix+key).WithError(err).Warn("ignoring invalid integer override")
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		} else {
			log.WithField("key", envPrefix+key).WithError(err).Warn("ignoring invalid number override")
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		} else {
			log.WithField("key", envPrefix+key).WithError(err).Warn("ignoring invalid boolean override")
		}
	}
}

func envSeconds(key string, dst *time.Duration) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(n) * time.Second
		} else {
			log.WithField("key", envPrefix+key).WithError(err).Warn("ignoring invalid duration override")
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
