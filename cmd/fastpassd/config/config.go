// Package config is fastpassd's YAML configuration, loaded the same
// way the teacher's session-service loads its own: read the file if
// present, fall back to DefaultConfig otherwise.
package config

import "time"

// Config is fastpassd's top-level configuration.
type Config struct {
	Mode      string          `yaml:"Mode"` // "endpoint" or "arbiter"
	Transport TransportConfig `yaml:"Transport"`
	Reset     ResetConfig     `yaml:"Reset"`
	Store     StoreConfig     `yaml:"Store"`
	Log       LogConfig       `yaml:"Log"`
	Metrics   MetricsConfig   `yaml:"Metrics"`
	Tracing   TracingConfig   `yaml:"Tracing"`
	Discovery DiscoveryConfig `yaml:"Discovery"`
	Admin     AdminConfig     `yaml:"Admin"`
	RateLimit RateLimitConfig `yaml:"RateLimit"`
}

// TransportConfig controls the UDP socket and send-path timing.
type TransportConfig struct {
	ListenAddr  string        `yaml:"ListenAddr"`
	ArbiterAddr string        `yaml:"ArbiterAddr"` // endpoint mode only
	SendTimeout time.Duration `yaml:"SendTimeout"`
}

// ResetConfig controls the reset/epoch handshake acceptance window.
type ResetConfig struct {
	Window time.Duration `yaml:"Window"`
}

// StoreConfig selects the multi-endpoint session registry backend
// (arbiter mode only).
type StoreConfig struct {
	Type  string      `yaml:"Type"` // memory, redis
	Redis RedisConfig `yaml:"Redis,omitempty"`
}

// RedisConfig configures the optional Redis-backed store.
type RedisConfig struct {
	Addr         string        `yaml:"Addr"`
	Password     string        `yaml:"Password"`
	DB           int           `yaml:"DB"`
	PoolSize     int           `yaml:"PoolSize"`
	DialTimeout  time.Duration `yaml:"DialTimeout"`
	ReadTimeout  time.Duration `yaml:"ReadTimeout"`
	WriteTimeout time.Duration `yaml:"WriteTimeout"`
}

// LogConfig controls zap logger construction.
type LogConfig struct {
	Level  string `yaml:"Level"`  // debug, info, warn, error
	Format string `yaml:"Format"` // json, console
}

// MetricsConfig controls the Prometheus /metrics HTTP endpoint.
type MetricsConfig struct {
	Enable bool   `yaml:"Enable"`
	Addr   string `yaml:"Addr"`
	Path   string `yaml:"Path"`
}

// TracingConfig controls OpenTelemetry span export.
type TracingConfig struct {
	Enable      bool    `yaml:"Enable"`
	ServiceName string  `yaml:"ServiceName"`
	Endpoint    string  `yaml:"Endpoint"`
	Exporter    string  `yaml:"Exporter"` // jaeger, zipkin
	SampleRate  float64 `yaml:"SampleRate"`
}

// DiscoveryConfig controls etcd-based arbiter address registration.
type DiscoveryConfig struct {
	Enable      bool          `yaml:"Enable"`
	Endpoints   []string      `yaml:"Endpoints"`
	ServiceKey  string        `yaml:"ServiceKey"`
	LeaseTTL    int64         `yaml:"LeaseTTL"`
	DialTimeout time.Duration `yaml:"DialTimeout"`
}

// AdminConfig controls the JWT-protected debug/admin HTTP surface,
// including its websocket event stream.
type AdminConfig struct {
	Enable    bool   `yaml:"Enable"`
	Addr      string `yaml:"Addr"`
	JWTSecret string `yaml:"JWTSecret"`
}

// RateLimitConfig rate-limits requests to the admin HTTP surface -- a
// flood guard at the daemon boundary. It does not pace the protocol's
// own send path, and it is not congestion control.
type RateLimitConfig struct {
	Enable bool `yaml:"Enable"`
	Rate   int  `yaml:"Rate"`
	Burst  int  `yaml:"Burst"`
}

// DefaultConfig returns fastpassd's default configuration.
func DefaultConfig() *Config {
	return &Config{
		Mode: "endpoint",
		Transport: TransportConfig{
			ListenAddr:  "0.0.0.0:9200",
			ArbiterAddr: "127.0.0.1:9201",
			SendTimeout: 100 * time.Millisecond,
		},
		Reset: ResetConfig{Window: 2 * time.Second},
		Store: StoreConfig{
			Type: "memory",
			Redis: RedisConfig{
				Addr:         "localhost:6379",
				PoolSize:     10,
				DialTimeout:  5 * time.Second,
				ReadTimeout:  3 * time.Second,
				WriteTimeout: 3 * time.Second,
			},
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Metrics: MetricsConfig{
			Enable: true,
			Addr:   "0.0.0.0:9202",
			Path:   "/metrics",
		},
		Tracing: TracingConfig{
			Enable:      false,
			ServiceName: "fastpassd",
			Endpoint:    "http://localhost:14268/api/traces",
			Exporter:    "jaeger",
			SampleRate:  1.0,
		},
		Discovery: DiscoveryConfig{
			Enable:      false,
			Endpoints:   []string{"localhost:2379"},
			ServiceKey:  "/fastpass/arbiter",
			LeaseTTL:    10,
			DialTimeout: 5 * time.Second,
		},
		Admin: AdminConfig{
			Enable: false,
			Addr:   "0.0.0.0:9203",
		},
		RateLimit: RateLimitConfig{Enable: false, Rate: 1000, Burst: 100},
	}
}
