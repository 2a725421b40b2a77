// Package config manages the RTI daemon configuration using koanf/v2.
//
// Supports YAML files and RTI_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete RTI configuration.
type Config struct {
	Federation FederationConfig `koanf:"federation"`
	Debug      DebugConfig      `koanf:"debug"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	Log        LogConfig        `koanf:"log"`
}

// FederationConfig holds the federation-wide and tuning parameters a
// Federation is constructed with.
type FederationConfig struct {
	// ID is the federation's name; a connecting federate's FED_ID
	// federation name must match this exactly or admission rejects it.
	ID string `koanf:"id"`

	// NumberOfFederates is the static federation size N.
	NumberOfFederates int `koanf:"number_of_federates"`

	// TCPTimeout bounds a single RTI<->federate TCP read/write.
	TCPTimeout time.Duration `koanf:"tcp_timeout"`

	// UDPTimeout bounds a single clock-sync UDP read/write.
	UDPTimeout time.Duration `koanf:"udp_timeout"`

	// StartingPort is the first port the acceptor sweeps from.
	StartingPort int `koanf:"starting_port"`

	// PortRangeLimit bounds how far the acceptor sweeps before giving up.
	PortRangeLimit int `koanf:"port_range_limit"`

	// FedComBufferSize is carried into federation.Params; the relay
	// streams payloads in chunks of wire.FedComBufferSize (32 KiB)
	// whatever this value is.
	FedComBufferSize int `koanf:"fed_com_buffer_size"`

	// ConnectNumRetries bounds a federate client's connection attempts.
	ConnectNumRetries int `koanf:"connect_num_retries"`

	// ConnectRetryInterval is the federate client's backoff between
	// connection attempts.
	ConnectRetryInterval time.Duration `koanf:"connect_retry_interval"`

	// ClockSyncT1Period is the steady-state interval between clock-sync
	// rounds, per federate.
	ClockSyncT1Period time.Duration `koanf:"clock_sync_t1_period"`

	// ClockSyncT4MessagesPerInterval is the number of T1/T3/T4 rounds
	// run in-band during admission to seed the initial offset.
	ClockSyncT4MessagesPerInterval int `koanf:"clock_sync_t4_messages_per_interval"`

	// DelayStart is the fixed offset added to max(proposed start times)
	// to compute the federation's actual start time.
	DelayStart time.Duration `koanf:"delay_start"`

	// Edges describes the static dependency graph federates advance
	// against: each entry delays From's effect on To by DelayNs. Absent
	// from the YAML file, the federation runs with no cross-federate
	// dependencies (every federate advances freely once granted).
	Edges []EdgeConfig `koanf:"edges"`
}

// EdgeConfig is one entry of the static dependency graph, as loaded from
// YAML (federation.edges), mirroring federation.Edge but keeping the
// wire/config representation decoupled from the federation package's
// internal type.
type EdgeConfig struct {
	From   uint16 `koanf:"from"`
	To     uint16 `koanf:"to"`
	DelayNs int64 `koanf:"delay_ns"`
}

// DebugConfig holds the JSON-over-HTTP debug/inspection endpoint
// configuration consumed by the rtictl companion CLI.
type DebugConfig struct {
	// Addr is the HTTP listen address (e.g., ":8080"). Empty disables
	// the debug surface entirely.
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Federation: FederationConfig{
			ID:                             "default",
			NumberOfFederates:              1,
			TCPTimeout:                     5 * time.Second,
			UDPTimeout:                     1 * time.Second,
			StartingPort:                   15045,
			PortRangeLimit:                 1024,
			FedComBufferSize:               32 * 1024,
			ConnectNumRetries:              500,
			ConnectRetryInterval:           250 * time.Millisecond,
			ClockSyncT1Period:              5 * time.Second,
			ClockSyncT4MessagesPerInterval: 10,
			DelayStart:                     1 * time.Second,
		},
		Debug: DebugConfig{
			Addr: ":8080",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for RTI configuration.
// Variables are named RTI_<section>_<key>, e.g., RTI_FEDERATION_ID.
const envPrefix = "RTI_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (RTI_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	RTI_FEDERATION_ID                   -> federation.id
//	RTI_FEDERATION_NUMBER_OF_FEDERATES  -> federation.number_of_federates
//	RTI_DEBUG_ADDR                      -> debug.addr
//	RTI_METRICS_ADDR                    -> metrics.addr
//	RTI_METRICS_PATH                    -> metrics.path
//	RTI_LOG_LEVEL                       -> log.level
//	RTI_LOG_FORMAT                      -> log.format
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms RTI_FEDERATION_ID -> federation.id.
// Strips the RTI_ prefix, lowercases, and replaces the first _ (the
// section separator) with ., so multi-word keys such as
// number_of_federates keep their underscores.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"federation.id":                                  defaults.Federation.ID,
		"federation.number_of_federates":                 defaults.Federation.NumberOfFederates,
		"federation.tcp_timeout":                         defaults.Federation.TCPTimeout.String(),
		"federation.udp_timeout":                         defaults.Federation.UDPTimeout.String(),
		"federation.starting_port":                       defaults.Federation.StartingPort,
		"federation.port_range_limit":                    defaults.Federation.PortRangeLimit,
		"federation.fed_com_buffer_size":                 defaults.Federation.FedComBufferSize,
		"federation.connect_num_retries":                 defaults.Federation.ConnectNumRetries,
		"federation.connect_retry_interval":              defaults.Federation.ConnectRetryInterval.String(),
		"federation.clock_sync_t1_period":                defaults.Federation.ClockSyncT1Period.String(),
		"federation.clock_sync_t4_messages_per_interval": defaults.Federation.ClockSyncT4MessagesPerInterval,
		"federation.delay_start":                         defaults.Federation.DelayStart.String(),
		"debug.addr":                                     defaults.Debug.Addr,
		"metrics.addr":                                   defaults.Metrics.Addr,
		"metrics.path":                                   defaults.Metrics.Path,
		"log.level":                                      defaults.Log.Level,
		"log.format":                                     defaults.Log.Format,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyFederationID indicates the federation name is empty.
	ErrEmptyFederationID = errors.New("federation.id must not be empty")

	// ErrInvalidNumberOfFederates indicates the federation size is not
	// positive.
	ErrInvalidNumberOfFederates = errors.New("federation.number_of_federates must be >= 1")

	// ErrInvalidTCPTimeout indicates the TCP timeout is not positive.
	ErrInvalidTCPTimeout = errors.New("federation.tcp_timeout must be > 0")

	// ErrInvalidStartingPort indicates the starting port is out of the
	// valid TCP/UDP port range.
	ErrInvalidStartingPort = errors.New("federation.starting_port must be in [1, 65535]")

	// ErrInvalidPortRangeLimit indicates the port sweep range is not
	// positive.
	ErrInvalidPortRangeLimit = errors.New("federation.port_range_limit must be >= 1")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Federation.ID == "" {
		return ErrEmptyFederationID
	}

	if cfg.Federation.NumberOfFederates < 1 {
		return ErrInvalidNumberOfFederates
	}

	if cfg.Federation.TCPTimeout <= 0 {
		return ErrInvalidTCPTimeout
	}

	if cfg.Federation.StartingPort < 1 || cfg.Federation.StartingPort > 65535 {
		return ErrInvalidStartingPort
	}

	if cfg.Federation.PortRangeLimit < 1 {
		return ErrInvalidPortRangeLimit
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
