package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dantte-lp/lf-rti/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.Federation.ID != "default" {
		t.Errorf("Federation.ID = %q, want %q", cfg.Federation.ID, "default")
	}

	if cfg.Federation.NumberOfFederates != 1 {
		t.Errorf("Federation.NumberOfFederates = %d, want %d", cfg.Federation.NumberOfFederates, 1)
	}

	if cfg.Federation.TCPTimeout != 5*time.Second {
		t.Errorf("Federation.TCPTimeout = %v, want %v", cfg.Federation.TCPTimeout, 5*time.Second)
	}

	if cfg.Federation.StartingPort != 15045 {
		t.Errorf("Federation.StartingPort = %d, want %d", cfg.Federation.StartingPort, 15045)
	}

	if cfg.Debug.Addr != ":8080" {
		t.Errorf("Debug.Addr = %q, want %q", cfg.Debug.Addr, ":8080")
	}

	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}

	// Defaults must pass validation.
	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() failed validation: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
federation:
  id: "sensor-net"
  number_of_federates: 4
  starting_port: 16000
debug:
  addr: ":8888"
metrics:
  addr: ":9200"
  path: "/custom-metrics"
log:
  level: "debug"
  format: "text"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Federation.ID != "sensor-net" {
		t.Errorf("Federation.ID = %q, want %q", cfg.Federation.ID, "sensor-net")
	}

	if cfg.Federation.NumberOfFederates != 4 {
		t.Errorf("Federation.NumberOfFederates = %d, want %d", cfg.Federation.NumberOfFederates, 4)
	}

	if cfg.Federation.StartingPort != 16000 {
		t.Errorf("Federation.StartingPort = %d, want %d", cfg.Federation.StartingPort, 16000)
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}

	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	// Partial YAML: only override federation.id and log.level.
	// Everything else should inherit from defaults.
	yamlContent := `
federation:
  id: "partial-net"
log:
  level: "warn"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Federation.ID != "partial-net" {
		t.Errorf("Federation.ID = %q, want %q", cfg.Federation.ID, "partial-net")
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}

	// Default values should be preserved.
	if cfg.Federation.NumberOfFederates != 1 {
		t.Errorf("Federation.NumberOfFederates = %d, want default %d", cfg.Federation.NumberOfFederates, 1)
	}

	if cfg.Federation.StartingPort != 15045 {
		t.Errorf("Federation.StartingPort = %d, want default %d", cfg.Federation.StartingPort, 15045)
	}

	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want default %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want default %q", cfg.Log.Format, "json")
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name: "empty federation id",
			modify: func(cfg *config.Config) {
				cfg.Federation.ID = ""
			},
			wantErr: config.ErrEmptyFederationID,
		},
		{
			name: "zero number of federates",
			modify: func(cfg *config.Config) {
				cfg.Federation.NumberOfFederates = 0
			},
			wantErr: config.ErrInvalidNumberOfFederates,
		},
		{
			name: "negative number of federates",
			modify: func(cfg *config.Config) {
				cfg.Federation.NumberOfFederates = -1
			},
			wantErr: config.ErrInvalidNumberOfFederates,
		},
		{
			name: "zero tcp timeout",
			modify: func(cfg *config.Config) {
				cfg.Federation.TCPTimeout = 0
			},
			wantErr: config.ErrInvalidTCPTimeout,
		},
		{
			name: "negative tcp timeout",
			modify: func(cfg *config.Config) {
				cfg.Federation.TCPTimeout = -1 * time.Second
			},
			wantErr: config.ErrInvalidTCPTimeout,
		},
		{
			name: "starting port out of range",
			modify: func(cfg *config.Config) {
				cfg.Federation.StartingPort = 70000
			},
			wantErr: config.ErrInvalidStartingPort,
		},
		{
			name: "zero port range limit",
			modify: func(cfg *config.Config) {
				cfg.Federation.PortRangeLimit = 0
			},
			wantErr: config.ErrInvalidPortRangeLimit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "INFO", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "WARN", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "Error", want: slog.LevelError},
		{input: "unknown", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
		{input: "trace", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got := config.ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("/nonexistent/path/config.yml")
	if err == nil {
		t.Fatal("Load() returned nil error for nonexistent file")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	// Environment variable tests cannot be parallel because they modify
	// process-wide state (os.Setenv).

	yamlContent := `
federation:
  id: "env-net"
log:
  level: "info"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("RTI_FEDERATION_ID", "env-override-net")
	t.Setenv("RTI_LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Federation.ID != "env-override-net" {
		t.Errorf("Federation.ID = %q, want %q (from env)", cfg.Federation.ID, "env-override-net")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (from env)", cfg.Log.Level, "debug")
	}
}

func TestLoadEnvOverridesMetrics(t *testing.T) {
	yamlContent := `
federation:
  id: "env-net"
metrics:
  addr: ":9100"
  path: "/metrics"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("RTI_METRICS_ADDR", ":9200")
	t.Setenv("RTI_METRICS_PATH", "/custom")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q (from env)", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom" {
		t.Errorf("Metrics.Path = %q, want %q (from env)", cfg.Metrics.Path, "/custom")
	}
}

// writeTemp creates a temporary YAML file and returns its path.
// The file is automatically cleaned up when the test finishes.
func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "rti.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
