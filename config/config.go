// Package config loads the settings a running eidetica node needs outside
// of the database itself: where to keep the backend file, which address to
// serve sync on, and how to log.
package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level node configuration, loaded from a YAML file and
// overridable per field by environment variables.
type Config struct {
	// DataDir is where the BoltDB backend file and any local key material
	// live.
	DataDir string `yaml:"data_dir"`

	// ListenAddr is the address the sync gRPC server binds to.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`

	// MetricsAddr is the address the Prometheus /metrics endpoint binds to.
	// Empty disables the metrics server.
	MetricsAddr string `yaml:"metrics_addr"`

	Sync SyncConfig `yaml:"sync"`
}

// SyncConfig holds the sync engine's tunables.
type SyncConfig struct {
	// DeviceID is this node's self-reported identity during Handshake.
	DeviceID string `yaml:"device_id"`

	// AutoApproveBootstrap grants every incoming access request
	// immediately instead of queuing it for manual approval.
	AutoApproveBootstrap bool `yaml:"auto_approve_bootstrap"`

	// SyncIntervalSeconds is how often the sync scheduler runs a full
	// bidirectional round with every active peer. A running scheduler
	// re-reads this field from the in-memory Config periodically; the
	// config file itself is read only by Load, so editing it takes effect
	// on the next start.
	SyncIntervalSeconds int `yaml:"sync_interval_seconds"`

	// TLSCertFile / TLSKeyFile / TLSCAFile configure mutual TLS for the
	// sync server and client. All three empty runs in plaintext.
	TLSCertFile string `yaml:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file"`
	TLSCAFile   string `yaml:"tls_ca_file"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		DataDir:     "./eidetica-data",
		ListenAddr:  ":7421",
		LogLevel:    "info",
		MetricsAddr: "",
		Sync: SyncConfig{
			DeviceID:            "",
			SyncIntervalSeconds: 30,
		},
	}
}

// Load reads path as YAML into a Config seeded from Default, then applies
// EIDETICA_*-prefixed environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("EIDETICA_DATA_DIR"); ok {
		cfg.DataDir = v
	}
	if v, ok := os.LookupEnv("EIDETICA_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("EIDETICA_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv("EIDETICA_METRICS_ADDR"); ok {
		cfg.MetricsAddr = v
	}
	if v, ok := os.LookupEnv("EIDETICA_SYNC_DEVICE_ID"); ok {
		cfg.Sync.DeviceID = v
	}
	if v, ok := os.LookupEnv("EIDETICA_SYNC_AUTO_APPROVE_BOOTSTRAP"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Sync.AutoApproveBootstrap = b
		}
	}
	if v, ok := os.LookupEnv("EIDETICA_SYNC_TLS_CERT_FILE"); ok {
		cfg.Sync.TLSCertFile = v
	}
	if v, ok := os.LookupEnv("EIDETICA_SYNC_TLS_KEY_FILE"); ok {
		cfg.Sync.TLSKeyFile = v
	}
	if v, ok := os.LookupEnv("EIDETICA_SYNC_TLS_CA_FILE"); ok {
		cfg.Sync.TLSCAFile = v
	}
	if v, ok := os.LookupEnv("EIDETICA_SYNC_INTERVAL_SECONDS"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Sync.SyncIntervalSeconds = n
		}
	}
}

// SyncInterval implements sync.IntervalSource: it reports the currently
// configured per-peer sync interval, read fresh from cfg each call so a
// reloaded config takes effect on the scheduler's next refresh tick.
func (c *Config) SyncInterval(ctx context.Context) (time.Duration, error) {
	n := c.Sync.SyncIntervalSeconds
	if n <= 0 {
		n = 30
	}
	return time.Duration(n) * time.Second, nil
}
