package config

import (
	"fmt"
	"time"
)

// Config is the full trackd configuration tree.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Storage   StorageConfig   `koanf:"storage"`
	Workflow  WorkflowConfig  `koanf:"workflow"`
	Executors ExecutorConfig  `koanf:"executors"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// StorageConfig selects and configures the entity store adapter.
type StorageConfig struct {
	// Driver is "sqlite" or "memory". The memory driver keeps nothing
	// across restarts and exists for tests and ephemeral runs.
	Driver string `koanf:"driver"`

	// Path is the SQLite database file. Ignored by the memory driver.
	Path string `koanf:"path"`
}

// WorkflowConfig tunes the coordinator.
type WorkflowConfig struct {
	// RemediationPasses bounds the executor remediation loop per
	// advancement request.
	RemediationPasses int `koanf:"remediation_passes"`

	// CascadeBlock blocks a work item's non-terminal tasks when the item
	// itself is blocked.
	CascadeBlock bool `koanf:"cascade_block"`
}

// ExecutorConfig bounds the executor invocation pool.
type ExecutorConfig struct {
	Deadline      Duration `koanf:"deadline"`
	MaxParallel   int      `koanf:"max_parallel"`
	RatePerSecond float64  `koanf:"rate_per_second"`
}

// LoggingConfig is the subset of logging knobs exposed through the
// config tree. The logging package derives its full Config from this.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`

	// OTEL mirrors log output to the OTLP exporter when telemetry is
	// enabled.
	OTEL bool `koanf:"otel"`
}

// TelemetryConfig configures the OTLP exporters.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	ServiceName string  `koanf:"service_name"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9480
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = defaultDatabasePath()
	}

	if cfg.Workflow.RemediationPasses == 0 {
		cfg.Workflow.RemediationPasses = 1
	}

	if cfg.Executors.Deadline == 0 {
		cfg.Executors.Deadline = Duration(10 * time.Second)
	}
	if cfg.Executors.MaxParallel == 0 {
		cfg.Executors.MaxParallel = 4
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "trackd"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be within 1-65535, got %d", c.Server.Port)
	}

	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage path is required for the sqlite driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage driver %q (want sqlite or memory)", c.Storage.Driver)
	}

	if c.Workflow.RemediationPasses < 1 {
		return fmt.Errorf("workflow remediation_passes must be >= 1, got %d", c.Workflow.RemediationPasses)
	}

	if c.Executors.MaxParallel < 1 {
		return fmt.Errorf("executors max_parallel must be >= 1, got %d", c.Executors.MaxParallel)
	}
	if c.Executors.RatePerSecond < 0 {
		return fmt.Errorf("executors rate_per_second cannot be negative")
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			return fmt.Errorf("telemetry endpoint is required when telemetry is enabled")
		}
		if c.Telemetry.Protocol != "grpc" && c.Telemetry.Protocol != "http" {
			return fmt.Errorf("telemetry protocol must be 'grpc' or 'http', got %q", c.Telemetry.Protocol)
		}
		if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
			return fmt.Errorf("telemetry sample_rate must be within [0.0, 1.0], got %f", c.Telemetry.SampleRate)
		}
	}

	return nil
}
