package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := defaultConfig()

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9480, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout.Duration())

	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.NotEmpty(t, cfg.Storage.Path)

	assert.Equal(t, 1, cfg.Workflow.RemediationPasses)
	assert.False(t, cfg.Workflow.CascadeBlock)

	assert.Equal(t, 10*time.Second, cfg.Executors.Deadline.Duration())
	assert.Equal(t, 4, cfg.Executors.MaxParallel)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "trackd", cfg.Telemetry.ServiceName)
	assert.Equal(t, "grpc", cfg.Telemetry.Protocol)
	assert.InDelta(t, 1.0, cfg.Telemetry.SampleRate, 1e-9)
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Storage.Driver = "memory"
	cfg.Workflow.RemediationPasses = 3
	applyDefaults(cfg)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, 3, cfg.Workflow.RemediationPasses)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults pass", mutate: func(c *Config) {}},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server port",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Storage.Driver = "postgres" },
			wantErr: "unknown storage driver",
		},
		{
			name: "sqlite without path",
			mutate: func(c *Config) {
				c.Storage.Driver = "sqlite"
				c.Storage.Path = ""
			},
			wantErr: "storage path is required",
		},
		{
			name:    "remediation passes below one",
			mutate:  func(c *Config) { c.Workflow.RemediationPasses = -1 },
			wantErr: "remediation_passes",
		},
		{
			name:    "negative rate",
			mutate:  func(c *Config) { c.Executors.RatePerSecond = -1 },
			wantErr: "rate_per_second",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging format",
		},
		{
			name: "telemetry enabled without endpoint",
			mutate: func(c *Config) {
				c.Telemetry.Enabled = true
				c.Telemetry.Endpoint = ""
			},
			wantErr: "telemetry endpoint",
		},
		{
			name: "telemetry bad protocol",
			mutate: func(c *Config) {
				c.Telemetry.Enabled = true
				c.Telemetry.Endpoint = "localhost:4317"
				c.Telemetry.Protocol = "udp"
			},
			wantErr: "telemetry protocol",
		},
		{
			name: "telemetry sample rate out of range",
			mutate: func(c *Config) {
				c.Telemetry.Enabled = true
				c.Telemetry.Endpoint = "localhost:4317"
				c.Telemetry.SampleRate = 1.5
			},
			wantErr: "sample_rate",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDuration(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-5s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))

	text, err := Duration(2 * time.Minute).MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "2m0s", string(text))

	blob, err := Duration(time.Second).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1s"`, string(blob))
}
