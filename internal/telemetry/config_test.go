package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/trackd/internal/config"
)

func TestDefaultConfigDisabledAndValid(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.False(t, cfg.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := NewDefaultConfig()
		cfg.Enabled = true
		return cfg
	}

	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Endpoint = ""
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.ServiceName = ""
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Protocol = "udp"
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Sampling.Rate = 1.5
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Metrics.ExportInterval = 0
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Shutdown.Timeout = 0
	assert.Error(t, cfg.Validate())

	// Disabled config skips every check.
	cfg = NewDefaultConfig()
	cfg.Endpoint = ""
	assert.NoError(t, cfg.Validate())
}

func TestValidateInsecureRemoteEndpoint(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Insecure = true

	for _, endpoint := range []string{"localhost:4317", "127.0.0.1:4317", "[::1]:4317", "127.0.0.53:4317"} {
		cfg.Endpoint = endpoint
		assert.NoError(t, cfg.Validate(), endpoint)
	}

	for _, endpoint := range []string{"collector.example.com:4317", "10.0.0.5:4317"} {
		cfg.Endpoint = endpoint
		err := cfg.Validate()
		require.Error(t, err, endpoint)
		assert.Contains(t, err.Error(), "insecure connections")
	}

	// TLS to a remote endpoint is fine.
	cfg.Insecure = false
	cfg.Endpoint = "collector.example.com:4317"
	assert.NoError(t, cfg.Validate())
}

func TestFromTree(t *testing.T) {
	cfg := FromTree(config.TelemetryConfig{
		Enabled:     true,
		ServiceName: "trackd-staging",
		Endpoint:    "localhost:4318",
		Protocol:    "http",
		Insecure:    true,
		SampleRate:  0.25,
	})
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "trackd-staging", cfg.ServiceName)
	assert.Equal(t, "localhost:4318", cfg.Endpoint)
	assert.Equal(t, "http", cfg.Protocol)
	assert.True(t, cfg.Insecure)
	assert.InDelta(t, 0.25, cfg.Sampling.Rate, 1e-9)

	// Tree gaps fall back to defaults.
	cfg = FromTree(config.TelemetryConfig{})
	assert.Equal(t, "trackd", cfg.ServiceName)
	assert.Equal(t, "grpc", cfg.Protocol)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
}
