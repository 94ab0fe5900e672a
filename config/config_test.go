package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/playout/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "playout.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Valid(t *testing.T) {
	path := writeConfig(t, `
platform:
  id: playout-dev
channels:
  - id: ch1
    host: 10.0.0.5
    port: 8594
    type: ticker
  - id: ch2
    host: 10.0.0.6
    port: 8594
sequencer:
  fetch_timeout: 10s
gateway:
  port: 9001
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "playout-dev", cfg.Platform.ID)
	require.Len(t, cfg.Channels, 2)
	assert.Equal(t, "10.0.0.5:8594", cfg.Channels[0].Addr())

	// explicit values kept, zero values defaulted
	assert.Equal(t, 10*time.Second, cfg.Sequencer.FetchTimeout)
	assert.Equal(t, DefaultReconnectDelay, cfg.Sequencer.ReconnectDelay)
	assert.Equal(t, 9001, cfg.Gateway.Port)
	assert.Equal(t, "/metrics", cfg.Gateway.MetricsPath)
	assert.Equal(t, "playout", cfg.NATS.SubjectPrefix)
}

func TestLoad_MissingPlatformID(t *testing.T) {
	path := writeConfig(t, `
channels:
  - id: ch1
    host: localhost
    port: 8594
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}

func TestLoad_DuplicateChannelID(t *testing.T) {
	path := writeConfig(t, `
platform:
  id: p
channels:
  - id: ch1
    host: a
    port: 1
  - id: ch1
    host: b
    port: 2
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestLoad_InvalidEndpoint(t *testing.T) {
	path := writeConfig(t, `
platform:
  id: p
channels:
  - id: ch1
    host: ""
    port: 8594
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestLoad_NATSEnabledNeedsURL(t *testing.T) {
	path := writeConfig(t, `
platform:
  id: p
nats:
  enabled: true
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PLAYOUT_NATS_URL", "nats://broker:4222")
	t.Setenv("PLAYOUT_GATEWAY_PORT", "7777")

	path := writeConfig(t, `
platform:
  id: p
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	assert.Equal(t, 7777, cfg.Gateway.Port)
}

func TestLoad_FileMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}
