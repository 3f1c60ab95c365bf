package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.Equal(t, uint64(0), cfg.Node.ID)
	assert.Equal(t, "127.0.0.1:7000", cfg.Node.InboundAddr())
	assert.Equal(t, "127.0.0.1:7001", cfg.Node.OutboundAddr())
	assert.Equal(t, 500*time.Millisecond, cfg.Election.PollTimeout)
	assert.True(t, cfg.Election.Announce)
	assert.Equal(t, 500*time.Millisecond, cfg.Election.Linger)
	assert.Zero(t, cfg.Election.MaxSendFailures)
	assert.Zero(t, cfg.Election.BackoffMax)
	assert.Equal(t, "badger", cfg.Storage.Backend)
	assert.Equal(t, "data", cfg.Storage.DataDir)
	assert.False(t, cfg.Status.Enabled)
	assert.Equal(t, "127.0.0.1:9100", cfg.Status.Addr())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
node:
  id: 9
  inbound_port: 7101
  outbound_host: 10.0.0.2
  outbound_port: 7102
election:
  poll_timeout: 250ms
  announce: false
  backoff_max: 1s
storage:
  backend: memory
logging:
  format: json
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), cfg.Node.ID)
	assert.Equal(t, "127.0.0.1:7101", cfg.Node.InboundAddr())
	assert.Equal(t, "10.0.0.2:7102", cfg.Node.OutboundAddr())
	assert.Equal(t, 250*time.Millisecond, cfg.Election.PollTimeout)
	assert.False(t, cfg.Election.Announce)
	assert.Equal(t, time.Second, cfg.Election.BackoffMax)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "node:\n  id: 9\n")
	t.Setenv("RINGELECT_NODE_ID", "12")
	t.Setenv("RINGELECT_ELECTION_LINGER", "5s")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), cfg.Node.ID)
	assert.Equal(t, 5*time.Second, cfg.Election.Linger)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(c *Config){
		"id at max":               func(c *Config) { c.Node.ID = 1<<32 - 1 },
		"inbound port":            func(c *Config) { c.Node.InboundPort = 0 },
		"outbound port":           func(c *Config) { c.Node.OutboundPort = 70000 },
		"outbound host":           func(c *Config) { c.Node.OutboundHost = "" },
		"poll timeout":            func(c *Config) { c.Election.PollTimeout = 0 },
		"negative linger":         func(c *Config) { c.Election.Linger = -time.Second },
		"negative failures":       func(c *Config) { c.Election.MaxSendFailures = -1 },
		"negative backoff":        func(c *Config) { c.Election.BackoffMax = -time.Second },
		"budget without announce": func(c *Config) { c.Election.Announce = false; c.Election.MaxSendFailures = 3 },
		"backend":                 func(c *Config) { c.Storage.Backend = "bolt" },
		"status port":             func(c *Config) { c.Status.Enabled = true; c.Status.Port = -1 },
		"log format":              func(c *Config) { c.Logging.Format = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateAcceptsBudgetWithAnnouncement(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Election.MaxSendFailures = 3
	assert.NoError(t, cfg.Validate())

	cfg.Election.Announce = false
	cfg.Election.MaxSendFailures = 0
	assert.NoError(t, cfg.Validate())
}

func TestValidateAcceptsBoundaryID(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Node.ID = 1<<32 - 2
	assert.NoError(t, cfg.Validate())
}
