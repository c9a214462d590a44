// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8086", cfg.Server.Port)
	assert.Equal(t, "libscif", cfg.SCIF.LibraryName)
	assert.Equal(t, 0, cfg.SCIF.LibraryVersion)
	assert.Equal(t, "auto", cfg.SCIF.BindMode)
	assert.Equal(t, 3, cfg.Device.OpenRetries)
	assert.Equal(t, 300*time.Millisecond, cfg.Device.RetryDelay)
	assert.Equal(t, "/sys", cfg.Device.SysfsRoot)
	assert.False(t, cfg.Database.Enabled)
	assert.False(t, cfg.Security.SmcWriteEnabled)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	content := `
server:
  port: "9000"
scif:
  library_version: 1
  bind_mode: ephemeral
device:
  devices: [0, 2]
  sample_interval: 2s
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, 1, cfg.SCIF.LibraryVersion)
	assert.Equal(t, []int{0, 2}, cfg.Device.Devices)
	assert.Equal(t, 2*time.Second, cfg.Device.SampleInterval)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.PrivilegedBind(true))
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("MICMGMT_SERVER_PORT", "7070")
	t.Setenv("MICMGMT_SECURITY_SMC_WRITE_ENABLED", "true")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.True(t, cfg.Security.SmcWriteEnabled)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bind mode", func(c *Config) { c.SCIF.BindMode = "sometimes" }},
		{"open retries", func(c *Config) { c.Device.OpenRetries = 0 }},
		{"sample interval", func(c *Config) { c.Device.SampleInterval = 0 }},
		{"negative card", func(c *Config) { c.Device.Devices = []int{-1} }},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }},
		{"environment", func(c *Config) { c.App.Environment = "qa" }},
		{"library name", func(c *Config) { c.SCIF.LibraryName = "" }},
		{"database host", func(c *Config) {
			c.Database.Enabled = true
			c.Database.Host = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(t.TempDir())
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, validate(cfg))
		})
	}
}

func TestPrivilegedBind(t *testing.T) {
	cfg := &Config{}

	cfg.SCIF.BindMode = "auto"
	assert.True(t, cfg.PrivilegedBind(true))
	assert.False(t, cfg.PrivilegedBind(false))

	cfg.SCIF.BindMode = "privileged"
	assert.True(t, cfg.PrivilegedBind(false))
}

func TestConnectionStrings(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{
		Host: "db", Port: 5433, User: "u", Password: "p", DBName: "mic", SSLMode: "disable",
	}}

	assert.Equal(t, "host=db port=5433 user=u password=p dbname=mic sslmode=disable", cfg.GetDatabaseDSN())
}
