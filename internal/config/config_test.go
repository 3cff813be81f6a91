package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Security.RateLimit.Enabled)
	assert.Equal(t, "PVCLI_LICENSE", cfg.License.EnvVar)
	assert.Equal(t, "PULLVIEW LICENSE", cfg.License.Label)
	assert.Equal(t, []string{"github-sync"}, cfg.License.GuardedCommands)
	assert.NoError(t, cfg.validate())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PVCLI_SERVER_PORT", "9090")
	t.Setenv("PVCLI_LOGGING_LEVEL", "debug")
	t.Setenv("PVCLI_LICENSE_ENV_VAR", "MY_LICENSE")
	t.Setenv("PVCLI_LICENSE_GUARDED_COMMANDS", "github-sync,mirror")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "MY_LICENSE", cfg.License.EnvVar)
	assert.Equal(t, []string{"github-sync", "mirror"}, cfg.License.GuardedCommands)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 3000
keys:
  public_key_file: /etc/pvcli/pub.pem
  private_key_file: /etc/pvcli/priv.pem
license:
  label: PULLVIEW SITE LICENSE
  guarded_commands:
    - github-sync
    - mirror
`
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0o644))
	t.Setenv("PVCLI_CONFIG", configFile)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "/etc/pvcli/pub.pem", cfg.Keys.PublicKeyFile)
	assert.Equal(t, "/etc/pvcli/priv.pem", cfg.Keys.PrivateKeyFile)
	assert.Equal(t, "PULLVIEW SITE LICENSE", cfg.License.Label)
	assert.Equal(t, []string{"github-sync", "mirror"}, cfg.License.GuardedCommands)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("server:\n  port: 3000\n"), 0o644))
	t.Setenv("PVCLI_CONFIG", configFile)
	t.Setenv("PVCLI_SERVER_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid defaults",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "invalid server port",
		},
		{
			name:    "zero port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "negative read timeout",
			mutate:  func(c *Config) { c.Server.ReadTimeout = -time.Second },
			wantErr: "read timeout must be positive",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "invalid logging level",
		},
		{
			name:    "unknown log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "invalid logging format",
		},
		{
			name:    "rate limit enabled with zero rps",
			mutate:  func(c *Config) { c.Security.RateLimit.RPS = 0 },
			wantErr: "rate limit rps must be positive",
		},
		{
			name: "rate limit disabled skips rps check",
			mutate: func(c *Config) {
				c.Security.RateLimit.Enabled = false
				c.Security.RateLimit.RPS = 0
			},
			wantErr: "",
		},
		{
			name:    "missing public key file",
			mutate:  func(c *Config) { c.Keys.PublicKeyFile = "" },
			wantErr: "public key file must be set",
		},
		{
			name: "no license source",
			mutate: func(c *Config) {
				c.License.EnvVar = ""
				c.License.File = ""
			},
			wantErr: "a license source must be set",
		},
		{
			name:    "no guarded commands",
			mutate:  func(c *Config) { c.License.GuardedCommands = nil },
			wantErr: "at least one guarded command",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
			}
		})
	}
}
