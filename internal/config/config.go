package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Security SecurityConfig `yaml:"security" envconfig:"SECURITY"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Keys     KeysConfig     `yaml:"keys" envconfig:"KEYS"`
	License  LicenseConfig  `yaml:"license" envconfig:"LICENSE"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES" default:"1048576"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"10"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"20"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output string `yaml:"output" envconfig:"OUTPUT" default:"stderr"`
}

// KeysConfig locates the RSA key material. The public key is enough for
// verification; the private key (plus its passphrase variable) is only
// needed by issuing deployments.
type KeysConfig struct {
	PublicKeyFile  string `yaml:"public_key_file" envconfig:"PUBLIC_KEY_FILE" default:"keys/license_pub.pem"`
	PrivateKeyFile string `yaml:"private_key_file" envconfig:"PRIVATE_KEY_FILE"`
	PassphraseEnv  string `yaml:"passphrase_env" envconfig:"PASSPHRASE_ENV" default:"PVCLI_KEY_PASSPHRASE"`
}

// LicenseConfig controls where license text is read from and which
// commands require it.
type LicenseConfig struct {
	EnvVar          string        `yaml:"env_var" envconfig:"ENV_VAR" default:"PVCLI_LICENSE"`
	File            string        `yaml:"file" envconfig:"FILE"`
	Label           string        `yaml:"label" envconfig:"LABEL" default:"PULLVIEW LICENSE"`
	GuardedCommands []string      `yaml:"guarded_commands" envconfig:"GUARDED_COMMANDS" default:"github-sync"`
	CacheTTL        time.Duration `yaml:"cache_ttl" envconfig:"CACHE_TTL" default:"5m"`
	CacheSize       int           `yaml:"cache_size" envconfig:"CACHE_SIZE" default:"128"`
}

// Load loads configuration from environment variables and config file
func Load() (*Config, error) {
	var cfg Config

	// Load from environment variables first
	if err := envconfig.Process("PVCLI", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// Load from config file if exists
	configFile := getConfigFilePath()
	if configFile != "" {
		fileConfig, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileConfig, cfg)
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs merges file config with env config (env takes precedence)
func mergeConfigs(fileConfig, envConfig Config) Config {
	defaults := Default()

	if envConfig.Server.Port == defaults.Server.Port && fileConfig.Server.Port != 0 {
		envConfig.Server.Port = fileConfig.Server.Port
	}
	if envConfig.Server.ReadTimeout == defaults.Server.ReadTimeout && fileConfig.Server.ReadTimeout != 0 {
		envConfig.Server.ReadTimeout = fileConfig.Server.ReadTimeout
	}
	if envConfig.Server.WriteTimeout == defaults.Server.WriteTimeout && fileConfig.Server.WriteTimeout != 0 {
		envConfig.Server.WriteTimeout = fileConfig.Server.WriteTimeout
	}
	if envConfig.Keys.PublicKeyFile == defaults.Keys.PublicKeyFile && fileConfig.Keys.PublicKeyFile != "" {
		envConfig.Keys.PublicKeyFile = fileConfig.Keys.PublicKeyFile
	}
	if envConfig.Keys.PrivateKeyFile == "" {
		envConfig.Keys.PrivateKeyFile = fileConfig.Keys.PrivateKeyFile
	}
	if envConfig.License.File == "" {
		envConfig.License.File = fileConfig.License.File
	}
	if envConfig.License.Label == defaults.License.Label && fileConfig.License.Label != "" {
		envConfig.License.Label = fileConfig.License.Label
	}
	if len(fileConfig.License.GuardedCommands) > 0 &&
		len(envConfig.License.GuardedCommands) == 1 &&
		envConfig.License.GuardedCommands[0] == defaults.License.GuardedCommands[0] {
		envConfig.License.GuardedCommands = fileConfig.License.GuardedCommands
	}

	return envConfig
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %q", c.Logging.Level)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid logging format: %q", c.Logging.Format)
	}

	if c.Security.RateLimit.Enabled {
		if c.Security.RateLimit.RPS <= 0 {
			return fmt.Errorf("rate limit rps must be positive")
		}
		if c.Security.RateLimit.Burst <= 0 {
			return fmt.Errorf("rate limit burst must be positive")
		}
	}

	if c.Keys.PublicKeyFile == "" {
		return fmt.Errorf("public key file must be set")
	}

	if c.License.EnvVar == "" && c.License.File == "" {
		return fmt.Errorf("a license source must be set: env_var or file")
	}

	if len(c.License.GuardedCommands) == 0 {
		return fmt.Errorf("at least one guarded command must be specified")
	}

	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	// Check for config file in common locations
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}
	if custom := os.Getenv("PVCLI_CONFIG"); custom != "" {
		locations = append([]string{custom}, locations...)
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1MB
			ShutdownTimeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     10,
				Burst:   20,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
		Keys: KeysConfig{
			PublicKeyFile: "keys/license_pub.pem",
			PassphraseEnv: "PVCLI_KEY_PASSPHRASE",
		},
		License: LicenseConfig{
			EnvVar:          "PVCLI_LICENSE",
			Label:           "PULLVIEW LICENSE",
			GuardedCommands: []string{"github-sync"},
			CacheTTL:        5 * time.Minute,
			CacheSize:       128,
		},
	}
}
