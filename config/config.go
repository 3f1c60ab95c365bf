package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"ringelect/pkg/ring"
)

// Config represents the application configuration
type Config struct {
	Node     NodeConfig     `mapstructure:"node"`
	Election ElectionConfig `mapstructure:"election"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Status   StatusConfig   `mapstructure:"status"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// NodeConfig places this participant in the ring.
type NodeConfig struct {
	ID           uint64 `mapstructure:"id"`
	InboundHost  string `mapstructure:"inbound_host"`
	InboundPort  int    `mapstructure:"inbound_port"`
	OutboundHost string `mapstructure:"outbound_host"`
	OutboundPort int    `mapstructure:"outbound_port"`
}

// InboundAddr is the local address the participant listens on.
func (n NodeConfig) InboundAddr() string {
	return fmt.Sprintf("%s:%d", n.InboundHost, n.InboundPort)
}

// OutboundAddr is the successor's inbound address.
func (n NodeConfig) OutboundAddr() string {
	return fmt.Sprintf("%s:%d", n.OutboundHost, n.OutboundPort)
}

// ElectionConfig tunes the driver loop
type ElectionConfig struct {
	PollTimeout     time.Duration `mapstructure:"poll_timeout"`
	Announce        bool          `mapstructure:"announce"`
	Linger          time.Duration `mapstructure:"linger"`
	MaxSendFailures int           `mapstructure:"max_send_failures"`
	BackoffMax      time.Duration `mapstructure:"backoff_max"`
}

// StorageConfig contains storage-related configuration
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	DataDir string `mapstructure:"data_dir"`
}

// StatusConfig controls the optional gRPC status service
type StatusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// Addr is the listen address of the status service.
func (s StatusConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// LoadConfig loads configuration from file and environment
func LoadConfig(configPath string) (*Config, error) {
	// A missing .env is the common case.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := newViper()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/ringelect")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// newViper returns a viper instance with defaults and env binding applied
func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RINGELECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Node defaults
	v.SetDefault("node.id", 0)
	v.SetDefault("node.inbound_host", "127.0.0.1")
	v.SetDefault("node.inbound_port", 7000)
	v.SetDefault("node.outbound_host", "127.0.0.1")
	v.SetDefault("node.outbound_port", 7001)

	// Election defaults
	v.SetDefault("election.poll_timeout", 500*time.Millisecond)
	v.SetDefault("election.announce", true)
	v.SetDefault("election.linger", 500*time.Millisecond)
	v.SetDefault("election.max_send_failures", 0)
	v.SetDefault("election.backoff_max", 0)

	// Storage defaults
	v.SetDefault("storage.backend", "badger")
	v.SetDefault("storage.data_dir", "./data")

	// Status defaults
	v.SetDefault("status.enabled", false)
	v.SetDefault("status.host", "127.0.0.1")
	v.SetDefault("status.port", 9100)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
}

// Validate checks a configuration that was built or modified outside LoadConfig.
func (c *Config) Validate() error {
	return validateConfig(c)
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if config.Node.ID >= ring.MaxID {
		return fmt.Errorf("node.id must be between 0 and %d", uint64(ring.MaxID)-1)
	}

	if err := validatePort("node.inbound_port", config.Node.InboundPort); err != nil {
		return err
	}
	if err := validatePort("node.outbound_port", config.Node.OutboundPort); err != nil {
		return err
	}
	if config.Node.OutboundHost == "" {
		return fmt.Errorf("node.outbound_host is required")
	}

	if config.Election.PollTimeout <= 0 {
		return fmt.Errorf("election.poll_timeout must be positive")
	}
	if config.Election.Linger < 0 {
		return fmt.Errorf("election.linger must not be negative")
	}
	if config.Election.MaxSendFailures < 0 {
		return fmt.Errorf("election.max_send_failures must not be negative")
	}
	// Without the announcement a finished winner looks like a dead
	// successor to the participant before it, which would burn its budget.
	if config.Election.MaxSendFailures > 0 && !config.Election.Announce {
		return fmt.Errorf("election.max_send_failures requires election.announce")
	}
	if config.Election.BackoffMax < 0 {
		return fmt.Errorf("election.backoff_max must not be negative")
	}

	switch config.Storage.Backend {
	case "badger":
		config.Storage.DataDir = filepath.Clean(config.Storage.DataDir)
	case "memory":
	default:
		return fmt.Errorf("storage.backend must be badger or memory, got %q", config.Storage.Backend)
	}

	if config.Status.Enabled {
		if err := validatePort("status.port", config.Status.Port); err != nil {
			return err
		}
	}

	switch config.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", config.Logging.Format)
	}

	return nil
}

func validatePort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535", name)
	}
	return nil
}

// GetDefaultConfig returns a default configuration
func GetDefaultConfig() *Config {
	v := newViper()

	var config Config
	_ = v.Unmarshal(&config)
	_ = validateConfig(&config)

	return &config
}
