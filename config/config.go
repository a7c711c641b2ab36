package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the connector.
type Config struct {
	Connector ConnectorConfig `yaml:"connector"`
	Exchange  ExchangeConfig  `yaml:"exchange"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Rest      RestConfig      `yaml:"rest"`
	Stream    StreamConfig    `yaml:"stream"`
	Funding   FundingConfig   `yaml:"funding"`
	Account   AccountConfig   `yaml:"account"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ConnectorConfig identifies the running service.
type ConnectorConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// ExchangeConfig holds the venue endpoints and credentials. The key material
// is normally injected through BACKPACK_API_KEY / BACKPACK_API_SECRET rather
// than stored in the file.
type ExchangeConfig struct {
	Name         string `yaml:"name"`
	RestURL      string `yaml:"rest_url"`
	WsPublicURL  string `yaml:"ws_public_url"`
	WsPrivateURL string `yaml:"ws_private_url"`
	PublicKey    string `yaml:"public_key"`
	PrivateKey   string `yaml:"private_key"`
}

// ChannelsConfig sizes the output broadcasters.
type ChannelsConfig struct {
	TickBuffer  int `yaml:"tick_buffer"`
	StateBuffer int `yaml:"state_buffer"`
}

// RestConfig controls the REST gateway transport.
type RestConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond int           `yaml:"requests_per_second"`
	BurstSize         int           `yaml:"burst_size"`
}

// StreamConfig controls the public market data stream.
type StreamConfig struct {
	Symbols        []string      `yaml:"symbols"`
	ChunkSize      int           `yaml:"chunk_size"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

// FundingConfig controls the funding interval tracker.
type FundingConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	DefaultHours    float64       `yaml:"default_hours"`
}

// AccountConfig controls the account state synchronizer.
type AccountConfig struct {
	PollInterval   time.Duration `yaml:"poll_interval"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

// LoggingConfig mirrors the logger package's Configure parameters.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// MetricsConfig controls CloudWatch metric publishing.
type MetricsConfig struct {
	CloudWatch bool   `yaml:"cloudwatch"`
	Region     string `yaml:"region"`
	Namespace  string `yaml:"namespace"`
}

// Defaults applied when the file leaves a knob unset. The intervals mirror
// the exchange-facing cadence the connector is designed around: 5s websocket
// reconnect backoff, 600s funding refresh, 10s account poll.
const (
	defaultTickBuffer     = 1024
	defaultStateBuffer    = 64
	defaultChunkSize      = 200
	defaultFundingHours   = 8.0
	defaultRestTimeout    = 10 * time.Second
	defaultReconnectDelay = 5 * time.Second
	defaultFundingRefresh = 600 * time.Second
	defaultPollInterval   = 10 * time.Second
)

// LoadConfig reads and validates the YAML configuration at path, applying
// environment variable overrides for the credentials.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)
	applyEnvOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyDefaults(config *Config) {
	if config.Exchange.Name == "" {
		config.Exchange.Name = "Backpack"
	}
	if config.Exchange.RestURL == "" {
		config.Exchange.RestURL = "https://api.backpack.exchange"
	}
	if config.Exchange.WsPublicURL == "" {
		config.Exchange.WsPublicURL = "wss://ws.backpack.exchange"
	}
	if config.Exchange.WsPrivateURL == "" {
		config.Exchange.WsPrivateURL = config.Exchange.WsPublicURL
	}
	if config.Channels.TickBuffer <= 0 {
		config.Channels.TickBuffer = defaultTickBuffer
	}
	if config.Channels.StateBuffer <= 0 {
		config.Channels.StateBuffer = defaultStateBuffer
	}
	if config.Rest.Timeout <= 0 {
		config.Rest.Timeout = defaultRestTimeout
	}
	if config.Rest.RequestsPerSecond <= 0 {
		config.Rest.RequestsPerSecond = 10
	}
	if config.Rest.BurstSize <= 0 {
		config.Rest.BurstSize = config.Rest.RequestsPerSecond
	}
	if config.Stream.ChunkSize <= 0 || config.Stream.ChunkSize > defaultChunkSize {
		// The exchange rejects subscriptions above 200 streams per socket.
		config.Stream.ChunkSize = defaultChunkSize
	}
	if config.Stream.ReconnectDelay <= 0 {
		config.Stream.ReconnectDelay = defaultReconnectDelay
	}
	if config.Funding.RefreshInterval <= 0 {
		config.Funding.RefreshInterval = defaultFundingRefresh
	}
	if config.Funding.DefaultHours <= 0 {
		config.Funding.DefaultHours = defaultFundingHours
	}
	if config.Account.PollInterval <= 0 {
		config.Account.PollInterval = defaultPollInterval
	}
	if config.Account.ReconnectDelay <= 0 {
		config.Account.ReconnectDelay = defaultReconnectDelay
	}
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		config.Logging.Format = "json"
	}
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv("BACKPACK_API_KEY"); v != "" {
		config.Exchange.PublicKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("BACKPACK_API_SECRET"); v != "" {
		config.Exchange.PrivateKey = strings.TrimSpace(v)
	}
	if config.Metrics.CloudWatch {
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Metrics.Region = strings.TrimSpace(v)
		}
	}
}

func validate(config *Config) error {
	if config.Exchange.PublicKey == "" || config.Exchange.PrivateKey == "" {
		return fmt.Errorf("missing exchange credentials: set BACKPACK_API_KEY and BACKPACK_API_SECRET")
	}
	return nil
}
