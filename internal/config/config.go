package config

import "time"

// Config holds server and client configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	MaxMessageBytes   int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	// WSRateLimit is the number of inbound presence frames per second a single
	// channel may send before frames are dropped. Zero disables the limit.
	WSRateLimit float64 `mapstructure:"ws_rate_limit" yaml:"ws_rate_limit"`

	Client ClientConfig `mapstructure:"client" yaml:"client"`
}

// ClientConfig holds settings for the presence client.
type ClientConfig struct {
	WSBaseURL      string        `mapstructure:"ws_base_url" yaml:"ws_base_url"`
	APIBaseURL     string        `mapstructure:"api_base_url" yaml:"api_base_url"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	HTTPTimeout    time.Duration `mapstructure:"http_timeout" yaml:"http_timeout"`
	HTTPRetryMax   int           `mapstructure:"http_retry_max" yaml:"http_retry_max"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		DatabasePath:      "snuz.db",
		LogLevel:          "info",
		MaxMessageBytes:   64 << 10,
		WSRateLimit:       10,
		Client: ClientConfig{
			WSBaseURL:      "ws://localhost:8080/ws",
			APIBaseURL:     "http://localhost:8080",
			ReconnectDelay: 5 * time.Second,
			DialTimeout:    10 * time.Second,
			WriteTimeout:   5 * time.Second,
			HTTPTimeout:    10 * time.Second,
			HTTPRetryMax:   2,
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.MaxMessageBytes != 0 {
		c.MaxMessageBytes = other.MaxMessageBytes
	}
	if other.WSRateLimit != 0 {
		c.WSRateLimit = other.WSRateLimit
	}
	c.Client.updateFrom(other.Client)
}

func (c *ClientConfig) updateFrom(other ClientConfig) {
	if other.WSBaseURL != "" {
		c.WSBaseURL = other.WSBaseURL
	}
	if other.APIBaseURL != "" {
		c.APIBaseURL = other.APIBaseURL
	}
	if other.ReconnectDelay != 0 {
		c.ReconnectDelay = other.ReconnectDelay
	}
	if other.DialTimeout != 0 {
		c.DialTimeout = other.DialTimeout
	}
	if other.WriteTimeout != 0 {
		c.WriteTimeout = other.WriteTimeout
	}
	if other.HTTPTimeout != 0 {
		c.HTTPTimeout = other.HTTPTimeout
	}
	if other.HTTPRetryMax != 0 {
		c.HTTPRetryMax = other.HTTPRetryMax
	}
}
