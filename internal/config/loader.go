package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix            = "SNUZ"
	envConfigDefaultPath = "SNUZ_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"
)

// Load resolves the snuz configuration shared by the server and the presence
// client. Precedence: Default() < YAML file < SNUZ_* env vars; callers apply
// flag overrides with UpdateFrom. A missing file is created from Default().
// The resolved file path is returned alongside the config.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	for key, value := range defaultKeys(cfg) {
		v.SetDefault(key, value)
	}

	// Nested keys map to SNUZ_CLIENT_WS_BASE_URL and friends.
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return cfg, configPath, fmt.Errorf("read config: %w", err)
		}
		if writeErr := writeDefaultConfig(configPath, cfg); writeErr != nil {
			logger.Warn().Err(writeErr).Str("path", configPath).Msg("could not write default snuz config, using built-in defaults")
		} else {
			logger.Info().Str("path", configPath).Msg("wrote default snuz config")
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, configPath, fmt.Errorf("config %s: %w", configPath, err)
	}

	return cfg, configPath, nil
}

// defaultKeys lists every viper key with its default so env vars bind even
// when the file does not mention the key.
func defaultKeys(cfg Config) map[string]any {
	return map[string]any{
		"addr":                   cfg.Addr,
		"read_header_timeout":    cfg.ReadHeaderTimeout,
		"shutdown_timeout":       cfg.ShutdownTimeout,
		"database_path":          cfg.DatabasePath,
		"log_level":              cfg.LogLevel,
		"max_message_bytes":      cfg.MaxMessageBytes,
		"ws_rate_limit":          cfg.WSRateLimit,
		"client.ws_base_url":     cfg.Client.WSBaseURL,
		"client.api_base_url":    cfg.Client.APIBaseURL,
		"client.reconnect_delay": cfg.Client.ReconnectDelay,
		"client.dial_timeout":    cfg.Client.DialTimeout,
		"client.write_timeout":   cfg.Client.WriteTimeout,
		"client.http_timeout":    cfg.Client.HTTPTimeout,
		"client.http_retry_max":  cfg.Client.HTTPRetryMax,
	}
}

// Validate rejects values neither the server nor the presence client can run with.
func (c Config) Validate() error {
	var errs []error
	if c.MaxMessageBytes < 0 {
		errs = append(errs, errors.New("max_message_bytes must not be negative"))
	}
	if c.WSRateLimit < 0 {
		errs = append(errs, errors.New("ws_rate_limit must not be negative"))
	}
	if c.Client.ReconnectDelay <= 0 {
		errs = append(errs, errors.New("client.reconnect_delay must be positive"))
	}
	if c.Client.HTTPRetryMax < 0 {
		errs = append(errs, errors.New("client.http_retry_max must not be negative"))
	}
	if err := checkURL("client.ws_base_url", c.Client.WSBaseURL, "ws", "wss"); err != nil {
		errs = append(errs, err)
	}
	if err := checkURL("client.api_base_url", c.Client.APIBaseURL, "http", "https"); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func checkURL(key, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s: want %s URL, have %q", key, strings.Join(schemes, " or "), raw)
}

// resolveConfigPath picks the explicit path, then $SNUZ_CONFIG_DEFAULT_PATH,
// then ./config.yaml.
func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
