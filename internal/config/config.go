// Package config loads and validates statuswatch configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/statuswatch/internal/progress"
)

// EnvPrefix prefixes environment overrides, e.g. STATUSWATCH_WATCH_TARGET.
const EnvPrefix = "STATUSWATCH"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Device  DeviceConfig  `mapstructure:"device"`
	Watch   WatchConfig   `mapstructure:"watch"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Logging LoggingConfig `mapstructure:"logging"`
	Server  ServerConfig  `mapstructure:"server"`
	Hub     HubConfig     `mapstructure:"hub"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
}

// DeviceConfig locates the device web UI.
type DeviceConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	PagePath string `mapstructure:"page_path"`
}

// WatchConfig selects what is polled and when it is done.
type WatchConfig struct {
	View       string `mapstructure:"view"`
	IntervalMs int    `mapstructure:"interval_ms"`
	// Target of 0 means the target is read from the device page.
	Target int64 `mapstructure:"target"`
}

// HTTPConfig configures the device HTTP client.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ServerConfig controls the optional monitor server.
type ServerConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Port        int      `mapstructure:"port"`
	// CORSOrigins lists browser origins allowed to read the monitor API.
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// HubConfig tunes sample batching.
type HubConfig struct {
	BufferSize     int `mapstructure:"buffer_size"`
	MaxBatchEvents int `mapstructure:"max_batch_events"`
	MaxBatchWaitMs int `mapstructure:"max_batch_wait_ms"`
}

// Sample history drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DBConfig controls access to the sample database. An empty DSN disables it.
// For the sqlite driver the DSN is a file path.
type DBConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from disk/environment. With an empty path a
// statuswatch.{yaml,json,toml} in the working directory or
// $HOME/.statuswatch is used when present.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("statuswatch")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.statuswatch")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("device.base_url", "http://192.168.4.1")
	v.SetDefault("device.page_path", "/")
	v.SetDefault("watch.view", progress.Recording.Name)
	v.SetDefault("watch.interval_ms", 500)
	v.SetDefault("watch.target", 0)
	v.SetDefault("http.timeout_seconds", 5)
	v.SetDefault("http.user_agent", "statuswatch/0.1")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 9090)
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("hub.buffer_size", 256)
	v.SetDefault("hub.max_batch_events", 32)
	v.SetDefault("hub.max_batch_wait_ms", 500)
	v.SetDefault("db.driver", DriverPostgres)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "progress_samples")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if _, err := c.PageURL(); err != nil {
		return err
	}
	if _, err := progress.LookupView(c.Watch.View); err != nil {
		return fmt.Errorf("watch.view: %w", err)
	}
	if c.Watch.IntervalMs <= 0 {
		return fmt.Errorf("watch.interval_ms must be > 0")
	}
	if c.Watch.Target < 0 {
		return fmt.Errorf("watch.target must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the server is enabled")
	}
	if c.Hub.BufferSize <= 0 || c.Hub.MaxBatchEvents <= 0 || c.Hub.MaxBatchWaitMs <= 0 {
		return fmt.Errorf("hub.buffer_size, hub.max_batch_events and hub.max_batch_wait_ms must be > 0")
	}
	switch c.DB.Driver {
	case DriverPostgres, DriverSQLite:
	case "":
		if c.DB.DSN != "" {
			return fmt.Errorf("db.driver is required when db.dsn is set")
		}
	default:
		return fmt.Errorf("db.driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.DB.Driver)
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	return nil
}

// PageURL joins the device base URL and page path.
func (c Config) PageURL() (string, error) {
	base, err := url.Parse(c.Device.BaseURL)
	if err != nil {
		return "", fmt.Errorf("device.base_url: %w", err)
	}
	if (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return "", fmt.Errorf("device.base_url must be an http(s) URL with a host, got %q", c.Device.BaseURL)
	}
	path := c.Device.PagePath
	if path == "" {
		path = "/"
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("device.page_path: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

// View resolves watch.view.
func (c Config) View() (progress.View, error) {
	view, err := progress.LookupView(c.Watch.View)
	if err != nil {
		return progress.View{}, fmt.Errorf("watch.view: %w", err)
	}
	return view, nil
}

// Interval converts watch.interval_ms.
func (c Config) Interval() time.Duration {
	return time.Duration(c.Watch.IntervalMs) * time.Millisecond
}

// RequestTimeout converts http.timeout_seconds.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// MaxBatchWait converts hub.max_batch_wait_ms.
func (c Config) MaxBatchWait() time.Duration {
	return time.Duration(c.Hub.MaxBatchWaitMs) * time.Millisecond
}
