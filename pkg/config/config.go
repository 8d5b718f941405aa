package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Bot     BotConfig     `json:"bot"`
	Gateway GatewayConfig `json:"gateway"`
	Webhook WebhookConfig `json:"webhook"`
	Session SessionConfig `json:"session"`
	Network NetworkConfig `json:"network"`
	Logging LoggingConfig `json:"logging"`
	mu      sync.RWMutex
}

// BotConfig identifies the secondary account and the shared secret used on
// both the control API and the webhook relay.
type BotConfig struct {
	Secret     string `json:"secret" env:"BOT_SECRET"`
	Phone      string `json:"phone" env:"BOT_PHONE"`
	DeviceName string `json:"device_name" env:"BOT_DEVICE_NAME"`
}

type GatewayConfig struct {
	Host                 string `json:"host" env:"HOST"`
	Port                 int    `json:"port" env:"PORT"`
	ImageFetchTimeoutSec int    `json:"image_fetch_timeout_sec" env:"IMAGE_FETCH_TIMEOUT_SEC"`
	MaxImageBytes        int64  `json:"max_image_bytes" env:"GATEWAY_MAX_IMAGE_BYTES"`
	MaxBodyBytes         int64  `json:"max_body_bytes" env:"GATEWAY_MAX_BODY_BYTES"`
}

type WebhookConfig struct {
	URL         string `json:"url" env:"WEBHOOK_URL"`
	TimeoutSec  int    `json:"timeout_sec" env:"WEBHOOK_TIMEOUT_SEC"`
	MaxInFlight int    `json:"max_in_flight" env:"WEBHOOK_MAX_IN_FLIGHT"`
}

type SessionConfig struct {
	AuthDir           string `json:"auth_dir" env:"AUTH_DIR"`
	PairRetryDelaySec int    `json:"pair_retry_delay_sec" env:"PAIR_RETRY_DELAY_SEC"`
}

type NetworkConfig struct {
	ProxyURL             string `json:"proxy_url" env:"PROXY_URL"`
	ReconnectIntervalSec int    `json:"reconnect_interval_sec" env:"RECONNECT_INTERVAL_SEC"`
	ReconnectBurst       int    `json:"reconnect_burst" env:"RECONNECT_BURST"`
}

type LoggingConfig struct {
	Enabled       bool   `json:"enabled" env:"LOG_ENABLED"`
	Level         string `json:"level" env:"LOG_LEVEL"`
	Dir           string `json:"dir" env:"LOG_DIR"`
	Filename      string `json:"filename" env:"LOG_FILENAME"`
	MaxSizeMB     int    `json:"max_size_mb" env:"LOG_MAX_SIZE_MB"`
	RetentionDays int    `json:"retention_days" env:"LOG_RETENTION_DAYS"`
}

var (
	isDebug bool
	muDebug sync.RWMutex
)

func SetDebugMode(debug bool) {
	muDebug.Lock()
	defer muDebug.Unlock()
	isDebug = debug
}

func IsDebugMode() bool {
	muDebug.RLock()
	defer muDebug.RUnlock()
	return isDebug
}

func DefaultConfig() *Config {
	return &Config{
		Bot: BotConfig{
			DeviceName: "Chrome (Linux)",
		},
		Gateway: GatewayConfig{
			Host:                 "0.0.0.0",
			Port:                 3000,
			ImageFetchTimeoutSec: 10,
			MaxImageBytes:        16 << 20,
			MaxBodyBytes:         1 << 20,
		},
		Webhook: WebhookConfig{
			TimeoutSec:  5,
			MaxInFlight: 32,
		},
		Session: SessionConfig{
			AuthDir:           "./auth_info",
			PairRetryDelaySec: 10,
		},
		Network: NetworkConfig{
			ReconnectIntervalSec: 2,
			ReconnectBurst:       3,
		},
		Logging: LoggingConfig{
			Enabled:       false,
			Level:         "info",
			Dir:           "./logs",
			Filename:      "wabridge.log",
			MaxSizeMB:     20,
			RetentionDays: 3,
		},
	}
}

// LoadConfig layers defaults, the optional JSON file at path and the process
// environment, in that order. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := unmarshalConfigStrict(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func unmarshalConfigStrict(data []byte, cfg *Config) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); err != io.EOF {
		if err == nil {
			return fmt.Errorf("invalid config: trailing JSON content")
		}
		return err
	}
	return nil
}

func (g GatewayConfig) ImageFetchTimeout() time.Duration {
	return time.Duration(g.ImageFetchTimeoutSec) * time.Second
}

func (w WebhookConfig) Timeout() time.Duration {
	return time.Duration(w.TimeoutSec) * time.Second
}

func (s SessionConfig) PairRetryDelay() time.Duration {
	return time.Duration(s.PairRetryDelaySec) * time.Second
}

func (n NetworkConfig) ReconnectInterval() time.Duration {
	return time.Duration(n.ReconnectIntervalSec) * time.Second
}

func (c *Config) ListenAddr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fmt.Sprintf("%s:%d", c.Gateway.Host, c.Gateway.Port)
}

// SessionDBPath is the SQLite file holding the paired device credentials.
func (c *Config) SessionDBPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return filepath.Join(expandHome(c.Session.AuthDir), "session.db")
}

func (c *Config) LogFilePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	filename := c.Logging.Filename
	if filename == "" {
		filename = "wabridge.log"
	}
	return filepath.Join(expandHome(c.Logging.Dir), filename)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
