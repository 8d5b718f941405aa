package config

import (
	"fmt"
	"net/url"
	"strings"

	"wabridge/pkg/logger"
)

// Validate returns configuration problems found in cfg.
// It does not mutate cfg.
func Validate(cfg *Config) []error {
	if cfg == nil {
		return []error{fmt.Errorf("config is nil")}
	}

	var errs []error

	if strings.TrimSpace(cfg.Bot.Secret) == "" {
		errs = append(errs, fmt.Errorf("bot.secret (BOT_SECRET) is required"))
	}
	if phone := cfg.Bot.Phone; phone != "" && NormalizePhone(phone) == "" {
		errs = append(errs, fmt.Errorf("bot.phone (BOT_PHONE) must contain digits"))
	}

	if cfg.Gateway.Port <= 0 || cfg.Gateway.Port > 65535 {
		errs = append(errs, fmt.Errorf("gateway.port (PORT) must be in [1,65535]"))
	}
	if cfg.Gateway.ImageFetchTimeoutSec <= 0 {
		errs = append(errs, fmt.Errorf("gateway.image_fetch_timeout_sec must be > 0"))
	}
	if cfg.Gateway.MaxImageBytes <= 0 {
		errs = append(errs, fmt.Errorf("gateway.max_image_bytes must be > 0"))
	}
	if cfg.Gateway.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("gateway.max_body_bytes must be > 0"))
	}

	if strings.TrimSpace(cfg.Webhook.URL) == "" {
		errs = append(errs, fmt.Errorf("webhook.url (WEBHOOK_URL) is required"))
	} else if err := validateHTTPURL(cfg.Webhook.URL); err != nil {
		errs = append(errs, fmt.Errorf("webhook.url (WEBHOOK_URL): %w", err))
	}
	if cfg.Webhook.TimeoutSec <= 0 {
		errs = append(errs, fmt.Errorf("webhook.timeout_sec must be > 0"))
	}
	if cfg.Webhook.MaxInFlight <= 0 {
		errs = append(errs, fmt.Errorf("webhook.max_in_flight must be > 0"))
	}

	if strings.TrimSpace(cfg.Session.AuthDir) == "" {
		errs = append(errs, fmt.Errorf("session.auth_dir (AUTH_DIR) must not be empty"))
	}
	if cfg.Session.PairRetryDelaySec <= 0 {
		errs = append(errs, fmt.Errorf("session.pair_retry_delay_sec must be > 0"))
	}

	if raw := strings.TrimSpace(cfg.Network.ProxyURL); raw != "" {
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("network.proxy_url (PROXY_URL) must be scheme://host:port"))
		}
	}
	if cfg.Network.ReconnectIntervalSec <= 0 {
		errs = append(errs, fmt.Errorf("network.reconnect_interval_sec must be > 0"))
	}
	if cfg.Network.ReconnectBurst <= 0 {
		errs = append(errs, fmt.Errorf("network.reconnect_burst must be > 0"))
	}

	if _, err := logger.ParseLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	if cfg.Logging.Enabled && strings.TrimSpace(cfg.Logging.Dir) == "" {
		errs = append(errs, fmt.Errorf("logging.dir must not be empty when logging is enabled"))
	}

	return errs
}

// NormalizePhone keeps only the digits of an international phone number, the
// form the pairing endpoint expects.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}
