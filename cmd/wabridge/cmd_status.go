package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"

	"wabridge/pkg/config"
	"wabridge/pkg/session"
)

type healthResponse struct {
	Status     string `json:"status"`
	Connection string `json:"connection"`
	Ready      bool   `json:"ready"`
}

func statusCmd() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		return
	}

	fmt.Printf("%s wabridge Status\n\n", logo)

	if path := getConfigPath(); path != "" {
		if _, err := os.Stat(path); err == nil {
			fmt.Println("Config:", path, "✓")
		} else {
			fmt.Println("Config:", path, "✗")
		}
	} else {
		fmt.Println("Config: environment only")
	}

	fmt.Printf("Listen: %s\n", cfg.ListenAddr())
	fmt.Printf("Webhook: %s (timeout %s)\n", cfg.Webhook.URL, cfg.Webhook.Timeout())
	fmt.Printf("Bot Secret: %s\n", maskSecret(cfg.Bot.Secret))
	if cfg.Bot.Phone != "" {
		fmt.Printf("Pairing: phone %s\n", config.NormalizePhone(cfg.Bot.Phone))
	} else {
		fmt.Println("Pairing: QR code")
	}
	if cfg.Network.ProxyURL != "" {
		fmt.Println("Proxy: configured")
	} else {
		fmt.Println("Proxy: direct")
	}

	dbPath := cfg.SessionDBPath()
	if _, err := os.Stat(dbPath); err != nil {
		fmt.Println("Session:", dbPath, "✗ (not paired)")
	} else if st, err := session.Open(context.Background(), dbPath); err != nil {
		fmt.Println("Session:", dbPath, "✗", err)
	} else {
		registered, err := st.Registered(context.Background())
		st.Close()
		switch {
		case err != nil:
			fmt.Println("Session:", dbPath, "✗", err)
		case registered:
			fmt.Println("Session:", dbPath, "✓ paired")
		default:
			fmt.Println("Session:", dbPath, "✗ (not paired)")
		}
	}

	if errs := config.Validate(cfg); len(errs) > 0 {
		fmt.Println("\nConfiguration problems:")
		for _, e := range errs {
			fmt.Printf("  - %v\n", e)
		}
	}

	var health healthResponse
	resp, err := resty.New().
		SetTimeout(2*time.Second).
		R().
		SetResult(&health).
		Get(fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Gateway.Port))
	switch {
	case err != nil:
		fmt.Println("\nRunning instance: not reachable")
	case !resp.IsSuccess():
		fmt.Printf("\nRunning instance: %s\n", resp.Status())
	default:
		fmt.Printf("\nRunning instance: %s (connection %s, ready %v)\n", health.Status, health.Connection, health.Ready)
	}

	if cfg.Logging.Enabled {
		fmt.Printf("Log File: %s\n", cfg.LogFilePath())
		fmt.Printf("Log Max Size: %d MB\n", cfg.Logging.MaxSizeMB)
		fmt.Printf("Log Retention: %d days\n", cfg.Logging.RetentionDays)
	}
}
