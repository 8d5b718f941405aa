package main

import (
	"fmt"
	"os"
	"strings"

	"wabridge/pkg/config"
	"wabridge/pkg/logger"
)

const envConfigPath = "WABRIDGE_CONFIG"

func normalizeCLIArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}

	normalized := []string{args[0]}
	for i := 1; i < len(args); i++ {
		arg := args[i]
		if arg == "--debug" || arg == "-d" {
			continue
		}
		if arg == "--config" {
			if i+1 < len(args) {
				i++
			}
			continue
		}
		if strings.HasPrefix(arg, "--config=") {
			continue
		}
		normalized = append(normalized, arg)
	}
	return normalized
}

func detectConfigPathFromArgs(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" && i+1 < len(args) {
			return strings.TrimSpace(args[i+1])
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimSpace(strings.TrimPrefix(arg, "--config="))
		}
	}
	return ""
}

func printHelp() {
	fmt.Printf("%s wabridge - WhatsApp webhook bridge v%s\n\n", logo, version)
	fmt.Println("Usage: wabridge <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run         Connect to WhatsApp and serve the HTTP API (foreground)")
	fmt.Println("  status      Show effective configuration and probe a running instance")
	fmt.Println("  version     Show version information")
	fmt.Println("  help        Show this help")
	fmt.Println()
	fmt.Println("Global options:")
	fmt.Println("  --config <path>         Optional JSON config file (env: " + envConfigPath + ")")
	fmt.Println("  --debug, -d             Enable debug logging")
	fmt.Println()
	fmt.Println("Required environment:")
	fmt.Println("  WEBHOOK_URL             Where inbound messages are posted")
	fmt.Println("  BOT_SECRET              Shared secret for X-Bot-Token")
	fmt.Println()
	fmt.Println("Optional environment:")
	fmt.Println("  PORT, HOST, AUTH_DIR, PROXY_URL, BOT_PHONE, LOG_LEVEL, LOG_ENABLED")
}

// getConfigPath returns "" when no file was requested; the environment
// alone is a complete configuration.
func getConfigPath() string {
	if strings.TrimSpace(globalConfigPathOverride) != "" {
		return globalConfigPathOverride
	}
	return strings.TrimSpace(os.Getenv(envConfigPath))
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(getConfigPath())
	if err != nil {
		return nil, err
	}
	configureLogging(cfg)
	return cfg, nil
}

func configureLogging(cfg *config.Config) {
	if !config.IsDebugMode() {
		if level, err := logger.ParseLevel(cfg.Logging.Level); err == nil {
			logger.SetLevel(level)
		}
	}

	if !cfg.Logging.Enabled {
		logger.DisableFileLogging()
		return
	}

	logFile := cfg.LogFilePath()
	if err := logger.EnableFileLoggingWithRotation(logFile, cfg.Logging.MaxSizeMB, cfg.Logging.RetentionDays); err != nil {
		fmt.Printf("Warning: failed to enable file logging: %v\n", err)
	}
}

func maskSecret(s string) string {
	if s == "" {
		return "not set"
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
