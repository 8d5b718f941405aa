package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wabridge/pkg/channels"
	"wabridge/pkg/config"
	"wabridge/pkg/logger"
	"wabridge/pkg/relay"
	"wabridge/pkg/server"
	"wabridge/pkg/session"
)

const shutdownTimeout = 10 * time.Second

func runCmd() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		fmt.Println("Invalid configuration:")
		for _, e := range errs {
			fmt.Printf("  - %v\n", e)
		}
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := session.Open(ctx, cfg.SessionDBPath())
	if err != nil {
		fmt.Printf("Error opening session store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	webhook := relay.NewWebhook(relay.Options{
		URL:         cfg.Webhook.URL,
		Secret:      cfg.Bot.Secret,
		Timeout:     cfg.Webhook.Timeout(),
		MaxInFlight: cfg.Webhook.MaxInFlight,
	})
	holder := channels.NewHolder()
	whatsapp := channels.NewWhatsAppChannel(channels.Options{
		Phone:             config.NormalizePhone(cfg.Bot.Phone),
		DeviceName:        cfg.Bot.DeviceName,
		ProxyURL:          cfg.Network.ProxyURL,
		PairRetryDelay:    cfg.Session.PairRetryDelay(),
		ReconnectInterval: cfg.Network.ReconnectInterval(),
		ReconnectBurst:    cfg.Network.ReconnectBurst,
	}, store, holder, webhook)
	gateway := server.NewServer(cfg, holder, whatsapp)

	if err := gateway.Start(); err != nil {
		fmt.Printf("Error starting HTTP server: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ HTTP API listening on %s\n", gateway.Addr())

	if err := whatsapp.Start(ctx); err != nil {
		fmt.Printf("Error starting WhatsApp channel: %v\n", err)
	}
	fmt.Printf("✓ Session store: %s\n", store.Path())
	fmt.Println("Press Ctrl+C to stop. Send SIGHUP to reload logging settings.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	loopDone := whatsapp.Done()
	for {
		select {
		case <-loopDone:
			loopDone = nil
			if whatsapp.State() == channels.StateLoggedOut {
				fmt.Println("\n✗ WhatsApp session logged out. Remove the auth dir and restart to pair again.")
			}
			continue
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				fmt.Println("\n↻ Reloading logging settings...")
				newCfg, err := config.LoadConfig(getConfigPath())
				if err != nil {
					fmt.Printf("✗ Reload failed (load config): %v\n", err)
					continue
				}
				configureLogging(newCfg)
				fmt.Println("✓ Logging settings reloaded")
				continue
			}
		}
		break
	}

	fmt.Println("\nShutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := gateway.Stop(shutdownCtx); err != nil {
		logger.WarnCF("main", "HTTP server shutdown incomplete", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
	}
	if err := whatsapp.Stop(shutdownCtx); err != nil {
		logger.WarnCF("main", "WhatsApp channel shutdown incomplete", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
	}
	if err := webhook.Close(shutdownCtx); err != nil {
		logger.WarnCF("main", "Pending webhook posts abandoned", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
	}
	fmt.Println("✓ Stopped")
}
