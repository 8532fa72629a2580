package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lei/rundeck-notify/pkg/gateway"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	// Load .env file (ignore error if file doesn't exist - env vars might be set externally)
	_ = godotenv.Load()

	// Determine sites file path from environment or use default
	sitesFile := os.Getenv("SITES_FILE")
	if sitesFile == "" {
		sitesFile = "configs/sites.yaml"
	}

	// A config file takes precedence over plain environment variables
	var gw *gateway.Gateway
	var err error
	if configFile := os.Getenv("CONFIG_FILE"); configFile != "" {
		gw, err = gateway.NewFromConfigFile(configFile, sitesFile)
	} else {
		gw, err = gateway.NewFromEnv(sitesFile)
	}
	if err != nil {
		return err
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Start the gateway (blocks until shutdown)
	return gw.Start(ctx)
}
