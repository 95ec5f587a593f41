package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/GriffinCanCode/WalletKit/bridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/server"
)

func main() {
	// Parse flags
	port := flag.String("port", "", "Server port (overrides PORT)")
	bundle := flag.String("bundle", "", "Wallet bundle path (overrides ENGINE_BUNDLE)")
	network := flag.String("network", "", "Network passed to the bundle on init")
	configFile := flag.String("config", "", "YAML or TOML config file (overrides CONFIG_FILE)")
	dev := flag.Bool("dev", false, "Development logging")
	flag.Parse()

	if *configFile != "" {
		if err := os.Setenv("CONFIG_FILE", *configFile); err != nil {
			log.Fatalf("Failed to set config file: %v", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *bundle != "" {
		cfg.Engine.BundlePath = *bundle
	}
	if *network != "" {
		cfg.Engine.Network = *network
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	// Create server
	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}
	defer func() {
		if err := srv.Close(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	warmupCtx, cancel := context.WithTimeout(ctx, cfg.Engine.InitTimeout.Std())
	err = srv.Warmup(warmupCtx)
	cancel()
	if err != nil {
		log.Printf("Engine warmup failed, calls will retry after reconfiguration: %v", err)
	}

	if err := srv.Run(ctx); err != nil {
		log.Printf("Server error: %v", err)
		stop()
		return
	}
	log.Println("Shut down gracefully")
}
