package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"gridlock/internal/config"
	"gridlock/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults to ~/.config/gridlock/config.toml)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, loadedFrom, usedDefault, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if usedDefault {
		fmt.Fprintln(os.Stderr, "warn: no config file found, running with defaults")
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	logger.Info("gridlockd starting", logging.String("config", loadedFrom))

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("gridlockd exited with error", logging.Error(err))
		os.Exit(1)
	}
}
