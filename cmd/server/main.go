package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/tinyauth/internal/logging"
	"github.com/dmitrijs2005/tinyauth/internal/server"
	"github.com/dmitrijs2005/tinyauth/internal/server/config"
	"github.com/joho/godotenv"
)

func main() {

	// .env is optional; real environment variables take precedence
	_ = godotenv.Load()

	ctx := context.Background()
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := logging.NewJSON(os.Stdout, cfg.LogLevel)

	app, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "startup failed", "error", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error(ctx, "shutdown error", "error", err)
		os.Exit(1)
	}
}
