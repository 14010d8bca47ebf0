package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/dmitrijs2005/tinyauth/internal/authctl"
	"github.com/dmitrijs2005/tinyauth/internal/cryptox"
	"github.com/dmitrijs2005/tinyauth/internal/server/config"
	"github.com/dmitrijs2005/tinyauth/internal/server/repositories/repomanager"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	dsn := flag.String("d", "", "database DSN (defaults to DATABASE_URL)")
	flag.Parse()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	if err := config.ApplyEnv(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		os.Exit(1)
	}
	if *dsn != "" {
		cfg.DatabaseDSN = *dsn
	}

	ctx := context.Background()

	db, err := repomanager.OpenPostgres(ctx, cfg.DatabaseDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	rm, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		os.Exit(1)
	}

	tool := authctl.NewTool(db, rm, cryptox.NewPasswordHasher(cfg.BcryptCost), cfg.Password, os.Stdout)

	err = authctl.Execute(ctx, tool, flag.Args(), authctl.Session{
		In:     os.Stdin,
		Out:    os.Stdout,
		Getenv: os.Getenv,
	})
	if err != nil {
		if !errors.Is(err, authctl.ErrUsage) {
			fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		}
		os.Exit(1)
	}
}
