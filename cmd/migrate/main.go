package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/emissor/backend/internal/infrastructure/config"
	"github.com/emissor/backend/internal/infrastructure/logger"
	"github.com/emissor/backend/internal/infrastructure/migration"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "loading configuration:", err)
		os.Exit(1)
	}
	log, err := logger.NewForEnvironment(cfg.App.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "creating logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync(log) }()

	sourcePath := os.Getenv("EMISSOR_MIGRATIONS_PATH")
	if sourcePath == "" {
		sourcePath = "migrations"
	}

	runner, err := migration.NewRunner(&cfg.Database, sourcePath, log)
	if err != nil {
		log.Fatal("creating migration runner", zap.Error(err))
	}
	defer func() { _ = runner.Close() }()

	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "up":
		if err := runner.Up(); err != nil {
			log.Fatal("applying migrations", zap.Error(err))
		}
	case "down":
		if err := runner.Down(); err != nil {
			log.Fatal("rolling back migration", zap.Error(err))
		}
	case "version":
		version, dirty, err := runner.Version()
		if err != nil {
			log.Fatal("reading schema version", zap.Error(err))
		}
		log.Info("schema version", zap.Uint("version", version), zap.Bool("dirty", dirty))
	default:
		fmt.Fprintf(os.Stderr, "usage: %s [up|down|version]\n", os.Args[0])
		os.Exit(2)
	}
}
