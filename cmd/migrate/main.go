package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/feral-file/ff-marketplace-ledger/internal/config"
	"github.com/feral-file/ff-marketplace-ledger/internal/logger"
	"github.com/feral-file/ff-marketplace-ledger/internal/store"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
	steps      = flag.Int("steps", 1, "Number of migrations to roll back with the down command")
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] up|down|version\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	config.ChdirRepoRoot()
	cfg, err := config.LoadMigrateConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	err = logger.Initialize(logger.Config{
		Debug:     cfg.Debug,
		SentryDSN: cfg.SentryDSN,
		Tags: map[string]string{
			"service": "migrate",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)

	databaseURL := cfg.Database.URL()
	path := zap.String("migrations_path", cfg.MigrationsPath)

	switch command := flag.Arg(0); command {
	case "up":
		if err := store.RunMigrations(databaseURL, cfg.MigrationsPath); err != nil {
			logger.Fatal("Failed to apply migrations", zap.Error(err), path)
		}
		logger.Info("Migrations applied", path)
	case "down":
		if err := store.RollbackMigrations(databaseURL, cfg.MigrationsPath, *steps); err != nil {
			logger.Fatal("Failed to roll back migrations", zap.Error(err), path)
		}
		logger.Info("Migrations rolled back", zap.Int("steps", *steps), path)
	case "version":
		version, dirty, err := store.MigrationVersion(databaseURL, cfg.MigrationsPath)
		if err != nil {
			logger.Fatal("Failed to read migration version", zap.Error(err), path)
		}
		logger.Info("Migration version", zap.Uint("version", version), zap.Bool("dirty", dirty))
	default:
		logger.Fatal("Unknown command", zap.String("command", command))
	}
}
