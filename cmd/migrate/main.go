package main

import (
	"context"
	"flag"

	"github.com/username/deskchat/internal/adapters/storage/sqlite"
	"github.com/username/deskchat/internal/pkg/logutil"
	"github.com/username/deskchat/pkg/config"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		logutil.Fatal("Failed to load configuration", logutil.Fields{"error": err})
	}

	logutil.Info("Running journal migrations", logutil.Fields{"path": cfg.Journal.Path})

	journal, err := sqlite.NewJournal(cfg.Journal.Path)
	if err != nil {
		logutil.Fatal("Failed to open journal", logutil.Fields{"error": err})
	}
	defer journal.Close()

	if err := journal.Migrate(context.Background()); err != nil {
		logutil.Fatal("Migration failed", logutil.Fields{"error": err})
	}

	logutil.Info("Migrations completed successfully")
}
