// Command loadcsv loads an exported CSV into the warehouse table. Without
// an argument it picks the newest backfill file in CSV_DIR.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"adsetl/internal/bootstrap"
	"adsetl/internal/infrastructure"
	"adsetl/pkg/config"
	"adsetl/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level)

	if cfg.Warehouse.Table == "" {
		log.Fatal("BQ_TABLE is required")
	}

	path := flag.Arg(0)
	if path == "" {
		dir := cfg.ETL.CSVDir
		if dir == "" {
			dir = "."
		}
		if path, err = infrastructure.LatestBackfillFile(dir); err != nil {
			log.WithError(err).WithField("dir", dir).Fatal("No file to load")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Server.RunTimeout)
	defer cancel()

	app, err := bootstrap.New(ctx, cfg, log, prometheus.NewRegistry())
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize application")
	}

	result, err := app.Loads.LoadCSV(ctx, path)
	app.Close()
	if err != nil {
		log.WithError(err).WithField("file", path).Error("CSV load failed")
		os.Exit(1)
	}

	log.WithFields(map[string]any{
		"file":          path,
		"table":         cfg.Warehouse.Table,
		"rows_loaded":   result.RowsLoaded,
		"columns_added": result.ColumnsAdded,
	}).Info("CSV load finished")
}
