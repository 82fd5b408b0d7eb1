// Command export_trades dumps the closed-trade history for one symbol to a
// CSV file. Safe to run while the main process is up; it only reads.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"portfolioLedger/config"
	"portfolioLedger/internal/adapters/logger"
	"portfolioLedger/internal/adapters/sqlite"
	"portfolioLedger/internal/utils"
)

func main() {
	symbol := flag.String("symbol", "", "symbol to export (required)")
	limit := flag.Int("limit", 1000, "maximum number of trades, newest first")
	output := flag.String("out", "trades.csv", "output CSV path")
	flag.Parse()

	if *symbol == "" {
		log.Fatal("FATAL: -symbol is required")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.NewStdLogger(cfg.LogLevel)

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to open database: %v", err)
	}
	defer repo.Close()

	trades, err := repo.FindClosedTrades(context.Background(), *symbol, *limit)
	if err != nil {
		log.Fatalf("FATAL: Failed to load closed trades: %v", err)
	}
	if err := utils.WriteClosedTradesToCSV(trades, *output); err != nil {
		log.Fatalf("FATAL: Failed to write CSV: %v", err)
	}
	fmt.Printf("Wrote %d trade(s) for %s to %s\n", len(trades), *symbol, *output)
}
