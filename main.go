package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os/signal"
	"syscall"

	"portfolioLedger/config"
	"portfolioLedger/internal/adapters/logger"
	"portfolioLedger/internal/adapters/sqlite"
	"portfolioLedger/internal/app"
	"portfolioLedger/internal/decision"
	"portfolioLedger/internal/domain"
	"portfolioLedger/internal/ledger"
	"portfolioLedger/internal/notify"
	"portfolioLedger/internal/ports"
	"portfolioLedger/internal/positions"
	"portfolioLedger/internal/reconcile"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()

	// 4. Initialize runtime state (ledger + position store) from the store
	book, err := ledger.New(appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize capital ledger: %v", err)
	}
	store, err := positions.NewStore(appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize position store: %v", err)
	}
	if err := bootstrapState(ctx, cfg, appLogger, repo, book, store); err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to bootstrap runtime state")
		log.Fatalf("FATAL: Failed to bootstrap runtime state: %v", err)
	}

	// 5. Initialize Reconciliation Service
	recon, err := reconcile.New(reconcile.Config{
		Logger:    appLogger,
		Ledger:    book,
		Store:     store,
		Repo:      repo,
		Tolerance: cfg.ReconTolerance,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize reconciliation service: %v", err)
	}

	// 6. Initialize Notifier
	var notifier ports.Notifier
	if cfg.TelegramToken != "" {
		notifier, err = notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize telegram notifier")
			log.Fatalf("FATAL: Failed to initialize telegram notifier: %v", err)
		}
		appLogger.Info(ctx, "Telegram alerting enabled")
	} else {
		notifier = notify.NewLog(appLogger)
		appLogger.Info(ctx, "Telegram not configured, alerts go to the log")
	}

	// 7. Initialize Decision Logic (no-op decider behind proposal limits)
	decider, err := decision.NewLimits(decision.NewHold(), decision.LimitsConfig{
		MaxOrderFraction: cfg.MaxOrderFraction,
		MaxOpenPositions: cfg.MaxOpenPositions,
	}, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize decision limits: %v", err)
	}

	// 8. Initialize Coordinator and run
	coordinator, err := app.NewCoordinator(cfg, appLogger, repo, book, store, recon, decider, notifier)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize coordinator: %v", err)
	}
	if err := coordinator.Run(ctx); err != nil {
		appLogger.Error(context.Background(), err, "Coordinator exited with error")
		log.Fatalf("FATAL: Coordinator exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}

// bootstrapState loads persisted sleeves and open positions into memory,
// funding any sleeve that does not exist yet from configuration. Existing
// sleeve rows always win over configured funding.
func bootstrapState(ctx context.Context, cfg *config.Config, appLogger ports.Logger, repo ports.Repository, book *ledger.Ledger, store *positions.Store) error {
	existing, err := repo.FindAllSleeves(ctx)
	if err != nil {
		return err
	}
	byID := make(map[domain.SleeveID]*domain.Sleeve, len(existing))
	for _, s := range existing {
		byID[s.ID] = s
	}

	sleeves := make([]*domain.Sleeve, 0, len(domain.AllSleeves()))
	for _, id := range domain.AllSleeves() {
		if s, ok := byID[id]; ok {
			sleeves = append(sleeves, s)
			continue
		}
		fresh := domain.NewSleeve(id, cfg.InitialCapital(id))
		stx, err := repo.Begin(ctx)
		if err != nil {
			return err
		}
		if err := stx.SaveSleeve(ctx, fresh); err != nil {
			_ = stx.Rollback()
			return err
		}
		if err := stx.Commit(); err != nil {
			return err
		}
		appLogger.Info(ctx, "Sleeve created", map[string]interface{}{
			"sleeve":         id,
			"initialCapital": fresh.InitialCapital.String(),
		})
		sleeves = append(sleeves, fresh)
	}
	book.Load(sleeves)

	var open []*domain.Position
	for _, s := range sleeves {
		positionsForSleeve, err := repo.FindOpenPositions(ctx, s.ID)
		if err != nil {
			return err
		}
		open = append(open, positionsForSleeve...)
	}
	store.Load(open)

	appLogger.Info(ctx, "Runtime state bootstrapped", map[string]interface{}{
		"sleeves":   len(sleeves),
		"positions": len(open),
	})
	return nil
}
