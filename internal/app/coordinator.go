package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"portfolioLedger/config"
	"portfolioLedger/internal/domain"
	"portfolioLedger/internal/ledger"
	"portfolioLedger/internal/ports"
	"portfolioLedger/internal/positions"
	"portfolioLedger/internal/reconcile"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// Coordinator drives the periodic trading cycles and serializes all access to
// the capital ledger and position store. Each sleeve has a binary gate: a
// cycle holds it while RUNNING, and manual operations acquire the same gate,
// so at most one writer touches a sleeve at any instant. Cross-sleeve work
// runs concurrently since sleeves share no state.
type Coordinator struct {
	cfg      *config.Config
	logger   ports.Logger
	repo     ports.Repository
	ledger   *ledger.Ledger
	store    *positions.Store
	recon    *reconcile.Service
	decider  ports.Decider
	notifier ports.Notifier

	gates map[domain.SleeveID]*gate

	mu              sync.Mutex
	persistFailures map[domain.SleeveID]int
}

// gate is a binary semaphore. tryAcquire is the fail-fast path used by
// scheduled cycles; acquire is the blocking path used by manual operations.
type gate struct {
	sem chan struct{}
}

func newGate() *gate {
	g := &gate{sem: make(chan struct{}, 1)}
	g.sem <- struct{}{}
	return g
}

func (g *gate) tryAcquire() bool {
	select {
	case <-g.sem:
		return true
	default:
		return false
	}
}

func (g *gate) acquire(ctx context.Context) error {
	select {
	case <-g.sem:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gate) release() {
	g.sem <- struct{}{}
}

// NewCoordinator creates the application coordinator.
func NewCoordinator(
	cfg *config.Config,
	logger ports.Logger,
	repo ports.Repository,
	book *ledger.Ledger,
	store *positions.Store,
	recon *reconcile.Service,
	decider ports.Decider,
	notifier ports.Notifier,
) (*Coordinator, error) {
	if cfg == nil || logger == nil || repo == nil || book == nil || store == nil || recon == nil || decider == nil || notifier == nil {
		return nil, fmt.Errorf("missing required dependencies for coordinator")
	}
	if cfg.CycleInterval <= 0 {
		return nil, fmt.Errorf("configuration CycleInterval must be positive")
	}

	gates := make(map[domain.SleeveID]*gate, len(domain.AllSleeves()))
	for _, id := range domain.AllSleeves() {
		gates[id] = newGate()
	}
	return &Coordinator{
		cfg:             cfg,
		logger:          logger,
		repo:            repo,
		ledger:          book,
		store:           store,
		recon:           recon,
		decider:         decider,
		notifier:        notifier,
		gates:           gates,
		persistFailures: make(map[domain.SleeveID]int),
	}, nil
}

// Run starts one periodic timer per sleeve and blocks until the context is
// cancelled. Cycles execute on worker goroutines, never on the timer
// goroutine, so a slow cycle cannot delay tick delivery; a tick that finds
// the sleeve busy is skipped, not queued.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info(ctx, "Coordinator started", map[string]interface{}{
		"cycleInterval": c.cfg.CycleInterval.String(),
	})

	var wg sync.WaitGroup
	for _, id := range domain.AllSleeves() {
		wg.Add(1)
		go func(sleeve domain.SleeveID) {
			defer wg.Done()
			ticker := time.NewTicker(c.cfg.CycleInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					wg.Add(1)
					go func() {
						defer wg.Done()
						err := c.RunCycle(ctx, sleeve)
						switch {
						case err == nil:
						case errors.Is(err, ports.ErrCycleAlreadyRunning):
							c.logger.Debug(ctx, "Tick skipped, cycle still running", map[string]interface{}{"sleeve": sleeve})
						case errors.Is(err, context.Canceled):
						}
					}()
				}
			}
		}(id)
	}

	wg.Wait()
	c.logger.Info(context.Background(), "Coordinator stopped")
	return nil
}

// RunCycle executes one decision-and-settlement cycle for a sleeve. It fails
// fast with ErrCycleAlreadyRunning when the sleeve is not idle. There is no
// failed state: any error is logged and the sleeve returns to idle so the
// next scheduled tick can proceed.
func (c *Coordinator) RunCycle(ctx context.Context, sleeve domain.SleeveID) error {
	if !sleeve.IsValid() {
		return fmt.Errorf("run cycle: %s: %w", sleeve, ports.ErrUnknownSleeve)
	}
	g := c.gates[sleeve]
	if !g.tryAcquire() {
		return fmt.Errorf("sleeve %s: %w", sleeve, ports.ErrCycleAlreadyRunning)
	}
	defer g.release()

	if err := c.runCycleGated(ctx, sleeve); err != nil {
		c.logger.Error(ctx, err, "Cycle failed, sleeve back to idle", map[string]interface{}{"sleeve": sleeve})
		return err
	}
	return nil
}

// runCycleGated is the cycle body. The caller holds the sleeve's gate.
func (c *Coordinator) runCycleGated(ctx context.Context, sleeve domain.SleeveID) error {
	op := "runCycle"
	view, err := c.summaryGated(sleeve)
	if err != nil {
		return err
	}

	// Decision logic is external and may be arbitrarily slow; only this
	// sleeve's gate is held while it runs, never a ledger lock.
	actions, err := c.decider.Propose(ctx, sleeve, view)
	if err != nil {
		return fmt.Errorf("%s: decision logic for sleeve %s: %w", op, sleeve, err)
	}

	for _, action := range actions {
		// Cooperative cancellation between atomic steps: a fill is either
		// fully applied or not started.
		if err := ctx.Err(); err != nil {
			return err
		}
		fill := &domain.Transaction{
			Symbol:    action.Symbol,
			Sleeve:    sleeve,
			Action:    action.Action,
			Quantity:  action.Quantity,
			Price:     action.Price,
			Timestamp: time.Now().UTC(),
			Reason:    action.Reason,
		}
		if _, err := c.applyFill(ctx, fill); err != nil {
			switch {
			case errors.Is(err, ports.ErrInsufficientFunds),
				errors.Is(err, ports.ErrPositionNotFound),
				errors.Is(err, ports.ErrOverSell),
				errors.Is(err, ports.ErrInvalidRequest):
				// Rejected proposals are surfaced and skipped; the sleeve
				// state is untouched so the rest of the cycle is safe.
				c.logger.Warn(ctx, op+": proposal rejected", map[string]interface{}{
					"sleeve": sleeve,
					"symbol": action.Symbol,
					"action": action.Action,
					"error":  err.Error(),
				})
				continue
			case errors.Is(err, ports.ErrPersistence):
				c.noticePersistFailure(ctx, sleeve)
				return err
			default:
				return err
			}
		}
		c.clearPersistFailures(sleeve)
	}

	// Opportunistic reconciliation at the cycle boundary.
	report, err := c.reconcileSleeve(ctx, sleeve)
	if err != nil {
		return err
	}
	if report.HasDrift() {
		c.escalateDrift(ctx, report)
	}
	return nil
}

// SubmitFill is the single ingestion point for a broker fill report, whether
// produced by the autonomous loop or entered manually. It blocks until the
// sleeve's gate is free, so a manual fill never races an in-flight cycle.
// Returned closed trades are empty for buys.
func (c *Coordinator) SubmitFill(ctx context.Context, fill *domain.Transaction) ([]domain.ClosedTrade, error) {
	if fill == nil {
		return nil, fmt.Errorf("nil fill: %w", ports.ErrInvalidRequest)
	}
	if !fill.Sleeve.IsValid() {
		return nil, fmt.Errorf("submit fill: %s: %w", fill.Sleeve, ports.ErrUnknownSleeve)
	}
	g := c.gates[fill.Sleeve]
	if err := g.acquire(ctx); err != nil {
		return nil, err
	}
	defer g.release()
	return c.applyFill(ctx, fill)
}

// applyFill validates and applies one fill. The caller holds the sleeve's
// gate. The in-memory mutation happens first through the component APIs; the
// same effects are then persisted in a single store transaction. If any
// persistence step fails, the in-memory mutation is rolled back from the
// backups taken up front, so memory and store never diverge by more than an
// uncommitted attempt.
func (c *Coordinator) applyFill(ctx context.Context, fill *domain.Transaction) ([]domain.ClosedTrade, error) {
	op := "applyFill"
	if !fill.Action.IsValid() {
		return nil, fmt.Errorf("%s: action %q: %w", op, fill.Action, ports.ErrInvalidRequest)
	}
	if fill.Symbol == "" || !fill.Quantity.IsPositive() || !fill.Price.IsPositive() {
		return nil, fmt.Errorf("%s: symbol, quantity and price are required: %w", op, ports.ErrInvalidRequest)
	}
	if fill.Timestamp.IsZero() {
		fill.Timestamp = time.Now().UTC()
	}

	backupSleeve, err := c.ledger.Sleeve(fill.Sleeve)
	if err != nil {
		return nil, err
	}
	backupPos, _ := c.store.Get(fill.Symbol, fill.Sleeve) // nil when no position is open

	rollbackMemory := func() {
		if err := c.ledger.Restore(backupSleeve); err != nil {
			c.logger.Error(ctx, err, op+": FAILED TO RESTORE LEDGER STATE", map[string]interface{}{"sleeve": fill.Sleeve})
		}
		c.store.Restore(fill.Symbol, fill.Sleeve, backupPos)
	}

	// Memory first. Every branch below either succeeds completely or leaves
	// memory exactly as it was.
	var trades []domain.ClosedTrade
	switch fill.Action {
	case domain.ActionBuy:
		cost := fill.Quantity.Mul(fill.Price)
		if err := c.ledger.Reserve(ctx, fill.Sleeve, cost); err != nil {
			return nil, err
		}
		if _, err := c.store.OpenOrAdd(ctx, fill.Symbol, fill.Sleeve, domain.SideLong,
			fill.Quantity, fill.Price, fill.Reason, fill.Timestamp); err != nil {
			rollbackMemory()
			return nil, err
		}
		if err := c.ledger.CountTrade(fill.Sleeve); err != nil {
			rollbackMemory()
			return nil, err
		}

	case domain.ActionSell:
		// Reduce mutates only on success, so a rejection leaves nothing to
		// roll back.
		trades, err = c.store.Reduce(ctx, fill.Symbol, fill.Sleeve, fill.Quantity, fill.Price, fill.Timestamp)
		if err != nil {
			return nil, err
		}
		basis, pnl := decimal.Zero, decimal.Zero
		for _, t := range trades {
			basis = basis.Add(t.QuantityClosed.Mul(t.EntryPrice))
			pnl = pnl.Add(t.RealizedPnL)
		}
		if err := c.ledger.Release(ctx, fill.Sleeve, basis); err != nil {
			rollbackMemory()
			return nil, err
		}
		if err := c.ledger.Realize(ctx, fill.Sleeve, pnl); err != nil {
			rollbackMemory()
			return nil, err
		}
	}

	// Persist the same effects atomically.
	newSleeve, err := c.ledger.Sleeve(fill.Sleeve)
	if err != nil {
		rollbackMemory()
		return nil, err
	}
	resultPos, stillOpen := c.store.Get(fill.Symbol, fill.Sleeve)

	stx, err := c.repo.Begin(ctx)
	if err != nil {
		rollbackMemory()
		return nil, fmt.Errorf("%s: %w: %w", op, ports.ErrPersistence, err)
	}
	persist := func() error {
		txID, err := stx.AppendTransaction(ctx, fill)
		if err != nil {
			return err
		}
		if stillOpen {
			if err := stx.UpsertPosition(ctx, resultPos); err != nil {
				return err
			}
		} else if err := stx.DeletePosition(ctx, fill.Symbol, fill.Sleeve); err != nil {
			return err
		}
		for i := range trades {
			trades[i].TransactionID = txID
			if _, err := stx.AppendClosedTrade(ctx, &trades[i]); err != nil {
				return err
			}
		}
		return stx.SaveSleeve(ctx, &newSleeve)
	}
	if err := persist(); err != nil {
		if rbErr := stx.Rollback(); rbErr != nil {
			c.logger.Error(ctx, rbErr, op+": store rollback failed", map[string]interface{}{"sleeve": fill.Sleeve})
		}
		rollbackMemory()
		return nil, fmt.Errorf("%s: %w: %w", op, ports.ErrPersistence, err)
	}
	if err := stx.Commit(); err != nil {
		rollbackMemory()
		return nil, fmt.Errorf("%s: %w: %w", op, ports.ErrPersistence, err)
	}

	c.logger.Info(ctx, op+": fill applied", map[string]interface{}{
		"sleeve":        fill.Sleeve,
		"symbol":        fill.Symbol,
		"action":        fill.Action,
		"quantity":      fill.Quantity.String(),
		"price":         fill.Price.String(),
		"transactionID": fill.ID,
		"closedTrades":  len(trades),
	})
	return trades, nil
}

// GetSleeveSummary returns a consistent, read-only view of one sleeve. The
// gate is held only for the duration of the in-memory copy, never across
// slow consumers. Calling it twice without intervening fills yields
// identical results.
func (c *Coordinator) GetSleeveSummary(ctx context.Context, sleeve domain.SleeveID) (domain.SleeveSummary, error) {
	if !sleeve.IsValid() {
		return domain.SleeveSummary{}, fmt.Errorf("sleeve summary: %s: %w", sleeve, ports.ErrUnknownSleeve)
	}
	g := c.gates[sleeve]
	if err := g.acquire(ctx); err != nil {
		return domain.SleeveSummary{}, err
	}
	defer g.release()
	return c.summaryGated(sleeve)
}

// summaryGated builds the summary. The caller holds the sleeve's gate.
func (c *Coordinator) summaryGated(sleeve domain.SleeveID) (domain.SleeveSummary, error) {
	s, err := c.ledger.Sleeve(sleeve)
	if err != nil {
		return domain.SleeveSummary{}, err
	}
	open := c.store.BySleeve(sleeve)
	unrealized := decimal.Zero
	for i := range open {
		unrealized = unrealized.Add(open[i].UnrealizedPnL())
	}
	return domain.SleeveSummary{
		Sleeve:        s,
		Positions:     open,
		UnrealizedPnL: unrealized,
	}.Round(), nil
}

// MarkPrice records a last observed price for an open position so unrealized
// P&L stays current. A missing position is a normal condition for callers
// streaming quotes; they get ErrPositionNotFound and may ignore it.
func (c *Coordinator) MarkPrice(ctx context.Context, symbol string, sleeve domain.SleeveID, price decimal.Decimal) error {
	if !sleeve.IsValid() {
		return fmt.Errorf("mark price: %s: %w", sleeve, ports.ErrUnknownSleeve)
	}
	g := c.gates[sleeve]
	if err := g.acquire(ctx); err != nil {
		return err
	}
	defer g.release()
	return c.store.MarkPrice(ctx, symbol, sleeve, price)
}

// RecentTrades returns the most recent closed trades for a symbol.
func (c *Coordinator) RecentTrades(ctx context.Context, symbol string, limit int) ([]*domain.ClosedTrade, error) {
	return c.repo.FindClosedTrades(ctx, symbol, limit)
}

// GetReconciliationReport quiesces every sleeve, snapshots both sides and
// compares them. Drift is escalated to the operator channel but the report is
// returned either way; nothing is auto-corrected.
func (c *Coordinator) GetReconciliationReport(ctx context.Context) (domain.ReconciliationReport, error) {
	release, err := c.acquireAllGates(ctx)
	if err != nil {
		return domain.ReconciliationReport{}, err
	}
	defer release()

	report, err := c.recon.Report(ctx)
	if err != nil {
		return domain.ReconciliationReport{}, err
	}
	if report.HasDrift() {
		c.escalateDrift(ctx, report)
	}
	return report, nil
}

// reconcileSleeve compares one sleeve's memory and store views. The caller
// holds that sleeve's gate, so both snapshots are quiescent for it.
func (c *Coordinator) reconcileSleeve(ctx context.Context, sleeve domain.SleeveID) (domain.ReconciliationReport, error) {
	memory := c.recon.SnapshotMemory()
	persisted, err := c.recon.SnapshotStore(ctx)
	if err != nil {
		return domain.ReconciliationReport{}, fmt.Errorf("%w: %w", ports.ErrPersistence, err)
	}
	memOne := domain.Snapshot{sleeve: memory[sleeve]}
	stOne := domain.Snapshot{sleeve: persisted[sleeve]}
	return c.recon.Compare(memOne, stOne), nil
}

// ResetSleeve is the administrative reset: prior transactions are archived
// under a fresh batch id (never deleted), open positions are cleared and the
// sleeve is re-funded at the given initial capital.
func (c *Coordinator) ResetSleeve(ctx context.Context, sleeve domain.SleeveID, initialCapital decimal.Decimal) error {
	op := "resetSleeve"
	if !sleeve.IsValid() {
		return fmt.Errorf("%s: %s: %w", op, sleeve, ports.ErrUnknownSleeve)
	}
	if !initialCapital.IsPositive() {
		return fmt.Errorf("%s: initial capital must be positive: %w", op, ports.ErrInvalidRequest)
	}
	g := c.gates[sleeve]
	if err := g.acquire(ctx); err != nil {
		return err
	}
	defer g.release()

	current, err := c.ledger.Sleeve(sleeve)
	if err != nil {
		return err
	}
	fresh := domain.NewSleeve(sleeve, initialCapital)
	fresh.Version = current.Version + 1
	batchID := ulid.Make().String()

	// Store first; memory follows only after the archive committed.
	stx, err := c.repo.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, ports.ErrPersistence, err)
	}
	archived, err := stx.ArchiveSleeve(ctx, sleeve, batchID)
	if err == nil {
		err = stx.SaveSleeve(ctx, fresh)
	}
	if err != nil {
		if rbErr := stx.Rollback(); rbErr != nil {
			c.logger.Error(ctx, rbErr, op+": store rollback failed", map[string]interface{}{"sleeve": sleeve})
		}
		return fmt.Errorf("%s: %w: %w", op, ports.ErrPersistence, err)
	}
	if err := stx.Commit(); err != nil {
		return fmt.Errorf("%s: %w: %w", op, ports.ErrPersistence, err)
	}

	if err := c.ledger.Reset(sleeve, initialCapital); err != nil {
		return err
	}
	c.store.DropSleeve(sleeve)
	c.logger.Info(ctx, op+": sleeve reset", map[string]interface{}{
		"sleeve":               sleeve,
		"initialCapital":       initialCapital.String(),
		"archivedTransactions": archived,
		"archiveBatch":         batchID,
	})
	return nil
}

// AcquireManualGate blocks until no cycle is running for the sleeve, then
// returns a release function the operator must call to let the next cycle
// start. Use it to bracket out-of-band sequences that must not interleave
// with the autonomous loop.
func (c *Coordinator) AcquireManualGate(ctx context.Context, sleeve domain.SleeveID) (func(), error) {
	if !sleeve.IsValid() {
		return nil, fmt.Errorf("manual gate: %s: %w", sleeve, ports.ErrUnknownSleeve)
	}
	g := c.gates[sleeve]
	if err := g.acquire(ctx); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(g.release) }, nil
}

// TryAcquireManualGate is the non-blocking variant; it fails with
// ErrCycleAlreadyRunning when the sleeve is busy.
func (c *Coordinator) TryAcquireManualGate(sleeve domain.SleeveID) (func(), error) {
	if !sleeve.IsValid() {
		return nil, fmt.Errorf("manual gate: %s: %w", sleeve, ports.ErrUnknownSleeve)
	}
	g := c.gates[sleeve]
	if !g.tryAcquire() {
		return nil, fmt.Errorf("sleeve %s: %w", sleeve, ports.ErrCycleAlreadyRunning)
	}
	var once sync.Once
	return func() { once.Do(g.release) }, nil
}

// RebuildMemoryFromStore quiesces every sleeve and reconstructs the in-memory
// view from the persisted records. Operator-invoked only.
func (c *Coordinator) RebuildMemoryFromStore(ctx context.Context) error {
	release, err := c.acquireAllGates(ctx)
	if err != nil {
		return err
	}
	defer release()
	return c.recon.RebuildMemoryFromStore(ctx)
}

// acquireAllGates takes every sleeve's gate in a fixed order to avoid
// deadlock with other multi-gate holders.
func (c *Coordinator) acquireAllGates(ctx context.Context) (func(), error) {
	held := make([]*gate, 0, len(c.gates))
	for _, id := range domain.AllSleeves() {
		g := c.gates[id]
		if err := g.acquire(ctx); err != nil {
			for _, h := range held {
				h.release()
			}
			return nil, err
		}
		held = append(held, g)
	}
	return func() {
		for _, g := range held {
			g.release()
		}
	}, nil
}

// escalateDrift surfaces drift to the operator channel. It is never
// auto-corrected; the explicit rebuild path is the only repair.
func (c *Coordinator) escalateDrift(ctx context.Context, report domain.ReconciliationReport) {
	deltas := report.DriftDeltas()
	body := fmt.Sprintf("%d field(s) beyond tolerance %s:", len(deltas), report.Tolerance.String())
	for _, d := range deltas {
		body += fmt.Sprintf("\n%s %s: memory=%s store=%s delta=%s",
			d.Sleeve, d.Field, d.Memory.String(), d.Store.String(), d.Delta.String())
	}
	c.logger.Error(ctx, ports.ErrDriftDetected, "Reconciliation drift detected", map[string]interface{}{
		"fields": len(deltas),
	})
	if err := c.notifier.Alert(ctx, "Reconciliation drift detected", body); err != nil {
		c.logger.Error(ctx, err, "Failed to deliver drift alert")
	}
}

// noticePersistFailure counts consecutive persistence failures per sleeve and
// escalates once the configured threshold is reached. The failed cycle itself
// was already rolled back; the next scheduled tick retries.
func (c *Coordinator) noticePersistFailure(ctx context.Context, sleeve domain.SleeveID) {
	c.mu.Lock()
	c.persistFailures[sleeve]++
	count := c.persistFailures[sleeve]
	c.mu.Unlock()

	if count < c.cfg.PersistAlertThreshold {
		return
	}
	body := fmt.Sprintf("sleeve %s: %d consecutive persistence failures; cycles are rolling back and retrying", sleeve, count)
	if err := c.notifier.Alert(ctx, "Repeated persistence failures", body); err != nil {
		c.logger.Error(ctx, err, "Failed to deliver persistence alert")
	}
}

func (c *Coordinator) clearPersistFailures(sleeve domain.SleeveID) {
	c.mu.Lock()
	c.persistFailures[sleeve] = 0
	c.mu.Unlock()
}
