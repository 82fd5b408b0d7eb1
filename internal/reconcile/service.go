package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"portfolioLedger/internal/domain"
	"portfolioLedger/internal/ledger"
	"portfolioLedger/internal/ports"
	"portfolioLedger/internal/positions"

	"github.com/shopspring/decimal"
)

// Service compares the in-memory runtime view against the persisted
// aggregate. It only ever reports; nothing here auto-heals. The single
// sanctioned repair path is RebuildMemoryFromStore, which an operator must
// invoke explicitly.
type Service struct {
	logger    ports.Logger
	ledger    *ledger.Ledger
	store     *positions.Store
	repo      ports.Repository
	tolerance decimal.Decimal
}

// Config holds the reconciliation service dependencies.
type Config struct {
	Logger    ports.Logger
	Ledger    *ledger.Ledger
	Store     *positions.Store
	Repo      ports.Repository
	Tolerance decimal.Decimal // absolute per-field tolerance; deltas at or below are noise
}

// New creates a reconciliation service.
func New(cfg Config) (*Service, error) {
	if cfg.Logger == nil || cfg.Ledger == nil || cfg.Store == nil || cfg.Repo == nil {
		return nil, fmt.Errorf("missing required dependencies for reconciliation service")
	}
	if cfg.Tolerance.IsNegative() {
		return nil, fmt.Errorf("tolerance cannot be negative: %w", ports.ErrInvalidRequest)
	}
	return &Service{
		logger:    cfg.Logger,
		ledger:    cfg.Ledger,
		store:     cfg.Store,
		repo:      cfg.Repo,
		tolerance: cfg.Tolerance,
	}, nil
}

// SnapshotMemory aggregates the runtime view: cash, realized P&L and version
// from the capital ledger, invested amount from the position store's lots.
func (s *Service) SnapshotMemory() domain.Snapshot {
	snap := s.ledger.Snapshot()
	for id, entry := range snap {
		entry.InvestedAmount = s.store.InvestedAmount(id)
		snap[id] = entry
	}
	return snap
}

// SnapshotStore aggregates the persisted view from raw store rows.
func (s *Service) SnapshotStore(ctx context.Context) (domain.Snapshot, error) {
	snap, err := s.repo.AggregateSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("store snapshot: %w", err)
	}
	return snap, nil
}

// Compare produces one delta per sleeve per compared field. Monetary fields
// are flagged DRIFT when |memory - store| exceeds the tolerance; the version
// counter must match exactly, any difference means an update was lost.
func (s *Service) Compare(memory, store domain.Snapshot) domain.ReconciliationReport {
	report := domain.ReconciliationReport{
		GeneratedAt: time.Now().UTC(),
		Tolerance:   s.tolerance,
	}

	ids := make([]domain.SleeveID, 0, len(memory))
	seen := make(map[domain.SleeveID]bool, len(memory))
	for id := range memory {
		ids = append(ids, id)
		seen[id] = true
	}
	for id := range store {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		mem, st := memory[id], store[id]
		report.Deltas = append(report.Deltas,
			s.moneyDelta(id, "invested_amount", mem.InvestedAmount, st.InvestedAmount),
			s.moneyDelta(id, "available_cash", mem.AvailableCash, st.AvailableCash),
			s.moneyDelta(id, "realized_pnl", mem.RealizedPnL, st.RealizedPnL),
			versionDelta(id, mem.Version, st.Version),
		)
	}
	return report
}

func (s *Service) moneyDelta(id domain.SleeveID, field string, mem, st decimal.Decimal) domain.ReconDelta {
	delta := mem.Sub(st)
	status := domain.ReconOK
	if delta.Abs().GreaterThan(s.tolerance) {
		status = domain.ReconDrift
	}
	return domain.ReconDelta{
		Sleeve: id,
		Field:  field,
		Memory: mem,
		Store:  st,
		Delta:  delta,
		Status: status,
	}
}

func versionDelta(id domain.SleeveID, mem, st int64) domain.ReconDelta {
	status := domain.ReconOK
	if mem != st {
		status = domain.ReconDrift
	}
	return domain.ReconDelta{
		Sleeve: id,
		Field:  "version",
		Memory: decimal.NewFromInt(mem),
		Store:  decimal.NewFromInt(st),
		Delta:  decimal.NewFromInt(mem - st),
		Status: status,
	}
}

// Report snapshots both sides and compares them. Drift is logged here but the
// report is returned either way; escalation is the caller's decision.
func (s *Service) Report(ctx context.Context) (domain.ReconciliationReport, error) {
	memory := s.SnapshotMemory()
	persisted, err := s.SnapshotStore(ctx)
	if err != nil {
		return domain.ReconciliationReport{}, err
	}
	report := s.Compare(memory, persisted)
	if report.HasDrift() {
		for _, d := range report.DriftDeltas() {
			s.logger.Warn(ctx, "Reconciliation drift", map[string]interface{}{
				"sleeve": d.Sleeve,
				"field":  d.Field,
				"memory": d.Memory.String(),
				"store":  d.Store.String(),
				"delta":  d.Delta.String(),
			})
		}
	} else {
		s.logger.Debug(ctx, "Reconciliation clean", map[string]interface{}{"sleeves": len(report.Deltas) / 4})
	}
	return report, nil
}

// RebuildMemoryFromStore discards the in-memory view and reconstructs it from
// the persisted sleeve and position records. This is deliberately the only
// repair path and is never triggered automatically; blindly trusting either
// side on drift would mask the bug that caused it. Callers must hold every
// sleeve's gate so no cycle observes the swap.
func (s *Service) RebuildMemoryFromStore(ctx context.Context) error {
	sleeves, err := s.repo.FindAllSleeves(ctx)
	if err != nil {
		return fmt.Errorf("rebuild: load sleeves: %w", err)
	}

	var open []*domain.Position
	for _, sl := range sleeves {
		positions, err := s.repo.FindOpenPositions(ctx, sl.ID)
		if err != nil {
			return fmt.Errorf("rebuild: load positions for %s: %w", sl.ID, err)
		}
		open = append(open, positions...)
	}

	s.ledger.Load(sleeves)
	s.store.Load(open)
	s.logger.Info(ctx, "In-memory view rebuilt from store", map[string]interface{}{
		"sleeves":   len(sleeves),
		"positions": len(open),
	})
	return nil
}
