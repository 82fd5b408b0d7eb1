package ledger

import (
	"context"
	"fmt"
	"sync"

	"portfolioLedger/internal/domain"
	"portfolioLedger/internal/ports"

	"github.com/shopspring/decimal"
)

// Ledger owns all Sleeve mutation. Every mutation is applied as a single
// atomic step under the sleeve's lock and bumps the sleeve's version counter,
// which the reconciliation service consumes to detect lost updates.
type Ledger struct {
	logger ports.Logger

	mu       sync.RWMutex
	accounts map[domain.SleeveID]*account
}

// account serializes access to one sleeve. Sleeves are financially
// independent, so they never share a lock.
type account struct {
	mu     sync.Mutex
	sleeve domain.Sleeve
}

// New creates an empty ledger. Sleeves are added via Load at bootstrap or
// rebuild time.
func New(logger ports.Logger) (*Ledger, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for ledger")
	}
	return &Ledger{
		logger:   logger,
		accounts: make(map[domain.SleeveID]*account),
	}, nil
}

// Load replaces the ledger's sleeve set. Used at bootstrap and by the
// sanctioned rebuild path; never called while cycles are running.
func (l *Ledger) Load(sleeves []*domain.Sleeve) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts = make(map[domain.SleeveID]*account, len(sleeves))
	for _, s := range sleeves {
		l.accounts[s.ID] = &account{sleeve: *s}
	}
}

func (l *Ledger) account(id domain.SleeveID) (*account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acc, ok := l.accounts[id]
	if !ok {
		return nil, fmt.Errorf("sleeve %s: %w", id, ports.ErrUnknownSleeve)
	}
	return acc, nil
}

// Reserve moves amount from available cash to invested capital. It fails with
// ErrInsufficientFunds when available cash cannot cover the full amount;
// there is no partial reservation.
func (l *Ledger) Reserve(ctx context.Context, id domain.SleeveID, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("reserve amount must be positive: %w", ports.ErrInvalidRequest)
	}
	acc, err := l.account(id)
	if err != nil {
		return err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()

	if acc.sleeve.AvailableCash.LessThan(amount) {
		l.logger.Debug(ctx, "Reservation rejected", map[string]interface{}{
			"sleeve":    id,
			"requested": amount.String(),
			"available": acc.sleeve.AvailableCash.String(),
		})
		return fmt.Errorf("sleeve %s: reserve %s with cash %s: %w",
			id, amount.String(), acc.sleeve.AvailableCash.String(), ports.ErrInsufficientFunds)
	}
	acc.sleeve.AvailableCash = acc.sleeve.AvailableCash.Sub(amount)
	acc.sleeve.InvestedAmount = acc.sleeve.InvestedAmount.Add(amount)
	acc.sleeve.Version++
	return nil
}

// Release moves amount from invested capital back to available cash, used
// when lots are consumed (the cost basis returns to cash; the profit part is
// credited separately by Realize).
func (l *Ledger) Release(ctx context.Context, id domain.SleeveID, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("release amount must be positive: %w", ports.ErrInvalidRequest)
	}
	acc, err := l.account(id)
	if err != nil {
		return err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()

	if acc.sleeve.InvestedAmount.LessThan(amount) {
		return fmt.Errorf("sleeve %s: release %s with invested %s: %w",
			id, amount.String(), acc.sleeve.InvestedAmount.String(), ports.ErrInvalidRequest)
	}
	acc.sleeve.InvestedAmount = acc.sleeve.InvestedAmount.Sub(amount)
	acc.sleeve.AvailableCash = acc.sleeve.AvailableCash.Add(amount)
	acc.sleeve.Version++
	return nil
}

// Realize credits (or debits) a realized profit-and-loss delta. Realized P&L
// and available cash move together in one step, and current capital absorbs
// the delta so the cash+invested invariant holds.
func (l *Ledger) Realize(ctx context.Context, id domain.SleeveID, pnl decimal.Decimal) error {
	acc, err := l.account(id)
	if err != nil {
		return err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()

	acc.sleeve.RealizedPnL = acc.sleeve.RealizedPnL.Add(pnl)
	acc.sleeve.AvailableCash = acc.sleeve.AvailableCash.Add(pnl)
	acc.sleeve.CurrentCapital = acc.sleeve.CurrentCapital.Add(pnl)
	acc.sleeve.TradeCount++
	acc.sleeve.Version++
	l.logger.Debug(ctx, "Realized P&L", map[string]interface{}{
		"sleeve": id,
		"pnl":    pnl.String(),
		"total":  acc.sleeve.RealizedPnL.String(),
	})
	return nil
}

// CountTrade bumps the sleeve's trade counter for fills that realize nothing
// (plain buys).
func (l *Ledger) CountTrade(id domain.SleeveID) error {
	acc, err := l.account(id)
	if err != nil {
		return err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	acc.sleeve.TradeCount++
	acc.sleeve.Version++
	return nil
}

// Sleeve returns a copy of the sleeve's current state.
func (l *Ledger) Sleeve(id domain.SleeveID) (domain.Sleeve, error) {
	acc, err := l.account(id)
	if err != nil {
		return domain.Sleeve{}, err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	return acc.sleeve, nil
}

// Restore overwrites one sleeve's state wholesale. Used to roll back the
// in-memory side when a persistence step fails after a mutation.
func (l *Ledger) Restore(s domain.Sleeve) error {
	acc, err := l.account(s.ID)
	if err != nil {
		return err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	acc.sleeve = s
	return nil
}

// Reset replaces one sleeve with a freshly funded one. Only the
// administrative reset path calls this, after the store archive committed.
func (l *Ledger) Reset(id domain.SleeveID, initialCapital decimal.Decimal) error {
	acc, err := l.account(id)
	if err != nil {
		return err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	fresh := domain.NewSleeve(id, initialCapital)
	fresh.Version = acc.sleeve.Version + 1
	acc.sleeve = *fresh
	return nil
}

// Snapshot aggregates the ledger side of the in-memory snapshot: available
// cash, realized P&L and version per sleeve. Invested amount is owned by the
// position store and merged in by the reconciliation service.
func (l *Ledger) Snapshot() domain.Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	snap := make(domain.Snapshot, len(l.accounts))
	for id, acc := range l.accounts {
		acc.mu.Lock()
		snap[id] = domain.SleeveSnapshot{
			AvailableCash: acc.sleeve.AvailableCash,
			RealizedPnL:   acc.sleeve.RealizedPnL,
			Version:       acc.sleeve.Version,
		}
		acc.mu.Unlock()
	}
	return snap
}
