package positions

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"portfolioLedger/internal/domain"
	"portfolioLedger/internal/ports"

	"github.com/shopspring/decimal"
)

type key struct {
	symbol string
	sleeve domain.SleeveID
}

// Store owns all Position and Lot mutation for the in-memory runtime view.
// It enforces one open position per (symbol, sleeve); a position whose last
// lot is consumed is removed, never kept as a zero-quantity entry.
type Store struct {
	logger ports.Logger

	mu   sync.RWMutex
	open map[key]*domain.Position
}

// NewStore creates an empty position store.
func NewStore(logger ports.Logger) (*Store, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for position store")
	}
	return &Store{
		logger: logger,
		open:   make(map[key]*domain.Position),
	}, nil
}

// Load replaces the full set of open positions. Used at bootstrap and by the
// sanctioned rebuild path.
func (s *Store) Load(positions []*domain.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = make(map[key]*domain.Position, len(positions))
	for _, p := range positions {
		s.open[key{p.Symbol, p.Sleeve}] = p.Clone()
	}
}

// OpenOrAdd creates a position with a single lot, or appends a lot to the
// existing position and recomputes the quantity-weighted average entry price.
// Returns a copy of the resulting position.
func (s *Store) OpenOrAdd(ctx context.Context, symbol string, sleeve domain.SleeveID, side domain.Side, quantity, price decimal.Decimal, reason string, at time.Time) (*domain.Position, error) {
	if !quantity.IsPositive() || !price.IsPositive() {
		return nil, fmt.Errorf("quantity and price must be positive: %w", ports.ErrInvalidRequest)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{symbol, sleeve}
	pos, ok := s.open[k]
	if !ok {
		pos = &domain.Position{
			Symbol:       symbol,
			Sleeve:       sleeve,
			Side:         side,
			CurrentPrice: price,
			OpenedAt:     at,
		}
		s.open[k] = pos
	} else if pos.Side != side {
		return nil, fmt.Errorf("position %s/%s is %s, cannot add %s lot: %w",
			sleeve, symbol, pos.Side, side, ports.ErrInvalidRequest)
	}

	pos.Lots = append(pos.Lots, domain.Lot{
		Quantity:     quantity,
		EntryPrice:   price,
		AcquiredAt:   at,
		OriginReason: reason,
	})
	pos.RecomputeAverage()
	pos.CurrentPrice = price

	s.logger.Debug(ctx, "Lot appended", map[string]interface{}{
		"sleeve":   sleeve,
		"symbol":   symbol,
		"quantity": quantity.String(),
		"price":    price.String(),
		"lots":     len(pos.Lots),
	})
	return pos.Clone(), nil
}

// Reduce consumes quantity from the position oldest-lot-first and returns the
// resulting closed trades. Fails with ErrPositionNotFound when no position is
// open and with ErrOverSell when quantity exceeds the open total; the caller
// must clamp or split beforehand, the store never truncates silently.
// A position left with zero lots is deleted.
func (s *Store) Reduce(ctx context.Context, symbol string, sleeve domain.SleeveID, quantity, price decimal.Decimal, at time.Time) ([]domain.ClosedTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{symbol, sleeve}
	pos, ok := s.open[k]
	if !ok {
		return nil, fmt.Errorf("reduce %s/%s: %w", sleeve, symbol, ports.ErrPositionNotFound)
	}

	trades, err := consumeLots(pos, quantity, price, at)
	if err != nil {
		return nil, err
	}
	pos.CurrentPrice = price

	if len(pos.Lots) == 0 {
		delete(s.open, k)
		s.logger.Debug(ctx, "Position fully closed", map[string]interface{}{
			"sleeve": sleeve,
			"symbol": symbol,
		})
	}
	return trades, nil
}

// MarkPrice records the last observed price for a position. Idempotent, no
// effect on lots or quantities.
func (s *Store) MarkPrice(ctx context.Context, symbol string, sleeve domain.SleeveID, price decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.open[key{symbol, sleeve}]
	if !ok {
		return fmt.Errorf("mark %s/%s: %w", sleeve, symbol, ports.ErrPositionNotFound)
	}
	pos.CurrentPrice = price
	return nil
}

// Get returns a copy of the open position, or nil, false when absent.
// Absence is a normal query result, not an error.
func (s *Store) Get(symbol string, sleeve domain.SleeveID) (*domain.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.open[key{symbol, sleeve}]
	if !ok {
		return nil, false
	}
	return pos.Clone(), true
}

// BySleeve returns copies of the sleeve's open positions, oldest first.
func (s *Store) BySleeve(sleeve domain.SleeveID) []domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Position, 0)
	for k, pos := range s.open {
		if k.sleeve == sleeve {
			out = append(out, *pos.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out
}

// InvestedAmount sums lot quantity * entry price across the sleeve's open
// positions, the position-store side of the in-memory snapshot.
func (s *Store) InvestedAmount(sleeve domain.SleeveID) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := decimal.Zero
	for k, pos := range s.open {
		if k.sleeve == sleeve {
			total = total.Add(pos.CostBasis())
		}
	}
	return total
}

// Restore puts back (or removes, when pos is nil) a single position,
// reversing an in-memory mutation whose persistence step failed.
func (s *Store) Restore(symbol string, sleeve domain.SleeveID, pos *domain.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{symbol, sleeve}
	if pos == nil {
		delete(s.open, k)
		return
	}
	s.open[k] = pos.Clone()
}

// DropSleeve removes all open positions for a sleeve. Only the administrative
// reset path calls this, after the store archive committed.
func (s *Store) DropSleeve(sleeve domain.SleeveID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.open {
		if k.sleeve == sleeve {
			delete(s.open, k)
		}
	}
}
