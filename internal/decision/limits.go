package decision

import (
	"context"
	"fmt"

	"portfolioLedger/internal/domain"
	"portfolioLedger/internal/ports"

	"github.com/shopspring/decimal"
)

// LimitsConfig bounds what any single cycle may propose. Limits are a safety
// net in front of the ledger's own funds check: the ledger rejects what it
// cannot afford, the limits reject what it should not afford.
type LimitsConfig struct {
	// MaxOrderFraction caps one buy's cost at a fraction of the sleeve's
	// current capital (0.25 means a quarter of the book per order).
	MaxOrderFraction decimal.Decimal
	// MaxOpenPositions caps distinct open positions per sleeve. Zero or
	// negative disables the check.
	MaxOpenPositions int
}

// Limits wraps another decider and drops proposals that breach the configured
// bounds. Sells always pass; refusing to reduce exposure is never safer.
type Limits struct {
	inner  ports.Decider
	cfg    LimitsConfig
	logger ports.Logger
}

// NewLimits wraps a decider with proposal bounds.
func NewLimits(inner ports.Decider, cfg LimitsConfig, logger ports.Logger) (*Limits, error) {
	if inner == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for decision limits")
	}
	if cfg.MaxOrderFraction.IsNegative() || cfg.MaxOrderFraction.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("MaxOrderFraction must be within [0, 1], got %s", cfg.MaxOrderFraction)
	}
	return &Limits{inner: inner, cfg: cfg, logger: logger}, nil
}

// Propose implements ports.Decider.
func (l *Limits) Propose(ctx context.Context, sleeve domain.SleeveID, view domain.SleeveSummary) ([]ports.ProposedAction, error) {
	proposed, err := l.inner.Propose(ctx, sleeve, view)
	if err != nil || len(proposed) == 0 {
		return proposed, err
	}

	maxCost := view.Sleeve.CurrentCapital.Mul(l.cfg.MaxOrderFraction)
	openSlots := -1
	if l.cfg.MaxOpenPositions > 0 {
		openSlots = l.cfg.MaxOpenPositions - len(view.Positions)
	}

	kept := make([]ports.ProposedAction, 0, len(proposed))
	for _, action := range proposed {
		if action.Action == domain.ActionSell {
			kept = append(kept, action)
			continue
		}
		cost := action.Quantity.Mul(action.Price)
		if cost.GreaterThan(maxCost) {
			l.logger.Warn(ctx, "Proposal dropped, order exceeds size limit", map[string]interface{}{
				"sleeve":  sleeve,
				"symbol":  action.Symbol,
				"cost":    cost.String(),
				"maxCost": maxCost.String(),
			})
			continue
		}
		if openSlots == 0 && !hasPosition(view.Positions, action.Symbol) {
			l.logger.Warn(ctx, "Proposal dropped, position limit reached", map[string]interface{}{
				"sleeve": sleeve,
				"symbol": action.Symbol,
				"limit":  l.cfg.MaxOpenPositions,
			})
			continue
		}
		if openSlots > 0 && !hasPosition(view.Positions, action.Symbol) {
			openSlots--
		}
		kept = append(kept, action)
	}
	return kept, nil
}

func hasPosition(open []domain.Position, symbol string) bool {
	for i := range open {
		if open[i].Symbol == symbol {
			return true
		}
	}
	return false
}
