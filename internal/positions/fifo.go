package positions

import (
	"fmt"
	"time"

	"portfolioLedger/internal/domain"
	"portfolioLedger/internal/ports"

	"github.com/shopspring/decimal"
)

// consumeLots reduces the position by quantity using first-in-first-out lot
// matching: the head (oldest) lot is drained first, then the next, until the
// reduction is satisfied. A partially consumed head lot is decremented in
// place. One ClosedTrade is emitted per lot boundary crossed.
//
// Oldest-lot-first is a fixed policy, not configurable, so realized P&L is
// deterministic and auditable across replays of the transaction log.
//
// A quantity exceeding the position's total is a caller error (ErrOverSell);
// this engine never clamps. The position is mutated only on success.
func consumeLots(pos *domain.Position, quantity, exitPrice decimal.Decimal, exitTime time.Time) ([]domain.ClosedTrade, error) {
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("reduction quantity must be positive: %w", ports.ErrInvalidRequest)
	}
	if quantity.GreaterThan(pos.TotalQuantity) {
		return nil, fmt.Errorf("reduce %s of %s %s with open quantity %s: %w",
			quantity.String(), pos.Sleeve, pos.Symbol, pos.TotalQuantity.String(), ports.ErrOverSell)
	}

	var trades []domain.ClosedTrade
	remaining := quantity
	for remaining.IsPositive() {
		head := &pos.Lots[0]
		portion := decimal.Min(remaining, head.Quantity)

		trades = append(trades, domain.ClosedTrade{
			Symbol:         pos.Symbol,
			Sleeve:         pos.Sleeve,
			EntryPrice:     head.EntryPrice,
			ExitPrice:      exitPrice,
			QuantityClosed: portion,
			RealizedPnL:    lotPnL(pos.Side, portion, head.EntryPrice, exitPrice),
			EntryTime:      head.AcquiredAt,
			ExitTime:       exitTime,
		})

		if portion.Equal(head.Quantity) {
			pos.Lots = pos.Lots[1:]
		} else {
			head.Quantity = head.Quantity.Sub(portion)
		}
		remaining = remaining.Sub(portion)
	}

	pos.RecomputeAverage()
	return trades, nil
}

// lotPnL computes the realized P&L for one consumed portion. LONG profits
// when the exit exceeds the lot entry; SHORT is the mirror image.
func lotPnL(side domain.Side, quantity, entryPrice, exitPrice decimal.Decimal) decimal.Decimal {
	if side == domain.SideShort {
		return quantity.Mul(entryPrice.Sub(exitPrice))
	}
	return quantity.Mul(exitPrice.Sub(entryPrice))
}
