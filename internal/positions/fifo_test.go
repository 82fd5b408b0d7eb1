package positions

import (
	"errors"
	"testing"
	"time"

	"portfolioLedger/internal/domain"
	"portfolioLedger/internal/ports"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testPosition(side domain.Side, lots ...domain.Lot) *domain.Position {
	p := &domain.Position{
		Symbol:   "AAPL",
		Sleeve:   domain.SleeveEquity,
		Side:     side,
		OpenedAt: time.Date(2025, 1, 2, 9, 30, 0, 0, time.UTC),
		Lots:     lots,
	}
	p.RecomputeAverage()
	return p
}

func lotAt(qty, price string, day int) domain.Lot {
	return domain.Lot{
		Quantity:   dec(qty),
		EntryPrice: dec(price),
		AcquiredAt: time.Date(2025, 1, day, 9, 30, 0, 0, time.UTC),
	}
}

func TestConsumeLots_TwoLotPartialSell(t *testing.T) {
	// Buy 10 @ 100 then 5 @ 120, sell 12 @ 150: FIFO takes all of lot 1 and
	// 2 units of lot 2.
	pos := testPosition(domain.SideLong, lotAt("10", "100", 2), lotAt("5", "120", 3))
	exitTime := time.Date(2025, 1, 10, 16, 0, 0, 0, time.UTC)

	trades, err := consumeLots(pos, dec("12"), dec("150"), exitTime)
	require.NoError(t, err)
	require.Len(t, trades, 2)

	assert.True(t, trades[0].QuantityClosed.Equal(dec("10")))
	assert.True(t, trades[0].EntryPrice.Equal(dec("100")))
	assert.True(t, trades[0].RealizedPnL.Equal(dec("500")), "got %s", trades[0].RealizedPnL)
	assert.Equal(t, lotAt("10", "100", 2).AcquiredAt, trades[0].EntryTime)

	assert.True(t, trades[1].QuantityClosed.Equal(dec("2")))
	assert.True(t, trades[1].EntryPrice.Equal(dec("120")))
	assert.True(t, trades[1].RealizedPnL.Equal(dec("60")), "got %s", trades[1].RealizedPnL)

	total := trades[0].RealizedPnL.Add(trades[1].RealizedPnL)
	assert.True(t, total.Equal(dec("560")))

	// Remaining position: 3 units @ 120 average cost, one lot left.
	require.Len(t, pos.Lots, 1)
	assert.True(t, pos.TotalQuantity.Equal(dec("3")))
	assert.True(t, pos.AverageEntryPrice.Equal(dec("120")))
}

func TestConsumeLots_ExactLotBoundary(t *testing.T) {
	pos := testPosition(domain.SideLong, lotAt("4", "50", 2), lotAt("6", "55", 3))

	trades, err := consumeLots(pos, dec("4"), dec("60"), time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, trades, 1, "a reduction ending exactly on a lot boundary must not touch the next lot")
	assert.True(t, trades[0].RealizedPnL.Equal(dec("40")))
	require.Len(t, pos.Lots, 1)
	assert.True(t, pos.Lots[0].Quantity.Equal(dec("6")))
}

func TestConsumeLots_ShortPnLIsMirrored(t *testing.T) {
	// Short entered at 200, covered at 180: profit 20 per unit.
	pos := testPosition(domain.SideShort, lotAt("5", "200", 2))

	trades, err := consumeLots(pos, dec("5"), dec("180"), time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].RealizedPnL.Equal(dec("100")), "got %s", trades[0].RealizedPnL)
	assert.Empty(t, pos.Lots)
}

func TestConsumeLots_OverSellRejectedUntouched(t *testing.T) {
	pos := testPosition(domain.SideLong, lotAt("10", "100", 2))

	_, err := consumeLots(pos, dec("11"), dec("150"), time.Now().UTC())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrOverSell))
	// Never clamped and never partially applied.
	require.Len(t, pos.Lots, 1)
	assert.True(t, pos.TotalQuantity.Equal(dec("10")))
	assert.True(t, pos.Lots[0].Quantity.Equal(dec("10")))
}

func TestConsumeLots_NonPositiveQuantityRejected(t *testing.T) {
	pos := testPosition(domain.SideLong, lotAt("10", "100", 2))
	_, err := consumeLots(pos, dec("0"), dec("150"), time.Now().UTC())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrInvalidRequest))
}

func TestConsumeLots_ConservationLaw(t *testing.T) {
	// Across any buy/sell sequence, total realized P&L equals sell proceeds
	// minus the cost basis of the quantities actually matched.
	buys := []struct{ qty, price string }{
		{"10", "100"},
		{"5", "120"},
		{"8", "90"},
		{"0.5", "101.37"},
	}
	sells := []struct{ qty, price string }{
		{"12", "150"},
		{"6", "95"},
		{"5.5", "110.11"},
	}

	var lots []domain.Lot
	for i, b := range buys {
		lots = append(lots, lotAt(b.qty, b.price, i+2))
	}
	pos := testPosition(domain.SideLong, lots...)

	// Independent bookkeeping: walk the same lot sequence separately.
	shadow := make([]domain.Lot, len(lots))
	copy(shadow, lots)
	expected := decimal.Zero
	for _, s := range sells {
		remaining := dec(s.qty)
		price := dec(s.price)
		for remaining.IsPositive() {
			portion := decimal.Min(remaining, shadow[0].Quantity)
			expected = expected.Add(portion.Mul(price.Sub(shadow[0].EntryPrice)))
			shadow[0].Quantity = shadow[0].Quantity.Sub(portion)
			if shadow[0].Quantity.IsZero() {
				shadow = shadow[1:]
			}
			remaining = remaining.Sub(portion)
		}
	}

	actual := decimal.Zero
	for _, s := range sells {
		trades, err := consumeLots(pos, dec(s.qty), dec(s.price), time.Now().UTC())
		require.NoError(t, err)
		for _, trade := range trades {
			actual = actual.Add(trade.RealizedPnL)
		}
	}
	assert.True(t, actual.Equal(expected), "fifo pnl %s, shadow pnl %s", actual, expected)

	// Lot quantities still account for every unmatched unit.
	bought, sold := decimal.Zero, decimal.Zero
	for _, b := range buys {
		bought = bought.Add(dec(b.qty))
	}
	for _, s := range sells {
		sold = sold.Add(dec(s.qty))
	}
	assert.True(t, pos.TotalQuantity.Equal(bought.Sub(sold)))
}
