package decision

import (
	"context"
	"testing"

	"portfolioLedger/internal/domain"
	"portfolioLedger/internal/ports"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type fixedDecider struct {
	actions []ports.ProposedAction
}

func (d fixedDecider) Propose(ctx context.Context, sleeve domain.SleeveID, view domain.SleeveSummary) ([]ports.ProposedAction, error) {
	return d.actions, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func viewWith(capital string, symbols ...string) domain.SleeveSummary {
	view := domain.SleeveSummary{
		Sleeve: domain.Sleeve{ID: domain.SleeveEquity, CurrentCapital: dec(capital)},
	}
	for _, s := range symbols {
		view.Positions = append(view.Positions, domain.Position{Symbol: s, Sleeve: domain.SleeveEquity})
	}
	return view
}

func buy(symbol, qty, price string) ports.ProposedAction {
	return ports.ProposedAction{Symbol: symbol, Action: domain.ActionBuy, Quantity: dec(qty), Price: dec(price)}
}

func TestLimits_DropsOversizedBuys(t *testing.T) {
	limits, err := NewLimits(fixedDecider{actions: []ports.ProposedAction{
		buy("AAPL", "10", "100"),  // 1000, within 25% of 10000
		buy("MSFT", "10", "300"),  // 3000, beyond
		{Symbol: "AAPL", Action: domain.ActionSell, Quantity: dec("100"), Price: dec("100")}, // sells always pass
	}}, LimitsConfig{MaxOrderFraction: dec("0.25")}, &mockLogger{})
	require.NoError(t, err)

	kept, err := limits.Propose(context.Background(), domain.SleeveEquity, viewWith("10000"))
	require.NoError(t, err)
	require.Len(t, kept, 2)
	assert.Equal(t, "AAPL", kept[0].Symbol)
	assert.Equal(t, domain.ActionSell, kept[1].Action)
}

func TestLimits_EnforcesPositionCount(t *testing.T) {
	limits, err := NewLimits(fixedDecider{actions: []ports.ProposedAction{
		buy("AAPL", "1", "100"), // existing position, always allowed
		buy("MSFT", "1", "100"), // takes the last free slot
		buy("NVDA", "1", "100"), // over the limit
	}}, LimitsConfig{MaxOrderFraction: dec("1"), MaxOpenPositions: 2}, &mockLogger{})
	require.NoError(t, err)

	kept, err := limits.Propose(context.Background(), domain.SleeveEquity, viewWith("10000", "AAPL"))
	require.NoError(t, err)
	require.Len(t, kept, 2)
	assert.Equal(t, "AAPL", kept[0].Symbol)
	assert.Equal(t, "MSFT", kept[1].Symbol)
}

func TestLimits_RejectsBadFraction(t *testing.T) {
	_, err := NewLimits(NewHold(), LimitsConfig{MaxOrderFraction: dec("1.5")}, &mockLogger{})
	require.Error(t, err)
	_, err = NewLimits(NewHold(), LimitsConfig{MaxOrderFraction: dec("-0.1")}, &mockLogger{})
	require.Error(t, err)
}
