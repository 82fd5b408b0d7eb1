package ledger

import (
	"context"
	"errors"
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

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestLedger(t *testing.T, equityCash string) *Ledger {
	t.Helper()
	l, err := New(&mockLogger{})
	require.NoError(t, err)
	l.Load([]*domain.Sleeve{
		domain.NewSleeve(domain.SleeveEquity, dec(equityCash)),
		domain.NewSleeve(domain.SleeveCrypto, dec("50000")),
	})
	return l
}

// requireInvariant checks available_cash + invested_amount == current_capital.
func requireInvariant(t *testing.T, l *Ledger, id domain.SleeveID) {
	t.Helper()
	s, err := l.Sleeve(id)
	require.NoError(t, err)
	sum := s.AvailableCash.Add(s.InvestedAmount)
	require.True(t, sum.Equal(s.CurrentCapital),
		"cash %s + invested %s != capital %s", s.AvailableCash, s.InvestedAmount, s.CurrentCapital)
}

func TestLedger_ReserveInsufficientFundsLeavesCashUntouched(t *testing.T) {
	l := newTestLedger(t, "3000")
	ctx := context.Background()

	err := l.Reserve(ctx, domain.SleeveEquity, dec("5000"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrInsufficientFunds))

	s, err := l.Sleeve(domain.SleeveEquity)
	require.NoError(t, err)
	assert.True(t, s.AvailableCash.Equal(dec("3000")), "no partial reservation")
	assert.True(t, s.InvestedAmount.IsZero())
	assert.Equal(t, int64(0), s.Version, "a rejected reservation must not bump the version")
}

func TestLedger_ReserveMovesCashToInvested(t *testing.T) {
	l := newTestLedger(t, "10000")
	ctx := context.Background()

	require.NoError(t, l.Reserve(ctx, domain.SleeveEquity, dec("4000")))

	s, err := l.Sleeve(domain.SleeveEquity)
	require.NoError(t, err)
	assert.True(t, s.AvailableCash.Equal(dec("6000")))
	assert.True(t, s.InvestedAmount.Equal(dec("4000")))
	assert.Equal(t, int64(1), s.Version)
	requireInvariant(t, l, domain.SleeveEquity)
}

func TestLedger_ReleaseReturnsCostBasisToCash(t *testing.T) {
	l := newTestLedger(t, "10000")
	ctx := context.Background()

	require.NoError(t, l.Reserve(ctx, domain.SleeveEquity, dec("4000")))
	require.NoError(t, l.Release(ctx, domain.SleeveEquity, dec("1500")))

	s, err := l.Sleeve(domain.SleeveEquity)
	require.NoError(t, err)
	assert.True(t, s.AvailableCash.Equal(dec("7500")))
	assert.True(t, s.InvestedAmount.Equal(dec("2500")))
	requireInvariant(t, l, domain.SleeveEquity)

	err = l.Release(ctx, domain.SleeveEquity, dec("9999"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrInvalidRequest))
}

func TestLedger_RealizeMovesPnLAndCapitalTogether(t *testing.T) {
	l := newTestLedger(t, "10000")
	ctx := context.Background()

	require.NoError(t, l.Realize(ctx, domain.SleeveEquity, dec("560")))

	s, err := l.Sleeve(domain.SleeveEquity)
	require.NoError(t, err)
	assert.True(t, s.RealizedPnL.Equal(dec("560")))
	assert.True(t, s.AvailableCash.Equal(dec("10560")))
	assert.True(t, s.CurrentCapital.Equal(dec("10560")))
	assert.Equal(t, 1, s.TradeCount)
	requireInvariant(t, l, domain.SleeveEquity)

	// A losing close debits the same three fields.
	require.NoError(t, l.Realize(ctx, domain.SleeveEquity, dec("-60")))
	s, err = l.Sleeve(domain.SleeveEquity)
	require.NoError(t, err)
	assert.True(t, s.RealizedPnL.Equal(dec("500")))
	assert.True(t, s.AvailableCash.Equal(dec("10500")))
	requireInvariant(t, l, domain.SleeveEquity)
}

func TestLedger_FullTradeSequenceHoldsInvariant(t *testing.T) {
	// Buy 10 @ 100 (reserve 1000), then sell 10 @ 110 (release 1000, realize 100).
	l := newTestLedger(t, "10000")
	ctx := context.Background()

	require.NoError(t, l.Reserve(ctx, domain.SleeveEquity, dec("1000")))
	require.NoError(t, l.CountTrade(domain.SleeveEquity))
	requireInvariant(t, l, domain.SleeveEquity)

	require.NoError(t, l.Release(ctx, domain.SleeveEquity, dec("1000")))
	require.NoError(t, l.Realize(ctx, domain.SleeveEquity, dec("100")))
	requireInvariant(t, l, domain.SleeveEquity)

	s, err := l.Sleeve(domain.SleeveEquity)
	require.NoError(t, err)
	assert.True(t, s.AvailableCash.Equal(dec("10100")))
	assert.True(t, s.InvestedAmount.IsZero())
	assert.True(t, s.CurrentCapital.Equal(dec("10100")))
	assert.Equal(t, 2, s.TradeCount)
	assert.Equal(t, int64(4), s.Version)
}

func TestLedger_UnknownSleeve(t *testing.T) {
	l := newTestLedger(t, "10000")
	err := l.Reserve(context.Background(), domain.SleeveID("BONDS"), dec("1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrUnknownSleeve))
}

func TestLedger_RestoreRollsBackWholesale(t *testing.T) {
	l := newTestLedger(t, "10000")
	ctx := context.Background()

	before, err := l.Sleeve(domain.SleeveEquity)
	require.NoError(t, err)

	require.NoError(t, l.Reserve(ctx, domain.SleeveEquity, dec("4000")))
	require.NoError(t, l.Restore(before))

	after, err := l.Sleeve(domain.SleeveEquity)
	require.NoError(t, err)
	assert.True(t, after.AvailableCash.Equal(before.AvailableCash))
	assert.True(t, after.InvestedAmount.Equal(before.InvestedAmount))
	assert.Equal(t, before.Version, after.Version)
}

func TestLedger_ResetRefundsAndAdvancesVersion(t *testing.T) {
	l := newTestLedger(t, "10000")
	ctx := context.Background()

	require.NoError(t, l.Reserve(ctx, domain.SleeveEquity, dec("4000")))
	require.NoError(t, l.Realize(ctx, domain.SleeveEquity, dec("250")))

	require.NoError(t, l.Reset(domain.SleeveEquity, dec("20000")))

	s, err := l.Sleeve(domain.SleeveEquity)
	require.NoError(t, err)
	assert.True(t, s.InitialCapital.Equal(dec("20000")))
	assert.True(t, s.AvailableCash.Equal(dec("20000")))
	assert.True(t, s.InvestedAmount.IsZero())
	assert.True(t, s.RealizedPnL.IsZero())
	assert.Equal(t, 0, s.TradeCount)
	assert.Equal(t, int64(3), s.Version, "reset continues the version sequence")
}

func TestLedger_SnapshotCoversAllSleeves(t *testing.T) {
	l := newTestLedger(t, "10000")
	require.NoError(t, l.Realize(context.Background(), domain.SleeveCrypto, dec("75")))

	snap := l.Snapshot()
	require.Len(t, snap, 2)
	assert.True(t, snap[domain.SleeveEquity].AvailableCash.Equal(dec("10000")))
	assert.True(t, snap[domain.SleeveCrypto].RealizedPnL.Equal(dec("75")))
	assert.Equal(t, int64(1), snap[domain.SleeveCrypto].Version)
}
