package reconcile

import (
	"context"
	"testing"
	"time"

	"portfolioLedger/internal/domain"
	"portfolioLedger/internal/ledger"
	"portfolioLedger/internal/ports"
	"portfolioLedger/internal/positions"

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

// stubRepo serves canned aggregates and records. Only the read side matters
// here; mutations are exercised against the real adapter elsewhere.
type stubRepo struct {
	snapshot domain.Snapshot
	sleeves  []*domain.Sleeve
	open     map[domain.SleeveID][]*domain.Position
}

func (s *stubRepo) Begin(ctx context.Context) (ports.StoreTx, error) { return nil, nil }
func (s *stubRepo) FindSleeve(ctx context.Context, id domain.SleeveID) (*domain.Sleeve, error) {
	return nil, nil
}
func (s *stubRepo) FindAllSleeves(ctx context.Context) ([]*domain.Sleeve, error) {
	return s.sleeves, nil
}
func (s *stubRepo) FindPosition(ctx context.Context, symbol string, sleeve domain.SleeveID) (*domain.Position, error) {
	return nil, nil
}
func (s *stubRepo) FindOpenPositions(ctx context.Context, sleeve domain.SleeveID) ([]*domain.Position, error) {
	return s.open[sleeve], nil
}
func (s *stubRepo) FindClosedTrades(ctx context.Context, symbol string, limit int) ([]*domain.ClosedTrade, error) {
	return nil, nil
}
func (s *stubRepo) AggregateSnapshot(ctx context.Context) (domain.Snapshot, error) {
	return s.snapshot, nil
}
func (s *stubRepo) Close() error { return nil }

func newTestService(t *testing.T, repo ports.Repository, tolerance string) (*Service, *ledger.Ledger, *positions.Store) {
	t.Helper()
	logger := &mockLogger{}
	book, err := ledger.New(logger)
	require.NoError(t, err)
	store, err := positions.NewStore(logger)
	require.NoError(t, err)
	svc, err := New(Config{
		Logger:    logger,
		Ledger:    book,
		Store:     store,
		Repo:      repo,
		Tolerance: dec(tolerance),
	})
	require.NoError(t, err)
	return svc, book, store
}

func TestService_RejectsNegativeTolerance(t *testing.T) {
	logger := &mockLogger{}
	book, err := ledger.New(logger)
	require.NoError(t, err)
	store, err := positions.NewStore(logger)
	require.NoError(t, err)
	_, err = New(Config{Logger: logger, Ledger: book, Store: store, Repo: &stubRepo{}, Tolerance: dec("-1")})
	require.Error(t, err)
}

func TestService_SnapshotMemoryMergesLedgerAndStore(t *testing.T) {
	svc, book, store := newTestService(t, &stubRepo{}, "1.00")
	ctx := context.Background()

	book.Load([]*domain.Sleeve{domain.NewSleeve(domain.SleeveEquity, dec("10000"))})
	require.NoError(t, book.Reserve(ctx, domain.SleeveEquity, dec("1600")))
	_, err := store.OpenOrAdd(ctx, "AAPL", domain.SleeveEquity, domain.SideLong, dec("10"), dec("100"), "", time.Now().UTC())
	require.NoError(t, err)
	_, err = store.OpenOrAdd(ctx, "AAPL", domain.SleeveEquity, domain.SideLong, dec("5"), dec("120"), "", time.Now().UTC())
	require.NoError(t, err)

	snap := svc.SnapshotMemory()
	entry := snap[domain.SleeveEquity]
	assert.True(t, entry.AvailableCash.Equal(dec("8400")))
	assert.True(t, entry.InvestedAmount.Equal(dec("1600")), "invested comes from the position store's lots")
	assert.Equal(t, int64(1), entry.Version)
}

func TestService_CompareFlagsDriftBeyondTolerance(t *testing.T) {
	svc, _, _ := newTestService(t, &stubRepo{}, "1.00")

	memory := domain.Snapshot{
		domain.SleeveEquity: {
			InvestedAmount: dec("1600"),
			AvailableCash:  dec("8400"),
			RealizedPnL:    dec("0"),
			Version:        4,
		},
	}
	store := domain.Snapshot{
		domain.SleeveEquity: {
			InvestedAmount: dec("1600.50"), // within tolerance
			AvailableCash:  dec("8395"),    // beyond tolerance
			RealizedPnL:    dec("0"),
			Version:        4,
		},
	}

	report := svc.Compare(memory, store)
	require.Len(t, report.Deltas, 4)
	assert.True(t, report.HasDrift())

	byField := make(map[string]domain.ReconDelta)
	for _, d := range report.Deltas {
		byField[d.Field] = d
	}
	assert.Equal(t, domain.ReconOK, byField["invested_amount"].Status)
	assert.Equal(t, domain.ReconDrift, byField["available_cash"].Status)
	assert.True(t, byField["available_cash"].Delta.Equal(dec("5")))
	assert.Equal(t, domain.ReconOK, byField["realized_pnl"].Status)
	assert.Equal(t, domain.ReconOK, byField["version"].Status)
}

func TestService_VersionMustMatchExactly(t *testing.T) {
	// A one-off version counter means a lost update even when every monetary
	// field agrees to the cent.
	svc, _, _ := newTestService(t, &stubRepo{}, "1.00")

	entry := domain.SleeveSnapshot{
		InvestedAmount: dec("1600"),
		AvailableCash:  dec("8400"),
		RealizedPnL:    dec("0"),
		Version:        5,
	}
	memory := domain.Snapshot{domain.SleeveEquity: entry}
	entry.Version = 4
	store := domain.Snapshot{domain.SleeveEquity: entry}

	report := svc.Compare(memory, store)
	drifts := report.DriftDeltas()
	require.Len(t, drifts, 1)
	assert.Equal(t, "version", drifts[0].Field)
}

func TestService_CompareCoversSleevesOnlyOneSideKnows(t *testing.T) {
	svc, _, _ := newTestService(t, &stubRepo{}, "1.00")

	memory := domain.Snapshot{
		domain.SleeveEquity: {AvailableCash: dec("10000")},
	}
	store := domain.Snapshot{
		domain.SleeveCrypto: {AvailableCash: dec("50000")},
	}

	report := svc.Compare(memory, store)
	// Both sleeves appear, each drifting against an implicit zero.
	require.Len(t, report.Deltas, 8)
	assert.True(t, report.HasDrift())
}

func TestService_ReportUsesStoreAggregate(t *testing.T) {
	repo := &stubRepo{
		snapshot: domain.Snapshot{
			domain.SleeveEquity: {
				InvestedAmount: dec("0"),
				AvailableCash:  dec("10000"),
				RealizedPnL:    dec("0"),
				Version:        0,
			},
		},
	}
	svc, book, _ := newTestService(t, repo, "1.00")
	book.Load([]*domain.Sleeve{domain.NewSleeve(domain.SleeveEquity, dec("10000"))})

	report, err := svc.Report(context.Background())
	require.NoError(t, err)
	assert.False(t, report.HasDrift())
	assert.True(t, report.Tolerance.Equal(dec("1.00")))
}

func TestService_RebuildMemoryFromStore(t *testing.T) {
	persisted := domain.NewSleeve(domain.SleeveEquity, dec("10000"))
	persisted.AvailableCash = dec("8400")
	persisted.InvestedAmount = dec("1600")
	persisted.Version = 7

	pos := &domain.Position{
		Symbol:   "AAPL",
		Sleeve:   domain.SleeveEquity,
		Side:     domain.SideLong,
		OpenedAt: time.Now().UTC(),
		Lots:     []domain.Lot{{Quantity: dec("10"), EntryPrice: dec("160"), AcquiredAt: time.Now().UTC()}},
	}
	pos.RecomputeAverage()

	repo := &stubRepo{
		sleeves: []*domain.Sleeve{persisted},
		open:    map[domain.SleeveID][]*domain.Position{domain.SleeveEquity: {pos}},
	}
	svc, book, store := newTestService(t, repo, "1.00")

	// Memory starts divergent on purpose.
	book.Load([]*domain.Sleeve{domain.NewSleeve(domain.SleeveEquity, dec("999"))})

	require.NoError(t, svc.RebuildMemoryFromStore(context.Background()))

	sleeve, err := book.Sleeve(domain.SleeveEquity)
	require.NoError(t, err)
	assert.True(t, sleeve.AvailableCash.Equal(dec("8400")))
	assert.Equal(t, int64(7), sleeve.Version)
	assert.True(t, store.InvestedAmount(domain.SleeveEquity).Equal(dec("1600")))
}
