package ports

import (
	"context"

	"portfolioLedger/internal/domain"
)

// StoreTx groups the mutations of one atomic unit of work against the
// persistent store. Either Commit applies all of them or Rollback discards
// all of them; a fill that touches the transaction log, positions, closed
// trades and the sleeve row runs inside a single StoreTx.
type StoreTx interface {
	// AppendTransaction adds a fill to the append-only transaction log and
	// returns its assigned monotonic id.
	AppendTransaction(ctx context.Context, tx *domain.Transaction) (int64, error)
	// UpsertPosition writes a position and its full lot sequence.
	UpsertPosition(ctx context.Context, pos *domain.Position) error
	// DeletePosition removes a fully closed position and its lots.
	DeletePosition(ctx context.Context, symbol string, sleeve domain.SleeveID) error
	// AppendClosedTrade adds one closed-trade record and returns its id.
	AppendClosedTrade(ctx context.Context, trade *domain.ClosedTrade) (int64, error)
	// SaveSleeve writes the sleeve row.
	SaveSleeve(ctx context.Context, sleeve *domain.Sleeve) error
	// ArchiveSleeve moves the sleeve's transactions into the archive under
	// the given batch id and tags its closed trades. Returns the number of
	// transactions archived. Nothing is deleted.
	ArchiveSleeve(ctx context.Context, sleeve domain.SleeveID, batchID string) (int, error)

	Commit() error
	Rollback() error
}

// Repository defines the persistent store for sleeves, positions, the
// transaction log and closed trades. Reads run outside transactions;
// mutations go through Begin.
type Repository interface {
	// Begin opens a new atomic unit of work.
	Begin(ctx context.Context) (StoreTx, error)

	// FindSleeve retrieves one sleeve row. Returns nil, nil if absent.
	FindSleeve(ctx context.Context, id domain.SleeveID) (*domain.Sleeve, error)
	// FindAllSleeves retrieves every sleeve row.
	FindAllSleeves(ctx context.Context) ([]*domain.Sleeve, error)
	// FindPosition retrieves the open position for (symbol, sleeve) with its
	// lots in acquisition order. Returns nil, nil if absent.
	FindPosition(ctx context.Context, symbol string, sleeve domain.SleeveID) (*domain.Position, error)
	// FindOpenPositions retrieves all open positions for a sleeve.
	FindOpenPositions(ctx context.Context, sleeve domain.SleeveID) ([]*domain.Position, error)
	// FindClosedTrades retrieves the most recent closed trades for a symbol,
	// newest first, up to limit.
	FindClosedTrades(ctx context.Context, symbol string, limit int) ([]*domain.ClosedTrade, error)
	// AggregateSnapshot derives the persisted per-sleeve aggregate: invested
	// amount from lots, available cash and version from the sleeve row,
	// realized P&L from unarchived closed trades.
	AggregateSnapshot(ctx context.Context) (domain.Snapshot, error)

	Close() error
}
