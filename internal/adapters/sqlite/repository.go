package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"portfolioLedger/internal/domain"
	"portfolioLedger/internal/ports"

	"github.com/shopspring/decimal"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.Repository using SQLite. Monetary and quantity
// columns are stored as TEXT in decimal notation; aggregation happens in Go
// with decimal arithmetic so no precision is lost to SQLite's float affinity.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository opens (creating if necessary) the ledger database.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/ledger.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL mode for better concurrency between the cycle writer and readers.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// The Go driver benefits from a single connection; SQLite serializes
	// writers anyway and this keeps transactions on one handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Ledger database ready", map[string]interface{}{"path": dbPath})
	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS sleeves (
		id TEXT PRIMARY KEY,
		initial_capital TEXT NOT NULL,
		current_capital TEXT NOT NULL,
		available_cash TEXT NOT NULL,
		invested_amount TEXT NOT NULL,
		realized_pnl TEXT NOT NULL,
		trade_count INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS positions (
		symbol TEXT NOT NULL,
		sleeve TEXT NOT NULL,
		side TEXT NOT NULL,
		total_quantity TEXT NOT NULL,
		avg_entry_price TEXT NOT NULL,
		current_price TEXT NOT NULL,
		opened_at TIMESTAMP NOT NULL,
		PRIMARY KEY (symbol, sleeve)
	);

	CREATE TABLE IF NOT EXISTS lots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		sleeve TEXT NOT NULL,
		quantity TEXT NOT NULL,
		entry_price TEXT NOT NULL,
		acquired_at TIMESTAMP NOT NULL,
		origin_reason TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		sleeve TEXT NOT NULL,
		action TEXT NOT NULL,
		quantity TEXT NOT NULL,
		price TEXT NOT NULL,
		ts TIMESTAMP NOT NULL,
		reason TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS archived_transactions (
		batch_id TEXT NOT NULL,
		orig_id INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		sleeve TEXT NOT NULL,
		action TEXT NOT NULL,
		quantity TEXT NOT NULL,
		price TEXT NOT NULL,
		ts TIMESTAMP NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		archived_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS closed_trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		transaction_id INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		sleeve TEXT NOT NULL,
		entry_price TEXT NOT NULL,
		exit_price TEXT NOT NULL,
		quantity_closed TEXT NOT NULL,
		realized_pnl TEXT NOT NULL,
		entry_time TIMESTAMP NOT NULL,
		exit_time TIMESTAMP NOT NULL,
		archive_batch TEXT DEFAULT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_lots_symbol_sleeve ON lots (symbol, sleeve, id);
	CREATE INDEX IF NOT EXISTS idx_transactions_sleeve ON transactions (sleeve, id);
	CREATE INDEX IF NOT EXISTS idx_closed_trades_symbol ON closed_trades (symbol, exit_time);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing ledger database")
		return r.db.Close()
	}
	return nil
}

// Begin opens a new atomic unit of work.
func (r *Repository) Begin(ctx context.Context) (ports.StoreTx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin store transaction: %w", err)
	}
	return &storeTx{tx: tx, logger: r.logger}, nil
}

// --- Reads ---

// FindSleeve retrieves one sleeve row. Returns nil, nil if absent.
func (r *Repository) FindSleeve(ctx context.Context, id domain.SleeveID) (*domain.Sleeve, error) {
	const query = `
	SELECT id, initial_capital, current_capital, available_cash, invested_amount, realized_pnl, trade_count, version
	FROM sleeves WHERE id = ?`

	s, err := scanSleeve(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query sleeve %s: %w", id, err)
	}
	return s, nil
}

// FindAllSleeves retrieves every sleeve row.
func (r *Repository) FindAllSleeves(ctx context.Context) ([]*domain.Sleeve, error) {
	const query = `
	SELECT id, initial_capital, current_capital, available_cash, invested_amount, realized_pnl, trade_count, version
	FROM sleeves ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sleeves: %w", err)
	}
	defer rows.Close()

	sleeves := make([]*domain.Sleeve, 0)
	for rows.Next() {
		s, err := scanSleeve(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sleeve: %w", err)
		}
		sleeves = append(sleeves, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sleeve rows: %w", err)
	}
	return sleeves, nil
}

// FindPosition retrieves the open position for (symbol, sleeve) with its lots
// in acquisition order. Returns nil, nil if absent.
func (r *Repository) FindPosition(ctx context.Context, symbol string, sleeve domain.SleeveID) (*domain.Position, error) {
	const query = `
	SELECT symbol, sleeve, side, total_quantity, avg_entry_price, current_price, opened_at
	FROM positions WHERE symbol = ? AND sleeve = ?`

	pos, err := scanPosition(r.db.QueryRowContext(ctx, query, symbol, sleeve))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query position %s/%s: %w", sleeve, symbol, err)
	}
	if err := r.attachLots(ctx, pos); err != nil {
		return nil, err
	}
	return pos, nil
}

// FindOpenPositions retrieves all open positions for a sleeve, oldest first.
func (r *Repository) FindOpenPositions(ctx context.Context, sleeve domain.SleeveID) ([]*domain.Position, error) {
	const query = `
	SELECT symbol, sleeve, side, total_quantity, avg_entry_price, current_price, opened_at
	FROM positions WHERE sleeve = ? ORDER BY opened_at, symbol`

	rows, err := r.db.QueryContext(ctx, query, sleeve)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions for sleeve %s: %w", sleeve, err)
	}
	defer rows.Close()

	positions := make([]*domain.Position, 0)
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, pos)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w", err)
	}
	for _, pos := range positions {
		if err := r.attachLots(ctx, pos); err != nil {
			return nil, err
		}
	}
	return positions, nil
}

// attachLots loads the position's lot sequence in acquisition order.
func (r *Repository) attachLots(ctx context.Context, pos *domain.Position) error {
	const query = `
	SELECT id, quantity, entry_price, acquired_at, origin_reason
	FROM lots WHERE symbol = ? AND sleeve = ? ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, pos.Symbol, pos.Sleeve)
	if err != nil {
		return fmt.Errorf("failed to query lots for %s/%s: %w", pos.Sleeve, pos.Symbol, err)
	}
	defer rows.Close()

	pos.Lots = pos.Lots[:0]
	for rows.Next() {
		var lot domain.Lot
		var qty, price string
		if err := rows.Scan(&lot.ID, &qty, &price, &lot.AcquiredAt, &lot.OriginReason); err != nil {
			return fmt.Errorf("failed to scan lot: %w", err)
		}
		if lot.Quantity, err = decimal.NewFromString(qty); err != nil {
			return fmt.Errorf("corrupt lot quantity '%s': %w", qty, err)
		}
		if lot.EntryPrice, err = decimal.NewFromString(price); err != nil {
			return fmt.Errorf("corrupt lot entry price '%s': %w", price, err)
		}
		pos.Lots = append(pos.Lots, lot)
	}
	return rows.Err()
}

// FindClosedTrades retrieves the most recent closed trades for a symbol,
// newest first, up to limit.
func (r *Repository) FindClosedTrades(ctx context.Context, symbol string, limit int) ([]*domain.ClosedTrade, error) {
	const query = `
	SELECT id, transaction_id, symbol, sleeve, entry_price, exit_price, quantity_closed, realized_pnl, entry_time, exit_time
	FROM closed_trades WHERE symbol = ? AND archive_batch IS NULL
	ORDER BY exit_time DESC, id DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query closed trades for %s: %w", symbol, err)
	}
	defer rows.Close()

	trades := make([]*domain.ClosedTrade, 0)
	for rows.Next() {
		trade, err := scanClosedTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan closed trade: %w", err)
		}
		trades = append(trades, trade)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating closed trade rows: %w", err)
	}
	return trades, nil
}

// AggregateSnapshot derives the persisted per-sleeve aggregate. Invested
// amount is recomputed from raw lot rows and realized P&L from unarchived
// closed trades, deliberately not trusting the sleeve row for either, so a
// lost lot or trade row shows up as drift instead of being masked.
func (r *Repository) AggregateSnapshot(ctx context.Context) (domain.Snapshot, error) {
	snap := make(domain.Snapshot)

	sleeves, err := r.FindAllSleeves(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range sleeves {
		snap[s.ID] = domain.SleeveSnapshot{
			InvestedAmount: decimal.Zero,
			AvailableCash:  s.AvailableCash,
			RealizedPnL:    decimal.Zero,
			Version:        s.Version,
		}
	}

	// Invested: sum lot quantity * entry price in decimal space.
	lotRows, err := r.db.QueryContext(ctx, `SELECT sleeve, quantity, entry_price FROM lots`)
	if err != nil {
		return nil, fmt.Errorf("failed to query lots for snapshot: %w", err)
	}
	defer lotRows.Close()
	for lotRows.Next() {
		var sleeve domain.SleeveID
		var qtyStr, priceStr string
		if err := lotRows.Scan(&sleeve, &qtyStr, &priceStr); err != nil {
			return nil, fmt.Errorf("failed to scan lot for snapshot: %w", err)
		}
		qty, err := decimal.NewFromString(qtyStr)
		if err != nil {
			return nil, fmt.Errorf("corrupt lot quantity '%s': %w", qtyStr, err)
		}
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			return nil, fmt.Errorf("corrupt lot entry price '%s': %w", priceStr, err)
		}
		entry := snap[sleeve]
		entry.InvestedAmount = entry.InvestedAmount.Add(qty.Mul(price))
		snap[sleeve] = entry
	}
	if err = lotRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lot rows: %w", err)
	}

	// Realized: sum of unarchived closed-trade P&L.
	tradeRows, err := r.db.QueryContext(ctx, `SELECT sleeve, realized_pnl FROM closed_trades WHERE archive_batch IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to query closed trades for snapshot: %w", err)
	}
	defer tradeRows.Close()
	for tradeRows.Next() {
		var sleeve domain.SleeveID
		var pnlStr string
		if err := tradeRows.Scan(&sleeve, &pnlStr); err != nil {
			return nil, fmt.Errorf("failed to scan closed trade for snapshot: %w", err)
		}
		pnl, err := decimal.NewFromString(pnlStr)
		if err != nil {
			return nil, fmt.Errorf("corrupt realized pnl '%s': %w", pnlStr, err)
		}
		entry := snap[sleeve]
		entry.RealizedPnL = entry.RealizedPnL.Add(pnl)
		snap[sleeve] = entry
	}
	if err = tradeRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating closed trade rows: %w", err)
	}

	return snap, nil
}

// --- StoreTx implementation ---

type storeTx struct {
	tx     *sql.Tx
	logger ports.Logger
}

// AppendTransaction adds a fill to the append-only transaction log.
func (t *storeTx) AppendTransaction(ctx context.Context, txn *domain.Transaction) (int64, error) {
	const query = `
	INSERT INTO transactions (symbol, sleeve, action, quantity, price, ts, reason)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	result, err := t.tx.ExecContext(ctx, query,
		txn.Symbol, txn.Sleeve, txn.Action, txn.Quantity.String(), txn.Price.String(), txn.Timestamp, txn.Reason)
	if err != nil {
		return 0, fmt.Errorf("failed to insert transaction for %s/%s: %w", txn.Sleeve, txn.Symbol, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get transaction id for %s/%s: %w", txn.Sleeve, txn.Symbol, err)
	}
	txn.ID = id
	return id, nil
}

// UpsertPosition writes the position row and rewrites its lot sequence.
// Rewriting keeps the persisted lot order identical to the in-memory order
// without tracking per-lot diffs.
func (t *storeTx) UpsertPosition(ctx context.Context, pos *domain.Position) error {
	const posQuery = `
	INSERT INTO positions (symbol, sleeve, side, total_quantity, avg_entry_price, current_price, opened_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (symbol, sleeve) DO UPDATE SET
		side = excluded.side,
		total_quantity = excluded.total_quantity,
		avg_entry_price = excluded.avg_entry_price,
		current_price = excluded.current_price,
		opened_at = excluded.opened_at`

	if _, err := t.tx.ExecContext(ctx, posQuery,
		pos.Symbol, pos.Sleeve, pos.Side, pos.TotalQuantity.String(),
		pos.AverageEntryPrice.String(), pos.CurrentPrice.String(), pos.OpenedAt); err != nil {
		return fmt.Errorf("failed to upsert position %s/%s: %w", pos.Sleeve, pos.Symbol, err)
	}

	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM lots WHERE symbol = ? AND sleeve = ?`, pos.Symbol, pos.Sleeve); err != nil {
		return fmt.Errorf("failed to clear lots for %s/%s: %w", pos.Sleeve, pos.Symbol, err)
	}
	const lotQuery = `
	INSERT INTO lots (symbol, sleeve, quantity, entry_price, acquired_at, origin_reason)
	VALUES (?, ?, ?, ?, ?, ?)`
	for _, lot := range pos.Lots {
		if _, err := t.tx.ExecContext(ctx, lotQuery,
			pos.Symbol, pos.Sleeve, lot.Quantity.String(), lot.EntryPrice.String(), lot.AcquiredAt, lot.OriginReason); err != nil {
			return fmt.Errorf("failed to insert lot for %s/%s: %w", pos.Sleeve, pos.Symbol, err)
		}
	}
	return nil
}

// DeletePosition removes a fully closed position and its lots.
func (t *storeTx) DeletePosition(ctx context.Context, symbol string, sleeve domain.SleeveID) error {
	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM positions WHERE symbol = ? AND sleeve = ?`, symbol, sleeve); err != nil {
		return fmt.Errorf("failed to delete position %s/%s: %w", sleeve, symbol, err)
	}
	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM lots WHERE symbol = ? AND sleeve = ?`, symbol, sleeve); err != nil {
		return fmt.Errorf("failed to delete lots for %s/%s: %w", sleeve, symbol, err)
	}
	return nil
}

// AppendClosedTrade adds one closed-trade record.
func (t *storeTx) AppendClosedTrade(ctx context.Context, trade *domain.ClosedTrade) (int64, error) {
	const query = `
	INSERT INTO closed_trades (transaction_id, symbol, sleeve, entry_price, exit_price, quantity_closed, realized_pnl, entry_time, exit_time)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := t.tx.ExecContext(ctx, query,
		trade.TransactionID, trade.Symbol, trade.Sleeve,
		trade.EntryPrice.String(), trade.ExitPrice.String(), trade.QuantityClosed.String(),
		trade.RealizedPnL.String(), trade.EntryTime, trade.ExitTime)
	if err != nil {
		return 0, fmt.Errorf("failed to insert closed trade for %s/%s: %w", trade.Sleeve, trade.Symbol, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get closed trade id for %s/%s: %w", trade.Sleeve, trade.Symbol, err)
	}
	trade.ID = id
	return id, nil
}

// SaveSleeve writes the sleeve row.
func (t *storeTx) SaveSleeve(ctx context.Context, sleeve *domain.Sleeve) error {
	const query = `
	INSERT INTO sleeves (id, initial_capital, current_capital, available_cash, invested_amount, realized_pnl, trade_count, version)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		initial_capital = excluded.initial_capital,
		current_capital = excluded.current_capital,
		available_cash = excluded.available_cash,
		invested_amount = excluded.invested_amount,
		realized_pnl = excluded.realized_pnl,
		trade_count = excluded.trade_count,
		version = excluded.version`

	if _, err := t.tx.ExecContext(ctx, query,
		sleeve.ID, sleeve.InitialCapital.String(), sleeve.CurrentCapital.String(),
		sleeve.AvailableCash.String(), sleeve.InvestedAmount.String(), sleeve.RealizedPnL.String(),
		sleeve.TradeCount, sleeve.Version); err != nil {
		return fmt.Errorf("failed to save sleeve %s: %w", sleeve.ID, err)
	}
	return nil
}

// ArchiveSleeve moves the sleeve's transactions into the archive under one
// batch id, tags its closed trades, and clears its open positions. The
// transaction log rows are preserved verbatim in archived_transactions.
func (t *storeTx) ArchiveSleeve(ctx context.Context, sleeve domain.SleeveID, batchID string) (int, error) {
	const archiveQuery = `
	INSERT INTO archived_transactions (batch_id, orig_id, symbol, sleeve, action, quantity, price, ts, reason, archived_at)
	SELECT ?, id, symbol, sleeve, action, quantity, price, ts, reason, ?
	FROM transactions WHERE sleeve = ?`

	result, err := t.tx.ExecContext(ctx, archiveQuery, batchID, time.Now().UTC(), sleeve)
	if err != nil {
		return 0, fmt.Errorf("failed to archive transactions for sleeve %s: %w", sleeve, err)
	}
	moved, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count archived transactions for sleeve %s: %w", sleeve, err)
	}

	if _, err := t.tx.ExecContext(ctx, `DELETE FROM transactions WHERE sleeve = ?`, sleeve); err != nil {
		return 0, fmt.Errorf("failed to clear transaction log for sleeve %s: %w", sleeve, err)
	}
	if _, err := t.tx.ExecContext(ctx,
		`UPDATE closed_trades SET archive_batch = ? WHERE sleeve = ? AND archive_batch IS NULL`, batchID, sleeve); err != nil {
		return 0, fmt.Errorf("failed to tag closed trades for sleeve %s: %w", sleeve, err)
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM positions WHERE sleeve = ?`, sleeve); err != nil {
		return 0, fmt.Errorf("failed to clear positions for sleeve %s: %w", sleeve, err)
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM lots WHERE sleeve = ?`, sleeve); err != nil {
		return 0, fmt.Errorf("failed to clear lots for sleeve %s: %w", sleeve, err)
	}
	return int(moved), nil
}

func (t *storeTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit store transaction: %w", err)
	}
	return nil
}

func (t *storeTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to roll back store transaction: %w", err)
	}
	return nil
}

// --- Helper scan functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSleeve(s scanner) (*domain.Sleeve, error) {
	sl := &domain.Sleeve{}
	var initial, current, cash, invested, realized string
	err := s.Scan(&sl.ID, &initial, &current, &cash, &invested, &realized, &sl.TradeCount, &sl.Version)
	if err != nil {
		return nil, err // sql.ErrNoRows handled by the caller
	}
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&sl.InitialCapital, initial},
		{&sl.CurrentCapital, current},
		{&sl.AvailableCash, cash},
		{&sl.InvestedAmount, invested},
		{&sl.RealizedPnL, realized},
	} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return nil, fmt.Errorf("corrupt sleeve amount '%s': %w", f.src, err)
		}
	}
	return sl, nil
}

func scanPosition(s scanner) (*domain.Position, error) {
	p := &domain.Position{}
	var side, total, avg, current string
	err := s.Scan(&p.Symbol, &p.Sleeve, &side, &total, &avg, &current, &p.OpenedAt)
	if err != nil {
		return nil, err // sql.ErrNoRows handled by the caller
	}
	p.Side = domain.Side(side)
	if p.TotalQuantity, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("corrupt position quantity '%s': %w", total, err)
	}
	if p.AverageEntryPrice, err = decimal.NewFromString(avg); err != nil {
		return nil, fmt.Errorf("corrupt position average price '%s': %w", avg, err)
	}
	if p.CurrentPrice, err = decimal.NewFromString(current); err != nil {
		return nil, fmt.Errorf("corrupt position current price '%s': %w", current, err)
	}
	return p, nil
}

func scanClosedTrade(s scanner) (*domain.ClosedTrade, error) {
	ct := &domain.ClosedTrade{}
	var entry, exit, qty, pnl string
	err := s.Scan(&ct.ID, &ct.TransactionID, &ct.Symbol, &ct.Sleeve, &entry, &exit, &qty, &pnl, &ct.EntryTime, &ct.ExitTime)
	if err != nil {
		return nil, err
	}
	if ct.EntryPrice, err = decimal.NewFromString(entry); err != nil {
		return nil, fmt.Errorf("corrupt trade entry price '%s': %w", entry, err)
	}
	if ct.ExitPrice, err = decimal.NewFromString(exit); err != nil {
		return nil, fmt.Errorf("corrupt trade exit price '%s': %w", exit, err)
	}
	if ct.QuantityClosed, err = decimal.NewFromString(qty); err != nil {
		return nil, fmt.Errorf("corrupt trade quantity '%s': %w", qty, err)
	}
	if ct.RealizedPnL, err = decimal.NewFromString(pnl); err != nil {
		return nil, fmt.Errorf("corrupt trade pnl '%s': %w", pnl, err)
	}
	return ct, nil
}
