package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Action represents the direction of a fill (BUY or SELL).
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// IsValid reports whether the action is one of the known fill directions.
func (a Action) IsValid() bool {
	return a == ActionBuy || a == ActionSell
}

// Transaction is an immutable, append-only record of one fill. It is the
// system of record for audit and for recomputing P&L from scratch; rows are
// archived on sleeve reset, never mutated or deleted.
type Transaction struct {
	ID        int64
	Symbol    string
	Sleeve    SleeveID
	Action    Action
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	Timestamp time.Time
	Reason    string
}
