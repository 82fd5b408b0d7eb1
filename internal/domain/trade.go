package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClosedTrade records the consumption of one lot (or part of one) by a sell.
// A single sell transaction emits one ClosedTrade per lot boundary it crosses.
type ClosedTrade struct {
	ID             int64
	TransactionID  int64 // fill that triggered the close
	Symbol         string
	Sleeve         SleeveID
	EntryPrice     decimal.Decimal // price of the consumed lot
	ExitPrice      decimal.Decimal
	QuantityClosed decimal.Decimal
	RealizedPnL    decimal.Decimal
	EntryTime      time.Time
	ExitTime       time.Time
}
