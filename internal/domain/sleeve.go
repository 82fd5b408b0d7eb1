package domain

import "github.com/shopspring/decimal"

// SleeveID identifies an independently capitalized trading book.
type SleeveID string

const (
	SleeveEquity SleeveID = "EQUITY"
	SleeveCrypto SleeveID = "CRYPTO"
)

// AllSleeves returns the closed set of sleeves the system manages.
func AllSleeves() []SleeveID {
	return []SleeveID{SleeveEquity, SleeveCrypto}
}

// IsValid reports whether the id is one of the known sleeves.
func (s SleeveID) IsValid() bool {
	return s == SleeveEquity || s == SleeveCrypto
}

// Sleeve holds the capital bookkeeping for one trading book.
// Invariant at rest: CurrentCapital == AvailableCash + InvestedAmount,
// and AvailableCash is never negative.
type Sleeve struct {
	ID             SleeveID
	InitialCapital decimal.Decimal
	CurrentCapital decimal.Decimal
	AvailableCash  decimal.Decimal
	InvestedAmount decimal.Decimal
	RealizedPnL    decimal.Decimal
	TradeCount     int
	Version        int64 // bumped on every successful mutation
}

// NewSleeve creates a freshly funded sleeve with all capital available as cash.
func NewSleeve(id SleeveID, initialCapital decimal.Decimal) *Sleeve {
	return &Sleeve{
		ID:             id,
		InitialCapital: initialCapital,
		CurrentCapital: initialCapital,
		AvailableCash:  initialCapital,
		InvestedAmount: decimal.Zero,
		RealizedPnL:    decimal.Zero,
	}
}
