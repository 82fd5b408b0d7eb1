package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side represents the direction of an open exposure.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Lot is an atomic acquisition within a position. Lots are appended on every
// buy action and consumed oldest-first on every sell action.
type Lot struct {
	ID           int64
	Quantity     decimal.Decimal
	EntryPrice   decimal.Decimal
	AcquiredAt   time.Time
	OriginReason string
}

// Position is one open exposure for a (symbol, sleeve) pair. It owns an
// ordered sequence of lots; the sum of lot quantities always equals
// TotalQuantity, and a position with zero lots is deleted rather than kept
// as a zero-quantity record.
type Position struct {
	Symbol            string
	Sleeve            SleeveID
	Side              Side
	TotalQuantity     decimal.Decimal
	AverageEntryPrice decimal.Decimal
	CurrentPrice      decimal.Decimal
	OpenedAt          time.Time
	Lots              []Lot
}

// Clone returns a deep copy, including the lot sequence.
func (p *Position) Clone() *Position {
	cp := *p
	cp.Lots = make([]Lot, len(p.Lots))
	copy(cp.Lots, p.Lots)
	return &cp
}

// CostBasis is the sum of quantity * entry price across all open lots.
func (p *Position) CostBasis() decimal.Decimal {
	basis := decimal.Zero
	for _, lot := range p.Lots {
		basis = basis.Add(lot.Quantity.Mul(lot.EntryPrice))
	}
	return basis
}

// UnrealizedPnL is derived from the last observed price against the open lots.
func (p *Position) UnrealizedPnL() decimal.Decimal {
	if p.CurrentPrice.IsZero() {
		return decimal.Zero
	}
	marked := p.TotalQuantity.Mul(p.CurrentPrice)
	if p.Side == SideShort {
		return p.CostBasis().Sub(marked)
	}
	return marked.Sub(p.CostBasis())
}

// RecomputeAverage refreshes TotalQuantity and AverageEntryPrice from the lots
// (quantity-weighted mean).
func (p *Position) RecomputeAverage() {
	total := decimal.Zero
	for _, lot := range p.Lots {
		total = total.Add(lot.Quantity)
	}
	p.TotalQuantity = total
	if total.IsZero() {
		p.AverageEntryPrice = decimal.Zero
		return
	}
	p.AverageEntryPrice = p.CostBasis().Div(total)
}
