package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SleeveSnapshot aggregates one sleeve's view for reconciliation purposes.
type SleeveSnapshot struct {
	InvestedAmount decimal.Decimal // sum of lot.Quantity * lot.EntryPrice over open positions
	AvailableCash  decimal.Decimal
	RealizedPnL    decimal.Decimal
	Version        int64
}

// Snapshot is a per-sleeve aggregate taken either from the in-memory runtime
// view or from the persisted store.
type Snapshot map[SleeveID]SleeveSnapshot

// ReconStatus flags a reconciliation delta as within tolerance or not.
type ReconStatus string

const (
	ReconOK    ReconStatus = "OK"
	ReconDrift ReconStatus = "DRIFT"
)

// ReconDelta is one compared field for one sleeve.
type ReconDelta struct {
	Sleeve SleeveID
	Field  string
	Memory decimal.Decimal
	Store  decimal.Decimal
	Delta  decimal.Decimal // Memory - Store
	Status ReconStatus
}

// ReconciliationReport is the outcome of comparing the in-memory snapshot
// against the persisted one. It is ephemeral; callers may log it but it is
// never persisted.
type ReconciliationReport struct {
	GeneratedAt time.Time
	Tolerance   decimal.Decimal
	Deltas      []ReconDelta
}

// HasDrift reports whether any compared field exceeded the tolerance.
func (r ReconciliationReport) HasDrift() bool {
	for _, d := range r.Deltas {
		if d.Status == ReconDrift {
			return true
		}
	}
	return false
}

// DriftDeltas returns only the deltas flagged as drift.
func (r ReconciliationReport) DriftDeltas() []ReconDelta {
	var out []ReconDelta
	for _, d := range r.Deltas {
		if d.Status == ReconDrift {
			out = append(out, d)
		}
	}
	return out
}

// SleeveSummary is a read-only, consistent view of one sleeve for reporting
// collaborators. Monetary figures are rounded to two fractional digits only
// here, at the report boundary.
type SleeveSummary struct {
	Sleeve        Sleeve
	Positions     []Position
	UnrealizedPnL decimal.Decimal
}

// Round returns a copy with all monetary fields rounded for display.
func (s SleeveSummary) Round() SleeveSummary {
	out := s
	out.Sleeve.CurrentCapital = s.Sleeve.CurrentCapital.Round(2)
	out.Sleeve.AvailableCash = s.Sleeve.AvailableCash.Round(2)
	out.Sleeve.InvestedAmount = s.Sleeve.InvestedAmount.Round(2)
	out.Sleeve.RealizedPnL = s.Sleeve.RealizedPnL.Round(2)
	out.UnrealizedPnL = s.UnrealizedPnL.Round(2)
	return out
}
