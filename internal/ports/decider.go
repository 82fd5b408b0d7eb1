package ports

import (
	"context"

	"portfolioLedger/internal/domain"

	"github.com/shopspring/decimal"
)

// ProposedAction is one buy or sell the decision logic wants executed.
// Proposals are advisory; the ledger still validates funds and position
// capacity before anything is applied.
type ProposedAction struct {
	Symbol   string
	Action   domain.Action
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Reason   string
}

// Decider is the boundary to the external decision logic. The coordinator
// calls it once per cycle with a consistent view of the sleeve; it must
// tolerate arbitrary latency here, so implementations may fetch market data
// or anything else they need.
type Decider interface {
	Propose(ctx context.Context, sleeve domain.SleeveID, view domain.SleeveSummary) ([]ProposedAction, error)
}
