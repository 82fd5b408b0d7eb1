package decision

import (
	"context"

	"portfolioLedger/internal/domain"
	"portfolioLedger/internal/ports"
)

// Hold is the default decider: it proposes nothing, so cycles run pure
// settlement and reconciliation. Real decision logic plugs in through the
// same port.
type Hold struct{}

// NewHold returns the no-op decider.
func NewHold() Hold { return Hold{} }

// Propose implements ports.Decider.
func (Hold) Propose(ctx context.Context, sleeve domain.SleeveID, view domain.SleeveSummary) ([]ports.ProposedAction, error) {
	return nil, nil
}
