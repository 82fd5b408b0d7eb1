package utils

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"portfolioLedger/internal/domain"
)

// WriteClosedTradesToCSV exports closed trades for offline analysis.
func WriteClosedTradesToCSV(trades []*domain.ClosedTrade, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{"id", "transaction_id", "symbol", "sleeve", "entry_price", "exit_price", "quantity_closed", "realized_pnl", "entry_time", "exit_time"})

	for _, t := range trades {
		writer.Write([]string{
			strconv.FormatInt(t.ID, 10),
			strconv.FormatInt(t.TransactionID, 10),
			t.Symbol,
			string(t.Sleeve),
			t.EntryPrice.String(),
			t.ExitPrice.String(),
			t.QuantityClosed.String(),
			t.RealizedPnL.String(),
			t.EntryTime.Format(time.RFC3339),
			t.ExitTime.Format(time.RFC3339),
		})
	}
	return writer.Error()
}
