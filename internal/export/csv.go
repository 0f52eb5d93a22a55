package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"

	"tradesim/types"
)

// WriteTradesFile writes the trade log to a CSV file at the given path.
func WriteTradesFile(path string, trades []types.Trade) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trades file: %w", err)
	}
	defer f.Close()

	return WriteTrades(f, trades)
}

// WriteTrades writes trades to any io.Writer as CSV.
// You can pass os.Stdout for debugging, or a file.
func WriteTrades(w io.Writer, trades []types.Trade) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{
		"time", // RFC3339
		"symbol",
		"entry",
		"exit",
		"size",
		"profit",
		"balance_after",
		"reason",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, t := range trades {
		record := []string{
			t.Time.Format(time.RFC3339),
			t.Symbol,
			t.Entry.String(),
			t.Exit.String(),
			t.Size.String(),
			t.Profit.String(),
			t.BalanceAfter.String(),
			string(t.Reason),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}

	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
