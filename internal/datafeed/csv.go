package datafeed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/types"
)

var ErrMalformedRow = errors.New("malformed candle row")

// ParseCSV reads candles from r. Expected columns are
// time,open,high,low,close[,volume]; a header row is detected and skipped.
// Timestamps may be unix seconds, unix milliseconds or RFC3339. Rows must
// already be in chronological order, the simulation validates that.
func ParseCSV(r io.Reader, symbol string, interval types.Interval) ([]types.Candle, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	var candles []types.Candle
	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv: %w", err)
		}
		line++

		if line == 1 && isHeader(record) {
			continue
		}
		if len(record) < 5 {
			return nil, fmt.Errorf("line %d: %w: got %d columns, want at least 5", line, ErrMalformedRow, len(record))
		}

		ts, err := parseTimestamp(record[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w: %v", line, ErrMalformedRow, err)
		}
		prices := make([]decimal.Decimal, 4)
		for i, field := range record[1:5] {
			p, err := decimal.NewFromString(strings.TrimSpace(field))
			if err != nil {
				return nil, fmt.Errorf("line %d: %w: %v", line, ErrMalformedRow, err)
			}
			prices[i] = p
		}
		volume := decimal.Zero
		if len(record) > 5 && strings.TrimSpace(record[5]) != "" {
			volume, err = decimal.NewFromString(strings.TrimSpace(record[5]))
			if err != nil {
				return nil, fmt.Errorf("line %d: %w: %v", line, ErrMalformedRow, err)
			}
		}

		candles = append(candles, types.Candle{
			Ticker:    symbol,
			Open:      prices[0],
			High:      prices[1],
			Low:       prices[2],
			Close:     prices[3],
			Volume:    volume,
			Interval:  interval,
			Timestamp: ts,
		})
	}
	return candles, nil
}

func isHeader(record []string) bool {
	if len(record) < 5 {
		return false
	}
	first := strings.ToLower(strings.TrimSpace(record[0]))
	second := strings.ToLower(strings.TrimSpace(record[1]))
	return (first == "time" || first == "timestamp" || first == "date") && second == "open"
}

// parseTimestamp accepts unix seconds, unix milliseconds or RFC3339. Values
// above 1e12 are treated as milliseconds; that covers every date after 1971.
func parseTimestamp(field string) (time.Time, error) {
	field = strings.TrimSpace(field)
	if n, err := strconv.ParseInt(field, 10, 64); err == nil {
		if n > 1_000_000_000_000 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339, field)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", field)
	}
	return ts.UTC(), nil
}
