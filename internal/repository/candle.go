package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"tradesim/types"
)

type selectCandlesParams struct {
	Symbol   string
	Interval string
	Start    time.Time
	End      time.Time
}

type candleRow struct {
	Symbol    string
	Interval  string
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	Timestamp time.Time
}

// GetCandles returns the stored candles for symbol in [start, end], oldest
// first. ErrNoCandles means the range holds nothing, not that the query broke.
func (db *Database) GetCandles(symbol string, interval types.Interval, start, end time.Time, ctx context.Context) ([]types.Candle, error) {
	rows, err := db.candles.SelectCandles(ctx, selectCandlesParams{
		Symbol:   symbol,
		Interval: string(interval),
		Start:    start,
		End:      end,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoCandles
		}
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoCandles
	}
	return convertCandles(rows, interval), nil
}

// SaveCandles persists a fetched batch. Duplicate (symbol, interval, time)
// rows are skipped, so re-polling the same window is harmless.
func (db *Database) SaveCandles(candles []types.Candle, ctx context.Context) (int64, error) {
	rows := make([]candleRow, len(candles))
	for i, c := range candles {
		rows[i] = candleRow{
			Symbol:    c.Ticker,
			Interval:  string(c.Interval),
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
			Timestamp: c.Timestamp,
		}
	}
	return db.candles.InsertCandles(ctx, rows)
}

func convertCandles(rows []candleRow, interval types.Interval) []types.Candle {
	var candles []types.Candle
	for _, row := range rows {
		candles = append(candles, types.Candle{
			Ticker:    row.Symbol,
			Open:      row.Open,
			Close:     row.Close,
			High:      row.High,
			Low:       row.Low,
			Volume:    row.Volume,
			Interval:  interval,
			Timestamp: row.Timestamp,
		})
	}
	return candles
}

type pgxCandles struct {
	pool *pgxpool.Pool
}

const selectCandlesSQL = `
SELECT symbol, interval, open, high, low, close, volume, time
FROM candles
WHERE symbol = $1 AND interval = $2 AND time BETWEEN $3 AND $4
ORDER BY time ASC`

func (p *pgxCandles) SelectCandles(ctx context.Context, params selectCandlesParams) ([]candleRow, error) {
	rows, err := p.pool.Query(ctx, selectCandlesSQL, params.Symbol, params.Interval, params.Start, params.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []candleRow
	for rows.Next() {
		var row candleRow
		if err := rows.Scan(&row.Symbol, &row.Interval, &row.Open, &row.High, &row.Low, &row.Close, &row.Volume, &row.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

const insertCandleSQL = `
INSERT INTO candles (symbol, interval, open, high, low, close, volume, time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (symbol, interval, time) DO NOTHING`

func (p *pgxCandles) InsertCandles(ctx context.Context, rows []candleRow) (int64, error) {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(insertCandleSQL, row.Symbol, row.Interval, row.Open, row.High, row.Low, row.Close, row.Volume, row.Timestamp)
	}
	results := p.pool.SendBatch(ctx, batch)
	defer results.Close()

	var inserted int64
	for range rows {
		tag, err := results.Exec()
		if err != nil {
			return inserted, err
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}
