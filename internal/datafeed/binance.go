package datafeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tradesim/types"
)

const (
	defaultBaseURL = "https://api.binance.com"
	maxAttempts    = 3
)

var ErrFetchFailed = errors.New("candle fetch failed")

// Client fetches klines from the Binance spot REST API.
type Client struct {
	http    *http.Client
	baseURL string
	log     zerolog.Logger
}

func NewClient(baseURL string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		http:    &http.Client{Timeout: 15 * time.Second},
		baseURL: baseURL,
		log:     log.With().Str("component", "datafeed").Logger(),
	}
}

// Klines fetches up to limit candles for symbol at the given interval, oldest
// first. Transient upstream failures (429 and 5xx) are retried with a short
// backoff before the call gives up with ErrFetchFailed.
func (c *Client) Klines(ctx context.Context, symbol string, interval types.Interval, limit int) ([]types.Candle, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", string(interval))
	q.Set("limit", strconv.Itoa(limit))
	endpoint := c.baseURL + "/api/v3/klines?" + q.Encode()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(time.Duration(attempt-1) * time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		candles, retryable, err := c.fetch(ctx, endpoint, symbol, interval)
		if err == nil {
			return candles, nil
		}
		lastErr = err
		if !retryable {
			break
		}
		c.log.Warn().Err(err).Int("attempt", attempt).Str("symbol", symbol).Msg("kline fetch failed, retrying")
	}
	return nil, fmt.Errorf("%w: %v", ErrFetchFailed, lastErr)
}

func (c *Client) fetch(ctx context.Context, endpoint, symbol string, interval types.Interval) ([]types.Candle, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, retryable, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	// Each kline is a positional array:
	// [openTime, open, high, low, close, volume, closeTime, ...]
	var rows [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, false, fmt.Errorf("decoding klines: %w", err)
	}

	candles := make([]types.Candle, 0, len(rows))
	for i, row := range rows {
		candle, err := parseKline(row, symbol, interval)
		if err != nil {
			return nil, false, fmt.Errorf("kline %d: %w", i, err)
		}
		candles = append(candles, candle)
	}
	return candles, false, nil
}

func parseKline(row []json.RawMessage, symbol string, interval types.Interval) (types.Candle, error) {
	if len(row) < 6 {
		return types.Candle{}, fmt.Errorf("got %d fields, want at least 6", len(row))
	}
	var openTime int64
	if err := json.Unmarshal(row[0], &openTime); err != nil {
		return types.Candle{}, fmt.Errorf("open time: %w", err)
	}
	fields := make([]decimal.Decimal, 5)
	for i, raw := range row[1:6] {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return types.Candle{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return types.Candle{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		fields[i] = d
	}
	return types.Candle{
		Ticker:    symbol,
		Open:      fields[0],
		High:      fields[1],
		Low:       fields[2],
		Close:     fields[3],
		Volume:    fields[4],
		Interval:  interval,
		Timestamp: time.UnixMilli(openTime).UTC(),
	}, nil
}
