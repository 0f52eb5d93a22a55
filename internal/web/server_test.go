package web

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tradesim/internal/datafeed"
	"tradesim/internal/monitor"
	"tradesim/internal/repository"
	"tradesim/types"
)

type fakeFetcher struct {
	candles   []types.Candle
	err       error
	lastLimit int
}

func (f *fakeFetcher) Klines(ctx context.Context, symbol string, interval types.Interval, limit int) ([]types.Candle, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.candles, nil
}

type fakeStore struct {
	candles []types.Candle
	err     error
}

func (f *fakeStore) GetCandles(symbol string, interval types.Interval, start, end time.Time, ctx context.Context) ([]types.Candle, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.candles, nil
}

type fakeStatus struct {
	statuses []monitor.SymbolStatus
}

func (f *fakeStatus) Status() []monitor.SymbolStatus { return f.statuses }

func scenarioCandles() []types.Candle {
	closes := []string{"10", "10", "10", "10", "11", "12", "9", "9"}
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]types.Candle, len(closes))
	for i, c := range closes {
		p := decimal.RequireFromString(c)
		candles[i] = types.Candle{
			Ticker:    "BTCUSDT",
			Open:      p,
			High:      p,
			Low:       p,
			Close:     p,
			Volume:    decimal.NewFromInt(1),
			Interval:  types.OneMinute,
			Timestamp: start.Add(time.Duration(i) * time.Minute),
		}
	}
	return candles
}

func scenarioRequestBody(candles []types.Candle) []byte {
	body, _ := json.Marshal(map[string]any{
		"symbol":          "BTCUSDT",
		"initial_balance": 10,
		"risk_per_trade":  0.02,
		"stop_loss_pct":   0.01,
		"strategy": map[string]any{
			"fast_period": 2,
			"slow_period": 4,
			"rsi_period":  3,
			"atr_period":  3,
			"overbought":  100,
		},
		"candles": candles,
	})
	return body
}

func newTestServer(fetcher CandleFetcher, store CandleStore, status StatusProvider) *Server {
	return NewServer(fetcher, store, status, zerolog.Nop())
}

func TestHandleBacktestInlineCandles(t *testing.T) {
	srv := newTestServer(&fakeFetcher{}, nil, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/backtest", bytes.NewReader(scenarioRequestBody(scenarioCandles())))
	req.Header.Set("Content-Type", "application/json")
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body %s", w.Code, w.Body.String())
	}
	var resp backtestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.ID == "" {
		t.Fatal("response has no run id")
	}
	if len(resp.Result.Trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(resp.Result.Trades))
	}
	if resp.Result.Trades[0].Reason != types.ReasonStopLoss {
		t.Fatalf("got reason %q, want stop-loss", resp.Result.Trades[0].Reason)
	}
	if resp.Summary.TotalTrades != 1 || resp.Summary.Losses != 1 {
		t.Fatalf("unexpected summary: %+v", resp.Summary)
	}

	// The finished run's trade log is downloadable.
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/backtest/"+resp.ID+"/trades.csv", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("trades.csv status %d", w.Code)
	}
	records, err := csv.NewReader(w.Body).ReadAll()
	if err != nil {
		t.Fatalf("reading csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d csv rows, want header plus 1 trade", len(records))
	}
}

func TestHandleBacktestErrorMapping(t *testing.T) {
	badOrder := scenarioCandles()
	badOrder[3].Timestamp = badOrder[0].Timestamp

	tests := []struct {
		name       string
		body       []byte
		fetcher    CandleFetcher
		store      CandleStore
		wantStatus int
	}{
		{
			name:       "invalid config",
			body:       []byte(`{"symbol":"BTCUSDT","initial_balance":0,"risk_per_trade":0.02,"stop_loss_pct":0.01}`),
			fetcher:    &fakeFetcher{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed json",
			body:       []byte(`{nope`),
			fetcher:    &fakeFetcher{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "corrupted candle sequence",
			body:       scenarioRequestBody(badOrder),
			fetcher:    &fakeFetcher{},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "fetch failure",
			body:       []byte(`{"symbol":"BTCUSDT","initial_balance":100,"risk_per_trade":0.02,"stop_loss_pct":0.01}`),
			fetcher:    &fakeFetcher{err: fmt.Errorf("%w: boom", datafeed.ErrFetchFailed)},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "empty store range",
			body:       []byte(`{"symbol":"BTCUSDT","initial_balance":100,"risk_per_trade":0.02,"stop_loss_pct":0.01,"start":"2024-05-01T00:00:00Z","end":"2024-05-02T00:00:00Z"}`),
			fetcher:    &fakeFetcher{},
			store:      &fakeStore{err: repository.ErrNoCandles},
			wantStatus: http.StatusNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(tt.fetcher, tt.store, nil)
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/backtest", bytes.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			srv.Handler().ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d, body %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestHandleBacktestFetchFallback(t *testing.T) {
	srv := newTestServer(&fakeFetcher{candles: scenarioCandles()}, nil, nil)

	body := []byte(`{"symbol":"BTCUSDT","initial_balance":10,"risk_per_trade":0.02,"stop_loss_pct":0.01,"strategy":{"fast_period":2,"slow_period":4,"rsi_period":3,"atr_period":3,"overbought":100}}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/backtest", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body %s", w.Code, w.Body.String())
	}
	var resp backtestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Result.Trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(resp.Result.Trades))
	}
}

func TestHandleBacktestCSVUpload(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("symbol", "BTCUSDT")
	mw.WriteField("initial_balance", "10")
	mw.WriteField("risk_per_trade", "0.02")
	mw.WriteField("stop_loss_pct", "0.01")
	fw, err := mw.CreateFormFile("file", "candles.csv")
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	fw.Write([]byte("time,open,high,low,close,volume\n"))
	for i, c := range []string{"10", "10", "10", "10", "11", "12", "9", "9"} {
		fmt.Fprintf(fw, "%d,%s,%s,%s,%s,1\n", 1714521600+i*60, c, c, c, c)
	}
	mw.Close()

	srv := newTestServer(&fakeFetcher{}, nil, nil)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/backtest", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body %s", w.Code, w.Body.String())
	}
	var resp backtestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	// Default 8/21 strategy over eight candles never leaves warm-up.
	if len(resp.Result.Trades) != 0 {
		t.Fatalf("got %d trades, want 0 under default periods", len(resp.Result.Trades))
	}
}

func TestHandleBacktestCSVUploadMalformedRow(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("symbol", "BTCUSDT")
	mw.WriteField("initial_balance", "10")
	mw.WriteField("risk_per_trade", "0.02")
	mw.WriteField("stop_loss_pct", "0.01")
	fw, err := mw.CreateFormFile("file", "candles.csv")
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	fw.Write([]byte("time,open,high,low,close,volume\n1714521600,10,oops,10,10,1\n"))
	mw.Close()

	srv := newTestServer(&fakeFetcher{}, nil, nil)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/backtest", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	srv.Handler().ServeHTTP(w, req)

	// Corrupted candle data gets the same status as an out-of-order sequence.
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("got status %d, want 422, body %s", w.Code, w.Body.String())
	}
}

func TestHandleTradesCSVUnknownRun(t *testing.T) {
	srv := newTestServer(&fakeFetcher{}, nil, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/backtest/nope/trades.csv", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", w.Code)
	}
}

func TestHandleCandles(t *testing.T) {
	fetcher := &fakeFetcher{candles: scenarioCandles()}
	srv := newTestServer(fetcher, nil, nil)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/candles?symbol=BTCUSDT&interval=1m&limit=8", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body %s", w.Code, w.Body.String())
	}
	if fetcher.lastLimit != 8 {
		t.Fatalf("got limit %d, want 8", fetcher.lastLimit)
	}

	// Non-positive limits fall back to the default instead of reaching the
	// fetcher.
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/candles?symbol=BTCUSDT&limit=-5", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body %s", w.Code, w.Body.String())
	}
	if fetcher.lastLimit != 100 {
		t.Fatalf("got limit %d, want default 100", fetcher.lastLimit)
	}

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/candles", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing symbol: got status %d, want 400", w.Code)
	}

	srv = newTestServer(&fakeFetcher{err: errors.New("down")}, nil, nil)
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/candles?symbol=BTCUSDT", nil))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("fetch failure: got status %d, want 502", w.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	status := &fakeStatus{statuses: []monitor.SymbolStatus{{Symbol: "BTCUSDT", Decision: "hold"}}}
	srv := newTestServer(&fakeFetcher{}, nil, status)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d", w.Code)
	}
	var resp struct {
		Symbols []monitor.SymbolStatus `json:"symbols"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Symbols) != 1 || resp.Symbols[0].Symbol != "BTCUSDT" {
		t.Fatalf("unexpected status payload: %+v", resp)
	}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(&fakeFetcher{}, nil, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d", w.Code)
	}
}
