package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tradesim/internal/engine"
	"tradesim/types"
)

type stubSource struct {
	candles []types.Candle
	err     error
	calls   int
}

func (s *stubSource) Klines(ctx context.Context, symbol string, interval types.Interval, limit int) ([]types.Candle, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.candles, nil
}

func monitorCandles(closes ...string) []types.Candle {
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

func watchStrategy() engine.StrategyConfig {
	return engine.StrategyConfig{
		FastPeriod: 2,
		SlowPeriod: 4,
		RSIPeriod:  3,
		ATRPeriod:  3,
		Overbought: decimal.NewFromInt(100),
	}
}

func TestWatcherDetectsEntrySignal(t *testing.T) {
	// The last candle completes a cross-up, so the advisory decision is enter.
	source := &stubSource{candles: monitorCandles("10", "10", "10", "10", "11")}
	w := NewWatcher(source, watchStrategy(), []string{"BTCUSDT"}, types.OneMinute, 10, time.Minute, zerolog.Nop())

	var updates []SymbolStatus
	w.OnUpdate = func(st SymbolStatus) { updates = append(updates, st) }

	w.pollOnce(context.Background())

	status := w.Status()
	if len(status) != 1 {
		t.Fatalf("got %d statuses, want 1", len(status))
	}
	if status[0].Decision != "enter" {
		t.Fatalf("got decision %q, want enter", status[0].Decision)
	}
	if !status[0].Close.Equal(decimal.NewFromInt(11)) {
		t.Fatalf("got close %s, want 11", status[0].Close)
	}
	if len(updates) != 1 || updates[0].Symbol != "BTCUSDT" {
		t.Fatalf("OnUpdate not invoked with the refreshed status: %+v", updates)
	}
}

func TestWatcherHoldsDuringWarmup(t *testing.T) {
	source := &stubSource{candles: monitorCandles("10", "10", "10")}
	w := NewWatcher(source, watchStrategy(), []string{"BTCUSDT"}, types.OneMinute, 10, time.Minute, zerolog.Nop())

	w.pollOnce(context.Background())

	status := w.Status()
	if len(status) != 1 {
		t.Fatalf("got %d statuses, want 1", len(status))
	}
	if status[0].Decision != "hold" {
		t.Fatalf("got decision %q, want hold", status[0].Decision)
	}
}

func TestWatcherKeepsLastStatusOnFetchError(t *testing.T) {
	source := &stubSource{candles: monitorCandles("10", "10", "10", "10", "11")}
	w := NewWatcher(source, watchStrategy(), []string{"BTCUSDT"}, types.OneMinute, 10, time.Minute, zerolog.Nop())

	w.pollOnce(context.Background())
	source.err = errors.New("upstream down")
	w.pollOnce(context.Background())

	status := w.Status()
	if len(status) != 1 {
		t.Fatalf("got %d statuses, want the last good one", len(status))
	}
	if status[0].Decision != "enter" {
		t.Fatalf("got decision %q, want the last good enter", status[0].Decision)
	}
}

func TestWatcherRunStopsOnCancel(t *testing.T) {
	source := &stubSource{candles: monitorCandles("10", "10", "10", "10", "11")}
	w := NewWatcher(source, watchStrategy(), []string{"BTCUSDT"}, types.OneMinute, 10, 10*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("got err %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop after cancel")
	}
	if source.calls < 1 {
		t.Fatal("watcher never polled")
	}
}

func TestWatcherRaisesLimitToCoverWarmup(t *testing.T) {
	source := &stubSource{}
	w := NewWatcher(source, watchStrategy(), []string{"BTCUSDT"}, types.OneMinute, 1, time.Minute, zerolog.Nop())
	if want := watchStrategy().Warmup() + 1; w.limit != want {
		t.Fatalf("got limit %d, want %d", w.limit, want)
	}
}
