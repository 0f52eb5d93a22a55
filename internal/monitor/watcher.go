package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tradesim/internal/engine"
	"tradesim/internal/metrics"
	"tradesim/types"
)

// CandleSource supplies the most recent candles for a symbol, oldest first.
type CandleSource interface {
	Klines(ctx context.Context, symbol string, interval types.Interval, limit int) ([]types.Candle, error)
}

// SymbolStatus is the latest advisory evaluation for one watched symbol.
type SymbolStatus struct {
	Symbol    string          `json:"symbol"`
	Decision  string          `json:"decision"`
	Note      string          `json:"note"`
	Close     decimal.Decimal `json:"close"`
	RSI       decimal.Decimal `json:"rsi"`
	EmaFast   decimal.Decimal `json:"ema_fast"`
	EmaSlow   decimal.Decimal `json:"ema_slow"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Watcher polls a candle source and evaluates the strategy on the latest
// window for each symbol. It is advisory only: no positions are opened and no
// balance is at stake, so every evaluation runs against an empty slot.
type Watcher struct {
	source   CandleSource
	strategy engine.StrategyConfig
	symbols  []string
	interval types.Interval
	limit    int
	poll     time.Duration
	log      zerolog.Logger

	mu     sync.RWMutex
	status map[string]SymbolStatus

	// OnUpdate, when set, receives every refreshed status. Used by the web
	// layer to push live updates.
	OnUpdate func(SymbolStatus)
}

func NewWatcher(source CandleSource, strategy engine.StrategyConfig, symbols []string, interval types.Interval, limit int, poll time.Duration, log zerolog.Logger) *Watcher {
	if limit < strategy.Warmup()+1 {
		limit = strategy.Warmup() + 1
	}
	return &Watcher{
		source:   source,
		strategy: strategy,
		symbols:  symbols,
		interval: interval,
		limit:    limit,
		poll:     poll,
		log:      log.With().Str("component", "monitor").Logger(),
		status:   make(map[string]SymbolStatus),
	}
}

// Run polls until the context is canceled. The first cycle fires immediately.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	w.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.pollOnce(ctx)
		}
	}
}

func (w *Watcher) pollOnce(ctx context.Context) {
	for _, symbol := range w.symbols {
		if ctx.Err() != nil {
			return
		}
		metrics.MonitorPollsTotal.WithLabelValues(symbol).Inc()

		candles, err := w.source.Klines(ctx, symbol, w.interval, w.limit)
		if err != nil {
			metrics.MonitorFetchErrorsTotal.WithLabelValues(symbol).Inc()
			w.log.Warn().Err(err).Str("symbol", symbol).Msg("candle fetch failed")
			continue
		}
		if len(candles) == 0 {
			w.log.Warn().Str("symbol", symbol).Msg("candle source returned nothing")
			continue
		}

		w.evaluate(symbol, candles)
	}
}

func (w *Watcher) evaluate(symbol string, candles []types.Candle) {
	indicators := engine.NewIndicators(w.strategy)
	for _, c := range candles {
		indicators.Update(c)
	}
	st := indicators.State()
	last := candles[len(candles)-1]
	sig := engine.NewSignalGenerator(w.strategy).Evaluate(st, last, nil)

	status := SymbolStatus{
		Symbol:    symbol,
		Decision:  sig.Decision.String(),
		Note:      sig.Note,
		Close:     last.Close,
		RSI:       st.RSI,
		EmaFast:   st.EmaFast,
		EmaSlow:   st.EmaSlow,
		UpdatedAt: time.Now().UTC(),
	}

	w.mu.Lock()
	w.status[symbol] = status
	w.mu.Unlock()

	metrics.MonitorSignalsTotal.WithLabelValues(symbol, status.Decision).Inc()
	if sig.Decision != engine.Hold {
		w.log.Info().
			Str("symbol", symbol).
			Str("decision", status.Decision).
			Str("close", last.Close.String()).
			Str("rsi", st.RSI.String()).
			Msg("advisory signal")
	}
	if w.OnUpdate != nil {
		w.OnUpdate(status)
	}
}

// Status returns a snapshot of the latest evaluation per symbol.
func (w *Watcher) Status() []SymbolStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]SymbolStatus, 0, len(w.status))
	for _, symbol := range w.symbols {
		if st, ok := w.status[symbol]; ok {
			out = append(out, st)
		}
	}
	return out
}
