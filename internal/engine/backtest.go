package engine

import (
	"errors"
	"fmt"

	"tradesim/types"
)

// Data errors: the candle sequence itself is unusable. No partial result is
// ever returned for these.
var (
	ErrCandleOrder = errors.New("candle timestamps must strictly increase")
	ErrBadPrice    = errors.New("candle prices must be positive")
)

type phase int

const (
	phaseWarmup phase = iota
	phaseActive
	phaseDone
)

// Backtester drives one simulation run over an ordered candle sequence. Each
// run owns its own indicator, position and ledger state, so concurrent runs
// never share anything.
type Backtester struct {
	cfg        Config
	indicators *Indicators
	signals    *SignalGenerator
	positions  *positionManager
	ledger     *ledger
	phase      phase

	// Progress, when set, is called after every processed candle.
	Progress func(done, total int)
}

// NewBacktester validates the configuration and assembles a run. A validation
// error here means the simulation never starts.
func NewBacktester(cfg Config) (*Backtester, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Backtester{
		cfg:        cfg,
		indicators: NewIndicators(cfg.Strategy),
		signals:    NewSignalGenerator(cfg.Strategy),
		positions:  newPositionManager(cfg.RiskPerTrade, cfg.StopLossPct),
		ledger:     newLedger(cfg.InitialBalance),
	}, nil
}

// Run makes a single pass over the candles and returns the result. An empty
// sequence, or one shorter than the warm-up window, completes normally with
// zero trades.
func (b *Backtester) Run(candles []types.Candle) (*types.BacktestResult, error) {
	if err := validateSequence(candles); err != nil {
		return nil, err
	}

	last := len(candles) - 1
	for i, c := range candles {
		b.indicators.Update(c)
		st := b.indicators.State()
		if b.phase == phaseWarmup && st.Ready() {
			b.phase = phaseActive
		}

		sig := b.signals.Evaluate(st, c, b.positions.Current())
		switch sig.Decision {
		case Enter:
			// A position opened on the final candle would be force-closed on
			// the same close for zero profit; skip it.
			if i < last {
				b.positions.Open(b.ledger.Balance(), c.Close, c.Timestamp)
			}
		case Exit:
			pos := b.positions.Close()
			exitPrice := c.Close
			if sig.Reason == types.ReasonStopLoss {
				exitPrice = pos.StopPrice
			}
			b.ledger.RecordClose(c.Timestamp, b.symbolFor(c), pos, exitPrice, sig.Reason)
		}

		if i == last {
			if pos := b.positions.Close(); pos != nil {
				b.ledger.RecordClose(c.Timestamp, b.symbolFor(c), pos, c.Close, types.ReasonEndOfData)
			}
		}

		if b.Progress != nil {
			b.Progress(i+1, len(candles))
		}
	}
	b.phase = phaseDone

	return &types.BacktestResult{
		InitialBalance: b.cfg.InitialBalance,
		FinalBalance:   b.ledger.Balance(),
		Trades:         b.ledger.Trades(),
	}, nil
}

func (b *Backtester) symbolFor(c types.Candle) string {
	if b.cfg.Symbol != "" {
		return b.cfg.Symbol
	}
	return c.Ticker
}

// validateSequence rejects corrupted input up front: timestamps must strictly
// increase and every price must be positive. The error names the offending
// candle so the caller can fix the source data.
func validateSequence(candles []types.Candle) error {
	for i, c := range candles {
		if !c.Open.IsPositive() || !c.High.IsPositive() || !c.Low.IsPositive() || !c.Close.IsPositive() {
			return fmt.Errorf("candle %d at %s: %w", i, c.Timestamp.UTC(), ErrBadPrice)
		}
		if i > 0 && !c.Timestamp.After(candles[i-1].Timestamp) {
			return fmt.Errorf("candle %d at %s: %w", i, c.Timestamp.UTC(), ErrCandleOrder)
		}
	}
	return nil
}

// IsValidationError reports whether err is a configuration problem caught at
// the input boundary.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrNonPositiveBalance) ||
		errors.Is(err, ErrRiskOutOfRange) ||
		errors.Is(err, ErrStopOutOfRange) ||
		errors.Is(err, ErrBadPeriods) ||
		errors.Is(err, ErrBadThreshold)
}

// IsDataError reports whether err means the candle sequence was corrupted.
func IsDataError(err error) bool {
	return errors.Is(err, ErrCandleOrder) || errors.Is(err, ErrBadPrice)
}
