package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Configuration errors. All of them abort a run before any candle is touched.
var (
	ErrNonPositiveBalance = errors.New("initial balance must be positive")
	ErrRiskOutOfRange     = errors.New("risk per trade must be in (0,1]")
	ErrStopOutOfRange     = errors.New("stop loss pct must be in (0,1]")
	ErrBadPeriods         = errors.New("invalid indicator periods")
	ErrBadThreshold       = errors.New("overbought threshold must be positive")
)

// StrategyConfig holds the indicator periods and signal thresholds for a run.
type StrategyConfig struct {
	FastPeriod int
	SlowPeriod int
	RSIPeriod  int
	ATRPeriod  int

	// Entry is blocked (and an open position exited) while the oscillator
	// exceeds Overbought.
	Overbought decimal.Decimal

	// VolumeMultiplier > 0 enables the volume entry filter: the entry candle's
	// volume must exceed VolumeMultiplier times the recent volume average.
	VolumeMultiplier decimal.Decimal
	VolumeWindow     int
}

// DefaultStrategy mirrors the conventional parameters the bot shipped with:
// 8/21 EMA crossover, 14-period RSI and ATR, overbought at 70, volume filter off.
func DefaultStrategy() StrategyConfig {
	return StrategyConfig{
		FastPeriod:   8,
		SlowPeriod:   21,
		RSIPeriod:    14,
		ATRPeriod:    14,
		Overbought:   decimal.NewFromInt(70),
		VolumeWindow: 20,
	}
}

// Warmup returns the number of candles that must be consumed before every
// indicator is defined and a previous EMA pair exists for cross detection.
func (s StrategyConfig) Warmup() int {
	w := s.SlowPeriod + 1
	if n := s.RSIPeriod + 1; n > w {
		w = n
	}
	if n := s.ATRPeriod + 1; n > w {
		w = n
	}
	return w
}

func (s StrategyConfig) validate() error {
	if s.FastPeriod < 1 || s.SlowPeriod < 1 || s.RSIPeriod < 1 || s.ATRPeriod < 1 {
		return fmt.Errorf("%w: periods must be >= 1", ErrBadPeriods)
	}
	if s.FastPeriod >= s.SlowPeriod {
		return fmt.Errorf("%w: fast period %d must be below slow period %d", ErrBadPeriods, s.FastPeriod, s.SlowPeriod)
	}
	if !s.Overbought.IsPositive() {
		return ErrBadThreshold
	}
	if !s.VolumeMultiplier.IsZero() && s.VolumeWindow < 1 {
		return fmt.Errorf("%w: volume window must be >= 1 when the volume filter is enabled", ErrBadPeriods)
	}
	return nil
}

// Config fully describes one backtest run.
type Config struct {
	Symbol         string
	InitialBalance decimal.Decimal
	RiskPerTrade   decimal.Decimal
	StopLossPct    decimal.Decimal
	Strategy       StrategyConfig
}

// Validate enforces the input boundary: it must pass before any simulation
// work begins.
func (c Config) Validate() error {
	if !c.InitialBalance.IsPositive() {
		return fmt.Errorf("%w: got %s", ErrNonPositiveBalance, c.InitialBalance)
	}
	if !c.RiskPerTrade.IsPositive() || c.RiskPerTrade.GreaterThan(one) {
		return fmt.Errorf("%w: got %s", ErrRiskOutOfRange, c.RiskPerTrade)
	}
	if !c.StopLossPct.IsPositive() || c.StopLossPct.GreaterThan(one) {
		return fmt.Errorf("%w: got %s", ErrStopOutOfRange, c.StopLossPct)
	}
	return c.Strategy.validate()
}
