package engine

import (
	"tradesim/types"
)

// Decision is the discrete outcome of evaluating one candle.
type Decision int

const (
	Hold Decision = iota
	Enter
	Exit
)

func (d Decision) String() string {
	switch d {
	case Enter:
		return "enter"
	case Exit:
		return "exit"
	default:
		return "hold"
	}
}

// Signal pairs a decision with the reason it was made. Reason is only set for
// exits; Note is a human-readable explanation for either direction.
type Signal struct {
	Decision Decision
	Reason   types.ExitReason
	Note     string
}

// SignalGenerator maps indicator state, the current candle and the open
// position (if any) to a decision. It holds no per-candle state of its own.
type SignalGenerator struct {
	cfg StrategyConfig
}

func NewSignalGenerator(cfg StrategyConfig) *SignalGenerator {
	return &SignalGenerator{cfg: cfg}
}

// Evaluate applies the crossover policy. During warm-up it always holds,
// regardless of price action.
func (g *SignalGenerator) Evaluate(st IndicatorState, c types.Candle, pos *Position) Signal {
	if !st.Ready() {
		return Signal{Decision: Hold, Note: "indicators warming up"}
	}

	if pos != nil {
		// Stop breach wins over every other exit trigger.
		if c.Close.LessThanOrEqual(pos.StopPrice) {
			return Signal{Decision: Exit, Reason: types.ReasonStopLoss, Note: "close breached stop price"}
		}
		if st.RSI.GreaterThan(g.cfg.Overbought) {
			return Signal{Decision: Exit, Reason: types.ReasonSignalExit, Note: "oscillator overbought"}
		}
		if crossedDown(st) {
			return Signal{Decision: Exit, Reason: types.ReasonSignalExit, Note: "fast EMA crossed below slow"}
		}
		return Signal{Decision: Hold, Note: "position open, no exit trigger"}
	}

	if crossedUp(st) && !st.RSI.GreaterThan(g.cfg.Overbought) && g.volumeOK(st, c) {
		return Signal{Decision: Enter, Note: "fast EMA crossed above slow"}
	}
	return Signal{Decision: Hold, Note: "no entry trigger"}
}

func crossedUp(st IndicatorState) bool {
	return st.PrevEmaFast.LessThanOrEqual(st.PrevEmaSlow) && st.EmaFast.GreaterThan(st.EmaSlow)
}

func crossedDown(st IndicatorState) bool {
	return st.PrevEmaFast.GreaterThanOrEqual(st.PrevEmaSlow) && st.EmaFast.LessThan(st.EmaSlow)
}

// volumeOK applies the optional volume filter. The filter only bites once it
// is enabled and its average has enough history behind it.
func (g *SignalGenerator) volumeOK(st IndicatorState, c types.Candle) bool {
	if g.cfg.VolumeMultiplier.IsZero() || !st.VolumeDefined {
		return true
	}
	return c.Volume.GreaterThan(st.VolumeAvg.Mul(g.cfg.VolumeMultiplier))
}
