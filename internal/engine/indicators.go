package engine

import (
	"github.com/shopspring/decimal"

	"tradesim/types"
)

var (
	one     = decimal.NewFromInt(1)
	two     = decimal.NewFromInt(2)
	hundred = decimal.NewFromInt(100)
)

// IndicatorState is the snapshot handed to the signal generator after each
// candle. A value is only meaningful when its defined flag is set.
type IndicatorState struct {
	EmaFast decimal.Decimal
	EmaSlow decimal.Decimal
	RSI     decimal.Decimal
	ATR     decimal.Decimal

	// EMA pair from the previous candle, used for cross detection.
	PrevEmaFast decimal.Decimal
	PrevEmaSlow decimal.Decimal

	// Volume average over the candles preceding the current one. Only
	// maintained for the optional volume entry filter.
	VolumeAvg decimal.Decimal

	EmaDefined     bool
	PrevEmaDefined bool
	RSIDefined     bool
	ATRDefined     bool
	VolumeDefined  bool
}

// Ready reports whether the warm-up window is satisfied: every core indicator
// defined and a previous EMA pair available for cross detection. The volume
// average is deliberately excluded; it only gates entries when its filter is
// both enabled and defined.
func (s IndicatorState) Ready() bool {
	return s.EmaDefined && s.PrevEmaDefined && s.RSIDefined && s.ATRDefined
}

// Indicators updates the full indicator set incrementally, one candle at a
// time. It carries only the recurrence state, so an update is O(1) no matter
// how much history preceded it.
type Indicators struct {
	cfg StrategyConfig

	count int

	// EMA seeding and recurrence.
	fastAlpha, slowAlpha decimal.Decimal
	fastSum, slowSum     decimal.Decimal
	emaFast, emaSlow     decimal.Decimal
	prevFast, prevSlow   decimal.Decimal

	// RSI: Wilder-smoothed average gain/loss.
	prevClose        decimal.Decimal
	deltas           int
	gainSum, lossSum decimal.Decimal
	avgGain, avgLoss decimal.Decimal

	// ATR: Wilder-smoothed true range. True ranges start at the second candle.
	trCount int
	trSum   decimal.Decimal
	atr     decimal.Decimal

	// Volume average, exponentially smoothed, excluding the current candle.
	volAlpha   decimal.Decimal
	volAvg     decimal.Decimal
	volPrev    decimal.Decimal
	volSamples int
}

func NewIndicators(cfg StrategyConfig) *Indicators {
	ind := &Indicators{
		cfg:       cfg,
		fastAlpha: two.Div(decimal.NewFromInt(int64(cfg.FastPeriod) + 1)),
		slowAlpha: two.Div(decimal.NewFromInt(int64(cfg.SlowPeriod) + 1)),
	}
	if cfg.VolumeWindow > 0 {
		ind.volAlpha = two.Div(decimal.NewFromInt(int64(cfg.VolumeWindow) + 1))
	}
	return ind
}

// Update folds the next candle into the indicator state.
func (in *Indicators) Update(c types.Candle) {
	in.count++
	n := in.count

	// Snapshot the EMA pair before this candle mutates it.
	if n >= in.cfg.SlowPeriod+1 {
		in.prevFast = in.emaFast
		in.prevSlow = in.emaSlow
	}

	in.updateEMA(c.Close, n)
	in.updateRSI(c.Close, n)
	in.updateATR(c, n)
	in.updateVolume(c.Volume, n)

	in.prevClose = c.Close
}

func (in *Indicators) updateEMA(close decimal.Decimal, n int) {
	switch {
	case n < in.cfg.FastPeriod:
		in.fastSum = in.fastSum.Add(close)
	case n == in.cfg.FastPeriod:
		in.fastSum = in.fastSum.Add(close)
		in.emaFast = in.fastSum.Div(decimal.NewFromInt(int64(in.cfg.FastPeriod)))
	default:
		in.emaFast = in.emaFast.Add(in.fastAlpha.Mul(close.Sub(in.emaFast)))
	}

	switch {
	case n < in.cfg.SlowPeriod:
		in.slowSum = in.slowSum.Add(close)
	case n == in.cfg.SlowPeriod:
		in.slowSum = in.slowSum.Add(close)
		in.emaSlow = in.slowSum.Div(decimal.NewFromInt(int64(in.cfg.SlowPeriod)))
	default:
		in.emaSlow = in.emaSlow.Add(in.slowAlpha.Mul(close.Sub(in.emaSlow)))
	}
}

func (in *Indicators) updateRSI(close decimal.Decimal, n int) {
	if n == 1 {
		return
	}
	delta := close.Sub(in.prevClose)
	gain, loss := decimal.Zero, decimal.Zero
	if delta.IsPositive() {
		gain = delta
	} else {
		loss = delta.Neg()
	}

	in.deltas++
	w := decimal.NewFromInt(int64(in.cfg.RSIPeriod))
	switch {
	case in.deltas < in.cfg.RSIPeriod:
		in.gainSum = in.gainSum.Add(gain)
		in.lossSum = in.lossSum.Add(loss)
	case in.deltas == in.cfg.RSIPeriod:
		in.gainSum = in.gainSum.Add(gain)
		in.lossSum = in.lossSum.Add(loss)
		in.avgGain = in.gainSum.Div(w)
		in.avgLoss = in.lossSum.Div(w)
	default:
		wm1 := decimal.NewFromInt(int64(in.cfg.RSIPeriod) - 1)
		in.avgGain = in.avgGain.Mul(wm1).Add(gain).Div(w)
		in.avgLoss = in.avgLoss.Mul(wm1).Add(loss).Div(w)
	}
}

func (in *Indicators) updateATR(c types.Candle, n int) {
	if n == 1 {
		return
	}
	tr := trueRange(c, in.prevClose, true)

	in.trCount++
	w := decimal.NewFromInt(int64(in.cfg.ATRPeriod))
	switch {
	case in.trCount < in.cfg.ATRPeriod:
		in.trSum = in.trSum.Add(tr)
	case in.trCount == in.cfg.ATRPeriod:
		in.trSum = in.trSum.Add(tr)
		in.atr = in.trSum.Div(w)
	default:
		wm1 := decimal.NewFromInt(int64(in.cfg.ATRPeriod) - 1)
		in.atr = in.atr.Mul(wm1).Add(tr).Div(w)
	}
}

func (in *Indicators) updateVolume(vol decimal.Decimal, n int) {
	if in.cfg.VolumeWindow <= 0 {
		return
	}
	// volPrev is the average over candles before the current one; the filter
	// compares the current candle's volume against it.
	in.volPrev = in.volAvg
	if n == 1 {
		in.volAvg = vol
		in.volSamples = 1
		return
	}
	in.volAvg = in.volAvg.Add(in.volAlpha.Mul(vol.Sub(in.volAvg)))
	in.volSamples++
}

// State returns the current snapshot.
func (in *Indicators) State() IndicatorState {
	st := IndicatorState{
		EmaDefined:     in.count >= in.cfg.SlowPeriod,
		PrevEmaDefined: in.count >= in.cfg.SlowPeriod+1,
		RSIDefined:     in.deltas >= in.cfg.RSIPeriod,
		ATRDefined:     in.trCount >= in.cfg.ATRPeriod,
	}
	if st.EmaDefined {
		st.EmaFast = in.emaFast
		st.EmaSlow = in.emaSlow
	}
	if st.PrevEmaDefined {
		st.PrevEmaFast = in.prevFast
		st.PrevEmaSlow = in.prevSlow
	}
	if st.RSIDefined {
		st.RSI = rsiValue(in.avgGain, in.avgLoss)
	}
	if st.ATRDefined {
		st.ATR = in.atr
	}
	if in.cfg.VolumeWindow > 0 && in.volSamples > in.cfg.VolumeWindow {
		st.VolumeAvg = in.volPrev
		st.VolumeDefined = true
	}
	return st
}

// rsiValue maps the smoothed averages to the bounded [0,100] oscillator.
// A zero average loss is defined as 100, not a division error.
func rsiValue(avgGain, avgLoss decimal.Decimal) decimal.Decimal {
	if avgLoss.IsZero() {
		return hundred
	}
	rs := avgGain.Div(avgLoss)
	return hundred.Sub(hundred.Div(one.Add(rs)))
}

// trueRange computes max(high-low, |high-prevClose|, |low-prevClose|). Without
// a previous close it degrades to the plain high-low range.
func trueRange(c types.Candle, prevClose decimal.Decimal, havePrev bool) decimal.Decimal {
	hl := c.High.Sub(c.Low)
	if !havePrev {
		return hl
	}
	tr := hl
	if d := c.High.Sub(prevClose).Abs(); d.GreaterThan(tr) {
		tr = d
	}
	if d := c.Low.Sub(prevClose).Abs(); d.GreaterThan(tr) {
		tr = d
	}
	return tr
}
