package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/types"
)

func readyState(prevFast, prevSlow, fast, slow, rsi string) IndicatorState {
	return IndicatorState{
		EmaFast:        decimal.RequireFromString(fast),
		EmaSlow:        decimal.RequireFromString(slow),
		PrevEmaFast:    decimal.RequireFromString(prevFast),
		PrevEmaSlow:    decimal.RequireFromString(prevSlow),
		RSI:            decimal.RequireFromString(rsi),
		EmaDefined:     true,
		PrevEmaDefined: true,
		RSIDefined:     true,
		ATRDefined:     true,
	}
}

func TestEvaluate(t *testing.T) {
	cfg := StrategyConfig{FastPeriod: 8, SlowPeriod: 21, RSIPeriod: 14, ATRPeriod: 14, Overbought: decimal.NewFromInt(70)}
	openPos := &Position{
		EntryPrice: decimal.NewFromInt(100),
		Size:       decimal.NewFromInt(1),
		StopPrice:  decimal.NewFromInt(99),
		OpenedAt:   testStart,
	}
	candle := func(close string) types.Candle {
		p := decimal.RequireFromString(close)
		return types.Candle{Open: p, High: p, Low: p, Close: p, Volume: decimal.NewFromInt(1), Timestamp: testStart.Add(time.Minute)}
	}

	tests := []struct {
		name       string
		state      IndicatorState
		candle     types.Candle
		pos        *Position
		want       Decision
		wantReason types.ExitReason
	}{
		{
			name:   "warm-up always holds",
			state:  IndicatorState{},
			candle: candle("100"),
			want:   Hold,
		},
		{
			name:   "cross-up enters",
			state:  readyState("10", "10.1", "10.3", "10.2", "55"),
			candle: candle("100"),
			want:   Enter,
		},
		{
			name:   "touching then diverging counts as a cross",
			state:  readyState("10", "10", "10.3", "10.2", "55"),
			candle: candle("100"),
			want:   Enter,
		},
		{
			name:   "no cross, no entry",
			state:  readyState("10.3", "10.2", "10.4", "10.2", "55"),
			candle: candle("100"),
			want:   Hold,
		},
		{
			name:   "overbought blocks entry",
			state:  readyState("10", "10.1", "10.3", "10.2", "75"),
			candle: candle("100"),
			want:   Hold,
		},
		{
			name:   "rsi exactly at threshold still enters",
			state:  readyState("10", "10.1", "10.3", "10.2", "70"),
			candle: candle("100"),
			want:   Enter,
		},
		{
			name:       "stop breach exits",
			state:      readyState("10", "10.1", "10.3", "10.2", "55"),
			candle:     candle("98"),
			pos:        openPos,
			want:       Exit,
			wantReason: types.ReasonStopLoss,
		},
		{
			name:       "close exactly at stop exits",
			state:      readyState("10", "10.1", "10.3", "10.2", "55"),
			candle:     candle("99"),
			pos:        openPos,
			want:       Exit,
			wantReason: types.ReasonStopLoss,
		},
		{
			name:       "stop breach wins over overbought",
			state:      readyState("10", "10.1", "10.3", "10.2", "90"),
			candle:     candle("98"),
			pos:        openPos,
			want:       Exit,
			wantReason: types.ReasonStopLoss,
		},
		{
			name:       "overbought exits open position",
			state:      readyState("10", "10.1", "10.3", "10.2", "75"),
			candle:     candle("120"),
			pos:        openPos,
			want:       Exit,
			wantReason: types.ReasonSignalExit,
		},
		{
			name:       "cross-down exits open position",
			state:      readyState("10.3", "10.2", "10.1", "10.2", "55"),
			candle:     candle("120"),
			pos:        openPos,
			want:       Exit,
			wantReason: types.ReasonSignalExit,
		},
		{
			name:   "open position with no trigger holds",
			state:  readyState("10.1", "10.2", "10.3", "10.2", "55"),
			candle: candle("120"),
			pos:    openPos,
			want:   Hold,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewSignalGenerator(cfg).Evaluate(tt.state, tt.candle, tt.pos)
			if got.Decision != tt.want {
				t.Fatalf("got decision %s, want %s", got.Decision, tt.want)
			}
			if got.Reason != tt.wantReason {
				t.Fatalf("got reason %q, want %q", got.Reason, tt.wantReason)
			}
		})
	}
}

func TestEvaluateVolumeFilter(t *testing.T) {
	cfg := StrategyConfig{
		FastPeriod: 8, SlowPeriod: 21, RSIPeriod: 14, ATRPeriod: 14,
		Overbought:       decimal.NewFromInt(70),
		VolumeMultiplier: decimal.NewFromInt(2),
		VolumeWindow:     20,
	}
	crossUp := readyState("10", "10.1", "10.3", "10.2", "55")
	withVolume := crossUp
	withVolume.VolumeAvg = decimal.NewFromInt(100)
	withVolume.VolumeDefined = true

	candle := func(vol string) types.Candle {
		p := decimal.NewFromInt(10)
		return types.Candle{Open: p, High: p, Low: p, Close: p, Volume: decimal.RequireFromString(vol), Timestamp: testStart}
	}

	tests := []struct {
		name   string
		state  IndicatorState
		candle types.Candle
		want   Decision
	}{
		{name: "volume above threshold enters", state: withVolume, candle: candle("250"), want: Enter},
		{name: "volume at threshold holds", state: withVolume, candle: candle("200"), want: Hold},
		{name: "volume below threshold holds", state: withVolume, candle: candle("50"), want: Hold},
		{name: "filter inert until average defined", state: crossUp, candle: candle("1"), want: Enter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewSignalGenerator(cfg).Evaluate(tt.state, tt.candle, nil)
			if got.Decision != tt.want {
				t.Fatalf("got decision %s, want %s", got.Decision, tt.want)
			}
		})
	}
}
