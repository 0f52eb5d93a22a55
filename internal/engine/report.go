package engine

import (
	"github.com/shopspring/decimal"

	"tradesim/types"
)

// Summary condenses a finished run into the headline trade-level metrics.
type Summary struct {
	TotalTrades          int             `json:"total_trades"`
	Wins                 int             `json:"wins"`
	Losses               int             `json:"losses"`
	WinRate              decimal.Decimal `json:"win_rate"`
	NetProfit            decimal.Decimal `json:"net_profit"`
	AvgWin               decimal.Decimal `json:"avg_win"`
	AvgLoss              decimal.Decimal `json:"avg_loss"`
	ProfitFactor         decimal.Decimal `json:"profit_factor"`
	MaxDrawdown          decimal.Decimal `json:"max_drawdown"`
	MaxConsecutiveLosses int             `json:"max_consecutive_losses"`
}

// Summarize computes Summary from a result. Drawdown is measured on the
// balance path (initial balance followed by every balance_after), as the
// largest peak-to-trough drop.
func Summarize(res *types.BacktestResult) Summary {
	var s Summary
	if res == nil {
		return s
	}
	s.TotalTrades = len(res.Trades)
	s.NetProfit = res.FinalBalance.Sub(res.InitialBalance)

	var grossWin, grossLoss decimal.Decimal
	lossStreak := 0
	peak := res.InitialBalance
	for _, t := range res.Trades {
		if t.Profit.IsPositive() {
			s.Wins++
			grossWin = grossWin.Add(t.Profit)
			lossStreak = 0
		} else {
			s.Losses++
			grossLoss = grossLoss.Add(t.Profit.Neg())
			lossStreak++
			if lossStreak > s.MaxConsecutiveLosses {
				s.MaxConsecutiveLosses = lossStreak
			}
		}

		if t.BalanceAfter.GreaterThan(peak) {
			peak = t.BalanceAfter
		}
		if dd := peak.Sub(t.BalanceAfter); dd.GreaterThan(s.MaxDrawdown) {
			s.MaxDrawdown = dd
		}
	}

	if s.TotalTrades > 0 {
		s.WinRate = decimal.NewFromInt(int64(s.Wins)).Div(decimal.NewFromInt(int64(s.TotalTrades)))
	}
	if s.Wins > 0 {
		s.AvgWin = grossWin.Div(decimal.NewFromInt(int64(s.Wins)))
	}
	if s.Losses > 0 {
		s.AvgLoss = grossLoss.Div(decimal.NewFromInt(int64(s.Losses)))
	}
	if grossLoss.IsPositive() {
		s.ProfitFactor = grossWin.Div(grossLoss)
	}
	return s
}
