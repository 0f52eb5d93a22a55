package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"tradesim/types"
)

// ledger applies close events to the running balance and keeps the
// append-only trade log. Later entries are sized off the post-trade balance,
// so profits and losses compound.
type ledger struct {
	balance decimal.Decimal
	trades  []types.Trade
}

func newLedger(initialBalance decimal.Decimal) *ledger {
	return &ledger{balance: initialBalance}
}

func (l *ledger) Balance() decimal.Decimal { return l.balance }

func (l *ledger) Trades() []types.Trade { return l.trades }

// RecordClose books the round trip: profit = (exit - entry) * size, balance
// moves by exactly that profit.
func (l *ledger) RecordClose(ts time.Time, symbol string, pos *Position, exitPrice decimal.Decimal, reason types.ExitReason) types.Trade {
	profit := exitPrice.Sub(pos.EntryPrice).Mul(pos.Size)
	l.balance = l.balance.Add(profit)

	trade := types.Trade{
		Time:         ts,
		Symbol:       symbol,
		Entry:        pos.EntryPrice,
		Exit:         exitPrice,
		Size:         pos.Size,
		Profit:       profit,
		BalanceAfter: l.balance,
		Reason:       reason,
	}
	l.trades = append(l.trades, trade)
	return trade
}
