package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExitReason says why a simulated position was closed.
type ExitReason string

const (
	ReasonStopLoss   ExitReason = "stop-loss"
	ReasonSignalExit ExitReason = "signal-exit"
	ReasonEndOfData  ExitReason = "end-of-data"
)

// Trade is one closed round trip. Immutable once appended to a result.
type Trade struct {
	Time         time.Time       `json:"time"`
	Symbol       string          `json:"symbol"`
	Entry        decimal.Decimal `json:"entry"`
	Exit         decimal.Decimal `json:"exit"`
	Size         decimal.Decimal `json:"size"`
	Profit       decimal.Decimal `json:"profit"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Reason       ExitReason      `json:"reason"`
}
