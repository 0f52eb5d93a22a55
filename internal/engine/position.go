package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the single open trade. The stop price is fixed at open and
// never recomputed.
type Position struct {
	EntryPrice decimal.Decimal
	Size       decimal.Decimal
	StopPrice  decimal.Decimal
	OpenedAt   time.Time
}

// positionManager owns the one-slot position and the fixed-fractional sizing
// rule. Modeling the slot as a nullable pointer makes the at-most-one-open
// invariant structural.
type positionManager struct {
	riskPerTrade decimal.Decimal
	stopLossPct  decimal.Decimal
	open         *Position
}

func newPositionManager(riskPerTrade, stopLossPct decimal.Decimal) *positionManager {
	return &positionManager{riskPerTrade: riskPerTrade, stopLossPct: stopLossPct}
}

func (pm *positionManager) Current() *Position { return pm.open }

// Open sizes and opens a position so that a stop-loss fill loses
// balance*riskPerTrade. When that size's notional exceeds the balance, the
// size is capped at a full-balance position instead (which risks strictly
// less than the configured fraction). A nil return means the entry was
// rejected and the manager stayed flat; that is a modeled outcome, not an
// error.
func (pm *positionManager) Open(balance, price decimal.Decimal, ts time.Time) *Position {
	if pm.open != nil {
		return nil
	}
	if !balance.IsPositive() || !price.IsPositive() {
		return nil
	}

	size := balance.Mul(pm.riskPerTrade).Div(price.Mul(pm.stopLossPct))
	if size.Mul(price).GreaterThan(balance) {
		size = balance.Div(price)
	}
	if !size.IsPositive() {
		return nil
	}

	pm.open = &Position{
		EntryPrice: price,
		Size:       size,
		StopPrice:  price.Mul(one.Sub(pm.stopLossPct)),
		OpenedAt:   ts,
	}
	return pm.open
}

// Close releases the slot and returns the position that was open, or nil.
func (pm *positionManager) Close() *Position {
	pos := pm.open
	pm.open = nil
	return pos
}
