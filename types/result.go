package types

import "github.com/shopspring/decimal"

// BacktestResult is the full outcome of one simulation run.
type BacktestResult struct {
	InitialBalance decimal.Decimal `json:"initial_balance"`
	FinalBalance   decimal.Decimal `json:"final_balance"`
	Trades         []Trade         `json:"trades"`
}
