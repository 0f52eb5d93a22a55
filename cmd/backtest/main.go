package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/shopspring/decimal"

	"tradesim/internal/datafeed"
	"tradesim/internal/engine"
	"tradesim/internal/export"
	"tradesim/types"
)

func main() {
	var (
		csvPath    = flag.String("csv", "", "path to a candle CSV file (time,open,high,low,close[,volume])")
		symbol     = flag.String("symbol", "BTCUSDT", "symbol the candles belong to")
		interval   = flag.String("interval", "1h", "candle interval label")
		balance    = flag.Float64("balance", 10000, "initial account balance")
		risk       = flag.Float64("risk", 0.02, "fraction of balance risked per trade")
		stop       = flag.Float64("stop", 0.05, "stop loss as a fraction of entry price")
		fast       = flag.Int("fast", 8, "fast EMA period")
		slow       = flag.Int("slow", 21, "slow EMA period")
		rsi        = flag.Int("rsi", 14, "RSI period")
		atr        = flag.Int("atr", 14, "ATR period")
		overbought = flag.Float64("overbought", 70, "RSI overbought threshold")
		volMult    = flag.Float64("volume-mult", 0, "volume filter multiplier, 0 disables the filter")
		outPath    = flag.String("out", "", "write the trade log as CSV to this path")
	)
	flag.Parse()

	if *csvPath == "" {
		log.Fatal("missing -csv: a candle file is required")
	}

	file, err := os.Open(*csvPath)
	if err != nil {
		log.Fatal(err)
	}
	iv, ok := types.ConvertInterval[*interval]
	if !ok {
		iv = types.Hour
	}
	candles, err := datafeed.ParseCSV(file, *symbol, iv)
	file.Close()
	if err != nil {
		log.Fatal(err)
	}

	cfg := engine.Config{
		Symbol:         *symbol,
		InitialBalance: decimal.NewFromFloat(*balance),
		RiskPerTrade:   decimal.NewFromFloat(*risk),
		StopLossPct:    decimal.NewFromFloat(*stop),
		Strategy: engine.StrategyConfig{
			FastPeriod:       *fast,
			SlowPeriod:       *slow,
			RSIPeriod:        *rsi,
			ATRPeriod:        *atr,
			Overbought:       decimal.NewFromFloat(*overbought),
			VolumeMultiplier: decimal.NewFromFloat(*volMult),
			VolumeWindow:     20,
		},
	}
	bt, err := engine.NewBacktester(cfg)
	if err != nil {
		log.Fatal(err)
	}

	bar := initProgressBar(len(candles))
	bt.Progress = func(done, total int) {
		bar.Set(done)
	}

	res, err := bt.Run(candles)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println()
	printReport(res)

	if *outPath != "" {
		if err := export.WriteTradesFile(*outPath, res.Trades); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("trade log written to %s\n", *outPath)
	}
}

func printReport(res *types.BacktestResult) {
	s := engine.Summarize(res)

	fmt.Println("==================== RESULT ====================")
	fmt.Printf("%-24s %s\n", "Initial balance:", res.InitialBalance)
	fmt.Printf("%-24s %s\n", "Final balance:", res.FinalBalance)
	fmt.Printf("%-24s %s\n", "Net profit:", s.NetProfit)
	fmt.Printf("%-24s %d\n", "Trades:", s.TotalTrades)
	fmt.Printf("%-24s %d / %d\n", "Wins / losses:", s.Wins, s.Losses)
	fmt.Printf("%-24s %s\n", "Win rate:", s.WinRate)
	fmt.Printf("%-24s %s\n", "Avg win:", s.AvgWin)
	fmt.Printf("%-24s %s\n", "Avg loss:", s.AvgLoss)
	fmt.Printf("%-24s %s\n", "Profit factor:", s.ProfitFactor)
	fmt.Printf("%-24s %s\n", "Max drawdown:", s.MaxDrawdown)
	fmt.Printf("%-24s %d\n", "Max consecutive losses:", s.MaxConsecutiveLosses)
	fmt.Println("================================================")
}

func initProgressBar(maxTicks int) *progressbar.ProgressBar {
	return progressbar.NewOptions(maxTicks,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetDescription("Backtesting in progress..."),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}
