// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"tradesim/internal/engine"
)

// App captures process-wide runtime settings.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Backtest holds the account-level simulation parameters.
type Backtest struct {
	Symbol         string  `yaml:"symbol"`
	InitialBalance float64 `yaml:"initial_balance"`
	RiskPerTrade   float64 `yaml:"risk_per_trade"`
	StopLossPct    float64 `yaml:"stop_loss_pct"`
}

// Strategy groups the tunable indicator knobs.
type Strategy struct {
	FastPeriod       int     `yaml:"fast_period"`
	SlowPeriod       int     `yaml:"slow_period"`
	RSIPeriod        int     `yaml:"rsi_period"`
	ATRPeriod        int     `yaml:"atr_period"`
	Overbought       float64 `yaml:"overbought"`
	VolumeMultiplier float64 `yaml:"volume_multiplier"`
	VolumeWindow     int     `yaml:"volume_window"`
}

// Feed configures the REST candle source and the live monitor.
type Feed struct {
	BaseURL     string   `yaml:"base_url"`
	Symbols     []string `yaml:"symbols"`
	Interval    string   `yaml:"interval"`
	PollSeconds int      `yaml:"poll_seconds"`
	KlineLimit  int      `yaml:"kline_limit"`
}

// Database points at the candle store. URL may be empty, the store is
// optional.
type Database struct {
	URL string `yaml:"url"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App      App      `yaml:"app"`
	Backtest Backtest `yaml:"backtest"`
	Strategy Strategy `yaml:"strategy"`
	Feed     Feed     `yaml:"feed"`
	Database Database `yaml:"database"`
}

// Load reads a YAML file from disk and hydrates a Config struct. DATABASE_URL
// in the environment overrides the file so deployments never write secrets to
// disk.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	config.applyDefaults()

	if url := os.Getenv("DATABASE_URL"); url != "" {
		config.Database.URL = url
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.App.ListenAddr == "" {
		c.App.ListenAddr = ":8080"
	}
	if c.App.MetricsAddr == "" {
		c.App.MetricsAddr = ":9090"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Feed.Interval == "" {
		c.Feed.Interval = "1h"
	}
	if c.Feed.PollSeconds <= 0 {
		c.Feed.PollSeconds = 60
	}
	if c.Feed.KlineLimit <= 0 {
		c.Feed.KlineLimit = 500
	}
	if c.Strategy.FastPeriod == 0 && c.Strategy.SlowPeriod == 0 {
		def := engine.DefaultStrategy()
		c.Strategy.FastPeriod = def.FastPeriod
		c.Strategy.SlowPeriod = def.SlowPeriod
		c.Strategy.RSIPeriod = def.RSIPeriod
		c.Strategy.ATRPeriod = def.ATRPeriod
		c.Strategy.Overbought, _ = def.Overbought.Float64()
		c.Strategy.VolumeWindow = def.VolumeWindow
	}
}

// EngineConfig converts the YAML view into the engine's decimal-typed
// configuration. Validation stays with the engine.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		Symbol:         c.Backtest.Symbol,
		InitialBalance: decimal.NewFromFloat(c.Backtest.InitialBalance),
		RiskPerTrade:   decimal.NewFromFloat(c.Backtest.RiskPerTrade),
		StopLossPct:    decimal.NewFromFloat(c.Backtest.StopLossPct),
		Strategy: engine.StrategyConfig{
			FastPeriod:       c.Strategy.FastPeriod,
			SlowPeriod:       c.Strategy.SlowPeriod,
			RSIPeriod:        c.Strategy.RSIPeriod,
			ATRPeriod:        c.Strategy.ATRPeriod,
			Overbought:       decimal.NewFromFloat(c.Strategy.Overbought),
			VolumeMultiplier: decimal.NewFromFloat(c.Strategy.VolumeMultiplier),
			VolumeWindow:     c.Strategy.VolumeWindow,
		},
	}
}
