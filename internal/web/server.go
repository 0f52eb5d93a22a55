package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tradesim/internal/datafeed"
	"tradesim/internal/engine"
	"tradesim/internal/export"
	"tradesim/internal/metrics"
	"tradesim/internal/monitor"
	"tradesim/internal/repository"
	"tradesim/types"
)

// CandleFetcher pulls recent candles from the exchange.
type CandleFetcher interface {
	Klines(ctx context.Context, symbol string, interval types.Interval, limit int) ([]types.Candle, error)
}

// CandleStore reads persisted candles. Optional, the server works without one.
type CandleStore interface {
	GetCandles(symbol string, interval types.Interval, start, end time.Time, ctx context.Context) ([]types.Candle, error)
}

// StatusProvider exposes the live monitor's latest evaluations.
type StatusProvider interface {
	Status() []monitor.SymbolStatus
}

// Server is the HTTP front of the simulator. Finished runs are kept in memory
// keyed by run id so their trade logs can be downloaded later.
type Server struct {
	fetcher CandleFetcher
	store   CandleStore
	status  StatusProvider
	log     zerolog.Logger
	hub     *hub

	mu   sync.RWMutex
	runs map[string]*types.BacktestResult

	router *gin.Engine
}

func NewServer(fetcher CandleFetcher, store CandleStore, status StatusProvider, log zerolog.Logger) *Server {
	s := &Server{
		fetcher: fetcher,
		store:   store,
		status:  status,
		log:     log.With().Str("component", "web").Logger(),
		hub:     newHub(),
		runs:    make(map[string]*types.BacktestResult),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.POST("/backtest", s.handleBacktest)
	api.GET("/backtest/:id/trades.csv", s.handleTradesCSV)
	api.GET("/candles", s.handleCandles)
	api.GET("/status", s.handleStatus)
	api.GET("/live", s.handleLive)

	s.router = router
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// PushStatus forwards a monitor update to every live websocket subscriber.
func (s *Server) PushStatus(st monitor.SymbolStatus) {
	s.hub.broadcast(st)
}

// backtestRequest is the JSON body of POST /api/backtest. Candles may be
// supplied inline; otherwise the store is consulted for [start, end] and the
// exchange is the fallback.
type backtestRequest struct {
	Symbol         string          `json:"symbol" binding:"required"`
	Interval       string          `json:"interval"`
	InitialBalance float64         `json:"initial_balance"`
	RiskPerTrade   float64         `json:"risk_per_trade"`
	StopLossPct    float64         `json:"stop_loss_pct"`
	Strategy       strategyRequest `json:"strategy"`

	Candles []types.Candle `json:"candles"`
	Start   *time.Time     `json:"start"`
	End     *time.Time     `json:"end"`
	Limit   int            `json:"limit"`
}

type strategyRequest struct {
	FastPeriod       int     `json:"fast_period"`
	SlowPeriod       int     `json:"slow_period"`
	RSIPeriod        int     `json:"rsi_period"`
	ATRPeriod        int     `json:"atr_period"`
	Overbought       float64 `json:"overbought"`
	VolumeMultiplier float64 `json:"volume_multiplier"`
	VolumeWindow     int     `json:"volume_window"`
}

type backtestResponse struct {
	ID      string                `json:"id"`
	Result  *types.BacktestResult `json:"result"`
	Summary engine.Summary        `json:"summary"`
}

func (r backtestRequest) engineConfig() engine.Config {
	strategy := engine.DefaultStrategy()
	if r.Strategy.FastPeriod > 0 {
		strategy.FastPeriod = r.Strategy.FastPeriod
	}
	if r.Strategy.SlowPeriod > 0 {
		strategy.SlowPeriod = r.Strategy.SlowPeriod
	}
	if r.Strategy.RSIPeriod > 0 {
		strategy.RSIPeriod = r.Strategy.RSIPeriod
	}
	if r.Strategy.ATRPeriod > 0 {
		strategy.ATRPeriod = r.Strategy.ATRPeriod
	}
	if r.Strategy.Overbought > 0 {
		strategy.Overbought = decimal.NewFromFloat(r.Strategy.Overbought)
	}
	if r.Strategy.VolumeMultiplier > 0 {
		strategy.VolumeMultiplier = decimal.NewFromFloat(r.Strategy.VolumeMultiplier)
	}
	if r.Strategy.VolumeWindow > 0 {
		strategy.VolumeWindow = r.Strategy.VolumeWindow
	}
	return engine.Config{
		Symbol:         r.Symbol,
		InitialBalance: decimal.NewFromFloat(r.InitialBalance),
		RiskPerTrade:   decimal.NewFromFloat(r.RiskPerTrade),
		StopLossPct:    decimal.NewFromFloat(r.StopLossPct),
		Strategy:       strategy,
	}
}

func (s *Server) handleBacktest(c *gin.Context) {
	var req backtestRequest
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		parsed, err := s.parseUploadRequest(c)
		if err != nil {
			// A corrupted candle row is the caller's data, not their request.
			status := http.StatusBadRequest
			if errors.Is(err, datafeed.ErrMalformedRow) {
				status = http.StatusUnprocessableEntity
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		req = parsed
	} else if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bt, err := engine.NewBacktester(req.engineConfig())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	candles, source, err := s.resolveCandles(c.Request.Context(), req)
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, repository.ErrNoCandles):
			status = http.StatusNotFound
		case errors.Is(err, datafeed.ErrFetchFailed):
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	metrics.BacktestsTotal.WithLabelValues(source).Inc()

	res, err := bt.Run(candles)
	if err != nil {
		status := http.StatusInternalServerError
		if engine.IsDataError(err) {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	for _, trade := range res.Trades {
		metrics.TradesSimulatedTotal.WithLabelValues(string(trade.Reason)).Inc()
	}

	id := uuid.New().String()
	s.mu.Lock()
	s.runs[id] = res
	s.mu.Unlock()

	s.log.Info().
		Str("run_id", id).
		Str("symbol", req.Symbol).
		Str("source", source).
		Int("candles", len(candles)).
		Int("trades", len(res.Trades)).
		Str("final_balance", res.FinalBalance.String()).
		Msg("backtest finished")

	c.JSON(http.StatusOK, backtestResponse{ID: id, Result: res, Summary: engine.Summarize(res)})
}

// parseUploadRequest handles the multipart form variant: a CSV candle file
// plus the run parameters as form fields.
func (s *Server) parseUploadRequest(c *gin.Context) (backtestRequest, error) {
	req := backtestRequest{
		Symbol:         c.PostForm("symbol"),
		Interval:       c.PostForm("interval"),
		InitialBalance: parseFloatField(c.PostForm("initial_balance")),
		RiskPerTrade:   parseFloatField(c.PostForm("risk_per_trade")),
		StopLossPct:    parseFloatField(c.PostForm("stop_loss_pct")),
	}
	if req.Symbol == "" {
		return backtestRequest{}, errors.New("symbol is required")
	}

	file, _, err := c.Request.FormFile("file")
	if err != nil {
		return backtestRequest{}, fmt.Errorf("candle file: %w", err)
	}
	defer file.Close()

	interval := types.OneMinute
	if iv, ok := types.ConvertInterval[req.Interval]; ok {
		interval = iv
	}
	candles, err := datafeed.ParseCSV(file, req.Symbol, interval)
	if err != nil {
		return backtestRequest{}, err
	}
	req.Candles = candles
	return req, nil
}

func parseFloatField(v string) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

func parsePositiveInt(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("%d is not positive", n)
	}
	return n, nil
}

// resolveCandles picks the candle source: inline candles win, then the store
// when a time range is given, then a live fetch.
func (s *Server) resolveCandles(ctx context.Context, req backtestRequest) ([]types.Candle, string, error) {
	if len(req.Candles) > 0 {
		return req.Candles, "inline", nil
	}

	interval := types.OneMinute
	if iv, ok := types.ConvertInterval[req.Interval]; ok {
		interval = iv
	}

	if s.store != nil && req.Start != nil && req.End != nil {
		candles, err := s.store.GetCandles(req.Symbol, interval, *req.Start, *req.End, ctx)
		if err != nil {
			return nil, "", err
		}
		return candles, "store", nil
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 500
	}
	candles, err := s.fetcher.Klines(ctx, req.Symbol, interval, limit)
	if err != nil {
		return nil, "", err
	}
	return candles, "fetch", nil
}

func (s *Server) handleTradesCSV(c *gin.Context) {
	id := c.Param("id")
	s.mu.RLock()
	res, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown run id"})
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="trades.csv"`)
	if err := export.WriteTrades(c.Writer, res.Trades); err != nil {
		s.log.Error().Err(err).Str("run_id", id).Msg("trade export failed")
	}
}

func (s *Server) handleCandles(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}
	interval := types.OneMinute
	if iv, ok := types.ConvertInterval[c.Query("interval")]; ok {
		interval = iv
	}
	limit := 100
	if v, err := parsePositiveInt(c.Query("limit")); err == nil {
		limit = v
	}

	candles, err := s.fetcher.Klines(c.Request.Context(), symbol, interval, limit)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "candles": candles})
}

func (s *Server) handleStatus(c *gin.Context) {
	if s.status == nil {
		c.JSON(http.StatusOK, gin.H{"symbols": []monitor.SymbolStatus{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbols": s.status.Status()})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}
