package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tradesim/internal/config"
	"tradesim/internal/datafeed"
	"tradesim/internal/logging"
	"tradesim/internal/metrics"
	"tradesim/internal/monitor"
	"tradesim/internal/repository"
	"tradesim/internal/web"
	"tradesim/types"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	// Missing .env is fine, the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := logging.NewLogger("info")
		boot.Fatal().Err(err).Msg("loading config")
	}
	log := logging.NewLogger(cfg.App.LogLevel)
	log.Info().Str("env", cfg.App.Env).Str("addr", cfg.App.ListenAddr).Msg("starting tradesim")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsSrv := metrics.Serve(cfg.App.MetricsAddr)
	defer metricsSrv.Close()

	fetcher := datafeed.NewClient(cfg.Feed.BaseURL, log)

	var store web.CandleStore
	if cfg.Database.URL != "" {
		db, err := repository.NewDatabase(cfg.Database.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("connecting to database")
		}
		defer db.Close()
		store = &db
		log.Info().Msg("candle store connected")
	}

	interval := types.Hour
	if iv, ok := types.ConvertInterval[cfg.Feed.Interval]; ok {
		interval = iv
	}

	var watcher *monitor.Watcher
	if len(cfg.Feed.Symbols) > 0 {
		watcher = monitor.NewWatcher(
			fetcher,
			cfg.EngineConfig().Strategy,
			cfg.Feed.Symbols,
			interval,
			cfg.Feed.KlineLimit,
			time.Duration(cfg.Feed.PollSeconds)*time.Second,
			log,
		)
	}

	var status web.StatusProvider
	if watcher != nil {
		status = watcher
	}
	server := web.NewServer(fetcher, store, status, log)
	if watcher != nil {
		watcher.OnUpdate = server.PushStatus
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("monitor stopped")
			}
		}()
	}

	httpSrv := &http.Server{Addr: cfg.App.ListenAddr, Handler: server.Handler()}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
		os.Exit(1)
	}
}
