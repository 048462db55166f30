package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"CoinOracle/internal/collector"
	"CoinOracle/internal/config"
	"CoinOracle/internal/metrics"
	"CoinOracle/internal/notifier"
	"CoinOracle/internal/prediction"
	"CoinOracle/internal/scheduler"
	"CoinOracle/internal/store"
	"CoinOracle/internal/strategy"
)

func main() {
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("config validation")
	}
	setupLogging(cfg)
	log.Info().Str("config", cfgPath).Msg("CoinOracle starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer st.Close()

	opts := collector.ClientOptions{
		Timeout:        cfg.DataSource.Timeout,
		RequestsPerSec: cfg.DataSource.RequestsPerSec,
		Burst:          cfg.DataSource.Burst,
		MaxRetryTime:   cfg.DataSource.MaxRetryTime,
		ProxyURL:       cfg.Proxy,
	}
	fetcher := newFetcher(cfg, opts)
	if cfg.Cache.RedisAddr != "" {
		rdb, err := collector.NewRedisClient(ctx, collector.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, quotes are not cached")
		} else {
			defer rdb.Close()
			fetcher = collector.NewCachedFetcher(fetcher, rdb, cfg.Cache.QuoteTTL, cfg.Cache.BarsTTL)
		}
	}
	log.Info().Str("provider", fetcher.Name()).Msg("data source ready")

	var sentiment collector.SentimentProvider = collector.NewFearGreedClient(cfg.Sentiment.URL, opts)
	if cfg.Sentiment.Disabled {
		sentiment = collector.StaticSentiment(collector.NeutralFearGreed)
	}
	col := collector.NewCollector(fetcher, sentiment, cfg.DataSource.CandleLimit)

	seed := cfg.Signals.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	sim := strategy.NewSimulatedSource(seed)
	var src strategy.SignalSource = sim
	if cfg.Signals.Mode == "indicators" {
		src = strategy.NewIndicatorSource(sim, cfg.Indicators)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if cfg.Metrics.Addr != "" {
		srv := metrics.Serve(cfg.Metrics.Addr, reg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		log.Info().Str("addr", cfg.Metrics.Addr).Msg("metrics endpoint listening")
	}

	svc := prediction.NewService(st, col, src, prediction.Config{
		Instruments:  cfg.Instruments,
		Workers:      cfg.Evaluation.Workers,
		FetchTimeout: cfg.Evaluation.FetchTimeout,
		Params:       cfg.Indicators,
	}, prediction.WithMetrics(m))

	var (
		reporter scheduler.Reporter
		tn       *notifier.TelegramNotifier
	)
	if cfg.Telegram.Enabled {
		tn, err = notifier.NewTelegramNotifier(notifier.TelegramOptions{
			BotToken: cfg.Telegram.BotToken,
			ChatID:   cfg.Telegram.ChatID,
			ProxyURL: cfg.Proxy,
		})
		if err != nil {
			log.Warn().Err(err).Msg("telegram disabled")
			tn = nil
		} else {
			reporter = tn
		}
	}

	sched := scheduler.NewScheduler(svc, reporter, scheduler.Options{
		Spec:         cfg.Schedule.SweepCron,
		WarmUp:       cfg.Schedule.WarmUp,
		SweepTimeout: cfg.Schedule.SweepTimeout,
	})
	if err := sched.Register(); err != nil {
		log.Fatal().Err(err).Msg("register sweep")
	}
	sched.Start()

	if tn != nil && cfg.Telegram.Commands {
		go tn.StartPolling(ctx, notifier.NewCommandHandler(svc, sched, 2*cfg.Evaluation.FetchTimeout))
	}

	log.Info().Strs("instruments", cfg.Instruments).Msg("CoinOracle is running. Press Ctrl+C to stop.")
	<-ctx.Done()

	log.Info().Msg("shutdown signal received, waiting for the running sweep")
	sched.Stop()
	log.Info().Msg("CoinOracle stopped")
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.Log.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Database.Driver {
	case "memory":
		log.Warn().Msg("using in-memory store, predictions are lost on exit")
		return store.NewMemoryStore(), nil
	case "sqlite":
		if dir := filepath.Dir(cfg.Database.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
	}
	return store.NewSQLStore(ctx, cfg.Database.Driver, cfg.Database.DSN)
}

func newFetcher(cfg *config.Config, opts collector.ClientOptions) collector.Fetcher {
	switch cfg.DataSource.Provider {
	case "yahoo":
		return collector.NewYahooFetcher(cfg.DataSource.BaseURL, opts)
	case "mock":
		return &collector.MockFetcher{Price: 50000, Change: 1.5}
	default:
		return collector.NewCoinGeckoFetcher(cfg.DataSource.BaseURL, cfg.DataSource.APIKey, opts)
	}
}
