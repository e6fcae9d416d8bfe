package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tradesync/syncengine/internal/cache"
	"github.com/tradesync/syncengine/internal/config"
	"github.com/tradesync/syncengine/internal/credentials"
	"github.com/tradesync/syncengine/internal/dedup"
	"github.com/tradesync/syncengine/internal/events"
	"github.com/tradesync/syncengine/internal/exchange"
	"github.com/tradesync/syncengine/internal/leverage"
	"github.com/tradesync/syncengine/internal/orchestrator"
	"github.com/tradesync/syncengine/internal/resilience"
	"github.com/tradesync/syncengine/internal/scheduler"
	"github.com/tradesync/syncengine/internal/storage"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	if cfg.Logging.Level == "debug" {
		logger, _ = zap.NewDevelopment()
	}

	if cfg.Credentials.EncryptionKey == "" {
		logger.Fatal("ENCRYPTION_KEY is required; refusing to start without credential encryption")
	}

	logger.Info("starting sync engine",
		zap.String("version", cfg.Service.Version),
		zap.Int("metrics_port", cfg.Metrics.Port),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("initializing storage connections")
	pgPool, err := storage.NewPostgresPool(ctx, cfg.Database.Postgres)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pgPool.Close()

	redisClient, err := storage.NewRedisClient(ctx, cfg.Database.Redis, logger)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	if err := storage.RunMigrations(ctx, pgPool); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	natsConn, err := storage.NewNATSConnection(cfg.PubSub.NATS, logger)
	if err != nil {
		logger.Fatal("failed to connect to NATS", zap.Error(err))
	}
	defer natsConn.Close()

	codec, err := credentials.NewCodec(cfg.Credentials.EncryptionKey)
	if err != nil {
		logger.Fatal("failed to initialize credential codec", zap.Error(err))
	}

	connectionStore := storage.NewConnectionStore(pgPool)
	tradeStore := storage.NewTradeStore(pgPool)
	leverageStore := storage.NewLeverageStore(pgPool)

	redisCache := cache.New(redisClient)
	dedupFilter := dedup.NewFilter(tradeStore, redisCache)
	leverageResolver := leverage.NewResolver(leverageStore, redisCache)

	pacer := resilience.NewPacer()
	breakers := resilience.NewBreakers(resilience.BreakerConfig{
		FailureThreshold: cfg.Resilience.CircuitBreakerFailureThreshold,
		Timeout:          cfg.Resilience.CircuitBreakerTimeout,
	})
	clientFactory := exchange.NewFactory(cfg.Exchanges, pacer, breakers, logger)
	publisher := events.NewPublisher(natsConn, cfg.PubSub.Topics, logger)

	orch := orchestrator.New(connectionStore, tradeStore, clientFactory, leverageResolver, dedupFilter, codec, publisher, logger)
	sched := scheduler.New(connectionStore, orch, cfg.Scheduler.Interval, cfg.Scheduler.MisfireGrace, logger)
	sched.Start(ctx)

	go func() {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
		addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
		logger.Info("metrics server starting", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping scheduler")
	cancel()
	sched.Stop()
	logger.Info("waiting for in-flight sync jobs to finish")
	orch.Wait()
	logger.Info("sync engine stopped")
}

func init() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/syncengine")
	viper.AutomaticEnv()
	_ = viper.BindEnv("exchanges.binance.base_url", "BINANCE_BASE_URL")
	_ = viper.BindEnv("exchanges.bybit.base_url", "BYBIT_BASE_URL")
	_ = viper.BindEnv("exchanges.blofin.base_url", "BLOFIN_BASE_URL")
	_ = viper.BindEnv("exchanges.hyperliquid.base_url", "HYPERLIQUID_BASE_URL")
}
