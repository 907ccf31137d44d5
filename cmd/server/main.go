package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/verdantx/carbon-exchange/internal/adapter/cache"
	"github.com/verdantx/carbon-exchange/internal/adapter/feed"
	"github.com/verdantx/carbon-exchange/internal/adapter/in_memory"
	"github.com/verdantx/carbon-exchange/internal/adapter/notify"
	"github.com/verdantx/carbon-exchange/internal/adapter/pg"
	httpapi "github.com/verdantx/carbon-exchange/internal/api/http"
	"github.com/verdantx/carbon-exchange/internal/api/ws"
	"github.com/verdantx/carbon-exchange/internal/config"
	"github.com/verdantx/carbon-exchange/internal/core"
	"github.com/verdantx/carbon-exchange/internal/domain"
	"github.com/verdantx/carbon-exchange/internal/port"
	"github.com/verdantx/carbon-exchange/internal/session"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	repo, err := pg.NewRepo(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Fatalf("failed to init postgres repo: %v", err)
	}
	defer repo.Close()

	if err := repo.Migrate(ctx); err != nil {
		logger.Fatalf("failed to migrate schema: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	viewCache := cache.NewRedisCache(redisClient, cfg.Cache.TTL)
	notifier := notify.NewRedisNotifier(redisClient, logger)
	sessions := session.NewManager(cache.NewRedisKV(redisClient), cfg.Session.TTL)

	var marketFeed port.MarketFeed
	if cfg.Feed.URL != "" {
		marketFeed = feed.NewHTTPFeed(cfg.Feed.URL, cfg.Feed.Timeout)
	} else {
		logger.Warn("MARKET_FEED_URL not set, using built-in development feed")
		marketFeed = devFeed()
	}

	engine := core.NewEngine(repo, viewCache, marketFeed, notifier, logger)

	hub := ws.NewHub(notifier, logger)
	go func() {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("websocket hub stopped")
		}
	}()

	server := &http.Server{
		Addr:    cfg.HTTP.Addr(),
		Handler: httpapi.NewServer(engine, sessions, hub, logger),
	}

	go func() {
		logger.Infof("HTTP server listening on %s", cfg.HTTP.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("http shutdown failed")
	}
}

// devFeed lists the handful of instruments the product demos with.
func devFeed() *in_memory.Feed {
	return in_memory.NewFeed(
		domain.MarketAsset{Symbol: "CCX", Name: "Carbon Credit Exchange Token", Price: decimal.NewFromInt(250), Category: domain.CategoryCarbon},
		domain.MarketAsset{Symbol: "VCU", Name: "Verified Carbon Unit", Price: decimal.NewFromInt(15), Category: domain.CategoryCarbon},
		domain.MarketAsset{Symbol: "BTC", Name: "Bitcoin", Price: decimal.NewFromInt(5200000), Category: domain.CategoryCrypto},
		domain.MarketAsset{Symbol: "ETH", Name: "Ethereum", Price: decimal.NewFromInt(280000), Category: domain.CategoryCrypto},
	)
}
