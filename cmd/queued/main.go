package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"hospital-queue-backend/config"
	"hospital-queue-backend/internal/api"
	"hospital-queue-backend/internal/bizday"
	"hospital-queue-backend/internal/db"
	"hospital-queue-backend/internal/notification"
	"hospital-queue-backend/internal/ordering"
	"hospital-queue-backend/internal/queue"
	"hospital-queue-backend/internal/store"
	"hospital-queue-backend/internal/stream"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Optional .env for local development; the real environment wins.
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Infof("configuration loaded from %s", configPath)

	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		logger.Fatal("VAPID keys must be configured; generate them and add them to your config file")
	}

	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Info("database initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)

	pool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, &webpushOptions, logger)
	pool.Start(ctx)

	var publisher notification.Publisher
	if cfg.Stream.Enabled {
		producer := stream.NewProducer(cfg.Stream.Brokers, cfg.Stream.Topic)
		defer producer.Close()
		publisher = producer
		logger.Infof("ticket event stream enabled on topic %s", cfg.Stream.Topic)
	}
	hub := notification.NewHub(pool, publisher, logger)

	clock := bizday.NewClock(cfg.Queue.UTCOffsetMinutes)
	index := ordering.NewIndex(10 * time.Minute)
	engine := queue.NewEngine(appStore, index, hub, clock, queue.Config{
		HorizonDays:       cfg.Queue.HorizonDays,
		SlotMinutes:       cfg.Queue.SlotMinutes,
		AllocationRetries: cfg.Queue.AllocationRetries,
		ScoreBand:         cfg.Queue.ScoreBand,
		PreviewTTL:        cfg.Queue.PreviewTTL(),
	}, logger)

	router := api.NewRouter(engine, appStore, &webpushOptions, api.RouterOptions{
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
		CacheTTL:        time.Duration(cfg.Server.CacheTTLSeconds) * time.Second,
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Infof("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutdown signal received, stopping services")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server shutdown: %v", err)
	}

	logger.Info("server gracefully stopped")
}
