// Package main provides the notification service executable: the queue
// consumer, the scheduled retry sweeper, and the operator HTTP API.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/robfig/cron/v3"

	"github.com/shelfwire/shelfwire"
	"github.com/shelfwire/shelfwire/adapters/relica"
	"github.com/shelfwire/shelfwire/cmd/notification-service/internal/api"
	"github.com/shelfwire/shelfwire/cmd/notification-service/internal/config"
	"github.com/shelfwire/shelfwire/internal/logging"
	"github.com/shelfwire/shelfwire/model"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	sugar := logging.InitLogger(cfg.Logging.Level)
	defer func() { _ = sugar.Sync() }()
	logger := logging.NewAdapter(sugar)

	logger.Infof("Starting notification service on %s:%d (db=%s)", cfg.Server.Host, cfg.Server.Port, cfg.Database.Driver)

	db, err := sql.Open(cfg.Database.Driver, cfg.Database.GetDSN())
	if err != nil {
		sugar.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Errorf("Failed to close database: %v", closeErr)
		}
	}()

	if err := db.Ping(); err != nil {
		sugar.Fatalf("Failed to connect to database: %v", err)
	}
	logger.Info("Database connection established")

	var repos *relica.Repositories
	if cfg.Database.Prefix != "" {
		repos = relica.NewRepositoriesWithPrefix(db, cfg.Database.Driver, cfg.Database.Prefix)
	} else {
		repos = relica.NewRepositories(db, cfg.Database.Driver)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Both services declare the topology at startup; declarations are
	// idempotent, and either side may boot first.
	topo := shelfwire.CatalogTopology()
	if err := shelfwire.DeclareTopology(ctx, repos.Topology, topo, logger); err != nil {
		sugar.Fatalf("Failed to declare topology: %v", err)
	}
	logger.Info("Broker topology declared")

	sink := shelfwire.NewLoggingSink(logger)
	alerts := shelfwire.NewLoggingAlertService(logger)

	consumerOpts := []shelfwire.Option{
		shelfwire.WithRepositories(repos.Message, repos.Notification, repos.DLQ, repos.Recipient, repos.Topology),
		shelfwire.WithSink(sink),
		shelfwire.WithLogger(logger),
		shelfwire.WithAlerts(alerts),
		shelfwire.WithBatchSize(cfg.Consumer.BatchSize),
		shelfwire.WithWorkers(cfg.Consumer.Workers),
		shelfwire.WithDeliveryTimeout(cfg.Consumer.DeliveryTimeout),
	}
	if cfg.Consumer.FallbackRecipient != "" {
		consumerOpts = append(consumerOpts, shelfwire.WithFallbackRecipient(
			model.NewRecipient(cfg.Consumer.FallbackRecipient, cfg.Consumer.FallbackName)))
	}

	consumer, err := shelfwire.NewConsumer(consumerOpts...)
	if err != nil {
		sugar.Fatalf("Failed to create consumer: %v", err)
	}

	sweeper, err := shelfwire.NewSweeper(
		shelfwire.WithSweeperRepository(repos.Notification),
		shelfwire.WithSweeperSink(sink),
		shelfwire.WithSweeperLogger(logger),
		shelfwire.WithSweeperAlerts(alerts),
		shelfwire.WithSweeperBatchSize(cfg.Sweeper.BatchSize),
	)
	if err != nil {
		sugar.Fatalf("Failed to create sweeper: %v", err)
	}

	go func() {
		logger.Infof("Starting consumer (interval: %v)...", cfg.Consumer.Interval)
		consumer.Run(ctx, topo, cfg.Consumer.Interval)
	}()

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Sweeper.Schedule, func() {
		sweepCtx, sweepCancel := context.WithTimeout(ctx, 10*time.Minute)
		defer sweepCancel()
		if _, err := sweeper.RetryFailedNotifications(sweepCtx); err != nil {
			logger.Errorf("Scheduled retry sweep failed: %v", err)
		}
	}); err != nil {
		sugar.Fatalf("Invalid sweeper schedule %q: %v", cfg.Sweeper.Schedule, err)
	}
	scheduler.Start()
	logger.Infof("Retry sweeper scheduled (%s)", cfg.Sweeper.Schedule)

	handler := api.NewHandler(sweeper, repos.Message, repos.Notification, repos.DLQ, repos.Topology, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/notifications", handler.HandleListNotifications)
	mux.HandleFunc("/api/v1/notifications/retry", handler.HandleRetry)
	mux.HandleFunc("/api/v1/queues", handler.HandleListQueues)
	mux.HandleFunc("/api/v1/dlq", handler.HandleListDLQ)
	mux.HandleFunc("/api/v1/dlq/stats", handler.HandleDLQStats)
	mux.HandleFunc("/api/v1/dlq/", handler.HandleDLQEntry) // Note trailing slash for :id/:action
	mux.HandleFunc("/api/v1/health", handler.HandleHealth)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Operator API listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down notification service...")

	stopCtx := scheduler.Stop()
	<-stopCtx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	cancel() // Stop consumer
	logger.Info("Notification service stopped")
}
