// Package main provides the catalog service executable: a book mutation
// HTTP API that publishes domain events to the shelfwire broker.
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

	"github.com/shelfwire/shelfwire"
	"github.com/shelfwire/shelfwire/adapters/relica"
	"github.com/shelfwire/shelfwire/cmd/catalog-service/internal/api"
	"github.com/shelfwire/shelfwire/cmd/catalog-service/internal/config"
	"github.com/shelfwire/shelfwire/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	sugar := logging.InitLogger(cfg.Logging.Level)
	defer func() { _ = sugar.Sync() }()
	logger := logging.NewAdapter(sugar)

	logger.Infof("Starting catalog service on %s:%d (db=%s)", cfg.Server.Host, cfg.Server.Port, cfg.Database.Driver)

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

	// Declare the broker topology before accepting any traffic. A broken
	// topology must fail the boot, not surface later as lost events.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	topo := shelfwire.CatalogTopology()
	if err := shelfwire.DeclareTopology(ctx, repos.Topology, topo, logger); err != nil {
		sugar.Fatalf("Failed to declare topology: %v", err)
	}
	logger.Info("Broker topology declared")

	publisher, err := shelfwire.NewPublisher(
		shelfwire.WithPublisherRepositories(repos.Message, repos.Topology),
		shelfwire.WithPublisherLogger(logger),
	)
	if err != nil {
		sugar.Fatalf("Failed to create publisher: %v", err)
	}

	handler := api.NewHandler(publisher, logger, cfg.Publish.Source, cfg.Publish.MaxRetries)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/books/events/created", handler.HandleCreateBook)
	mux.HandleFunc("/api/v1/books/events/updated", handler.HandleUpdateBook)
	mux.HandleFunc("/api/v1/books/events/deleted", handler.HandleDeleteBook)
	mux.HandleFunc("/api/v1/notifications/send", handler.HandleSendNotification)
	mux.HandleFunc("/api/v1/health", handler.HandleHealth)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      loggingMiddleware(mux, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("HTTP server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down catalog service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Catalog service stopped")
}

// loggingMiddleware logs HTTP requests.
func loggingMiddleware(next http.Handler, logger shelfwire.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger.Infof("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
		logger.Debugf("%s %s - %v", r.Method, r.URL.Path, time.Since(start))
	})
}
