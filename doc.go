// Package shelfwire provides the asynchronous domain-event backbone for a
// book catalog platform: a durable SQL-backed broker topology, an event
// publisher, a notification consumer with Dead Letter Queue (DLQ) support,
// and a retry sweeper for failed deliveries.
//
// Works both as a library for embedding in your services AND as a pair of
// standalone services (catalog API and notification worker).
//
// # Features
//
//   - Typed event envelopes with tagged payloads (book.created, book.updated,
//     book.deleted, notification.send) and correlation-ID tracing headers
//   - Explicit broker topology: exchanges, queues, bindings, and per-queue
//     dead-letter routing declared up front, failing fast at startup
//   - Topic routing with AMQP-style patterns (* one word, # zero or more)
//   - At-least-once delivery: publish retries, message leases, requeue
//     budgets, and a paired DLQ per primary queue
//   - Notification records with an explicit PENDING/SENT/FAILED state
//     machine and a bounded retry budget
//   - Scheduled retry sweeper that re-drives failed notifications
//   - Options Pattern for service construction
//   - Pluggable architecture: bring your own Logger, DeliverySink, AlertService
//   - Multi-Database Support: MySQL, PostgreSQL, SQLite via Relica adapters
//   - Embedded Migrations for easy database setup
//
// # Quick Start
//
// First, apply the database migrations:
//
//	import (
//	    "database/sql"
//	    "github.com/shelfwire/shelfwire"
//	    "github.com/shelfwire/shelfwire/adapters/relica"
//	    _ "github.com/go-sql-driver/mysql"
//	)
//
//	db, _ := sql.Open("mysql", "user:pass@tcp(localhost:3306)/shelfwire?parseTime=true")
//
// Use the production-ready Relica adapters and declare the topology:
//
//	repos := relica.NewRepositories(db, "mysql")
//
//	topo := shelfwire.CatalogTopology()
//	if err := shelfwire.DeclareTopology(ctx, repos.Topology, topo, logger); err != nil {
//	    log.Fatal(err) // topology errors are fatal at startup
//	}
//
//	publisher, _ := shelfwire.NewPublisher(
//	    shelfwire.WithPublisherRepositories(repos.Message, repos.Topology),
//	    shelfwire.WithPublisherLogger(logger),
//	)
//
//	consumer, _ := shelfwire.NewConsumer(
//	    shelfwire.WithRepositories(repos.Message, repos.Notification, repos.DLQ, repos.Recipient, repos.Topology),
//	    shelfwire.WithSink(shelfwire.NewLoggingSink(logger)),
//	    shelfwire.WithLogger(logger),
//	)
//
//	// Run consumer (drains queues every 5 seconds)
//	go consumer.Run(ctx, topo, 5*time.Second)
//
// Publish an event:
//
//	env := model.NewBookCreated(bookID, "catalog-service", correlationID, model.BookPayload{
//	    Title:  "The Go Programming Language",
//	    Author: "Donovan & Kernighan",
//	    ISBN:   "978-0134190440",
//	    Price:  39.99,
//	})
//	result, err := publisher.PublishWithRetry(ctx, env, 3)
//
// # Message Flow
//
//  1. PUBLISH
//     Publisher → encode envelope → look up exchange
//     → match bindings against routing key
//     → buffer one Message per matched queue (at-least-once, may duplicate)
//
//  2. CONSUME (Background)
//     Consumer → lease ready messages (batch, worker pool)
//     → materialize PENDING notification records (one per recipient)
//     → deliver via DeliverySink
//     → On success: SENT (terminal)
//     → On failure: FAILED, retry count incremented
//     → ack only after the outcome is durably persisted
//
//  3. RETRY SWEEP (Scheduled)
//     Sweeper → snapshot FAILED/PENDING records inside the retry budget
//     → replay delivery per record, failures isolated
//
//  4. DLQ (Dead Letter Queue)
//     Poison, expired, or requeue-exhausted messages → paired DLQ
//     → operator review: resolve or republish
//
// # Database Schema
//
// The library requires 7 database tables (created via embedded migrations):
//
//	shelfwire_exchange      - Exchange declarations
//	shelfwire_queue         - Queue declarations with dead-letter routing
//	shelfwire_binding       - Bindings (exchange + queue + routing-key pattern)
//	shelfwire_message       - Buffered broker messages with lease state
//	shelfwire_notification  - Notification records with retry state
//	shelfwire_dlq           - Dead Letter Queue entries
//	shelfwire_recipient     - Notification recipient registry
//
// Supports MySQL, PostgreSQL, and SQLite via Relica adapters.
//
// # Examples
//
// See the examples/ directory for a complete working quickstart with SQLite.
package shelfwire
