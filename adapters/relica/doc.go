// Package relica provides repository implementations using Relica query builder.
//
// Relica (github.com/coregx/relica) is a lightweight, type-safe database query builder
// for Go with zero production dependencies.
//
// This package provides production-ready implementations of all shelfwire repository interfaces:
//   - TopologyRepository
//   - MessageRepository
//   - NotificationRepository
//   - DLQRepository
//   - RecipientRepository
//
// Example usage:
//
//	import (
//	    "database/sql"
//	    "github.com/shelfwire/shelfwire"
//	    "github.com/shelfwire/shelfwire/adapters/relica"
//	    _ "github.com/go-sql-driver/mysql"
//	)
//
//	// Open database connection
//	db, err := sql.Open("mysql", "user:pass@tcp(localhost:3306)/shelfwire?parseTime=true")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create repositories (driverName should be "mysql", "postgres", or "sqlite3")
//	repos := relica.NewRepositories(db, "mysql")
//
//	// Create services
//	consumer, err := shelfwire.NewConsumer(
//	    shelfwire.WithRepositories(repos.Message, repos.Notification, repos.DLQ, repos.Recipient, repos.Topology),
//	    shelfwire.WithSink(sink),
//	    shelfwire.WithLogger(logger),
//	)
package relica
