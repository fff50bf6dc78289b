package relica

import (
	"database/sql"

	"github.com/shelfwire/shelfwire"
)

// Repositories holds all repository implementations.
type Repositories struct {
	Topology     shelfwire.TopologyRepository
	Message      shelfwire.MessageRepository
	Notification shelfwire.NotificationRepository
	DLQ          shelfwire.DLQRepository
	Recipient    shelfwire.RecipientRepository
}

// NewRepositories creates all repository implementations using Relica.
//
// The db parameter should be an *sql.DB connected to MySQL, PostgreSQL, or SQLite.
// The driverName should be "mysql", "postgres", or "sqlite3".
// The table prefix defaults to "shelfwire_" but can be customized.
func NewRepositories(db *sql.DB, driverName string) *Repositories {
	return &Repositories{
		Topology:     NewTopologyRepository(db, driverName),
		Message:      NewMessageRepository(db, driverName),
		Notification: NewNotificationRepository(db, driverName),
		DLQ:          NewDLQRepository(db, driverName),
		Recipient:    NewRecipientRepository(db, driverName),
	}
}

// NewRepositoriesWithPrefix creates all repository implementations with a custom table prefix.
func NewRepositoriesWithPrefix(db *sql.DB, driverName, prefix string) *Repositories {
	return &Repositories{
		Topology:     NewTopologyRepositoryWithPrefix(db, driverName, prefix),
		Message:      NewMessageRepositoryWithPrefix(db, driverName, prefix),
		Notification: NewNotificationRepositoryWithPrefix(db, driverName, prefix),
		DLQ:          NewDLQRepositoryWithPrefix(db, driverName, prefix),
		Recipient:    NewRecipientRepositoryWithPrefix(db, driverName, prefix),
	}
}
