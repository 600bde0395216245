package domain

import "time"

// TenantDatabase is a provisioned database on the secondary engine,
// recorded in the primary metadata store.
type TenantDatabase struct {
	ID                int64
	Owner             string
	DatabaseName      string
	Username          string
	EncryptedPassword string
	// ProjectID links the database to at most one project; nil when
	// unlinked.
	ProjectID *int64
	CreatedAt time.Time
}

// TenantDatabaseDetails is the connection view handed to the owner. The
// plaintext password only ever exists in this transient response shape.
type TenantDatabaseDetails struct {
	ID           int64
	Owner        string
	DatabaseName string
	Username     string
	Password     string
	ProjectID    *int64
	Host         string
	Port         int
	CreatedAt    time.Time
}
