// Package domain defines the core interfaces and types for Falcon.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Customer operations
	SaveCustomer(ctx context.Context, c *Customer) error
	GetCustomer(ctx context.Context, nationalID string) (*Customer, error)
	CustomerExists(ctx context.Context, nationalID string) (bool, error)

	// QueryCustomerIDs executes a compiled filter predicate and returns
	// the matching national IDs. An empty predicate matches everyone.
	QueryCustomerIDs(ctx context.Context, pred CompiledPredicate) ([]string, error)

	// Application operations
	ActiveApplication(ctx context.Context, product Product, nationalID string, window time.Duration) (*ActiveApplication, error)
	SaveLoanApplication(ctx context.Context, app *LoanApplication) error
	SaveCardApplication(ctx context.Context, app *CardApplication) error
	LatestLoanApplication(ctx context.Context, nationalID string) (*LoanApplication, error)
	LatestCardApplication(ctx context.Context, nationalID string) (*CardApplication, error)
	ApplicationNoExists(ctx context.Context, product Product, applicationNo int64) (bool, error)

	// Notification operations
	SaveTemplate(ctx context.Context, tmpl *NotificationTemplate) error
	GetTemplate(ctx context.Context, id string) (*NotificationTemplate, error)
	GetInbox(ctx context.Context, nationalID string) (*Inbox, error)
	// UpsertInbox writes the inbox if its stored version still equals
	// inbox.Version, then bumps the version. A stale version returns
	// repository.ErrVersionConflict.
	UpsertInbox(ctx context.Context, inbox *Inbox) error

	// Audit operations
	SaveAuditLog(ctx context.Context, entry *AuditLog) error

	// API key operations
	ValidateAPIKey(ctx context.Context, key string) (bool, error)
	SaveAPIKey(ctx context.Context, key, description string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
