package tenantdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// SQLEngine adapts a database/sql handle on the secondary engine to the
// Engine interface.
type SQLEngine struct {
	db *sql.DB
}

var _ Engine = (*SQLEngine)(nil)

// OpenEngine connects to the secondary engine using a MySQL-protocol DSN.
// The admin account in the DSN must be allowed to create databases and users.
func OpenEngine(ctx context.Context, dsn string) (*SQLEngine, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open tenant engine: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping tenant engine: %w", err)
	}
	return &SQLEngine{db: db}, nil
}

// Exec runs a single statement on the engine.
func (e *SQLEngine) Exec(ctx context.Context, query string, args ...any) error {
	_, err := e.db.ExecContext(ctx, query, args...)
	return err
}

// Close releases the engine connection pool.
func (e *SQLEngine) Close() error {
	return e.db.Close()
}
