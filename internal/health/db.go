package health

import (
	"context"
	"database/sql"
)

// DBChecker pings the Postgres pool behind the activity gateway and award store.
type DBChecker struct {
	db *sql.DB
}

// NewDBChecker creates a database checker.
func NewDBChecker(db *sql.DB) *DBChecker {
	return &DBChecker{db: db}
}

// HealthCheck implements Checker.
func (d *DBChecker) HealthCheck(ctx context.Context) error {
	return d.db.PingContext(ctx)
}
