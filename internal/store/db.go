package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect covers the differences between the supported SQL engines.
type Dialect interface {
	// DriverName is the database/sql driver to open.
	DriverName() string
	// Rebind rewrites ? placeholders into the engine's syntax.
	Rebind(query string) string
	// Schema returns the statements creating the node table.
	Schema() []string
	// Configure applies pool settings and session options.
	Configure(ctx context.Context, db *sql.DB) error
	// WriteLock is run first in every write transaction, or "" when the
	// engine already serializes overlapping writers.
	WriteLock() string
}

// DialectFor resolves a DB_DRIVER value.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "pgx":
		return postgresDialect{}, nil
	case "sqlite", "sqlite3":
		return sqliteDialect{}, nil
	case "mysql":
		return mysqlDialect{}, nil
	}
	return nil, fmt.Errorf("unsupported database driver: %s", driver)
}

// DB wraps sql.DB together with its dialect.
type DB struct {
	Client  *sql.DB
	Dialect Dialect
}

// NewDB opens and pings a connection for the given driver.
func NewDB(ctx context.Context, driver, connString string) (*DB, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(dialect.DriverName(), connString)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if err := dialect.Configure(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure %s: %w", driver, err)
	}
	return &DB{Client: db, Dialect: dialect}, nil
}

// Migrate creates the node table if it is missing.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range d.Dialect.Schema() {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Healthy verifies database connectivity.
func (d *DB) Healthy(ctx context.Context) bool {
	if d == nil || d.Client == nil {
		return false
	}
	return d.Client.PingContext(ctx) == nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

var placeholder = regexp.MustCompile(`\?`)

func numberPlaceholders(query string) string {
	n := 0
	return placeholder.ReplaceAllStringFunc(query, func(string) string {
		n++
		return "$" + strconv.Itoa(n)
	})
}

type postgresDialect struct{}

func (postgresDialect) DriverName() string         { return "pgx" }
func (postgresDialect) Rebind(query string) string { return numberPlaceholders(query) }

func (postgresDialect) Schema() []string {
	// C collation keeps byte order so subtree range scans work.
	return []string{`CREATE TABLE IF NOT EXISTS record_nodes (
		path  TEXT COLLATE "C" PRIMARY KEY,
		value TEXT NOT NULL
	)`}
}

func (postgresDialect) WriteLock() string { return "SELECT pg_advisory_xact_lock(7216)" }

func (postgresDialect) Configure(_ context.Context, db *sql.DB) error {
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return nil
}

type sqliteDialect struct{}

func (sqliteDialect) DriverName() string         { return "sqlite3" }
func (sqliteDialect) Rebind(query string) string { return query }

func (sqliteDialect) Schema() []string {
	return []string{`CREATE TABLE IF NOT EXISTS record_nodes (
		path  TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`}
}

func (sqliteDialect) WriteLock() string { return "" }

func (sqliteDialect) Configure(ctx context.Context, db *sql.DB) error {
	// one writer; also keeps :memory: databases on a single connection
	db.SetMaxOpenConns(1)
	_, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;")
	return err
}

type mysqlDialect struct{}

func (mysqlDialect) DriverName() string         { return "mysql" }
func (mysqlDialect) Rebind(query string) string { return query }

func (mysqlDialect) Schema() []string {
	return []string{`CREATE TABLE IF NOT EXISTS record_nodes (
		path  VARCHAR(760) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL PRIMARY KEY,
		value LONGTEXT NOT NULL
	)`}
}

// InnoDB next-key locks taken by the range DELETE serialize overlapping writers.
func (mysqlDialect) WriteLock() string { return "" }

func (mysqlDialect) Configure(_ context.Context, db *sql.DB) error {
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return nil
}
