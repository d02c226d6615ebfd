// Package damdb stores the configuration documents served by the fake DAM.
// It runs on a local SQLite file or on a Turso (libsql) database.
package damdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "github.com/tursodatabase/libsql-client-go/libsql"

	"github.com/dnastack/ddap-admin/internal/infrastructure/observability/logging"
	"github.com/dnastack/ddap-admin/pkg/config"
)

// Config selects and tunes the database.
type Config struct {
	SQLitePath      string
	TursoURL        string
	TursoToken      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ConfigFromEnv reads the database settings from pkg/config.
func ConfigFromEnv() Config {
	return Config{
		SQLitePath:      config.FakeDamDBPath,
		TursoURL:        config.TursoDatabaseURL,
		TursoToken:      config.TursoAuthToken,
		MaxOpenConns:    config.DBMaxOpenConns,
		MaxIdleConns:    config.DBMaxIdleConns,
		ConnMaxLifetime: time.Duration(config.DBConnMaxLifetimeMinutes) * time.Minute,
	}
}

// UseTurso reports whether the remote database is selected.
func (c Config) UseTurso() bool {
	return c.TursoURL != "" && c.TursoToken != ""
}

// DB represents a wrapper around the standard SQL database connection.
type DB struct {
	*sql.DB
	UseTurso bool
}

// Open connects to the configured database and creates the schema.
func Open(ctx context.Context, cfg Config, logger *logging.ChanneledLogger) (*DB, error) {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	start := time.Now()

	var driverName, dataSourceName string
	if cfg.UseTurso() {
		driverName = "libsql"
		dataSourceName = cfg.TursoURL + "?authToken=" + cfg.TursoToken
	} else {
		driverName = "sqlite3"
		dataSourceName = cfg.SQLitePath
		if cfg.SQLitePath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
			dataSourceName += "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
		}
	}
	logger.Database().Debug("Creating new database connection", "driverName", driverName)

	conn, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		logger.Database().Error("Failed to open database connection", "error", err.Error(), "driverName", driverName)
		return nil, fmt.Errorf("open %s database: %w", driverName, err)
	}

	if cfg.SQLitePath == ":memory:" && !cfg.UseTurso() {
		// every pooled connection to :memory: is a separate database
		conn.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			conn.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			conn.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}

	db := &DB{DB: conn, UseTurso: cfg.UseTurso()}
	if err := db.Check(ctx); err != nil {
		conn.Close()
		logger.Database().Error("Database ping failed", "error", err.Error(), "driverName", driverName)
		return nil, err
	}
	if err := NewTableCreator().CreateSchema(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}

	logger.Database().Info("Database connection established", "driverName", driverName, "duration", time.Since(start))
	return db, nil
}

// Check runs a trivial query against the database.
func (db *DB) Check(ctx context.Context) error {
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("connection test query failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("unexpected query result: %d", result)
	}
	return nil
}
