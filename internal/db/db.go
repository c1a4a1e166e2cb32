package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"popout/internal/config"
)

// Open connects to the configured database. SQLite is the default and needs
// only a file path; postgres (pgx) and mysql take a DSN.
func Open(cfg config.Config) (*sql.DB, error) {
	switch cfg.DBDriver {
	case "sqlite":
		return OpenSQLite(cfg.DBPath, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime)
	case "pgx", "mysql":
		// The migration file runs as a single Exec; a MySQL DSN must
		// include multiStatements=true for it to apply.
		d, err := sql.Open(cfg.DBDriver, cfg.DBDSN)
		if err != nil {
			return nil, err
		}
		d.SetMaxOpenConns(cfg.DBMaxOpenConns)
		d.SetMaxIdleConns(cfg.DBMaxIdleConns)
		d.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
		if err := d.Ping(); err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.DBDriver)
	}
}

func OpenSQLite(path string, maxOpen, maxIdle int, maxLifetime time.Duration) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	d, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	d.SetMaxOpenConns(maxOpen)
	d.SetMaxIdleConns(maxIdle)
	d.SetConnMaxLifetime(maxLifetime)
	if err := d.Ping(); err != nil {
		return nil, err
	}
	return d, nil
}
