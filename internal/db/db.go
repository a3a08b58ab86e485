// Package db opens the agent's SQLite journal and applies the embedded
// migrations.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/logging"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// connPragmas are applied by the driver to every new connection.
var connPragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"foreign_keys(1)",
}

type DB struct {
	conn   *sql.DB
	logger *slog.Logger
}

// New opens (creating if needed) the journal at path, migrates it and fails
// whatever the previous process left in flight.
func New(path string, logger *slog.Logger) (*DB, error) {
	logger = logging.WithComponent(logging.OrDiscard(logger), "db")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; the journal is small and WAL keeps readers cheap.
	conn.SetMaxOpenConns(1)

	ctx := context.Background()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	d := &DB{conn: conn, logger: logger}
	if err := d.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if n, err := d.failInterrupted(ctx); err != nil {
		logger.Warn("failed to mark interrupted work", "error", err)
	} else if n > 0 {
		logger.Info("marked interrupted work as failed", "rows", n)
	}
	return d, nil
}

func dsn(path string) string {
	q := make([]string, len(connPragmas))
	for i, p := range connPragmas {
		q[i] = "_pragma=" + p
	}
	return path + "?" + strings.Join(q, "&")
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) Conn() *sql.DB {
	return d.conn
}

// migrate applies, in file-name order, every embedded migration not yet
// recorded. Each file runs in its own transaction with its record.
func (d *DB) migrate(ctx context.Context) error {
	if _, err := d.conn.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS _migrations (
		name TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`); err != nil {
		return err
	}

	applied := map[string]bool{}
	rows, err := d.conn.QueryContext(ctx, `SELECT name FROM _migrations`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		applied[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return err
	}
	for _, file := range names {
		name := filepath.Base(file)
		if applied[name] {
			continue
		}
		body, err := migrationsFS.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if err := d.apply(ctx, name, string(body)); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		d.logger.Info("applied migration", "name", name)
	}
	return nil
}

func (d *DB) apply(ctx context.Context, name, body string) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, body); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO _migrations (name) VALUES (?)`, name); err != nil {
		return err
	}
	return tx.Commit()
}

// failInterrupted fails sessions and command records that were still in
// flight when the previous process exited.
func (d *DB) failInterrupted(ctx context.Context) (int64, error) {
	const reason = "interrupted by restart"
	stmts := []string{
		`UPDATE sessions SET state = 'errored', error = ?, updated_at = datetime('now')
		 WHERE state IN ('planning', 'executing')`,
		`UPDATE commands SET phase = 'failed', error = ?, updated_at = datetime('now')
		 WHERE phase IN ('queued', 'executing')`,
	}
	var total int64
	for _, stmt := range stmts {
		res, err := d.conn.ExecContext(ctx, stmt, reason)
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}
