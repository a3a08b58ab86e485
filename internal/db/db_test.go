package db

import (
	"path/filepath"
	"testing"
)

func TestNew_CreatesDatabase(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	database, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer database.Close()

	tables := []string{"sessions", "commands", "config", "_migrations"}
	for _, table := range tables {
		var name string
		err := database.Conn().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestNew_WALEnabled(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	database, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer database.Close()

	var journalMode string
	err = database.Conn().QueryRow("PRAGMA journal_mode").Scan(&journalMode)
	if err != nil {
		t.Fatalf("PRAGMA journal_mode error = %v", err)
	}

	if journalMode != "wal" {
		t.Errorf("journal_mode = %s, want wal", journalMode)
	}
}

func TestNew_MigrationsIdempotent(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db1, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("first New() error = %v", err)
	}
	db1.Close()

	db2, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}
	defer db2.Close()

	var count int
	err = db2.Conn().QueryRow("SELECT COUNT(*) FROM _migrations").Scan(&count)
	if err != nil {
		t.Fatalf("count migrations error = %v", err)
	}

	if count != 3 {
		t.Errorf("migration count = %d, want 3", count)
	}
}

func TestMarkInterrupted(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db1, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = db1.Conn().Exec(`
		INSERT INTO sessions (id, prompt, state, created_at, updated_at)
		VALUES ('s-running', 'trim it', 'executing', datetime('now'), datetime('now')),
		       ('s-done', 'trim it', 'completed', datetime('now'), datetime('now'))
	`)
	if err != nil {
		t.Fatalf("insert sessions error = %v", err)
	}
	_, err = db1.Conn().Exec(`
		INSERT INTO commands (id, session_id, kind, description, phase, created_at, updated_at)
		VALUES ('c-1', 's-running', 'captions.generate', 'Add captions', 'executing', datetime('now'), datetime('now'))
	`)
	if err != nil {
		t.Fatalf("insert command error = %v", err)
	}
	db1.Close()

	db2, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}
	defer db2.Close()

	var state, errMsg string
	err = db2.Conn().QueryRow("SELECT state, error FROM sessions WHERE id = 's-running'").Scan(&state, &errMsg)
	if err != nil {
		t.Fatalf("query session error = %v", err)
	}
	if state != "errored" {
		t.Errorf("session state = %s, want errored", state)
	}
	if errMsg != "interrupted by restart" {
		t.Errorf("session error = %s, want 'interrupted by restart'", errMsg)
	}

	err = db2.Conn().QueryRow("SELECT state FROM sessions WHERE id = 's-done'").Scan(&state)
	if err != nil {
		t.Fatalf("query session error = %v", err)
	}
	if state != "completed" {
		t.Errorf("completed session state = %s, want completed", state)
	}

	var phase string
	err = db2.Conn().QueryRow("SELECT phase FROM commands WHERE id = 'c-1'").Scan(&phase)
	if err != nil {
		t.Fatalf("query command error = %v", err)
	}
	if phase != "failed" {
		t.Errorf("command phase = %s, want failed", phase)
	}
}

func TestNew_ConnectionPragmas(t *testing.T) {
	database, err := New(filepath.Join(t.TempDir(), "nested", "journal.db"), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer database.Close()

	var fk, busy int
	if err := database.Conn().QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatal(err)
	}
	if err := database.Conn().QueryRow("PRAGMA busy_timeout").Scan(&busy); err != nil {
		t.Fatal(err)
	}
	if fk != 1 || busy != 5000 {
		t.Errorf("foreign_keys = %d, busy_timeout = %d; want 1, 5000", fk, busy)
	}
}
