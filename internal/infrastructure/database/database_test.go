package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// openTestDB opens a fresh database in a temp directory.
func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(context.Background(), Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	return db
}

func TestOpen_CreatesDirectoryAndFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	path := filepath.Join(dir, "familytree.db")

	db, err := Open(context.Background(), Config{Path: path, BusyTimeout: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // test cleanup

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("database directory not created: %v", err)
	}
	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
}

func TestOpen_ForeignKeysEnabled(t *testing.T) {
	db := openTestDB(t)

	var enabled int
	if err := db.QueryRowContext(context.Background(), "PRAGMA foreign_keys").Scan(&enabled); err != nil {
		t.Fatalf("reading pragma: %v", err)
	}
	if enabled != 1 {
		t.Errorf("foreign_keys = %d, want 1", enabled)
	}
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)
	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestClose_Twice(t *testing.T) {
	db := openTestDB(t)
	if err := db.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := db.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() after Close() should fail")
	}
}

func TestWithTx_Commit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)"); err != nil {
		t.Fatalf("create table: %v", err)
	}

	err := WithTx(ctx, db.DB, func(tx Querier) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO kv (k, v) VALUES ('a', '1')")
		return err
	})
	if err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}

	var count int
	db.QueryRowContext(ctx, "SELECT COUNT(*) FROM kv").Scan(&count) //nolint:errcheck // checked via count
	if count != 1 {
		t.Errorf("row count = %d, want 1", count)
	}
}

func TestWithTx_RollbackOnError(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)"); err != nil {
		t.Fatalf("create table: %v", err)
	}

	sentinel := errors.New("boom")
	err := WithTx(ctx, db.DB, func(tx Querier) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO kv (k, v) VALUES ('a', '1')"); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("WithTx() error = %v, want sentinel", err)
	}

	var count int
	db.QueryRowContext(ctx, "SELECT COUNT(*) FROM kv").Scan(&count) //nolint:errcheck // checked via count
	if count != 0 {
		t.Errorf("row count = %d, want 0 after rollback", count)
	}
}

func TestWithTx_RollbackOnPanic(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)"); err != nil {
		t.Fatalf("create table: %v", err)
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to be re-raised")
			}
		}()
		_ = WithTx(ctx, db.DB, func(tx Querier) error { //nolint:errcheck // panics
			tx.ExecContext(ctx, "INSERT INTO kv (k, v) VALUES ('a', '1')") //nolint:errcheck // test
			panic("handler bug")
		})
	}()

	var count int
	db.QueryRowContext(ctx, "SELECT COUNT(*) FROM kv").Scan(&count) //nolint:errcheck // checked via count
	if count != 0 {
		t.Errorf("row count = %d, want 0 after panic", count)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT UNIQUE)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO kv (k, v) VALUES ('a', 'x')"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	_, err := db.ExecContext(ctx, "INSERT INTO kv (k, v) VALUES ('b', 'x')")
	if !IsUniqueViolation(err) {
		t.Errorf("IsUniqueViolation(%v) = false, want true", err)
	}

	_, err = db.ExecContext(ctx, "INSERT INTO kv (k, v) VALUES ('a', 'y')")
	if !IsUniqueViolation(err) {
		t.Errorf("IsUniqueViolation(%v) = false for primary key, want true", err)
	}

	if IsUniqueViolation(errors.New("UNIQUE constraint failed")) {
		t.Error("plain errors should not be treated as constraint failures")
	}
	if IsUniqueViolation(nil) {
		t.Error("IsUniqueViolation(nil) = true")
	}
}
