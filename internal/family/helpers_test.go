package family

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/familytree-core/internal/infrastructure/database"
	"github.com/nerrad567/familytree-core/internal/infrastructure/logging"
	"github.com/nerrad567/familytree-core/migrations"
)

// testDB creates a temporary SQLite database with every migration applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{
		Path:        filepath.Join(t.TempDir(), "family-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}
	return db.DB
}

// createUser inserts a bare user row and returns its ID.
func createUser(t *testing.T, db *sql.DB, username string) string {
	t.Helper()

	id := "usr-" + uuid.NewString()[:8]
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := db.Exec(
		`INSERT INTO users (id, username, password_hash, created_at, updated_at) VALUES (?, ?, 'x', ?, ?)`,
		id, username, now, now,
	); err != nil {
		t.Fatalf("creating user %s: %v", username, err)
	}
	return id
}

// stepClock returns a clock that moves forward one millisecond per call.
func stepClock() func() time.Time {
	t := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Millisecond)
		return t
	}
}

func newTestRepo(t *testing.T) (*SQLiteRepository, *sql.DB) {
	t.Helper()
	db := testDB(t)
	repo := NewSQLiteRepository(db)
	repo.now = stepClock()
	return repo, db
}

var discardLogger = logging.Discard()
