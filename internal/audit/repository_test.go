package audit

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/familytree-core/internal/infrastructure/database"
	"github.com/nerrad567/familytree-core/migrations"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{
		Path:        filepath.Join(t.TempDir(), "audit-test.db"),
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

func TestSQLiteRepository_CreateAndList(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()

	log := &AuditLog{
		Action:     ActionLoginFailed,
		EntityType: EntityUser,
		EntityID:   "usr-1",
		UserID:     "usr-1",
		Outcome:    OutcomeFailure,
		Details:    map[string]any{"remaining": 3},
	}
	if err := repo.Create(ctx, log); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if log.ID == "" || log.Source != SourceAPI || log.CreatedAt.IsZero() {
		t.Fatalf("Create() defaults not applied: %+v", log)
	}

	result, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 || len(result.Logs) != 1 {
		t.Fatalf("List() total = %d, logs = %d, want 1/1", result.Total, len(result.Logs))
	}

	got := result.Logs[0]
	if got.Action != ActionLoginFailed || got.Outcome != OutcomeFailure || got.FamilyID != "" {
		t.Errorf("List() log = %+v", got)
	}
	// JSON numbers come back as float64.
	if got.Details["remaining"] != float64(3) {
		t.Errorf("Details[remaining] = %v, want 3", got.Details["remaining"])
	}
	if result.Limit != defaultLimit {
		t.Errorf("Limit = %d, want %d", result.Limit, defaultLimit)
	}
}

func TestSQLiteRepository_ListFiltersAndOrder(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 6; i++ {
		family := "fam-a"
		if i%2 == 1 {
			family = "fam-b"
		}
		if err := repo.Create(ctx, &AuditLog{
			Action:     ActionFamilyJoin,
			EntityType: EntityMembership,
			EntityID:   fmt.Sprintf("mbr-%d", i),
			UserID:     fmt.Sprintf("usr-%d", i),
			FamilyID:   family,
			CreatedAt:  base.Add(time.Duration(i) * time.Millisecond),
		}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	result, err := repo.List(ctx, Filter{FamilyID: "fam-a"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 3 {
		t.Fatalf("Total = %d, want 3", result.Total)
	}
	// Most recent first, sub-second precision preserved.
	want := []string{"mbr-4", "mbr-2", "mbr-0"}
	for i, log := range result.Logs {
		if log.EntityID != want[i] {
			t.Errorf("Logs[%d].EntityID = %q, want %q", i, log.EntityID, want[i])
		}
	}

	result, err = repo.List(ctx, Filter{UserID: "usr-5", Action: ActionFamilyJoin})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 || result.Logs[0].FamilyID != "fam-b" {
		t.Errorf("user filter = %+v", result)
	}

	result, err = repo.List(ctx, Filter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 6 || len(result.Logs) != 2 || result.Logs[0].EntityID != "mbr-4" {
		t.Errorf("paged list = total %d, %d logs", result.Total, len(result.Logs))
	}
}

func TestSQLiteRepository_LimitClamp(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))

	result, err := repo.List(context.Background(), Filter{Limit: 10000, Offset: -3})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Limit != maxLimit || result.Offset != 0 {
		t.Errorf("Limit/Offset = %d/%d, want %d/0", result.Limit, result.Offset, maxLimit)
	}
	if result.Logs == nil {
		t.Error("Logs should be an empty slice, not nil")
	}
}

func TestSQLiteRepository_WriteEvent(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()

	f := NewFanout(nil, repo)
	f.Record(ctx, Event{
		Action:     ActionFamilyCreate,
		EntityType: EntityFamily,
		EntityID:   "fam-1",
		UserID:     "usr-1",
		FamilyID:   "fam-1",
	})

	result, err := repo.List(ctx, Filter{Action: ActionFamilyCreate})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("Total = %d, want 1", result.Total)
	}
	if got := result.Logs[0]; got.Outcome != OutcomeSuccess || got.Source != SourceAPI || got.FamilyID != "fam-1" {
		t.Errorf("stored event = %+v", got)
	}
	if repo.Name() != "sqlite" {
		t.Errorf("Name() = %q", repo.Name())
	}
}
