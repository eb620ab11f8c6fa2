package ingest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"qagraph/internal/domain/record"
	"qagraph/internal/infrastructure/persistence/sqlite/model"
	"qagraph/internal/infrastructure/persistence/sqlite/repository"
	"qagraph/internal/ports"
)

func setupStore(t *testing.T) ports.GraphStore {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "graph.sqlite")
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(
		&model.Application{},
		&model.Requirement{},
		&model.Test{},
		&model.TestExecution{},
		&model.Endpoint{},
		&model.RequirementCoverage{},
		&model.EndpointDependency{},
		&model.TestHitsEndpoint{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return repository.NewGraphRepository(db)
}

func TestIngestWritesTestsAndHistory(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	cases, executions, err := ParseReport([]byte(sampleReport), "MST", now)
	if err != nil {
		t.Fatalf("ParseReport() error = %v", err)
	}

	summary, err := NewService(store).Ingest(ctx, "MST", "Main Storefront", cases, executions)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if summary.Passed != 1 || summary.Failed != 1 || summary.Total != 2 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.TestsUpserted != 2 || summary.ExecutionsAppended != 2 {
		t.Fatalf("summary = %+v", summary)
	}

	// Stats were recomputed from the ingested history.
	tests, err := store.FlakyTests(ctx, 0)
	if err != nil {
		t.Fatalf("FlakyTests() error = %v", err)
	}
	if len(tests) != 2 {
		t.Fatalf("tests = %d, want 2", len(tests))
	}
	for _, test := range tests {
		if test.LastResult == nil || test.LastRunAt == nil {
			t.Fatalf("stats not recomputed for %s: %+v", test.TestKey, test)
		}
	}
}

func TestIngestKeepsRetryHistory(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	report := `{"suites":[{"file":"checkout.spec.ts","specs":[{"title":"pays","tests":[
	  {"results":[{"status":"failed","error":{"message":"flaked"}},{"status":"passed"}]}
	]}]}]}`
	cases, executions, err := ParseReport([]byte(report), "MST", now)
	if err != nil {
		t.Fatalf("ParseReport() error = %v", err)
	}

	summary, err := NewService(store).Ingest(ctx, "MST", "", cases, executions)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	// A fail-then-pass retry is two history rows, not one.
	if summary.ExecutionsAppended != 2 {
		t.Fatalf("ExecutionsAppended = %d, want 2", summary.ExecutionsAppended)
	}
	if summary.Passed != 1 || summary.Failed != 1 {
		t.Fatalf("summary = %+v", summary)
	}

	tests, err := store.FlakyTests(ctx, 1)
	if err != nil {
		t.Fatalf("FlakyTests() error = %v", err)
	}
	if len(tests) != 1 {
		t.Fatalf("flaky tests = %d, want 1", len(tests))
	}
	got := tests[0]
	if got.FlakyCount != 1 {
		t.Fatalf("flaky_count = %d, want 1", got.FlakyCount)
	}
	if got.LastResult == nil || *got.LastResult != record.ResultPass {
		t.Fatalf("last_result = %v, want pass (the retry outcome)", got.LastResult)
	}
}

func TestIngestSameReportTwiceIsIdempotent(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	cases, executions, err := ParseReport([]byte(sampleReport), "MST", now)
	if err != nil {
		t.Fatalf("ParseReport() error = %v", err)
	}

	svc := NewService(store)
	if _, err := svc.Ingest(ctx, "MST", "", cases, executions); err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}
	summary, err := svc.Ingest(ctx, "MST", "", cases, executions)
	if err != nil {
		t.Fatalf("second Ingest() error = %v", err)
	}
	if summary.ExecutionsAppended != 0 {
		t.Fatalf("second ingest appended %d executions, want 0", summary.ExecutionsAppended)
	}
}
