package syncer

import (
	"context"
	"errors"
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

type stubRequirementSource struct {
	reqs []record.Requirement
	err  error
}

func (s *stubRequirementSource) FetchRequirements(_ context.Context, _ int) ([]record.Requirement, error) {
	return s.reqs, s.err
}

type stubTestSource struct {
	cases      []record.TestCase
	executions []record.TestExecution
	casesErr   error
	execErr    error
}

func (s *stubTestSource) FetchTestCases(_ context.Context) ([]record.TestCase, error) {
	return s.cases, s.casesErr
}

func (s *stubTestSource) FetchExecutions(_ context.Context, _ int) ([]record.TestExecution, error) {
	return s.executions, s.execErr
}

func fixtureSources() (*stubRequirementSource, *stubTestSource) {
	runAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	reqSource := &stubRequirementSource{reqs: []record.Requirement{
		{JiraKey: "SCRUM-1", Summary: "Login works", Priority: record.PriorityHigh, Status: "Open", AppKey: "SCRUM"},
		{JiraKey: "SCRUM-2", Summary: "Checkout works", Priority: record.PriorityCritical, Status: "Open", AppKey: "SCRUM"},
	}}
	testSource := &stubTestSource{
		cases: []record.TestCase{
			{TestKey: "T-1", Name: "login", TestType: "e2e", Status: "active", AppKey: "SCRUM", LinkedJiraKeys: []string{"SCRUM-1"}},
			{TestKey: "T-2", Name: "checkout", TestType: "e2e", Status: "active", AppKey: "SCRUM", LinkedJiraKeys: []string{"SCRUM-2", "SCRUM-999"}},
		},
		executions: []record.TestExecution{
			{TestKey: "T-1", Result: record.ResultPass, RunAt: &runAt},
			{TestKey: "T-ghost", Result: record.ResultFail, RunAt: &runAt},
		},
	}
	return reqSource, testSource
}

func TestRunFullPipeline(t *testing.T) {
	store := setupStore(t)
	reqSource, testSource := fixtureSources()

	report, err := NewService(store).Run(context.Background(), reqSource, testSource, 0)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.RequirementsUpserted != 2 {
		t.Errorf("RequirementsUpserted = %d, want 2", report.RequirementsUpserted)
	}
	if report.TestsUpserted != 2 {
		t.Errorf("TestsUpserted = %d, want 2", report.TestsUpserted)
	}
	if report.LinksUpserted != 2 || report.LinksSkipped != 1 {
		t.Errorf("links = %d upserted / %d skipped, want 2 / 1", report.LinksUpserted, report.LinksSkipped)
	}
	if report.ExecutionsAppended != 1 || report.ExecutionsSkipped != 1 {
		t.Errorf("executions = %d appended / %d skipped, want 1 / 1", report.ExecutionsAppended, report.ExecutionsSkipped)
	}
	if report.StatsRecomputed != 2 {
		t.Errorf("StatsRecomputed = %d, want 2", report.StatsRecomputed)
	}
	if report.TestPhasesSkipped {
		t.Error("TestPhasesSkipped should be false")
	}
}

func TestRunTwiceIsIdempotent(t *testing.T) {
	store := setupStore(t)
	reqSource, testSource := fixtureSources()
	svc := NewService(store)

	if _, err := svc.Run(context.Background(), reqSource, testSource, 0); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	report, err := svc.Run(context.Background(), reqSource, testSource, 0)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	if report.ExecutionsAppended != 0 || report.ExecutionsDeduped != 1 {
		t.Errorf("second run executions = %d appended / %d deduped, want 0 / 1",
			report.ExecutionsAppended, report.ExecutionsDeduped)
	}

	gaps, err := store.UncoveredRequirements(context.Background())
	if err != nil {
		t.Fatalf("UncoveredRequirements() error = %v", err)
	}
	if len(gaps) != 0 {
		t.Errorf("uncovered after double sync = %d, want 0", len(gaps))
	}
}

func TestRunAbortsWhenRequirementFetchFails(t *testing.T) {
	store := setupStore(t)
	reqSource := &stubRequirementSource{err: errors.New("jira down")}
	_, testSource := fixtureSources()

	_, err := NewService(store).Run(context.Background(), reqSource, testSource, 0)
	if err == nil {
		t.Fatal("Run() should abort when the requirement source fails")
	}
}

func TestRunSkipsTestPhasesWithoutTestSource(t *testing.T) {
	store := setupStore(t)
	reqSource, _ := fixtureSources()

	report, err := NewService(store).Run(context.Background(), reqSource, nil, 0)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !report.TestPhasesSkipped {
		t.Error("TestPhasesSkipped should be true without a test source")
	}
	if report.RequirementsUpserted != 2 {
		t.Errorf("RequirementsUpserted = %d, want 2", report.RequirementsUpserted)
	}
	if report.TestsUpserted != 0 || report.ExecutionsAppended != 0 {
		t.Errorf("test phases ran despite nil source: %+v", report)
	}
}

func TestRunDegradesWhenTestCaseFetchFails(t *testing.T) {
	store := setupStore(t)
	reqSource, _ := fixtureSources()
	testSource := &stubTestSource{casesErr: errors.New("zephyr down")}

	report, err := NewService(store).Run(context.Background(), reqSource, testSource, 0)
	if err != nil {
		t.Fatalf("Run() should degrade, not abort: %v", err)
	}
	if !report.TestPhasesSkipped {
		t.Error("TestPhasesSkipped should be true after a test case fetch failure")
	}
}

func TestRunContinuesToStatsWhenExecutionFetchFails(t *testing.T) {
	store := setupStore(t)
	reqSource, testSource := fixtureSources()
	testSource.execErr = errors.New("zephyr flaked")

	report, err := NewService(store).Run(context.Background(), reqSource, testSource, 0)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.ExecutionsAppended != 0 {
		t.Errorf("ExecutionsAppended = %d, want 0", report.ExecutionsAppended)
	}
	if report.StatsRecomputed != 2 {
		t.Errorf("StatsRecomputed = %d, want 2", report.StatsRecomputed)
	}
}
