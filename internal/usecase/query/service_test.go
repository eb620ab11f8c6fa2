package query

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

func mustResolveApp(t *testing.T, store ports.GraphStore, key, name string) uint64 {
	t.Helper()
	id, err := store.ResolveApplication(context.Background(), key, name)
	if err != nil {
		t.Fatalf("resolve application %s: %v", key, err)
	}
	return id
}

func mustUpsertRequirement(t *testing.T, store ports.GraphStore, appID uint64, jiraKey, summary, priority string) uint64 {
	t.Helper()
	id, err := store.UpsertRequirement(context.Background(), record.Requirement{
		JiraKey: jiraKey, Summary: summary, Priority: priority, Status: "Open",
	}, appID)
	if err != nil {
		t.Fatalf("upsert requirement %s: %v", jiraKey, err)
	}
	return id
}

func mustUpsertTest(t *testing.T, store ports.GraphStore, appID uint64, testKey, name string) uint64 {
	t.Helper()
	id, err := store.UpsertTest(context.Background(), record.TestCase{
		TestKey: testKey, Name: name, TestType: "e2e", Status: "active",
	}, appID)
	if err != nil {
		t.Fatalf("upsert test %s: %v", testKey, err)
	}
	return id
}

func mustUpsertEndpoint(t *testing.T, store ports.GraphStore, appID uint64, method, path string) uint64 {
	t.Helper()
	id, err := store.UpsertEndpoint(context.Background(), appID, method, path, "")
	if err != nil {
		t.Fatalf("upsert endpoint %s %s: %v", method, path, err)
	}
	return id
}

func TestCoverageGapsOrderedByPriority(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	appID := mustResolveApp(t, store, "SCRUM", "Scrum")

	mustUpsertRequirement(t, store, appID, "SCRUM-3", "low gap", record.PriorityLow)
	mustUpsertRequirement(t, store, appID, "SCRUM-1", "critical gap", record.PriorityCritical)
	mustUpsertRequirement(t, store, appID, "SCRUM-2", "another critical gap", record.PriorityCritical)
	covered := mustUpsertRequirement(t, store, appID, "SCRUM-4", "covered", record.PriorityCritical)
	testID := mustUpsertTest(t, store, appID, "T-1", "t")
	if err := store.LinkRequirementToTest(ctx, covered, testID, "linked"); err != nil {
		t.Fatalf("link: %v", err)
	}

	gaps, err := NewService(store).CoverageGaps(ctx)
	if err != nil {
		t.Fatalf("CoverageGaps() error = %v", err)
	}

	keys := make([]string, 0, len(gaps))
	for _, g := range gaps {
		keys = append(keys, g.JiraKey)
	}
	want := []string{"SCRUM-1", "SCRUM-2", "SCRUM-3"}
	if len(keys) != len(want) {
		t.Fatalf("gap keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("gap keys = %v, want %v", keys, want)
		}
	}
}

func TestImpactAnalysis(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	appID := mustResolveApp(t, store, "APP", "App")

	reqID := mustUpsertRequirement(t, store, appID, "APP-12", "login flow", record.PriorityHigh)
	t1 := mustUpsertTest(t, store, appID, "T-1", "login happy path")
	t2 := mustUpsertTest(t, store, appID, "T-2", "login error path")
	if err := store.LinkRequirementToTest(ctx, reqID, t1, "linked"); err != nil {
		t.Fatalf("link t1: %v", err)
	}
	if err := store.LinkRequirementToTest(ctx, reqID, t2, "linked"); err != nil {
		t.Fatalf("link t2: %v", err)
	}
	endpointID := mustUpsertEndpoint(t, store, appID, "GET", "/x")
	if err := store.LinkTestToEndpoint(ctx, t1, endpointID); err != nil {
		t.Fatalf("link test to endpoint: %v", err)
	}

	impact, err := NewService(store).ImpactAnalysis(ctx, "APP-12")
	if err != nil {
		t.Fatalf("ImpactAnalysis() error = %v", err)
	}
	if len(impact.Tests) != 2 {
		t.Errorf("tests = %d, want 2", len(impact.Tests))
	}
	if len(impact.Endpoints) != 1 {
		t.Errorf("endpoints = %d, want 1", len(impact.Endpoints))
	}
	if impact.Summary != "2 test(s) covering APP-12, hitting 1 endpoint(s)" {
		t.Errorf("summary = %q", impact.Summary)
	}
}

func TestImpactAnalysisUnknownKey(t *testing.T) {
	store := setupStore(t)

	_, err := NewService(store).ImpactAnalysis(context.Background(), "NOPE-1")
	if !errors.Is(err, ports.ErrRequirementNotFound) {
		t.Fatalf("err = %v, want ErrRequirementNotFound", err)
	}
}

func TestDependencyMapFor(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	appA := mustResolveApp(t, store, "A", "App A")
	appB := mustResolveApp(t, store, "B", "App B")
	appC := mustResolveApp(t, store, "C", "App C")

	aOrders := mustUpsertEndpoint(t, store, appA, "POST", "/orders")
	bPay := mustUpsertEndpoint(t, store, appB, "POST", "/payments")
	bRefund := mustUpsertEndpoint(t, store, appB, "POST", "/refunds")
	cReport := mustUpsertEndpoint(t, store, appC, "GET", "/report")

	// A calls B twice, C calls A once.
	if err := store.LinkEndpointDependency(ctx, aOrders, bPay, "calls"); err != nil {
		t.Fatalf("link a->b pay: %v", err)
	}
	if err := store.LinkEndpointDependency(ctx, aOrders, bRefund, "calls"); err != nil {
		t.Fatalf("link a->b refund: %v", err)
	}
	if err := store.LinkEndpointDependency(ctx, cReport, aOrders, "calls"); err != nil {
		t.Fatalf("link c->a: %v", err)
	}

	depMap, err := NewService(store).DependencyMapFor(ctx, "A")
	if err != nil {
		t.Fatalf("DependencyMapFor() error = %v", err)
	}

	if len(depMap.Outbound) != 1 || depMap.Outbound[0].App != "App B" {
		t.Fatalf("outbound groups = %+v", depMap.Outbound)
	}
	if len(depMap.Outbound[0].Edges) != 2 {
		t.Errorf("outbound edges to App B = %d, want 2", len(depMap.Outbound[0].Edges))
	}
	if len(depMap.Inbound) != 1 || depMap.Inbound[0].App != "App C" {
		t.Fatalf("inbound groups = %+v", depMap.Inbound)
	}
	if depMap.Summary != "App A depends on 2 external endpoint(s), and 1 external endpoint(s) depend on it" {
		t.Errorf("summary = %q", depMap.Summary)
	}
}

func TestDependencyMapForUnknownApp(t *testing.T) {
	store := setupStore(t)

	_, err := NewService(store).DependencyMapFor(context.Background(), "GHOST")
	if !errors.Is(err, ports.ErrApplicationNotFound) {
		t.Fatalf("err = %v, want ErrApplicationNotFound", err)
	}
}

func TestFlakyTestsAnnotatesRecentRuns(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	appID := mustResolveApp(t, store, "SCRUM", "Scrum")

	flaky := mustUpsertTest(t, store, appID, "T-flaky", "flaky")
	stable := mustUpsertTest(t, store, appID, "T-stable", "stable")

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		result := record.ResultPass
		if i%2 == 0 {
			result = record.ResultFail
		}
		runAt := base.Add(time.Duration(i) * time.Hour)
		if _, err := store.AppendExecution(ctx, flaky, record.TestExecution{Result: result, RunAt: &runAt}); err != nil {
			t.Fatalf("append flaky execution %d: %v", i, err)
		}
	}
	runAt := base
	if _, err := store.AppendExecution(ctx, stable, record.TestExecution{Result: record.ResultPass, RunAt: &runAt}); err != nil {
		t.Fatalf("append stable execution: %v", err)
	}
	for _, id := range []uint64{flaky, stable} {
		if err := store.RecomputeTestStats(ctx, id); err != nil {
			t.Fatalf("recompute stats: %v", err)
		}
	}

	items, err := NewService(store).FlakyTests(ctx, 1)
	if err != nil {
		t.Fatalf("FlakyTests() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("flaky tests = %d, want 1", len(items))
	}
	got := items[0]
	if got.TestKey != "T-flaky" || got.FlakyCount != 4 {
		t.Fatalf("flaky test = %s with count %d", got.TestKey, got.FlakyCount)
	}
	if len(got.RecentRuns) != 5 {
		t.Fatalf("recent runs = %d, want 5", len(got.RecentRuns))
	}
	for i := 1; i < len(got.RecentRuns); i++ {
		prev, cur := got.RecentRuns[i-1].RunAt, got.RecentRuns[i].RunAt
		if prev == nil || cur == nil || prev.Before(*cur) {
			t.Fatalf("recent runs not newest first: %v then %v", prev, cur)
		}
	}
}

func TestFlakyTestsRejectsNegativeThreshold(t *testing.T) {
	store := setupStore(t)

	if _, err := NewService(store).FlakyTests(context.Background(), -1); err == nil {
		t.Fatal("FlakyTests(-1) should fail")
	}
}

func TestAppSummary(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	appA := mustResolveApp(t, store, "A", "App A")
	mustResolveApp(t, store, "B", "App B")

	mustUpsertRequirement(t, store, appA, "A-1", "r", record.PriorityHigh)
	mustUpsertTest(t, store, appA, "T-1", "t")
	mustUpsertTest(t, store, appA, "T-2", "t2")
	mustUpsertEndpoint(t, store, appA, "GET", "/x")

	summaries, err := NewService(store).AppSummary(ctx)
	if err != nil {
		t.Fatalf("AppSummary() error = %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("summaries = %d, want 2", len(summaries))
	}
	byKey := make(map[string]ports.AppSummaryRow, len(summaries))
	for _, s := range summaries {
		byKey[s.AppKey] = s
	}
	a := byKey["A"]
	if a.RequirementCount != 1 || a.TestCount != 2 || a.EndpointCount != 1 {
		t.Fatalf("summary for A = %+v", a)
	}
	b := byKey["B"]
	if b.RequirementCount != 0 || b.TestCount != 0 || b.EndpointCount != 0 {
		t.Fatalf("summary for B = %+v", b)
	}
}

func TestSearchMatchesCaseInsensitiveSubstrings(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	appID := mustResolveApp(t, store, "SCRUM", "Scrum")

	mustUpsertRequirement(t, store, appID, "SCRUM-1", "Login page renders", record.PriorityHigh)
	mustUpsertRequirement(t, store, appID, "SCRUM-2", "Checkout flow", record.PriorityHigh)
	mustUpsertTest(t, store, appID, "T-1", "user can LOGIN")

	result, err := NewService(store).Search(ctx, "login")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(result.Requirements) != 1 || len(result.Tests) != 1 || result.TotalResults != 2 {
		t.Fatalf("search result = %+v", result)
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	store := setupStore(t)

	if _, err := NewService(store).Search(context.Background(), "   "); err == nil {
		t.Fatal("Search(\"   \") should fail")
	}
}
