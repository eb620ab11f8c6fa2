package ports

import (
	"context"
	"errors"
	"time"

	"qagraph/internal/domain/record"
)

var (
	ErrApplicationNotFound = errors.New("application not found")
	ErrRequirementNotFound = errors.New("requirement not found")
)

type ApplicationRow struct {
	ID        uint64
	AppKey    string
	Name      string
	TeamOwner string
}

type RequirementRow struct {
	ID          uint64
	JiraKey     string
	Summary     string
	Description string
	Priority    string
	Status      string
	AppName     string
}

type TestRow struct {
	ID            uint64
	TestKey       string
	Name          string
	FilePath      string
	TestType      string
	Status        string
	AppName       string
	LastResult    *string
	FlakyCount    int64
	AvgDurationMS *int64
	LastRunAt     *time.Time
}

// CoveredTestRow is a test reached through a coverage edge, annotated with
// the edge's coverage_type.
type CoveredTestRow struct {
	TestRow
	CoverageType string
}

type ExecutionRow struct {
	ID           uint64
	TestID       uint64
	Result       string
	DurationMS   *int64
	ErrorMessage string
	RunAt        *time.Time
	BuildID      string
}

type EndpointRow struct {
	ID          uint64
	Method      string
	Path        string
	Description string
	AppName     string
}

// DependencyRow is one directed endpoint-to-endpoint edge with both sides
// expanded to (method, path, owning application).
type DependencyRow struct {
	SourceMethod   string
	SourcePath     string
	SourceApp      string
	TargetMethod   string
	TargetPath     string
	TargetApp      string
	DependencyType string
}

type AppSummaryRow struct {
	AppKey           string
	Name             string
	TeamOwner        string
	EndpointCount    int64
	TestCount        int64
	RequirementCount int64
}

// GraphStore owns the entity and relationship tables. Every write is
// individually idempotent: calling any operation twice with identical input
// leaves the same state as calling it once. There are no cross-entity
// transactions; sync correctness rests on the per-row guarantees alone.
type GraphStore interface {
	// ResolveApplication inserts the application on first sight and returns
	// its surrogate id. On conflict only the update timestamp is bumped;
	// the stored name is never overwritten after creation.
	ResolveApplication(ctx context.Context, appKey, name string) (uint64, error)

	// UpsertRequirement inserts or refreshes by jira_key and returns the id.
	UpsertRequirement(ctx context.Context, req record.Requirement, appID uint64) (uint64, error)

	// UpsertTest inserts or refreshes by test_key and returns the id.
	// Derived stats columns are never touched here.
	UpsertTest(ctx context.Context, tc record.TestCase, appID uint64) (uint64, error)

	// AppendExecution appends one history row, guarded by an existence
	// check on (test_id, run_at). Reports whether a row was inserted; a
	// duplicate is a no-op, not an error.
	AppendExecution(ctx context.Context, testID uint64, ex record.TestExecution) (bool, error)

	// LinkRequirementToTest upserts the coverage edge's coverage_type by
	// its (requirement, test) composite key.
	LinkRequirementToTest(ctx context.Context, reqID, testID uint64, coverageType string) error

	// RecomputeTestStats recalculates last_result, flaky_count,
	// avg_duration_ms and last_run_at from current history. Safe to call
	// redundantly; an empty history yields nulls.
	RecomputeTestStats(ctx context.Context, testID uint64) error

	UpsertEndpoint(ctx context.Context, appID uint64, method, path, description string) (uint64, error)
	LinkEndpointDependency(ctx context.Context, sourceEndpointID, targetEndpointID uint64, dependencyType string) error
	LinkTestToEndpoint(ctx context.Context, testID, endpointID uint64) error

	ApplicationByKey(ctx context.Context, appKey string) (ApplicationRow, error)
	RequirementByKey(ctx context.Context, jiraKey string) (RequirementRow, error)
	UncoveredRequirements(ctx context.Context) ([]RequirementRow, error)
	TestsCoveringRequirement(ctx context.Context, reqID uint64) ([]CoveredTestRow, error)
	EndpointsHitByRequirementTests(ctx context.Context, reqID uint64) ([]EndpointRow, error)
	OutboundDependencies(ctx context.Context, appID uint64) ([]DependencyRow, error)
	InboundDependencies(ctx context.Context, appID uint64) ([]DependencyRow, error)
	FlakyTests(ctx context.Context, minFlaky int64) ([]TestRow, error)
	RecentExecutions(ctx context.Context, testID uint64, limit int) ([]ExecutionRow, error)
	ApplicationSummaries(ctx context.Context) ([]AppSummaryRow, error)
	SearchRequirements(ctx context.Context, query string) ([]RequirementRow, error)
	SearchTests(ctx context.Context, query string) ([]TestRow, error)
}
