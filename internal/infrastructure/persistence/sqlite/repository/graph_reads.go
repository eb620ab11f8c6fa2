package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"qagraph/internal/errs"
	"qagraph/internal/infrastructure/persistence/sqlite/model"
	"qagraph/internal/ports"
)

type requirementScan struct {
	ID          uint64
	JiraKey     string
	Summary     string
	Description string
	Priority    string
	Status      string
	AppName     string
}

type testScan struct {
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
	CoverageType  string
}

const requirementColumns = "requirements.id, requirements.jira_key, requirements.summary, requirements.description, requirements.priority, requirements.status, a.name AS app_name"

const testColumns = "tests.id, tests.test_key, tests.name, tests.file_path, tests.test_type, tests.status, tests.last_result, tests.flaky_count, tests.avg_duration_ms, tests.last_run_at, a.name AS app_name"

func (r *GraphRepository) ApplicationByKey(ctx context.Context, appKey string) (ports.ApplicationRow, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return ports.ApplicationRow{}, err
	}

	var row model.Application
	if err := db.Where("app_key = ?", appKey).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.ApplicationRow{}, ports.ErrApplicationNotFound
		}
		return ports.ApplicationRow{}, errs.Wrap(err, "query application")
	}

	out := ports.ApplicationRow{
		ID:     row.ID,
		AppKey: row.AppKey,
		Name:   row.Name,
	}
	if row.TeamOwner != nil {
		out.TeamOwner = *row.TeamOwner
	}
	return out, nil
}

func (r *GraphRepository) RequirementByKey(ctx context.Context, jiraKey string) (ports.RequirementRow, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return ports.RequirementRow{}, err
	}

	var row requirementScan
	err = db.Model(&model.Requirement{}).
		Select(requirementColumns).
		Joins("JOIN applications a ON a.id = requirements.app_id").
		Where("requirements.jira_key = ?", jiraKey).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.RequirementRow{}, ports.ErrRequirementNotFound
		}
		return ports.RequirementRow{}, errs.Wrap(err, "query requirement")
	}
	return mapRequirement(row), nil
}

func (r *GraphRepository) UncoveredRequirements(ctx context.Context) ([]ports.RequirementRow, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	var rows []requirementScan
	err = db.Model(&model.Requirement{}).
		Select(requirementColumns).
		Joins("JOIN applications a ON a.id = requirements.app_id").
		Joins("LEFT JOIN requirement_coverage rc ON rc.requirement_id = requirements.id").
		Where("rc.requirement_id IS NULL").
		Order("requirements.jira_key asc").
		Scan(&rows).Error
	if err != nil {
		return nil, errs.Wrap(err, "query uncovered requirements")
	}
	return mapRequirements(rows), nil
}

func (r *GraphRepository) TestsCoveringRequirement(ctx context.Context, reqID uint64) ([]ports.CoveredTestRow, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	var rows []testScan
	err = db.Model(&model.Test{}).
		Select(testColumns+", rc.coverage_type").
		Joins("JOIN requirement_coverage rc ON rc.test_id = tests.id").
		Joins("JOIN applications a ON a.id = tests.app_id").
		Where("rc.requirement_id = ?", reqID).
		Order("tests.test_key asc").
		Scan(&rows).Error
	if err != nil {
		return nil, errs.Wrap(err, "query covering tests")
	}

	items := make([]ports.CoveredTestRow, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.CoveredTestRow{
			TestRow:      mapTest(row),
			CoverageType: row.CoverageType,
		})
	}
	return items, nil
}

func (r *GraphRepository) EndpointsHitByRequirementTests(ctx context.Context, reqID uint64) ([]ports.EndpointRow, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	type endpointScan struct {
		ID          uint64
		Method      string
		Path        string
		Description string
		AppName     string
	}
	var rows []endpointScan
	err = db.Model(&model.Endpoint{}).
		Distinct("endpoints.id, endpoints.method, endpoints.path, endpoints.description, a.name AS app_name").
		Joins("JOIN test_hits_endpoints the ON the.endpoint_id = endpoints.id").
		Joins("JOIN requirement_coverage rc ON rc.test_id = the.test_id").
		Joins("JOIN applications a ON a.id = endpoints.app_id").
		Where("rc.requirement_id = ?", reqID).
		Order("a.name asc, endpoints.path asc").
		Scan(&rows).Error
	if err != nil {
		return nil, errs.Wrap(err, "query exercised endpoints")
	}

	items := make([]ports.EndpointRow, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.EndpointRow{
			ID:          row.ID,
			Method:      row.Method,
			Path:        row.Path,
			Description: row.Description,
			AppName:     row.AppName,
		})
	}
	return items, nil
}

const dependencyColumns = `se.method AS source_method, se.path AS source_path, sa.name AS source_app,
te.method AS target_method, te.path AS target_path, ta.name AS target_app, dep.dependency_type`

func (r *GraphRepository) OutboundDependencies(ctx context.Context, appID uint64) ([]ports.DependencyRow, error) {
	return r.dependencies(ctx, "se.app_id = ?", "ta.name asc, te.path asc", appID)
}

func (r *GraphRepository) InboundDependencies(ctx context.Context, appID uint64) ([]ports.DependencyRow, error) {
	return r.dependencies(ctx, "te.app_id = ?", "sa.name asc, se.path asc", appID)
}

func (r *GraphRepository) dependencies(ctx context.Context, where, order string, appID uint64) ([]ports.DependencyRow, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	type dependencyScan struct {
		SourceMethod   string
		SourcePath     string
		SourceApp      string
		TargetMethod   string
		TargetPath     string
		TargetApp      string
		DependencyType string
	}
	var rows []dependencyScan
	err = db.Table("endpoint_dependencies dep").
		Select(dependencyColumns).
		Joins("JOIN endpoints se ON se.id = dep.source_endpoint_id").
		Joins("JOIN endpoints te ON te.id = dep.target_endpoint_id").
		Joins("JOIN applications sa ON sa.id = se.app_id").
		Joins("JOIN applications ta ON ta.id = te.app_id").
		Where(where, appID).
		Order(order).
		Scan(&rows).Error
	if err != nil {
		return nil, errs.Wrap(err, "query endpoint dependencies")
	}

	items := make([]ports.DependencyRow, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.DependencyRow(row))
	}
	return items, nil
}

func (r *GraphRepository) FlakyTests(ctx context.Context, minFlaky int64) ([]ports.TestRow, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	var rows []testScan
	err = db.Model(&model.Test{}).
		Select(testColumns).
		Joins("JOIN applications a ON a.id = tests.app_id").
		Where("tests.flaky_count >= ?", minFlaky).
		Order("tests.flaky_count desc, tests.test_key asc").
		Scan(&rows).Error
	if err != nil {
		return nil, errs.Wrap(err, "query flaky tests")
	}
	return mapTests(rows), nil
}

func (r *GraphRepository) RecentExecutions(ctx context.Context, testID uint64, limit int) ([]ports.ExecutionRow, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.TestExecution{}).
		Where("test_id = ?", testID).
		Order("run_at desc, id desc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []model.TestExecution
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query recent executions")
	}

	items := make([]ports.ExecutionRow, 0, len(rows))
	for _, row := range rows {
		item := ports.ExecutionRow{
			ID:     row.ID,
			TestID: row.TestID,
			Result: row.Result,
			RunAt:  row.RunAt,
		}
		item.DurationMS = row.DurationMS
		if row.ErrorMessage != nil {
			item.ErrorMessage = *row.ErrorMessage
		}
		if row.BuildID != nil {
			item.BuildID = *row.BuildID
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *GraphRepository) ApplicationSummaries(ctx context.Context) ([]ports.AppSummaryRow, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	type summaryScan struct {
		AppKey           string
		Name             string
		TeamOwner        *string
		EndpointCount    int64
		TestCount        int64
		RequirementCount int64
	}
	var rows []summaryScan
	err = db.Table("applications a").
		Select(`a.app_key, a.name, a.team_owner,
COUNT(DISTINCT e.id) AS endpoint_count,
COUNT(DISTINCT t.id) AS test_count,
COUNT(DISTINCT r.id) AS requirement_count`).
		Joins("LEFT JOIN endpoints e ON e.app_id = a.id").
		Joins("LEFT JOIN tests t ON t.app_id = a.id").
		Joins("LEFT JOIN requirements r ON r.app_id = a.id").
		Group("a.id, a.app_key, a.name, a.team_owner").
		Order("a.name asc").
		Scan(&rows).Error
	if err != nil {
		return nil, errs.Wrap(err, "query application summaries")
	}

	items := make([]ports.AppSummaryRow, 0, len(rows))
	for _, row := range rows {
		item := ports.AppSummaryRow{
			AppKey:           row.AppKey,
			Name:             row.Name,
			EndpointCount:    row.EndpointCount,
			TestCount:        row.TestCount,
			RequirementCount: row.RequirementCount,
		}
		if row.TeamOwner != nil {
			item.TeamOwner = *row.TeamOwner
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *GraphRepository) SearchRequirements(ctx context.Context, query string) ([]ports.RequirementRow, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	pattern := likePattern(query)
	var rows []requirementScan
	err = db.Model(&model.Requirement{}).
		Select(requirementColumns).
		Joins("JOIN applications a ON a.id = requirements.app_id").
		Where("lower(requirements.summary) LIKE ? OR lower(requirements.description) LIKE ?", pattern, pattern).
		Order("requirements.jira_key asc").
		Scan(&rows).Error
	if err != nil {
		return nil, errs.Wrap(err, "search requirements")
	}
	return mapRequirements(rows), nil
}

func (r *GraphRepository) SearchTests(ctx context.Context, query string) ([]ports.TestRow, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	pattern := likePattern(query)
	var rows []testScan
	err = db.Model(&model.Test{}).
		Select(testColumns).
		Joins("JOIN applications a ON a.id = tests.app_id").
		Where("lower(tests.name) LIKE ? OR lower(tests.file_path) LIKE ?", pattern, pattern).
		Order("tests.test_key asc").
		Scan(&rows).Error
	if err != nil {
		return nil, errs.Wrap(err, "search tests")
	}
	return mapTests(rows), nil
}

func likePattern(query string) string {
	return "%" + strings.ToLower(query) + "%"
}

func mapRequirement(row requirementScan) ports.RequirementRow {
	return ports.RequirementRow{
		ID:          row.ID,
		JiraKey:     row.JiraKey,
		Summary:     row.Summary,
		Description: row.Description,
		Priority:    row.Priority,
		Status:      row.Status,
		AppName:     row.AppName,
	}
}

func mapRequirements(rows []requirementScan) []ports.RequirementRow {
	items := make([]ports.RequirementRow, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapRequirement(row))
	}
	return items
}

func mapTest(row testScan) ports.TestRow {
	return ports.TestRow{
		ID:            row.ID,
		TestKey:       row.TestKey,
		Name:          row.Name,
		FilePath:      row.FilePath,
		TestType:      row.TestType,
		Status:        row.Status,
		AppName:       row.AppName,
		LastResult:    row.LastResult,
		FlakyCount:    row.FlakyCount,
		AvgDurationMS: row.AvgDurationMS,
		LastRunAt:     row.LastRunAt,
	}
}

func mapTests(rows []testScan) []ports.TestRow {
	items := make([]ports.TestRow, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapTest(row))
	}
	return items
}
