package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"qagraph/internal/domain/record"
	"qagraph/internal/errs"
	"qagraph/internal/infrastructure/persistence/sqlite/model"
	"qagraph/internal/ports"
)

// GraphRepository implements ports.GraphStore on sqlite. Each operation is
// atomic with respect to its own rows; there are no cross-entity
// transactions.
type GraphRepository struct {
	db *gorm.DB
}

func NewGraphRepository(db *gorm.DB) *GraphRepository {
	return &GraphRepository{db: db}
}

func (r *GraphRepository) conn(ctx context.Context) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	return r.db.WithContext(ctx), nil
}

func (r *GraphRepository) ResolveApplication(ctx context.Context, appKey, name string) (uint64, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return 0, err
	}

	if name == "" {
		name = appKey
	}
	now := time.Now().UTC()

	// The name is only written on first insert; a conflict bumps
	// updated_at and nothing else.
	row := model.Application{
		AppKey:    appKey,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "app_key"}},
		DoUpdates: clause.Assignments(map[string]any{"updated_at": now}),
	}).Create(&row).Error; err != nil {
		return 0, errs.Wrap(err, "upsert application")
	}

	var existing model.Application
	if err := db.Where("app_key = ?", appKey).Take(&existing).Error; err != nil {
		return 0, errs.Wrap(err, "load application id")
	}
	return existing.ID, nil
}

func (r *GraphRepository) UpsertRequirement(ctx context.Context, req record.Requirement, appID uint64) (uint64, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	row := model.Requirement{
		JiraKey:     req.JiraKey,
		Summary:     req.Summary,
		Description: req.Description,
		Priority:    req.Priority,
		Status:      req.Status,
		AppID:       appID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "jira_key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"summary":     req.Summary,
			"description": req.Description,
			"priority":    req.Priority,
			"status":      req.Status,
			"app_id":      appID,
			"updated_at":  now,
		}),
	}).Create(&row).Error; err != nil {
		return 0, errs.Wrapf(err, "upsert requirement %s", req.JiraKey)
	}

	var existing model.Requirement
	if err := db.Where("jira_key = ?", req.JiraKey).Take(&existing).Error; err != nil {
		return 0, errs.Wrapf(err, "load requirement id %s", req.JiraKey)
	}
	return existing.ID, nil
}

func (r *GraphRepository) UpsertTest(ctx context.Context, tc record.TestCase, appID uint64) (uint64, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	row := model.Test{
		TestKey:   tc.TestKey,
		Name:      tc.Name,
		FilePath:  tc.FilePath,
		TestType:  tc.TestType,
		Status:    tc.Status,
		AppID:     appID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	// Derived stats columns are deliberately absent from the update set.
	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "test_key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"name":       tc.Name,
			"file_path":  tc.FilePath,
			"test_type":  tc.TestType,
			"status":     tc.Status,
			"app_id":     appID,
			"updated_at": now,
		}),
	}).Create(&row).Error; err != nil {
		return 0, errs.Wrapf(err, "upsert test %s", tc.TestKey)
	}

	var existing model.Test
	if err := db.Where("test_key = ?", tc.TestKey).Take(&existing).Error; err != nil {
		return 0, errs.Wrapf(err, "load test id %s", tc.TestKey)
	}
	return existing.ID, nil
}

func (r *GraphRepository) AppendExecution(ctx context.Context, testID uint64, ex record.TestExecution) (bool, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return false, err
	}

	dup := db.Model(&model.TestExecution{}).Where("test_id = ?", testID)
	if ex.RunAt != nil {
		dup = dup.Where("run_at = ?", *ex.RunAt)
	} else {
		dup = dup.Where("run_at IS NULL")
	}
	var count int64
	if err := dup.Count(&count).Error; err != nil {
		return false, errs.Wrap(err, "check duplicate execution")
	}
	if count > 0 {
		return false, nil
	}

	row := model.TestExecution{
		TestID:     testID,
		Result:     ex.Result,
		DurationMS: ex.DurationMS,
		RunAt:      ex.RunAt,
		CreatedAt:  time.Now().UTC(),
	}
	if ex.ErrorMessage != "" {
		msg := ex.ErrorMessage
		row.ErrorMessage = &msg
	}
	if ex.BuildID != "" {
		build := ex.BuildID
		row.BuildID = &build
	}
	if err := db.Create(&row).Error; err != nil {
		return false, errs.Wrap(err, "insert execution")
	}
	return true, nil
}

func (r *GraphRepository) LinkRequirementToTest(ctx context.Context, reqID, testID uint64, coverageType string) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}

	row := model.RequirementCoverage{
		RequirementID: reqID,
		TestID:        testID,
		CoverageType:  coverageType,
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "requirement_id"}, {Name: "test_id"}},
		DoUpdates: clause.Assignments(map[string]any{"coverage_type": coverageType}),
	}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "upsert coverage link")
	}
	return nil
}

func (r *GraphRepository) RecomputeTestStats(ctx context.Context, testID uint64) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}

	var rows []model.TestExecution
	if err := db.Where("test_id = ?", testID).Order("id asc").Find(&rows).Error; err != nil {
		return errs.Wrap(err, "load execution history")
	}

	var (
		lastResult    *string
		lastRunAt     *time.Time
		flakyCount    int64
		avgDurationMS *int64
	)

	var latest *model.TestExecution
	var durationSum, durationN int64
	for i := range rows {
		row := &rows[i]
		if row.Result == record.ResultFail {
			flakyCount++
		}
		if row.DurationMS != nil {
			durationSum += *row.DurationMS
			durationN++
		}
		// Latest run wins; rows without a run_at rank below any dated
		// row, and equal timestamps fall to the higher row id (most
		// recently inserted).
		if latest == nil || newerExecution(row, latest) {
			latest = row
		}
	}

	if latest != nil {
		result := latest.Result
		lastResult = &result
	}
	for i := range rows {
		if rows[i].RunAt == nil {
			continue
		}
		if lastRunAt == nil || rows[i].RunAt.After(*lastRunAt) {
			lastRunAt = rows[i].RunAt
		}
	}
	if durationN > 0 {
		avg := durationSum / durationN
		avgDurationMS = &avg
	}

	updates := map[string]any{
		"last_result":     lastResult,
		"flaky_count":     flakyCount,
		"avg_duration_ms": avgDurationMS,
		"last_run_at":     lastRunAt,
	}
	if err := db.Model(&model.Test{}).Where("id = ?", testID).Updates(updates).Error; err != nil {
		return errs.Wrap(err, "update test stats")
	}
	return nil
}

func newerExecution(candidate, current *model.TestExecution) bool {
	switch {
	case candidate.RunAt == nil && current.RunAt == nil:
		return candidate.ID > current.ID
	case candidate.RunAt == nil:
		return false
	case current.RunAt == nil:
		return true
	case candidate.RunAt.Equal(*current.RunAt):
		return candidate.ID > current.ID
	default:
		return candidate.RunAt.After(*current.RunAt)
	}
}

func (r *GraphRepository) UpsertEndpoint(ctx context.Context, appID uint64, method, path, description string) (uint64, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return 0, err
	}

	row := model.Endpoint{
		AppID:       appID,
		Method:      method,
		Path:        path,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "app_id"}, {Name: "method"}, {Name: "path"}},
		DoUpdates: clause.Assignments(map[string]any{"description": description}),
	}).Create(&row).Error; err != nil {
		return 0, errs.Wrapf(err, "upsert endpoint %s %s", method, path)
	}

	var existing model.Endpoint
	if err := db.Where("app_id = ? AND method = ? AND path = ?", appID, method, path).Take(&existing).Error; err != nil {
		return 0, errs.Wrap(err, "load endpoint id")
	}
	return existing.ID, nil
}

func (r *GraphRepository) LinkEndpointDependency(ctx context.Context, sourceEndpointID, targetEndpointID uint64, dependencyType string) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}

	row := model.EndpointDependency{
		SourceEndpointID: sourceEndpointID,
		TargetEndpointID: targetEndpointID,
		DependencyType:   dependencyType,
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_endpoint_id"}, {Name: "target_endpoint_id"}},
		DoUpdates: clause.Assignments(map[string]any{"dependency_type": dependencyType}),
	}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "upsert endpoint dependency")
	}
	return nil
}

func (r *GraphRepository) LinkTestToEndpoint(ctx context.Context, testID, endpointID uint64) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}

	row := model.TestHitsEndpoint{
		TestID:     testID,
		EndpointID: endpointID,
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "test_id"}, {Name: "endpoint_id"}},
		DoNothing: true,
	}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "link test to endpoint")
	}
	return nil
}

var _ ports.GraphStore = (*GraphRepository)(nil)
