package api

import (
	"time"

	"qagraph/internal/ports"
	"qagraph/internal/usecase/query"
)

// Response shapes. Surrogate ids stay inside the store and are never
// serialized.

type requirementDTO struct {
	JiraKey     string `json:"jira_key"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority"`
	Status      string `json:"status"`
	AppName     string `json:"app_name"`
}

func toRequirementDTO(row ports.RequirementRow) requirementDTO {
	return requirementDTO{
		JiraKey:     row.JiraKey,
		Summary:     row.Summary,
		Description: row.Description,
		Priority:    row.Priority,
		Status:      row.Status,
		AppName:     row.AppName,
	}
}

type coverageGapsDTO struct {
	TotalGaps int              `json:"total_gaps"`
	Gaps      []requirementDTO `json:"gaps"`
}

type testDTO struct {
	TestKey       string     `json:"test_key"`
	Name          string     `json:"name"`
	FilePath      string     `json:"file_path,omitempty"`
	TestType      string     `json:"test_type"`
	Status        string     `json:"status"`
	AppName       string     `json:"app_name"`
	LastResult    *string    `json:"last_result"`
	FlakyCount    int64      `json:"flaky_count"`
	AvgDurationMS *int64     `json:"avg_duration_ms"`
	LastRunAt     *time.Time `json:"last_run_at"`
}

func toTestDTO(row ports.TestRow) testDTO {
	return testDTO{
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

type coveredTestDTO struct {
	testDTO
	CoverageType string `json:"coverage_type"`
}

type endpointDTO struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description,omitempty"`
	AppName     string `json:"app_name"`
}

type impactDTO struct {
	Requirement        requirementDTO   `json:"requirement"`
	Tests              []coveredTestDTO `json:"tests"`
	EndpointsExercised []endpointDTO    `json:"endpoints_exercised"`
	Summary            string           `json:"summary"`
}

func toImpactDTO(impact query.Impact) impactDTO {
	tests := make([]coveredTestDTO, 0, len(impact.Tests))
	for _, test := range impact.Tests {
		tests = append(tests, coveredTestDTO{
			testDTO:      toTestDTO(test.TestRow),
			CoverageType: test.CoverageType,
		})
	}

	endpoints := make([]endpointDTO, 0, len(impact.Endpoints))
	for _, endpoint := range impact.Endpoints {
		endpoints = append(endpoints, endpointDTO{
			Method:      endpoint.Method,
			Path:        endpoint.Path,
			Description: endpoint.Description,
			AppName:     endpoint.AppName,
		})
	}

	return impactDTO{
		Requirement:        toRequirementDTO(impact.Requirement),
		Tests:              tests,
		EndpointsExercised: endpoints,
		Summary:            impact.Summary,
	}
}

type dependencyEdgeDTO struct {
	SourceMethod   string `json:"source_method"`
	SourcePath     string `json:"source_path"`
	SourceApp      string `json:"source_app"`
	TargetMethod   string `json:"target_method"`
	TargetPath     string `json:"target_path"`
	TargetApp      string `json:"target_app"`
	DependencyType string `json:"dependency_type"`
}

type dependencyGroupDTO struct {
	App   string              `json:"app"`
	Edges []dependencyEdgeDTO `json:"edges"`
}

type dependencyMapDTO struct {
	App          appDTO               `json:"app"`
	DependsOn    []dependencyGroupDTO `json:"depends_on"`
	DependedOnBy []dependencyGroupDTO `json:"depended_on_by"`
	Summary      string               `json:"summary"`
}

type appDTO struct {
	AppKey string `json:"app_key"`
	Name   string `json:"name"`
}

func toDependencyMapDTO(deps query.DependencyMap) dependencyMapDTO {
	return dependencyMapDTO{
		App: appDTO{
			AppKey: deps.App.AppKey,
			Name:   deps.App.Name,
		},
		DependsOn:    toDependencyGroupDTOs(deps.Outbound),
		DependedOnBy: toDependencyGroupDTOs(deps.Inbound),
		Summary:      deps.Summary,
	}
}

func toDependencyGroupDTOs(groups []query.DependencyGroup) []dependencyGroupDTO {
	out := make([]dependencyGroupDTO, 0, len(groups))
	for _, group := range groups {
		edges := make([]dependencyEdgeDTO, 0, len(group.Edges))
		for _, edge := range group.Edges {
			edges = append(edges, dependencyEdgeDTO(edge))
		}
		out = append(out, dependencyGroupDTO{App: group.App, Edges: edges})
	}
	return out
}

type executionDTO struct {
	Result       string     `json:"result"`
	DurationMS   *int64     `json:"duration_ms"`
	ErrorMessage string     `json:"error_message,omitempty"`
	RunAt        *time.Time `json:"run_at"`
	BuildID      string     `json:"build_id,omitempty"`
}

type flakyTestDTO struct {
	testDTO
	RecentRuns []executionDTO `json:"recent_runs"`
}

func toFlakyTestDTO(test query.FlakyTest) flakyTestDTO {
	runs := make([]executionDTO, 0, len(test.RecentRuns))
	for _, run := range test.RecentRuns {
		runs = append(runs, executionDTO{
			Result:       run.Result,
			DurationMS:   run.DurationMS,
			ErrorMessage: run.ErrorMessage,
			RunAt:        run.RunAt,
			BuildID:      run.BuildID,
		})
	}
	return flakyTestDTO{
		testDTO:    toTestDTO(test.TestRow),
		RecentRuns: runs,
	}
}

type flakyTestsDTO struct {
	TotalFlaky int            `json:"total_flaky"`
	Tests      []flakyTestDTO `json:"tests"`
}

type appSummaryDTO struct {
	AppKey           string `json:"app_key"`
	Name             string `json:"name"`
	TeamOwner        string `json:"team_owner,omitempty"`
	EndpointCount    int64  `json:"endpoint_count"`
	TestCount        int64  `json:"test_count"`
	RequirementCount int64  `json:"requirement_count"`
}

type searchDTO struct {
	Query        string           `json:"query"`
	Requirements []requirementDTO `json:"requirements"`
	Tests        []testDTO        `json:"tests"`
	TotalResults int              `json:"total_results"`
}

func toSearchDTO(result query.SearchResult) searchDTO {
	reqs := make([]requirementDTO, 0, len(result.Requirements))
	for _, req := range result.Requirements {
		reqs = append(reqs, toRequirementDTO(req))
	}
	tests := make([]testDTO, 0, len(result.Tests))
	for _, test := range result.Tests {
		tests = append(tests, toTestDTO(test))
	}
	return searchDTO{
		Query:        result.Query,
		Requirements: reqs,
		Tests:        tests,
		TotalResults: result.TotalResults,
	}
}
