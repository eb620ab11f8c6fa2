// Package query answers read-only structural questions over the graph
// store. Every operation is a pure function of current store state; results
// are materialized in full, which is acceptable at this data's scale.
package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"qagraph/internal/domain/record"
	"qagraph/internal/errs"
	"qagraph/internal/ports"
)

const recentRunsLimit = 5

type Service struct {
	store ports.GraphStore
}

func NewService(store ports.GraphStore) *Service {
	return &Service{store: store}
}

// CoverageGaps returns requirements with no coverage edge at all, ordered by
// priority rank (Critical first) then natural key.
func (s *Service) CoverageGaps(ctx context.Context) ([]ports.RequirementRow, error) {
	gaps, err := s.store.UncoveredRequirements(ctx)
	if err != nil {
		return nil, errs.Wrap(err, "query coverage gaps")
	}

	sort.SliceStable(gaps, func(i, j int) bool {
		ri, rj := record.PriorityRank(gaps[i].Priority), record.PriorityRank(gaps[j].Priority)
		if ri != rj {
			return ri < rj
		}
		return gaps[i].JiraKey < gaps[j].JiraKey
	})
	return gaps, nil
}

type Impact struct {
	Requirement ports.RequirementRow
	Tests       []ports.CoveredTestRow
	Endpoints   []ports.EndpointRow
	Summary     string
}

// ImpactAnalysis resolves a requirement by key and returns the tests linked
// to it plus the distinct endpoints any of those tests hit. Unknown keys
// yield ports.ErrRequirementNotFound.
func (s *Service) ImpactAnalysis(ctx context.Context, jiraKey string) (Impact, error) {
	req, err := s.store.RequirementByKey(ctx, jiraKey)
	if err != nil {
		return Impact{}, err
	}

	tests, err := s.store.TestsCoveringRequirement(ctx, req.ID)
	if err != nil {
		return Impact{}, errs.Wrap(err, "query covering tests")
	}
	endpoints, err := s.store.EndpointsHitByRequirementTests(ctx, req.ID)
	if err != nil {
		return Impact{}, errs.Wrap(err, "query exercised endpoints")
	}

	return Impact{
		Requirement: req,
		Tests:       tests,
		Endpoints:   endpoints,
		Summary: fmt.Sprintf("%d test(s) covering %s, hitting %d endpoint(s)",
			len(tests), jiraKey, len(endpoints)),
	}, nil
}

// DependencyGroup collects the one-hop edges that connect to a single
// counterpart application.
type DependencyGroup struct {
	App   string
	Edges []ports.DependencyRow
}

type DependencyMap struct {
	App      ports.ApplicationRow
	Outbound []DependencyGroup
	Inbound  []DependencyGroup
	Summary  string
}

// DependencyMapFor resolves an application and returns its one-hop endpoint
// dependencies: outbound edges whose source endpoint belongs to it, grouped
// by target application, and inbound edges whose target endpoint belongs to
// it, grouped by source application. Strictly one hop, no transitive
// closure.
func (s *Service) DependencyMapFor(ctx context.Context, appKey string) (DependencyMap, error) {
	app, err := s.store.ApplicationByKey(ctx, appKey)
	if err != nil {
		return DependencyMap{}, err
	}

	outbound, err := s.store.OutboundDependencies(ctx, app.ID)
	if err != nil {
		return DependencyMap{}, errs.Wrap(err, "query outbound dependencies")
	}
	inbound, err := s.store.InboundDependencies(ctx, app.ID)
	if err != nil {
		return DependencyMap{}, errs.Wrap(err, "query inbound dependencies")
	}

	return DependencyMap{
		App:      app,
		Outbound: groupDependencies(outbound, func(d ports.DependencyRow) string { return d.TargetApp }),
		Inbound:  groupDependencies(inbound, func(d ports.DependencyRow) string { return d.SourceApp }),
		Summary: fmt.Sprintf("%s depends on %d external endpoint(s), and %d external endpoint(s) depend on it",
			app.Name, len(outbound), len(inbound)),
	}, nil
}

func groupDependencies(edges []ports.DependencyRow, keyOf func(ports.DependencyRow) string) []DependencyGroup {
	index := make(map[string]int)
	var groups []DependencyGroup
	for _, edge := range edges {
		key := keyOf(edge)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, DependencyGroup{App: key})
		}
		groups[i].Edges = append(groups[i].Edges, edge)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].App < groups[j].App })
	return groups
}

type FlakyTest struct {
	ports.TestRow
	RecentRuns []ports.ExecutionRow
}

// FlakyTests surfaces tests with flaky_count >= minFlaky, highest first,
// each annotated with its five most recent history rows, newest first.
func (s *Service) FlakyTests(ctx context.Context, minFlaky int64) ([]FlakyTest, error) {
	if minFlaky < 0 {
		return nil, errors.New("min_flaky must be >= 0")
	}

	tests, err := s.store.FlakyTests(ctx, minFlaky)
	if err != nil {
		return nil, errs.Wrap(err, "query flaky tests")
	}

	items := make([]FlakyTest, 0, len(tests))
	for _, test := range tests {
		recent, err := s.store.RecentExecutions(ctx, test.ID, recentRunsLimit)
		if err != nil {
			return nil, errs.Wrapf(err, "query recent runs for %s", test.TestKey)
		}
		items = append(items, FlakyTest{TestRow: test, RecentRuns: recent})
	}
	return items, nil
}

// AppSummary counts the distinct endpoints, tests and requirements each
// application owns.
func (s *Service) AppSummary(ctx context.Context) ([]ports.AppSummaryRow, error) {
	summaries, err := s.store.ApplicationSummaries(ctx)
	if err != nil {
		return nil, errs.Wrap(err, "query application summaries")
	}
	return summaries, nil
}

type SearchResult struct {
	Query        string
	Requirements []ports.RequirementRow
	Tests        []ports.TestRow
	TotalResults int
}

// Search matches the query case-insensitively as a substring against
// requirement summary/description and test name/file_path.
func (s *Service) Search(ctx context.Context, q string) (SearchResult, error) {
	if strings.TrimSpace(q) == "" {
		return SearchResult{}, errors.New("search query must not be empty")
	}

	reqs, err := s.store.SearchRequirements(ctx, q)
	if err != nil {
		return SearchResult{}, errs.Wrap(err, "search requirements")
	}
	tests, err := s.store.SearchTests(ctx, q)
	if err != nil {
		return SearchResult{}, errs.Wrap(err, "search tests")
	}

	return SearchResult{
		Query:        q,
		Requirements: reqs,
		Tests:        tests,
		TotalResults: len(reqs) + len(tests),
	}, nil
}
