// Package syncer runs the five-phase pipeline that reconciles source
// records into the graph store: requirements, tests, traceability links,
// execution history, stats recompute.
package syncer

import (
	"context"
	"errors"
	"log/slog"

	"qagraph/internal/bootstrap/logging"
	"qagraph/internal/domain/record"
	"qagraph/internal/errs"
	"qagraph/internal/ports"
)

type Service struct {
	store ports.GraphStore
}

func NewService(store ports.GraphStore) *Service {
	return &Service{store: store}
}

// Report carries per-phase counters for one sync run. Skipped counts are
// reconciliation misses (links or executions referencing keys the run never
// resolved), not errors.
type Report struct {
	RequirementsUpserted int
	TestsUpserted        int
	LinksUpserted        int
	LinksSkipped         int
	ExecutionsAppended   int
	ExecutionsDeduped    int
	ExecutionsSkipped    int
	StatsRecomputed      int
	TestPhasesSkipped    bool
}

// Run executes the pipeline. reqSource is mandatory: any fetch failure
// aborts the run. testSource may be nil (credential absent), which skips
// phases 2-5 with a warning; a fetch failure from a present testSource is
// caught and degrades the same way instead of aborting.
func (s *Service) Run(ctx context.Context, reqSource ports.RequirementSource, testSource ports.TestSource, windowDays int) (Report, error) {
	if ctx == nil {
		return Report{}, errors.New("context is required")
	}

	report := Report{}
	resolver := NewResolver(s.store)

	if windowDays > 0 {
		logging.Info(ctx, "delta sync", slog.Int("window_days", windowDays))
	} else {
		logging.Info(ctx, "full sync")
	}

	reqIDs, err := s.syncRequirements(ctx, reqSource, resolver, windowDays, &report)
	if err != nil {
		return report, errs.Wrap(err, "sync requirements")
	}

	if testSource == nil {
		logging.Warn(ctx, "test-management source not configured, skipping test phases")
		report.TestPhasesSkipped = true
		return report, nil
	}

	testIDs, linkPairs, err := s.syncTests(ctx, testSource, resolver, &report)
	if err != nil {
		// The test-management source is optional: its failure degrades
		// the run instead of aborting it.
		logging.Error(ctx, "test case fetch failed, skipping test phases", slog.Any("err", errs.Loggable(err)))
		report.TestPhasesSkipped = true
		return report, nil
	}

	s.syncLinks(ctx, reqIDs, testIDs, linkPairs, &report)

	if err := s.syncExecutions(ctx, testSource, testIDs, windowDays, &report); err != nil {
		logging.Error(ctx, "execution fetch failed, continuing to stats", slog.Any("err", errs.Loggable(err)))
	}

	if err := s.recomputeStats(ctx, testIDs, &report); err != nil {
		return report, errs.Wrap(err, "recompute stats")
	}

	logging.Info(ctx, "sync complete",
		slog.Int("requirements", report.RequirementsUpserted),
		slog.Int("tests", report.TestsUpserted),
		slog.Int("links", report.LinksUpserted),
		slog.Int("executions", report.ExecutionsAppended),
	)
	return report, nil
}

// linkPair is a candidate traceability edge collected in phase 2 and
// reconciled in phase 3.
type linkPair struct {
	jiraKey string
	testKey string
}

func (s *Service) syncRequirements(ctx context.Context, source ports.RequirementSource, resolver *Resolver, windowDays int, report *Report) (map[string]uint64, error) {
	phaseCtx := logging.WithAttrs(ctx, slog.String("phase", "requirements"))

	reqs, err := source.FetchRequirements(phaseCtx, windowDays)
	if err != nil {
		return nil, err
	}
	logging.Info(phaseCtx, "fetched requirements", slog.Int("count", len(reqs)))

	reqIDs := make(map[string]uint64, len(reqs))
	for _, req := range reqs {
		appID, err := resolver.Resolve(phaseCtx, req.AppKey, req.AppKey)
		if err != nil {
			return nil, errs.Wrapf(err, "resolve application %s", req.AppKey)
		}
		id, err := s.store.UpsertRequirement(phaseCtx, req, appID)
		if err != nil {
			return nil, err
		}
		reqIDs[req.JiraKey] = id
		report.RequirementsUpserted++
	}
	logging.Info(phaseCtx, "requirements upserted", slog.Int("count", report.RequirementsUpserted))
	return reqIDs, nil
}

func (s *Service) syncTests(ctx context.Context, source ports.TestSource, resolver *Resolver, report *Report) (map[string]uint64, []linkPair, error) {
	phaseCtx := logging.WithAttrs(ctx, slog.String("phase", "tests"))

	cases, err := source.FetchTestCases(phaseCtx)
	if err != nil {
		return nil, nil, err
	}
	logging.Info(phaseCtx, "fetched test cases", slog.Int("count", len(cases)))

	testIDs := make(map[string]uint64, len(cases))
	var pairs []linkPair
	for _, tc := range cases {
		appID, err := resolver.Resolve(phaseCtx, tc.AppKey, tc.AppKey)
		if err != nil {
			return nil, nil, errs.Wrapf(err, "resolve application %s", tc.AppKey)
		}
		id, err := s.store.UpsertTest(phaseCtx, tc, appID)
		if err != nil {
			return nil, nil, err
		}
		testIDs[tc.TestKey] = id
		report.TestsUpserted++
		for _, jiraKey := range tc.LinkedJiraKeys {
			pairs = append(pairs, linkPair{jiraKey: jiraKey, testKey: tc.TestKey})
		}
	}
	logging.Info(phaseCtx, "tests upserted", slog.Int("count", report.TestsUpserted))
	return testIDs, pairs, nil
}

func (s *Service) syncLinks(ctx context.Context, reqIDs, testIDs map[string]uint64, pairs []linkPair, report *Report) {
	phaseCtx := logging.WithAttrs(ctx, slog.String("phase", "links"))

	for _, pair := range pairs {
		reqID, reqOK := reqIDs[pair.jiraKey]
		testID, testOK := testIDs[pair.testKey]
		if !reqOK || !testOK {
			// Unknown key on either side: skipped and counted.
			logging.Debug(phaseCtx, "skipping link with unknown key",
				slog.String("jira_key", pair.jiraKey),
				slog.String("test_key", pair.testKey),
			)
			report.LinksSkipped++
			continue
		}
		if err := s.store.LinkRequirementToTest(phaseCtx, reqID, testID, "linked"); err != nil {
			logging.Warn(phaseCtx, "link upsert failed", slog.Any("err", errs.Loggable(err)))
			report.LinksSkipped++
			continue
		}
		report.LinksUpserted++
	}
	logging.Info(phaseCtx, "links synced",
		slog.Int("upserted", report.LinksUpserted),
		slog.Int("skipped", report.LinksSkipped),
	)
}

func (s *Service) syncExecutions(ctx context.Context, source ports.TestSource, testIDs map[string]uint64, windowDays int, report *Report) error {
	phaseCtx := logging.WithAttrs(ctx, slog.String("phase", "executions"))

	executions, err := source.FetchExecutions(phaseCtx, windowDays)
	if err != nil {
		return err
	}
	logging.Info(phaseCtx, "fetched executions", slog.Int("count", len(executions)))

	s.appendExecutions(phaseCtx, executions, testIDs, report)
	return nil
}

func (s *Service) appendExecutions(ctx context.Context, executions []record.TestExecution, testIDs map[string]uint64, report *Report) {
	for _, ex := range executions {
		testID, ok := testIDs[ex.TestKey]
		if !ok {
			logging.Debug(ctx, "skipping execution for unknown test", slog.String("test_key", ex.TestKey))
			report.ExecutionsSkipped++
			continue
		}
		inserted, err := s.store.AppendExecution(ctx, testID, ex)
		if err != nil {
			logging.Warn(ctx, "execution append failed", slog.Any("err", errs.Loggable(err)))
			report.ExecutionsSkipped++
			continue
		}
		if inserted {
			report.ExecutionsAppended++
		} else {
			report.ExecutionsDeduped++
		}
	}
	logging.Info(ctx, "executions appended",
		slog.Int("appended", report.ExecutionsAppended),
		slog.Int("deduped", report.ExecutionsDeduped),
		slog.Int("skipped", report.ExecutionsSkipped),
	)
}

func (s *Service) recomputeStats(ctx context.Context, testIDs map[string]uint64, report *Report) error {
	phaseCtx := logging.WithAttrs(ctx, slog.String("phase", "stats"))

	for _, testID := range testIDs {
		if err := s.store.RecomputeTestStats(phaseCtx, testID); err != nil {
			return err
		}
		report.StatsRecomputed++
	}
	logging.Info(phaseCtx, "test stats recomputed", slog.Int("count", report.StatsRecomputed))
	return nil
}
