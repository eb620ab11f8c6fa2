package ingest

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

type Summary struct {
	Passed             int
	Failed             int
	Total              int
	TestsUpserted      int
	ExecutionsAppended int
}

// Ingest writes runner results into the graph: upsert the tests, append
// their executions (dedup-guarded), recompute stats for every touched test.
func (s *Service) Ingest(ctx context.Context, appKey, appName string, cases []record.TestCase, executions []record.TestExecution) (Summary, error) {
	if ctx == nil {
		return Summary{}, errors.New("context is required")
	}

	appID, err := s.store.ResolveApplication(ctx, appKey, appName)
	if err != nil {
		return Summary{}, errs.Wrapf(err, "resolve application %s", appKey)
	}

	summary := Summary{Total: len(executions)}

	testIDs := make(map[string]uint64, len(cases))
	for _, tc := range cases {
		id, err := s.store.UpsertTest(ctx, tc, appID)
		if err != nil {
			return summary, errs.Wrapf(err, "upsert test %s", tc.TestKey)
		}
		testIDs[tc.TestKey] = id
		summary.TestsUpserted++
	}

	for _, ex := range executions {
		switch ex.Result {
		case record.ResultPass:
			summary.Passed++
		case record.ResultFail:
			summary.Failed++
		}

		testID, ok := testIDs[ex.TestKey]
		if !ok {
			logging.Debug(ctx, "skipping execution for unknown test", slog.String("test_key", ex.TestKey))
			continue
		}
		inserted, err := s.store.AppendExecution(ctx, testID, ex)
		if err != nil {
			return summary, errs.Wrap(err, "append execution")
		}
		if inserted {
			summary.ExecutionsAppended++
		}
	}

	for _, testID := range testIDs {
		if err := s.store.RecomputeTestStats(ctx, testID); err != nil {
			return summary, errs.Wrap(err, "recompute test stats")
		}
	}

	logging.Info(ctx, "runner results ingested",
		slog.Int("tests", summary.TestsUpserted),
		slog.Int("executions", summary.ExecutionsAppended),
		slog.Int("passed", summary.Passed),
		slog.Int("failed", summary.Failed),
	)
	return summary, nil
}
