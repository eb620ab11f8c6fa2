package zephyr

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"qagraph/internal/bootstrap/logging"
	"qagraph/internal/domain/record"
	"qagraph/internal/errs"
	"qagraph/internal/ports"
)

// Export mirrors a Zephyr export file: test cases with their linked issues
// inline, plus execution history.
type Export struct {
	TestCases      []TestCase  `json:"test_cases"`
	TestExecutions []Execution `json:"test_executions"`
}

// FileSource implements ports.TestSource over a JSON export file. The
// delta window does not apply to snapshots and is ignored.
type FileSource struct {
	path           string
	defaultProject string
}

func NewFileSource(path, defaultProject string) *FileSource {
	return &FileSource{path: path, defaultProject: defaultProject}
}

func (f *FileSource) load() (Export, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return Export{}, errs.Wrapf(err, "read zephyr export %s", f.path)
	}

	var export Export
	if err := json.Unmarshal(data, &export); err != nil {
		return Export{}, errs.Wrapf(err, "parse zephyr export %s", f.path)
	}
	return export, nil
}

func (f *FileSource) FetchTestCases(ctx context.Context) ([]record.TestCase, error) {
	export, err := f.load()
	if err != nil {
		return nil, err
	}

	cases := make([]record.TestCase, 0, len(export.TestCases))
	for _, tc := range export.TestCases {
		cases = append(cases, parseTestCase(tc, nil, f.defaultProject))
	}

	logging.Info(ctx, "loaded zephyr export test cases",
		slog.String("path", f.path),
		slog.Int("count", len(cases)),
	)
	return cases, nil
}

func (f *FileSource) FetchExecutions(ctx context.Context, _ int) ([]record.TestExecution, error) {
	export, err := f.load()
	if err != nil {
		return nil, err
	}

	executions := make([]record.TestExecution, 0, len(export.TestExecutions))
	for _, ex := range export.TestExecutions {
		executions = append(executions, parseExecution(ex))
	}

	logging.Info(ctx, "loaded zephyr export executions",
		slog.String("path", f.path),
		slog.Int("count", len(executions)),
	)
	return executions, nil
}

var _ ports.TestSource = (*FileSource)(nil)
