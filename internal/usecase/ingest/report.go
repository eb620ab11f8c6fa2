// Package ingest maps an external test runner's JSON report onto test and
// execution records and writes them into the graph. Any runner can feed
// the graph this way as long as its per-test titles map deterministically
// onto stable test keys.
package ingest

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"qagraph/internal/domain/record"
	"qagraph/internal/errs"
)

const errorMessageMaxLen = 500

// Report is the Playwright JSON reporter's output shape: suites nest
// arbitrarily, specs carry the test titles, results carry the outcomes.
type Report struct {
	Suites []Suite `json:"suites"`
}

type Suite struct {
	Title  string  `json:"title"`
	File   string  `json:"file"`
	Specs  []Spec  `json:"specs"`
	Suites []Suite `json:"suites"`
}

type Spec struct {
	Title string     `json:"title"`
	Tests []SpecTest `json:"tests"`
}

type SpecTest struct {
	Results []SpecResult `json:"results"`
}

type SpecResult struct {
	Status   string `json:"status"`
	Duration *int64 `json:"duration"`
	Error    *struct {
		Message string `json:"message"`
	} `json:"error"`
}

var statusNames = map[string]string{
	"passed":   record.ResultPass,
	"failed":   record.ResultFail,
	"timedOut": record.ResultFail,
	"skipped":  record.ResultNotExecuted,
}

// ParseReport decodes a runner report, tolerating non-JSON noise before the
// JSON blob, and flattens its suite tree into records. Every execution in
// one report shares a build id; each one carries its own run_at so a retry
// (a second result on the same test) stays a separate history row.
func ParseReport(data []byte, appKey string, now time.Time) ([]record.TestCase, []record.TestExecution, error) {
	text := string(data)
	if start := strings.Index(text, "{"); start > 0 {
		text = text[start:]
	}

	var report Report
	if err := json.Unmarshal([]byte(text), &report); err != nil {
		return nil, nil, errs.Wrap(err, "parse test report")
	}
	if len(report.Suites) == 0 {
		return nil, nil, errors.New("test report contains no suites")
	}

	buildID := "local-" + now.UTC().Format("20060102T150405")
	runAt := now.UTC()

	var cases []record.TestCase
	var executions []record.TestExecution
	seq := 0
	walkSuites(report.Suites, "", appKey, buildID, runAt, &seq, &cases, &executions)
	return cases, executions, nil
}

func walkSuites(suites []Suite, filePath, appKey, buildID string, runAt time.Time, seq *int, cases *[]record.TestCase, executions *[]record.TestExecution) {
	for _, suite := range suites {
		fp := suite.File
		if fp == "" {
			fp = filePath
		}

		for _, spec := range suite.Specs {
			testKey := record.MakeTestKey(fp, spec.Title)
			*cases = append(*cases, record.TestCase{
				TestKey:  testKey,
				Name:     spec.Title,
				FilePath: fp,
				TestType: "e2e",
				Status:   "active",
				AppKey:   appKey,
			})

			for _, test := range spec.Tests {
				for _, result := range test.Results {
					// Each result advances the timestamp by one
					// millisecond; two results on the same test would
					// otherwise collapse into one (test, run_at) row.
					at := runAt.Add(time.Duration(*seq) * time.Millisecond)
					*seq++
					*executions = append(*executions, parseResult(testKey, result, buildID, at))
				}
			}
		}

		walkSuites(suite.Suites, fp, appKey, buildID, runAt, seq, cases, executions)
	}
}

func parseResult(testKey string, result SpecResult, buildID string, runAt time.Time) record.TestExecution {
	mapped, ok := statusNames[result.Status]
	if !ok {
		mapped = result.Status
	}

	var errorMessage string
	if result.Error != nil {
		errorMessage = result.Error.Message
		if len(errorMessage) > errorMessageMaxLen {
			errorMessage = errorMessage[:errorMessageMaxLen]
		}
	}

	return record.TestExecution{
		TestKey:      testKey,
		Result:       mapped,
		DurationMS:   result.Duration,
		ErrorMessage: errorMessage,
		RunAt:        &runAt,
		BuildID:      buildID,
	}
}
