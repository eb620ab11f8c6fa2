// Package zephyr fetches test cases and executions from the Zephyr Scale
// Cloud API v2 (or a JSON export of the same shape) and normalizes them
// into test-case and execution records.
package zephyr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"qagraph/internal/bootstrap/config"
	"qagraph/internal/bootstrap/logging"
	"qagraph/internal/domain/record"
	"qagraph/internal/errs"
	"qagraph/internal/ports"
)

const defaultPageSize = 50

// Client implements ports.TestSource against Zephyr Scale Cloud.
type Client struct {
	baseURL    string
	apiToken   string
	project    string
	pageSize   int
	httpClient *http.Client
}

func NewClient(cfg config.ZephyrConfig, project string) *Client {
	return &Client{
		baseURL:  cfg.BaseURL,
		apiToken: cfg.APIToken,
		project:  project,
		pageSize: defaultPageSize,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// FetchTestCases pulls every test case for the project, then attaches the
// linked Jira issue keys per case. The links call is best-effort: its
// failure degrades to "no links" rather than aborting the phase.
func (c *Client) FetchTestCases(ctx context.Context) ([]record.TestCase, error) {
	values, err := c.paginate(ctx, "/testcases", url.Values{"projectKey": {c.project}})
	if err != nil {
		return nil, err
	}

	cases := make([]record.TestCase, 0, len(values))
	for _, raw := range values {
		var tc TestCase
		if err := json.Unmarshal(raw, &tc); err != nil {
			return nil, errs.Wrap(err, "decode test case")
		}
		linked := c.fetchCaseLinks(ctx, tc.Key)
		cases = append(cases, parseTestCase(tc, linked, c.project))
	}

	logging.Info(ctx, "fetched zephyr test cases", slog.Int("count", len(cases)))
	return cases, nil
}

// FetchExecutions pulls execution records. windowDays > 0 restricts the
// fetch to executions after the trailing window's start.
func (c *Client) FetchExecutions(ctx context.Context, windowDays int) ([]record.TestExecution, error) {
	params := url.Values{"projectKey": {c.project}}
	if windowDays > 0 {
		after := time.Now().UTC().AddDate(0, 0, -windowDays)
		params.Set("actualEndDateAfter", after.Format(time.RFC3339))
	}

	values, err := c.paginate(ctx, "/testexecutions", params)
	if err != nil {
		return nil, err
	}

	executions := make([]record.TestExecution, 0, len(values))
	for _, raw := range values {
		var ex Execution
		if err := json.Unmarshal(raw, &ex); err != nil {
			return nil, errs.Wrap(err, "decode test execution")
		}
		executions = append(executions, parseExecution(ex))
	}

	logging.Info(ctx, "fetched zephyr executions", slog.Int("count", len(executions)))
	return executions, nil
}

type pageEnvelope struct {
	Values []json.RawMessage `json:"values"`
	IsLast *bool             `json:"isLast"`
}

func (c *Client) paginate(ctx context.Context, path string, params url.Values) ([]json.RawMessage, error) {
	var all []json.RawMessage
	startAt := 0

	for {
		params.Set("startAt", fmt.Sprintf("%d", startAt))
		params.Set("maxResults", fmt.Sprintf("%d", c.pageSize))

		body, err := c.get(ctx, path+"?"+params.Encode())
		if err != nil {
			return nil, err
		}

		var page pageEnvelope
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, errs.Wrap(err, "decode page")
		}
		all = append(all, page.Values...)

		// Absent isLast means a single-page response.
		if page.IsLast == nil || *page.IsLast || len(page.Values) == 0 {
			break
		}
		startAt += len(page.Values)
	}

	return all, nil
}

func (c *Client) fetchCaseLinks(ctx context.Context, testCaseKey string) []string {
	body, err := c.get(ctx, "/testcases/"+url.PathEscape(testCaseKey)+"/links")
	if err != nil {
		logging.Warn(ctx, "could not fetch test case links",
			slog.String("test_key", testCaseKey),
			slog.Any("err", errs.Loggable(err)),
		)
		return nil
	}

	var payload struct {
		IssueLinks []linkEntry `json:"issueLinks"`
		Values     []linkEntry `json:"values"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		logging.Warn(ctx, "could not decode test case links", slog.String("test_key", testCaseKey))
		return nil
	}

	entries := payload.IssueLinks
	if len(entries) == 0 {
		entries = payload.Values
	}

	var keys []string
	for _, entry := range entries {
		if key := entry.key(); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

type linkEntry struct {
	Key      string `json:"key"`
	IssueKey string `json:"issueKey"`
}

func (l linkEntry) key() string {
	if l.Key != "" {
		return l.Key
	}
	return l.IssueKey
}

func (c *Client) get(ctx context.Context, pathAndQuery string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathAndQuery, nil)
	if err != nil {
		return nil, errs.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(err, "zephyr request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, errs.Wrap(ports.ErrUnauthorized, "zephyr: check api token")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &ports.APIError{Source: "zephyr", Status: resp.StatusCode, Body: string(body)}
	}

	return io.ReadAll(resp.Body)
}

var _ ports.TestSource = (*Client)(nil)
