// Package jira fetches issues from the Jira Cloud REST API v3 (or a JSON
// export of the same shape) and normalizes them into requirement records.
package jira

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"qagraph/internal/bootstrap/config"
	"qagraph/internal/bootstrap/logging"
	"qagraph/internal/domain/record"
	"qagraph/internal/domain/richtext"
	"qagraph/internal/errs"
	"qagraph/internal/ports"
)

const defaultPageSize = 50

// Issue is a Jira issue as returned by the search API. The description is
// kept raw: it may be a plain string or an ADF document tree.
type Issue struct {
	Key    string      `json:"key"`
	Fields IssueFields `json:"fields"`
}

type IssueFields struct {
	Summary     string          `json:"summary"`
	Description json.RawMessage `json:"description"`
	Priority    *NamedField     `json:"priority"`
	Status      *NamedField     `json:"status"`
	Project     *ProjectField   `json:"project"`
}

type NamedField struct {
	Name string `json:"name"`
}

type ProjectField struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

type searchRequest struct {
	JQL        string   `json:"jql"`
	MaxResults int      `json:"maxResults"`
	StartAt    int      `json:"startAt"`
	Fields     []string `json:"fields"`
}

type searchResponse struct {
	Total  int     `json:"total"`
	Issues []Issue `json:"issues"`
}

// Client implements ports.RequirementSource against a live Jira instance.
type Client struct {
	baseURL    string
	email      string
	apiToken   string
	project    string
	pageSize   int
	httpClient *http.Client
}

func NewClient(cfg config.JiraConfig) *Client {
	return &Client{
		baseURL:  cfg.Host,
		email:    cfg.Email,
		apiToken: cfg.APIToken,
		project:  cfg.Project,
		pageSize: defaultPageSize,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// FetchRequirements pulls all matching issues page by page. windowDays > 0
// narrows the JQL to issues updated in the trailing window.
func (c *Client) FetchRequirements(ctx context.Context, windowDays int) ([]record.Requirement, error) {
	jql := fmt.Sprintf("project = %q ORDER BY created DESC", c.project)
	if windowDays > 0 {
		jql = fmt.Sprintf("project = %q AND updated >= -%dd ORDER BY updated DESC", c.project, windowDays)
	}

	var reqs []record.Requirement
	startAt := 0
	for {
		page, err := c.searchPage(ctx, jql, startAt)
		if err != nil {
			return nil, err
		}
		for _, issue := range page.Issues {
			reqs = append(reqs, c.ParseIssue(issue))
		}

		startAt += len(page.Issues)
		if len(page.Issues) == 0 || startAt >= page.Total {
			break
		}
	}

	logging.Info(ctx, "fetched jira issues", slog.Int("count", len(reqs)))
	return reqs, nil
}

func (c *Client) searchPage(ctx context.Context, jql string, startAt int) (searchResponse, error) {
	payload, err := json.Marshal(searchRequest{
		JQL:        jql,
		MaxResults: c.pageSize,
		StartAt:    startAt,
		Fields:     []string{"summary", "description", "priority", "status", "project", "issuetype"},
	})
	if err != nil {
		return searchResponse{}, errs.Wrap(err, "marshal search request")
	}

	url := c.baseURL + "/rest/api/3/search/jql"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return searchResponse{}, errs.Wrap(err, "build search request")
	}
	auth := base64.StdEncoding.EncodeToString([]byte(c.email + ":" + c.apiToken))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return searchResponse{}, errs.Wrap(err, "jira search")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return searchResponse{}, errs.Wrap(ports.ErrUnauthorized, "jira: check email and api token")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return searchResponse{}, &ports.APIError{Source: "jira", Status: resp.StatusCode, Body: string(body)}
	}

	var page searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return searchResponse{}, errs.Wrap(err, "decode search response")
	}
	return page, nil
}

// ParseIssue maps a Jira issue onto a requirement record, flattening the
// rich-text description and defaulting absent fields.
func (c *Client) ParseIssue(issue Issue) record.Requirement {
	return parseIssue(issue, c.project)
}

func parseIssue(issue Issue, defaultProject string) record.Requirement {
	req := record.Requirement{
		JiraKey:     issue.Key,
		Summary:     issue.Fields.Summary,
		Description: richtext.FlattenRaw(issue.Fields.Description),
		Priority:    record.PriorityMedium,
		Status:      "Open",
		AppKey:      defaultProject,
	}
	if issue.Fields.Priority != nil && issue.Fields.Priority.Name != "" {
		req.Priority = issue.Fields.Priority.Name
	}
	if issue.Fields.Status != nil && issue.Fields.Status.Name != "" {
		req.Status = issue.Fields.Status.Name
	}
	if issue.Fields.Project != nil && issue.Fields.Project.Key != "" {
		req.AppKey = issue.Fields.Project.Key
	}
	return req
}

var _ ports.RequirementSource = (*Client)(nil)
