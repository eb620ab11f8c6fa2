package jira

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"qagraph/internal/domain/record"
	"qagraph/internal/ports"
)

func testClient(baseURL string, pageSize int) *Client {
	return &Client{
		baseURL:    baseURL,
		email:      "qa@example.com",
		apiToken:   "token",
		project:    "SCRUM",
		pageSize:   pageSize,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func TestFetchRequirementsPaginates(t *testing.T) {
	pages := [][]Issue{
		{{Key: "SCRUM-1", Fields: IssueFields{Summary: "first"}}},
		{{Key: "SCRUM-2", Fields: IssueFields{Summary: "second"}}},
	}

	var requests []searchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/api/3/search/jql" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode search request: %v", err)
		}
		requests = append(requests, req)

		page := searchResponse{Total: 2}
		if req.StartAt < len(pages) {
			page.Issues = pages[req.StartAt]
		}
		_ = json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	reqs, err := testClient(srv.URL, 1).FetchRequirements(context.Background(), 0)
	if err != nil {
		t.Fatalf("FetchRequirements() error = %v", err)
	}
	if len(reqs) != 2 {
		t.Fatalf("requirements = %d, want 2", len(reqs))
	}
	if reqs[0].JiraKey != "SCRUM-1" || reqs[1].JiraKey != "SCRUM-2" {
		t.Fatalf("keys = %s, %s", reqs[0].JiraKey, reqs[1].JiraKey)
	}
	if len(requests) != 2 {
		t.Fatalf("search requests = %d, want 2", len(requests))
	}
}

func TestFetchRequirementsDeltaWindowNarrowsJQL(t *testing.T) {
	var gotJQL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotJQL = req.JQL
		_ = json.NewEncoder(w).Encode(searchResponse{Total: 0})
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL, 50).FetchRequirements(context.Background(), 7); err != nil {
		t.Fatalf("FetchRequirements() error = %v", err)
	}
	want := `project = "SCRUM" AND updated >= -7d ORDER BY updated DESC`
	if gotJQL != want {
		t.Fatalf("jql = %q, want %q", gotJQL, want)
	}
}

func TestFetchRequirementsUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 50).FetchRequirements(context.Background(), 0)
	if !errors.Is(err, ports.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestFetchRequirementsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream broke"))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 50).FetchRequirements(context.Background(), 0)
	var apiErr *ports.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *ports.APIError", err)
	}
	if apiErr.Source != "jira" || apiErr.Status != http.StatusBadGateway || apiErr.Body != "upstream broke" {
		t.Fatalf("api error = %+v", apiErr)
	}
}

func TestParseIssueDefaultsAndFlattening(t *testing.T) {
	adf := json.RawMessage(`{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"As a user"},{"type":"text","text":"I log in"}]}]}`)
	issue := Issue{
		Key: "SCRUM-9",
		Fields: IssueFields{
			Summary:     "Login",
			Description: adf,
			Priority:    &NamedField{Name: "High"},
			Status:      &NamedField{Name: "In Progress"},
			Project:     &ProjectField{Key: "WEB"},
		},
	}

	got := parseIssue(issue, "SCRUM")
	if got.Description != "As a user I log in" {
		t.Errorf("description = %q", got.Description)
	}
	if got.Priority != "High" || got.Status != "In Progress" || got.AppKey != "WEB" {
		t.Errorf("parsed = %+v", got)
	}

	bare := parseIssue(Issue{Key: "SCRUM-10", Fields: IssueFields{Summary: "No fields"}}, "SCRUM")
	if bare.Priority != record.PriorityMedium || bare.Status != "Open" || bare.AppKey != "SCRUM" {
		t.Errorf("defaults = %+v", bare)
	}
}

func TestFileSourceFetchRequirements(t *testing.T) {
	export := `{
	  "project": {"key": "SCRUM", "name": "Scrum Project"},
	  "issues": [
	    {"key": "SCRUM-1", "fields": {"summary": "Login", "description": "plain text", "priority": {"name": "Critical"}}},
	    {"key": "SCRUM-2", "fields": {"summary": "Checkout"}}
	  ]
	}`
	path := filepath.Join(t.TempDir(), "jira.json")
	if err := os.WriteFile(path, []byte(export), 0o644); err != nil {
		t.Fatalf("write export: %v", err)
	}

	reqs, err := NewFileSource(path, "FALLBACK").FetchRequirements(context.Background(), 7)
	if err != nil {
		t.Fatalf("FetchRequirements() error = %v", err)
	}
	if len(reqs) != 2 {
		t.Fatalf("requirements = %d, want 2", len(reqs))
	}
	if reqs[0].Priority != "Critical" || reqs[0].Description != "plain text" {
		t.Errorf("first requirement = %+v", reqs[0])
	}
	// The export's project key wins over the configured fallback.
	if reqs[1].AppKey != "SCRUM" {
		t.Errorf("app key = %q", reqs[1].AppKey)
	}
}

func TestFileSourceMissingFile(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "absent.json"), "SCRUM").FetchRequirements(context.Background(), 0)
	if err == nil {
		t.Fatal("FetchRequirements() should fail for a missing file")
	}
}
