package ports

import (
	"context"
	"errors"
	"fmt"

	"qagraph/internal/domain/record"
)

// ErrUnauthorized marks an authentication failure against a source system.
// It is fatal to that source's phases for the current run.
var ErrUnauthorized = errors.New("source authentication failed")

// APIError is a non-success response from a source system, kept with enough
// of the body for diagnosis. There is no retry layer; the orchestrator
// treats it as fatal to the current fetch.
type APIError struct {
	Source string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Source, e.Status, e.Body)
}

// RequirementSource yields normalized requirement records. windowDays > 0
// restricts the fetch to entries updated in the trailing window (delta
// mode); 0 means a full fetch.
type RequirementSource interface {
	FetchRequirements(ctx context.Context, windowDays int) ([]record.Requirement, error)
}

// TestSource yields normalized test cases (with their linked requirement
// keys already attached) and execution records.
type TestSource interface {
	FetchTestCases(ctx context.Context) ([]record.TestCase, error)
	FetchExecutions(ctx context.Context, windowDays int) ([]record.TestExecution, error)
}
