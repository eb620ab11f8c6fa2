// Package record holds the intermediate shapes produced by source adapters
// and consumed by the sync phases. They are source-agnostic: the same
// structs come out of a live API fetch, a snapshot file, or a test-runner
// report.
package record

import (
	"strings"
	"time"
)

// Requirement priorities, highest first. Anything else sorts after Low.
const (
	PriorityCritical = "Critical"
	PriorityHigh     = "High"
	PriorityMedium   = "Medium"
	PriorityLow      = "Low"
)

// Execution results.
const (
	ResultPass        = "pass"
	ResultFail        = "fail"
	ResultBlocked     = "blocked"
	ResultNotExecuted = "not_executed"
	ResultInProgress  = "in_progress"
)

type Requirement struct {
	JiraKey     string
	Summary     string
	Description string
	Priority    string
	Status      string
	AppKey      string
}

type TestCase struct {
	TestKey        string
	Name           string
	FilePath       string
	TestType       string
	Status         string
	AppKey         string
	LinkedJiraKeys []string
}

type TestExecution struct {
	TestKey      string
	Result       string
	DurationMS   *int64
	ErrorMessage string
	RunAt        *time.Time
	BuildID      string
}

// PriorityRank orders priorities for coverage-gap sorting:
// Critical < High < Medium < Low < anything else.
func PriorityRank(priority string) int {
	switch priority {
	case PriorityCritical:
		return 1
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 3
	case PriorityLow:
		return 4
	default:
		return 5
	}
}

var resultNames = map[string]string{
	"pass":         ResultPass,
	"fail":         ResultFail,
	"blocked":      ResultBlocked,
	"not executed": ResultNotExecuted,
	"in progress":  ResultInProgress,
}

// NormalizeResult maps a source-native status name onto the canonical result
// set. Unknown statuses pass through lowercased so history never loses data.
func NormalizeResult(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	if mapped, ok := resultNames[lowered]; ok {
		return mapped
	}
	return lowered
}

const testKeyMaxNameLen = 50

var testKeyPunctuation = "()[]{}'\",.:;!?/\\"

// MakeTestKey derives a stable, collision-resistant key from a test's source
// file and title. Repeated runs of the same test must map to the same key:
// lowercase, strip punctuation, join words with hyphens, truncate, prefix
// with the normalized file stem.
func MakeTestKey(filePath, testName string) string {
	stem := filePath
	if idx := strings.LastIndexAny(stem, "/\\"); idx >= 0 {
		stem = stem[idx+1:]
	}
	if idx := strings.LastIndex(stem, "."); idx >= 0 {
		stem = stem[:idx]
	}
	stem = strings.ReplaceAll(stem, ".spec", "")
	stem = strings.ReplaceAll(stem, ".", "-")

	name := strings.ToLower(testName)
	for _, ch := range testKeyPunctuation {
		name = strings.ReplaceAll(name, string(ch), "")
	}
	name = strings.Join(strings.Fields(name), "-")
	// Truncate on a rune boundary so non-ASCII titles keep valid UTF-8.
	if runes := []rune(name); len(runes) > testKeyMaxNameLen {
		name = string(runes[:testKeyMaxNameLen])
	}

	return stem + "-" + name
}

// ParseRunAt parses a source timestamp ("Z" or offset ISO-8601) and
// normalizes it to UTC. Empty input yields nil, never an error.
func ParseRunAt(raw string) (*time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		// Jira-style timestamps omit the colon in the zone offset.
		t, err = time.Parse("2006-01-02T15:04:05.000-0700", trimmed)
		if err != nil {
			return nil, err
		}
	}
	utc := t.UTC()
	return &utc, nil
}
