package zephyr

import (
	"encoding/json"

	"qagraph/internal/domain/record"
)

// nameField decodes either an object carrying a "name" or a bare string,
// since the API and export formats disagree on the shape.
type nameField struct {
	Value string
}

func (n *nameField) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &n.Value)
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		// Unknown shape degrades to empty, not a record failure.
		n.Value = ""
		return nil
	}
	n.Value = obj.Name
	return nil
}

// keyField decodes either an object carrying a "key" or a bare string.
type keyField struct {
	Value string
}

func (k *keyField) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &k.Value)
	}
	var obj struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		k.Value = ""
		return nil
	}
	k.Value = obj.Key
	return nil
}

// TestCase is a Zephyr test case in either API or export shape.
type TestCase struct {
	Key          string    `json:"key"`
	Name         string    `json:"name"`
	TestType     string    `json:"test_type"`
	Status       nameField `json:"status"`
	Project      keyField  `json:"project"`
	FilePath     string    `json:"file_path"`
	LinkedIssues []string  `json:"linked_issues"`
}

// Execution is a Zephyr test execution in either API or export shape.
type Execution struct {
	TestExecutionStatus nameField `json:"testExecutionStatus"`
	Status              string    `json:"status"`
	TestCase            keyField  `json:"testCase"`
	TestCaseKey         string    `json:"test_case_key"`
	ExecutionTime       *int64    `json:"executionTime"`
	ExecutionTimeMS     *int64    `json:"execution_time_ms"`
	Comment             string    `json:"comment"`
	ExecutionDate       string    `json:"executionDate"`
	ExecutedOn          string    `json:"executed_on"`
	Environment         nameField `json:"environment"`
}

func parseTestCase(tc TestCase, linked []string, defaultProject string) record.TestCase {
	status := "active"
	if tc.Status.Value == "Deprecated" {
		status = "deprecated"
	}

	testType := tc.TestType
	if testType == "" {
		testType = "manual"
	}

	appKey := tc.Project.Value
	if appKey == "" {
		appKey = defaultProject
	}

	name := tc.Name
	if name == "" {
		name = "Untitled"
	}

	if linked == nil {
		linked = tc.LinkedIssues
	}

	return record.TestCase{
		TestKey:        tc.Key,
		Name:           name,
		FilePath:       tc.FilePath,
		TestType:       testType,
		Status:         status,
		AppKey:         appKey,
		LinkedJiraKeys: linked,
	}
}

func parseExecution(ex Execution) record.TestExecution {
	rawStatus := ex.TestExecutionStatus.Value
	if rawStatus == "" {
		rawStatus = ex.Status
	}

	testKey := ex.TestCase.Value
	if testKey == "" {
		testKey = ex.TestCaseKey
	}

	duration := ex.ExecutionTime
	if duration == nil {
		duration = ex.ExecutionTimeMS
	}

	rawRunAt := ex.ExecutionDate
	if rawRunAt == "" {
		rawRunAt = ex.ExecutedOn
	}
	// A malformed timestamp degrades to "no run_at" rather than dropping
	// the execution.
	runAt, err := record.ParseRunAt(rawRunAt)
	if err != nil {
		runAt = nil
	}

	return record.TestExecution{
		TestKey:      testKey,
		Result:       record.NormalizeResult(rawStatus),
		DurationMS:   duration,
		ErrorMessage: ex.Comment,
		RunAt:        runAt,
		BuildID:      ex.Environment.Value,
	}
}
