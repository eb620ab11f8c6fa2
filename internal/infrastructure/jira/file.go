package jira

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

// Export mirrors one page of the search response plus the owning project.
type Export struct {
	Project ProjectField `json:"project"`
	Issues  []Issue      `json:"issues"`
}

// FileSource implements ports.RequirementSource over a JSON export file.
// The delta window does not apply to snapshots and is ignored.
type FileSource struct {
	path           string
	defaultProject string
}

func NewFileSource(path, defaultProject string) *FileSource {
	return &FileSource{path: path, defaultProject: defaultProject}
}

func (f *FileSource) FetchRequirements(ctx context.Context, _ int) ([]record.Requirement, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, errs.Wrapf(err, "read jira export %s", f.path)
	}

	var export Export
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, errs.Wrapf(err, "parse jira export %s", f.path)
	}

	project := export.Project.Key
	if project == "" {
		project = f.defaultProject
	}

	reqs := make([]record.Requirement, 0, len(export.Issues))
	for _, issue := range export.Issues {
		reqs = append(reqs, parseIssue(issue, project))
	}

	logging.Info(ctx, "loaded jira export",
		slog.String("path", f.path),
		slog.Int("issues", len(reqs)),
	)
	return reqs, nil
}

var _ ports.RequirementSource = (*FileSource)(nil)
